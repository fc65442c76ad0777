//go:build !windows

package loader

// applySEHFixup is a no-op outside COFF/SEH platforms: §4.5 steps 3 and 5
// only apply when the object carries .pdata/.xdata sections, which ELF and
// Mach-O objects never do.
func applySEHFixup(*loadState) error { return nil }

func preSnapshotSEHSections(*loadState) {}
