package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wavmgo/wavm/jitmodule"
	"github.com/wavmgo/wavm/loader"
	"github.com/wavmgo/wavm/registry"
)

var rootCmd = &cobra.Command{
	Use:   "wavmdump [object-file]",
	Short: "Load a native object into the JIT registry and dump its function table",
	Long: `wavmdump loads a relocatable ELF/Mach-O/PE object the same way the
runtime's object loader does, then prints the resulting function table and
registry state instead of keeping the module resident.

This exists for inspecting what a code generator actually produced: bad
relocations, missing imports, and unexpected section layout all show up
here before they'd otherwise surface as a crash inside JIT-compiled code.`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	rootCmd.Flags().String("imports", "", "path to a JSON import descriptor (default: no imports)")
	rootCmd.Flags().Bool("keep-loaded", false, "leave the module registered instead of unloading it before exit")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadImports(path string) (*loader.Imports, error) {
	if path == "" {
		return &loader.Imports{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading import descriptor: %w", err)
	}
	var imp loader.Imports
	if err := json.Unmarshal(data, &imp); err != nil {
		return nil, fmt.Errorf("parsing import descriptor: %w", err)
	}
	return &imp, nil
}

func runDump(cmd *cobra.Command, args []string) error {
	objectPath := args[0]
	importsPath, _ := cmd.Flags().GetString("imports")
	keepLoaded, _ := cmd.Flags().GetBool("keep-loaded")

	objectBytes, err := os.ReadFile(objectPath)
	if err != nil {
		return fmt.Errorf("reading object file: %w", err)
	}
	imports, err := loadImports(importsPath)
	if err != nil {
		return err
	}

	reg := registry.New()
	mod, err := loader.Load(loader.LoadOptions{
		ObjectBytes: objectBytes,
		Imports:     imports,
	}, loader.Config{Registry: reg})
	if err != nil {
		return fmt.Errorf("loading %s: %w", objectPath, err)
	}
	if !keepLoaded {
		defer mod.Unload()
	}

	dumpFunctionTable(cmd, mod)
	return nil
}

func dumpFunctionTable(cmd *cobra.Command, mod *jitmodule.LoadedModule) {
	out := cmd.OutOrStdout()
	fns := mod.Functions()
	fmt.Fprintf(out, "image ends at 0x%x, %d function(s)\n", mod.ImageEnd(), len(fns))
	for _, fn := range fns {
		fmt.Fprintf(out, "  %-24s base=0x%-12x end=0x%-12x size=%d\n",
			fn.Name(), fn.BaseAddress(), fn.EndAddress(), fn.ByteLength())
	}
}
