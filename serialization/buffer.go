package serialization

// Buffer is a growable output stream. Bytes in [0, cursor) are finalized
// (including those handed out by Advance); bytes in [cursor, len(data)) are
// spare capacity left over from earlier growth.
//
// Growth policy: extending by n bytes grows capacity to at least
// max(cursor+n, oldCapacity*7/5+32), giving amortized O(1) extension — the
// same policy as WAVM's ArrayOutputStream.
type Buffer struct {
	data   []byte
	cursor int
}

// NewBuffer returns an empty output buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Advance reserves n bytes at the cursor and returns a slice over them for
// the caller to fill in, then moves the cursor past them.
func (b *Buffer) Advance(n int) []byte {
	b.ensureCapacity(n)
	start := b.cursor
	b.cursor += n
	return b.data[start:b.cursor]
}

// WriteByte appends a single byte.
func (b *Buffer) WriteByte(v byte) error {
	b.Advance(1)[0] = v
	return nil
}

// Write appends p, implementing io.Writer.
func (b *Buffer) Write(p []byte) (int, error) {
	copy(b.Advance(len(p)), p)
	return len(p), nil
}

// Len returns the number of finalized bytes.
func (b *Buffer) Len() int { return b.cursor }

// Finish truncates the buffer to its finalized length and transfers
// ownership of the backing slice to the caller. The Buffer must not be used
// afterward.
func (b *Buffer) Finish() []byte {
	out := b.data[:b.cursor]
	b.data, b.cursor = nil, 0
	return out
}

func (b *Buffer) ensureCapacity(n int) {
	needed := b.cursor + n
	if needed <= len(b.data) {
		return
	}
	grown := len(b.data)*7/5 + 32
	if grown < needed {
		grown = needed
	}
	next := make([]byte, grown)
	copy(next, b.data[:b.cursor])
	b.data = next
}
