package serialization

// View is a bounded input stream over a borrowed byte range. It has no
// refill hook: demanding more bytes than remain between the cursor and the
// end fails with a truncation FatalError.
type View struct {
	data   []byte
	cursor int
}

// NewView returns a View over data, starting at offset 0.
func NewView(data []byte) *View {
	return &View{data: data}
}

// Remaining returns the number of unread bytes.
func (v *View) Remaining() int { return len(v.data) - v.cursor }

// Peek returns a slice over the next n bytes without moving the cursor.
func (v *View) Peek(n int) ([]byte, error) {
	if v.Remaining() < n {
		return nil, errTruncated()
	}
	return v.data[v.cursor : v.cursor+n], nil
}

// Advance returns a slice over the next n bytes and moves the cursor past
// them.
func (v *View) Advance(n int) ([]byte, error) {
	b, err := v.Peek(n)
	if err != nil {
		return nil, err
	}
	v.cursor += n
	return b, nil
}

// ReadByte reads and consumes a single byte.
func (v *View) ReadByte() (byte, error) {
	b, err := v.Advance(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// CopyBytes copies the next len(dst) bytes into dst, advancing the cursor.
func (v *View) CopyBytes(dst []byte) error {
	src, err := v.Advance(len(dst))
	if err != nil {
		return err
	}
	copy(dst, src)
	return nil
}
