package mmapfile

import (
	"encoding/binary"
	"fmt"
)

// View is an independent byte cursor over a [Page]'s mapping, anchored at a
// fixed absolute offset. It carries no state beyond that offset - taking a
// View does not copy or lock anything.
type View struct {
	page *Page
	pos  int
}

// ReadAt copies length bytes starting at the view's position into a new
// slice.
func (v View) ReadAt(length int) ([]byte, error) {
	if v.page.closed.Load() {
		return nil, fmt.Errorf("mmapfile: read on closed page %d", v.page.index)
	}

	end := v.pos + length
	if length < 0 || end > len(v.page.data) {
		return nil, fmt.Errorf("mmapfile: read [%d:%d) out of bounds for page %d (size %d)",
			v.pos, end, v.page.index, len(v.page.data))
	}

	out := make([]byte, length)
	copy(out, v.page.data[v.pos:end])

	return out, nil
}

// WriteAt copies b into the mapping starting at the view's position. It
// does not mark the page dirty; callers must call [Page.SetDirty] once per
// logical write.
func (v View) WriteAt(b []byte) error {
	if v.page.closed.Load() {
		return fmt.Errorf("mmapfile: write on closed page %d", v.page.index)
	}

	end := v.pos + len(b)
	if end > len(v.page.data) {
		return fmt.Errorf("mmapfile: write [%d:%d) out of bounds for page %d (size %d)",
			v.pos, end, v.page.index, len(v.page.data))
	}

	copy(v.page.data[v.pos:end], b)

	return nil
}

// Uint64 reads a little-endian uint64 at the view's position.
func (v View) Uint64() (uint64, error) {
	b, err := v.ReadAt(8)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint64(b), nil
}

// PutUint64 writes x as a little-endian uint64 at the view's position.
func (v View) PutUint64(x uint64) error {
	var b [8]byte

	binary.LittleEndian.PutUint64(b[:], x)

	return v.WriteAt(b[:])
}
