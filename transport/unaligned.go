package transport

import "encoding/binary"

// Aligned is a word-granular memory: offsets and lengths passed to it are
// multiples of 4.
type Aligned interface {
	ReadAligned(off uint64, buf []byte) error
	WriteAligned(off uint64, buf []byte) error
}

func span(off uint64, n int) (start, end uint64) {
	start = off &^ 3
	end = (off + uint64(n) + 3) &^ 3

	return start, end
}

// ReadUnaligned fills buf with the bytes starting exactly at off, reading
// the enclosing words.
func ReadUnaligned(m Aligned, off uint64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	start, end := span(off, len(buf))
	if start == off && end == off+uint64(len(buf)) {
		return m.ReadAligned(off, buf)
	}

	words := make([]byte, end-start)
	if err := m.ReadAligned(start, words); err != nil {
		return err
	}

	copy(buf, words[off-start:])

	return nil
}

// WriteUnaligned writes buf at off. Words only partly covered by buf are
// read, merged and written back so the bytes outside [off, off+len(buf))
// keep their value.
func WriteUnaligned(m Aligned, off uint64, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}

	start, end := span(off, len(buf))
	if start == off && end == off+uint64(len(buf)) {
		return m.WriteAligned(off, buf)
	}

	words := make([]byte, end-start)
	last := end - 4

	if off != start {
		if err := m.ReadAligned(start, words[:4]); err != nil {
			return err
		}
	}

	tailPartial := off+uint64(len(buf)) != end
	if tailPartial && (last != start || off == start) {
		if err := m.ReadAligned(last, words[last-start:]); err != nil {
			return err
		}
	}

	copy(words[off-start:], buf)

	return m.WriteAligned(start, words)
}

// Word helpers shared by handles and chip backends.

// PutWord stores v little-endian.
func PutWord(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// Word loads a little-endian word.
func Word(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}
