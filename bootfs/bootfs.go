// Package bootfs reads the tagged tables of a chip's boot filesystem. Table
// lookup is delegated to a Table; payloads are protobuf messages decoded
// without a schema.
package bootfs

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sarchlab/chiplink/chiperr"
)

// Well known tags.
const (
	TagBoardCfg  = "boardcfg"
	TagFlashInfo = "flshinfo"
	TagCmfwCfg   = "cmfwcfg"
	TagOrigCfg   = "origcfg"
)

// KnownTags lists the well known tags.
func KnownTags() []string {
	return []string{TagBoardCfg, TagFlashInfo, TagCmfwCfg, TagOrigCfg}
}

// Entry is one file of the boot filesystem.
type Entry struct {
	Tag     string
	Offset  uint32
	Invalid bool
	Data    []byte
}

// Table finds boot filesystem entries by tag. A missing tag is not an
// error: ok is false.
type Table interface {
	Lookup(tag string) (e Entry, ok bool, err error)
}

// MapTable is an in-memory Table.
type MapTable map[string]Entry

// Lookup implements Table.
func (t MapTable) Lookup(tag string) (Entry, bool, error) {
	e, ok := t[tag]
	if ok && e.Tag == "" {
		e.Tag = tag
	}

	return e, ok, nil
}

// Put stores a valid entry holding data.
func (t MapTable) Put(tag string, data []byte) {
	t[tag] = Entry{Tag: tag, Data: data}
}

// Field is one decoded protobuf field. Which value is set depends on Type.
type Field struct {
	Num     protowire.Number
	Type    protowire.Type
	Varint  uint64
	Fixed32 uint32
	Fixed64 uint64
	Bytes   []byte
}

// Message is a decoded protobuf message. Fields keep their wire order.
type Message struct {
	Tag    string
	Fields []Field
}

// Parse decodes a protobuf payload. Groups are rejected.
func Parse(b []byte) (Message, error) {
	var m Message

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Message{}, malformed(protowire.ParseError(n))
		}

		b = b[n:]
		f := Field{Num: num, Type: typ}

		switch typ {
		case protowire.VarintType:
			f.Varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			f.Fixed32, n = protowire.ConsumeFixed32(b)
		case protowire.Fixed64Type:
			f.Fixed64, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			f.Bytes, n = protowire.ConsumeBytes(b)
		default:
			return Message{}, malformed(
				fmt.Errorf("field %d has unsupported wire type %d", num, typ))
		}

		if n < 0 {
			return Message{}, malformed(protowire.ParseError(n))
		}

		b = b[n:]
		m.Fields = append(m.Fields, f)
	}

	return m, nil
}

func malformed(cause error) error {
	return fmt.Errorf("%w: %v", chiperr.ErrMalformed, cause)
}

// Decode looks up a tag and decodes its payload. Absent tags fail with
// chiperr.ErrTagAbsent, undecodable ones with chiperr.ErrMalformed.
func Decode(t Table, tag string) (Message, error) {
	op := "bootfs decode " + tag

	e, ok, err := t.Lookup(tag)
	if err != nil {
		return Message{}, chiperr.New(chiperr.KindBootFS, op, err)
	}

	if !ok {
		return Message{}, chiperr.New(chiperr.KindBootFS, op, chiperr.ErrTagAbsent)
	}

	if e.Invalid {
		return Message{}, chiperr.New(chiperr.KindBootFS, op,
			fmt.Errorf("%w: entry marked invalid", chiperr.ErrMalformed))
	}

	m, err := Parse(e.Data)
	if err != nil {
		return Message{}, chiperr.New(chiperr.KindBootFS, op, err)
	}

	m.Tag = tag

	return m, nil
}

// IsEmpty reports whether the message has no fields.
func (m Message) IsEmpty() bool {
	return len(m.Fields) == 0
}

func (m Message) last(num protowire.Number) (Field, bool) {
	for i := len(m.Fields) - 1; i >= 0; i-- {
		if m.Fields[i].Num == num {
			return m.Fields[i], true
		}
	}

	return Field{}, false
}

// Uint returns the last value of a numeric field.
func (m Message) Uint(num protowire.Number) (uint64, bool) {
	f, ok := m.last(num)
	if !ok {
		return 0, false
	}

	switch f.Type {
	case protowire.VarintType:
		return f.Varint, true
	case protowire.Fixed32Type:
		return uint64(f.Fixed32), true
	case protowire.Fixed64Type:
		return f.Fixed64, true
	default:
		return 0, false
	}
}

// Text returns the last value of a length-delimited field as text.
func (m Message) Text(num protowire.Number) (string, bool) {
	f, ok := m.last(num)
	if !ok || f.Type != protowire.BytesType {
		return "", false
	}

	return string(f.Bytes), true
}

// Sub decodes a length-delimited field as a nested message.
func (m Message) Sub(num protowire.Number) (Message, error) {
	f, ok := m.last(num)
	if !ok || f.Type != protowire.BytesType {
		return Message{}, fmt.Errorf("%w: no message in field %d",
			chiperr.ErrMalformed, num)
	}

	return Parse(f.Bytes)
}

// Map renders the message as field number to values, for printing.
// Length-delimited fields are shown as text when printable.
func (m Message) Map() map[int][]any {
	out := make(map[int][]any)

	for _, f := range m.Fields {
		var v any

		switch f.Type {
		case protowire.VarintType:
			v = f.Varint
		case protowire.Fixed32Type:
			v = f.Fixed32
		case protowire.Fixed64Type:
			v = f.Fixed64
		default:
			v = bytesValue(f.Bytes)
		}

		out[int(f.Num)] = append(out[int(f.Num)], v)
	}

	return out
}

func bytesValue(b []byte) any {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return b
		}
	}

	return string(b)
}

// Numbers returns the distinct field numbers in ascending order.
func (m Message) Numbers() []int {
	seen := make(map[int]bool)

	var nums []int

	for _, f := range m.Fields {
		if !seen[int(f.Num)] {
			seen[int(f.Num)] = true
			nums = append(nums, int(f.Num))
		}
	}

	sort.Ints(nums)

	return nums
}
