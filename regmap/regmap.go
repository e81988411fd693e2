// Package regmap resolves symbolic register names such as
// "ARC_RESET.SCRATCH[5]" to AXI addresses. Maps are YAML documents; one map
// per chip generation is embedded.
package regmap

import (
	"embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/chiplink/addr"
	"github.com/sarchlab/chiplink/chiperr"
)

//go:embed maps/*.yaml
var embedded embed.FS

// A Resolver turns a register name into an AXI address.
type Resolver interface {
	Resolve(name string) (addr.AxiAddress, error)
}

// Register is one named register or register array.
type Register struct {
	Name   string `yaml:"name"`
	Addr   uint32 `yaml:"addr"`
	Count  int    `yaml:"count"`
	Stride uint32 `yaml:"stride"`
}

type document struct {
	Arch      string     `yaml:"arch"`
	Registers []Register `yaml:"registers"`
}

// Map is a Resolver backed by a table of registers.
type Map struct {
	arch string
	regs map[string]Register
}

// Parse reads a YAML register map.
func Parse(r io.Reader) (*Map, error) {
	doc := document{}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing register map: %w", err)
	}

	m := &Map{
		arch: doc.Arch,
		regs: make(map[string]Register, len(doc.Registers)),
	}

	for _, reg := range doc.Registers {
		if err := m.Add(reg); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Load reads a register map from a file.
func Load(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f)
}

// Embedded returns the built-in map of a chip generation.
func Embedded(name string) (*Map, error) {
	f, err := embedded.Open("maps/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("no built-in register map for %q: %w", name, err)
	}
	defer f.Close()

	return Parse(f)
}

// MustEmbedded is Embedded for maps known to exist.
func MustEmbedded(name string) *Map {
	m, err := Embedded(name)
	if err != nil {
		panic(err)
	}

	return m
}

// Add registers a register. Duplicated names are rejected.
func (m *Map) Add(reg Register) error {
	if reg.Name == "" {
		return fmt.Errorf("register without a name at 0x%x", reg.Addr)
	}

	key := strings.ToUpper(reg.Name)
	if _, dup := m.regs[key]; dup {
		return fmt.Errorf("duplicated register %q", reg.Name)
	}

	if reg.Count == 0 {
		reg.Count = 1
	}

	if reg.Stride == 0 {
		reg.Stride = 4
	}

	m.regs[key] = reg

	return nil
}

// Arch returns the generation the map was written for.
func (m *Map) Arch() string {
	return m.arch
}

// Names lists the registers in the map.
func (m *Map) Names() []string {
	names := make([]string, 0, len(m.regs))
	for _, reg := range m.regs {
		names = append(names, reg.Name)
	}

	return names
}

// Resolve returns the address of "NAME" or "NAME[i]". Names are matched
// without regard to case.
func (m *Map) Resolve(name string) (addr.AxiAddress, error) {
	base, index, err := splitIndex(name)
	if err != nil {
		return 0, chiperr.Addressing("resolve "+name, err)
	}

	reg, ok := m.regs[strings.ToUpper(base)]
	if !ok {
		return 0, chiperr.Addressing("resolve",
			fmt.Errorf("%w: %q", chiperr.ErrUnknownRegister, name))
	}

	if index >= reg.Count {
		return 0, chiperr.Addressing("resolve",
			fmt.Errorf("%w: %q has %d elements",
				chiperr.ErrUnknownRegister, name, reg.Count))
	}

	return addr.AxiAddress(reg.Addr + uint32(index)*reg.Stride), nil
}

func splitIndex(name string) (string, int, error) {
	open := strings.IndexByte(name, '[')
	if open < 0 {
		return name, 0, nil
	}

	if !strings.HasSuffix(name, "]") {
		return "", 0, fmt.Errorf("%w: unterminated index in %q",
			chiperr.ErrUnknownRegister, name)
	}

	index, err := strconv.ParseUint(name[open+1:len(name)-1], 0, 31)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad index in %q",
			chiperr.ErrUnknownRegister, name)
	}

	return name[:open], int(index), nil
}
