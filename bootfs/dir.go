package bootfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirTable is a Table backed by a directory holding one <tag>.bin file per
// entry, the layout of a boot filesystem dumped to disk.
type DirTable string

// Lookup implements Table.
func (d DirTable) Lookup(tag string) (Entry, bool, error) {
	if tag == "" || strings.ContainsAny(tag, `/\`) {
		return Entry{}, false, fmt.Errorf("invalid boot fs tag %q", tag)
	}

	data, err := os.ReadFile(filepath.Join(string(d), tag+".bin"))
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, false, nil
	}

	if err != nil {
		return Entry{}, false, fmt.Errorf("reading boot fs entry %s: %w", tag, err)
	}

	return Entry{Tag: tag, Data: data}, true, nil
}
