package static

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// localDisk is the local-filesystem driver.
type localDisk struct {
	root string
}

// Local returns a disk rooted at dir. A missing directory serves nothing.
func Local(dir string) Disk {
	root, err := filepath.Abs(dir)
	if err != nil {
		root = filepath.Clean(dir)
	}
	return &localDisk{root: root}
}

func (d *localDisk) String() string { return "local:" + d.root }

func (d *localDisk) abs(name string) string {
	return filepath.Join(d.root, filepath.FromSlash(strings.TrimSuffix(name, "/")))
}

func (d *localDisk) Open(_ context.Context, name string) (*File, error) {
	full := d.abs(indexName(name))
	info, err := os.Stat(full)
	if err != nil {
		return nil, ErrNotExist
	}
	if info.IsDir() {
		full = filepath.Join(full, IndexFile)
		if info, err = os.Stat(full); err != nil || info.IsDir() {
			return nil, ErrNotExist
		}
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("static/local: open %s: %w", name, err)
	}
	return &File{Content: f, ModTime: info.ModTime(), close: f.Close}, nil
}
