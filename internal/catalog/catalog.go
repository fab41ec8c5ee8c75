// Package catalog loads read-only lab definitions from YAML. A builtin set
// is embedded so the service boots with working labs; a directory of extra
// definitions can be layered on top.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cloudlab/pkg/domain"
)

//go:embed labs/*.yaml
var builtinLabs embed.FS

// Catalog is an immutable, id-indexed set of labs.
type Catalog struct {
	labs  map[string]domain.Lab
	order []string
}

// New builds a catalog from the given labs. A duplicate lab id fails.
func New(labs ...domain.Lab) (*Catalog, error) {
	c := &Catalog{labs: make(map[string]domain.Lab, len(labs))}
	for _, lab := range labs {
		if _, exists := c.labs[lab.ID]; exists {
			return nil, fmt.Errorf("catalog: duplicate lab id %q", lab.ID)
		}
		c.labs[lab.ID] = lab
		c.order = append(c.order, lab.ID)
	}
	sort.Strings(c.order)
	return c, nil
}

// Lab returns the lab with the given id.
func (c *Catalog) Lab(id string) (domain.Lab, bool) {
	lab, ok := c.labs[id]
	return lab, ok
}

// Labs returns every lab in stable id order.
func (c *Catalog) Labs() []domain.Lab {
	out := make([]domain.Lab, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.labs[id])
	}
	return out
}

// Builtin returns the embedded lab set.
func Builtin() (*Catalog, error) {
	labs, err := loadFS(builtinLabs, "labs")
	if err != nil {
		return nil, err
	}
	return New(labs...)
}

// Open returns the builtin catalog merged with any YAML definitions found in
// CLOUDLAB_CATALOG_DIR. A directory lab with a builtin id replaces it.
func Open() (*Catalog, error) {
	labs, err := loadFS(builtinLabs, "labs")
	if err != nil {
		return nil, err
	}
	if dir := os.Getenv("CLOUDLAB_CATALOG_DIR"); dir != "" {
		extra, err := LoadDir(dir)
		if err != nil {
			return nil, err
		}
		merged := make(map[string]domain.Lab, len(labs)+len(extra))
		for _, lab := range labs {
			merged[lab.ID] = lab
		}
		for _, lab := range extra {
			merged[lab.ID] = lab
		}
		labs = labs[:0]
		for _, lab := range merged {
			labs = append(labs, lab)
		}
	}
	return New(labs...)
}

// LoadDir parses every .yaml file in dir into labs.
func LoadDir(dir string) ([]domain.Lab, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: read dir %s: %w", dir, err)
	}
	var labs []domain.Lab
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		lab, err := ParseLab(raw)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", entry.Name(), err)
		}
		labs = append(labs, lab)
	}
	return labs, nil
}

func loadFS(fsys fs.FS, root string) ([]domain.Lab, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, err
	}
	var labs []domain.Lab
	for _, entry := range entries {
		raw, err := fs.ReadFile(fsys, root+"/"+entry.Name())
		if err != nil {
			return nil, err
		}
		lab, err := ParseLab(raw)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", entry.Name(), err)
		}
		labs = append(labs, lab)
	}
	return labs, nil
}
