// Package workspace records which datasets were checked and what the engine found.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/datalens-cli/internal/dataset"
	"github.com/KaramelBytes/datalens-cli/internal/diagnostics"
	"github.com/KaramelBytes/datalens-cli/internal/utils"
)

// Workspace is a named collection of dataset references persisted as workspace.json.
type Workspace struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Datasets    map[string]*DatasetRef `json:"datasets"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`

	// on-disk location of workspace.json
	rootDir string
}

// New constructs an in-memory workspace. Call Save to persist.
func New(name, description, rootDir string) *Workspace {
	now := time.Now()
	return &Workspace{
		Name:        name,
		Description: description,
		Datasets:    make(map[string]*DatasetRef),
		CreatedAt:   now,
		UpdatedAt:   now,
		rootDir:     rootDir,
	}
}

// ErrNotFound is returned by Load when dir holds no workspace.json.
var ErrNotFound = errors.New("workspace not found")

// Load reads workspace.json from dir.
func Load(dir string) (*Workspace, error) {
	path := filepath.Join(dir, utils.WorkspaceFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read workspace: %w", err)
	}
	var w Workspace
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("parse workspace: %w", err)
	}
	if w.Datasets == nil {
		w.Datasets = make(map[string]*DatasetRef)
	}
	w.rootDir = dir
	return &w, nil
}

// RootDir returns the on-disk workspace directory.
func (w *Workspace) RootDir() string { return w.rootDir }

// Save writes workspace.json atomically.
func (w *Workspace) Save() error {
	if w.rootDir == "" {
		return errors.New("workspace root directory not set")
	}
	if err := utils.EnsureDir(w.rootDir); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	w.UpdatedAt = time.Now()
	data, err := utils.PrettyJSON(w)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(w.rootDir, utils.WorkspaceFileName), data)
}

// AddDataset records a diagnosis run. A dataset already tracked under the same path is
// updated in place and keeps its ID.
func (w *Workspace) AddDataset(ds *dataset.Dataset, diags []diagnostics.Diagnostic) *DatasetRef {
	if w.Datasets == nil {
		w.Datasets = make(map[string]*DatasetRef)
	}
	path := ds.Source
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	ref := w.byPath(path)
	if ref == nil {
		ref = &DatasetRef{ID: uuid.NewString(), Path: path}
		w.Datasets[ref.ID] = ref
	}
	ref.Name = ds.Name
	ref.Format = ds.Format
	ref.Columns = append([]string(nil), ds.Columns...)
	ref.Rows = ds.TotalRows
	ref.Summary = NewSummary(diags)
	ref.CheckedAt = time.Now()
	w.UpdatedAt = ref.CheckedAt
	return ref
}

func (w *Workspace) byPath(path string) *DatasetRef {
	for _, d := range w.Datasets {
		if d.Path == path {
			return d
		}
	}
	return nil
}

// Remove deletes a dataset reference by ID or name.
func (w *Workspace) Remove(idOrName string) bool {
	d := w.Find(idOrName)
	if d == nil {
		return false
	}
	delete(w.Datasets, d.ID)
	w.UpdatedAt = time.Now()
	return true
}

// Sorted returns the dataset references ordered by name, then ID.
func (w *Workspace) Sorted() []*DatasetRef {
	out := make([]*DatasetRef, 0, len(w.Datasets))
	for _, d := range w.Datasets {
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID < out[j].ID
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Find looks a dataset up by exact ID, then by case-insensitive name.
func (w *Workspace) Find(idOrName string) *DatasetRef {
	if d, ok := w.Datasets[idOrName]; ok {
		return d
	}
	for _, d := range w.Sorted() {
		if strings.EqualFold(d.Name, idOrName) {
			return d
		}
	}
	return nil
}

// List returns the names of workspaces under dir, sorted.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, e.Name(), utils.WorkspaceFileName)); err == nil {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
