package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// WriteJSON writes v as indented JSON to path, creating parent directories.
// The file is replaced atomically so readers never see a half-written report.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("json: create output dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("json: encode %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("json: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("json: replace %s: %w", path, err)
	}
	return nil
}

// ReadJSON decodes the file at path into v. A missing file returns os.ErrNotExist.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // paths come from configuration
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("json: %s is empty", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json: decode %s: %w", path, err)
	}
	return nil
}

// JSONArrayFile is a JSON array on disk that grows one element per Append.
// It is safe for concurrent use within one process.
type JSONArrayFile[T any] struct {
	mu   sync.Mutex
	path string
}

// NewJSONArrayFile returns a handle for the array stored at path.
func NewJSONArrayFile[T any](path string) *JSONArrayFile[T] {
	return &JSONArrayFile[T]{path: path}
}

// Path returns the file location.
func (f *JSONArrayFile[T]) Path() string { return f.path }

// ReadAll returns every element, or nil when the file does not exist yet.
func (f *JSONArrayFile[T]) ReadAll() ([]T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *JSONArrayFile[T]) read() ([]T, error) {
	var items []T
	err := ReadJSON(f.path, &items)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return items, err
}

// load reads the current array; content that does not decode is moved aside
// to path.bak and an empty array is started.
func (f *JSONArrayFile[T]) load() ([]T, error) {
	items, err := f.read()
	if err == nil {
		return items, nil
	}
	if _, statErr := os.Stat(f.path); statErr != nil {
		return nil, err
	}
	if renameErr := os.Rename(f.path, f.path+".bak"); renameErr != nil {
		return nil, fmt.Errorf("json: move unreadable %s aside: %w", f.path, renameErr)
	}
	return nil, nil
}

// Append adds item to the end of the array.
func (f *JSONArrayFile[T]) Append(item T) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	items, err := f.load()
	if err != nil {
		return err
	}
	return WriteJSON(f.path, append(items, item))
}

// LinkListFile is a JSON array of unique URL strings: links.json and the
// leaked list both use it.
type LinkListFile struct {
	arr *JSONArrayFile[string]
}

// NewLinkListFile returns a handle for the link list stored at path.
func NewLinkListFile(path string) *LinkListFile {
	return &LinkListFile{arr: NewJSONArrayFile[string](path)}
}

// Path returns the file location.
func (f *LinkListFile) Path() string { return f.arr.path }

// Read returns the stored links in order; a missing file yields an empty list.
func (f *LinkListFile) Read() ([]string, error) {
	links, err := f.arr.ReadAll()
	if err != nil {
		return nil, err
	}
	if links == nil {
		links = []string{}
	}
	return links, nil
}

// Merge appends the links that are not stored yet, keeping the existing order,
// and returns how many were added. merge([a,b], [b,c]) stores [a,b,c].
func (f *LinkListFile) Merge(links []string) (int, error) {
	f.arr.mu.Lock()
	defer f.arr.mu.Unlock()

	existing, err := f.arr.read()
	if err != nil {
		return 0, err
	}
	kept := MergeLinks(existing, nil)
	combined := MergeLinks(kept, links)
	added := len(combined) - len(kept)
	if added == 0 && existing != nil && len(kept) == len(existing) {
		return 0, nil
	}
	if err := WriteJSON(f.arr.path, combined); err != nil {
		return 0, err
	}
	return added, nil
}

// Add stores one link unless it is already present.
func (f *LinkListFile) Add(link string) error {
	_, err := f.Merge([]string{link})
	return err
}

// MergeLinks returns existing followed by the unseen members of incoming,
// without duplicates.
func MergeLinks(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, group := range [][]string{existing, incoming} {
		for _, l := range group {
			if _, ok := seen[l]; ok {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}
