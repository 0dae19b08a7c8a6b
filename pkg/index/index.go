package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

const indexFile = "calendars.json"

// StoreIndex remembers which calendar id backs each task store name, so
// callers can skip the calendar lookup on every run.
type StoreIndex struct {
	Mappings map[string]string `json:"mappings"`
	Path     string            `json:"-"`
	mu       sync.RWMutex
	dirty    bool
}

// New loads the index stored in dir, or starts an empty one.
func New(dir string) (*StoreIndex, error) {
	idx := &StoreIndex{
		Mappings: make(map[string]string),
		Path:     filepath.Join(dir, indexFile),
	}

	if _, err := os.Stat(idx.Path); err == nil {
		if err := idx.Load(); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Load replaces the mappings with the contents of the index file.
func (idx *StoreIndex) Load() error {
	f, err := os.Open(idx.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := json.NewDecoder(f).Decode(&idx.Mappings); err != nil {
		return err
	}
	if idx.Mappings == nil {
		idx.Mappings = make(map[string]string)
	}
	return nil
}

// Save writes the index file if anything changed since the last save.
func (idx *StoreIndex) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.dirty {
		return nil
	}

	dir := filepath.Dir(idx.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(idx.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(idx.Mappings); err != nil {
		return err
	}
	idx.dirty = false
	return nil
}

// Get returns the calendar id cached for storeName, or "" if none.
func (idx *StoreIndex) Get(storeName string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.Mappings[storeName]
}

// Set caches calendarID for storeName.
func (idx *StoreIndex) Set(storeName, calendarID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.Mappings[storeName] != calendarID {
		idx.Mappings[storeName] = calendarID
		idx.dirty = true
	}
}

// Remove forgets the calendar id cached for storeName.
func (idx *StoreIndex) Remove(storeName string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.Mappings[storeName]; exists {
		delete(idx.Mappings, storeName)
		idx.dirty = true
	}
}
