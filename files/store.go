package files

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Store is a flat directory of print files, as kept by a mainboard.
type Store struct {
	dir string
}

// Entry is one file held by a Store.
type Entry struct {
	Name     string
	Size     int64
	Modified time.Time
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating store dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes r to name, replacing any existing file, and returns the
// number of bytes written and their MD5.
func (s *Store) Save(name string, r io.Reader) (int64, string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return 0, "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return 0, "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := md5.New()
	n, err := io.CopyBuffer(io.MultiWriter(tmp, h), r, make([]byte, ChunkSize))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, "", fmt.Errorf("writing %s: %w", name, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, "", fmt.Errorf("storing %s: %w", name, err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// List returns the stored files, most recently modified first.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading store dir: %w", err)
	}

	entries := []Entry{}
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:     de.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Modified.Equal(entries[j].Modified) {
			return entries[i].Modified.After(entries[j].Modified)
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Stat returns the entry for name.
func (s *Store) Stat(name string) (Entry, error) {
	path, err := s.resolve(name)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, fmt.Errorf("file not found: %s", name)
	}
	return Entry{Name: info.Name(), Size: info.Size(), Modified: info.ModTime()}, nil
}

// Delete removes name from the store.
func (s *Store) Delete(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// resolve maps a stored name to its path, rejecting anything that would
// escape the store directory.
func (s *Store) resolve(name string) (string, error) {
	clean := filepath.Base(filepath.FromSlash(name))
	if clean == "." || clean == ".." || clean == string(filepath.Separator) || clean != name {
		return "", fmt.Errorf("invalid file name: %q", name)
	}
	return filepath.Join(s.dir, clean), nil
}
