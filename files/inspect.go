// Package files reads local print files for upload and keeps the file store
// of the simulated mainboard.
package files

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ChunkSize is the read size used while hashing.
const ChunkSize = 32 * 1024

// Info describes a local file ready to be uploaded.
type Info struct {
	Path string
	Name string // basename sent to the printer
	Size int64
	MD5  string // lowercase hex digest of the full content
}

// Inspect streams the file at path once to compute its size and MD5.
func Inspect(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Info{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.IsDir() {
		return Info{}, fmt.Errorf("%s is a directory", path)
	}

	sum, n, err := Digest(f)
	if err != nil {
		return Info{}, fmt.Errorf("hashing %s: %w", path, err)
	}

	return Info{
		Path: path,
		Name: filepath.Base(path),
		Size: n,
		MD5:  sum,
	}, nil
}

// Digest reads r to EOF in ChunkSize pieces and returns its MD5 and length.
func Digest(r io.Reader) (string, int64, error) {
	h := md5.New()
	n, err := io.CopyBuffer(h, r, make([]byte, ChunkSize))
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
