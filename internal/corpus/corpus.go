// Package corpus loads newline-separated word lists.
package corpus

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

var (
	ErrEmpty    = errors.New("corpus: no words")
	ErrTooLarge = errors.New("corpus: file too large to map")
)

//go:embed names.txt
var defaultNames string

// File is a corpus file held in memory, mapped read-only when the platform
// allows it.
type File struct {
	Path    string
	Data    []byte
	mmapped bool
}

// Open maps path read-only, falling back to ReadAt when mmap is unavailable.
// The returned file must be closed to release the mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, path)
	}
	size := int(size64)
	if size == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrEmpty, path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		return &File{Path: path, Data: data, mmapped: true}, nil
	}
	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return &File{Path: path, Data: data}, nil
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}

// Words returns the trimmed non-empty lines of the file. The strings do not
// alias the mapping and stay valid after Close.
func (f *File) Words() []string {
	return Parse(string(f.Data))
}

func (f *File) Close() error {
	if f == nil || f.Data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.Data)
	}
	f.Data = nil
	f.mmapped = false
	return err
}

// Parse splits text into lines, trims surrounding whitespace and drops empty
// lines. Both \n and \r\n line endings are accepted.
func Parse(text string) []string {
	var words []string
	for line := range strings.Lines(text) {
		if w := strings.TrimSpace(line); w != "" {
			words = append(words, w)
		}
	}
	return words
}

// Load reads the words of the corpus at path. An empty path selects the
// built-in list of names.
func Load(path string) ([]string, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer func() { _ = f.Close() }()
	words := f.Words()
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmpty, path)
	}
	return words, nil
}

// Default returns the embedded names list.
func Default() []string {
	return Parse(defaultNames)
}
