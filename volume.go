package sevenzdecode

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go4.org/readerutil"
)

// Safety limit when probing for split-archive parts.
const maxVolumes = 1000

// A ReadCloser is a Reader that owns the underlying archive file or
// volume set and closes it when done.
type ReadCloser struct {
	Reader
	files []*os.File
}

// Close closes every volume backing the archive.
func (rc *ReadCloser) Close() error {
	var first error
	for _, f := range rc.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenReader opens the named 7z archive. Split archives are recognized by
// the .7z.NNN naming convention: every numbered sibling part is opened and
// the set is read as one concatenated source.
func OpenReader(name string, opts ...Option) (*ReadCloser, error) {
	names, err := volumeSet(name)
	if err != nil {
		return nil, err
	}

	rc := &ReadCloser{}
	parts := make([]readerutil.SizeReaderAt, 0, len(names))
	for _, n := range names {
		f, err := os.Open(n)
		if err != nil {
			rc.Close()
			return nil, err
		}
		rc.files = append(rc.files, f)
		st, err := f.Stat()
		if err != nil {
			rc.Close()
			return nil, err
		}
		parts = append(parts, io.NewSectionReader(f, 0, st.Size()))
	}

	src := readerutil.NewMultiReaderAt(parts...)
	r, err := NewReader(src, src.Size(), opts...)
	if err != nil {
		rc.Close()
		return nil, err
	}
	rc.Reader = *r
	return rc, nil
}

// volumeSet expands a split-archive part name into the ordered list of
// part files. Anything not matching the <base>.7z.NNN convention is a
// standalone archive.
func volumeSet(name string) ([]string, error) {
	ext := filepath.Ext(name)
	num := strings.TrimPrefix(ext, ".")
	if _, err := strconv.Atoi(num); err != nil || !strings.Contains(strings.ToLower(name), ".7z.") {
		return []string{name}, nil
	}

	base := strings.TrimSuffix(name, ext)
	width := len(num)
	var names []string
	for i := 1; i <= maxVolumes; i++ {
		part := fmt.Sprintf("%s.%0*d", base, width, i)
		if _, err := os.Stat(part); err != nil {
			if i == 1 {
				return nil, fmt.Errorf("sevenzdecode: first volume of %s: %w", name, err)
			}
			break
		}
		names = append(names, part)
	}
	return names, nil
}
