package sevenzdecode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/bodgit/plumbing"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Extract writes every entry of the archive into fsys. Folders are
// decoded concurrently, bounded by the Concurrency option, with files
// inside one folder written in archive order so the decoded block is
// reused. Decode and integrity failures are collected per folder and per
// file rather than aborting the run; the joined errors are returned after
// all other folders finish. Cancelling ctx stops folders that have not
// started.
func (r *Reader) Extract(ctx context.Context, fsys afero.Fs) error {
	var (
		mu      sync.Mutex
		errs    []error
		written plumbing.WriteCounter
	)
	collect := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	// Directories and empty entries need no decoding.
	byFolder := make(map[int][]*File)
	var order []int
	for _, f := range r.File {
		fi := r.sm.fileFolderIndex[f.index]
		if fi >= 0 {
			if _, seen := byFolder[fi]; !seen {
				order = append(order, fi)
			}
			byFolder[fi] = append(byFolder[fi], f)
			continue
		}
		if err := r.extractEmpty(fsys, f); err != nil {
			collect(err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opt.maxConcurrency)
	for _, fi := range order {
		files := byFolder[fi]
		g.Go(func() error {
			for _, f := range files {
				if err := ctx.Err(); err != nil {
					return err
				}
				err := r.extractFile(fsys, f, &written)
				if err == nil {
					continue
				}
				collect(err)
				var de *DecodeError
				if errors.As(err, &de) {
					// The folder cannot be decoded; its remaining
					// files would fail identically.
					break
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.opt.log.Debug("extraction finished",
		"bytes", written.Count(),
		"failures", len(errs))
	return errors.Join(errs...)
}

func (r *Reader) extractEmpty(fsys afero.Fs, f *File) error {
	if f.anti {
		r.opt.log.Debug("skipping anti entry", "name", f.Name)
		return nil
	}
	name, err := sanitizePath(f.Name)
	if err != nil {
		return err
	}
	if f.IsDir() {
		return fsys.MkdirAll(name, f.Mode().Perm()|0o111)
	}
	if err := fsys.MkdirAll(path.Dir(name), 0o755); err != nil {
		return err
	}
	w, err := fsys.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm())
	if err != nil {
		return err
	}
	return w.Close()
}

func (r *Reader) extractFile(fsys afero.Fs, f *File, written io.Writer) error {
	name, err := sanitizePath(f.Name)
	if err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := fsys.MkdirAll(path.Dir(name), 0o755); err != nil {
		return err
	}

	if f.Mode()&fs.ModeSymlink != 0 {
		return writeSymlink(fsys, name, rc)
	}

	w, err := fsys.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm())
	if err != nil {
		return err
	}
	_, cerr := io.Copy(w, plumbing.TeeReadCloser(rc, written))
	if err := w.Close(); err != nil && cerr == nil {
		cerr = err
	}
	if !f.Modified.IsZero() {
		atime := f.Accessed
		if atime.IsZero() {
			atime = f.Modified
		}
		if err := fsys.Chtimes(name, atime, f.Modified); err != nil && cerr == nil {
			cerr = err
		}
	}
	return cerr
}

// writeSymlink materializes a symlink entry, whose content is the link
// target, on filesystems that support it. Elsewhere the target is written
// out as a regular file.
func writeSymlink(fsys afero.Fs, name string, rc io.Reader) error {
	target, err := io.ReadAll(rc)
	if err != nil {
		return err
	}
	if linker, ok := fsys.(afero.Linker); ok {
		return linker.SymlinkIfPossible(string(target), name)
	}
	return afero.WriteFile(fsys, name, target, 0o644)
}

// sanitizePath normalizes an entry name to a slash path that cannot
// escape the extraction root.
func sanitizePath(name string) (string, error) {
	name = path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if name == "" || name == "." {
		return "", fmt.Errorf("sevenzdecode: entry has no usable name")
	}
	if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
		return "", fmt.Errorf("sevenzdecode: entry name %q escapes the extraction root", name)
	}
	return name, nil
}
