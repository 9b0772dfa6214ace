// Package sevenzdecode reads 7z archives. It parses the container header,
// reconstructs the stream topology that maps packed byte ranges through
// folder coder graphs onto individual files, and exposes each file as a
// reader that decodes and verifies on demand. Folders are solid blocks:
// files sharing one reuse the same decoded buffer.
package sevenzdecode

import (
	"bytes"
	"hash"
	"hash/crc32"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/bodgit/plumbing"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Windows file attribute bits stored in the header. Bit 15 marks entries
// written by unix ports that stash the original mode in the high word.
const (
	attrReadOnly      = 0x01
	attrHidden        = 0x02
	attrSystem        = 0x04
	attrDirectory     = 0x10
	attrArchive       = 0x20
	attrReparsePoint  = 0x400
	attrUnixExtension = 0x8000
)

// A Reader provides access to the contents of a 7z archive.
type Reader struct {
	File []*File

	src  io.ReaderAt
	opt  *options
	arc  *archive
	sm   *streamMap

	blocks *lru.Cache[int, []byte]
	locks  []sync.Mutex
}

// A File is a single entry inside the archive. Opening it decodes the
// backing folder (once, shared with sibling files) and returns a reader
// over this entry's slice of the folder output.
type File struct {
	Name       string
	Size       uint64
	CRC32      uint32
	Attributes uint32
	Modified   time.Time
	Created    time.Time
	Accessed   time.Time

	r      *Reader
	index  int
	isDir  bool
	anti   bool
	hasCRC bool
}

// NewReader reads the archive header from src, which must cover size
// bytes, and derives the stream map. Decoding work is deferred until
// files are opened.
func NewReader(src io.ReaderAt, size int64, opts ...Option) (*Reader, error) {
	opt := getOptions(opts)

	arc, err := readArchive(src, size, opt)
	if err != nil {
		return nil, err
	}
	sm, err := deriveStreamMap(arc)
	if err != nil {
		return nil, err
	}

	blocks, err := lru.New[int, []byte](opt.folderCacheSize)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		src:    src,
		opt:    opt,
		arc:    arc,
		sm:     sm,
		blocks: blocks,
		locks:  make([]sync.Mutex, len(arc.folders)),
	}
	r.File = make([]*File, len(arc.files))
	for i := range arc.files {
		r.File[i] = r.newFile(i)
	}

	opt.log.Debug("opened archive",
		"files", len(r.File),
		"folders", len(arc.folders),
		"packStreams", len(arc.packSizes))
	return r, nil
}

func (r *Reader) newFile(i int) *File {
	e := &r.arc.files[i]
	f := &File{
		Name:       e.name,
		Attributes: e.attributes,
		Modified:   e.mtime,
		Created:    e.ctime,
		Accessed:   e.atime,
		r:          r,
		index:      i,
		isDir:      e.isDir(),
		anti:       e.anti,
	}
	if k := r.sm.fileSubstream[i]; k >= 0 {
		f.Size = r.arc.subStreams.sizes[k]
		f.CRC32, f.hasCRC = r.arc.substreamCRC(r.sm.fileFolderIndex[i], k)
	}
	return f
}

// IsDir reports whether the entry is a directory.
func (f *File) IsDir() bool { return f.isDir }

// Mode maps the stored attributes onto an fs.FileMode. Entries written
// with the unix extension bit carry their original mode in the high word
// of the attributes; Windows-made symlinks carry the reparse-point bit.
func (f *File) Mode() fs.FileMode {
	if f.Attributes&attrUnixExtension != 0 {
		m := f.Attributes >> 16
		mode := fs.FileMode(m & 0o777)
		switch m & 0xf000 {
		case 0x4000:
			mode |= fs.ModeDir
		case 0xa000:
			mode |= fs.ModeSymlink
		}
		return mode
	}
	mode := fs.FileMode(0o666)
	if f.Attributes&attrReadOnly != 0 {
		mode = 0o444
	}
	if f.Attributes&attrReparsePoint != 0 {
		mode |= fs.ModeSymlink
	}
	if f.isDir || f.Attributes&attrDirectory != 0 {
		mode |= fs.ModeDir | 0o111
	}
	return mode
}

// FileInfo adapts the entry to an fs.FileInfo in the manner of
// archive/zip. Name is the base name only.
func (f *File) FileInfo() fs.FileInfo { return fileInfo{f} }

type fileInfo struct{ f *File }

func (fi fileInfo) Name() string       { return path.Base(strings.ReplaceAll(fi.f.Name, `\`, "/")) }
func (fi fileInfo) Size() int64        { return int64(fi.f.Size) }
func (fi fileInfo) Mode() fs.FileMode  { return fi.f.Mode() }
func (fi fileInfo) ModTime() time.Time { return fi.f.Modified }
func (fi fileInfo) IsDir() bool        { return fi.f.IsDir() }
func (fi fileInfo) Sys() any           { return fi.f }

// Open returns a reader over the file's decompressed content. Entries
// without content (directories, empty files) read as empty. When an
// expected checksum is known, the reader verifies it as the content is
// consumed and reports a mismatch as an IntegrityError at end of stream,
// after all bytes have been delivered.
func (f *File) Open() (io.ReadCloser, error) {
	fi := f.r.sm.fileFolderIndex[f.index]
	if fi < 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	block, err := f.r.folderBlock(fi)
	if err != nil {
		return nil, err
	}
	off := f.r.sm.fileOffsets[f.index]
	if off > uint64(len(block)) || f.Size > uint64(len(block))-off {
		return nil, structuralErrorf("file %q [%d,+%d) overruns folder output of %d bytes",
			f.Name, off, f.Size, len(block))
	}
	rc := io.NopCloser(bytes.NewReader(block[off : off+f.Size]))
	if !f.hasCRC {
		return rc, nil
	}

	h := crc32.NewIEEE()
	return &checksumReader{
		rc:   plumbing.TeeReadCloser(rc, h),
		hash: h,
		name: f.Name,
		want: f.CRC32,
	}, nil
}

// folderBlock returns folder fi fully decoded, reusing a cached block
// when a sibling file already paid for the decode. Failed decodes are
// not cached; a later call retries.
func (r *Reader) folderBlock(fi int) ([]byte, error) {
	r.locks[fi].Lock()
	defer r.locks[fi].Unlock()

	if block, ok := r.blocks.Get(fi); ok {
		return block, nil
	}
	block, err := decodeFolderBlock(r.arc, r.sm, fi, r.src, r.opt)
	if err != nil {
		return nil, err
	}
	r.opt.log.Debug("decoded folder", "folder", fi, "bytes", len(block))
	r.blocks.Add(fi, block)
	return block, nil
}

// checksumReader verifies the stream against its expected CRC-32 once it
// has been fully read. The mismatch surfaces after the final bytes so the
// caller still receives the (corrupt) content.
type checksumReader struct {
	rc       io.ReadCloser
	hash     hash.Hash32
	name     string
	want     uint32
	verified bool
}

func (cr *checksumReader) Read(p []byte) (int, error) {
	n, err := cr.rc.Read(p)
	if err == io.EOF && !cr.verified {
		cr.verified = true
		if got := cr.hash.Sum32(); got != cr.want {
			return n, &IntegrityError{Name: cr.name, Want: cr.want, Got: got}
		}
	}
	return n, err
}

func (cr *checksumReader) Close() error { return cr.rc.Close() }

// FileOffsetInfo locates an entry's compressed bytes inside the archive.
// For stored entries (a folder that is a single copy coder) the content
// itself is directly addressable at DirectOffset without decoding.
type FileOffsetInfo struct {
	Name         string
	Size         uint64
	Folder       int
	PackedOffset int64
	PackedSize   uint64
	DirectOffset int64
	Stored       bool
}

// ListFilesWithOffsets reports where each entry's data lives in the
// archive. Entries without content have Folder set to -1 and carry no
// offsets. Callers streaming stored content straight from the source can
// use DirectOffset and Size as an absolute byte range.
func (r *Reader) ListFilesWithOffsets() []FileOffsetInfo {
	infos := make([]FileOffsetInfo, len(r.File))
	for i, f := range r.File {
		info := FileOffsetInfo{
			Name:   f.Name,
			Size:   f.Size,
			Folder: r.sm.fileFolderIndex[i],
		}
		if fi := info.Folder; fi >= 0 {
			info.PackedOffset = r.sm.folderOffsets[fi]
			info.PackedSize = r.sm.folderPackedSize(r.arc, fi)
			fl := r.arc.folders[fi]
			if len(fl.coders) == 1 && bytes.Equal(fl.coders[0].id, methodCopy) {
				info.Stored = true
				info.DirectOffset = info.PackedOffset + int64(r.sm.fileOffsets[i])
			}
		}
		infos[i] = info
	}
	return infos
}
