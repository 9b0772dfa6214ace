package sevenzdecode

import (
	"bytes"
	"compress/bzip2"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/bodgit/plumbing"
	"github.com/javi11/sevenzdecode/internal/aes7z"
	"github.com/javi11/sevenzdecode/internal/delta"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

// A Decompressor returns a reader over the decoded output of one coder.
// props is the coder's raw property blob from the header, unpackSize the
// declared output length, and readers the coder's inputs in declared
// order: one per input stream, already wired to either an upstream coder
// or a packed byte range. The returned reader owns the inputs and must
// close them.
type Decompressor func(props []byte, unpackSize uint64, password string, readers []io.ReadCloser) (io.ReadCloser, error)

var decompressors sync.Map // map[string]Decompressor, keyed by method ID bytes

// RegisterDecompressor makes a Decompressor available for the given method
// ID. It panics when the method is already taken.
func RegisterDecompressor(id []byte, dec Decompressor) {
	if _, dup := decompressors.LoadOrStore(string(id), dec); dup {
		panic("sevenzdecode: RegisterDecompressor called twice for " + methodName(id))
	}
}

func decompressorFor(id []byte) Decompressor {
	if dec, ok := decompressors.Load(string(id)); ok {
		return dec.(Decompressor)
	}
	return nil
}

func init() {
	RegisterDecompressor(methodCopy, decodeCopy)
	RegisterDecompressor(methodDelta, decodeDelta)
	RegisterDecompressor(methodLZMA, decodeLZMA)
	RegisterDecompressor(methodLZMA2, decodeLZMA2)
	RegisterDecompressor(methodDeflate, decodeDeflate)
	RegisterDecompressor(methodBZip2, decodeBZip2)
	RegisterDecompressor(methodZstd, decodeZstd)
	RegisterDecompressor(methodBrotli, decodeBrotli)
	RegisterDecompressor(methodLZ4, decodeLZ4)
	RegisterDecompressor(methodAES256, decodeAES256)
}

// pipelineReadCloser pairs a decoded stream with everything that has to be
// closed once it is drained.
type pipelineReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (p *pipelineReadCloser) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func newReadCloser(r io.Reader, closers ...io.Closer) io.ReadCloser {
	return &pipelineReadCloser{Reader: r, closers: closers}
}

func singleInput(readers []io.ReadCloser) (io.ReadCloser, error) {
	if len(readers) != 1 {
		return nil, fmt.Errorf("coder takes one input stream, got %d", len(readers))
	}
	return readers[0], nil
}

func decodeCopy(props []byte, _ uint64, _ string, readers []io.ReadCloser) (io.ReadCloser, error) {
	if len(props) != 0 {
		return nil, fmt.Errorf("copy: unexpected %d property bytes", len(props))
	}
	return singleInput(readers)
}

func decodeDelta(props []byte, _ uint64, _ string, readers []io.ReadCloser) (io.ReadCloser, error) {
	in, err := singleInput(readers)
	if err != nil {
		return nil, err
	}
	if len(props) != 1 {
		return nil, fmt.Errorf("delta: properties are %d bytes, want 1", len(props))
	}
	return newReadCloser(delta.NewReader(in, int(props[0])+1), in), nil
}

// decodeLZMA adapts the headerless LZMA stream stored in 7z archives to a
// classic LZMA reader by synthesizing the 13-byte header (5 property
// bytes followed by the uncompressed size) in front of it.
func decodeLZMA(props []byte, unpackSize uint64, _ string, readers []io.ReadCloser) (io.ReadCloser, error) {
	in, err := singleInput(readers)
	if err != nil {
		return nil, err
	}
	if len(props) != 5 {
		return nil, fmt.Errorf("lzma: properties are %d bytes, want 5", len(props))
	}
	var hdr bytes.Buffer
	hdr.WriteByte(props[0])
	dict := binary.LittleEndian.Uint32(props[1:5])
	var dictLE [4]byte
	binary.LittleEndian.PutUint32(dictLE[:], uint32(dictCapForSize(int(dict), unpackSize)))
	hdr.Write(dictLE[:])
	if err := binary.Write(&hdr, binary.LittleEndian, unpackSize); err != nil {
		return nil, err
	}
	stream := plumbing.MultiReadCloser(io.NopCloser(&hdr), in)
	r, err := lzma.NewReader(stream)
	if err != nil {
		return nil, fmt.Errorf("lzma: %w", err)
	}
	return newReadCloser(r, stream), nil
}

func decodeLZMA2(props []byte, unpackSize uint64, _ string, readers []io.ReadCloser) (io.ReadCloser, error) {
	in, err := singleInput(readers)
	if err != nil {
		return nil, err
	}
	if len(props) != 1 {
		return nil, fmt.Errorf("lzma2: properties are %d bytes, want 1", len(props))
	}
	dictCap, err := lzma2DictCap(props[0])
	if err != nil {
		return nil, err
	}
	cfg := lzma.Reader2Config{DictCap: dictCapForSize(dictCap, unpackSize)}
	r, err := cfg.NewReader2(in)
	if err != nil {
		return nil, fmt.Errorf("lzma2: %w", err)
	}
	return newReadCloser(r, in), nil
}

// lzma2DictCap decodes the single-byte LZMA2 dictionary size: bit 0
// selects the mantissa (2 or 3), the remaining bits the shift.
func lzma2DictCap(p byte) (int, error) {
	if p > 40 {
		return 0, fmt.Errorf("lzma2: invalid dictionary size byte 0x%02x", p)
	}
	if p == 40 {
		return 0xFFFFFFFF, nil
	}
	return int(2|p&1) << (p/2 + 11), nil
}

// dictCapForSize shrinks a declared dictionary to what a stream of the
// given output size can actually reference. Headers carry the compressor's
// dictionary size, which for small streams is far more memory than any
// match distance could use.
func dictCapForSize(dictCap int, unpackSize uint64) int {
	if unpackSize >= uint64(dictCap) {
		return dictCap
	}
	if unpackSize < lzma.MinDictCap {
		return lzma.MinDictCap
	}
	return int(unpackSize)
}

func decodeDeflate(props []byte, _ uint64, _ string, readers []io.ReadCloser) (io.ReadCloser, error) {
	in, err := singleInput(readers)
	if err != nil {
		return nil, err
	}
	if len(props) != 0 {
		return nil, fmt.Errorf("deflate: unexpected %d property bytes", len(props))
	}
	fr := flate.NewReader(in)
	return newReadCloser(fr, fr, in), nil
}

func decodeBZip2(_ []byte, _ uint64, _ string, readers []io.ReadCloser) (io.ReadCloser, error) {
	in, err := singleInput(readers)
	if err != nil {
		return nil, err
	}
	return newReadCloser(bzip2.NewReader(in), in), nil
}

func decodeZstd(_ []byte, _ uint64, _ string, readers []io.ReadCloser) (io.ReadCloser, error) {
	in, err := singleInput(readers)
	if err != nil {
		return nil, err
	}
	zr, err := zstd.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	rc := zr.IOReadCloser()
	return newReadCloser(rc, rc, in), nil
}

func decodeBrotli(_ []byte, _ uint64, _ string, readers []io.ReadCloser) (io.ReadCloser, error) {
	in, err := singleInput(readers)
	if err != nil {
		return nil, err
	}
	return newReadCloser(brotli.NewReader(in), in), nil
}

func decodeLZ4(_ []byte, _ uint64, _ string, readers []io.ReadCloser) (io.ReadCloser, error) {
	in, err := singleInput(readers)
	if err != nil {
		return nil, err
	}
	return newReadCloser(lz4.NewReader(in), in), nil
}

func decodeAES256(props []byte, _ uint64, password string, readers []io.ReadCloser) (io.ReadCloser, error) {
	in, err := singleInput(readers)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	r, err := aes7z.NewReader(props, password, in)
	if err != nil {
		return nil, err
	}
	return newReadCloser(r, in), nil
}
