package sevenzdecode

import (
	"io"
	"strings"
)

// limitedReadCloser caps a decoder's output at its declared size while
// still closing the decoder itself.
type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error               { return l.c.Close() }

func limitReadCloser(rc io.ReadCloser, n int64) io.ReadCloser {
	return &limitedReadCloser{r: io.LimitReader(rc, n), c: rc}
}

func closeAll(readers []io.ReadCloser) {
	for _, r := range readers {
		if r != nil {
			r.Close()
		}
	}
}

// folderReader opens the decode pipeline for folder fi and returns a
// reader over its final output stream.
func folderReader(a *archive, sm *streamMap, fi int, src io.ReaderAt, opt *options) (io.ReadCloser, error) {
	f := a.folders[fi]
	out, ok := f.finalOutput()
	if !ok {
		return nil, structuralErrorf("folder %d does not have exactly one final output stream", fi)
	}
	return coderReader(a, sm, fi, out, src, opt, make([]bool, len(f.coders)))
}

// coderReader materializes the decoder producing global output slot out of
// folder fi. Bound inputs recurse into the upstream coder; packed inputs
// become section readers over their assigned byte range of src.
func coderReader(a *archive, sm *streamMap, fi int, out uint64, src io.ReaderAt, opt *options, visiting []bool) (io.ReadCloser, error) {
	f := a.folders[fi]
	ci, _, ok := f.coderForOut(out)
	if !ok {
		return nil, structuralErrorf("folder %d: no coder produces output stream %d", fi, out)
	}
	if visiting[ci] {
		return nil, structuralErrorf("folder %d: coder graph contains a cycle", fi)
	}
	visiting[ci] = true

	c := &f.coders[ci]
	if c.numOut != 1 {
		return nil, &DecodeError{Folder: fi, Method: methodName(c.id), Err: ErrUnsupportedMethod}
	}
	if out >= uint64(len(f.unpackSizes)) {
		return nil, structuralErrorf("folder %d: no unpack size for output stream %d", fi, out)
	}
	dec := decompressorFor(c.id)
	if dec == nil {
		return nil, &DecodeError{Folder: fi, Method: methodName(c.id), Err: ErrUnsupportedMethod}
	}

	inputs := make([]io.ReadCloser, c.numIn)
	base := f.inputBase(ci)
	for j := range inputs {
		in := base + uint64(j)
		if bp := f.findBindPairIn(in); bp >= 0 {
			r, err := coderReader(a, sm, fi, f.bindPairs[bp].out, src, opt, visiting)
			if err != nil {
				closeAll(inputs[:j])
				return nil, err
			}
			inputs[j] = r
			continue
		}
		k := f.packedStreamIndex(in)
		if k < 0 {
			closeAll(inputs[:j])
			return nil, structuralErrorf("folder %d: input stream %d is neither bound nor packed", fi, in)
		}
		g := sm.folderFirstPackStream[fi] + k
		inputs[j] = io.NopCloser(io.NewSectionReader(src, sm.packStreamOffsets[g], int64(a.packSizes[g])))
	}

	outSize := f.unpackSizes[out]
	rc, err := dec(c.props, outSize, opt.password, inputs)
	if err != nil {
		closeAll(inputs)
		return nil, &DecodeError{Folder: fi, Method: methodName(c.id), Err: err}
	}
	return limitReadCloser(rc, int64(outSize)), nil
}

// decodeFolderBlock runs folder fi's pipeline to completion, returning the
// folder's whole decompressed output. The declared size is checked against
// the memory limit before the buffer exists.
func decodeFolderBlock(a *archive, sm *streamMap, fi int, src io.ReaderAt, opt *options) ([]byte, error) {
	size := sm.folderOutputSizes[fi]
	if size > opt.memoryLimit {
		return nil, structuralErrorf("folder %d declares %d output bytes, memory limit is %d",
			fi, size, opt.memoryLimit)
	}
	rc, err := folderReader(a, sm, fi, src, opt)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	block := make([]byte, size)
	if _, err := io.ReadFull(rc, block); err != nil {
		return nil, &DecodeError{Folder: fi, Method: folderMethodName(a.folders[fi]), Err: err}
	}
	return block, nil
}

// folderMethodName names a folder's coder chain for error reporting.
func folderMethodName(f *folder) string {
	names := make([]string, len(f.coders))
	for i := range f.coders {
		names[i] = methodName(f.coders[i].id)
	}
	return strings.Join(names, "+")
}
