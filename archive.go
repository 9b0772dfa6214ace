package sevenzdecode

import "time"

// coder describes one compression or filter stage inside a folder. It is
// immutable once parsed.
type coder struct {
	id     []byte
	numIn  uint64
	numOut uint64
	props  []byte
}

// bindPair routes the output stream out of one coder into the input stream
// in of another coder within the same folder. Both indices are global
// stream slots, counted across the folder's coders in declaration order.
type bindPair struct {
	in  uint64
	out uint64
}

// folder is one solid compression block: a small directed graph of coders
// connected by bind pairs. Stream slots are addressed by index, never by
// pointer, so validating the graph is a counting pass over the indices.
type folder struct {
	coders        []coder
	totalIn       uint64
	totalOut      uint64
	bindPairs     []bindPair
	packedStreams []uint64 // global input slots fed from pack streams, in pack order
	unpackSizes   []uint64 // declared output size of every global output slot
	hasCRC        bool
	crc           uint32

	// Number of logical substreams (files) carried by this folder's
	// output. Defaults to one; rewritten while parsing SubStreamsInfo.
	numSubstreams int
}

// findBindPairIn returns the index of the bind pair feeding global input
// slot in, or -1 when the slot is packed.
func (f *folder) findBindPairIn(in uint64) int {
	for i := range f.bindPairs {
		if f.bindPairs[i].in == in {
			return i
		}
	}
	return -1
}

// findBindPairOut returns the index of the bind pair consuming global
// output slot out, or -1 when nothing consumes it.
func (f *folder) findBindPairOut(out uint64) int {
	for i := range f.bindPairs {
		if f.bindPairs[i].out == out {
			return i
		}
	}
	return -1
}

// finalOutput locates the single output slot not consumed by any bind
// pair. ok is false when the folder has zero or several such slots, which
// marks the header as corrupt.
func (f *folder) finalOutput() (slot uint64, ok bool) {
	n := 0
	for out := uint64(0); out < f.totalOut; out++ {
		if f.findBindPairOut(out) == -1 {
			slot = out
			n++
		}
	}
	return slot, n == 1
}

// unpackSize returns the declared decompressed size of the folder's final
// output stream, 0 when the folder has no usable output.
func (f *folder) unpackSize() uint64 {
	if f.totalOut == 0 {
		return 0
	}
	if slot, ok := f.finalOutput(); ok && slot < uint64(len(f.unpackSizes)) {
		return f.unpackSizes[slot]
	}
	return 0
}

// coderForOut maps a global output slot to the coder producing it and the
// slot's position among that coder's outputs.
func (f *folder) coderForOut(out uint64) (ci int, local uint64, ok bool) {
	var base uint64
	for i := range f.coders {
		if out < base+f.coders[i].numOut {
			return i, out - base, true
		}
		base += f.coders[i].numOut
	}
	return 0, 0, false
}

// inputBase returns the global input slot where coder ci's inputs begin.
func (f *folder) inputBase(ci int) uint64 {
	var base uint64
	for i := 0; i < ci; i++ {
		base += f.coders[i].numIn
	}
	return base
}

// outputBase returns the global output slot where coder ci's outputs begin.
func (f *folder) outputBase(ci int) uint64 {
	var base uint64
	for i := 0; i < ci; i++ {
		base += f.coders[i].numOut
	}
	return base
}

// packedStreamIndex returns the position of global input slot in within the
// folder's packed-stream order, or -1 when the slot is bound to a coder.
func (f *folder) packedStreamIndex(in uint64) int {
	for i, s := range f.packedStreams {
		if s == in {
			return i
		}
	}
	return -1
}

// subStreamsInfo carries, flattened across all folders, the decompressed
// size and optional CRC-32 of every logical substream. Indices align with
// the order substreams are consumed by files that carry content.
type subStreamsInfo struct {
	sizes  []uint64
	hasCRC []bool
	crcs   []uint32
}

// fileEntry is one parsed entry of the FilesInfo header section. Empty
// streams (directories and zero-byte files) never consume a substream.
type fileEntry struct {
	name       string
	hasStream  bool
	emptyFile  bool
	anti       bool
	attributes uint32
	mtime      time.Time
	ctime      time.Time
	atime      time.Time
}

func (e *fileEntry) isDir() bool {
	return !e.hasStream && !e.emptyFile && !e.anti
}

// archive is the parsed header aggregate. It owns every child entity for
// the lifetime of one read session and is treated as immutable once
// parsing completes, so concurrent folder decoders may share it freely.
type archive struct {
	// Offset of the packed-stream region, relative to the end of the
	// 32-byte signature header.
	packPos uint64

	// Size of each physical packed stream, in folder-traversal order.
	packSizes []uint64

	// Optional CRC per packed stream.
	packCRCsDefined []bool
	packCRCs        []uint32

	folders    []*folder
	subStreams *subStreamsInfo
	files      []fileEntry
}

// totalSubstreams sums the per-folder substream counts.
func (a *archive) totalSubstreams() int {
	n := 0
	for _, f := range a.folders {
		n += f.numSubstreams
	}
	return n
}
