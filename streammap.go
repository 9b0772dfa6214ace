package sevenzdecode

import "math"

// streamMap is derived once from a fully parsed archive. It fixes, for
// every folder, which slice of the flat pack-stream sequence feeds it and
// where those bytes live in the source, and, for every file entry with
// content, which folder backs it and at which offset of that folder's
// decompressed output its bytes begin.
type streamMap struct {
	// per folder
	folderFirstPackStream []int
	folderOffsets         []int64
	folderOutputSizes     []uint64
	folderFirstSubstream  []int

	// per pack stream, absolute offset within the source
	packStreamOffsets []int64

	// per file entry; folder and substream are -1 for entries
	// without content
	fileFolderIndex []int
	fileSubstream   []int
	fileOffsets     []uint64
}

// deriveStreamMap validates the folder topology and computes the stream
// map. Any inconsistency between declared counts is a StructuralError;
// nothing is decoded yet at this point.
func deriveStreamMap(a *archive) (*streamMap, error) {
	sm := &streamMap{
		folderFirstPackStream: make([]int, len(a.folders)),
		folderOffsets:         make([]int64, len(a.folders)),
		folderOutputSizes:     make([]uint64, len(a.folders)),
		folderFirstSubstream:  make([]int, len(a.folders)),
		packStreamOffsets:     make([]int64, len(a.packSizes)),
	}

	nextPack := 0
	for i, f := range a.folders {
		if len(f.coders) == 0 {
			return nil, structuralErrorf("folder %d has no coders", i)
		}
		if _, ok := f.finalOutput(); !ok {
			return nil, structuralErrorf("folder %d does not have exactly one final output stream", i)
		}
		if want := f.totalIn - uint64(len(f.bindPairs)); uint64(len(f.packedStreams)) != want {
			return nil, structuralErrorf("folder %d declares %d packed streams, topology requires %d",
				i, len(f.packedStreams), want)
		}
		sm.folderFirstPackStream[i] = nextPack
		nextPack += len(f.packedStreams)
		if nextPack > len(a.packSizes) {
			return nil, structuralErrorf("folder %d consumes pack streams beyond the %d declared",
				i, len(a.packSizes))
		}
	}
	if nextPack != len(a.packSizes) {
		return nil, structuralErrorf("folders consume %d of %d declared pack streams",
			nextPack, len(a.packSizes))
	}

	off := int64(signatureHeaderSize) + int64(a.packPos)
	for i, size := range a.packSizes {
		sm.packStreamOffsets[i] = off
		if size > uint64(math.MaxInt64)-uint64(off) {
			return nil, structuralErrorf("pack stream %d overflows the addressable range", i)
		}
		off += int64(size)
	}
	for i, f := range a.folders {
		sm.folderOffsets[i] = int64(signatureHeaderSize) + int64(a.packPos)
		if len(f.packedStreams) > 0 {
			sm.folderOffsets[i] = sm.packStreamOffsets[sm.folderFirstPackStream[i]]
		}
	}

	ss := a.subStreams
	if ss == nil {
		ss = defaultSubStreamsInfo(a.folders)
	}

	next := 0
	for i, f := range a.folders {
		sm.folderFirstSubstream[i] = next
		if f.numSubstreams < 0 {
			return nil, structuralErrorf("folder %d declares a negative substream count", i)
		}
		if next+f.numSubstreams > len(ss.sizes) {
			return nil, structuralErrorf("substream size table ends at %d, folder %d needs %d more",
				len(ss.sizes), i, f.numSubstreams)
		}
		if f.numSubstreams == 0 {
			sm.folderOutputSizes[i] = f.unpackSize()
			continue
		}
		var sum uint64
		for _, s := range ss.sizes[next : next+f.numSubstreams] {
			if s > math.MaxUint64-sum {
				return nil, structuralErrorf("folder %d substream sizes overflow a 64-bit total", i)
			}
			sum += s
		}
		if declared := f.unpackSize(); declared > 0 && sum > declared {
			return nil, structuralErrorf("folder %d substream sizes total %d, folder output is %d",
				i, sum, declared)
		}
		sm.folderOutputSizes[i] = sum
		next += f.numSubstreams
	}
	if next != len(ss.sizes) {
		return nil, structuralErrorf("substream counts cover %d of %d declared sizes", next, len(ss.sizes))
	}

	if a.files != nil {
		content := 0
		for i := range a.files {
			if a.files[i].hasStream {
				content++
			}
		}
		if content != len(ss.sizes) {
			return nil, structuralErrorf("%d file entries with content, %d substreams declared",
				content, len(ss.sizes))
		}
	}

	sm.fileFolderIndex = make([]int, len(a.files))
	sm.fileSubstream = make([]int, len(a.files))
	sm.fileOffsets = make([]uint64, len(a.files))

	folderIdx, used := 0, 0
	var cursor uint64
	for i := range a.files {
		if !a.files[i].hasStream {
			sm.fileFolderIndex[i] = -1
			sm.fileSubstream[i] = -1
			continue
		}
		for folderIdx < len(a.folders) && used == a.folders[folderIdx].numSubstreams {
			folderIdx++
			used = 0
			cursor = 0
		}
		if folderIdx >= len(a.folders) {
			return nil, structuralErrorf("file %d has content but all folders are exhausted", i)
		}
		sm.fileFolderIndex[i] = folderIdx
		sm.fileSubstream[i] = sm.folderFirstSubstream[folderIdx] + used
		sm.fileOffsets[i] = cursor
		cursor += ss.sizes[sm.fileSubstream[i]]
		used++
	}
	return sm, nil
}

// folderPackedSize is the total compressed length folder fi consumes from
// the pack-stream region.
func (sm *streamMap) folderPackedSize(a *archive, fi int) uint64 {
	first := sm.folderFirstPackStream[fi]
	var sum uint64
	for _, s := range a.packSizes[first : first+len(a.folders[fi].packedStreams)] {
		sum += s
	}
	return sum
}

// substreamCRC resolves the expected checksum of flattened substream k
// owned by folder fi. A single-substream folder lends its own output CRC
// to that substream when the substream table carries none; with no CRC
// from either source the substream is simply unverifiable.
func (a *archive) substreamCRC(fi, k int) (uint32, bool) {
	if ss := a.subStreams; ss != nil && k >= 0 && k < len(ss.hasCRC) && ss.hasCRC[k] {
		return ss.crcs[k], true
	}
	if fi >= 0 && fi < len(a.folders) {
		if f := a.folders[fi]; f.numSubstreams == 1 && f.hasCRC {
			return f.crc, true
		}
	}
	return 0, false
}
