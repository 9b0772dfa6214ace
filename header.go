package sevenzdecode

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"math"
	"time"

	"github.com/bodgit/windows"
	"golang.org/x/text/encoding/unicode"
)

const (
	signatureHeaderSize = 32

	// Upper bound accepted for any count or length field. Keeps a corrupt
	// header from turning into a multi-gigabyte allocation.
	maxHeaderCount = 1 << 30
)

var signature = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}

// Header property IDs from the 7z container format.
const (
	idEnd                   = 0x00
	idHeader                = 0x01
	idArchiveProperties     = 0x02
	idAdditionalStreamsInfo = 0x03
	idMainStreamsInfo       = 0x04
	idFilesInfo             = 0x05
	idPackInfo              = 0x06
	idUnpackInfo            = 0x07
	idSubStreamsInfo        = 0x08
	idSize                  = 0x09
	idCRC                   = 0x0A
	idFolder                = 0x0B
	idCodersUnpackSize      = 0x0C
	idNumUnpackStream       = 0x0D
	idEmptyStream           = 0x0E
	idEmptyFile             = 0x0F
	idAnti                  = 0x10
	idName                  = 0x11
	idCTime                 = 0x12
	idATime                 = 0x13
	idMTime                 = 0x14
	idWinAttributes         = 0x15
	idComment               = 0x16
	idEncodedHeader         = 0x17
	idStartPos              = 0x18
	idDummy                 = 0x19
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// readNumber decodes the 7z variable-length integer: the leading byte's
// high bits select how many little-endian continuation bytes follow.
func readNumber(r *bytes.Reader) (uint64, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	mask := byte(0x80)
	var value uint64
	for i := 0; i < 8; i++ {
		if first&mask == 0 {
			value |= uint64(first&(mask-1)) << (8 * i)
			break
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= uint64(b) << (8 * i)
		mask >>= 1
	}
	return value, nil
}

// readCount reads a number that must fit a slice length. Counted entries
// occupy at least one header byte each, so the remaining length bounds any
// believable count.
func readCount(r *bytes.Reader) (int, error) {
	v, err := readNumber(r)
	if err != nil {
		return 0, err
	}
	if v > maxHeaderCount || v > uint64(r.Len()) {
		return 0, structuralErrorf("count %d cannot be backed by the remaining header", v)
	}
	return int(v), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

// readSizedBytes reads exactly n bytes, refusing lengths that cannot be
// backed by the remaining header.
func readSizedBytes(r *bytes.Reader, n uint64) ([]byte, error) {
	if n > uint64(r.Len()) {
		return nil, structuralErrorf("field of %d bytes overruns header", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// readBits reads an MSB-first bit vector of n entries.
func readBits(r *bytes.Reader, n int) ([]bool, error) {
	bits := make([]bool, n)
	var cur byte
	var mask byte
	for i := 0; i < n; i++ {
		if mask == 0 {
			b, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			cur, mask = b, 0x80
		}
		bits[i] = cur&mask != 0
		mask >>= 1
	}
	return bits, nil
}

// readAllOrBits reads the common optional-vector form: a leading non-zero
// byte means every entry is set, otherwise an explicit bit vector follows.
func readAllOrBits(r *bytes.Reader, n int) ([]bool, error) {
	all, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if all != 0 {
		bits := make([]bool, n)
		for i := range bits {
			bits[i] = true
		}
		return bits, nil
	}
	return readBits(r, n)
}

// readFileTime reads a Windows FILETIME (100ns ticks since 1601) stored as
// a little-endian uint64.
func readFileTime(r *bytes.Reader) (time.Time, error) {
	v, err := readUint64(r)
	if err != nil {
		return time.Time{}, err
	}
	ft := windows.Filetime{
		LowDateTime:  uint32(v),
		HighDateTime: uint32(v >> 32),
	}
	return time.Unix(0, ft.Nanoseconds()).UTC(), nil
}

// readArchive parses the signature header and the next header of a 7z
// source into the in-memory archive model. Compressed (and optionally
// encrypted) next headers are decoded through the regular folder pipeline
// before being parsed.
func readArchive(src io.ReaderAt, size int64, opt *options) (*archive, error) {
	if size < signatureHeaderSize {
		return nil, ErrNoSignature
	}
	var sig [signatureHeaderSize]byte
	if _, err := src.ReadAt(sig[:], 0); err != nil {
		return nil, err
	}
	if !bytes.Equal(sig[:len(signature)], signature) {
		return nil, ErrNoSignature
	}
	if sig[6] != 0 {
		return nil, ErrUnsupportedVersion
	}
	if crc := crc32.ChecksumIEEE(sig[12:32]); crc != binary.LittleEndian.Uint32(sig[8:12]) {
		return nil, structuralErrorf("start header CRC mismatch")
	}

	nextHeaderOffset := binary.LittleEndian.Uint64(sig[12:20])
	nextHeaderSize := binary.LittleEndian.Uint64(sig[20:28])
	nextHeaderCRC := binary.LittleEndian.Uint32(sig[28:32])

	if nextHeaderSize == 0 {
		return &archive{}, nil
	}
	if nextHeaderOffset > uint64(size)-signatureHeaderSize ||
		nextHeaderSize > uint64(size)-signatureHeaderSize-nextHeaderOffset {
		return nil, structuralErrorf("next header [%d,+%d) lies outside the archive", nextHeaderOffset, nextHeaderSize)
	}

	buf := make([]byte, nextHeaderSize)
	if _, err := src.ReadAt(buf, signatureHeaderSize+int64(nextHeaderOffset)); err != nil {
		return nil, err
	}
	if crc32.ChecksumIEEE(buf) != nextHeaderCRC {
		return nil, structuralErrorf("next header CRC mismatch")
	}

	r := bytes.NewReader(buf)
	nid, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if nid == idEncodedHeader {
		if r, err = readEncodedHeader(r, src, opt); err != nil {
			return nil, err
		}
		if nid, err = r.ReadByte(); err != nil {
			return nil, err
		}
	}
	if nid != idHeader {
		return nil, structuralErrorf("unexpected property 0x%02x where header expected", nid)
	}

	a := &archive{}
	if err := readHeader(r, a); err != nil {
		return nil, err
	}
	return a, nil
}

// readEncodedHeader decodes a compressed next header: the remaining bytes
// are a StreamsInfo describing a single folder whose decompressed output is
// the real header.
func readEncodedHeader(r *bytes.Reader, src io.ReaderAt, opt *options) (*bytes.Reader, error) {
	var sub archive
	if err := readStreamsInfo(r, &sub); err != nil {
		return nil, err
	}
	if len(sub.folders) != 1 {
		return nil, structuralErrorf("encoded header uses %d folders, want 1", len(sub.folders))
	}

	sm, err := deriveStreamMap(&sub)
	if err != nil {
		return nil, err
	}
	block, err := decodeFolderBlock(&sub, sm, 0, src, opt)
	if err != nil {
		return nil, err
	}
	if f := sub.folders[0]; f.hasCRC {
		if got := crc32.ChecksumIEEE(block); got != f.crc {
			return nil, structuralErrorf("encoded header CRC mismatch (got %08x, want %08x)", got, f.crc)
		}
	}
	return bytes.NewReader(block), nil
}

func readHeader(r *bytes.Reader, a *archive) error {
	nid, err := r.ReadByte()
	if err != nil {
		return err
	}
	if nid == idArchiveProperties {
		if err := readArchiveProperties(r); err != nil {
			return err
		}
		if nid, err = r.ReadByte(); err != nil {
			return err
		}
	}
	if nid == idAdditionalStreamsInfo {
		return structuralErrorf("additional streams are not supported")
	}
	if nid == idMainStreamsInfo {
		if err := readStreamsInfo(r, a); err != nil {
			return err
		}
		if nid, err = r.ReadByte(); err != nil {
			return err
		}
	}
	if nid == idFilesInfo {
		if err := readFilesInfo(r, a); err != nil {
			return err
		}
		if nid, err = r.ReadByte(); err != nil {
			return err
		}
	}
	if nid != idEnd {
		return structuralErrorf("badly terminated header (0x%02x)", nid)
	}
	return nil
}

// readArchiveProperties skips the optional property blobs; nothing in them
// affects decoding.
func readArchiveProperties(r *bytes.Reader) error {
	for {
		propType, err := r.ReadByte()
		if err != nil {
			return err
		}
		if propType == idEnd {
			return nil
		}
		size, err := readNumber(r)
		if err != nil {
			return err
		}
		if _, err := readSizedBytes(r, size); err != nil {
			return err
		}
	}
}

func readStreamsInfo(r *bytes.Reader, a *archive) error {
	nid, err := r.ReadByte()
	if err != nil {
		return err
	}
	if nid == idPackInfo {
		if err := readPackInfo(r, a); err != nil {
			return err
		}
		if nid, err = r.ReadByte(); err != nil {
			return err
		}
	}
	if nid == idUnpackInfo {
		if err := readUnpackInfo(r, a); err != nil {
			return err
		}
		if nid, err = r.ReadByte(); err != nil {
			return err
		}
	}
	if nid == idSubStreamsInfo {
		if err := readSubStreamsInfo(r, a); err != nil {
			return err
		}
		if nid, err = r.ReadByte(); err != nil {
			return err
		}
	}
	if nid != idEnd {
		return structuralErrorf("badly terminated StreamsInfo (0x%02x)", nid)
	}
	if a.subStreams == nil {
		a.subStreams = defaultSubStreamsInfo(a.folders)
	}
	return nil
}

// defaultSubStreamsInfo covers archives without an explicit SubStreamsInfo
// section: every folder carries exactly one substream whose size and CRC
// are the folder's own.
func defaultSubStreamsInfo(folders []*folder) *subStreamsInfo {
	ss := &subStreamsInfo{
		sizes:  make([]uint64, len(folders)),
		hasCRC: make([]bool, len(folders)),
		crcs:   make([]uint32, len(folders)),
	}
	for i, f := range folders {
		ss.sizes[i] = f.unpackSize()
		ss.hasCRC[i] = f.hasCRC
		ss.crcs[i] = f.crc
	}
	return ss
}

func readPackInfo(r *bytes.Reader, a *archive) error {
	var err error
	if a.packPos, err = readNumber(r); err != nil {
		return err
	}
	count, err := readCount(r)
	if err != nil {
		return err
	}

	nid, err := r.ReadByte()
	if err != nil {
		return err
	}
	if nid == idSize {
		a.packSizes = make([]uint64, count)
		for i := range a.packSizes {
			if a.packSizes[i], err = readNumber(r); err != nil {
				return err
			}
		}
		if nid, err = r.ReadByte(); err != nil {
			return err
		}
	}
	if nid == idCRC {
		if a.packCRCsDefined, err = readAllOrBits(r, count); err != nil {
			return err
		}
		a.packCRCs = make([]uint32, count)
		for i, defined := range a.packCRCsDefined {
			if !defined {
				continue
			}
			if a.packCRCs[i], err = readUint32(r); err != nil {
				return err
			}
		}
		if nid, err = r.ReadByte(); err != nil {
			return err
		}
	}
	if nid != idEnd {
		return structuralErrorf("badly terminated PackInfo (0x%02x)", nid)
	}
	return nil
}

func readUnpackInfo(r *bytes.Reader, a *archive) error {
	nid, err := r.ReadByte()
	if err != nil {
		return err
	}
	if nid != idFolder {
		return structuralErrorf("expected folder marker, got 0x%02x", nid)
	}
	count, err := readCount(r)
	if err != nil {
		return err
	}
	external, err := r.ReadByte()
	if err != nil {
		return err
	}
	if external != 0 {
		return structuralErrorf("external folder data is not supported")
	}

	a.folders = make([]*folder, count)
	for i := range a.folders {
		if a.folders[i], err = readFolder(r); err != nil {
			return err
		}
	}

	if nid, err = r.ReadByte(); err != nil {
		return err
	}
	if nid != idCodersUnpackSize {
		return structuralErrorf("expected coder unpack sizes, got 0x%02x", nid)
	}
	for _, f := range a.folders {
		// One size varint per output stream follows.
		if f.totalOut > uint64(r.Len()) {
			return structuralErrorf("folder declares %d output streams, header has %d bytes left",
				f.totalOut, r.Len())
		}
		f.unpackSizes = make([]uint64, f.totalOut)
		for i := range f.unpackSizes {
			if f.unpackSizes[i], err = readNumber(r); err != nil {
				return err
			}
		}
	}

	if nid, err = r.ReadByte(); err != nil {
		return err
	}
	if nid == idCRC {
		defined, err := readAllOrBits(r, count)
		if err != nil {
			return err
		}
		for i, f := range a.folders {
			if !defined[i] {
				continue
			}
			f.hasCRC = true
			if f.crc, err = readUint32(r); err != nil {
				return err
			}
		}
		if nid, err = r.ReadByte(); err != nil {
			return err
		}
	}
	if nid != idEnd {
		return structuralErrorf("badly terminated UnpackInfo (0x%02x)", nid)
	}
	return nil
}

func readFolder(r *bytes.Reader) (*folder, error) {
	numCoders, err := readCount(r)
	if err != nil {
		return nil, err
	}
	if numCoders == 0 {
		return nil, structuralErrorf("folder with zero coders")
	}

	f := &folder{coders: make([]coder, numCoders), numSubstreams: 1}
	for i := range f.coders {
		c := &f.coders[i]
		flags, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if flags&0x80 != 0 {
			return nil, structuralErrorf("alternative coder methods are not supported")
		}
		if c.id, err = readSizedBytes(r, uint64(flags&0x0F)); err != nil {
			return nil, err
		}
		c.numIn, c.numOut = 1, 1
		if flags&0x10 != 0 { // complex coder
			if c.numIn, err = readNumber(r); err != nil {
				return nil, err
			}
			if c.numOut, err = readNumber(r); err != nil {
				return nil, err
			}
			if c.numIn == 0 || c.numOut == 0 || c.numIn > maxHeaderCount || c.numOut > maxHeaderCount {
				return nil, structuralErrorf("coder declares implausible stream counts (%d in, %d out)", c.numIn, c.numOut)
			}
		}
		if flags&0x20 != 0 { // attributes present
			size, err := readNumber(r)
			if err != nil {
				return nil, err
			}
			if c.props, err = readSizedBytes(r, size); err != nil {
				return nil, err
			}
		}
		f.totalIn += c.numIn
		f.totalOut += c.numOut
	}

	numBindPairs := f.totalOut - 1
	if numBindPairs > f.totalIn {
		return nil, structuralErrorf("folder has %d bind pairs but only %d inputs", numBindPairs, f.totalIn)
	}
	// Each bind pair is two varints in the bytes that follow.
	if numBindPairs > uint64(r.Len()) {
		return nil, structuralErrorf("%d bind pairs cannot be backed by the remaining header", numBindPairs)
	}
	f.bindPairs = make([]bindPair, numBindPairs)
	for i := range f.bindPairs {
		bp := &f.bindPairs[i]
		if bp.in, err = readNumber(r); err != nil {
			return nil, err
		}
		if bp.out, err = readNumber(r); err != nil {
			return nil, err
		}
		if bp.in >= f.totalIn || bp.out >= f.totalOut {
			return nil, structuralErrorf("bind pair (%d,%d) outside stream range (%d in, %d out)", bp.in, bp.out, f.totalIn, f.totalOut)
		}
	}

	numPacked := f.totalIn - numBindPairs
	// More than one packed stream means one index varint apiece.
	if numPacked > 1 && numPacked > uint64(r.Len()) {
		return nil, structuralErrorf("%d packed stream indices cannot be backed by the remaining header", numPacked)
	}
	f.packedStreams = make([]uint64, numPacked)
	if numPacked == 1 {
		found := false
		for in := uint64(0); in < f.totalIn; in++ {
			if f.findBindPairIn(in) == -1 {
				f.packedStreams[0] = in
				found = true
				break
			}
		}
		if !found {
			return nil, structuralErrorf("no unbound input stream for packed data")
		}
	} else {
		for i := range f.packedStreams {
			if f.packedStreams[i], err = readNumber(r); err != nil {
				return nil, err
			}
			if f.packedStreams[i] >= f.totalIn {
				return nil, structuralErrorf("packed stream index %d outside input range %d", f.packedStreams[i], f.totalIn)
			}
		}
	}
	return f, nil
}

func readSubStreamsInfo(r *bytes.Reader, a *archive) error {
	for _, f := range a.folders {
		f.numSubstreams = 1
	}

	nid, err := r.ReadByte()
	if err != nil {
		return err
	}
	if nid == idNumUnpackStream {
		for _, f := range a.folders {
			if f.numSubstreams, err = readCount(r); err != nil {
				return err
			}
		}
		if nid, err = r.ReadByte(); err != nil {
			return err
		}
	}

	total := a.totalSubstreams()
	if total > maxHeaderCount {
		return structuralErrorf("substream count %d exceeds sanity limit", total)
	}
	// Every substream needs a size varint except each folder's implicit
	// last one, so the remaining header bounds the believable total.
	if uint64(total) > uint64(r.Len())+uint64(len(a.folders)) {
		return structuralErrorf("%d substreams cannot be backed by the remaining header", total)
	}
	ss := &subStreamsInfo{
		sizes:  make([]uint64, 0, total),
		hasCRC: make([]bool, total),
		crcs:   make([]uint32, total),
	}

	for _, f := range a.folders {
		if f.numSubstreams == 0 {
			continue
		}
		var sum uint64
		if nid == idSize {
			for i := 0; i < f.numSubstreams-1; i++ {
				size, err := readNumber(r)
				if err != nil {
					return err
				}
				if size > math.MaxUint64-sum {
					return structuralErrorf("substream sizes overflow a 64-bit total")
				}
				ss.sizes = append(ss.sizes, size)
				sum += size
			}
		} else if f.numSubstreams != 1 {
			return structuralErrorf("folder declares %d substreams but no size list", f.numSubstreams)
		}
		if sum > f.unpackSize() {
			return structuralErrorf("substream sizes (%d) exceed folder output (%d)", sum, f.unpackSize())
		}
		// The last substream implicitly covers the rest of the folder.
		ss.sizes = append(ss.sizes, f.unpackSize()-sum)
	}
	if nid == idSize {
		if nid, err = r.ReadByte(); err != nil {
			return err
		}
	}

	// Streams whose CRC is not already pinned by a single-substream
	// folder's own CRC need a digest entry.
	numDigests := 0
	for _, f := range a.folders {
		if f.numSubstreams != 1 || !f.hasCRC {
			numDigests += f.numSubstreams
		}
	}

	if nid == idCRC {
		defined, err := readAllOrBits(r, numDigests)
		if err != nil {
			return err
		}
		digests := make([]uint32, numDigests)
		for i := range digests {
			if !defined[i] {
				continue
			}
			if digests[i], err = readUint32(r); err != nil {
				return err
			}
		}

		next, nextDigest := 0, 0
		for _, f := range a.folders {
			if f.numSubstreams == 1 && f.hasCRC {
				ss.hasCRC[next] = true
				ss.crcs[next] = f.crc
				next++
				continue
			}
			for i := 0; i < f.numSubstreams; i++ {
				ss.hasCRC[next] = defined[nextDigest]
				ss.crcs[next] = digests[nextDigest]
				next++
				nextDigest++
			}
		}
		if nid, err = r.ReadByte(); err != nil {
			return err
		}
	} else {
		// No explicit digests: single-substream folders still inherit
		// the folder CRC when one is present.
		next := 0
		for _, f := range a.folders {
			if f.numSubstreams == 1 && f.hasCRC {
				ss.hasCRC[next] = true
				ss.crcs[next] = f.crc
			}
			next += f.numSubstreams
		}
	}

	if nid != idEnd {
		return structuralErrorf("badly terminated SubStreamsInfo (0x%02x)", nid)
	}
	a.subStreams = ss
	return nil
}

func readFilesInfo(r *bytes.Reader, a *archive) error {
	numFiles, err := readCount(r)
	if err != nil {
		return err
	}
	a.files = make([]fileEntry, numFiles)
	for i := range a.files {
		a.files[i].hasStream = true
	}

	var emptyStreams []bool
	var emptyFiles, antiFiles []bool
	var names []string

	for {
		propType, err := r.ReadByte()
		if err != nil {
			return err
		}
		if propType == idEnd {
			break
		}
		size, err := readNumber(r)
		if err != nil {
			return err
		}
		begin := r.Len()

		switch propType {
		case idEmptyStream:
			if emptyStreams, err = readBits(r, numFiles); err != nil {
				return err
			}

		case idEmptyFile, idAnti:
			numEmpty := 0
			for _, e := range emptyStreams {
				if e {
					numEmpty++
				}
			}
			bits, err := readBits(r, numEmpty)
			if err != nil {
				return err
			}
			if propType == idEmptyFile {
				emptyFiles = bits
			} else {
				antiFiles = bits
			}

		case idName:
			if names, err = readNames(r, size, numFiles); err != nil {
				return err
			}

		case idCTime, idATime, idMTime:
			if err := readTimes(r, a.files, propType); err != nil {
				return err
			}

		case idWinAttributes:
			defined, err := readAllOrBits(r, numFiles)
			if err != nil {
				return err
			}
			external, err := r.ReadByte()
			if err != nil {
				return err
			}
			if external != 0 {
				return structuralErrorf("external attributes are not supported")
			}
			for i, d := range defined {
				if !d {
					continue
				}
				if a.files[i].attributes, err = readUint32(r); err != nil {
					return err
				}
			}

		case idStartPos:
			return structuralErrorf("kStartPos is not supported")

		default:
			// Unknown properties (and kDummy padding) are skipped whole;
			// their size prefix exists for exactly this reason.
		}

		// Each property block declares its size up front. Skip writer
		// padding; reading past the declared end means the header lied.
		consumed := uint64(begin - r.Len())
		if consumed > size {
			return structuralErrorf("property 0x%02x consumed %d of %d declared bytes", propType, consumed, size)
		}
		if _, err := readSizedBytes(r, size-consumed); err != nil {
			return err
		}
	}

	if names != nil && len(names) != numFiles {
		return structuralErrorf("%d file names for %d files", len(names), numFiles)
	}

	emptyIndex := 0
	for i := range a.files {
		f := &a.files[i]
		if names != nil {
			f.name = names[i]
		}
		if emptyStreams != nil && emptyStreams[i] {
			f.hasStream = false
			if emptyFiles != nil && emptyIndex < len(emptyFiles) {
				f.emptyFile = emptyFiles[emptyIndex]
			}
			if antiFiles != nil && emptyIndex < len(antiFiles) {
				f.anti = antiFiles[emptyIndex]
			}
			emptyIndex++
		}
	}
	return nil
}

// readNames decodes the kName block: an external flag byte followed by
// numFiles zero-terminated UTF-16LE strings.
func readNames(r *bytes.Reader, size uint64, numFiles int) ([]string, error) {
	external, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if external != 0 {
		return nil, structuralErrorf("external file names are not supported")
	}
	if size < 1 || (size-1)%2 != 0 {
		return nil, structuralErrorf("file name block length %d is not even", size)
	}
	raw, err := readSizedBytes(r, size-1)
	if err != nil {
		return nil, err
	}

	dec := utf16le.NewDecoder()
	names := make([]string, 0, numFiles)
	start := 0
	for i := 0; i+1 < len(raw); i += 2 {
		if raw[i] == 0 && raw[i+1] == 0 {
			decoded, err := dec.Bytes(raw[start:i])
			if err != nil {
				return nil, structuralErrorf("undecodable file name: %v", err)
			}
			names = append(names, string(decoded))
			start = i + 2
		}
	}
	if start != len(raw) {
		return nil, structuralErrorf("file name block not zero-terminated")
	}
	return names, nil
}

func readTimes(r *bytes.Reader, files []fileEntry, propType byte) error {
	defined, err := readAllOrBits(r, len(files))
	if err != nil {
		return err
	}
	external, err := r.ReadByte()
	if err != nil {
		return err
	}
	if external != 0 {
		return structuralErrorf("external timestamps are not supported")
	}
	for i, d := range defined {
		if !d {
			continue
		}
		t, err := readFileTime(r)
		if err != nil {
			return err
		}
		switch propType {
		case idCTime:
			files[i].ctime = t
		case idATime:
			files[i].atime = t
		case idMTime:
			files[i].mtime = t
		}
	}
	return nil
}
