package sevenzdecode

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/javi11/sevenzdecode/internal/delta"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz/lzma"
)

// Test-side archive writer: emits just enough of the container format to
// exercise the decode path with real compressed payloads.

type tCoder struct {
	id     []byte
	numIn  uint64
	numOut uint64
	props  []byte
}

type tSub struct {
	size uint64
	crc  *uint32
}

type tFolder struct {
	coders    []tCoder
	bindPairs [][2]uint64 // {in, out}
	packed    []uint64    // explicit packed slots, required when more than one
	packData  [][]byte    // one blob per packed stream
	outSizes  []uint64    // one per global output slot
	crc       *uint32
	subs      []tSub // nil means one implicit substream
}

type tFile struct {
	name      string
	dir       bool
	emptyFile bool
	anti      bool
	attrs     *uint32
	mtime     *time.Time
}

type tArchive struct {
	folders     []tFolder
	files       []tFile
	noFilesInfo bool
}

func u32p(v uint32) *uint32 { return &v }

func crcOf(b []byte) *uint32 { return u32p(crc32.ChecksumIEEE(b)) }

func wNumber(b *bytes.Buffer, v uint64) {
	if v < 0x80 {
		b.WriteByte(byte(v))
		return
	}
	b.WriteByte(0xFF)
	var le [8]byte
	binary.LittleEndian.PutUint64(le[:], v)
	b.Write(le[:])
}

func wUint32(b *bytes.Buffer, v uint32) {
	var le [4]byte
	binary.LittleEndian.PutUint32(le[:], v)
	b.Write(le[:])
}

func wBits(b *bytes.Buffer, bits []bool) {
	var cur byte
	mask := byte(0x80)
	for _, bit := range bits {
		if bit {
			cur |= mask
		}
		mask >>= 1
		if mask == 0 {
			b.WriteByte(cur)
			cur, mask = 0, 0x80
		}
	}
	if mask != 0x80 {
		b.WriteByte(cur)
	}
}

func wAllOrBits(b *bytes.Buffer, bits []bool) {
	all := true
	for _, bit := range bits {
		all = all && bit
	}
	if all && len(bits) > 0 {
		b.WriteByte(1)
		return
	}
	b.WriteByte(0)
	wBits(b, bits)
}

func (c tCoder) streams() (in, out uint64) {
	in, out = c.numIn, c.numOut
	if in == 0 {
		in = 1
	}
	if out == 0 {
		out = 1
	}
	return in, out
}

func (tf *tFolder) subCount() int {
	if tf.subs == nil {
		return 1
	}
	return len(tf.subs)
}

func (tf *tFolder) encode(b *bytes.Buffer) {
	wNumber(b, uint64(len(tf.coders)))
	var totalIn uint64
	for _, c := range tf.coders {
		in, out := c.streams()
		flags := byte(len(c.id))
		if in != 1 || out != 1 {
			flags |= 0x10
		}
		if len(c.props) > 0 {
			flags |= 0x20
		}
		b.WriteByte(flags)
		b.Write(c.id)
		if flags&0x10 != 0 {
			wNumber(b, in)
			wNumber(b, out)
		}
		if len(c.props) > 0 {
			wNumber(b, uint64(len(c.props)))
			b.Write(c.props)
		}
		totalIn += in
	}
	for _, bp := range tf.bindPairs {
		wNumber(b, bp[0])
		wNumber(b, bp[1])
	}
	if totalIn-uint64(len(tf.bindPairs)) > 1 {
		for _, p := range tf.packed {
			wNumber(b, p)
		}
	}
}

func (ta *tArchive) build(t *testing.T) []byte {
	t.Helper()

	var pack bytes.Buffer
	var packSizes []uint64
	for _, f := range ta.folders {
		for _, blob := range f.packData {
			packSizes = append(packSizes, uint64(len(blob)))
			pack.Write(blob)
		}
	}

	var h bytes.Buffer
	h.WriteByte(idHeader)
	if len(ta.folders) > 0 {
		h.WriteByte(idMainStreamsInfo)
		ta.writeStreamsInfo(&h, packSizes)
	}
	if !ta.noFilesInfo && ta.files != nil {
		h.WriteByte(idFilesInfo)
		ta.writeFilesInfo(t, &h)
	}
	h.WriteByte(idEnd)

	return assembleArchive(pack.Bytes(), h.Bytes())
}

// assembleArchive wraps a packed-stream region and a next header in the
// signature header, computing both CRC gates.
func assembleArchive(pack, header []byte) []byte {
	var out bytes.Buffer
	out.Write(signature)
	out.WriteByte(0) // major
	out.WriteByte(4) // minor

	start := make([]byte, 24)
	binary.LittleEndian.PutUint64(start[4:12], uint64(len(pack)))
	binary.LittleEndian.PutUint64(start[12:20], uint64(len(header)))
	binary.LittleEndian.PutUint32(start[20:24], crc32.ChecksumIEEE(header))
	binary.LittleEndian.PutUint32(start[0:4], crc32.ChecksumIEEE(start[4:24]))
	out.Write(start)

	out.Write(pack)
	out.Write(header)
	return out.Bytes()
}

func (ta *tArchive) writeStreamsInfo(h *bytes.Buffer, packSizes []uint64) {
	h.WriteByte(idPackInfo)
	wNumber(h, 0)
	wNumber(h, uint64(len(packSizes)))
	h.WriteByte(idSize)
	for _, s := range packSizes {
		wNumber(h, s)
	}
	h.WriteByte(idEnd)

	h.WriteByte(idUnpackInfo)
	h.WriteByte(idFolder)
	wNumber(h, uint64(len(ta.folders)))
	h.WriteByte(0)
	for i := range ta.folders {
		ta.folders[i].encode(h)
	}
	h.WriteByte(idCodersUnpackSize)
	for _, f := range ta.folders {
		for _, s := range f.outSizes {
			wNumber(h, s)
		}
	}
	var folderCRCBits []bool
	anyFolderCRC := false
	for _, f := range ta.folders {
		folderCRCBits = append(folderCRCBits, f.crc != nil)
		anyFolderCRC = anyFolderCRC || f.crc != nil
	}
	if anyFolderCRC {
		h.WriteByte(idCRC)
		wAllOrBits(h, folderCRCBits)
		for _, f := range ta.folders {
			if f.crc != nil {
				wUint32(h, *f.crc)
			}
		}
	}
	h.WriteByte(idEnd)

	anySubs := false
	for _, f := range ta.folders {
		anySubs = anySubs || f.subs != nil
	}
	if anySubs {
		ta.writeSubStreamsInfo(h)
	}

	h.WriteByte(idEnd)
}

func (ta *tArchive) writeSubStreamsInfo(h *bytes.Buffer) {
	h.WriteByte(idSubStreamsInfo)

	nonDefault := false
	multi := false
	for _, f := range ta.folders {
		nonDefault = nonDefault || f.subCount() != 1
		multi = multi || f.subCount() > 1
	}
	if nonDefault {
		h.WriteByte(idNumUnpackStream)
		for _, f := range ta.folders {
			wNumber(h, uint64(f.subCount()))
		}
	}
	if multi {
		h.WriteByte(idSize)
		for _, f := range ta.folders {
			for i := 0; i < f.subCount()-1; i++ {
				wNumber(h, f.subs[i].size)
			}
		}
	}

	// Digest slots exist for every substream not covered by the folder's
	// own CRC.
	var defined []bool
	var crcs []uint32
	for _, f := range ta.folders {
		if f.subCount() == 1 && f.crc != nil {
			continue
		}
		for i := 0; i < f.subCount(); i++ {
			var sub tSub
			if f.subs != nil {
				sub = f.subs[i]
			}
			defined = append(defined, sub.crc != nil)
			if sub.crc != nil {
				crcs = append(crcs, *sub.crc)
			}
		}
	}
	anyDigest := false
	for _, d := range defined {
		anyDigest = anyDigest || d
	}
	if anyDigest {
		h.WriteByte(idCRC)
		wAllOrBits(h, defined)
		for _, c := range crcs {
			wUint32(h, c)
		}
	}

	h.WriteByte(idEnd)
}

func (ta *tArchive) writeFilesInfo(t *testing.T, h *bytes.Buffer) {
	t.Helper()
	wNumber(h, uint64(len(ta.files)))

	writeProp := func(id byte, payload []byte) {
		h.WriteByte(id)
		wNumber(h, uint64(len(payload)))
		h.Write(payload)
	}

	empties := make([]bool, len(ta.files))
	anyEmpty := false
	for i, f := range ta.files {
		empties[i] = f.dir || f.emptyFile || f.anti
		anyEmpty = anyEmpty || empties[i]
	}
	if anyEmpty {
		var p bytes.Buffer
		wBits(&p, empties)
		writeProp(idEmptyStream, p.Bytes())

		var emptyFileBits, antiBits []bool
		anyEmptyFile, anyAnti := false, false
		for i, f := range ta.files {
			if !empties[i] {
				continue
			}
			emptyFileBits = append(emptyFileBits, f.emptyFile)
			anyEmptyFile = anyEmptyFile || f.emptyFile
			antiBits = append(antiBits, f.anti)
			anyAnti = anyAnti || f.anti
		}
		if anyEmptyFile {
			var p bytes.Buffer
			wBits(&p, emptyFileBits)
			writeProp(idEmptyFile, p.Bytes())
		}
		if anyAnti {
			var p bytes.Buffer
			wBits(&p, antiBits)
			writeProp(idAnti, p.Bytes())
		}
	}

	var names bytes.Buffer
	names.WriteByte(0) // not external
	enc := utf16le.NewEncoder()
	for _, f := range ta.files {
		b, err := enc.Bytes([]byte(f.name))
		if err != nil {
			t.Fatalf("encode name %q: %v", f.name, err)
		}
		names.Write(b)
		names.Write([]byte{0, 0})
	}
	writeProp(idName, names.Bytes())

	anyTime := false
	for _, f := range ta.files {
		anyTime = anyTime || f.mtime != nil
	}
	if anyTime {
		var p bytes.Buffer
		defined := make([]bool, len(ta.files))
		for i, f := range ta.files {
			defined[i] = f.mtime != nil
		}
		wAllOrBits(&p, defined)
		p.WriteByte(0) // not external
		for _, f := range ta.files {
			if f.mtime == nil {
				continue
			}
			var le [8]byte
			binary.LittleEndian.PutUint64(le[:], filetimeOf(*f.mtime))
			p.Write(le[:])
		}
		writeProp(idMTime, p.Bytes())
	}

	anyAttrs := false
	for _, f := range ta.files {
		anyAttrs = anyAttrs || f.attrs != nil
	}
	if anyAttrs {
		var p bytes.Buffer
		defined := make([]bool, len(ta.files))
		for i, f := range ta.files {
			defined[i] = f.attrs != nil
		}
		wAllOrBits(&p, defined)
		p.WriteByte(0)
		for _, f := range ta.files {
			if f.attrs != nil {
				wUint32(&p, *f.attrs)
			}
		}
		writeProp(idWinAttributes, p.Bytes())
	}

	h.WriteByte(idEnd)
}

// filetimeOf converts to 100ns ticks since 1601-01-01.
func filetimeOf(t time.Time) uint64 {
	const epochDelta = 116444736000000000 // 1601 to 1970 in ticks
	return uint64(t.UnixNano()/100) + epochDelta
}

// copyFolder is a single Copy coder over one packed blob.
func copyFolder(data []byte, subs []tSub) tFolder {
	return tFolder{
		coders:   []tCoder{{id: methodCopy}},
		packData: [][]byte{data},
		outSizes: []uint64{uint64(len(data))},
		subs:     subs,
	}
}

func deflateCompress(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("flate writer: %v", err)
	}
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("flate write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("flate close: %v", err)
	}
	return buf.Bytes()
}

// deflateFolder compresses raw into a single-coder Deflate folder.
func deflateFolder(t *testing.T, raw []byte, subs []tSub) tFolder {
	return tFolder{
		coders:   []tCoder{{id: methodDeflate}},
		packData: [][]byte{deflateCompress(t, raw)},
		outSizes: []uint64{uint64(len(raw))},
		subs:     subs,
	}
}

// deltaDeflateFolder chains a Delta filter after Deflate: the packed
// stream feeds the Deflate coder whose output feeds Delta, producing raw.
func deltaDeflateFolder(t *testing.T, raw []byte, dist int, subs []tSub) tFolder {
	t.Helper()
	var enc bytes.Buffer
	if _, err := delta.NewWriter(&enc, dist).Write(raw); err != nil {
		t.Fatalf("delta encode: %v", err)
	}
	return tFolder{
		coders: []tCoder{
			{id: methodDelta, props: []byte{byte(dist - 1)}},
			{id: methodDeflate},
		},
		bindPairs: [][2]uint64{{0, 1}}, // delta's input from deflate's output
		packData:  [][]byte{deflateCompress(t, enc.Bytes())},
		outSizes:  []uint64{uint64(len(raw)), uint64(len(raw))},
		subs:      subs,
	}
}

func zstdCompress(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("zstd write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}
	return buf.Bytes()
}

func brotliCompress(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("brotli write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("brotli close: %v", err)
	}
	return buf.Bytes()
}

func lz4Compress(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("lz4 write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("lz4 close: %v", err)
	}
	return buf.Bytes()
}

func lzma2Compress(t *testing.T, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := lzma.Writer2Config{}.NewWriter2(&buf)
	if err != nil {
		t.Fatalf("lzma2 writer: %v", err)
	}
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("lzma2 write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("lzma2 close: %v", err)
	}
	return buf.Bytes()
}

// lzmaCompress produces the headerless stream stored in 7z archives plus
// the 5 property bytes, by stripping the classic 13-byte header.
func lzmaCompress(t *testing.T, raw []byte) (props, stream []byte) {
	t.Helper()
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		t.Fatalf("lzma writer: %v", err)
	}
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("lzma write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("lzma close: %v", err)
	}
	out := buf.Bytes()
	if len(out) < 13 {
		t.Fatalf("lzma output too short: %d bytes", len(out))
	}
	return out[:5], out[13:]
}
