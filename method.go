package sevenzdecode

import "fmt"

// Coder method IDs, big-endian byte sequences as they appear in folder
// headers. Filters and codecs beyond this list can be supplied through
// RegisterDecompressor.
var (
	methodCopy    = []byte{0x00}
	methodDelta   = []byte{0x03}
	methodLZMA    = []byte{0x03, 0x01, 0x01}
	methodBCJ     = []byte{0x03, 0x03, 0x01, 0x03}
	methodBCJ2    = []byte{0x03, 0x03, 0x01, 0x1B}
	methodDeflate = []byte{0x04, 0x01, 0x08}
	methodBZip2   = []byte{0x04, 0x02, 0x02}
	methodZstd    = []byte{0x04, 0xF7, 0x11, 0x01}
	methodBrotli  = []byte{0x04, 0xF7, 0x11, 0x02}
	methodLZ4     = []byte{0x04, 0xF7, 0x11, 0x04}
	methodLZMA2   = []byte{0x21}
	methodAES256  = []byte{0x06, 0xF1, 0x07, 0x01}
)

var methodNames = map[string]string{
	string(methodCopy):    "Copy",
	string(methodDelta):   "Delta",
	string(methodLZMA):    "LZMA",
	string(methodBCJ):     "BCJ",
	string(methodBCJ2):    "BCJ2",
	string(methodDeflate): "Deflate",
	string(methodBZip2):   "BZip2",
	string(methodZstd):    "Zstandard",
	string(methodBrotli):  "Brotli",
	string(methodLZ4):     "LZ4",
	string(methodLZMA2):   "LZMA2",
	string(methodAES256):  "AES-256-SHA-256",
}

// methodName returns a readable name for a coder ID, falling back to hex
// for methods outside the table.
func methodName(id []byte) string {
	if name, ok := methodNames[string(id)]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%x)", id)
}
