package sevenzdecode

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSignature is returned when the source does not start with the
	// 7z signature bytes.
	ErrNoSignature = errors.New("sevenzdecode: 7z signature not found")

	// ErrUnsupportedVersion is returned for archives declaring a format
	// major version this package does not understand.
	ErrUnsupportedVersion = errors.New("sevenzdecode: unsupported archive version")

	// ErrUnsupportedMethod is returned when a folder names a coder with no
	// registered decompressor.
	ErrUnsupportedMethod = errors.New("sevenzdecode: unsupported compression method")

	// ErrPasswordRequired is returned when an encrypted coder is reached
	// and no password was supplied via the Password option.
	ErrPasswordRequired = errors.New("sevenzdecode: password required")
)

// A StructuralError reports header-derived values that contradict each
// other: a folder without exactly one final output stream, a pack-stream
// cursor overrun, a substream count that disagrees with the file entries.
// It always aborts the whole archive-read session; a self-contradictory
// topology has no safe partial interpretation.
type StructuralError struct {
	Detail string
}

func (e *StructuralError) Error() string {
	return "sevenzdecode: structural error: " + e.Detail
}

func structuralErrorf(format string, args ...any) error {
	return &StructuralError{Detail: fmt.Sprintf(format, args...)}
}

// A DecodeError reports that the coder pipeline of one folder could not be
// built or run: an unregistered method, malformed coder properties, or a
// truncated packed stream. It affects every file backed by that folder and
// no others.
type DecodeError struct {
	Folder int    // index of the affected folder
	Method string // human-readable name of the failing coder
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("sevenzdecode: folder %d: %s: %v", e.Folder, e.Method, e.Err)
	}
	return fmt.Sprintf("sevenzdecode: folder %d: %v", e.Folder, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// An IntegrityError reports a CRC-32 mismatch on one decoded substream.
// The decoded bytes are still delivered to the caller; treating the
// mismatch as fatal is the caller's choice.
type IntegrityError struct {
	Name string // archive entry name
	Want uint32 // checksum declared in the header
	Got  uint32 // checksum computed over the decoded bytes
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("sevenzdecode: %s: checksum mismatch (got %08x, want %08x)", e.Name, e.Got, e.Want)
}
