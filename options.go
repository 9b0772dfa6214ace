package sevenzdecode

import (
	"log/slog"
	"runtime"
)

const (
	defaultFolderCacheSize = 4
	defaultMemoryLimit     = 1 << 30
)

type options struct {
	password        string
	folderCacheSize int
	maxConcurrency  int
	memoryLimit     uint64
	log             *slog.Logger
}

// An Option adjusts how an archive is opened and decoded.
type Option func(*options)

// Password sets the password used for encrypted archives. Both encrypted
// headers and encrypted file content use it.
func Password(pass string) Option {
	return func(o *options) { o.password = pass }
}

// FolderCacheSize bounds how many decoded folder blocks are kept in
// memory for reuse by files sharing a folder.
func FolderCacheSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.folderCacheSize = n
		}
	}
}

// Concurrency caps the number of folders decoded in parallel during
// Extract. It defaults to the number of CPUs.
func Concurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrency = n
		}
	}
}

// MemoryLimit caps the decoded size of a single folder block, the unit in
// which both file content and compressed headers are materialized. An
// archive declaring a folder beyond the limit is rejected as corrupt
// before anything is allocated. The default is 1 GiB.
func MemoryLimit(n uint64) Option {
	return func(o *options) {
		if n > 0 {
			o.memoryLimit = n
		}
	}
}

// Logger routes diagnostic output to the given structured logger. The
// default discards everything.
func Logger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

func getOptions(opts []Option) *options {
	o := &options{
		folderCacheSize: defaultFolderCacheSize,
		maxConcurrency:  runtime.NumCPU(),
		memoryLimit:     defaultMemoryLimit,
		log:             slog.New(slog.DiscardHandler),
	}
	for _, f := range opts {
		f(o)
	}
	return o
}
