package volume

import (
	"log/slog"

	"github.com/anacrolix/swarmvol/swarmio"
)

// Option configures a Volume at construction, the same functional-options
// shape as the teacher's FileOption in file.go.
type Option func(*Volume)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Volume) { v.log = l }
}

// WithFileSystem overrides the default swarmio.OSFileSystem. Primarily for
// tests.
func WithFileSystem(fsys swarmio.FileSystem) Option {
	return func(v *Volume) { v.fsys = fsys }
}

// WithHashTree attaches the hash-tree collaborator (spec.md §6.2) used to
// validate that the manifest's declared sizes match the authored total
// size once the manifest is known.
func WithHashTree(ht swarmio.HashTree) Option {
	return func(v *Volume) { v.hashTree = ht }
}

// WithMmapRead enables the seeder-only mmap fast-read path on every
// BackingFile this Volume creates (spec.md §4.1 domain-stack addition).
func WithMmapRead(enabled bool) Option {
	return func(v *Volume) { v.mmapRead = enabled }
}
