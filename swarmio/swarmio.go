// Package swarmio defines the narrow interfaces the storage substrate
// consumes from its collaborators (spec.md §6.2): the host filesystem, and
// the hash-tree layer's notion of the authored total size of a volume.
package swarmio

import "io"

// FileInfo is the subset of os.FileInfo the substrate needs.
type FileInfo interface {
	Size() int64
	IsDir() bool
}

// File is a positional read/write/truncate handle, satisfied by *os.File.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Truncate(size int64) error
}

// FileSystem is the host-filesystem surface the substrate needs: stat,
// directory existence/creation, and open-or-create. It exists so tests can
// substitute something other than the real disk, the same role the
// teacher's fileIo interface plays in file-torrent-io.go.
type FileSystem interface {
	// Stat returns file metadata, or an error satisfying os.IsNotExist when
	// the path does not exist.
	Stat(path string) (FileInfo, error)
	// MkdirAll creates a directory and any missing parents, matching
	// os.MkdirAll's semantics (no error if it already exists as a dir).
	MkdirAll(path string) error
	// OpenFile opens path for positional read/write, creating it if it
	// does not already exist.
	OpenFile(path string) (File, error)
}

// HashTree is the collaborator named in spec.md §6.2: it knows the
// authored total byte length of the logical volume, independent of how
// that volume happens to be split across backing files. A nil HashTree is
// valid; Volume then treats the manifest's own declared sizes as the only
// source of truth for end-of-data (spec.md §9, "Open question — short read
// tail").
type HashTree interface {
	// TotalSize returns the authored total size and whether it is known
	// yet.
	TotalSize() (size int64, ok bool)
}
