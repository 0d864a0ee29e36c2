// Package backingfile wraps a single physical file that backs a byte range
// of a logical swarm volume: path translation between the manifest's
// forward-slash form and the host OS form, recursive directory creation,
// and positional read/write/resize in file-local coordinates (spec.md
// §4.1).
package backingfile

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"github.com/anacrolix/swarmvol/swarmio"
)

// Separator is the path separator used inside a manifest, independent of
// the host OS (spec.md §6.1).
const Separator = "/"

// SpecToOSPath derives an OS-native path from a manifest-form path by
// substituting Separator for the host's path separator. Mirrors the
// original implementation's spec2ospn, which is a plain string substitution
// rather than a split/rejoin, so that a manifest entry that happens to be
// given as an already-absolute OS path round-trips unchanged on hosts
// where the two separators coincide.
func SpecToOSPath(specPath string) string {
	if filepath.Separator == '/' {
		return specPath
	}
	return strings.ReplaceAll(specPath, Separator, string(filepath.Separator))
}

// ResolveOSPath joins a content entry's manifest-form path onto baseDir,
// the directory the entries in a multi-file manifest are resolved
// relative to (spec.md leaves this unspecified beyond "derived from
// spec_path"; this implementation resolves content entries relative to the
// directory containing the manifest file itself, see DESIGN.md).
func ResolveOSPath(baseDir, specPath string) string {
	if baseDir == "" {
		return SpecToOSPath(specPath)
	}
	return filepath.Join(baseDir, SpecToOSPath(specPath))
}

// OSToSpecPath is the inverse of SpecToOSPath, used when a caller needs to
// report a physical relative path back in manifest form. Mirrors the
// original implementation's os2specpn.
func OSToSpecPath(osPath string) string {
	if filepath.Separator == '/' {
		return osPath
	}
	return strings.ReplaceAll(osPath, string(filepath.Separator), Separator)
}

// BackingFile owns one physical file inside the logical volume at a known
// offset range [Start, End]. Each BackingFile owns its descriptor
// exclusively; transfer is forbidden, and Close releases it (spec.md §9,
// "BackingFile ownership").
type BackingFile struct {
	fsys     swarmio.FileSystem
	specPath string
	osPath   string
	start    int64
	end      int64

	mu      sync.Mutex
	f       swarmio.File
	openErr error

	mmapEnabled bool
	mm          mmap.MMap

	log *slog.Logger
}

// Option configures optional BackingFile behavior.
type Option func(*BackingFile)

// WithMmapRead enables the lazy seeder-only mmap fast-read path (spec.md
// §4.1 domain-stack addition). Never used for writes.
func WithMmapRead(enabled bool) Option {
	return func(bf *BackingFile) { bf.mmapEnabled = enabled }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(bf *BackingFile) { bf.log = l }
}

// New constructs a BackingFile at the given resolved OS path for the given
// manifest-form identity and logical range, creates any missing parent
// directories, and opens the file read-write (creating it if missing).
// Construction never returns an error: a failure to create directories or
// open the file leaves the BackingFile with no handle, and callers observe
// an I/O error the first time they call Read, Write, or ResizeReserved
// (spec.md §4.1).
func New(fsys swarmio.FileSystem, osPath, specPath string, start, size int64, opts ...Option) *BackingFile {
	bf := &BackingFile{
		fsys:     fsys,
		specPath: specPath,
		osPath:   osPath,
		start:    start,
		end:      start + size - 1,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(bf)
	}

	if err := fsys.MkdirAll(filepath.Dir(bf.osPath)); err != nil {
		bf.openErr = errors.Wrapf(err, "creating parent directories for %q", bf.osPath)
		bf.log.Warn("backingfile: mkdir failed", "path", bf.osPath, "err", err)
		return bf
	}

	f, err := fsys.OpenFile(bf.osPath)
	if err != nil {
		bf.openErr = errors.Wrapf(err, "opening %q", bf.osPath)
		bf.log.Warn("backingfile: open failed", "path", bf.osPath, "err", err)
		return bf
	}
	bf.f = f
	return bf
}

// GetSpecPathName returns the canonical manifest-form path.
func (bf *BackingFile) GetSpecPathName() string { return bf.specPath }

// Start returns the inclusive logical start offset. Satisfies
// offsetindex.Entry.
func (bf *BackingFile) Start() int64 { return bf.start }

// End returns the inclusive logical end offset. Satisfies
// offsetindex.Entry.
func (bf *BackingFile) End() int64 { return bf.end }

// GetSize returns the declared logical size of this file.
func (bf *BackingFile) GetSize() int64 { return bf.end - bf.start + 1 }

// OSPath returns the resolved OS-native path this BackingFile was opened
// against.
func (bf *BackingFile) OSPath() string { return bf.osPath }

// Write performs a positional write at the given file-local offset.
func (bf *BackingFile) Write(buf []byte, localOff int64) (int, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	if bf.openErr != nil {
		return -1, bf.openErr
	}
	n, err := bf.f.WriteAt(buf, localOff)
	if err != nil {
		return n, errors.Wrapf(err, "writing %q at %d", bf.specPath, localOff)
	}
	return n, nil
}

// Read performs a positional read at the given file-local offset.
func (bf *BackingFile) Read(buf []byte, localOff int64) (int, error) {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	if bf.openErr != nil {
		return -1, bf.openErr
	}
	if bf.mmapEnabled {
		if n, err, handled := bf.readMmapLocked(buf, localOff); handled {
			return n, err
		}
	}
	n, err := bf.f.ReadAt(buf, localOff)
	if err != nil {
		return n, err
	}
	return n, nil
}

func (bf *BackingFile) readMmapLocked(buf []byte, localOff int64) (n int, err error, handled bool) {
	// Lazily map on first read. Only safe once the file will no longer grow
	// out from under the mapping, i.e. after reservation/manifest
	// completion; callers enable this option only for sealed seed files.
	if bf.mm == nil {
		mm, mapErr := mmapOpen(bf.osPath)
		if mapErr != nil {
			bf.log.Warn("backingfile: mmap fallback to pread", "path", bf.osPath, "err", mapErr)
			return 0, nil, false
		}
		bf.mm = mm
	}
	if localOff < 0 || localOff >= int64(len(bf.mm)) {
		return 0, nil, false
	}
	n = copy(buf, bf.mm[localOff:])
	return n, nil, true
}

// ResizeReserved extends the file to exactly GetSize() bytes so that
// subsequent positional writes at any offset in [0, size) succeed.
// Shrinking is not required (spec.md §4.1).
func (bf *BackingFile) ResizeReserved() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	if bf.openErr != nil {
		return bf.openErr
	}
	if err := bf.f.Truncate(bf.GetSize()); err != nil {
		return errors.Wrapf(err, "reserving %q to %d bytes", bf.specPath, bf.GetSize())
	}
	return nil
}

// Close releases the underlying descriptor and any mmap. Close is not
// required to be called more than once; a BackingFile that failed to open
// has nothing to release.
func (bf *BackingFile) Close() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()
	var err error
	if bf.mm != nil {
		err = bf.mm.Unmap()
		bf.mm = nil
	}
	if bf.f != nil {
		if cerr := bf.f.Close(); cerr != nil && err == nil {
			err = cerr
		}
		bf.f = nil
	}
	if err != nil {
		return fmt.Errorf("closing backing file %q: %w", bf.specPath, err)
	}
	return nil
}
