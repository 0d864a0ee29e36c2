// Package volume implements the state-machine front-end of the swarm
// storage substrate (spec.md §4.3): it owns either a single backing file or
// an ordered set of backingfile.BackingFile entries described by a
// multi-file manifest, and dispatches Read/Write across them.
package volume

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	g "github.com/anacrolix/generics"

	"github.com/anacrolix/swarmvol/backingfile"
	"github.com/anacrolix/swarmvol/offsetindex"
	"github.com/anacrolix/swarmvol/swarmio"
)

type state int

const (
	stateInit state = iota
	stateSingleFile
	stateMFSpecSizeKnown
	stateMFSpecComplete
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "INIT"
	case stateSingleFile:
		return "SINGLE_FILE"
	case stateMFSpecSizeKnown:
		return "MFSPEC_SIZE_KNOWN"
	case stateMFSpecComplete:
		return "MFSPEC_COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// Volume is the logical, byte-addressable view of a swarm's data, backed
// either by one file or by a manifest-described set of files (spec.md §3).
type Volume struct {
	rootPath string
	fsys     swarmio.FileSystem
	hashTree swarmio.HashTree
	log      *slog.Logger
	mmapRead bool

	state      state
	specSize   int64
	singleFile swarmio.File
	files      []*backingfile.BackingFile
	index      offsetindex.Index[*backingfile.BackingFile]

	postponedReserve g.Option[int64]

	counters counters

	// constructErr records a failure observed during New, surfaced through
	// Err rather than from New itself (spec.md §7, "Construction failures do
	// not throw"). Read and Write do not consult it.
	constructErr error
}

// New constructs a Volume rooted at rootPath. If rootPath exists and its
// leading bytes are the manifest sentinel, the Volume enters
// MFSPEC_COMPLETE immediately and parses the manifest from disk. If it
// exists and is a regular file whose head does not match the sentinel, the
// Volume enters SINGLE_FILE. If it does not exist, the Volume stays in
// INIT until the first Write (spec.md §4.3.1).
func New(rootPath string, opts ...Option) *Volume {
	v := &Volume{
		rootPath: rootPath,
		fsys:     swarmio.OSFileSystem{},
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(v)
	}
	v.probe()
	return v
}

func (v *Volume) bfOpts() []backingfile.Option {
	return []backingfile.Option{
		backingfile.WithLogger(v.log),
		backingfile.WithMmapRead(v.mmapRead),
	}
}

func (v *Volume) probe() {
	fi, err := v.fsys.Stat(v.rootPath)
	if err != nil {
		if !os.IsNotExist(err) {
			v.constructErr = err
			v.log.Warn("volume: stat failed, treating as INIT", "path", v.rootPath, "err", err)
		}
		v.state = stateInit
		return
	}

	f, err := v.fsys.OpenFile(v.rootPath)
	if err != nil {
		v.constructErr = err
		v.state = stateInit
		return
	}
	head := make([]byte, len(SentinelName))
	n, _ := f.ReadAt(head, 0)
	f.Close()

	if n >= len(SentinelName) && string(head[:n]) == SentinelName {
		v.enterSeedMultiFile(fi.Size())
		return
	}
	if err := v.openSingle(); err != nil {
		v.constructErr = err
	}
}

func (v *Volume) rebuildIndex() {
	v.index = offsetindex.New(v.files)
}

func (v *Volume) enterSeedMultiFile(size int64) {
	manifest := backingfile.New(v.fsys, v.rootPath, v.rootPath, 0, size, v.bfOpts()...)
	v.files = []*backingfile.BackingFile{manifest}
	v.rebuildIndex()
	v.specSize = size
	v.state = stateMFSpecComplete
	if err := v.parseSpecFromDisk(manifest); err != nil {
		v.constructErr = err
		v.log.Error("volume: parsing manifest from disk failed", "path", v.rootPath, "err", err)
	}
}

func (v *Volume) openSingle() error {
	f, err := v.fsys.OpenFile(v.rootPath)
	if err != nil {
		return err
	}
	v.singleFile = f
	v.state = stateSingleFile
	if size, ok := v.postponedReserve.AsTuple(); ok {
		return v.resizeSingle(size)
	}
	return nil
}

// parseSpecFromDisk reads the manifest's own BackingFile (its size is
// already known) and parses its content into v.files[1:].
func (v *Volume) parseSpecFromDisk(manifest *backingfile.BackingFile) error {
	buf := make([]byte, manifest.GetSize())
	n, err := manifest.Read(buf, 0)
	if err != nil && err != io.EOF {
		return err
	}
	return v.parseSpecBytes(buf[:n])
}

func (v *Volume) parseSpecBytes(buf []byte) error {
	recs, err := parseManifest(bytes.NewReader(buf))
	if err != nil {
		return err
	}
	if recs[0].size != v.files[0].GetSize() {
		return fmt.Errorf("%w: manifest declares its own size as %d but the file is %d bytes",
			ErrParse, recs[0].size, v.files[0].GetSize())
	}

	offset := v.files[0].GetSize()
	baseDir := filepath.Dir(v.rootPath)
	for _, rec := range recs[1:] {
		osPath := backingfile.ResolveOSPath(baseDir, rec.specPath)
		bf := backingfile.New(v.fsys, osPath, rec.specPath, offset, rec.size, v.bfOpts()...)
		v.files = append(v.files, bf)
		offset += rec.size
	}

	v.rebuildIndex()
	v.index.CheckContiguous()
	v.counters.incManifestParses()

	if v.hashTree != nil {
		if total, ok := v.hashTree.TotalSize(); ok && total != offset {
			return fmt.Errorf("%w: hash tree reports %d, manifest totals %d", ErrSizeMismatch, total, offset)
		}
	}
	return nil
}

// Write dispatches by state per spec.md §4.3.2.
func (v *Volume) Write(buf []byte, off int64) (int, error) {
	switch v.state {
	case stateSingleFile:
		return v.writeSingle(buf, off)

	case stateInit:
		if off != 0 {
			return -1, fmt.Errorf("%w: first write to an uninitialized volume must be at offset 0, got %d", ErrInvalidArgument, off)
		}
		if bytes.HasPrefix(buf, []byte(SentinelName)) {
			size, ok := parseInlineSpecSize(buf)
			if !ok {
				return -1, fmt.Errorf("%w: could not parse inline multifile-spec header", ErrParse)
			}
			v.specSize = size
			manifest := backingfile.New(v.fsys, v.rootPath, v.rootPath, 0, size, v.bfOpts()...)
			v.files = []*backingfile.BackingFile{manifest}
			v.rebuildIndex()
			return v.writeSpecPart(manifest, buf, off)
		}
		if err := v.openSingle(); err != nil {
			return -1, err
		}
		return v.Write(buf, off)

	case stateMFSpecSizeKnown:
		return v.writeSpecPart(v.files[0], buf, off)

	case stateMFSpecComplete:
		return v.writeComplete(buf, off)

	default:
		return -1, fmt.Errorf("%w: unknown state %v", ErrInvalidArgument, v.state)
	}
}

func (v *Volume) writeSingle(buf []byte, off int64) (int, error) {
	n, err := v.singleFile.WriteAt(buf, off)
	v.counters.addWritten(int64(n))
	return n, err
}

// writeSpecPart writes into the manifest's own BackingFile and watches for
// its last byte to arrive (spec.md §4.3.3).
func (v *Volume) writeSpecPart(manifest *backingfile.BackingFile, buf []byte, off int64) (int, error) {
	headLen, tailLen, err := writeBuffer(manifest, buf, off)
	if err != nil {
		return -1, err
	}
	v.counters.addWritten(int64(headLen))

	if off+int64(headLen) == manifest.End()+1 {
		v.state = stateMFSpecComplete
		if err := v.parseSpecFromDisk(manifest); err != nil {
			return headLen, err
		}
		if tailLen > 0 {
			n2, err2 := v.Write(buf[headLen:], off+int64(headLen))
			if err2 != nil {
				return headLen, err2
			}
			return headLen + n2, nil
		}
		return headLen, nil
	}

	v.state = stateMFSpecSizeKnown
	return headLen, nil
}

func (v *Volume) writeComplete(buf []byte, off int64) (int, error) {
	bf, ok := v.index.FindByOffset(off)
	if !ok {
		return -1, fmt.Errorf("%w: offset %d is outside the volume", ErrInvalidArgument, off)
	}
	headLen, tailLen, err := writeBuffer(bf, buf, off)
	if err != nil {
		return -1, err
	}
	v.counters.addWritten(int64(headLen))

	if tailLen > 0 {
		n2, err2 := v.Write(buf[headLen:], off+int64(headLen))
		if err2 != nil {
			// Head landed; report it so the caller retries the remainder
			// rather than losing track of the already-written bytes
			// (spec.md §7, "Partial writes across file boundaries").
			return headLen, err2
		}
		return headLen + n2, nil
	}
	return headLen, nil
}

// writeBuffer writes as much of buf as fits in bf starting at the absolute
// logical offset off, and reports how many bytes overflowed into the next
// file (spec.md §4.3.2, WriteBuffer).
func writeBuffer(bf *backingfile.BackingFile, buf []byte, off int64) (headLen, tailLen int, err error) {
	localOff := off - bf.Start()
	if off+int64(len(buf)) <= bf.End()+1 {
		n, err := bf.Write(buf, localOff)
		return n, 0, err
	}
	head := bf.End() + 1 - off
	n, err := bf.Write(buf[:head], localOff)
	if err != nil {
		return n, 0, err
	}
	return n, len(buf) - int(head), nil
}

// Read dispatches by state per spec.md §4.3.6.
func (v *Volume) Read(buf []byte, off int64) (int, error) {
	switch v.state {
	case stateSingleFile:
		n, err := v.singleFile.ReadAt(buf, off)
		v.counters.addRead(int64(n))
		return n, err

	case stateInit:
		return -1, fmt.Errorf("%w: read on an uninitialized volume", ErrInvalidArgument)

	case stateMFSpecSizeKnown, stateMFSpecComplete:
		return v.readMulti(buf, off)

	default:
		return -1, fmt.Errorf("%w: unknown state %v", ErrInvalidArgument, v.state)
	}
}

func (v *Volume) readMulti(buf []byte, off int64) (int, error) {
	bf, ok := v.index.FindByOffset(off)
	if !ok {
		return -1, fmt.Errorf("%w: offset %d is outside the volume", ErrInvalidArgument, off)
	}
	n, err := bf.Read(buf, off-bf.Start())
	if err != nil && err != io.EOF {
		return n, err
	}
	v.counters.addRead(int64(n))

	total, knownTotal := v.totalSize()
	if n < len(buf) && knownTotal && off+int64(n) != total {
		// Short read that hasn't reached genuine end-of-data: it straddled
		// a BackingFile boundary, recurse for the rest (spec.md §4.3.6).
		n2, err2 := v.Read(buf[n:], off+int64(n))
		if err2 != nil {
			return n, err2
		}
		return n + n2, nil
	}
	return n, nil
}

// totalSize returns the authored total size of the volume if known, per
// spec.md §9's resolution of the "short read tail" open question: the
// manifest (once complete) is authoritative, and a HashTree collaborator is
// only consulted to detect a mismatch at manifest-parse time, not to drive
// read recursion.
func (v *Volume) totalSize() (int64, bool) {
	if v.state == stateMFSpecComplete && len(v.files) > 0 {
		last := v.files[len(v.files)-1]
		return last.End() + 1, true
	}
	return 0, false
}

// ResizeReserved pre-allocates the backing storage so that positional I/O
// at arbitrary offsets in [0, size) will succeed (spec.md §4.3.7).
func (v *Volume) ResizeReserved(size int64) error {
	switch v.state {
	case stateSingleFile:
		return v.resizeSingle(size)

	case stateInit:
		v.postponedReserve.Set(size)
		return nil

	case stateMFSpecSizeKnown:
		return fmt.Errorf("%w: manifest size known but not yet complete", ErrNotReady)

	case stateMFSpecComplete:
		cur, err := v.GetReservedSize()
		if err != nil {
			return err
		}
		if size <= cur {
			return nil
		}
		for _, f := range v.files {
			if err := f.ResizeReserved(); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown state %v", ErrInvalidArgument, v.state)
	}
}

func (v *Volume) resizeSingle(size int64) error {
	return v.singleFile.Truncate(size)
}

// GetReservedSize returns the current on-disk size backing this volume
// (spec.md §4.3.7).
func (v *Volume) GetReservedSize() (int64, error) {
	switch v.state {
	case stateSingleFile:
		fi, err := v.fsys.Stat(v.rootPath)
		if err != nil {
			return 0, err
		}
		return fi.Size(), nil

	case stateMFSpecComplete:
		var total int64
		for _, f := range v.files {
			fi, err := v.fsys.Stat(f.OSPath())
			if err != nil {
				return 0, err
			}
			total += fi.Size()
		}
		return total, nil

	default:
		return 0, fmt.Errorf("%w: reserved size unavailable in state %v", ErrNotReady, v.state)
	}
}

// State reports the current lifecycle state, for tests and the CLI.
func (v *Volume) State() string { return v.state.String() }

// Err surfaces a construction-time failure observed by New, if any
// (spec.md §7, "Construction failures do not throw").
func (v *Volume) Err() error { return v.constructErr }

// Files returns the ordered BackingFiles backing a complete multi-file
// volume, or nil otherwise.
func (v *Volume) Files() []*backingfile.BackingFile {
	if v.state != stateMFSpecComplete {
		return nil
	}
	return v.files
}

// SpecToOSPath and OSToSpecPath are the static path-translation helpers
// named in spec.md §6.3.
func SpecToOSPath(specPath string) string { return backingfile.SpecToOSPath(specPath) }
func OSToSpecPath(osPath string) string   { return backingfile.OSToSpecPath(osPath) }

// Close releases every open handle owned by this Volume.
func (v *Volume) Close() error {
	var err error
	if v.singleFile != nil {
		err = v.singleFile.Close()
		v.singleFile = nil
	}
	for _, f := range v.files {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
