package volume

import "errors"

// Error taxonomy (spec.md §7). Each sentinel is returned wrapped with
// context via fmt.Errorf's %w so callers can errors.Is against the
// sentinel while still getting a useful message.
var (
	// ErrInvalidArgument covers: a write at nonzero offset while INIT, a
	// read while INIT, and a lookup of an offset outside the logical
	// volume.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnsafePath covers a manifest entry that is absolute or contains a
	// ".." segment.
	ErrUnsafePath = errors.New("unsafe manifest path")

	// ErrParse covers a manifest size field that doesn't parse as a
	// non-negative decimal integer, or a line that is otherwise malformed.
	ErrParse = errors.New("malformed manifest")

	// ErrNotReady is returned by ResizeReserved when called in
	// MFSPEC_SIZE_KNOWN, and by GetReservedSize in any state other than
	// SINGLE_FILE or MFSPEC_COMPLETE.
	ErrNotReady = errors.New("volume not ready for this operation")

	// ErrSizeMismatch is returned at manifest-completion time when a
	// non-nil HashTree's authored total size disagrees with the sum of the
	// manifest's declared file sizes (spec.md §9, resolution of the "short
	// read tail" open question).
	ErrSizeMismatch = errors.New("hash tree total size disagrees with manifest")
)
