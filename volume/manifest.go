package volume

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/anacrolix/swarmvol/backingfile"
)

// SentinelName is both the on-disk manifest filename and the magic prefix
// in chunk 0 that identifies a volume as multi-file (spec.md §6.1).
const SentinelName = "META-INF-multifilespec.txt"

// record is one parsed manifest line: "<spec_path> <decimal_size>\n".
type record struct {
	specPath string
	size     int64
}

// parseManifestLine splits a manifest line on its LAST space, validates
// path safety, and parses the trailing decimal size (spec.md §4.3.4).
func parseManifestLine(line string) (record, error) {
	line = strings.TrimRight(line, "\r\n")
	idx := strings.LastIndexByte(line, ' ')
	if idx < 0 {
		return record{}, fmt.Errorf("%w: no size field in %q", ErrParse, line)
	}
	specPath, sizeStr := line[:idx], line[idx+1:]

	if err := validateSpecPath(specPath); err != nil {
		return record{}, err
	}

	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil || size < 0 {
		return record{}, fmt.Errorf("%w: bad size field %q in %q", ErrParse, sizeStr, line)
	}

	return record{specPath: specPath, size: size}, nil
}

// validateSpecPath rejects manifest entries that try to escape the swarm's
// directory (spec.md §4.3.4, invariant #3).
func validateSpecPath(specPath string) error {
	if strings.HasPrefix(specPath, backingfile.Separator) {
		return fmt.Errorf("%w: %q starts with %q", ErrUnsafePath, specPath, backingfile.Separator)
	}
	if strings.Contains(specPath, "..") {
		return fmt.Errorf("%w: %q contains \"..\"", ErrUnsafePath, specPath)
	}
	return nil
}

// parseManifest reads newline-terminated "<spec_path> <decimal_size>"
// records from r. The first record (describing the manifest itself) is
// always returned as records[0]; callers skip it when they already have a
// BackingFile for the manifest entry (spec.md §4.3.4, step 4).
func parseManifest(r io.Reader) ([]record, error) {
	var recs []record
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		rec, err := parseManifestLine(line)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading manifest: %v", ErrParse, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: empty manifest", ErrParse)
	}
	return recs, nil
}

// parseInlineSpecSize extracts the decimal spec_size from the first chunk
// of a leeched multi-file swarm, whose leading bytes are the sentinel
// followed by one separator byte and the decimal size (spec.md §6.1). This
// is exactly the manifest's own first record, arriving inline.
func parseInlineSpecSize(buf []byte) (int64, bool) {
	if len(buf) <= len(SentinelName) {
		return 0, false
	}
	rest := buf[len(SentinelName)+1:]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	size, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, false
	}
	return size, true
}
