package volume

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-quicktest/qt"
)

// Entries that try to escape the swarm's own directory, either by being
// absolute or by walking up a level.
var unsafeSpecPathTests = []struct {
	specPath  string
	expectErr bool
}{
	{specPath: "a/b", expectErr: false},
	{specPath: "c", expectErr: false},
	{specPath: "a/../b", expectErr: true},
	{specPath: "../b", expectErr: true},
	{specPath: "/etc/passwd", expectErr: true},
	{specPath: "..", expectErr: true},
}

func TestValidateSpecPath(t *testing.T) {
	for i, _case := range unsafeSpecPathTests {
		t.Run(fmt.Sprintf("Case%v", i), func(t *testing.T) {
			err := validateSpecPath(_case.specPath)
			if _case.expectErr {
				qt.Check(t, qt.Not(qt.IsNil(err)))
				qt.Check(t, qt.IsTrue(errors.Is(err, ErrUnsafePath)))
			} else {
				qt.Check(t, qt.IsNil(err))
			}
		})
	}
}

func TestParseManifestLine(t *testing.T) {
	rec, err := parseManifestLine("a/b 3")
	qt.Assert(t, qt.IsNil(err))
	qt.Check(t, qt.Equals(rec.specPath, "a/b"))
	qt.Check(t, qt.Equals(rec.size, int64(3)))

	_, err = parseManifestLine("a/b -1")
	qt.Check(t, qt.Not(qt.IsNil(err)))

	_, err = parseManifestLine("nofieldhere")
	qt.Check(t, qt.Not(qt.IsNil(err)))
}

func TestParseInlineSpecSize(t *testing.T) {
	size, ok := parseInlineSpecSize([]byte("META-INF-multifilespec.txt 40\nrest"))
	qt.Assert(t, qt.IsTrue(ok))
	qt.Check(t, qt.Equals(size, int64(40)))

	_, ok = parseInlineSpecSize([]byte("not a manifest at all"))
	qt.Check(t, qt.IsFalse(ok))

	_, ok = parseInlineSpecSize([]byte("META-INF-multifilespec.txt"))
	qt.Check(t, qt.IsFalse(ok))
}
