package backingfile

import (
	"os"

	"github.com/edsrzf/mmap-go"
)

// mmapOpen memory-maps path read-only. It opens the file directly through
// the os package rather than through swarmio.FileSystem: mmap is a
// real-filesystem optimization with no meaningful in-memory substitute, the
// same way the teacher's mmapFileIo reaches past its fileIo abstraction and
// calls os.Open directly in file-io-mmap.go.
func mmapOpen(osPath string) (mmap.MMap, error) {
	f, err := os.Open(osPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return mmap.Map(f, mmap.RDONLY, 0)
}
