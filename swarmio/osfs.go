package swarmio

import "os"

// Default permissions for files and directories materialized on disk.
// Matches the original implementation's S_IRUSR|S_IWUSR|S_IRGRP|S_IROTH for
// files, with the execute bit added on directories so they can be
// traversed.
const (
	filePerm = 0o644
	dirPerm  = 0o755
)

// OSFileSystem is the default FileSystem, backed directly by the os
// package. It is the only FileSystem implementation wired into cmd/swarmvol
// and into volume.New's default options.
type OSFileSystem struct{}

var _ FileSystem = OSFileSystem{}

func (OSFileSystem) Stat(path string) (FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return osFileInfo{fi}, nil
}

func (OSFileSystem) MkdirAll(path string) error {
	return os.MkdirAll(path, dirPerm)
}

func (OSFileSystem) OpenFile(path string) (File, error) {
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, filePerm)
}

type osFileInfo struct {
	os.FileInfo
}

func (o osFileInfo) Size() int64 { return o.FileInfo.Size() }
func (o osFileInfo) IsDir() bool { return o.FileInfo.IsDir() }
