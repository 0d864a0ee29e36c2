// Inspects and manipulates swarm volumes from the command line.
//
// Example run:
// $ go run cmd/swarmvol/main.go inspect ./downloads/META-INF-multifilespec.txt
package main

import (
	"fmt"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/anacrolix/envpprof"
	"github.com/anacrolix/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/anacrolix/swarmvol/volume"
)

type InspectCmd struct {
	Path string `arg:"positional" help:"path to the volume's root (a single file, or a multi-file manifest)"`
}

type ReserveCmd struct {
	Path string `arg:"positional" help:"path to the volume's root"`
	Size int64  `arg:"positional" help:"total size to reserve, in bytes"`
}

type VerifyCmd struct {
	Path  string `arg:"positional" help:"path to the volume's root"`
	Jobs  int    `default:"4" help:"number of files to stat concurrently"`
}

var flags struct {
	*InspectCmd `arg:"subcommand:inspect"`
	*ReserveCmd `arg:"subcommand:reserve"`
	*VerifyCmd  `arg:"subcommand:verify"`
}

func main() {
	defer envpprof.Stop()
	if err := mainErr(); err != nil {
		log.Printf("error in main: %v", err)
		os.Exit(1)
	}
}

func mainErr() error {
	p := arg.MustParse(&flags)
	switch {
	case flags.InspectCmd != nil:
		return inspectErr(flags.InspectCmd)
	case flags.ReserveCmd != nil:
		return reserveErr(flags.ReserveCmd)
	case flags.VerifyCmd != nil:
		return verifyErr(flags.VerifyCmd)
	default:
		p.Fail(fmt.Sprintf("unexpected subcommand: %v", p.Subcommand()))
		panic("unreachable")
	}
}

func inspectErr(cmd *InspectCmd) error {
	v := volume.New(cmd.Path)
	defer v.Close()
	if err := v.Err(); err != nil {
		return fmt.Errorf("opening volume: %w", err)
	}

	fmt.Printf("state: %s\n", v.State())
	files := v.Files()
	if files == nil {
		reserved, err := v.GetReservedSize()
		if err != nil {
			fmt.Printf("reserved size unavailable: %v\n", err)
			return nil
		}
		fmt.Printf("reserved: %s\n", humanize.Bytes(uint64(reserved)))
		return nil
	}

	var total int64
	for _, f := range files {
		fmt.Printf("  %-40s %12s  [%d, %d]\n", f.GetSpecPathName(), humanize.Bytes(uint64(f.GetSize())), f.Start(), f.End())
		total += f.GetSize()
	}
	fmt.Printf("total: %s across %d files\n", humanize.Bytes(uint64(total)), len(files))
	return nil
}

func reserveErr(cmd *ReserveCmd) error {
	v := volume.New(cmd.Path)
	defer v.Close()
	if err := v.Err(); err != nil {
		return fmt.Errorf("opening volume: %w", err)
	}
	if err := v.ResizeReserved(cmd.Size); err != nil {
		return fmt.Errorf("reserving %s: %w", humanize.Bytes(uint64(cmd.Size)), err)
	}
	return nil
}

// verifyErr stats every backing file concurrently and returns an error for
// the first file found whose on-disk size disagrees with its declared
// manifest size.
func verifyErr(cmd *VerifyCmd) error {
	v := volume.New(cmd.Path)
	defer v.Close()
	if err := v.Err(); err != nil {
		return fmt.Errorf("opening volume: %w", err)
	}
	files := v.Files()
	if files == nil {
		fmt.Println("not a multi-file volume, nothing to verify")
		return nil
	}

	var eg errgroup.Group
	eg.SetLimit(cmd.Jobs)
	for _, f := range files {
		f := f
		eg.Go(func() error {
			fi, err := os.Stat(f.OSPath())
			if err != nil {
				return fmt.Errorf("%s: %w", f.GetSpecPathName(), err)
			}
			if fi.Size() != f.GetSize() {
				return fmt.Errorf("%s: on disk %d bytes, manifest declares %d", f.GetSpecPathName(), fi.Size(), f.GetSize())
			}
			return nil
		})
	}
	return eg.Wait()
}
