//go:build linux

package file

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential asks the kernel for aggressive readahead. Failure is
// harmless and ignored.
func adviseSequential(f *os.File, off int64) {
	_ = unix.Fadvise(int(f.Fd()), off, 0, unix.FADV_SEQUENTIAL)
}
