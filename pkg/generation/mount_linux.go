package generation

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/chuangzhu/agenix/pkg/secrets"
	"golang.org/x/sys/unix"
)

// RamfsMounter mounts a ramfs, which is never swapped out, on the staging
// path.
type RamfsMounter struct {
	MountsFile string
}

func NewRamfsMounter() *RamfsMounter {
	return &RamfsMounter{MountsFile: "/proc/mounts"}
}

func (r *RamfsMounter) EnsureMount(path string) error {
	mounted, err := IsMounted(r.MountsFile, path)
	if err != nil {
		return fmt.Errorf("%w: %v", secrets.ErrMount, err)
	}
	if mounted {
		log.Debug("staging filesystem already mounted", "path", path)
		return nil
	}
	if err := os.MkdirAll(path, DirMode); err != nil {
		return fmt.Errorf("%w: error creating %v: %v", secrets.ErrMount, path, err)
	}
	flags := uintptr(unix.MS_NODEV | unix.MS_NOSUID | unix.MS_NOEXEC)
	if err := unix.Mount("none", path, "ramfs", flags, "mode=0751"); err != nil {
		return fmt.Errorf("%w: error mounting ramfs on %v: %v", secrets.ErrMount, path, err)
	}
	log.Info("mounted staging filesystem", "path", path)
	return nil
}
