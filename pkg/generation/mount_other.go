//go:build !linux

package generation

import (
	"fmt"

	"github.com/chuangzhu/agenix/pkg/secrets"
)

type RamfsMounter struct {
	MountsFile string
}

func NewRamfsMounter() *RamfsMounter {
	return &RamfsMounter{}
}

func (r *RamfsMounter) EnsureMount(path string) error {
	return fmt.Errorf("%w: in-memory staging filesystems are only supported on linux", secrets.ErrMount)
}
