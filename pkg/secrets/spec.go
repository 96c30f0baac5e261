package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultMode  = "0400"
	DefaultOwner = "0"

	tempSuffix = ".tmp"
)

// SecretSpec is one secret to materialize. Specs are immutable once built
// with NewSpec.
type SecretSpec struct {
	Name    string `toml:"name" json:"name" yaml:"name"`
	File    string `toml:"file" json:"file" yaml:"file"`
	Path    string `toml:"path" json:"path" yaml:"path"`
	Mode    string `toml:"mode" json:"mode" yaml:"mode"`
	Owner   string `toml:"owner" json:"owner" yaml:"owner"`
	Group   string `toml:"group" json:"group" yaml:"group"`
	Symlink bool   `toml:"symlink" json:"symlink" yaml:"symlink"`
}

// RawSpec is a spec as written by the user, before defaults are applied.
type RawSpec struct {
	File    string `toml:"file" json:"file" yaml:"file"`
	Path    string `toml:"path" json:"path" yaml:"path"`
	Mode    string `toml:"mode" json:"mode" yaml:"mode"`
	Owner   string `toml:"owner" json:"owner" yaml:"owner"`
	Group   string `toml:"group" json:"group" yaml:"group"`
	Symlink *bool  `toml:"symlink" json:"symlink" yaml:"symlink"`
}

// NewSpec applies defaults to raw and validates the result. secretsDir is
// the stable "current" path used for the default destination.
func NewSpec(name string, raw RawSpec, secretsDir string) (SecretSpec, error) {
	s := SecretSpec{
		Name:    name,
		File:    raw.File,
		Path:    raw.Path,
		Mode:    raw.Mode,
		Owner:   raw.Owner,
		Group:   raw.Group,
		Symlink: true,
	}
	if raw.Symlink != nil {
		s.Symlink = *raw.Symlink
	}
	if s.Mode == "" {
		s.Mode = DefaultMode
	}
	if s.Owner == "" {
		s.Owner = DefaultOwner
	}
	if s.Group == "" && IsRootAccount(s.Owner) {
		s.Group = "0"
	}
	if s.Path == "" {
		s.Path = filepath.Join(secretsDir, name)
	} else if filepath.IsAbs(s.Path) {
		s.Path = filepath.Clean(s.Path)
	}
	if err := s.Validate(); err != nil {
		return SecretSpec{}, err
	}
	if err := s.CheckDestination(secretsDir); err != nil {
		return SecretSpec{}, err
	}
	return s, nil
}

func (s SecretSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: secret without name", ErrConfiguration)
	}
	if strings.ContainsRune(s.Name, os.PathSeparator) || s.Name == "." || s.Name == ".." {
		return fmt.Errorf("%w: invalid secret name %q", ErrConfiguration, s.Name)
	}
	if strings.HasSuffix(s.Name, tempSuffix) {
		return fmt.Errorf("%w: secret name %q ends in %v, which is reserved for temporary files", ErrConfiguration, s.Name, tempSuffix)
	}
	if s.File == "" {
		return fmt.Errorf("%w: secret %v has no source file", ErrConfiguration, s.Name)
	}
	if !filepath.IsAbs(s.Path) {
		return fmt.Errorf("%w: secret %v destination %q is not absolute", ErrConfiguration, s.Name, s.Path)
	}
	if _, err := s.FileMode(); err != nil {
		return fmt.Errorf("%w: secret %v: %v", ErrConfiguration, s.Name, err)
	}
	if s.Owner == "" {
		return fmt.Errorf("%w: secret %v has no owner", ErrConfiguration, s.Name)
	}
	return nil
}

// FileMode parses the octal permission string.
func (s SecretSpec) FileMode() (os.FileMode, error) {
	mode, err := strconv.ParseUint(s.Mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: expected an octal number such as 0400", s.Mode)
	}
	if mode > 0o7777 {
		return 0, fmt.Errorf("invalid mode %q: out of range", s.Mode)
	}
	perm := os.FileMode(mode & 0o777)
	if mode&0o4000 != 0 {
		perm |= os.ModeSetuid
	}
	if mode&0o2000 != 0 {
		perm |= os.ModeSetgid
	}
	if mode&0o1000 != 0 {
		perm |= os.ModeSticky
	}
	return perm, nil
}

// IsRootOwned reports whether both owner and group are the root account.
// Such secrets can be installed before the user database exists.
func (s SecretSpec) IsRootOwned() bool {
	return IsRootAccount(s.Owner) && IsRootAccount(s.Group)
}

// CanonicalPath is where the secret resolves through the current generation.
func (s SecretSpec) CanonicalPath(secretsDir string) string {
	return filepath.Join(secretsDir, s.Name)
}

// CheckDestination rejects destinations inside secretsDir other than the
// canonical path. secretsDir resolves into a generation, so anything else
// placed there would land in a generation that gets retired.
func (s SecretSpec) CheckDestination(secretsDir string) error {
	p := filepath.Clean(s.Path)
	if p == s.CanonicalPath(secretsDir) {
		return nil
	}
	rel, err := filepath.Rel(filepath.Clean(secretsDir), p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return nil
	}
	return fmt.Errorf("%w: secret %v destination %q is inside %v but is not %v", ErrConfiguration, s.Name, s.Path, secretsDir, s.CanonicalPath(secretsDir))
}

func (s SecretSpec) String() string {
	return fmt.Sprintf("%v (%v -> %v, mode %v, %v:%v, symlink %v)", s.Name, s.File, s.Path, s.Mode, s.Owner, s.Group, s.Symlink)
}

func IsRootAccount(name string) bool {
	return name == "root" || name == "0"
}
