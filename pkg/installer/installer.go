// Package installer decrypts a single secret into place with its final
// permissions and ownership.
package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/chuangzhu/agenix/pkg/accounts"
	"github.com/chuangzhu/agenix/pkg/decrypt"
	"github.com/chuangzhu/agenix/pkg/generation"
	"github.com/chuangzhu/agenix/pkg/secrets"
	"golang.org/x/sys/unix"
)

// decryptUmask leaves only the owner read bit on files created while
// decrypting.
const decryptUmask = 0o277

type Installer struct {
	decryptor  decrypt.Decryptor
	resolver   accounts.Resolver
	secretsDir string
	identities []string
	// Chown changes ownership of a file without following symlinks.
	Chown func(path string, uid, gid int) error
}

func New(d decrypt.Decryptor, r accounts.Resolver, secretsDir string, identities []string) (*Installer, error) {
	if len(identities) == 0 {
		return nil, fmt.Errorf("%w: no identities to decrypt with", secrets.ErrConfiguration)
	}
	return &Installer{
		decryptor:  d,
		resolver:   r,
		secretsDir: secretsDir,
		identities: identities,
		Chown:      os.Lchown,
	}, nil
}

// Installed describes a secret after a successful install.
type Installed struct {
	Name string
	// File is the regular file holding the plaintext.
	File string
	// Path is where consumers find the secret.
	Path string
	Mode os.FileMode
	UID  int
	GID  int
}

// Install decrypts spec into g. Secrets that live under the current
// generation are written into g itself; the rest are written straight to
// their destination.
func (i *Installer) Install(ctx context.Context, spec secrets.SecretSpec, g *generation.Generation) (*Installed, error) {
	res, err := i.install(ctx, spec, g)
	if err != nil {
		return nil, &secrets.InstallError{Secret: spec.Name, Err: err}
	}
	return res, nil
}

func (i *Installer) install(ctx context.Context, spec secrets.SecretSpec, g *generation.Generation) (*Installed, error) {
	mode, err := spec.FileMode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", secrets.ErrConfiguration, err)
	}
	if err := spec.CheckDestination(i.secretsDir); err != nil {
		return nil, err
	}
	uid, gid, err := i.resolveOwnership(spec)
	if err != nil {
		return nil, err
	}

	canonical := spec.CanonicalPath(i.secretsDir)
	dest := spec.Path
	if spec.Symlink || spec.Path == canonical {
		dest = filepath.Join(g.Path, spec.Name)
	}
	if err := i.makeParents(spec, dest, canonical); err != nil {
		return nil, err
	}

	tmp := dest + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: error removing stale %v: %v", secrets.ErrFilesystem, tmp, err)
	}
	log.Debug("decrypting secret", "secret", spec.Name, "source", spec.File, "path", dest)
	if err := i.decrypt(ctx, spec.File, tmp); err != nil {
		cleanup(tmp)
		return nil, err
	}
	if err := os.Chmod(tmp, mode); err != nil {
		cleanup(tmp)
		return nil, fmt.Errorf("%w: error setting mode on %v: %v", secrets.ErrFilesystem, tmp, err)
	}
	if err := i.Chown(tmp, uid, gid); err != nil {
		cleanup(tmp)
		return nil, fmt.Errorf("%w: error changing owner of %v: %v", secrets.ErrFilesystem, tmp, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		cleanup(tmp)
		return nil, fmt.Errorf("%w: error moving %v into place: %v", secrets.ErrFilesystem, dest, err)
	}

	if spec.Symlink && spec.Path != canonical {
		if err := replaceSymlink(canonical, spec.Path); err != nil {
			return nil, err
		}
	}
	log.Info("installed secret", "secret", spec.Name, "path", spec.Path)
	return &Installed{
		Name: spec.Name,
		File: dest,
		Path: spec.Path,
		Mode: mode,
		UID:  uid,
		GID:  gid,
	}, nil
}

func (i *Installer) decrypt(ctx context.Context, input, output string) error {
	old := unix.Umask(decryptUmask)
	defer unix.Umask(old)
	err := i.decryptor.Decrypt(ctx, i.identities, input, output)
	if err == nil {
		return nil
	}
	if errors.Is(err, secrets.ErrDecryption) || errors.Is(err, secrets.ErrFilesystem) || errors.Is(err, secrets.ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %v: %v", secrets.ErrDecryption, input, err)
}

// resolveOwnership maps owner and group to ids. A missing group falls back
// to the owner's primary group and then to root.
func (i *Installer) resolveOwnership(spec secrets.SecretSpec) (int, int, error) {
	uid, err := i.resolver.LookupUser(spec.Owner)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: owner %v: %v", secrets.ErrOwnership, spec.Owner, err)
	}
	group := spec.Group
	if group == "" {
		group, err = i.resolver.ResolveGroup(spec.Owner)
		if err != nil {
			if !errors.Is(err, accounts.ErrNotFound) {
				return 0, 0, fmt.Errorf("%w: primary group of %v: %v", secrets.ErrOwnership, spec.Owner, err)
			}
			group = "0"
		}
	}
	gid, err := i.resolver.LookupGroup(group)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: group %v: %v", secrets.ErrOwnership, group, err)
	}
	return uid, gid, nil
}

// makeParents creates the directories above dest and above the
// destination path. The secrets directory itself is the current symlink
// and is left alone.
func (i *Installer) makeParents(spec secrets.SecretSpec, dest, canonical string) error {
	dirs := []string{filepath.Dir(dest)}
	if spec.Path != canonical && filepath.Dir(spec.Path) != i.secretsDir {
		dirs = append(dirs, filepath.Dir(spec.Path))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("%w: error creating %v: %v", secrets.ErrFilesystem, d, err)
		}
	}
	return nil
}

// replaceSymlink points link at target, leaving link untouched when it
// already does.
func replaceSymlink(target, link string) error {
	if current, err := os.Readlink(link); err == nil && current == target {
		return nil
	}
	tmp := filepath.Join(filepath.Dir(link), "."+filepath.Base(link)+".tmp")
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: error removing stale link %v: %v", secrets.ErrFilesystem, tmp, err)
	}
	if err := os.Symlink(target, tmp); err != nil {
		return fmt.Errorf("%w: error creating link %v: %v", secrets.ErrFilesystem, tmp, err)
	}
	if err := os.Rename(tmp, link); err != nil {
		cleanup(tmp)
		return fmt.Errorf("%w: error replacing %v: %v", secrets.ErrFilesystem, link, err)
	}
	return nil
}

func cleanup(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("error removing temporary file", "path", path, "error", err)
	}
}
