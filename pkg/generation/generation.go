// Package generation manages numbered snapshot directories of decrypted
// secrets on the staging mountpoint and the "current" symlink that selects
// the active one.
package generation

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/chuangzhu/agenix/pkg/secrets"
)

const DirMode fs.FileMode = 0o751

type Generation struct {
	ID       int
	Path     string
	Previous int
}

type Manager struct {
	fs         FS
	mounter    Mounter
	mountpoint string
	current    string
}

func NewManager(c *Config, fsys FS, mounter Mounter) *Manager {
	if fsys == nil {
		fsys = OSFS{}
	}
	if mounter == nil || !c.Mount {
		mounter = NoopMounter{}
	}
	return &Manager{
		fs:         fsys,
		mounter:    mounter,
		mountpoint: c.Mountpoint,
		current:    c.SecretsDir,
	}
}

func (m *Manager) Mountpoint() string { return m.mountpoint }

// Current is the path of the symlink pointing at the published generation.
func (m *Manager) Current() string { return m.current }

func (m *Manager) PathFor(id int) string {
	return filepath.Join(m.mountpoint, strconv.Itoa(id))
}

// EnsureMount makes the staging mountpoint exist with mode 0751 on an
// in-memory filesystem. It is safe to call on every run.
func (m *Manager) EnsureMount() error {
	if err := m.mounter.EnsureMount(m.mountpoint); err != nil {
		if errors.Is(err, secrets.ErrMount) {
			return err
		}
		return fmt.Errorf("%w: %v", secrets.ErrMount, err)
	}
	if err := m.fs.MkdirAll(m.mountpoint, DirMode); err != nil {
		return fmt.Errorf("%w: error creating %v: %v", secrets.ErrMount, m.mountpoint, err)
	}
	if err := m.fs.Chmod(m.mountpoint, DirMode); err != nil {
		return fmt.Errorf("%w: error setting mode on %v: %v", secrets.ErrMount, m.mountpoint, err)
	}
	return nil
}

// CurrentID returns the id of the published generation, or 0 when the
// current symlink is missing or does not name a generation.
func (m *Manager) CurrentID() int {
	target, err := m.fs.Readlink(m.current)
	if err != nil {
		return 0
	}
	id, ok := parseID(filepath.Base(target))
	if !ok {
		return 0
	}
	return id
}

// NextID returns the id the next call to Begin will use.
func (m *Manager) NextID() (int, error) {
	ids, err := m.ids()
	if err != nil {
		return 0, err
	}
	next := m.CurrentID()
	if len(ids) > 0 {
		next = max(next, ids[len(ids)-1])
	}
	return next + 1, nil
}

// Begin consumes the next generation id and creates its directory. Ids of
// abandoned generations left behind by failed runs are skipped.
func (m *Manager) Begin() (*Generation, error) {
	prev := m.CurrentID()
	next, err := m.NextID()
	if err != nil {
		return nil, err
	}
	g := &Generation{
		ID:       next,
		Path:     m.PathFor(next),
		Previous: prev,
	}
	if err := m.fs.Mkdir(g.Path, DirMode); err != nil {
		return nil, fmt.Errorf("%w: error creating generation %v: %v", secrets.ErrFilesystem, g.ID, err)
	}
	if err := m.fs.Chmod(g.Path, DirMode); err != nil {
		return nil, fmt.Errorf("%w: error setting mode on generation %v: %v", secrets.ErrFilesystem, g.ID, err)
	}
	log.Debug("began generation", "generation", g.ID, "previous", g.Previous)
	return g, nil
}

// Publish repoints the current symlink at g. The new link is created under
// a temporary name and renamed over the old one.
func (m *Manager) Publish(g *Generation) error {
	if err := m.fs.MkdirAll(filepath.Dir(m.current), 0o755); err != nil {
		return fmt.Errorf("%w: error creating %v: %v", secrets.ErrFilesystem, filepath.Dir(m.current), err)
	}
	tmp := m.current + ".tmp"
	if err := m.fs.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: error removing stale link %v: %v", secrets.ErrFilesystem, tmp, err)
	}
	if err := m.fs.Symlink(g.Path, tmp); err != nil {
		return fmt.Errorf("%w: error creating link %v: %v", secrets.ErrFilesystem, tmp, err)
	}
	if err := m.fs.Rename(tmp, m.current); err != nil {
		_ = m.fs.Remove(tmp)
		return fmt.Errorf("%w: error publishing generation %v: %v", secrets.ErrFilesystem, g.ID, err)
	}
	log.Info("published generation", "generation", g.ID, "path", m.current)
	return nil
}

// RetireOld removes the directory of a superseded generation. Failures are
// logged and otherwise ignored.
func (m *Manager) RetireOld(previous int) {
	if previous <= 0 {
		return
	}
	if previous == m.CurrentID() {
		log.Warn("not removing published generation", "generation", previous)
		return
	}
	if err := m.fs.RemoveAll(m.PathFor(previous)); err != nil {
		log.Warn("error removing old generation", "generation", previous, "error", err)
		return
	}
	log.Debug("removed old generation", "generation", previous)
}

// Prune removes every generation directory other than keep and the
// published one, returning the ids it removed.
func (m *Manager) Prune(keep int) []int {
	ids, err := m.ids()
	if err != nil {
		log.Warn("error listing generations", "error", err)
		return nil
	}
	current := m.CurrentID()
	var removed []int
	for _, id := range ids {
		if id == keep || id == current {
			continue
		}
		if err := m.fs.RemoveAll(m.PathFor(id)); err != nil {
			log.Warn("error removing abandoned generation", "generation", id, "error", err)
			continue
		}
		removed = append(removed, id)
	}
	if len(removed) > 0 {
		log.Debug("pruned generations", "generations", removed)
	}
	return removed
}

// ChownStaging hands group ownership of the mountpoint and g to gid so
// members of that group can traverse to their secrets.
func (m *Manager) ChownStaging(g *Generation, gid int) error {
	for _, p := range []string{m.mountpoint, g.Path} {
		if err := m.fs.Lchown(p, -1, gid); err != nil {
			return fmt.Errorf("%w: error changing group of %v: %v", secrets.ErrFilesystem, p, err)
		}
	}
	return nil
}

// Listing returns the names of the entries in generation id.
func (m *Manager) Listing(id int) ([]string, error) {
	if id <= 0 {
		return nil, nil
	}
	entries, err := m.fs.ReadDir(m.PathFor(id))
	if err != nil {
		return nil, fmt.Errorf("%w: error reading generation %v: %v", secrets.ErrFilesystem, id, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

// ids lists the numeric generation directories in ascending order.
func (m *Manager) ids() ([]int, error) {
	entries, err := m.fs.ReadDir(m.mountpoint)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: error reading %v: %v", secrets.ErrFilesystem, m.mountpoint, err)
	}
	var ids []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if id, ok := parseID(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func parseID(name string) (int, bool) {
	id, err := strconv.Atoi(name)
	if err != nil || id <= 0 || strconv.Itoa(id) != name {
		return 0, false
	}
	return id, true
}
