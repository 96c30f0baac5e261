package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"filippo.io/age"
	"github.com/chuangzhu/agenix/internal/mocks"
	"github.com/chuangzhu/agenix/pkg/accounts"
	"github.com/chuangzhu/agenix/pkg/decrypt"
	"github.com/chuangzhu/agenix/pkg/generation"
	"github.com/chuangzhu/agenix/pkg/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	root       string
	secretsDir string
	keyFile    string
	recipient  age.Recipient
	manager    *generation.Manager
	resolver   *accounts.Static
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	keyFile := filepath.Join(root, "host_key")
	require.NoError(t, os.WriteFile(keyFile, []byte(id.String()+"\n"), 0o600))

	c := &generation.Config{
		Mountpoint: filepath.Join(root, "agenix.d"),
		SecretsDir: filepath.Join(root, "agenix"),
	}
	m := generation.NewManager(c, nil, nil)
	require.NoError(t, m.EnsureMount())

	return &fixture{
		root:       root,
		secretsDir: c.SecretsDir,
		keyFile:    keyFile,
		recipient:  id.Recipient(),
		manager:    m,
		resolver: &accounts.Static{
			Users:   map[string]int{"svc": os.Getuid()},
			Groups:  map[string]int{"svcgrp": os.Getgid()},
			Primary: map[string]string{"svc": "svcgrp"},
		},
	}
}

func (f *fixture) encrypt(t *testing.T, name string, plaintext string) string {
	t.Helper()
	path := filepath.Join(f.root, name+".age")
	out, err := os.Create(path)
	require.NoError(t, err)
	w, err := age.Encrypt(out, f.recipient)
	require.NoError(t, err)
	_, err = w.Write([]byte(plaintext))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, out.Close())
	return path
}

func (f *fixture) installer(t *testing.T, d decrypt.Decryptor) *Installer {
	t.Helper()
	i, err := New(d, f.resolver, f.secretsDir, []string{f.keyFile})
	require.NoError(t, err)
	return i
}

func (f *fixture) spec(t *testing.T, name string, raw secrets.RawSpec) secrets.SecretSpec {
	t.Helper()
	if raw.Owner == "" {
		raw.Owner = strconv.Itoa(os.Getuid())
	}
	if raw.Group == "" {
		raw.Group = strconv.Itoa(os.Getgid())
	}
	s, err := secrets.NewSpec(name, raw, f.secretsDir)
	require.NoError(t, err)
	return s
}

func ownership(t *testing.T, path string) (int, int) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	st := info.Sys().(*syscall.Stat_t)
	return int(st.Uid), int(st.Gid)
}

func TestInstallCanonical(t *testing.T) {
	f := newFixture(t)
	src := f.encrypt(t, "db-pass", "hunter2")
	spec := f.spec(t, "db-pass", secrets.RawSpec{File: src})
	g, err := f.manager.Begin()
	require.NoError(t, err)

	res, err := f.installer(t, &decrypt.Native{}).Install(context.Background(), spec, g)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(g.Path, "db-pass"), res.File)
	assert.Equal(t, filepath.Join(f.secretsDir, "db-pass"), res.Path)
	assert.NoFileExists(t, res.File+".tmp")

	// not visible until the generation is published
	_, err = os.Stat(res.Path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, f.manager.Publish(g))
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(data))

	info, err := os.Stat(res.File)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o400), info.Mode().Perm())
}

func TestInstallSymlink(t *testing.T) {
	f := newFixture(t)
	src := f.encrypt(t, "db-pass", "hunter2")
	dest := filepath.Join(f.root, "etc", "app", "db-pass")
	spec := f.spec(t, "db-pass", secrets.RawSpec{File: src, Path: dest})
	i := f.installer(t, &decrypt.Native{})

	for range 2 {
		g, err := f.manager.Begin()
		require.NoError(t, err)
		_, err = i.Install(context.Background(), spec, g)
		require.NoError(t, err)
		require.NoError(t, f.manager.Publish(g))
		f.manager.RetireOld(g.Previous)

		target, err := os.Readlink(dest)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(f.secretsDir, "db-pass"), target)
		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "hunter2", string(data))
	}
	assert.NoFileExists(t, filepath.Join(f.root, "etc", "app", ".db-pass.tmp"))
}

func TestInstallReplacesStaleLink(t *testing.T) {
	f := newFixture(t)
	src := f.encrypt(t, "token", "abc")
	dest := filepath.Join(f.root, "token")
	require.NoError(t, os.Symlink("/nonexistent", dest))
	spec := f.spec(t, "token", secrets.RawSpec{File: src, Path: dest})

	g, err := f.manager.Begin()
	require.NoError(t, err)
	_, err = f.installer(t, &decrypt.Native{}).Install(context.Background(), spec, g)
	require.NoError(t, err)

	target, err := os.Readlink(dest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.secretsDir, "token"), target)
}

func TestInstallRejectsAliasInSecretsDir(t *testing.T) {
	f := newFixture(t)
	src := f.encrypt(t, "db", "hunter2")
	spec := secrets.SecretSpec{
		Name:    "db",
		File:    src,
		Path:    filepath.Join(f.secretsDir, "db-alias"),
		Mode:    "0400",
		Owner:   strconv.Itoa(os.Getuid()),
		Group:   strconv.Itoa(os.Getgid()),
		Symlink: true,
	}
	g, err := f.manager.Begin()
	require.NoError(t, err)

	_, err = f.installer(t, &decrypt.Native{}).Install(context.Background(), spec, g)
	require.Error(t, err)
	assert.ErrorIs(t, err, secrets.ErrConfiguration)
	assert.NoFileExists(t, filepath.Join(g.Path, "db"))
	_, err = os.Lstat(spec.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestInstallDirect(t *testing.T) {
	f := newFixture(t)
	src := f.encrypt(t, "direct", "plain")
	dest := filepath.Join(f.root, "etc", "direct", "key")
	no := false
	spec := f.spec(t, "direct", secrets.RawSpec{File: src, Path: dest, Mode: "0600", Symlink: &no})
	g, err := f.manager.Begin()
	require.NoError(t, err)

	res, err := f.installer(t, &decrypt.Native{}).Install(context.Background(), spec, g)
	require.NoError(t, err)
	assert.Equal(t, dest, res.File)

	info, err := os.Lstat(dest)
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.NoFileExists(t, filepath.Join(g.Path, "direct"))
}

func TestInstallPermissions(t *testing.T) {
	f := newFixture(t)
	src := f.encrypt(t, "api-key", "s3cr3t")
	spec := f.spec(t, "api-key", secrets.RawSpec{File: src, Mode: "0440", Owner: "svc", Group: "svcgrp"})
	g, err := f.manager.Begin()
	require.NoError(t, err)

	var tempMode os.FileMode
	d := mocks.NewMockDecryptor(t)
	d.EXPECT().Decrypt(mock.Anything, []string{f.keyFile}, src, filepath.Join(g.Path, "api-key.tmp")).
		RunAndReturn(func(_ context.Context, _ []string, _, output string) error {
			// a careless backend asking for a world readable file
			if err := os.WriteFile(output, []byte("s3cr3t"), 0o666); err != nil {
				return err
			}
			info, err := os.Stat(output)
			if err != nil {
				return err
			}
			tempMode = info.Mode().Perm()
			return nil
		})

	res, err := f.installer(t, d).Install(context.Background(), spec, g)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o400), tempMode)
	assert.Zero(t, tempMode&0o077)

	info, err := os.Stat(res.File)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o440), info.Mode().Perm())
	uid, gid := ownership(t, res.File)
	assert.Equal(t, os.Getuid(), uid)
	assert.Equal(t, os.Getgid(), gid)
	assert.Equal(t, os.Getuid(), res.UID)
	assert.Equal(t, os.Getgid(), res.GID)
}

func TestInstallDecryptionFailure(t *testing.T) {
	f := newFixture(t)
	other, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	f.recipient = other.Recipient()
	src := f.encrypt(t, "db-pass", "hunter2")
	spec := f.spec(t, "db-pass", secrets.RawSpec{File: src})
	g, err := f.manager.Begin()
	require.NoError(t, err)

	_, err = f.installer(t, &decrypt.Native{}).Install(context.Background(), spec, g)
	require.Error(t, err)
	assert.ErrorIs(t, err, secrets.ErrDecryption)
	assert.Equal(t, "db-pass", secrets.FailedSecret(err))
	assert.NoFileExists(t, filepath.Join(g.Path, "db-pass.tmp"))
	assert.NoFileExists(t, filepath.Join(g.Path, "db-pass"))
}

func TestInstallPartialOutputRemoved(t *testing.T) {
	f := newFixture(t)
	spec := f.spec(t, "broken", secrets.RawSpec{File: filepath.Join(f.root, "broken.age")})
	g, err := f.manager.Begin()
	require.NoError(t, err)
	tmp := filepath.Join(g.Path, "broken.tmp")

	d := mocks.NewMockDecryptor(t)
	d.EXPECT().Decrypt(mock.Anything, mock.Anything, mock.Anything, tmp).
		RunAndReturn(func(context.Context, []string, string, string) error {
			if err := os.WriteFile(tmp, []byte("half"), 0o400); err != nil {
				return err
			}
			return errors.New("exit status 1")
		})

	_, err = f.installer(t, d).Install(context.Background(), spec, g)
	require.Error(t, err)
	assert.ErrorIs(t, err, secrets.ErrDecryption)
	assert.NoFileExists(t, tmp)
}

func TestInstallStaleTempFile(t *testing.T) {
	f := newFixture(t)
	src := f.encrypt(t, "db-pass", "hunter2")
	spec := f.spec(t, "db-pass", secrets.RawSpec{File: src})
	g, err := f.manager.Begin()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(g.Path, "db-pass.tmp"), []byte("junk"), 0o400))

	res, err := f.installer(t, &decrypt.Native{}).Install(context.Background(), spec, g)
	require.NoError(t, err)
	data, err := os.ReadFile(res.File)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(data))
}

func TestInstallUnknownOwner(t *testing.T) {
	f := newFixture(t)
	spec := f.spec(t, "api-key", secrets.RawSpec{File: "/nonexistent.age", Owner: "ghost", Group: "svcgrp"})
	g, err := f.manager.Begin()
	require.NoError(t, err)

	// the decryptor must not be reached
	d := mocks.NewMockDecryptor(t)
	_, err = f.installer(t, d).Install(context.Background(), spec, g)
	require.Error(t, err)
	assert.ErrorIs(t, err, secrets.ErrOwnership)
	assert.Equal(t, "api-key", secrets.FailedSecret(err))
}

func TestResolveOwnership(t *testing.T) {
	i := &Installer{resolver: &accounts.Static{
		Users:   map[string]int{"svc": 1000, "lonely": 1001},
		Groups:  map[string]int{"svcgrp": 100, "other": 200},
		Primary: map[string]string{"svc": "svcgrp"},
	}}
	tests := []struct {
		name    string
		owner   string
		group   string
		uid     int
		gid     int
		wantErr error
	}{
		{"explicit", "svc", "other", 1000, 200, nil},
		{"numeric", "42", "43", 42, 43, nil},
		{"primary group", "svc", "", 1000, 100, nil},
		{"no primary group", "lonely", "", 1001, 0, nil},
		{"unknown owner", "ghost", "other", 0, 0, secrets.ErrOwnership},
		{"unknown group", "svc", "ghosts", 0, 0, secrets.ErrOwnership},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uid, gid, err := i.resolveOwnership(secrets.SecretSpec{Owner: tt.owner, Group: tt.group})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.uid, uid)
			assert.Equal(t, tt.gid, gid)
		})
	}
}

func TestNewRequiresIdentities(t *testing.T) {
	_, err := New(&decrypt.Native{}, accounts.System{}, "/run/agenix", nil)
	assert.ErrorIs(t, err, secrets.ErrConfiguration)
}
