package generation

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chuangzhu/agenix/pkg/secrets"
	"github.com/knadh/koanf/v2"
)

const (
	DefaultMountpoint = "/run/agenix.d"
	DefaultSecretsDir = "/run/agenix"
)

type Config struct {
	Mountpoint string
	SecretsDir string
	Mount      bool
}

func NewConfig(k *koanf.Koanf) (*Config, error) {
	c := &Config{
		Mountpoint: DefaultMountpoint,
		SecretsDir: DefaultSecretsDir,
		Mount:      true,
	}
	if k.Exists("mountpoint") {
		c.Mountpoint = k.String("mountpoint")
	}
	if k.Exists("secrets_dir") {
		c.SecretsDir = k.String("secrets_dir")
	}
	if k.Exists("mount") {
		c.Mount = k.Bool("mount")
	}
	return c, nil
}

func (c *Config) Validate() error {
	if err := validateDir("mountpoint", c.Mountpoint); err != nil {
		return err
	}
	if err := validateDir("secrets_dir", c.SecretsDir); err != nil {
		return err
	}
	if c.Mountpoint == c.SecretsDir {
		return fmt.Errorf("%w: mountpoint and secrets_dir are both %v", secrets.ErrConfiguration, c.Mountpoint)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("Mountpoint: %v\nSecrets Dir: %v\nMount: %v\n", c.Mountpoint, c.SecretsDir, c.Mount)
}

func validateDir(key, path string) error {
	if path == "" {
		return fmt.Errorf("%w: %v is empty", secrets.ErrConfiguration, key)
	}
	if strings.HasSuffix(path, string(filepath.Separator)) {
		return fmt.Errorf("%w: %v %q ends in a path separator", secrets.ErrConfiguration, key, path)
	}
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %v %q is not absolute", secrets.ErrConfiguration, key, path)
	}
	return nil
}
