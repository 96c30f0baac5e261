package agenix

import (
	"errors"
	"fmt"

	"github.com/chuangzhu/agenix/pkg/accounts"
	"github.com/chuangzhu/agenix/pkg/decrypt"
	"github.com/chuangzhu/agenix/pkg/generation"
	"github.com/chuangzhu/agenix/pkg/secrets"
	"github.com/knadh/koanf/v2"
)

// Publish modes. PublishMount points the secrets dir at the new
// generation as soon as it is created, so root-owned secrets are reachable
// while the account hooks run. PublishComplete switches only after every
// secret is installed and keeps the previous generation on failure.
const (
	PublishComplete = "complete"
	PublishMount    = "mount"
)

const (
	DefaultKeysGroup = "keys"
	DefaultStateFile = "/var/lib/agenix/lastrun.toml"
)

var DefaultIdentities = []string{
	"/etc/ssh/ssh_host_ed25519_key",
	"/etc/ssh/ssh_host_rsa_key",
}

type Config struct {
	Debug      bool
	UseStdout  bool
	Quiet      bool
	Identities []string
	KeysGroup  string
	Publish    string
	StateFile  string
	Manifest   string
	Generation *generation.Config
	Decrypt    *decrypt.Config
	Hooks      *accounts.HooksConfig
	Secrets    *secrets.Set
}

func NewConfig(k *koanf.Koanf) (*Config, error) {
	var c Config
	var err error
	c.Debug = k.Bool("debug")
	c.UseStdout = k.Bool("stdout")
	c.Quiet = k.Bool("quiet")
	c.Manifest = k.String("manifest")
	c.Publish = k.String("publish")
	if c.Publish == "" {
		c.Publish = PublishMount
	}

	c.Identities = DefaultIdentities
	if k.Exists("identities") {
		c.Identities = k.Strings("identities")
	}
	c.KeysGroup = DefaultKeysGroup
	if k.Exists("keys_group") {
		c.KeysGroup = k.String("keys_group")
	}
	c.StateFile = DefaultStateFile
	if k.Exists("state_file") {
		c.StateFile = k.String("state_file")
	}

	c.Generation, err = generation.NewConfig(k)
	if err != nil {
		return nil, err
	}
	c.Decrypt, err = decrypt.NewConfig(k)
	if err != nil {
		return nil, err
	}
	c.Hooks, err = accounts.NewHooksConfig(k)
	if err != nil {
		return nil, err
	}
	c.Secrets, err = loadSecrets(k, c.Manifest, c.Generation.SecretsDir)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// loadSecrets reads the manifest, if any, and lets inline secrets replace
// manifest entries of the same name.
func loadSecrets(k *koanf.Koanf, manifest, secretsDir string) (*secrets.Set, error) {
	set := secrets.NewSet()
	if manifest != "" {
		specs, err := secrets.LoadManifest(manifest, secretsDir)
		if err != nil {
			return nil, err
		}
		for _, s := range specs {
			if err := set.Add(s); err != nil {
				return nil, err
			}
		}
	}
	inline, err := secrets.SpecsFromKoanf(k, secretsDir)
	if err != nil {
		return nil, err
	}
	for _, s := range inline {
		if err := set.Put(s); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (c *Config) Validate() error {
	if len(c.Identities) == 0 {
		return fmt.Errorf("%w: no identities configured", secrets.ErrConfiguration)
	}
	for _, id := range c.Identities {
		if id == "" {
			return fmt.Errorf("%w: empty identity path", secrets.ErrConfiguration)
		}
	}
	if c.Publish != PublishComplete && c.Publish != PublishMount {
		return fmt.Errorf("%w: unknown publish mode %q", secrets.ErrConfiguration, c.Publish)
	}
	if c.Generation == nil || c.Decrypt == nil || c.Hooks == nil || c.Secrets == nil {
		return fmt.Errorf("%w: incomplete config", secrets.ErrConfiguration)
	}
	if err := c.Generation.Validate(); err != nil {
		return err
	}
	if err := c.Decrypt.Validate(); err != nil {
		return err
	}
	if err := c.Hooks.Validate(); err != nil {
		if errors.Is(err, secrets.ErrConfiguration) {
			return err
		}
		return fmt.Errorf("%w: %v", secrets.ErrConfiguration, err)
	}
	return nil
}

func (c *Config) String() string {
	var result string
	result += fmt.Sprintf("Debug mode: %v\n", c.Debug)
	result += fmt.Sprintf("STDOUT: %v\n", c.UseStdout)
	result += fmt.Sprintf("Identities: %v\n", c.Identities)
	result += fmt.Sprintf("Keys group: %v\n", c.KeysGroup)
	result += fmt.Sprintf("Publish: %v\n", c.Publish)
	result += fmt.Sprintf("State file: %v\n", c.StateFile)
	if c.Manifest != "" {
		result += fmt.Sprintf("Manifest: %v\n", c.Manifest)
	}
	if c.Generation != nil {
		result += c.Generation.String()
	}
	if c.Decrypt != nil {
		result += c.Decrypt.String()
	}
	if c.Hooks != nil {
		result += c.Hooks.String()
	}
	if c.Secrets != nil {
		result += fmt.Sprintf("Secrets: %v\n", c.Secrets.Size())
		for _, s := range c.Secrets.List() {
			result += fmt.Sprintf("  %v\n", s)
		}
	}
	return result
}
