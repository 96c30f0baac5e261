package secrets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk form of a secret list, keyed by secret name.
type Manifest struct {
	Secrets map[string]RawSpec `toml:"secrets" json:"secrets" yaml:"secrets"`
}

// LoadManifest reads a TOML, YAML or JSON manifest, chosen by extension.
func LoadManifest(path, secretsDir string) ([]SecretSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: error reading manifest: %v", ErrConfiguration, err)
	}
	var m Manifest
	switch filepath.Ext(path) {
	case ".toml":
		err = toml.Unmarshal(data, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	case ".json":
		err = json.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("%w: unsupported manifest format: %v", ErrConfiguration, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: error parsing manifest %v: %v", ErrConfiguration, path, err)
	}
	return m.Specs(secretsDir)
}

func (m Manifest) Specs(secretsDir string) ([]SecretSpec, error) {
	result := make([]SecretSpec, 0, len(m.Secrets))
	for name, raw := range m.Secrets {
		s, err := NewSpec(name, raw, secretsDir)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}

// SpecsFromKoanf reads inline [secrets.<name>] tables.
func SpecsFromKoanf(k *koanf.Koanf, secretsDir string) ([]SecretSpec, error) {
	names := k.MapKeys("secrets")
	result := make([]SecretSpec, 0, len(names))
	for _, name := range names {
		prefix := "secrets." + name
		raw := RawSpec{
			File:  k.String(prefix + ".file"),
			Path:  k.String(prefix + ".path"),
			Mode:  k.String(prefix + ".mode"),
			Owner: k.String(prefix + ".owner"),
			Group: k.String(prefix + ".group"),
		}
		if k.Exists(prefix + ".symlink") {
			symlink := k.Bool(prefix + ".symlink")
			raw.Symlink = &symlink
		}
		s, err := NewSpec(name, raw, secretsDir)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}
