// Package decrypt turns an encrypted secret file into plaintext on disk.
//
// Every backend writes its output to a new file at the given path and never
// to an existing one; the caller controls the process umask so the file is
// created with restricted permissions.
package decrypt

import (
	"context"
	"fmt"
	"os"

	"github.com/chuangzhu/agenix/pkg/secrets"
	"github.com/knadh/koanf/v2"
)

type Decryptor interface {
	Decrypt(ctx context.Context, identities []string, input, output string) error
}

const (
	KindAge    = "age"
	KindNative = "native"
	KindSops   = "sops"
)

type Config struct {
	Kind      string
	AgeBinary string
}

func NewConfig(k *koanf.Koanf) (*Config, error) {
	c := &Config{
		Kind:      k.String("decryptor"),
		AgeBinary: k.String("age_binary"),
	}
	if c.Kind == "" {
		c.Kind = KindAge
	}
	if c.AgeBinary == "" {
		c.AgeBinary = "age"
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch c.Kind {
	case KindAge:
		if c.AgeBinary == "" {
			return fmt.Errorf("%w: empty age binary", secrets.ErrConfiguration)
		}
	case KindNative, KindSops:
	default:
		return fmt.Errorf("%w: unknown decryptor %q", secrets.ErrConfiguration, c.Kind)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("Decryptor: %v\nAge binary: %v\n", c.Kind, c.AgeBinary)
}

func New(c *Config) (Decryptor, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Kind {
	case KindNative:
		return &Native{}, nil
	case KindSops:
		return &Sops{}, nil
	default:
		return NewAgeCommand(c.AgeBinary), nil
	}
}

// createOutput opens output for writing, refusing to follow or reuse an
// existing file.
func createOutput(output string) (*os.File, error) {
	f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o400)
	if err != nil {
		return nil, fmt.Errorf("%w: error creating %v: %v", secrets.ErrFilesystem, output, err)
	}
	return f, nil
}

func writeOutput(output string, data []byte) error {
	f, err := createOutput(output)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: error writing %v: %v", secrets.ErrFilesystem, output, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: error closing %v: %v", secrets.ErrFilesystem, output, err)
	}
	return nil
}
