package decrypt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"github.com/chuangzhu/agenix/pkg/secrets"
	"github.com/getsops/sops/v3/decrypt"
)

// Sops decrypts sops encrypted files with age keys. The whole decrypted
// document becomes the secret.
type Sops struct{}

func (s *Sops) Decrypt(_ context.Context, identities []string, input, output string) error {
	keys, err := ageKeys(identities)
	if err != nil {
		return err
	}
	previous, hadPrevious := os.LookupEnv("SOPS_AGE_KEY")
	if err := os.Setenv("SOPS_AGE_KEY", keys); err != nil {
		return fmt.Errorf("%w: %v", secrets.ErrDecryption, err)
	}
	defer func() {
		if hadPrevious {
			_ = os.Setenv("SOPS_AGE_KEY", previous)
		} else {
			_ = os.Unsetenv("SOPS_AGE_KEY")
		}
	}()

	plaintext, err := decrypt.File(input, sopsFormat(input))
	if err != nil {
		return fmt.Errorf("%w: %v: %v", secrets.ErrDecryption, input, err)
	}
	return writeOutput(output, plaintext)
}

// ageKeys collects native age keys; sops cannot use ssh identities.
func ageKeys(identities []string) (string, error) {
	var keys []string
	for _, p := range identities {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		ids, err := age.ParseIdentities(strings.NewReader(string(data)))
		if err != nil {
			continue
		}
		for _, id := range ids {
			if x, ok := id.(*age.X25519Identity); ok {
				keys = append(keys, x.String())
			}
		}
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("%w: no age keys among identities for sops", secrets.ErrDecryption)
	}
	return strings.Join(keys, "\n"), nil
}

func sopsFormat(path string) string {
	switch filepath.Ext(strings.TrimSuffix(path, ".sops")) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	case ".env":
		return "dotenv"
	case ".ini":
		return "ini"
	default:
		return "binary"
	}
}
