package decrypt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"filippo.io/age/agessh"
	"github.com/chuangzhu/agenix/pkg/secrets"
)

// Native decrypts in process with filippo.io/age. Identity files may hold
// native age keys or OpenSSH ed25519/rsa private keys.
type Native struct{}

func (n *Native) Decrypt(_ context.Context, identities []string, input, output string) error {
	ids, err := ParseIdentityFiles(identities)
	if err != nil {
		return err
	}
	in, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("%w: error opening %v: %v", secrets.ErrDecryption, input, err)
	}
	defer in.Close()

	r, err := age.Decrypt(in, ids...)
	if err != nil {
		return fmt.Errorf("%w: %v: %v", secrets.ErrDecryption, input, err)
	}
	out, err := createOutput(output)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return fmt.Errorf("%w: %v: %v", secrets.ErrDecryption, input, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: error closing %v: %v", secrets.ErrFilesystem, output, err)
	}
	return nil
}

// ParseIdentityFiles loads every identity it can from paths. Unreadable
// files are skipped, as long as at least one identity is found.
func ParseIdentityFiles(paths []string) ([]age.Identity, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no identities", secrets.ErrConfiguration)
	}
	var ids []age.Identity
	var errs []error
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		parsed, err := parseIdentity(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", p, err))
			continue
		}
		ids = append(ids, parsed...)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no usable identity: %v", secrets.ErrDecryption, errors.Join(errs...))
	}
	return ids, nil
}

func parseIdentity(data []byte) ([]age.Identity, error) {
	if bytes.Contains(data, []byte("PRIVATE KEY")) {
		id, err := agessh.ParseIdentity(data)
		if err != nil {
			return nil, err
		}
		return []age.Identity{id}, nil
	}
	return age.ParseIdentities(bytes.NewReader(data))
}
