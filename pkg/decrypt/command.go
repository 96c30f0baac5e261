package decrypt

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/chuangzhu/agenix/pkg/secrets"
)

// AgeCommand runs an age compatible binary (age, rage).
type AgeCommand struct {
	Binary string
}

func NewAgeCommand(binary string) *AgeCommand {
	return &AgeCommand{Binary: binary}
}

func (a *AgeCommand) Args(identities []string, input, output string) []string {
	args := make([]string, 0, 4+2*len(identities))
	args = append(args, "--decrypt")
	for _, id := range identities {
		args = append(args, "-i", id)
	}
	args = append(args, "-o", output, input)
	return args
}

func (a *AgeCommand) Decrypt(ctx context.Context, identities []string, input, output string) error {
	if len(identities) == 0 {
		return fmt.Errorf("%w: no identities", secrets.ErrConfiguration)
	}
	cmd := exec.CommandContext(ctx, a.Binary, a.Args(identities, input, output)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	log.Debug("running decryptor", "binary", a.Binary, "input", input)
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%w: %v %v: %v", secrets.ErrDecryption, a.Binary, input, err)
		}
		return fmt.Errorf("%w: %v %v: %v: %v", secrets.ErrDecryption, a.Binary, input, err, msg)
	}
	return nil
}
