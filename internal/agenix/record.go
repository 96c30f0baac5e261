package agenix

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/chuangzhu/agenix/pkg/scheduler"
	"github.com/chuangzhu/agenix/pkg/secrets"
)

// RunRecord is what an apply run leaves behind for `agenix status`.
type RunRecord struct {
	Generation int               `toml:"generation"`
	Previous   int               `toml:"previous"`
	Publish    string            `toml:"publish"`
	Started    time.Time         `toml:"started"`
	Finished   time.Time         `toml:"finished"`
	Phases     []string          `toml:"phases"`
	Secrets    []InstalledSecret `toml:"secrets"`
	Failure    *Failure          `toml:"failure,omitempty"`
}

type InstalledSecret struct {
	Name  string `toml:"name"`
	Phase string `toml:"phase"`
	Path  string `toml:"path"`
	File  string `toml:"file"`
	Mode  string `toml:"mode"`
	UID   int    `toml:"uid"`
	GID   int    `toml:"gid"`
}

type Failure struct {
	Phase   string `toml:"phase"`
	Secret  string `toml:"secret,omitempty"`
	Message string `toml:"message"`
}

func newFailure(err error) *Failure {
	return &Failure{
		Phase:   scheduler.FailedPhase(err),
		Secret:  secrets.FailedSecret(err),
		Message: err.Error(),
	}
}

func (r *RunRecord) Succeeded() bool {
	return r.Failure == nil
}

func (r *RunRecord) String() string {
	var result string
	result += fmt.Sprintf("Generation: %v (previous %v)\n", r.Generation, r.Previous)
	result += fmt.Sprintf("Started: %v\n", r.Started.Format(time.RFC3339))
	result += fmt.Sprintf("Finished: %v\n", r.Finished.Format(time.RFC3339))
	result += fmt.Sprintf("Phases: %v\n", r.Phases)
	for _, s := range r.Secrets {
		result += fmt.Sprintf("  [%v] %v -> %v (%v %v:%v)\n", s.Phase, s.Name, s.Path, s.Mode, s.UID, s.GID)
	}
	if r.Failure != nil {
		result += fmt.Sprintf("Failed in phase %v", r.Failure.Phase)
		if r.Failure.Secret != "" {
			result += fmt.Sprintf(" on secret %v", r.Failure.Secret)
		}
		result += fmt.Sprintf(": %v\n", r.Failure.Message)
	}
	return result
}

// SaveRecord writes r to path, replacing any previous record in one
// rename.
func SaveRecord(path string, r *RunRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating state directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("error creating run record: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("error encoding run record: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("error writing run record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("error saving run record: %w", err)
	}
	return nil
}

func LoadRecord(path string) (*RunRecord, error) {
	var r RunRecord
	if _, err := toml.DecodeFile(path, &r); err != nil {
		return nil, fmt.Errorf("error loading run record: %w", err)
	}
	return &r, nil
}
