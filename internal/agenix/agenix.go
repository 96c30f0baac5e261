// Package agenix wires the generation manager, the installer and the
// account hooks into the phased activation run.
package agenix

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chuangzhu/agenix/pkg/accounts"
	"github.com/chuangzhu/agenix/pkg/decrypt"
	"github.com/chuangzhu/agenix/pkg/generation"
	"github.com/chuangzhu/agenix/pkg/installer"
	"github.com/chuangzhu/agenix/pkg/scheduler"
	"github.com/chuangzhu/agenix/pkg/secrets"
)

const (
	PhaseMountSecrets   = "mountSecrets"
	PhaseRootSecrets    = "rootSecrets"
	PhaseUsersReady     = "usersReady"
	PhaseGroupsReady    = "groupsReady"
	PhaseChownKeys      = "chownKeys"
	PhaseNonRootSecrets = "nonRootSecrets"
	PhasePublish        = "publishGeneration"
)

type Agenix struct {
	config      *Config
	generations *generation.Manager
	installer   *installer.Installer
	resolver    accounts.Resolver
	hooks       accounts.Hooks
}

func New(c *Config, gm *generation.Manager, d decrypt.Decryptor, r accounts.Resolver, hooks accounts.Hooks) (*Agenix, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	inst, err := installer.New(d, r, c.Generation.SecretsDir, c.Identities)
	if err != nil {
		return nil, err
	}
	return &Agenix{
		config:      c,
		generations: gm,
		installer:   inst,
		resolver:    r,
		hooks:       hooks,
	}, nil
}

// run carries the state of one activation.
type run struct {
	gen    *generation.Generation
	record *RunRecord
}

func (a *Agenix) schedule(r *run) (*scheduler.Scheduler, error) {
	root, nonRoot := a.config.Secrets.Partition()
	phases := []scheduler.Phase{
		{
			Name: PhaseMountSecrets,
			Run:  func(context.Context) error { return a.mountSecrets(r) },
		},
		{
			Name:  PhaseRootSecrets,
			After: []string{PhaseMountSecrets},
			Run: func(ctx context.Context) error {
				return a.installAll(ctx, r, PhaseRootSecrets, root)
			},
		},
		{
			Name:  PhaseUsersReady,
			After: []string{PhaseRootSecrets},
			Run: func(ctx context.Context) error {
				if err := a.hooks.UsersReady(ctx); err != nil {
					return fmt.Errorf("error waiting for users: %w", err)
				}
				return nil
			},
		},
		{
			Name:  PhaseGroupsReady,
			After: []string{PhaseRootSecrets},
			Run: func(ctx context.Context) error {
				if err := a.hooks.GroupsReady(ctx); err != nil {
					return fmt.Errorf("error waiting for groups: %w", err)
				}
				return nil
			},
		},
		{
			Name:  PhaseChownKeys,
			After: []string{PhaseUsersReady, PhaseGroupsReady, PhaseMountSecrets},
			Run:   func(context.Context) error { return a.chownKeys(r) },
		},
		{
			Name:  PhaseNonRootSecrets,
			After: []string{PhaseUsersReady, PhaseGroupsReady, PhaseMountSecrets, PhaseChownKeys},
			Run: func(ctx context.Context) error {
				return a.installAll(ctx, r, PhaseNonRootSecrets, nonRoot)
			},
		},
	}
	if a.config.Publish == PublishComplete {
		phases = append(phases, scheduler.Phase{
			Name:  PhasePublish,
			After: []string{PhaseRootSecrets, PhaseNonRootSecrets},
			Run:   func(context.Context) error { return a.publish(r) },
		})
	}

	s := scheduler.New()
	for _, p := range phases {
		if err := s.Add(p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (a *Agenix) mountSecrets(r *run) error {
	if err := a.generations.EnsureMount(); err != nil {
		return err
	}
	g, err := a.generations.Begin()
	if err != nil {
		return err
	}
	r.gen = g
	r.record.Generation = g.ID
	r.record.Previous = g.Previous
	if a.config.Publish == PublishMount {
		return a.publish(r)
	}
	return nil
}

func (a *Agenix) publish(r *run) error {
	if err := a.generations.Publish(r.gen); err != nil {
		return err
	}
	a.generations.RetireOld(r.gen.Previous)
	a.generations.Prune(r.gen.ID)
	return nil
}

func (a *Agenix) chownKeys(r *run) error {
	if a.config.KeysGroup == "" {
		log.Debug("no keys group configured, leaving staging ownership alone")
		return nil
	}
	gid, err := a.resolver.LookupGroup(a.config.KeysGroup)
	if err != nil {
		return fmt.Errorf("%w: keys group %v: %v", secrets.ErrOwnership, a.config.KeysGroup, err)
	}
	return a.generations.ChownStaging(r.gen, gid)
}

func (a *Agenix) installAll(ctx context.Context, r *run, phase string, specs []secrets.SecretSpec) error {
	for _, s := range specs {
		res, err := a.installer.Install(ctx, s, r.gen)
		if err != nil {
			return err
		}
		r.record.Secrets = append(r.record.Secrets, InstalledSecret{
			Name:  res.Name,
			Phase: phase,
			Path:  res.Path,
			File:  res.File,
			Mode:  s.Mode,
			UID:   res.UID,
			GID:   res.GID,
		})
	}
	return nil
}

// Apply runs every phase and records the outcome. The returned record is
// non-nil even when the run fails.
func (a *Agenix) Apply(ctx context.Context) (*RunRecord, error) {
	r := &run{
		record: &RunRecord{
			Publish: a.config.Publish,
			Started: time.Now(),
		},
	}
	s, err := a.schedule(r)
	if err != nil {
		return a.finish(r, err)
	}
	log.Info("activating secrets", "secrets", a.config.Secrets.Size())
	completed, runErr := s.Run(ctx)
	r.record.Phases = completed
	return a.finish(r, runErr)
}

// finish stamps the record with the outcome of the run and saves it.
func (a *Agenix) finish(r *run, runErr error) (*RunRecord, error) {
	r.record.Finished = time.Now()
	if runErr != nil {
		r.record.Failure = newFailure(runErr)
		log.Error("activation failed", "phase", r.record.Failure.Phase, "secret", r.record.Failure.Secret, "error", runErr)
	} else {
		log.Info("activation complete", "generation", r.record.Generation)
	}

	if a.config.StateFile != "" {
		if err := SaveRecord(a.config.StateFile, r.record); err != nil {
			log.Warn("error saving run record", "path", a.config.StateFile, "error", err)
		}
	}
	return r.record, runErr
}
