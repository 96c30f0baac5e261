package accounts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/knadh/koanf/v2"
)

// Hooks are the points where the user database is built. UsersReady is
// called once root-owned secrets are installed; it returns when users exist.
// GroupsReady returns when groups exist.
type Hooks interface {
	UsersReady(ctx context.Context) error
	GroupsReady(ctx context.Context) error
}

// Signal blocks until some external condition holds.
type Signal interface {
	Wait(ctx context.Context) error
}

// DefaultHookTimeout is how long, in seconds, a hook may block.
const DefaultHookTimeout = 30

type HooksConfig struct {
	UsersUnit     string
	GroupsUnit    string
	UsersCommand  []string
	GroupsCommand []string
	Timeout       int
}

func NewHooksConfig(k *koanf.Koanf) (*HooksConfig, error) {
	c := &HooksConfig{
		UsersUnit:     k.String("hooks.users_unit"),
		GroupsUnit:    k.String("hooks.groups_unit"),
		UsersCommand:  k.Strings("hooks.users_command"),
		GroupsCommand: k.Strings("hooks.groups_command"),
		Timeout:       DefaultHookTimeout,
	}
	// 0 disables the timeout
	if k.Exists("hooks.timeout") {
		c.Timeout = k.Int("hooks.timeout")
	}
	return c, nil
}

func (c *HooksConfig) Validate() error {
	if c.UsersUnit != "" && len(c.UsersCommand) > 0 {
		return errors.New("hooks: users_unit and users_command are exclusive")
	}
	if c.GroupsUnit != "" && len(c.GroupsCommand) > 0 {
		return errors.New("hooks: groups_unit and groups_command are exclusive")
	}
	if c.Timeout < 0 {
		return errors.New("hooks: negative timeout")
	}
	return nil
}

func (c *HooksConfig) String() string {
	return fmt.Sprintf("Users unit: %v\nGroups unit: %v\nUsers command: %v\nGroups command: %v\nHook timeout: %v\n",
		c.UsersUnit, c.GroupsUnit, c.UsersCommand, c.GroupsCommand, c.Timeout)
}

func (c *HooksConfig) needsSystemd() bool {
	return c.UsersUnit != "" || c.GroupsUnit != ""
}

// SignalHooks adapts two signals to Hooks.
type SignalHooks struct {
	Users  Signal
	Groups Signal
	closer func()
}

func (h *SignalHooks) UsersReady(ctx context.Context) error {
	return h.Users.Wait(ctx)
}

func (h *SignalHooks) GroupsReady(ctx context.Context) error {
	return h.Groups.Wait(ctx)
}

func (h *SignalHooks) Close() {
	if h.closer != nil {
		h.closer()
	}
}

// NewHooks builds hooks from c. A systemd connection is only opened when a
// unit is configured.
func NewHooks(ctx context.Context, c *HooksConfig) (*SignalHooks, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	h := &SignalHooks{}
	var conn *dbus.Conn
	if c.needsSystemd() {
		var err error
		conn, err = dbus.NewSystemConnectionContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("error connecting to systemd: %w", err)
		}
		h.closer = conn.Close
	}
	h.Users = pickSignal(conn, c.UsersUnit, c.UsersCommand, c.Timeout)
	h.Groups = pickSignal(conn, c.GroupsUnit, c.GroupsCommand, c.Timeout)
	return h, nil
}

func pickSignal(conn *dbus.Conn, unit string, command []string, timeout int) Signal {
	switch {
	case unit != "":
		return &UnitSignal{Conn: conn, Unit: unit, Timeout: timeout}
	case len(command) > 0:
		return &CommandSignal{Argv: command, Timeout: timeout}
	default:
		return NoSignal{}
	}
}

// NoSignal is already satisfied.
type NoSignal struct{}

func (NoSignal) Wait(context.Context) error { return nil }

// CommandSignal runs a command, e.g. systemd-sysusers, and waits for it.
type CommandSignal struct {
	Argv    []string
	Timeout int
}

func (c *CommandSignal) Wait(ctx context.Context) error {
	if len(c.Argv) == 0 {
		return errors.New("empty hook command")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.Timeout)*time.Second)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	log.Debug("running hook", "command", c.Argv)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("hook %v failed: %w: %v", c.Argv, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// UnitSignal starts a systemd unit and waits for its start job to finish.
type UnitSignal struct {
	Conn    *dbus.Conn
	Unit    string
	Timeout int
}

func (u *UnitSignal) Wait(ctx context.Context) error {
	callback := make(chan string, 1)
	_, err := u.Conn.StartUnitContext(ctx, u.Unit, "replace", callback)
	if err != nil {
		return fmt.Errorf("error starting unit %v: %w", u.Unit, err)
	}
	log.Debug("waiting for unit", "unit", u.Unit, "timeout", u.Timeout)
	var timeout <-chan time.Time
	if u.Timeout > 0 {
		timeout = time.After(time.Duration(u.Timeout) * time.Second)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("context canceled while waiting for unit %v", u.Unit)
	case result := <-callback:
		if result != "done" {
			return fmt.Errorf("unit %v finished in state %v", u.Unit, result)
		}
		return nil
	case <-timeout:
		return fmt.Errorf("timeout waiting for unit %v", u.Unit)
	}
}
