package accounts

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"
)

var ErrNotFound = errors.New("account not found")

// Resolver maps owner and group names to numeric ids. Numeric strings are
// accepted as-is by every implementation.
type Resolver interface {
	LookupUser(name string) (int, error)
	LookupGroup(name string) (int, error)
	// ResolveGroup returns the primary group of owner.
	ResolveGroup(owner string) (string, error)
}

func numericID(name string) (int, bool) {
	id, err := strconv.Atoi(name)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// System resolves against the host's user database.
type System struct{}

func (System) LookupUser(name string) (int, error) {
	if id, ok := numericID(name); ok {
		return id, nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return 0, fmt.Errorf("user %v: %w", name, ErrNotFound)
		}
		return 0, fmt.Errorf("error looking up user %v: %w", name, err)
	}
	return strconv.Atoi(u.Uid)
}

func (System) LookupGroup(name string) (int, error) {
	if id, ok := numericID(name); ok {
		return id, nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		var unknown user.UnknownGroupError
		if errors.As(err, &unknown) {
			return 0, fmt.Errorf("group %v: %w", name, ErrNotFound)
		}
		return 0, fmt.Errorf("error looking up group %v: %w", name, err)
	}
	return strconv.Atoi(g.Gid)
}

func (System) ResolveGroup(owner string) (string, error) {
	var u *user.User
	var err error
	if _, ok := numericID(owner); ok {
		u, err = user.LookupId(owner)
	} else {
		u, err = user.Lookup(owner)
	}
	if err != nil {
		return "", fmt.Errorf("user %v: %w", owner, ErrNotFound)
	}
	return u.Gid, nil
}

// Static resolves from fixed tables.
type Static struct {
	Users  map[string]int
	Groups map[string]int
	// Primary maps a user name to its primary group name.
	Primary map[string]string
}

func (s *Static) LookupUser(name string) (int, error) {
	if id, ok := numericID(name); ok {
		return id, nil
	}
	if id, ok := s.Users[name]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("user %v: %w", name, ErrNotFound)
}

func (s *Static) LookupGroup(name string) (int, error) {
	if id, ok := numericID(name); ok {
		return id, nil
	}
	if id, ok := s.Groups[name]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("group %v: %w", name, ErrNotFound)
}

func (s *Static) ResolveGroup(owner string) (string, error) {
	if g, ok := s.Primary[owner]; ok {
		return g, nil
	}
	return "", fmt.Errorf("user %v: %w", owner, ErrNotFound)
}
