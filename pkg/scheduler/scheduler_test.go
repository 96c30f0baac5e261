package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(phases []Phase) []string {
	var result []string
	for _, p := range phases {
		result = append(result, p.Name)
	}
	return result
}

func TestOrder(t *testing.T) {
	tests := []struct {
		name   string
		phases []Phase
		want   []string
		err    error
	}{
		{
			name: "declaration order when independent",
			phases: []Phase{
				{Name: "a"}, {Name: "b"}, {Name: "c"},
			},
			want: []string{"a", "b", "c"},
		},
		{
			name: "dependencies declared later",
			phases: []Phase{
				{Name: "nonRootSecrets", After: []string{"usersReady", "groupsReady", "mountSecrets", "chownKeys"}},
				{Name: "chownKeys", After: []string{"usersReady", "groupsReady", "mountSecrets"}},
				{Name: "groupsReady", After: []string{"rootSecrets"}},
				{Name: "usersReady", After: []string{"rootSecrets"}},
				{Name: "rootSecrets", After: []string{"mountSecrets"}},
				{Name: "mountSecrets"},
			},
			want: []string{"mountSecrets", "rootSecrets", "groupsReady", "usersReady", "chownKeys", "nonRootSecrets"},
		},
		{
			name: "unknown dependency",
			phases: []Phase{
				{Name: "a", After: []string{"missing"}},
			},
			err: ErrUnknownPhase,
		},
		{
			name: "cycle",
			phases: []Phase{
				{Name: "root"},
				{Name: "a", After: []string{"b"}},
				{Name: "b", After: []string{"a"}},
			},
			err: ErrCycle,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			for _, p := range tt.phases {
				require.NoError(t, s.Add(p))
			}
			order, err := s.Order()
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(order))
		})
	}
}

func TestAddDuplicate(t *testing.T) {
	s := New()
	require.NoError(t, s.Add(Phase{Name: "a"}))
	assert.ErrorIs(t, s.Add(Phase{Name: "a"}), ErrDuplicatePhase)
	assert.Error(t, s.Add(Phase{}))

	p, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "a", p.Name)
	_, ok = s.Get("b")
	assert.False(t, ok)
}

func TestRun(t *testing.T) {
	var ran []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			ran = append(ran, name)
			return nil
		}
	}
	s := New()
	require.NoError(t, s.Add(Phase{Name: "second", After: []string{"first"}, Run: record("second")}))
	require.NoError(t, s.Add(Phase{Name: "first", Run: record("first")}))
	require.NoError(t, s.Add(Phase{Name: "marker", After: []string{"second"}}))

	completed, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, ran)
	assert.Equal(t, []string{"first", "second", "marker"}, completed)
}

func TestRunStopsAtFailure(t *testing.T) {
	boom := errors.New("boom")
	var ran []string
	s := New()
	require.NoError(t, s.Add(Phase{Name: "a", Run: func(context.Context) error { ran = append(ran, "a"); return nil }}))
	require.NoError(t, s.Add(Phase{Name: "b", After: []string{"a"}, Run: func(context.Context) error { return boom }}))
	require.NoError(t, s.Add(Phase{Name: "c", After: []string{"b"}, Run: func(context.Context) error { ran = append(ran, "c"); return nil }}))

	completed, err := s.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "b", FailedPhase(err))
	assert.Equal(t, []string{"a"}, completed)
	assert.Equal(t, []string{"a"}, ran)
	assert.Equal(t, "phase b: boom", err.Error())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New()
	require.NoError(t, s.Add(Phase{Name: "a", Run: func(context.Context) error { cancel(); return nil }}))
	require.NoError(t, s.Add(Phase{Name: "b", After: []string{"a"}, Run: func(context.Context) error {
		t.Fatal("phase b ran after cancellation")
		return nil
	}}))

	completed, err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "b", FailedPhase(err))
	assert.Equal(t, []string{"a"}, completed)
}
