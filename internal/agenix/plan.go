package agenix

import (
	"context"
	"fmt"
	"strings"

	"github.com/chuangzhu/agenix/pkg/secrets"
	"github.com/sergi/go-diff/diffmatchpatch"
)

type PlannedPhase struct {
	Name    string
	Secrets []string
}

type Plan struct {
	Current int
	Next    int
	Phases  []PlannedPhase
	Diffs   []diffmatchpatch.Diff
}

// Plan reports what Apply would do without touching the staging area.
func (a *Agenix) Plan(_ context.Context) (*Plan, error) {
	s, err := a.schedule(&run{record: &RunRecord{}})
	if err != nil {
		return nil, err
	}
	order, err := s.Order()
	if err != nil {
		return nil, err
	}
	root, nonRoot := a.config.Secrets.Partition()
	current := a.generations.CurrentID()
	next, err := a.generations.NextID()
	if err != nil {
		return nil, err
	}
	p := &Plan{
		Current: current,
		Next:    next,
	}
	for _, phase := range order {
		planned := PlannedPhase{Name: phase.Name}
		switch phase.Name {
		case PhaseRootSecrets:
			planned.Secrets = names(root)
		case PhaseNonRootSecrets:
			planned.Secrets = names(nonRoot)
		}
		p.Phases = append(p.Phases, planned)
	}

	installed, err := a.generations.Listing(current)
	if err != nil {
		return nil, err
	}
	p.Diffs = diffListings(installed, a.listing())
	return p, nil
}

// listing is the content of a generation built from the configured
// secrets.
func (a *Agenix) listing() []string {
	var result []string
	for _, s := range a.config.Secrets.List() {
		if s.Symlink || s.Path == s.CanonicalPath(a.config.Generation.SecretsDir) {
			result = append(result, s.Name)
		}
	}
	return result
}

func names(specs []secrets.SecretSpec) []string {
	result := make([]string, 0, len(specs))
	for _, s := range specs {
		result = append(result, s.Name)
	}
	return result
}

func diffListings(current, desired []string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(joinLines(current), joinLines(desired))
	diffs := dmp.DiffMain(a, b, false)
	return dmp.DiffCharsToLines(diffs, lines)
}

func joinLines(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return strings.Join(items, "\n") + "\n"
}

// Changed reports whether the next generation differs in content from the
// current one.
func (p *Plan) Changed() bool {
	for _, d := range p.Diffs {
		if d.Type != diffmatchpatch.DiffEqual {
			return true
		}
	}
	return false
}

func (p *Plan) String() string {
	var result string
	result += fmt.Sprintf("Generation %v -> %v\n", p.Current, p.Next)
	for i, phase := range p.Phases {
		result += fmt.Sprintf("%v. %v\n", i+1, phase.Name)
		for _, s := range phase.Secrets {
			result += fmt.Sprintf("     %v\n", s)
		}
	}
	if !p.Changed() {
		result += "No change in secrets\n"
		return result
	}
	result += "Secrets:\n"
	for _, d := range p.Diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			result += prefix + line + "\n"
		}
	}
	return result
}
