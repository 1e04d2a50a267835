package stage

import (
	"github.com/automatosx/automatosx/pkg/apperrors"
)

// Wave is one level of the stage DAG: every stage in a wave has all its
// dependencies satisfied by earlier waves. Parallel holds stages declared
// {parallel: true}, runnable concurrently; Serial holds the rest, run one
// at a time in declaration order.
type Wave struct {
	Parallel []string
	Serial   []string
}

// Names returns every stage name in the wave, parallel stages first, in
// declaration order within each group.
func (w Wave) Names() []string {
	out := make([]string, 0, len(w.Parallel)+len(w.Serial))
	out = append(out, w.Parallel...)
	out = append(out, w.Serial...)
	return out
}

// Plan validates the dependency DAG implied by stages and linearizes it
// into waves. Dependencies must name an earlier-declared stage in the same
// slice; violating that, or a cycle among declared dependencies, fails with
// a typed error.
func Plan(stages []Stage) ([]Wave, error) {
	index := make(map[string]int, len(stages))
	for i, s := range stages {
		if _, dup := index[s.Name]; dup {
			return nil, apperrors.New(apperrors.CodeInvalidInput, "duplicate stage name").WithContext("stage", s.Name)
		}
		index[s.Name] = i
	}

	for i, s := range stages {
		for _, dep := range s.Dependencies {
			depIdx, ok := index[dep]
			if !ok {
				return nil, apperrors.New(apperrors.CodeStageNotFound, "stage dependency references unknown stage").
					WithContext("stage", s.Name).WithContext("dependency", dep)
			}
			if depIdx >= i {
				return nil, apperrors.New(apperrors.CodeStageDependencyCycle, "stage dependency must precede the dependent stage").
					WithContext("stage", s.Name).WithContext("dependency", dep)
			}
		}
	}

	resolved := make(map[string]bool, len(stages))
	remaining := append([]Stage(nil), stages...)
	var waves []Wave

	for len(remaining) > 0 {
		var wave Wave
		var next []Stage

		for _, s := range remaining {
			if dependenciesSatisfied(s, resolved) {
				if s.Parallel {
					wave.Parallel = append(wave.Parallel, s.Name)
				} else {
					wave.Serial = append(wave.Serial, s.Name)
				}
			} else {
				next = append(next, s)
			}
		}

		if len(wave.Parallel) == 0 && len(wave.Serial) == 0 {
			// Every remaining stage is blocked: since we already rejected
			// forward/self references above, this can only happen if the
			// declared dependency graph (ignoring declaration order) has a
			// genuine cycle.
			names := make([]string, 0, len(remaining))
			for _, s := range remaining {
				names = append(names, s.Name)
			}
			return nil, apperrors.New(apperrors.CodeStageDependencyCycle, "cyclic stage dependencies detected").
				WithContext("stages", names)
		}

		for _, name := range wave.Names() {
			resolved[name] = true
		}

		waves = append(waves, wave)
		remaining = next
	}

	return waves, nil
}

func dependenciesSatisfied(s Stage, resolved map[string]bool) bool {
	for _, dep := range s.Dependencies {
		if !resolved[dep] {
			return false
		}
	}
	return true
}

// TopologicalNames returns every stage name across all waves, in the order
// a checkpoint should record them: the same order stages will actually
// execute in.
func TopologicalNames(waves []Wave) []string {
	var out []string
	for _, w := range waves {
		out = append(out, w.Names()...)
	}
	return out
}
