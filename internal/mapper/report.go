package mapper

import "sort"

// Resolution records where a mapping matched.
type Resolution struct {
	Mapping string
	Match   uint64
}

// Report summarizes one MapAllSymbols pass.
type Report struct {
	Deferred bool

	Mapped     []Resolution
	Skipped    []string        // excluded by a version guard
	Failures   []*MappingError // reported failures, flags set
	Suppressed []*MappingError // AllowFail failures, not reported

	Imports        int
	ImportFailures []*ImportError
}

// OK reports whether the pass had no reported failures.
func (r *Report) OK() bool {
	return len(r.Failures) == 0 && len(r.ImportFailures) == 0
}

// CriticalFailures returns the failures of critical mappings.
func (r *Report) CriticalFailures() []*MappingError {
	var out []*MappingError
	for _, f := range r.Failures {
		if f.Critical {
			out = append(out, f)
		}
	}
	return out
}

// MappedNames returns the names of every mapping that resolved, sorted.
func (r *Report) MappedNames() []string {
	out := make([]string, 0, len(r.Mapped))
	for _, m := range r.Mapped {
		out = append(out, m.Mapping)
	}
	sort.Strings(out)
	return out
}
