package fakeserver

import (
	"sort"
	"strings"

	"modeldb-client/pkg/api"
	"modeldb-client/pkg/domain"
)

// lookupField resolves "<field>.<name>" or "name" on a run.
func lookupField(run domain.ExperimentRun, key string) (domain.Value, bool, error) {
	if key == "name" {
		return domain.String(run.Name), true, nil
	}
	field, name, ok := strings.Cut(key, ".")
	if !ok || name == "" {
		return domain.Value{}, false, invalid("malformed predicate key %q", key)
	}
	var kvs []domain.KeyValue
	switch field {
	case "metrics":
		kvs = run.Metrics
	case "hyperparameters":
		kvs = run.Hyperparameters
	case "attributes":
		kvs = run.Attributes
	default:
		return domain.Value{}, false, invalid("unknown predicate field %q", field)
	}
	for _, kv := range kvs {
		if kv.Key == name {
			return kv.Value, true, nil
		}
	}
	return domain.Value{}, false, nil
}

// compare orders two scalars of the same kind.
func compare(a, b domain.Value) (int, bool) {
	if an, ok := a.AsNumber(); ok {
		bn, ok := b.AsNumber()
		if !ok {
			return 0, false
		}
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		}
		return 0, true
	}
	if as, ok := a.AsString(); ok {
		bs, ok := b.AsString()
		if !ok {
			return 0, false
		}
		return strings.Compare(as, bs), true
	}
	if a.Equal(b) {
		return 0, true
	}
	return 0, false
}

var operators = map[string]bool{"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func matches(run domain.ExperimentRun, p api.Predicate) (bool, error) {
	if !operators[p.Operator] {
		return false, invalid("unknown operator %q", p.Operator)
	}
	v, ok, err := lookupField(run, p.Key)
	if err != nil || !ok {
		return false, err
	}
	switch p.Operator {
	case "==":
		return v.Equal(p.Value), nil
	case "!=":
		return !v.Equal(p.Value), nil
	}
	cmp, ordered := compare(v, p.Value)
	if !ordered {
		return false, nil
	}
	switch p.Operator {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func findRuns(runs []domain.ExperimentRun, predicates []api.Predicate) ([]domain.ExperimentRun, error) {
	out := make([]domain.ExperimentRun, 0, len(runs))
next:
	for _, run := range runs {
		for _, p := range predicates {
			ok, err := matches(run, p)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue next
			}
		}
		out = append(out, run)
	}
	return out, nil
}

// topRuns sorts runs carrying a numeric sortKey and keeps the first k.
func topRuns(runs []domain.ExperimentRun, sortKey string, ascending bool, k int) ([]domain.ExperimentRun, error) {
	if k <= 0 {
		return nil, invalid("top_k must be positive")
	}
	type ranked struct {
		run   domain.ExperimentRun
		score float64
	}
	var candidates []ranked
	for _, run := range runs {
		v, ok, err := lookupField(run, sortKey)
		if err != nil {
			return nil, err
		}
		if n, isNum := v.AsNumber(); ok && isNum {
			candidates = append(candidates, ranked{run: run, score: n})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if ascending {
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]domain.ExperimentRun, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.run)
	}
	return out, nil
}
