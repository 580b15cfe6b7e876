package tracking

import (
	"context"
	"strconv"
	"strings"

	"modeldb-client/pkg/api"
	"modeldb-client/pkg/domain"
)

// operators lists two-character operators before their one-character prefixes.
var operators = []string{"==", "!=", "<=", ">=", "<", ">"}

// ParsePredicate parses "<field>.<key> <op> <value>", for example
// "metrics.accuracy >= 0.9". Field is one of metrics, hyperparameters or
// attributes; the bare key "name" matches run names. The leftmost operator
// splits the expression, so values may contain operator characters. Values
// parse as numbers, then booleans, else as strings with optional
// surrounding quotes.
func ParsePredicate(expr string) (api.Predicate, error) {
	idx, op := findOperator(expr)
	if idx < 0 {
		return api.Predicate{}, domain.Validationf("predicate", expr, "expected <key> <op> <value>")
	}
	key := strings.TrimSpace(expr[:idx])
	raw := strings.TrimSpace(expr[idx+len(op):])
	if key == "" || raw == "" {
		return api.Predicate{}, domain.Validationf("predicate", expr, "expected <key> <op> <value>")
	}
	if key != "name" {
		field, name, ok := strings.Cut(key, ".")
		if !ok || name == "" {
			return api.Predicate{}, domain.Validationf("predicate", expr, "key must be <field>.<name>")
		}
		switch field {
		case "metrics", "hyperparameters", "attributes":
		default:
			return api.Predicate{}, domain.Validationf("predicate", expr, "unknown field %q", field)
		}
		if err := domain.ValidateFlatKey("predicate", name); err != nil {
			return api.Predicate{}, err
		}
	}
	return api.Predicate{Key: key, Operator: op, Value: parseLiteral(raw)}, nil
}

// findOperator returns the position of the leftmost operator in expr,
// preferring the longer operator at a tie, or -1.
func findOperator(expr string) (int, string) {
	for i := 0; i < len(expr); i++ {
		for _, op := range operators {
			if strings.HasPrefix(expr[i:], op) {
				return i, op
			}
		}
	}
	return -1, ""
}

func parseLiteral(raw string) domain.Value {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return domain.Number(f)
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return domain.Bool(b)
	}
	if len(raw) >= 2 && (raw[0] == '"' || raw[0] == '\'') && raw[len(raw)-1] == raw[0] {
		raw = raw[1 : len(raw)-1]
	}
	return domain.String(raw)
}

type runScope struct {
	projectID    string
	experimentID string
}

func (c *Client) findRuns(ctx context.Context, s runScope, exprs []string) ([]*ExperimentRun, error) {
	preds := make([]api.Predicate, 0, len(exprs))
	for _, e := range exprs {
		p, err := ParsePredicate(e)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	var out api.RunsResponse
	err := c.post(ctx, api.PathFindRuns, api.FindRunsRequest{
		ProjectID:    s.projectID,
		ExperimentID: s.experimentID,
		Predicates:   preds,
	}, &out)
	if err != nil {
		return nil, domain.Annotate(err, "experiment runs", "find")
	}
	return c.boundRuns(out.ExperimentRuns), nil
}

func (c *Client) topRuns(ctx context.Context, s runScope, key string, k int, ascending bool) ([]*ExperimentRun, error) {
	if k <= 0 {
		return nil, domain.Validationf("experiment runs", key, "k must be positive")
	}
	if _, _, ok := strings.Cut(key, "."); !ok {
		return nil, domain.Validationf("experiment runs", key, "sort key must be <field>.<name>")
	}
	var out api.RunsResponse
	err := c.post(ctx, api.PathTopRuns, api.TopRunsRequest{
		ProjectID:    s.projectID,
		ExperimentID: s.experimentID,
		SortKey:      key,
		Ascending:    ascending,
		TopK:         k,
	}, &out)
	if err != nil {
		return nil, domain.Annotate(err, "experiment runs", key)
	}
	return c.boundRuns(out.ExperimentRuns), nil
}

// FindRuns returns the project's runs matching every predicate.
func (p *Project) FindRuns(ctx context.Context, predicates ...string) ([]*ExperimentRun, error) {
	id, err := p.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return p.client.findRuns(ctx, runScope{projectID: id}, predicates)
}

// TopK returns the k runs with the highest value of key, such as
// "metrics.accuracy". Runs without the key are skipped.
func (p *Project) TopK(ctx context.Context, key string, k int) ([]*ExperimentRun, error) {
	id, err := p.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return p.client.topRuns(ctx, runScope{projectID: id}, key, k, false)
}

// BottomK returns the k runs with the lowest value of key.
func (p *Project) BottomK(ctx context.Context, key string, k int) ([]*ExperimentRun, error) {
	id, err := p.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return p.client.topRuns(ctx, runScope{projectID: id}, key, k, true)
}

func (e *Experiment) FindRuns(ctx context.Context, predicates ...string) ([]*ExperimentRun, error) {
	id, err := e.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return e.client.findRuns(ctx, runScope{experimentID: id}, predicates)
}

func (e *Experiment) TopK(ctx context.Context, key string, k int) ([]*ExperimentRun, error) {
	id, err := e.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return e.client.topRuns(ctx, runScope{experimentID: id}, key, k, false)
}

func (e *Experiment) BottomK(ctx context.Context, key string, k int) ([]*ExperimentRun, error) {
	id, err := e.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return e.client.topRuns(ctx, runScope{experimentID: id}, key, k, true)
}
