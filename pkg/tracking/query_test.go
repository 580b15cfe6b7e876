package tracking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modeldb-client/pkg/api"
	"modeldb-client/pkg/domain"
)

func TestParsePredicate(t *testing.T) {
	tests := []struct {
		expr string
		want api.Predicate
	}{
		{"metrics.acc >= 0.9", api.Predicate{Key: "metrics.acc", Operator: ">=", Value: domain.Number(0.9)}},
		{"hyperparameters.depth<4", api.Predicate{Key: "hyperparameters.depth", Operator: "<", Value: domain.Number(4)}},
		{"attributes.team == 'ml'", api.Predicate{Key: "attributes.team", Operator: "==", Value: domain.String("ml")}},
		{"attributes.prod != true", api.Predicate{Key: "attributes.prod", Operator: "!=", Value: domain.Bool(true)}},
		{"name == baseline", api.Predicate{Key: "name", Operator: "==", Value: domain.String("baseline")}},
		{`attributes.s != "a==b"`, api.Predicate{Key: "attributes.s", Operator: "!=", Value: domain.String("a==b")}},
		{"attributes.expr == 'x<=y'", api.Predicate{Key: "attributes.expr", Operator: "==", Value: domain.String("x<=y")}},
		{"metrics.loss<=0.25", api.Predicate{Key: "metrics.loss", Operator: "<=", Value: domain.Number(0.25)}},
		{"name > b<a", api.Predicate{Key: "name", Operator: ">", Value: domain.String("b<a")}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := ParsePredicate(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePredicate_Invalid(t *testing.T) {
	for _, expr := range []string{
		"metrics.acc", "acc > 1", "tags.x == 1", "metrics. > 1", "== 3",
		"metrics.a b == 1", `attributes."s" == 1`, "metrics.acc = 1",
	} {
		_, err := ParsePredicate(expr)
		assert.ErrorIs(t, err, domain.ErrValidation, expr)
	}
}

func seedScoredRuns(t *testing.T, c *Client) *Experiment {
	t.Helper()
	ctx := context.Background()
	for name, acc := range map[string]float64{"low": 0.5, "mid": 0.7, "high": 0.9} {
		r := newTestRun(t, c, name)
		require.NoError(t, r.LogMetric(ctx, "acc", acc))
		require.NoError(t, r.LogHyperparameter(ctx, "depth", len(name)))
	}
	newTestRun(t, c, "unscored")
	return newTestRun(t, c, "low").Experiment()
}

func TestFindRuns(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()
	e := seedScoredRuns(t, c)

	runs, err := e.FindRuns(ctx, "metrics.acc >= 0.7")
	require.NoError(t, err)
	names := runNames(runs)
	assert.ElementsMatch(t, []string{"mid", "high"}, names)

	runs, err = e.Project().FindRuns(ctx, "metrics.acc > 0.6", "hyperparameters.depth == 4")
	require.NoError(t, err)
	assert.Equal(t, []string{"high"}, runNames(runs))

	_, err = e.FindRuns(ctx, "bogus")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestTopAndBottomK(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()
	e := seedScoredRuns(t, c)

	top, err := e.TopK(ctx, "metrics.acc", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "mid"}, runNames(top))

	bottom, err := e.Project().BottomK(ctx, "metrics.acc", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"low"}, runNames(bottom))

	_, err = e.TopK(ctx, "metrics.acc", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = e.TopK(ctx, "acc", 1)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func runNames(runs []*ExperimentRun) []string {
	out := make([]string, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.Name())
	}
	return out
}
