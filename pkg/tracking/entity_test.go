package tracking

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modeldb-client/pkg/api"
	"modeldb-client/pkg/config"
	"modeldb-client/pkg/domain"
)

func TestGetOrCreateProject_Idempotent(t *testing.T) {
	c, srv := newTestClient(t, nil)
	ctx := context.Background()

	first, err := c.GetOrCreateProject(ctx, "churn", WithDescription("d"), WithTags("a"))
	require.NoError(t, err)
	second, err := c.GetOrCreateProject(ctx, "churn")
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID())
	assert.Equal(t, first.ID(), second.ID())
	assert.Equal(t, 1, srv.Calls(api.PathCreateProject))

	rec, err := second.Record(ctx)
	require.NoError(t, err)
	assert.Equal(t, "d", rec.Description)
	assert.Equal(t, []string{"a"}, rec.Tags)
}

func TestProject_LazyBinding(t *testing.T) {
	c, srv := newTestClient(t, nil)
	ctx := context.Background()

	p := c.Project("lazy")
	e := p.Experiment("exp")
	r := e.Run("run")
	assert.Empty(t, p.ID())
	assert.Empty(t, r.ID())
	assert.Zero(t, srv.Calls(api.PathCreateProject))

	require.NoError(t, r.LogMetric(ctx, "acc", 0.5))
	assert.NotEmpty(t, p.ID())
	assert.NotEmpty(t, e.ID())
	assert.NotEmpty(t, r.ID())
	assert.Equal(t, 1, srv.Calls(api.PathCreateRun))

	// a bound handle never resolves again
	require.NoError(t, r.LogMetric(ctx, "loss", 0.1))
	assert.Equal(t, 1, srv.Calls(api.PathGetRunByName))
}

func TestProject_DefaultName(t *testing.T) {
	c, srv := newTestClient(t, nil)

	p, err := c.GetOrCreateProject(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.Name(), "project-"), p.Name())
	assert.Zero(t, srv.Calls(api.PathGetProjectByName))
}

func TestGetProject_ByID(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()

	created, err := c.GetOrCreateProject(ctx, "by-id")
	require.NoError(t, err)

	got, err := c.GetProject(ctx, created.ID())
	require.NoError(t, err)
	assert.Equal(t, "by-id", got.Name())

	_, err = c.GetProject(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetOrCreate_InvalidAttribute(t *testing.T) {
	c, srv := newTestClient(t, nil)

	_, err := c.GetOrCreateProject(context.Background(), "p", WithAttributes(map[string]any{"bad key": 1}))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, srv.Calls(api.PathCreateProject))
}

// The by-name lookup misses, then create collides with a project another
// writer made in between.
func TestGetOrCreate_RaceLooksUpExisting(t *testing.T) {
	c, srv := newTestClient(t, nil)
	ctx := context.Background()

	existing, err := c.GetOrCreateProject(ctx, "shared")
	require.NoError(t, err)

	srv.FailNext(api.PathGetProjectByName, http.StatusNotFound)
	got, err := c.GetOrCreateProject(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, existing.ID(), got.ID())
	assert.Equal(t, 2, srv.Calls(api.PathCreateProject))
}

func TestGetOrCreate_RaceFailMode(t *testing.T) {
	c, srv := newTestClient(t, func(cfg *config.Config) { cfg.OnConflict = config.OnConflictFail })
	ctx := context.Background()

	_, err := c.GetOrCreateProject(ctx, "shared")
	require.NoError(t, err)

	srv.FailNext(api.PathGetProjectByName, http.StatusNotFound)
	_, err = c.GetOrCreateProject(ctx, "shared")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)

	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "project", de.Resource)
}

func TestExperiment_ScopedToProject(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()

	a, err := c.GetOrCreateProject(ctx, "a")
	require.NoError(t, err)
	b, err := c.GetOrCreateProject(ctx, "b")
	require.NoError(t, err)

	ea, err := a.GetOrCreateExperiment(ctx, "same")
	require.NoError(t, err)
	eb, err := b.GetOrCreateExperiment(ctx, "same")
	require.NoError(t, err)
	assert.NotEqual(t, ea.ID(), eb.ID())

	got, err := c.GetExperiment(ctx, ea.ID())
	require.NoError(t, err)
	assert.Equal(t, a.ID(), got.Project().ID())
}

func TestRuns_ListInCreationOrder(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()

	first := newTestRun(t, c, "first")
	second := newTestRun(t, c, "second")

	runs, err := first.Experiment().Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, first.ID(), runs[0].ID())
	assert.Equal(t, second.ID(), runs[1].ID())

	fetched, err := c.GetRun(ctx, second.ID())
	require.NoError(t, err)
	assert.Equal(t, "second", fetched.Name())
	assert.Equal(t, first.Experiment().ID(), fetched.Experiment().ID())
}

func TestRun_ExperimentBoundByID(t *testing.T) {
	c, _ := newTestClient(t, nil)
	ctx := context.Background()

	p, err := c.GetOrCreateProject(ctx, "p")
	require.NoError(t, err)
	e, err := p.GetOrCreateExperiment(ctx, "e")
	require.NoError(t, err)

	byID := c.Project("elsewhere").Experiment("", WithID(e.ID()))
	r, err := byID.GetOrCreateRun(ctx, "r")
	require.NoError(t, err)

	rec, err := r.Record(ctx)
	require.NoError(t, err)
	assert.Equal(t, p.ID(), rec.ProjectID)
	assert.Equal(t, e.ID(), rec.ExperimentID)
	assert.Empty(t, byID.Project().ID())
}
