package tracking

import (
	"context"
	"net/url"

	"modeldb-client/pkg/api"
	"modeldb-client/pkg/domain"
)

// ============================================================================
// Project
// ============================================================================

type Project struct {
	client *Client
	name   string
	proxy[domain.Project]
}

// Project returns an unbound handle. The project is fetched or created on
// first use.
func (c *Client) Project(name string, opts ...EntityOption) *Project {
	p := &Project{client: c, name: name}
	o := applyEntityOptions(opts)
	p.fetch = c.projectByID
	p.resolve = func(ctx context.Context) (string, domain.Project, error) {
		rec, err := c.resolveProject(ctx, p.name, o)
		if err == nil {
			p.name = rec.Name
		}
		return rec.ID, rec, err
	}
	return p
}

// GetOrCreateProject returns the named project, creating it when absent.
func (c *Client) GetOrCreateProject(ctx context.Context, name string, opts ...EntityOption) (*Project, error) {
	p := c.Project(name, opts...)
	if _, err := p.ensure(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProject fetches an existing project by id.
func (c *Client) GetProject(ctx context.Context, id string) (*Project, error) {
	return c.GetOrCreateProject(ctx, "", WithID(id))
}

func (c *Client) resolveProject(ctx context.Context, name string, o entityOptions) (domain.Project, error) {
	return getOrCreate(ctx, c, resolver[domain.Project]{
		resource: "project",
		name:     name,
		opts:     o,
		byID:     c.projectByID,
		byName: func(ctx context.Context, name string) (domain.Project, error) {
			var out api.ProjectResponse
			err := c.lookup(ctx, api.PathGetProjectByName, url.Values{"name": {name}}, &out)
			return out.Project, err
		},
		create: func(ctx context.Context, name string) (domain.Project, error) {
			attrs, err := o.keyValues("project")
			if err != nil {
				return domain.Project{}, err
			}
			var out api.ProjectResponse
			err = c.post(ctx, api.PathCreateProject, api.CreateProjectRequest{
				Name:        name,
				Description: o.description,
				Tags:        o.tags,
				Attributes:  attrs,
			}, &out)
			return out.Project, err
		},
	})
}

func (c *Client) projectByID(ctx context.Context, id string) (domain.Project, error) {
	var out api.ProjectResponse
	err := c.lookup(ctx, api.PathGetProjectByID, url.Values{"id": {id}}, &out)
	return out.Project, domain.Annotate(err, "project", id)
}

// ID returns the server-assigned id, or "" while unbound.
func (p *Project) ID() string { return p.id }

func (p *Project) Name() string { return p.name }

// Record returns the project's server fields.
func (p *Project) Record(ctx context.Context) (domain.Project, error) {
	rec, err := p.record(ctx)
	if err == nil {
		p.name = rec.Name
	}
	return rec, err
}

// Experiment returns an unbound experiment handle in this project.
func (p *Project) Experiment(name string, opts ...EntityOption) *Experiment {
	return newExperiment(p.client, p, name, applyEntityOptions(opts))
}

// GetOrCreateExperiment returns the named experiment in this project,
// creating it when absent.
func (p *Project) GetOrCreateExperiment(ctx context.Context, name string, opts ...EntityOption) (*Experiment, error) {
	e := p.Experiment(name, opts...)
	if _, err := e.ensure(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Runs lists every run in the project in creation order.
func (p *Project) Runs(ctx context.Context) ([]*ExperimentRun, error) {
	id, err := p.ensure(ctx)
	if err != nil {
		return nil, err
	}
	var out api.RunsResponse
	if err := p.client.lookup(ctx, api.PathRunsInProject, url.Values{"project_id": {id}}, &out); err != nil {
		return nil, domain.Annotate(err, "project", p.name)
	}
	return p.client.boundRuns(out.ExperimentRuns), nil
}

// ============================================================================
// Experiment
// ============================================================================

type Experiment struct {
	client  *Client
	project *Project
	name    string
	proxy[domain.Experiment]
}

func newExperiment(c *Client, p *Project, name string, o entityOptions) *Experiment {
	e := &Experiment{client: c, project: p, name: name}
	e.fetch = c.experimentByID
	e.resolve = func(ctx context.Context) (string, domain.Experiment, error) {
		var projectID string
		if o.id == "" {
			var err error
			if projectID, err = p.ensure(ctx); err != nil {
				return "", domain.Experiment{}, err
			}
		}
		rec, err := c.resolveExperiment(ctx, projectID, e.name, o)
		if err == nil {
			e.name = rec.Name
		}
		return rec.ID, rec, err
	}
	return e
}

// GetExperiment fetches an existing experiment by id.
func (c *Client) GetExperiment(ctx context.Context, id string) (*Experiment, error) {
	rec, err := c.experimentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.boundExperiment(rec), nil
}

func (c *Client) boundExperiment(rec domain.Experiment) *Experiment {
	p := &Project{client: c}
	p.fetch = c.projectByID
	p.attach(rec.ProjectID)

	e := &Experiment{client: c, project: p, name: rec.Name}
	e.fetch = c.experimentByID
	e.bind(rec.ID, rec)
	return e
}

func (c *Client) resolveExperiment(ctx context.Context, projectID, name string, o entityOptions) (domain.Experiment, error) {
	return getOrCreate(ctx, c, resolver[domain.Experiment]{
		resource: "experiment",
		name:     name,
		opts:     o,
		byID:     c.experimentByID,
		byName: func(ctx context.Context, name string) (domain.Experiment, error) {
			var out api.ExperimentResponse
			err := c.lookup(ctx, api.PathGetExperimentName, url.Values{"project_id": {projectID}, "name": {name}}, &out)
			return out.Experiment, err
		},
		create: func(ctx context.Context, name string) (domain.Experiment, error) {
			attrs, err := o.keyValues("experiment")
			if err != nil {
				return domain.Experiment{}, err
			}
			var out api.ExperimentResponse
			err = c.post(ctx, api.PathCreateExperiment, api.CreateExperimentRequest{
				ProjectID:   projectID,
				Name:        name,
				Description: o.description,
				Tags:        o.tags,
				Attributes:  attrs,
			}, &out)
			return out.Experiment, err
		},
	})
}

func (c *Client) experimentByID(ctx context.Context, id string) (domain.Experiment, error) {
	var out api.ExperimentResponse
	err := c.lookup(ctx, api.PathGetExperimentByID, url.Values{"id": {id}}, &out)
	return out.Experiment, domain.Annotate(err, "experiment", id)
}

func (e *Experiment) ID() string { return e.id }

func (e *Experiment) Name() string { return e.name }

func (e *Experiment) Project() *Project { return e.project }

func (e *Experiment) Record(ctx context.Context) (domain.Experiment, error) {
	return e.record(ctx)
}

// Run returns an unbound run handle in this experiment.
func (e *Experiment) Run(name string, opts ...EntityOption) *ExperimentRun {
	return newRun(e.client, e, name, applyEntityOptions(opts))
}

// GetOrCreateRun returns the named run in this experiment, creating it when
// absent.
func (e *Experiment) GetOrCreateRun(ctx context.Context, name string, opts ...EntityOption) (*ExperimentRun, error) {
	r := e.Run(name, opts...)
	if _, err := r.ensure(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Runs lists this experiment's runs in creation order.
func (e *Experiment) Runs(ctx context.Context) ([]*ExperimentRun, error) {
	id, err := e.ensure(ctx)
	if err != nil {
		return nil, err
	}
	var out api.RunsResponse
	if err := e.client.lookup(ctx, api.PathRunsInExperiment, url.Values{"experiment_id": {id}}, &out); err != nil {
		return nil, domain.Annotate(err, "experiment", e.name)
	}
	return e.client.boundRuns(out.ExperimentRuns), nil
}
