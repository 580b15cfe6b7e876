package tracking

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"modeldb-client/pkg/api"
	"modeldb-client/pkg/domain"
	"modeldb-client/pkg/modelapi"
	"modeldb-client/pkg/transport"
)

const defaultPollInterval = 5 * time.Second

type deployOptions struct {
	req      api.DeployRequest
	wait     bool
	interval time.Duration
}

type DeployOption func(*deployOptions)

// WithDeployPath serves the model under a custom path.
func WithDeployPath(path string) DeployOption {
	return func(o *deployOptions) { o.req.Path = path }
}

// WithToken requires predictions to carry token.
func WithToken(token string) DeployOption {
	return func(o *deployOptions) { o.req.Token, o.req.NoToken = token, false }
}

// WithNoToken serves predictions without an access token.
func WithNoToken() DeployOption {
	return func(o *deployOptions) { o.req.Token, o.req.NoToken = "", true }
}

// WithWait blocks Deploy until the deployment leaves the deploying state,
// polling every interval. A non-positive interval uses the default.
func WithWait(interval time.Duration) DeployOption {
	return func(o *deployOptions) {
		o.wait = true
		if interval > 0 {
			o.interval = interval
		}
	}
}

// Deploy asks the service to serve the run's logged model. Without WithWait
// it returns as soon as the request is accepted.
func (r *ExperimentRun) Deploy(ctx context.Context, opts ...DeployOption) (api.DeploymentStatus, error) {
	o := deployOptions{
		req:      api.DeployRequest{ModelKey: ModelKey, APIKey: modelapi.FileName},
		interval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	id, err := r.ensure(ctx)
	if err != nil {
		return api.DeploymentStatus{}, err
	}

	_, err = r.client.call(ctx, transport.Request{
		Method: http.MethodPut,
		Path:   api.PathDeploymentModels + id,
		JSON:   o.req,
	}, nil)
	if err != nil {
		return api.DeploymentStatus{}, domain.Annotate(err, "deployment", r.name)
	}
	r.logger().WithField("path", o.req.Path).Info("deployment requested")

	if !o.wait {
		return api.DeploymentStatus{Status: api.StatusDeploying}, nil
	}
	return r.awaitDeployment(ctx, id, o.interval)
}

func (r *ExperimentRun) awaitDeployment(ctx context.Context, id string, interval time.Duration) (api.DeploymentStatus, error) {
	for polls := 1; ; polls++ {
		st, err := r.deploymentStatus(ctx, id)
		if err != nil {
			return st, err
		}
		switch st.Status {
		case api.StatusDeployed:
			r.logger().WithFields(log.Fields{"polls": polls, "api": st.API}).Info("model deployed")
			return st, nil
		case api.StatusError:
			return st, &domain.Error{Kind: domain.ErrPrediction, Resource: "deployment", Key: r.name, Message: st.Message}
		case api.StatusNotDeployed:
			return st, domain.NewError(domain.ErrNotFound, "deployment", r.name, "deployment disappeared while waiting")
		}
		if err := r.client.sleep(ctx, interval); err != nil {
			return st, &domain.Error{Kind: domain.ErrTransport, Resource: "deployment", Key: r.name, Err: err}
		}
	}
}

// Undeploy stops serving the run's model.
func (r *ExperimentRun) Undeploy(ctx context.Context) error {
	id, err := r.ensure(ctx)
	if err != nil {
		return err
	}
	_, err = r.client.call(ctx, transport.Request{Method: http.MethodDelete, Path: api.PathDeploymentModels + id}, nil)
	if err != nil {
		return domain.Annotate(err, "deployment", r.name)
	}
	r.logger().Info("model undeployed")
	return nil
}

// DeploymentStatus reports the current deployment state. The token and
// prediction path are only present once deployed.
func (r *ExperimentRun) DeploymentStatus(ctx context.Context) (api.DeploymentStatus, error) {
	id, err := r.ensure(ctx)
	if err != nil {
		return api.DeploymentStatus{}, err
	}
	return r.deploymentStatus(ctx, id)
}

func (r *ExperimentRun) deploymentStatus(ctx context.Context, id string) (api.DeploymentStatus, error) {
	var st api.DeploymentStatus
	if err := r.client.lookup(ctx, api.PathDeploymentStatus+id, nil, &st); err != nil {
		return st, domain.Annotate(err, "deployment", r.name)
	}
	return st, nil
}
