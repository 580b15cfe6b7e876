package fakeserver

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"modeldb-client/pkg/api"
	"modeldb-client/pkg/domain"
)

type runState struct {
	seq             int
	run             domain.ExperimentRun
	attributes      map[string]domain.Value
	metrics         map[string]domain.Value
	hyperparameters map[string]domain.Value
	observations    []domain.Observation
	tags            []string
	artifacts       map[string]domain.ArtifactRef
	datasets        map[string]domain.ArtifactRef
	codeVersion     *domain.CodeVersion
}

type deployment struct {
	status    string
	token     string
	pending   int
	message   string
	requested api.DeployRequest
}

// store is the in-memory state of the fake service. All methods lock.
type store struct {
	mu sync.Mutex

	projects    map[string]*domain.Project
	experiments map[string]*domain.Experiment
	runs        map[string]*runState
	datasets    map[string]*domain.Dataset
	versions    map[string]*domain.DatasetVersion
	deployments map[string]*deployment

	now func() time.Time
}

func newStore() *store {
	return &store{
		projects:    make(map[string]*domain.Project),
		experiments: make(map[string]*domain.Experiment),
		runs:        make(map[string]*runState),
		datasets:    make(map[string]*domain.Dataset),
		versions:    make(map[string]*domain.DatasetVersion),
		deployments: make(map[string]*deployment),
		now:         time.Now,
	}
}

func notFound(kind, key string) error {
	return fmt.Errorf("%s %q: %w", kind, key, domain.ErrNotFound)
}

func conflict(kind, key string) error {
	return fmt.Errorf("%s %q already exists: %w", kind, key, domain.ErrConflict)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), domain.ErrValidation)
}

// ============================================================================
// Projects & Experiments
// ============================================================================

func (s *store) createProject(req api.CreateProjectRequest) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Name == "" {
		return domain.Project{}, invalid("project name is required")
	}
	for _, p := range s.projects {
		if p.Name == req.Name {
			return domain.Project{}, conflict("project", req.Name)
		}
	}
	p := &domain.Project{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Tags:        req.Tags,
		Attributes:  req.Attributes,
		DateCreated: domain.ToMillis(s.now()),
	}
	s.projects[p.ID] = p
	return *p, nil
}

func (s *store) project(id string) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return domain.Project{}, notFound("project", id)
	}
	return *p, nil
}

func (s *store) projectByName(name string) (domain.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		if p.Name == name {
			return *p, nil
		}
	}
	return domain.Project{}, notFound("project", name)
}

func (s *store) createExperiment(req api.CreateExperimentRequest) (domain.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Name == "" {
		return domain.Experiment{}, invalid("experiment name is required")
	}
	if _, ok := s.projects[req.ProjectID]; !ok {
		return domain.Experiment{}, notFound("project", req.ProjectID)
	}
	for _, e := range s.experiments {
		if e.ProjectID == req.ProjectID && e.Name == req.Name {
			return domain.Experiment{}, conflict("experiment", req.Name)
		}
	}
	e := &domain.Experiment{
		ID:          uuid.NewString(),
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Description: req.Description,
		Tags:        req.Tags,
		Attributes:  req.Attributes,
		DateCreated: domain.ToMillis(s.now()),
	}
	s.experiments[e.ID] = e
	return *e, nil
}

func (s *store) experiment(id string) (domain.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.experiments[id]
	if !ok {
		return domain.Experiment{}, notFound("experiment", id)
	}
	return *e, nil
}

func (s *store) experimentByName(projectID, name string) (domain.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.experiments {
		if e.ProjectID == projectID && e.Name == name {
			return *e, nil
		}
	}
	return domain.Experiment{}, notFound("experiment", name)
}

// ============================================================================
// Runs
// ============================================================================

func (s *store) createRun(req api.CreateRunRequest) (domain.ExperimentRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Name == "" {
		return domain.ExperimentRun{}, invalid("experiment run name is required")
	}
	exp, ok := s.experiments[req.ExperimentID]
	if !ok {
		return domain.ExperimentRun{}, notFound("experiment", req.ExperimentID)
	}
	if req.ProjectID != exp.ProjectID {
		return domain.ExperimentRun{}, invalid("experiment %s does not belong to project %s", exp.ID, req.ProjectID)
	}
	for _, r := range s.runs {
		if r.run.ExperimentID == req.ExperimentID && r.run.Name == req.Name {
			return domain.ExperimentRun{}, conflict("experiment run", req.Name)
		}
	}
	rs := &runState{
		seq: len(s.runs),
		run: domain.ExperimentRun{
			ID:           uuid.NewString(),
			ProjectID:    exp.ProjectID,
			ExperimentID: exp.ID,
			Name:         req.Name,
			Description:  req.Description,
			DateCreated:  domain.ToMillis(s.now()),
		},
		attributes:      domain.KeyValueMap(req.Attributes),
		metrics:         make(map[string]domain.Value),
		hyperparameters: make(map[string]domain.Value),
		tags:            append([]string(nil), req.Tags...),
		artifacts:       make(map[string]domain.ArtifactRef),
		datasets:        make(map[string]domain.ArtifactRef),
	}
	s.runs[rs.run.ID] = rs
	return s.snapshot(rs), nil
}

// snapshot renders a run with its logged state. Caller holds the lock.
func (s *store) snapshot(rs *runState) domain.ExperimentRun {
	out := rs.run
	out.Attributes = domain.KeyValues(rs.attributes)
	out.Metrics = domain.KeyValues(rs.metrics)
	out.Hyperparameters = domain.KeyValues(rs.hyperparameters)
	out.Observations = append([]domain.Observation(nil), rs.observations...)
	out.Tags = append([]string(nil), rs.tags...)
	out.Artifacts = sortedRefs(rs.artifacts)
	out.Datasets = sortedRefs(rs.datasets)
	return out
}

func sortedRefs(m map[string]domain.ArtifactRef) []domain.ArtifactRef {
	out := make([]domain.ArtifactRef, 0, len(m))
	for _, ref := range m {
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *store) getRun(id string) (*runState, error) {
	rs, ok := s.runs[id]
	if !ok {
		return nil, notFound("experiment run", id)
	}
	return rs, nil
}

func (s *store) run(id string) (domain.ExperimentRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, err := s.getRun(id)
	if err != nil {
		return domain.ExperimentRun{}, err
	}
	return s.snapshot(rs), nil
}

func (s *store) runByName(experimentID, name string) (domain.ExperimentRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rs := range s.runs {
		if rs.run.ExperimentID == experimentID && rs.run.Name == name {
			return s.snapshot(rs), nil
		}
	}
	return domain.ExperimentRun{}, notFound("experiment run", name)
}

// runsWhere returns matching runs in creation order.
func (s *store) runsWhere(match func(*runState) bool) []domain.ExperimentRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*runState
	for _, rs := range s.runs {
		if match(rs) {
			matched = append(matched, rs)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	out := make([]domain.ExperimentRun, 0, len(matched))
	for _, rs := range matched {
		out = append(out, s.snapshot(rs))
	}
	return out
}

func scope(projectID, experimentID string, ids []string) func(*runState) bool {
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	return func(rs *runState) bool {
		if projectID != "" && rs.run.ProjectID != projectID {
			return false
		}
		if experimentID != "" && rs.run.ExperimentID != experimentID {
			return false
		}
		if len(idSet) > 0 && !idSet[rs.run.ID] {
			return false
		}
		return true
	}
}

// ============================================================================
// Key-Value Logging
// ============================================================================

type kvField int

const (
	fieldAttributes kvField = iota
	fieldMetrics
	fieldHyperparameters
)

func (f kvField) String() string {
	switch f {
	case fieldMetrics:
		return "metric"
	case fieldHyperparameters:
		return "hyperparameter"
	default:
		return "attribute"
	}
}

func (rs *runState) field(f kvField) map[string]domain.Value {
	switch f {
	case fieldMetrics:
		return rs.metrics
	case fieldHyperparameters:
		return rs.hyperparameters
	default:
		return rs.attributes
	}
}

// logKeyValues applies entries all-or-nothing. An existing key with an
// equal value is accepted; a different value conflicts unless overwrite.
func (s *store) logKeyValues(runID string, f kvField, entries []domain.KeyValue, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.getRun(runID)
	if err != nil {
		return err
	}
	target := rs.field(f)

	seen := make(map[string]bool, len(entries))
	for _, kv := range entries {
		if kv.Key == "" {
			return invalid("%s key is required", f)
		}
		if seen[kv.Key] {
			return invalid("%s %q repeated in batch", f, kv.Key)
		}
		seen[kv.Key] = true
		if f != fieldAttributes && !kv.Value.IsScalar() {
			return invalid("%s %q must be a scalar", f, kv.Key)
		}
		if existing, ok := target[kv.Key]; ok && !overwrite && !existing.Equal(kv.Value) {
			return conflict(f.String(), kv.Key)
		}
	}
	for _, kv := range entries {
		target[kv.Key] = kv.Value
	}
	return nil
}

func (s *store) keyValues(runID string, f kvField, keys []string) ([]domain.KeyValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}
	all := rs.field(f)
	if len(keys) == 0 {
		return domain.KeyValues(all), nil
	}
	picked := make(map[string]domain.Value, len(keys))
	for _, k := range keys {
		if v, ok := all[k]; ok {
			picked[k] = v
		}
	}
	return domain.KeyValues(picked), nil
}

func (s *store) logObservation(runID string, obs domain.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.getRun(runID)
	if err != nil {
		return err
	}
	if obs.Key == "" {
		return invalid("observation key is required")
	}
	if !obs.Value.IsScalar() {
		return invalid("observation %q must be a scalar", obs.Key)
	}
	if obs.Timestamp == 0 {
		obs.Timestamp = domain.ToMillis(s.now())
	}
	rs.observations = append(rs.observations, obs)
	return nil
}

func (s *store) observations(runID, key string) ([]domain.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}
	var out []domain.Observation
	for _, o := range rs.observations {
		if key == "" || o.Key == key {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *store) addTags(runID string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.getRun(runID)
	if err != nil {
		return err
	}
	for _, t := range tags {
		if !containsString(rs.tags, t) {
			rs.tags = append(rs.tags, t)
		}
	}
	return nil
}

func (s *store) tags(runID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}
	return append([]string{}, rs.tags...), nil
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// ============================================================================
// Artifacts, Datasets & Code
// ============================================================================

func (s *store) logArtifact(runID string, ref domain.ArtifactRef, dataset bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.getRun(runID)
	if err != nil {
		return err
	}
	if ref.Key == "" {
		return invalid("artifact key is required")
	}
	target := rs.artifacts
	kind := "artifact"
	if dataset {
		target, kind = rs.datasets, "dataset"
	}
	if _, ok := target[ref.Key]; ok {
		return conflict(kind, ref.Key)
	}
	target[ref.Key] = ref
	return nil
}

func (s *store) deleteArtifact(runID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.getRun(runID)
	if err != nil {
		return err
	}
	if _, ok := rs.artifacts[key]; ok {
		delete(rs.artifacts, key)
		return nil
	}
	if _, ok := rs.datasets[key]; ok {
		delete(rs.datasets, key)
		return nil
	}
	return notFound("artifact", key)
}

func (s *store) artifacts(runID string, dataset bool) ([]domain.ArtifactRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.getRun(runID)
	if err != nil {
		return nil, err
	}
	if dataset {
		return sortedRefs(rs.datasets), nil
	}
	return sortedRefs(rs.artifacts), nil
}

func (s *store) logCodeVersion(runID string, cv domain.CodeVersion, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.getRun(runID)
	if err != nil {
		return err
	}
	if rs.codeVersion != nil && !overwrite {
		return conflict("code version", runID)
	}
	if cv.DateLogged == 0 {
		cv.DateLogged = domain.ToMillis(s.now())
	}
	rs.codeVersion = &cv
	return nil
}

func (s *store) codeVersion(runID string) (domain.CodeVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.getRun(runID)
	if err != nil {
		return domain.CodeVersion{}, err
	}
	if rs.codeVersion == nil {
		return domain.CodeVersion{}, notFound("code version", runID)
	}
	return *rs.codeVersion, nil
}

// ============================================================================
// Datasets
// ============================================================================

func (s *store) createDataset(req api.CreateDatasetRequest) (domain.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Name == "" {
		return domain.Dataset{}, invalid("dataset name is required")
	}
	if !req.DatasetType.Valid() {
		return domain.Dataset{}, invalid("unknown dataset type %q", req.DatasetType)
	}
	for _, d := range s.datasets {
		if d.Name == req.Name {
			return domain.Dataset{}, conflict("dataset", req.Name)
		}
	}
	now := domain.ToMillis(s.now())
	d := &domain.Dataset{
		ID:          uuid.NewString(),
		Name:        req.Name,
		DatasetType: req.DatasetType,
		Description: req.Description,
		Tags:        req.Tags,
		Attributes:  req.Attributes,
		TimeCreated: now,
		TimeUpdated: now,
	}
	s.datasets[d.ID] = d
	return *d, nil
}

func (s *store) dataset(id string) (domain.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.datasets[id]
	if !ok {
		return domain.Dataset{}, notFound("dataset", id)
	}
	return *d, nil
}

func (s *store) datasetByName(name string) (domain.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.datasets {
		if d.Name == name {
			return *d, nil
		}
	}
	return domain.Dataset{}, notFound("dataset", name)
}

func (s *store) findDatasets(req api.FindDatasetsRequest) []domain.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Dataset
	for _, d := range s.datasets {
		if len(req.DatasetIDs) > 0 && !containsString(req.DatasetIDs, d.ID) {
			continue
		}
		if req.Name != "" && !strings.Contains(d.Name, req.Name) {
			continue
		}
		hasAll := true
		for _, t := range req.Tags {
			if !containsString(d.Tags, t) {
				hasAll = false
				break
			}
		}
		if hasAll {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *store) createVersion(v domain.DatasetVersion) (domain.DatasetVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.datasets[v.DatasetID]
	if !ok {
		return domain.DatasetVersion{}, notFound("dataset", v.DatasetID)
	}
	if v.DatasetType != d.DatasetType {
		return domain.DatasetVersion{}, invalid("version type %q does not match dataset type %q", v.DatasetType, d.DatasetType)
	}
	var latest int64
	for _, existing := range s.versions {
		if existing.DatasetID == d.ID && existing.Version > latest {
			latest = existing.Version
		}
	}
	v.ID = uuid.NewString()
	v.Version = latest + 1
	if v.TimeLogged == 0 {
		v.TimeLogged = domain.ToMillis(s.now())
	}
	s.versions[v.ID] = &v
	d.TimeUpdated = v.TimeLogged
	return v, nil
}

func (s *store) version(id string) (domain.DatasetVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[id]
	if !ok {
		return domain.DatasetVersion{}, notFound("dataset version", id)
	}
	return *v, nil
}

// versionsOf returns a dataset's versions oldest first.
func (s *store) versionsOf(datasetID string) ([]domain.DatasetVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.datasets[datasetID]; !ok {
		return nil, notFound("dataset", datasetID)
	}
	var out []domain.DatasetVersion
	for _, v := range s.versions {
		if v.DatasetID == datasetID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// ============================================================================
// Deployment
// ============================================================================

func (s *store) deploy(runID string, req api.DeployRequest, pending int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getRun(runID); err != nil {
		return err
	}
	token := req.Token
	if token == "" && !req.NoToken {
		token = uuid.NewString()
	}
	if req.NoToken {
		token = ""
	}
	st := api.StatusDeploying
	if pending <= 0 {
		st = api.StatusDeployed
	}
	s.deployments[runID] = &deployment{status: st, token: token, pending: pending, requested: req}
	return nil
}

func (s *store) undeploy(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getRun(runID); err != nil {
		return err
	}
	delete(s.deployments, runID)
	return nil
}

// deploymentStatus advances a pending deployment by one poll.
func (s *store) deploymentStatus(runID string) (api.DeploymentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getRun(runID); err != nil {
		return api.DeploymentStatus{}, err
	}
	d, ok := s.deployments[runID]
	if !ok {
		return api.DeploymentStatus{Status: api.StatusNotDeployed}, nil
	}
	if d.status == api.StatusDeploying {
		d.pending--
		if d.pending <= 0 {
			d.status = api.StatusDeployed
		}
	}
	out := api.DeploymentStatus{Status: d.status, Message: d.message}
	if d.status == api.StatusDeployed {
		out.Token = d.token
	}
	return out, nil
}

func (s *store) failDeployment(runID, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.deployments[runID]; ok {
		d.status = api.StatusError
		d.message = message
	}
}

func (s *store) deployed(runID string) (*deployment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deployments[runID]
	if !ok || d.status != api.StatusDeployed {
		return nil, false
	}
	cp := *d
	return &cp, true
}

func (s *store) deployRequest(runID string) (api.DeployRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deployments[runID]
	if !ok {
		return api.DeployRequest{}, false
	}
	return d.requested, true
}
