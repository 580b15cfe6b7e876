// Package api holds the request and response bodies of the tracking
// service's REST interface.
package api

import "modeldb-client/pkg/domain"

// ============================================================================
// Paths
// ============================================================================

const (
	PathVerifyConnection = "/v1/project/verifyConnection"

	PathCreateProject     = "/v1/project/createProject"
	PathGetProjectByID    = "/v1/project/getProjectById"
	PathGetProjectByName  = "/v1/project/getProjectByName"
	PathCreateExperiment  = "/v1/experiment/createExperiment"
	PathGetExperimentByID = "/v1/experiment/getExperimentById"
	PathGetExperimentName = "/v1/experiment/getExperimentByName"

	PathCreateRun          = "/v1/experiment-run/createExperimentRun"
	PathGetRunByID         = "/v1/experiment-run/getExperimentRunById"
	PathGetRunByName       = "/v1/experiment-run/getExperimentRunByName"
	PathRunsInProject      = "/v1/experiment-run/getExperimentRunsInProject"
	PathRunsInExperiment   = "/v1/experiment-run/getExperimentRunsInExperiment"
	PathFindRuns           = "/v1/experiment-run/findExperimentRuns"
	PathTopRuns            = "/v1/experiment-run/getTopExperimentRuns"
	PathLogAttribute       = "/v1/experiment-run/logAttribute"
	PathLogAttributes      = "/v1/experiment-run/logAttributes"
	PathGetAttributes      = "/v1/experiment-run/getAttributes"
	PathLogMetric          = "/v1/experiment-run/logMetric"
	PathLogMetrics         = "/v1/experiment-run/logMetrics"
	PathGetMetrics         = "/v1/experiment-run/getMetrics"
	PathLogHyperparameter  = "/v1/experiment-run/logHyperparameter"
	PathLogHyperparameters = "/v1/experiment-run/logHyperparameters"
	PathGetHyperparameters = "/v1/experiment-run/getHyperparameters"
	PathLogObservation     = "/v1/experiment-run/logObservation"
	PathGetObservations    = "/v1/experiment-run/getObservations"
	PathAddTags            = "/v1/experiment-run/addExperimentRunTags"
	PathGetTags            = "/v1/experiment-run/getExperimentRunTags"
	PathLogArtifact        = "/v1/experiment-run/logArtifact"
	PathDeleteArtifact     = "/v1/experiment-run/deleteArtifact"
	PathGetArtifacts       = "/v1/experiment-run/getArtifacts"
	PathLogDataset         = "/v1/experiment-run/logDataset"
	PathGetDatasets        = "/v1/experiment-run/getDatasets"
	PathLogCodeVersion     = "/v1/experiment-run/logCodeVersion"
	PathGetCodeVersion     = "/v1/experiment-run/getCodeVersion"

	PathGetURLForArtifact = "/v1/artifact/getUrlForArtifact"

	PathCreateDataset    = "/v1/dataset/createDataset"
	PathGetDatasetByID   = "/v1/dataset/getDatasetById"
	PathGetDatasetByName = "/v1/dataset/getDatasetByName"
	PathFindDatasets     = "/v1/dataset/findDatasets"
	PathCreateVersion    = "/v1/dataset-version/createDatasetVersion"
	PathGetVersionByID   = "/v1/dataset-version/getDatasetVersionById"
	PathGetLatestVersion = "/v1/dataset-version/getLatestDatasetVersionByDatasetId"
	PathGetAllVersions   = "/v1/dataset-version/getAllDatasetVersionsByDatasetId"

	PathDeploymentModels = "/api/v1/deployment/models/"
	PathDeploymentStatus = "/api/v1/deployment/status/"
)

// ============================================================================
// Entities
// ============================================================================

type CreateProjectRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Attributes  []domain.KeyValue `json:"attributes,omitempty"`
}

type ProjectResponse struct {
	Project domain.Project `json:"project"`
}

type CreateExperimentRequest struct {
	ProjectID   string            `json:"project_id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	Attributes  []domain.KeyValue `json:"attributes,omitempty"`
}

type ExperimentResponse struct {
	Experiment domain.Experiment `json:"experiment"`
}

type CreateRunRequest struct {
	ProjectID    string            `json:"project_id"`
	ExperimentID string            `json:"experiment_id"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Attributes   []domain.KeyValue `json:"attributes,omitempty"`
}

type RunResponse struct {
	ExperimentRun domain.ExperimentRun `json:"experiment_run"`
}

type RunsResponse struct {
	ExperimentRuns []domain.ExperimentRun `json:"experiment_runs"`
}

// Predicate filters runs. Key is "<field>.<name>" where field is one of
// metrics, hyperparameters or attributes, or the bare key "name".
type Predicate struct {
	Key      string       `json:"key"`
	Operator string       `json:"operator"`
	Value    domain.Value `json:"value"`
}

type FindRunsRequest struct {
	ProjectID    string      `json:"project_id,omitempty"`
	ExperimentID string      `json:"experiment_id,omitempty"`
	RunIDs       []string    `json:"experiment_run_ids,omitempty"`
	Predicates   []Predicate `json:"predicates,omitempty"`
}

type TopRunsRequest struct {
	ProjectID    string   `json:"project_id,omitempty"`
	ExperimentID string   `json:"experiment_id,omitempty"`
	RunIDs       []string `json:"experiment_run_ids,omitempty"`
	SortKey      string   `json:"sort_key"`
	Ascending    bool     `json:"ascending"`
	TopK         int      `json:"top_k"`
}

// ============================================================================
// Run Logging
// ============================================================================

// LogKeyValueRequest logs a single attribute, metric or hyperparameter.
type LogKeyValueRequest struct {
	ID        string          `json:"id"`
	Entry     domain.KeyValue `json:"entry"`
	Overwrite bool            `json:"overwrite,omitempty"`
}

// LogKeyValuesRequest logs a batch. The batch is applied entirely or not at all.
type LogKeyValuesRequest struct {
	ID        string            `json:"id"`
	Entries   []domain.KeyValue `json:"entries"`
	Overwrite bool              `json:"overwrite,omitempty"`
}

type KeyValuesResponse struct {
	Entries []domain.KeyValue `json:"entries"`
}

type LogObservationRequest struct {
	ID          string             `json:"id"`
	Observation domain.Observation `json:"observation"`
}

type ObservationsResponse struct {
	Observations []domain.Observation `json:"observations"`
}

type AddTagsRequest struct {
	ID   string   `json:"id"`
	Tags []string `json:"tags"`
}

type TagsResponse struct {
	Tags []string `json:"tags"`
}

type LogArtifactRequest struct {
	ID       string             `json:"id"`
	Artifact domain.ArtifactRef `json:"artifact"`
}

type ArtifactsResponse struct {
	Artifacts []domain.ArtifactRef `json:"artifacts"`
}

type LogCodeVersionRequest struct {
	ID          string             `json:"id"`
	CodeVersion domain.CodeVersion `json:"code_version"`
	Overwrite   bool               `json:"overwrite,omitempty"`
}

type CodeVersionResponse struct {
	CodeVersion domain.CodeVersion `json:"code_version"`
}

// ============================================================================
// Artifact Storage
// ============================================================================

type GetURLRequest struct {
	StorageKey string `json:"storage_key"`
	Method     string `json:"method"`
}

type GetURLResponse struct {
	URL string `json:"url"`
}

// ============================================================================
// Datasets
// ============================================================================

type CreateDatasetRequest struct {
	Name        string             `json:"name"`
	DatasetType domain.DatasetType `json:"dataset_type"`
	Description string             `json:"description,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	Attributes  []domain.KeyValue  `json:"attributes,omitempty"`
}

type DatasetResponse struct {
	Dataset domain.Dataset `json:"dataset"`
}

type FindDatasetsRequest struct {
	DatasetIDs []string `json:"dataset_ids,omitempty"`
	Name       string   `json:"name,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

type DatasetsResponse struct {
	Datasets []domain.Dataset `json:"datasets"`
}

// CreateVersionRequest carries a version descriptor. The service assigns
// ID and Version.
type CreateVersionRequest struct {
	DatasetVersion domain.DatasetVersion `json:"dataset_version"`
}

type DatasetVersionResponse struct {
	DatasetVersion domain.DatasetVersion `json:"dataset_version"`
}

type DatasetVersionsResponse struct {
	DatasetVersions []domain.DatasetVersion `json:"dataset_versions"`
}

// ============================================================================
// Deployment
// ============================================================================

// Deployment states reported by the status endpoint.
const (
	StatusNotDeployed = "not deployed"
	StatusDeploying   = "deploying"
	StatusDeployed    = "deployed"
	StatusError       = "error"
)

type DeployRequest struct {
	ModelKey string `json:"model_key,omitempty"`
	APIKey   string `json:"model_api_key,omitempty"`
	Token    string `json:"token,omitempty"`
	NoToken  bool   `json:"no_token,omitempty"`
	Path     string `json:"path,omitempty"`
}

// DeploymentStatus is returned by the status endpoint. API is the
// prediction path once deployed.
type DeploymentStatus struct {
	Status  string `json:"status"`
	Token   string `json:"token,omitempty"`
	API     string `json:"api,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the body of a failed call.
type ErrorResponse struct {
	Message string `json:"message"`
}
