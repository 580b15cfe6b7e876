// Package fakeserver is an in-memory tracking service speaking the REST
// surface the client consumes. Tests start it with Start; cmd/modeldb-stub
// serves its Handler.
package fakeserver

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"modeldb-client/internal/middleware"
	"modeldb-client/pkg/api"
	"modeldb-client/pkg/artifact"
)

// PathPredict prefixes the prediction endpoint reported in deployment status.
const PathPredict = "/api/v1/predict/"

// Predictor answers a prediction for a deployed run. A returned error is
// reported as a 502 carrying the error text.
type Predictor func(runID string, payload []byte) (any, error)

type Options struct {
	// Email and DevKey are the accepted credentials. Empty Email accepts all.
	Email  string
	DevKey string
	// DeployPolls is how many status polls a deployment stays "deploying".
	DeployPolls int
	Predictor   Predictor
	Logger      *log.Entry
}

type Server struct {
	engine *gin.Engine
	store  *store
	blobs  *artifact.MemoryStore
	opts   Options

	mu       sync.Mutex
	calls    map[string]int
	failures map[string][]int
	requests map[string][]*http.Request

	// URL is set by Start.
	URL  string
	test *httptest.Server
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "fakeserver")
	}
	if opts.Predictor == nil {
		opts.Predictor = echoPredictor
	}

	gin.SetMode(gin.TestMode)
	s := &Server{
		engine:   gin.New(),
		store:    newStore(),
		blobs:    artifact.NewMemoryStore(),
		opts:     opts,
		calls:    make(map[string]int),
		failures: make(map[string][]int),
		requests: make(map[string][]*http.Request),
	}
	s.engine.Use(gin.Recovery(), middleware.RequestID(), middleware.Logging(opts.Logger), s.record)
	s.registerRoutes()
	return s
}

// Start serves s on a local listener until the test ends.
func Start(t testing.TB, opts Options) *Server {
	t.Helper()
	s := New(opts)
	s.test = httptest.NewServer(s.engine)
	s.URL = s.test.URL
	t.Cleanup(s.test.Close)
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) registerRoutes() {
	// Blob storage is reached through presigned URLs and carries no credentials.
	s.engine.HEAD("/blobs/*key", s.headBlob)
	s.engine.GET("/blobs/*key", s.getBlob)
	s.engine.PUT("/blobs/*key", s.putBlob)

	s.engine.POST(PathPredict+":run_id", s.predict)

	r := s.engine.Group("/", middleware.Identity(s.opts.Email, s.opts.DevKey))

	r.GET(api.PathVerifyConnection, s.verifyConnection)

	// Projects & Experiments
	r.POST(api.PathCreateProject, s.createProject)
	r.GET(api.PathGetProjectByID, s.getProject)
	r.GET(api.PathGetProjectByName, s.getProjectByName)
	r.POST(api.PathCreateExperiment, s.createExperiment)
	r.GET(api.PathGetExperimentByID, s.getExperiment)
	r.GET(api.PathGetExperimentName, s.getExperimentByName)

	// Runs
	r.POST(api.PathCreateRun, s.createRun)
	r.GET(api.PathGetRunByID, s.getRun)
	r.GET(api.PathGetRunByName, s.getRunByName)
	r.GET(api.PathRunsInProject, s.runsInProject)
	r.GET(api.PathRunsInExperiment, s.runsInExperiment)
	r.POST(api.PathFindRuns, s.findRuns)
	r.POST(api.PathTopRuns, s.topRuns)

	// Run Logging
	r.POST(api.PathLogAttribute, s.logKeyValue(fieldAttributes))
	r.POST(api.PathLogAttributes, s.logKeyValues(fieldAttributes))
	r.GET(api.PathGetAttributes, s.getKeyValues(fieldAttributes))
	r.POST(api.PathLogMetric, s.logKeyValue(fieldMetrics))
	r.POST(api.PathLogMetrics, s.logKeyValues(fieldMetrics))
	r.GET(api.PathGetMetrics, s.getKeyValues(fieldMetrics))
	r.POST(api.PathLogHyperparameter, s.logKeyValue(fieldHyperparameters))
	r.POST(api.PathLogHyperparameters, s.logKeyValues(fieldHyperparameters))
	r.GET(api.PathGetHyperparameters, s.getKeyValues(fieldHyperparameters))
	r.POST(api.PathLogObservation, s.logObservation)
	r.GET(api.PathGetObservations, s.getObservations)
	r.POST(api.PathAddTags, s.addTags)
	r.GET(api.PathGetTags, s.getTags)

	// Artifacts & Code
	r.POST(api.PathLogArtifact, s.logArtifact(false))
	r.DELETE(api.PathDeleteArtifact, s.deleteArtifact)
	r.GET(api.PathGetArtifacts, s.getArtifacts(false))
	r.POST(api.PathLogDataset, s.logArtifact(true))
	r.GET(api.PathGetDatasets, s.getArtifacts(true))
	r.POST(api.PathLogCodeVersion, s.logCodeVersion)
	r.GET(api.PathGetCodeVersion, s.getCodeVersion)
	r.POST(api.PathGetURLForArtifact, s.getURLForArtifact)

	// Datasets
	r.POST(api.PathCreateDataset, s.createDataset)
	r.GET(api.PathGetDatasetByID, s.getDataset)
	r.GET(api.PathGetDatasetByName, s.getDatasetByName)
	r.POST(api.PathFindDatasets, s.findDatasets)
	r.POST(api.PathCreateVersion, s.createVersion)
	r.GET(api.PathGetVersionByID, s.getVersion)
	r.GET(api.PathGetLatestVersion, s.getLatestVersion)
	r.GET(api.PathGetAllVersions, s.getAllVersions)

	// Deployment
	r.GET(api.PathDeploymentStatus+":run_id", s.deploymentStatus)
	r.PUT(api.PathDeploymentModels+":run_id", s.deploy)
	r.DELETE(api.PathDeploymentModels+":run_id", s.undeploy)
}

// ============================================================================
// Fault Injection & Inspection
// ============================================================================

// FailNext makes the next len(codes) requests to path answer with codes, in order.
func (s *Server) FailNext(path string, codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] = append(s.failures[path], codes...)
}

// Calls reports how many requests reached path, injected failures included.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// Requests returns the requests received on path in arrival order.
func (s *Server) Requests(path string) []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*http.Request(nil), s.requests[path]...)
}

// FailDeployment moves a run's deployment into the error state.
func (s *Server) FailDeployment(runID, message string) {
	s.store.failDeployment(runID, message)
}

// DeployRequest returns the last deployment request recorded for runID.
func (s *Server) DeployRequest(runID string) (api.DeployRequest, bool) {
	return s.store.deployRequest(runID)
}

// Blobs exposes the backing blob store.
func (s *Server) Blobs() *artifact.MemoryStore { return s.blobs }

func (s *Server) record(c *gin.Context) {
	path := c.Request.URL.Path

	s.mu.Lock()
	s.calls[path]++
	s.requests[path] = append(s.requests[path], c.Request.Clone(c.Request.Context()))
	var code int
	if queue := s.failures[path]; len(queue) > 0 {
		code, s.failures[path] = queue[0], queue[1:]
	}
	s.mu.Unlock()

	if code != 0 {
		c.AbortWithStatusJSON(code, gin.H{"error": http.StatusText(code)})
		return
	}
	c.Next()
}

func echoPredictor(_ string, payload []byte) (any, error) {
	return gin.H{"echo": string(payload)}, nil
}
