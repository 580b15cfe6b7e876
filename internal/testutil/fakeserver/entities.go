package fakeserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"modeldb-client/pkg/api"
)

func (s *Server) verifyConnection(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": true})
}

// ============================================================================
// Projects
// ============================================================================

func (s *Server) createProject(c *gin.Context) {
	var req api.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := s.store.createProject(req)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ProjectResponse{Project: p})
}

func (s *Server) getProject(c *gin.Context) {
	p, err := s.store.project(c.Query("id"))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ProjectResponse{Project: p})
}

func (s *Server) getProjectByName(c *gin.Context) {
	p, err := s.store.projectByName(c.Query("name"))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ProjectResponse{Project: p})
}

// ============================================================================
// Experiments
// ============================================================================

func (s *Server) createExperiment(c *gin.Context) {
	var req api.CreateExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	e, err := s.store.createExperiment(req)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ExperimentResponse{Experiment: e})
}

func (s *Server) getExperiment(c *gin.Context) {
	e, err := s.store.experiment(c.Query("id"))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ExperimentResponse{Experiment: e})
}

func (s *Server) getExperimentByName(c *gin.Context) {
	e, err := s.store.experimentByName(c.Query("project_id"), c.Query("name"))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ExperimentResponse{Experiment: e})
}

// ============================================================================
// Runs
// ============================================================================

func (s *Server) createRun(c *gin.Context) {
	var req api.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r, err := s.store.createRun(req)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.RunResponse{ExperimentRun: r})
}

func (s *Server) getRun(c *gin.Context) {
	r, err := s.store.run(c.Query("id"))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.RunResponse{ExperimentRun: r})
}

func (s *Server) getRunByName(c *gin.Context) {
	r, err := s.store.runByName(c.Query("experiment_id"), c.Query("name"))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.RunResponse{ExperimentRun: r})
}

func (s *Server) runsInProject(c *gin.Context) {
	projectID := c.Query("project_id")
	if _, err := s.store.project(projectID); err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.RunsResponse{ExperimentRuns: s.store.runsWhere(scope(projectID, "", nil))})
}

func (s *Server) runsInExperiment(c *gin.Context) {
	experimentID := c.Query("experiment_id")
	if _, err := s.store.experiment(experimentID); err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.RunsResponse{ExperimentRuns: s.store.runsWhere(scope("", experimentID, nil))})
}

func (s *Server) findRuns(c *gin.Context) {
	var req api.FindRunsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	runs, err := findRuns(s.store.runsWhere(scope(req.ProjectID, req.ExperimentID, req.RunIDs)), req.Predicates)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.RunsResponse{ExperimentRuns: runs})
}

func (s *Server) topRuns(c *gin.Context) {
	var req api.TopRunsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	runs, err := topRuns(s.store.runsWhere(scope(req.ProjectID, req.ExperimentID, req.RunIDs)), req.SortKey, req.Ascending, req.TopK)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.RunsResponse{ExperimentRuns: runs})
}
