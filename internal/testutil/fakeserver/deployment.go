package fakeserver

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"

	"modeldb-client/pkg/api"
)

const headerAccessToken = "Access-Token"

func (s *Server) deploy(c *gin.Context) {
	var req api.DeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.store.deploy(c.Param("run_id"), req, s.opts.DeployPolls); err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{})
}

func (s *Server) undeploy(c *gin.Context) {
	if err := s.store.undeploy(c.Param("run_id")); err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) deploymentStatus(c *gin.Context) {
	runID := c.Param("run_id")
	status, err := s.store.deploymentStatus(runID)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	if status.Status == api.StatusDeployed {
		status.API = PathPredict + runID
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) predict(c *gin.Context) {
	runID := c.Param("run_id")
	d, ok := s.store.deployed(runID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "model " + runID + " is not deployed"})
		return
	}
	if d.token != "" && c.GetHeader(headerAccessToken) != d.token {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid access token"})
		return
	}

	var body io.Reader = c.Request.Body
	if c.GetHeader("Content-Encoding") == "gzip" {
		zr, err := gzip.NewReader(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		defer zr.Close()
		body = zr
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	out, err := s.opts.Predictor(runID, payload)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}
