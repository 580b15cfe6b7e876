package fakeserver

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"modeldb-client/pkg/api"
)

func (s *Server) createDataset(c *gin.Context) {
	var req api.CreateDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := s.store.createDataset(req)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.DatasetResponse{Dataset: d})
}

func (s *Server) getDataset(c *gin.Context) {
	d, err := s.store.dataset(c.Query("id"))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.DatasetResponse{Dataset: d})
}

func (s *Server) getDatasetByName(c *gin.Context) {
	d, err := s.store.datasetByName(c.Query("name"))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.DatasetResponse{Dataset: d})
}

func (s *Server) findDatasets(c *gin.Context) {
	var req api.FindDatasetsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	c.JSON(http.StatusOK, api.DatasetsResponse{Datasets: s.store.findDatasets(req)})
}

func (s *Server) createVersion(c *gin.Context) {
	var req api.CreateVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	v, err := s.store.createVersion(req.DatasetVersion)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.DatasetVersionResponse{DatasetVersion: v})
}

func (s *Server) getVersion(c *gin.Context) {
	v, err := s.store.version(c.Query("id"))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.DatasetVersionResponse{DatasetVersion: v})
}

func (s *Server) getLatestVersion(c *gin.Context) {
	datasetID := c.Query("dataset_id")
	versions, err := s.store.versionsOf(datasetID)
	if err != nil {
		mapStoreError(c, err)
		return
	}
	if len(versions) == 0 {
		mapStoreError(c, notFound("dataset version", datasetID))
		return
	}
	c.JSON(http.StatusOK, api.DatasetVersionResponse{DatasetVersion: versions[len(versions)-1]})
}

func (s *Server) getAllVersions(c *gin.Context) {
	versions, err := s.store.versionsOf(c.Query("dataset_id"))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.DatasetVersionsResponse{DatasetVersions: versions})
}
