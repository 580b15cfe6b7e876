package fakeserver

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"modeldb-client/pkg/api"
	"modeldb-client/pkg/artifact"
	"modeldb-client/pkg/domain"
)

// ============================================================================
// Key-Value Logging
// ============================================================================

func (s *Server) logKeyValue(f kvField) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.LogKeyValueRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if err := s.store.logKeyValues(req.ID, f, []domain.KeyValue{req.Entry}, req.Overwrite); err != nil {
			mapStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{})
	}
}

func (s *Server) logKeyValues(f kvField) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.LogKeyValuesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if err := s.store.logKeyValues(req.ID, f, req.Entries, req.Overwrite); err != nil {
			mapStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{})
	}
}

func (s *Server) getKeyValues(f kvField) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := s.store.keyValues(c.Query("id"), f, c.QueryArray("keys"))
		if err != nil {
			mapStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, api.KeyValuesResponse{Entries: entries})
	}
}

func (s *Server) logObservation(c *gin.Context) {
	var req api.LogObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.store.logObservation(req.ID, req.Observation); err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) getObservations(c *gin.Context) {
	obs, err := s.store.observations(c.Query("id"), c.Query("key"))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.ObservationsResponse{Observations: obs})
}

func (s *Server) addTags(c *gin.Context) {
	var req api.AddTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.store.addTags(req.ID, req.Tags); err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) getTags(c *gin.Context) {
	tags, err := s.store.tags(c.Query("id"))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.TagsResponse{Tags: tags})
}

// ============================================================================
// Artifacts & Code
// ============================================================================

func (s *Server) logArtifact(dataset bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.LogArtifactRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if err := s.store.logArtifact(req.ID, req.Artifact, dataset); err != nil {
			mapStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{})
	}
}

func (s *Server) deleteArtifact(c *gin.Context) {
	if err := s.store.deleteArtifact(c.Query("id"), c.Query("key")); err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) getArtifacts(dataset bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		refs, err := s.store.artifacts(c.Query("id"), dataset)
		if err != nil {
			mapStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, api.ArtifactsResponse{Artifacts: refs})
	}
}

func (s *Server) logCodeVersion(c *gin.Context) {
	var req api.LogCodeVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.store.logCodeVersion(req.ID, req.CodeVersion, req.Overwrite); err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (s *Server) getCodeVersion(c *gin.Context) {
	cv, err := s.store.codeVersion(c.Query("id"))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.CodeVersionResponse{CodeVersion: cv})
}

// ============================================================================
// Blob Storage
// ============================================================================

func (s *Server) getURLForArtifact(c *gin.Context) {
	var req api.GetURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if _, ok := artifact.ChecksumFromKey(req.StorageKey); !ok {
		mapStoreError(c, invalid("malformed storage key %q", req.StorageKey))
		return
	}
	c.JSON(http.StatusOK, api.GetURLResponse{URL: "http://" + c.Request.Host + "/blobs/" + req.StorageKey})
}

func blobKey(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("key"), "/")
}

func (s *Server) headBlob(c *gin.Context) {
	ok, err := s.blobs.Exists(c.Request.Context(), blobKey(c))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) getBlob(c *gin.Context) {
	blob, err := s.blobs.Get(c.Request.Context(), blobKey(c))
	if err != nil {
		mapStoreError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", blob)
}

func (s *Server) putBlob(c *gin.Context) {
	blob, err := io.ReadAll(c.Request.Body)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.blobs.Put(c.Request.Context(), blobKey(c), blob); err != nil {
		mapStoreError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
