package api

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"silent-partners/backend/internal/network"
	apperrors "silent-partners/backend/pkg/errors"
)

func (s *Server) health(c *gin.Context) {
	st := s.store.Stats(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"version":       Version,
		"networks":      st.Networks,
		"entities":      st.Entities,
		"relationships": st.Relationships,
	})
}

func (s *Server) submitNetwork(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.respondError(c, err)
		return
	}

	req, err := network.DecodeSubmitRequest(body)
	if err != nil {
		s.respondError(c, err)
		return
	}

	res, err := s.store.Submit(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.logSkipped(res)
	c.JSON(http.StatusOK, submitResponse(res))
}

func (s *Server) getNetwork(c *gin.Context) {
	n, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *Server) listNetworks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"networks": s.store.List(c.Request.Context())})
}

func (s *Server) deleteNetwork(c *gin.Context) {
	id := c.Param("id")
	if err := s.store.Delete(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Network %s deleted", id),
	})
}

func (s *Server) exportNetwork(c *gin.Context) {
	g, err := s.store.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// networkCandidates lists relationships the graph suggests but does not
// contain. The optional text query parameter enables co-occurrence detection.
func (s *Server) networkCandidates(c *gin.Context) {
	minConfidence := network.DefaultMinCandidateConfidence
	if raw := c.Query("min_confidence"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || v < 0 || v > 1 {
			s.respondError(c, apperrors.NewValidation("min_confidence", "min_confidence must be a number between 0 and 1"))
			return
		}
		minConfidence = v
	}

	id := c.Param("id")
	candidates, err := s.store.Candidates(c.Request.Context(), id, c.Query("text"), minConfidence)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"network_id":     id,
		"min_confidence": minConfidence,
		"candidates":     candidates,
	})
}

// submitResponse is the body returned for a successful submission
func submitResponse(res *network.SubmitResult) gin.H {
	out := gin.H{
		"success":    true,
		"network_id": res.NetworkID,
		"added": gin.H{
			"entities":      res.AddedEntities,
			"relationships": res.AddedRelationships,
		},
		"total": gin.H{
			"entities":      res.TotalEntities,
			"relationships": res.TotalRelationships,
		},
	}
	if len(res.Diagnostics) > 0 {
		out["skipped"] = res.Diagnostics
	}
	return out
}

func (s *Server) logSkipped(res *network.SubmitResult) {
	for _, d := range res.Diagnostics {
		s.logger.Debug("Skipped submitted item",
			zap.String("network_id", res.NetworkID),
			zap.String("kind", d.Kind),
			zap.Int("index", d.Index),
			zap.String("name", d.Name),
			zap.String("reason", string(d.Reason)),
		)
	}
	if len(res.Diagnostics) > 0 {
		s.logger.Info("Submission skipped items",
			zap.String("network_id", res.NetworkID),
			zap.Int("skipped", len(res.Diagnostics)),
		)
	}
}
