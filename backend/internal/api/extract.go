package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"silent-partners/backend/internal/extraction"
	"silent-partners/backend/internal/network"
	apperrors "silent-partners/backend/pkg/errors"
)

type extractBody struct {
	Text      string   `json:"text"`
	URLs      []string `json:"urls"`
	Model     string   `json:"model"`
	NetworkID string   `json:"network_id"`
	Merge     bool     `json:"merge"`
}

type inferBody struct {
	Entities      []network.EntityInput       `json:"entities"`
	Relationships []network.RelationshipInput `json:"relationships"`
	Text          string                      `json:"text"`
	Model         string                      `json:"model"`
	NetworkID     string                      `json:"network_id"`
	Merge         bool                        `json:"merge"`
	MinConfidence float64                     `json:"min_confidence"`
}

func (s *Server) extract(c *gin.Context) {
	if s.extractor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Extraction is not configured"})
		return
	}

	var req extractBody
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, bindError(err))
		return
	}

	ctx := c.Request.Context()
	res, err := s.extractor.Extract(ctx, extraction.ExtractRequest{
		Text:  req.Text,
		URLs:  req.URLs,
		Model: req.Model,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	out := gin.H{
		"entities":      res.Entities,
		"relationships": res.Relationships,
		"metadata":      res.Metadata,
	}
	if len(res.Sources) > 0 {
		out["sources"] = res.Sources
	}

	if req.Merge && (len(res.Entities) > 0 || len(res.Relationships) > 0) {
		merged, err := s.store.Submit(ctx, network.SubmitRequest{
			NetworkID:     req.NetworkID,
			Entities:      res.Entities,
			Relationships: res.Relationships,
		})
		if err != nil {
			s.respondError(c, err)
			return
		}
		s.logSkipped(merged)
		out["merged"] = submitResponse(merged)
	}

	c.JSON(http.StatusOK, out)
}

func (s *Server) infer(c *gin.Context) {
	if s.extractor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Extraction is not configured"})
		return
	}

	var req inferBody
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, bindError(err))
		return
	}
	if req.Merge && req.NetworkID == "" {
		s.respondError(c, apperrors.NewValidation("network_id", "network_id is required to merge inferred relationships"))
		return
	}

	ctx := c.Request.Context()

	// Without explicit entities, infer over the stored network
	if len(req.Entities) == 0 && req.NetworkID != "" {
		n, err := s.store.Get(ctx, req.NetworkID)
		if err != nil {
			s.respondError(c, err)
			return
		}
		req.Entities, req.Relationships = networkInputs(n)
	}

	res, err := s.extractor.Infer(ctx, extraction.InferRequest{
		Entities:      req.Entities,
		Relationships: req.Relationships,
		Text:          req.Text,
		Model:         req.Model,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	out := gin.H{
		"inferred_relationships": res.InferredRelationships,
		"candidates":             res.Candidates,
		"metadata":               res.Metadata,
	}

	if req.Merge {
		var rels []network.RelationshipInput
		for _, r := range res.InferredRelationships {
			if r.Confidence >= req.MinConfidence {
				rels = append(rels, r.ToInput())
			}
		}
		if len(rels) > 0 {
			merged, err := s.store.Submit(ctx, network.SubmitRequest{
				NetworkID:     req.NetworkID,
				Relationships: rels,
			})
			if err != nil {
				s.respondError(c, err)
				return
			}
			s.logSkipped(merged)
			out["merged"] = submitResponse(merged)
		}
	}

	c.JSON(http.StatusOK, out)
}

// networkInputs turns a stored network back into submittable records
func networkInputs(n *network.Network) ([]network.EntityInput, []network.RelationshipInput) {
	ents := make([]network.EntityInput, 0, len(n.Entities))
	for _, e := range n.Entities {
		ents = append(ents, network.NewEntityInput(e.Name, e.Type, float64(e.Importance), e.Description))
	}
	rels := make([]network.RelationshipInput, 0, len(n.Relationships))
	for _, r := range n.Relationships {
		rels = append(rels, network.NewRelationshipInput(r.Source, r.Target, r.Type))
	}
	return ents, rels
}
