package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"silent-partners/backend/internal/adapter"
	"silent-partners/backend/internal/network"
	apperrors "silent-partners/backend/pkg/errors"
	"silent-partners/backend/pkg/logger"
)

// inferenceContextChars bounds how much source text accompanies an inference prompt
const inferenceContextChars = 2000

// Graph candidates shown to the model, and how much evidence each carries
const (
	maxPromptCandidates    = 20
	candidateEvidenceChars = 300
)

// Completer is the completion capability the extractor needs
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt, model string) (*adapter.Completion, error)
}

// Usage describes the cost of one completion
type Usage struct {
	Model        string  `json:"model"`
	TokensUsed   int     `json:"tokens_used"`
	CostEstimate float64 `json:"cost_estimate"`
}

// ExtractRequest asks for entities and relationships found in text and/or
// the pages behind URLs.
type ExtractRequest struct {
	Text  string
	URLs  []string
	Model string
}

// ExtractionResult holds records ready to be submitted to a network store.
// Relationship endpoints are entity names.
type ExtractionResult struct {
	Entities      []network.EntityInput       `json:"entities"`
	Relationships []network.RelationshipInput `json:"relationships"`
	Sources       []Document                  `json:"sources,omitempty"`
	Metadata      Usage                       `json:"metadata"`
}

// InferRequest asks for relationships missing from a known set.
type InferRequest struct {
	Entities      []network.EntityInput
	Relationships []network.RelationshipInput
	Text          string
	Model         string
}

// InferredRelationship is a relationship proposed by the model.
type InferredRelationship struct {
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Evidence    string  `json:"evidence"`
}

// ToInput converts an inference into a submittable relationship. Inferred
// links are stored as suspected.
func (r InferredRelationship) ToInput() network.RelationshipInput {
	in := network.NewRelationshipInput(r.Source, r.Target, r.Type)
	status := "suspected"
	desc := r.Description
	in.Status = &status
	in.Description = &desc
	return in
}

// InferenceResult holds the model's proposals and the graph candidates the
// model was shown.
type InferenceResult struct {
	InferredRelationships []InferredRelationship `json:"inferred_relationships"`
	Candidates            []network.Candidate    `json:"candidates"`
	Metadata              Usage                  `json:"metadata"`
}

// Extractor turns free text into network records through a language model
type Extractor struct {
	llm     Completer
	fetcher *Fetcher
	pricing Pricing
	logger  *zap.Logger
}

// NewExtractor creates an extractor. fetcher may be nil, in which case URL
// sources are rejected.
func NewExtractor(llm Completer, fetcher *Fetcher, pricing Pricing) *Extractor {
	if pricing == nil {
		pricing = DefaultPricing()
	}
	return &Extractor{
		llm:     llm,
		fetcher: fetcher,
		pricing: pricing,
		logger:  logger.Named("extraction"),
	}
}

// Extract asks the model for entities and relationships in the request text
// and any fetched sources.
func (e *Extractor) Extract(ctx context.Context, req ExtractRequest) (*ExtractionResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" && len(req.URLs) == 0 {
		return nil, apperrors.NewValidation("text", "Text cannot be empty")
	}

	var sources []Document
	if len(req.URLs) > 0 {
		if e.fetcher == nil {
			return nil, apperrors.NewValidation("urls", "url sources are not enabled")
		}
		docs, err := e.fetcher.FetchAll(ctx, req.URLs)
		if err != nil {
			return nil, err
		}
		sources = docs
		text = joinSources(text, docs)
		if strings.TrimSpace(text) == "" {
			return nil, apperrors.NewValidation("urls", "no readable text found at the given urls")
		}
	}

	completion, err := e.llm.CompleteJSON(ctx, extractionSystemPrompt, buildExtractionPrompt(text), req.Model)
	if err != nil {
		return nil, err
	}

	var raw extractionPayload
	if err := json.Unmarshal([]byte(completion.Content), &raw); err != nil {
		return nil, apperrors.NewLLMInvalidJSON(completion.Model, err)
	}

	result := raw.toResult()
	result.Sources = sources
	result.Metadata = e.usage(completion)

	e.logger.Info("Extracted network",
		zap.String("model", completion.Model),
		zap.Int("entities", len(result.Entities)),
		zap.Int("relationships", len(result.Relationships)),
		zap.Int("tokens", completion.TotalTokens),
	)

	return result, nil
}

// Infer asks the model for relationships implied but not stated.
func (e *Extractor) Infer(ctx context.Context, req InferRequest) (*InferenceResult, error) {
	if len(req.Entities) == 0 {
		return nil, apperrors.NewValidation("entities", "No entities provided")
	}

	candidates := network.FindCandidates(network.Assemble(req.Entities, req.Relationships),
		req.Text, network.DefaultMinCandidateConfidence)

	completion, err := e.llm.CompleteJSON(ctx, inferenceSystemPrompt,
		buildInferencePrompt(req.Entities, req.Relationships, candidates, req.Text), req.Model)
	if err != nil {
		return nil, err
	}

	var raw struct {
		InferredRelationships []struct {
			Source      flexText  `json:"source"`
			Target      flexText  `json:"target"`
			Type        string    `json:"type"`
			Description string    `json:"description"`
			Confidence  flexFloat `json:"confidence"`
			Evidence    string    `json:"evidence"`
		} `json:"inferred_relationships"`
	}
	if err := json.Unmarshal([]byte(completion.Content), &raw); err != nil {
		return nil, apperrors.NewLLMInvalidJSON(completion.Model, err)
	}

	result := &InferenceResult{
		InferredRelationships: make([]InferredRelationship, 0, len(raw.InferredRelationships)),
		Candidates:            candidates,
		Metadata:              e.usage(completion),
	}
	for _, r := range raw.InferredRelationships {
		if r.Source == "" || r.Target == "" {
			continue
		}
		result.InferredRelationships = append(result.InferredRelationships, InferredRelationship{
			Source:      string(r.Source),
			Target:      string(r.Target),
			Type:        r.Type,
			Description: r.Description,
			Confidence:  math.Max(0, math.Min(1, float64(r.Confidence))),
			Evidence:    r.Evidence,
		})
	}

	e.logger.Info("Inferred relationships",
		zap.String("model", completion.Model),
		zap.Int("inferred", len(result.InferredRelationships)),
		zap.Int("candidates", len(candidates)),
	)

	return result, nil
}

func (e *Extractor) usage(c *adapter.Completion) Usage {
	return Usage{
		Model:        c.Model,
		TokensUsed:   c.TotalTokens,
		CostEstimate: e.pricing.EstimateCost(c.TotalTokens, c.Model),
	}
}

func joinSources(text string, docs []Document) string {
	parts := make([]string, 0, len(docs)+1)
	if text != "" {
		parts = append(parts, text)
	}
	for _, d := range docs {
		if d.Text == "" {
			continue
		}
		if d.Title != "" {
			parts = append(parts, fmt.Sprintf("Source: %s (%s)\n%s", d.Title, d.URL, d.Text))
		} else {
			parts = append(parts, fmt.Sprintf("Source: %s\n%s", d.URL, d.Text))
		}
	}
	return strings.Join(parts, "\n\n")
}

// extractionPayload is the JSON object the extraction prompt asks for.
// Entity ids are the model's own; relationships refer to them.
type extractionPayload struct {
	Entities []struct {
		ID          flexText  `json:"id"`
		Name        string    `json:"name"`
		Type        string    `json:"type"`
		Importance  flexFloat `json:"importance"`
		Description string    `json:"description"`
	} `json:"entities"`
	Relationships []struct {
		Source      flexText           `json:"source"`
		Target      flexText           `json:"target"`
		Type        string             `json:"type"`
		Description string             `json:"description"`
		Status      string             `json:"status"`
		Value       network.FlexString `json:"value"`
		Date        network.FlexString `json:"date"`
	} `json:"relationships"`
}

func (p extractionPayload) toResult() *ExtractionResult {
	res := &ExtractionResult{
		Entities:      make([]network.EntityInput, 0, len(p.Entities)),
		Relationships: make([]network.RelationshipInput, 0, len(p.Relationships)),
	}

	names := make(map[string]string, len(p.Entities))
	for _, ent := range p.Entities {
		name := strings.TrimSpace(ent.Name)
		if name == "" {
			continue
		}
		if ent.ID != "" {
			names[string(ent.ID)] = name
		}
		res.Entities = append(res.Entities,
			network.NewEntityInput(name, ent.Type, rescaleImportance(float64(ent.Importance)), ent.Description))
	}

	resolve := func(ref flexText) string {
		if name, ok := names[string(ref)]; ok {
			return name
		}
		return strings.TrimSpace(string(ref))
	}

	for _, r := range p.Relationships {
		src, tgt := resolve(r.Source), resolve(r.Target)
		if src == "" || tgt == "" {
			continue
		}
		in := network.NewRelationshipInput(src, tgt, r.Type)
		if r.Description != "" {
			desc := r.Description
			in.Description = &desc
		}
		if r.Status != "" {
			status := r.Status
			in.Status = &status
		}
		if r.Value != "" {
			v := r.Value
			in.Value = &v
		}
		if r.Date != "" {
			d := r.Date
			in.Date = &d
		}
		res.Relationships = append(res.Relationships, in)
	}

	return res
}

// rescaleImportance maps the prompt's 1-10 scale onto the store's 1-5 scale.
// Missing or non-positive values become the store default.
func rescaleImportance(v float64) float64 {
	if v <= 0 {
		return network.DefaultImportance
	}
	return math.Ceil(v / 2)
}

// flexFloat accepts a number or a numeric string
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Ranges such as "7-8" and words are ignored
		return nil
	}
	*f = flexFloat(v)
	return nil
}

// flexText accepts a string or a number (models sometimes emit numeric ids)
type flexText string

func (t *flexText) UnmarshalJSON(data []byte) error {
	var fs network.FlexString
	if err := fs.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = flexText(fs)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
