package extraction

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"silent-partners/backend/internal/adapter"
	"silent-partners/backend/internal/network"
	apperrors "silent-partners/backend/pkg/errors"
)

// stubCompleter returns a canned completion and records the prompts it saw
type stubCompleter struct {
	content string
	tokens  int
	err     error

	system string
	user   string
	model  string
}

func (s *stubCompleter) CompleteJSON(_ context.Context, systemPrompt, userPrompt, model string) (*adapter.Completion, error) {
	s.system, s.user, s.model = systemPrompt, userPrompt, model
	if s.err != nil {
		return nil, s.err
	}
	if model == "" {
		model = "gpt-4.1-mini"
	}
	return &adapter.Completion{Content: s.content, Model: model, TotalTokens: s.tokens}, nil
}

const extractionResponse = `{
  "entities": [
    {"id": "e1", "name": "Jho Low", "type": "person", "importance": 10, "description": "Financier"},
    {"id": "e2", "name": "1MDB", "type": "organization", "importance": "7"},
    {"id": 3, "name": "Goldman Sachs", "type": "organization"},
    {"id": "e4", "name": "  "}
  ],
  "relationships": [
    {"source": "e1", "target": "e2", "type": "financial", "status": "confirmed", "value": 4500000000},
    {"source": 3, "target": "e2", "type": "business", "date": 2012},
    {"source": "Jho Low", "target": "Goldman Sachs", "type": "personal"},
    {"source": "e1", "target": "", "type": "other"}
  ]
}`

func TestExtractor_Extract(t *testing.T) {
	llm := &stubCompleter{content: extractionResponse, tokens: 2000}
	ex := NewExtractor(llm, nil, nil)

	res, err := ex.Extract(context.Background(), ExtractRequest{Text: "Jho Low looted 1MDB."})
	require.NoError(t, err)

	assert.Equal(t, extractionSystemPrompt, llm.system)
	assert.Contains(t, llm.user, "Jho Low looted 1MDB.")

	require.Len(t, res.Entities, 3)
	assert.Equal(t, "Jho Low", *res.Entities[0].Name)
	assert.Equal(t, 5.0, *res.Entities[0].Importance)
	assert.Equal(t, 4.0, *res.Entities[1].Importance)
	assert.Equal(t, 3.0, *res.Entities[2].Importance)

	require.Len(t, res.Relationships, 3)
	assert.Equal(t, "Jho Low", *res.Relationships[0].Source)
	assert.Equal(t, "1MDB", *res.Relationships[0].Target)
	assert.Equal(t, "4500000000", res.Relationships[0].Value.String())
	assert.Equal(t, "Goldman Sachs", *res.Relationships[1].Source)
	assert.Equal(t, "2012", res.Relationships[1].Date.String())
	assert.Equal(t, "Goldman Sachs", *res.Relationships[2].Target)

	assert.Equal(t, "gpt-4.1-mini", res.Metadata.Model)
	assert.Equal(t, 2000, res.Metadata.TokensUsed)
	assert.InDelta(t, 0.00075, res.Metadata.CostEstimate, 1e-12)
}

func TestExtractor_ExtractFeedsStore(t *testing.T) {
	llm := &stubCompleter{content: extractionResponse, tokens: 10}
	ex := NewExtractor(llm, nil, nil)

	res, err := ex.Extract(context.Background(), ExtractRequest{Text: "text"})
	require.NoError(t, err)

	store := network.NewStore()
	sub, err := store.Submit(context.Background(), network.SubmitRequest{
		NetworkID:     "extracted",
		Entities:      res.Entities,
		Relationships: res.Relationships,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sub.AddedEntities)
	assert.Equal(t, 3, sub.AddedRelationships)
}

func TestExtractor_Extract_Validation(t *testing.T) {
	ex := NewExtractor(&stubCompleter{content: `{}`}, nil, nil)

	_, err := ex.Extract(context.Background(), ExtractRequest{Text: "   "})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))

	_, err = ex.Extract(context.Background(), ExtractRequest{URLs: []string{"https://example.com"}})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation), "urls need a fetcher")
}

func TestExtractor_Extract_InvalidJSON(t *testing.T) {
	ex := NewExtractor(&stubCompleter{content: "not json"}, nil, nil)

	_, err := ex.Extract(context.Background(), ExtractRequest{Text: "some text"})
	var jsonErr *apperrors.ErrLLMInvalidJSON
	require.ErrorAs(t, err, &jsonErr)
	assert.Equal(t, "gpt-4.1-mini", jsonErr.Model)
}

func TestExtractor_Extract_PropagatesLLMError(t *testing.T) {
	llmErr := apperrors.NewLLMFailed("gpt-4.1-mini", 3, true, errors.New("boom"))
	ex := NewExtractor(&stubCompleter{err: llmErr}, nil, nil)

	_, err := ex.Extract(context.Background(), ExtractRequest{Text: "some text"})
	assert.ErrorIs(t, err, llmErr)
}

func TestExtractor_Extract_WithURLSources(t *testing.T) {
	page := `<html><head><title>Fund Scandal</title></head><body>
		<nav>Home | About</nav>
		<article><p>Tim Leissner arranged bond sales.</p><p>Goldman Sachs earned fees.</p></article>
		<footer>Copyright</footer></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	llm := &stubCompleter{content: `{"entities": [], "relationships": []}`}
	ex := NewExtractor(llm, NewFetcher(5*time.Second, 2, WithPrivateNetworks()), nil)

	res, err := ex.Extract(context.Background(), ExtractRequest{Text: "Intro.", URLs: []string{srv.URL + "/story"}})
	require.NoError(t, err)

	require.Len(t, res.Sources, 1)
	assert.Equal(t, "Fund Scandal", res.Sources[0].Title)
	assert.Contains(t, llm.user, "Intro.")
	assert.Contains(t, llm.user, "Tim Leissner arranged bond sales. Goldman Sachs earned fees.")
	assert.NotContains(t, llm.user, "Copyright")
	assert.NotContains(t, llm.user, "Home | About")
}

func TestExtractor_Infer(t *testing.T) {
	llm := &stubCompleter{content: `{"inferred_relationships": [
		{"source": "Najib Razak", "target": "Goldman Sachs", "type": "business", "description": "bond deals", "confidence": 0.8, "evidence": "text"},
		{"source": "A", "target": "B", "confidence": "1.7"},
		{"source": "", "target": "B"}
	]}`, tokens: 100}
	ex := NewExtractor(llm, nil, nil)

	res, err := ex.Infer(context.Background(), InferRequest{
		Entities: []network.EntityInput{
			network.NewEntityInput("Najib Razak", "person", 5, "Former PM"),
			network.NewEntityInput("Goldman Sachs", "organization", 4, ""),
		},
		Relationships: []network.RelationshipInput{network.NewRelationshipInput("Najib Razak", "1MDB", "employment")},
		Text:          strings.Repeat("x", 3000),
		Model:         "gpt-4.1-nano",
	})
	require.NoError(t, err)

	assert.Equal(t, inferenceSystemPrompt, llm.system)
	assert.Equal(t, "gpt-4.1-nano", llm.model)
	assert.Contains(t, llm.user, "- Najib Razak (person): Former PM")
	assert.Contains(t, llm.user, "- Goldman Sachs (organization): No description")
	assert.Contains(t, llm.user, "- Najib Razak → 1MDB: employment")
	assert.Contains(t, llm.user, strings.Repeat("x", 2000)+"...")
	assert.NotContains(t, llm.user, strings.Repeat("x", 2001))

	require.Len(t, res.InferredRelationships, 2)
	assert.Equal(t, 0.8, res.InferredRelationships[0].Confidence)
	assert.Equal(t, 1.0, res.InferredRelationships[1].Confidence)
	assert.Equal(t, "gpt-4.1-nano", res.Metadata.Model)

	in := res.InferredRelationships[0].ToInput()
	assert.Equal(t, "suspected", *in.Status)
	assert.Equal(t, "bond deals", *in.Description)
}

func TestExtractor_Infer_ShowsGraphCandidates(t *testing.T) {
	llm := &stubCompleter{content: `{"inferred_relationships": []}`, tokens: 10}
	ex := NewExtractor(llm, nil, nil)

	res, err := ex.Infer(context.Background(), InferRequest{
		Entities: []network.EntityInput{
			network.NewEntityInput("Jho Low", "person", 5, ""),
			network.NewEntityInput("1MDB", "organization", 5, ""),
			network.NewEntityInput("Goldman Sachs", "organization", 4, ""),
		},
		Relationships: []network.RelationshipInput{
			network.NewRelationshipInput("Jho Low", "1MDB", "financial"),
			network.NewRelationshipInput("1MDB", "Goldman Sachs", "business"),
		},
	})
	require.NoError(t, err)

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "Jho Low", res.Candidates[0].Source)
	assert.Equal(t, "Goldman Sachs", res.Candidates[0].Target)
	assert.Contains(t, llm.user, "- Jho Low ↔ Goldman Sachs (0.70, transitive): financial via 1MDB, then business")
}

func TestExtractor_Infer_NoCandidates(t *testing.T) {
	llm := &stubCompleter{content: `{"inferred_relationships": []}`, tokens: 10}
	ex := NewExtractor(llm, nil, nil)

	res, err := ex.Infer(context.Background(), InferRequest{
		Entities: []network.EntityInput{network.NewEntityInput("Jho Low", "person", 5, "")},
	})
	require.NoError(t, err)

	assert.Empty(t, res.Candidates)
	assert.Contains(t, llm.user, "CANDIDATES FROM GRAPH ANALYSIS (verify or reject each):\n(none)")
}

func TestExtractor_Infer_RequiresEntities(t *testing.T) {
	ex := NewExtractor(&stubCompleter{content: `{}`}, nil, nil)

	_, err := ex.Infer(context.Background(), InferRequest{Text: "x"})
	var verr *apperrors.ErrValidation
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "No entities provided", verr.Reason)
}

func TestRescaleImportance(t *testing.T) {
	cases := map[float64]float64{0: 3, -1: 3, 1: 1, 2: 1, 3: 2, 7: 4, 9: 5, 10: 5}
	for in, want := range cases {
		assert.Equal(t, want, rescaleImportance(in), "importance %v", in)
	}
}
