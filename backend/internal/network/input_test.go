package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "silent-partners/backend/pkg/errors"
)

func TestDecodeSubmitRequest_ShapeErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"empty body", ``, "body"},
		{"null body", `null`, "body"},
		{"array body", `[1,2]`, "body"},
		{"no items", `{"network_id": "x"}`, "entities"},
		{"entities object", `{"entities": {"name": "A"}}`, "entities"},
		{"entities null", `{"entities": null}`, "entities"},
		{"relationships string", `{"relationships": "A->B"}`, "relationships"},
		{"numeric network id", `{"network_id": 12, "entities": []}`, "network_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSubmitRequest([]byte(tt.body))
			require.Error(t, err)

			var verr *apperrors.ErrValidation
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestDecodeSubmitRequest_Valid(t *testing.T) {
	req, err := DecodeSubmitRequest([]byte(`{
		"network_id": "test-1mdb",
		"entities": [{"name": "1MDB", "type": "organization", "importance": 5}],
		"relationships": [{"source": "Jho Low", "target": "1MDB", "value": "$4.5 billion"}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "test-1mdb", req.NetworkID)
	require.Len(t, req.Entities, 1)
	assert.Equal(t, "1MDB", *req.Entities[0].Name)
	assert.Equal(t, 5.0, *req.Entities[0].Importance)
	require.Len(t, req.Relationships, 1)
	assert.Equal(t, "$4.5 billion", req.Relationships[0].Value.String())
	assert.Nil(t, req.Relationships[0].Date)
}

func TestDecodeSubmitRequest_NullNetworkIDMeansGenerated(t *testing.T) {
	req, err := DecodeSubmitRequest([]byte(`{"network_id": null, "entities": [{"name": "A"}]}`))
	require.NoError(t, err)
	assert.Empty(t, req.NetworkID)
}

func TestDecodeSubmitRequest_EmptyArraysPassShapeCheck(t *testing.T) {
	// The store, not the decoder, rejects a submission with nothing in it
	req, err := DecodeSubmitRequest([]byte(`{"entities": [], "relationships": []}`))
	require.NoError(t, err)
	assert.Empty(t, req.Entities)
	assert.Empty(t, req.Relationships)
}

func TestClampImportance(t *testing.T) {
	cases := map[float64]int{-3: 1, 0: 1, 1: 1, 2.4: 2, 2.5: 3, 5: 5, 7: 5, 100: 5, 1e19: 5, 1e300: 5, -1e300: 1}
	for in, want := range cases {
		assert.Equal(t, want, clampImportance(in), "importance %v", in)
	}
}

func TestFlexString(t *testing.T) {
	req, err := DecodeSubmitRequest([]byte(`{"relationships": [
		{"source": "A", "target": "B", "value": 1200.5, "date": 2019},
		{"source": "A", "target": "B", "value": true},
		{"source": "A", "target": "B", "value": {"amount": 1}}
	]}`))
	require.NoError(t, err)
	require.Len(t, req.Relationships, 3)

	assert.Equal(t, "1200.5", req.Relationships[0].Value.String())
	assert.Equal(t, "2019", req.Relationships[0].Date.String())
	assert.Equal(t, "true", req.Relationships[1].Value.String())
	assert.True(t, req.Relationships[2].Malformed())
}
