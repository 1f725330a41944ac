package network

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	apperrors "silent-partners/backend/pkg/errors"
)

// EntityInput is an entity as submitted by a caller or produced by the
// extraction service. Nil fields take defaults during normalization.
type EntityInput struct {
	Name        *string  `json:"name,omitempty"`
	Type        *string  `json:"type,omitempty"`
	Importance  *float64 `json:"importance,omitempty"`
	Description *string  `json:"description,omitempty"`

	malformed string
}

// NewEntityInput builds a fully specified entity input.
func NewEntityInput(name, entityType string, importance float64, description string) EntityInput {
	return EntityInput{Name: &name, Type: &entityType, Importance: &importance, Description: &description}
}

// UnmarshalJSON never fails: an item that is not an object, or carries
// mistyped fields, is kept as a malformed placeholder so the rest of the
// batch still decodes.
func (e *EntityInput) UnmarshalJSON(data []byte) error {
	type plain EntityInput
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*e = EntityInput{malformed: err.Error()}
		return nil
	}
	*e = EntityInput(p)
	return nil
}

// Malformed reports whether the item failed to decode.
func (e EntityInput) Malformed() bool {
	return e.malformed != ""
}

// name is the trimmed entity name. Surrounding whitespace never makes two
// names distinct.
func (e EntityInput) name() string {
	if e.Name == nil {
		return ""
	}
	return strings.TrimSpace(*e.Name)
}

func (e EntityInput) normalize() Entity {
	ent := Entity{
		Name:       e.name(),
		Type:       DefaultEntityType,
		Importance: DefaultImportance,
	}
	if e.Type != nil && strings.TrimSpace(*e.Type) != "" {
		ent.Type = *e.Type
	}
	if e.Importance != nil {
		ent.Importance = clampImportance(*e.Importance)
	}
	if e.Description != nil {
		ent.Description = *e.Description
	}
	return ent
}

// clampImportance rounds v and clamps it to [MinImportance, MaxImportance].
// The clamp happens in float64 so values beyond the int range cannot wrap.
func clampImportance(v float64) int {
	if math.IsNaN(v) {
		return DefaultImportance
	}
	return int(math.Max(MinImportance, math.Min(MaxImportance, math.Round(v))))
}

// RelationshipInput is a relationship as submitted by a caller.
type RelationshipInput struct {
	Source      *string     `json:"source,omitempty"`
	Target      *string     `json:"target,omitempty"`
	Type        *string     `json:"type,omitempty"`
	Description *string     `json:"description,omitempty"`
	Status      *string     `json:"status,omitempty"`
	Value       *FlexString `json:"value,omitempty"`
	Date        *FlexString `json:"date,omitempty"`

	malformed string
}

// NewRelationshipInput builds a relationship input with the given endpoints
// and type. Remaining fields take their defaults unless set by the caller.
func NewRelationshipInput(source, target, relType string) RelationshipInput {
	return RelationshipInput{Source: &source, Target: &target, Type: &relType}
}

// UnmarshalJSON behaves like EntityInput.UnmarshalJSON.
func (r *RelationshipInput) UnmarshalJSON(data []byte) error {
	type plain RelationshipInput
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		*r = RelationshipInput{malformed: err.Error()}
		return nil
	}
	*r = RelationshipInput(p)
	return nil
}

// Malformed reports whether the item failed to decode.
func (r RelationshipInput) Malformed() bool {
	return r.malformed != ""
}

func (r RelationshipInput) endpoints() (string, string) {
	var src, tgt string
	if r.Source != nil {
		src = strings.TrimSpace(*r.Source)
	}
	if r.Target != nil {
		tgt = strings.TrimSpace(*r.Target)
	}
	return src, tgt
}

func (r RelationshipInput) normalize() Relationship {
	src, tgt := r.endpoints()
	return Relationship{
		Source:      src,
		Target:      tgt,
		Type:        orDefault(r.Type, DefaultRelationshipType),
		Description: orDefault(r.Description, ""),
		Status:      orDefault(r.Status, DefaultRelationshipState),
		Value:       r.Value.String(),
		Date:        r.Date.String(),
	}
}

func orDefault(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

// FlexString accepts a JSON string, number or boolean. Monetary values and
// years often arrive unquoted from language-model output.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	switch string(data) {
	case "null":
		return nil
	case "true", "false":
		*f = FlexString(data)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(data)
	return nil
}

// String returns the value, or "" for a nil pointer.
func (f *FlexString) String() string {
	if f == nil {
		return ""
	}
	return string(*f)
}

// DecodeSubmitRequest validates the shape of a submission body and decodes
// it. Per-item problems are not errors here; they surface as diagnostics
// from Store.Submit.
func DecodeSubmitRequest(body []byte) (SubmitRequest, error) {
	var req SubmitRequest

	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return req, apperrors.NewValidation("body", "No data provided")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return req, apperrors.NewValidation("body", "request body must be a JSON object")
	}

	if v, ok := raw["network_id"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &req.NetworkID); err != nil {
			return req, apperrors.NewValidation("network_id", "network_id must be a string")
		}
	}

	_, hasEntities := raw["entities"]
	_, hasRelationships := raw["relationships"]
	if !hasEntities && !hasRelationships {
		return req, apperrors.NewValidation("entities", "Must provide either entities or relationships")
	}

	if hasEntities {
		if !isArray(raw["entities"]) {
			return req, apperrors.NewValidation("entities", "entities must be an array")
		}
		if err := json.Unmarshal(raw["entities"], &req.Entities); err != nil {
			return req, apperrors.NewValidation("entities", err.Error())
		}
	}

	if hasRelationships {
		if !isArray(raw["relationships"]) {
			return req, apperrors.NewValidation("relationships", "relationships must be an array")
		}
		if err := json.Unmarshal(raw["relationships"], &req.Relationships); err != nil {
			return req, apperrors.NewValidation("relationships", err.Error())
		}
	}

	return req, nil
}

func isArray(v json.RawMessage) bool {
	v = bytes.TrimSpace(v)
	return len(v) > 0 && v[0] == '['
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
