package network

import "time"

// Entity defaults applied at the store boundary
const (
	DefaultEntityType        = "person"
	DefaultImportance        = 3
	MinImportance            = 1
	MaxImportance            = 5
	DefaultRelationshipType  = "business"
	DefaultRelationshipState = "confirmed"
)

// Entity is a normalized node of a network. Name is unique per network,
// compared case-insensitively.
type Entity struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Importance  int    `json:"importance"`
	Description string `json:"description"`
}

// Relationship is a normalized edge between two entity names.
type Relationship struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Value       string `json:"value"`
	Date        string `json:"date"`
}

// Network is the aggregate stored per network id.
type Network struct {
	ID            string         `json:"network_id"`
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Summary is the list view of a network.
type Summary struct {
	NetworkID         string    `json:"network_id"`
	EntityCount       int       `json:"entity_count"`
	RelationshipCount int       `json:"relationship_count"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Stats aggregates counts over every stored network.
type Stats struct {
	Networks      int `json:"networks"`
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
}

// SubmitRequest is a batch of raw records merged into one network.
// An empty NetworkID asks the store to generate one.
type SubmitRequest struct {
	NetworkID     string              `json:"network_id,omitempty"`
	Entities      []EntityInput       `json:"entities,omitempty"`
	Relationships []RelationshipInput `json:"relationships,omitempty"`
}

// SubmitResult reports what a submission actually changed.
type SubmitResult struct {
	NetworkID          string       `json:"network_id"`
	AddedEntities      int          `json:"added_entities"`
	AddedRelationships int          `json:"added_relationships"`
	TotalEntities      int          `json:"total_entities"`
	TotalRelationships int          `json:"total_relationships"`
	Diagnostics        []Diagnostic `json:"skipped,omitempty"`
}

// SkipReason explains why a submitted item was not stored.
type SkipReason string

const (
	ReasonMalformed             SkipReason = "malformed"
	ReasonMissingName           SkipReason = "missing_name"
	ReasonDuplicateEntity       SkipReason = "duplicate_entity"
	ReasonMissingEndpoint       SkipReason = "missing_endpoint"
	ReasonUnknownSource         SkipReason = "unknown_source"
	ReasonUnknownTarget         SkipReason = "unknown_target"
	ReasonDuplicateRelationship SkipReason = "duplicate_relationship"
)

// Item kinds reported in diagnostics
const (
	KindEntity       = "entity"
	KindRelationship = "relationship"
)

// Diagnostic records one skipped item of a submission. Index is the
// item's position in its input array.
type Diagnostic struct {
	Kind   string     `json:"kind"`
	Index  int        `json:"index"`
	Name   string     `json:"name,omitempty"`
	Reason SkipReason `json:"reason"`
	Detail string     `json:"detail,omitempty"`
}
