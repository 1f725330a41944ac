package network

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	apperrors "silent-partners/backend/pkg/errors"
	"silent-partners/backend/pkg/logger"
)

// Store is the in-memory registry of networks. A single RWMutex serializes
// every mutation, so a submission's entity and relationship passes are never
// interleaved with another writer.
type Store struct {
	mu       sync.RWMutex
	networks map[string]*record
	order    []string // network ids in creation order

	now     func() time.Time
	newID   func(time.Time) string
	meter   metric.Meter
	metrics *storeMetrics
	logger  *zap.Logger
}

// record pairs a network with the indexes used for deduplication.
type record struct {
	network Network
	names   map[string]struct{} // lower-cased entity names
	pairs   map[pairKey]struct{}
}

// pairKey is an unordered, lower-cased pair of endpoint names.
type pairKey struct {
	a, b string
}

func newPairKey(source, target string) pairKey {
	a, b := strings.ToLower(source), strings.ToLower(target)
	if a > b {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps and generated ids.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides how ids are generated for submissions without one.
func WithIDGenerator(gen func(time.Time) string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithMeter records store metrics on the given meter instead of the global provider.
func WithMeter(m metric.Meter) Option {
	return func(s *Store) { s.meter = m }
}

// WithLogger overrides the store's logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		networks: make(map[string]*record),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    GenerateNetworkID,
		meter:    otel.Meter(meterName),
		logger:   logger.Named("network"),
	}
	for _, opt := range opts {
		opt(s)
	}

	m, err := newStoreMetrics(s.meter)
	if err != nil {
		s.logger.Warn("Failed to create store metrics, continuing without them", zap.Error(err))
		m, _ = newStoreMetrics(noop.NewMeterProvider().Meter(meterName))
	}
	s.metrics = m

	return s
}

// GenerateNetworkID returns an id of the form network_<unix seconds>_<8 hex chars>.
func GenerateNetworkID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("network_%d_%s", now.Unix(), suffix)
}

// Submit merges a batch of entities and relationships into the network named
// by req.NetworkID, creating it if needed. Entities are merged first; the
// relationships are then resolved against the resulting entity set. Items
// that cannot be stored are reported in SubmitResult.Diagnostics.
func (s *Store) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if len(req.Entities) == 0 && len(req.Relationships) == 0 {
		return nil, apperrors.NewValidation("entities", "Must provide either entities or relationships")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	id := req.NetworkID
	if id == "" {
		id = s.generateID(now)
	}

	rec, exists := s.networks[id]
	if !exists {
		rec = newRecord(id, now)
		s.networks[id] = rec
		s.order = append(s.order, id)
		s.logger.Debug("Created network", zap.String("network_id", id))
	}

	res := &SubmitResult{NetworkID: id}
	rec.mergeEntities(req.Entities, res)
	rec.mergeRelationships(req.Relationships, res)

	rec.network.UpdatedAt = now
	res.TotalEntities = len(rec.network.Entities)
	res.TotalRelationships = len(rec.network.Relationships)

	s.metrics.recordSubmit(ctx, res, !exists)

	return res, nil
}

func (s *Store) generateID(now time.Time) string {
	id := s.newID(now)
	for attempt := 0; attempt < 8; attempt++ {
		if _, taken := s.networks[id]; !taken {
			break
		}
		id = s.newID(now)
	}
	return id
}

func newRecord(id string, now time.Time) *record {
	return &record{
		network: Network{
			ID:            id,
			Entities:      []Entity{},
			Relationships: []Relationship{},
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		names: make(map[string]struct{}),
		pairs: make(map[pairKey]struct{}),
	}
}

// Assemble builds an unstored network from raw records using the same merge
// rules as Submit. Records Submit would skip are dropped.
func Assemble(entities []EntityInput, relationships []RelationshipInput) *Network {
	rec := newRecord("", time.Time{})
	res := &SubmitResult{}
	rec.mergeEntities(entities, res)
	rec.mergeRelationships(relationships, res)
	return &rec.network
}

func (r *record) mergeEntities(inputs []EntityInput, res *SubmitResult) {
	for i, in := range inputs {
		if in.Malformed() {
			res.skip(KindEntity, i, "", ReasonMalformed, in.malformed)
			continue
		}
		name := in.name()
		if name == "" {
			res.skip(KindEntity, i, "", ReasonMissingName, "")
			continue
		}
		key := strings.ToLower(name)
		if _, dup := r.names[key]; dup {
			res.skip(KindEntity, i, name, ReasonDuplicateEntity, "")
			continue
		}

		r.network.Entities = append(r.network.Entities, in.normalize())
		r.names[key] = struct{}{}
		res.AddedEntities++
	}
}

func (r *record) mergeRelationships(inputs []RelationshipInput, res *SubmitResult) {
	for i, in := range inputs {
		if in.Malformed() {
			res.skip(KindRelationship, i, "", ReasonMalformed, in.malformed)
			continue
		}
		src, tgt := in.endpoints()
		label := src + " -> " + tgt
		if src == "" || tgt == "" {
			res.skip(KindRelationship, i, label, ReasonMissingEndpoint, "")
			continue
		}
		if _, ok := r.names[strings.ToLower(src)]; !ok {
			res.skip(KindRelationship, i, label, ReasonUnknownSource, src)
			continue
		}
		if _, ok := r.names[strings.ToLower(tgt)]; !ok {
			res.skip(KindRelationship, i, label, ReasonUnknownTarget, tgt)
			continue
		}
		// Direction and type are not part of the identity of a relationship.
		key := newPairKey(src, tgt)
		if _, dup := r.pairs[key]; dup {
			res.skip(KindRelationship, i, label, ReasonDuplicateRelationship, "")
			continue
		}

		r.network.Relationships = append(r.network.Relationships, in.normalize())
		r.pairs[key] = struct{}{}
		res.AddedRelationships++
	}
}

func (res *SubmitResult) skip(kind string, index int, name string, reason SkipReason, detail string) {
	res.Diagnostics = append(res.Diagnostics, Diagnostic{
		Kind:   kind,
		Index:  index,
		Name:   name,
		Reason: reason,
		Detail: detail,
	})
}

// Get returns a copy of the network with the given id.
func (s *Store) Get(ctx context.Context, id string) (*Network, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.networks[id]
	if !ok {
		return nil, apperrors.NewNetworkNotFound(id)
	}
	return rec.network.clone(), nil
}

// List returns a summary of every stored network in creation order.
func (s *Store) List(ctx context.Context) []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.order))
	for _, id := range s.order {
		n := &s.networks[id].network
		out = append(out, Summary{
			NetworkID:         n.ID,
			EntityCount:       len(n.Entities),
			RelationshipCount: len(n.Relationships),
			CreatedAt:         n.CreatedAt,
			UpdatedAt:         n.UpdatedAt,
		})
	}
	return out
}

// Delete removes a network and everything in it.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.networks[id]; !ok {
		return apperrors.NewNetworkNotFound(id)
	}
	delete(s.networks, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	s.metrics.recordDelete(ctx)
	s.logger.Info("Deleted network", zap.String("network_id", id))
	return nil
}

// Export projects the network with the given id into node/link form.
func (s *Store) Export(ctx context.Context, id string) (*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.networks[id]
	if !ok {
		return nil, apperrors.NewNetworkNotFound(id)
	}
	return Export(&rec.network), nil
}

// Candidates runs FindCandidates over the network with the given id.
func (s *Store) Candidates(ctx context.Context, id, text string, minConfidence float64) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.networks[id]
	if !ok {
		return nil, apperrors.NewNetworkNotFound(id)
	}
	return FindCandidates(&rec.network, text, minConfidence), nil
}

// Stats returns totals across all stored networks.
func (s *Store) Stats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Networks: len(s.networks)}
	for _, rec := range s.networks {
		st.Entities += len(rec.network.Entities)
		st.Relationships += len(rec.network.Relationships)
	}
	return st
}

func (n *Network) clone() *Network {
	c := *n
	c.Entities = append([]Entity(nil), n.Entities...)
	c.Relationships = append([]Relationship(nil), n.Relationships...)
	if c.Entities == nil {
		c.Entities = []Entity{}
	}
	if c.Relationships == nil {
		c.Relationships = []Relationship{}
	}
	return &c
}
