package network

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "silent-partners/network"

// storeMetrics holds the instruments recorded by Store. They are created once
// in NewStore and shared by every call.
type storeMetrics struct {
	submissions        metric.Int64Counter
	entitiesAdded      metric.Int64Counter
	relationshipsAdded metric.Int64Counter
	skipped            metric.Int64Counter
	networks           metric.Int64UpDownCounter
}

func newStoreMetrics(meter metric.Meter) (*storeMetrics, error) {
	m := &storeMetrics{}
	var err error

	m.submissions, err = meter.Int64Counter(
		"network.submissions",
		metric.WithDescription("Accepted submissions"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create submissions counter: %w", err)
	}

	m.entitiesAdded, err = meter.Int64Counter(
		"network.entities.added",
		metric.WithDescription("Entities stored"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create entities counter: %w", err)
	}

	m.relationshipsAdded, err = meter.Int64Counter(
		"network.relationships.added",
		metric.WithDescription("Relationships stored"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create relationships counter: %w", err)
	}

	m.skipped, err = meter.Int64Counter(
		"network.items.skipped",
		metric.WithDescription("Submitted items that were not stored, by reason"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create skipped counter: %w", err)
	}

	m.networks, err = meter.Int64UpDownCounter(
		"network.count",
		metric.WithDescription("Networks currently held in memory"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create networks counter: %w", err)
	}

	return m, nil
}

func (m *storeMetrics) recordSubmit(ctx context.Context, res *SubmitResult, created bool) {
	m.submissions.Add(ctx, 1)
	if created {
		m.networks.Add(ctx, 1)
	}
	if res.AddedEntities > 0 {
		m.entitiesAdded.Add(ctx, int64(res.AddedEntities))
	}
	if res.AddedRelationships > 0 {
		m.relationshipsAdded.Add(ctx, int64(res.AddedRelationships))
	}
	for _, d := range res.Diagnostics {
		m.skipped.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", d.Kind),
			attribute.String("reason", string(d.Reason)),
		))
	}
}

func (m *storeMetrics) recordDelete(ctx context.Context) {
	m.networks.Add(ctx, -1)
}
