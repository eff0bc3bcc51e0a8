package blockcache

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String("outcome", outcome)
}

// Metrics wires the cache's mutation hot path to OpenTelemetry
// instruments. go.opentelemetry.io/otel/metric already ships as an
// indirect dependency of the teacher's BadgerDB store; this promotes it
// to a direct one and gives the cache's reorg depth, alternative-block
// age-outs, and prune batch sizes somewhere to be recorded instead of
// sitting unused in go.sum.
type Metrics struct {
	adds               metric.Int64Counter
	addsRejected       metric.Int64Counter
	removes            metric.Int64Counter
	prunes             metric.Int64Counter
	alternativeExpired metric.Int64Counter
	markTipDepth       metric.Int64Histogram
	restartsExhausted  metric.Int64Counter
}

// NewMetrics builds a Metrics backed by the given meter, registering one
// instrument per observed cache event.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var err error
	m := &Metrics{}

	m.adds, err = meter.Int64Counter("blockcache.adds",
		metric.WithDescription("blocks inserted or re-added via Add/AddValidated, by outcome"))
	if err != nil {
		return nil, err
	}
	m.addsRejected, err = meter.Int64Counter("blockcache.adds_rejected",
		metric.WithDescription("re-adds of an already Validated/OnChain block, recovered locally"))
	if err != nil {
		return nil, err
	}
	m.removes, err = meter.Int64Counter("blockcache.removes",
		metric.WithDescription("blocks removed, including subtree deletions during prune and aging"))
	if err != nil {
		return nil, err
	}
	m.prunes, err = meter.Int64Counter("blockcache.prune_batches",
		metric.WithDescription("low-height blocks removed by Prune"))
	if err != nil {
		return nil, err
	}
	m.alternativeExpired, err = meter.Int64Counter("blockcache.alternatives_expired",
		metric.WithDescription("unvalidated alternative blocks aged out of the solution-hash index"))
	if err != nil {
		return nil, err
	}
	m.markTipDepth, err = meter.Int64Histogram("blockcache.mark_tip_depth",
		metric.WithDescription("ancestors promoted to OnChain by a single MarkTip call (reorg depth)"))
	if err != nil {
		return nil, err
	}
	m.restartsExhausted, err = meter.Int64Counter("blockcache.longest_chain_restarts_exhausted",
		metric.WithDescription("longest-chain recompute gave up after the reorg-in-flight retry bound"))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewNoopMetrics returns a Metrics backed by the OpenTelemetry no-op
// meter provider, used as the Config default.
func NewNoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("blockcache"))
	return m
}

func (m *Metrics) ObserveAdd(outcome string) {
	if m == nil {
		return
	}
	m.adds.Add(context.Background(), 1, metric.WithAttributes(outcomeAttr(outcome)))
}

func (m *Metrics) ObserveAddRejected() {
	if m == nil {
		return
	}
	m.addsRejected.Add(context.Background(), 1)
}

func (m *Metrics) ObserveRemove() {
	if m == nil {
		return
	}
	m.removes.Add(context.Background(), 1)
}

func (m *Metrics) ObservePrune() {
	if m == nil {
		return
	}
	m.prunes.Add(context.Background(), 1)
}

func (m *Metrics) ObserveAlternativeExpired() {
	if m == nil {
		return
	}
	m.alternativeExpired.Add(context.Background(), 1)
}

func (m *Metrics) ObserveMarkTip(promotedAncestors int) {
	if m == nil {
		return
	}
	m.markTipDepth.Record(context.Background(), int64(promotedAncestors))
}

func (m *Metrics) ObserveLongestChainRestartExhausted() {
	if m == nil {
		return
	}
	m.restartsExhausted.Add(context.Background(), 1)
}
