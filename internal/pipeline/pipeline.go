// Package pipeline decides, stage by stage, whether an inbound purchase
// beacon is accepted, silently dropped, or rejected.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"beacon-admission-service/internal/anomaly"
	"beacon-admission-service/internal/circuit"
	"beacon-admission-service/internal/consent"
	"beacon-admission-service/internal/model"
	"beacon-admission-service/internal/ratelimit"
	"beacon-admission-service/internal/replay"
	"beacon-admission-service/internal/repository"
)

// Metrics is the observability sink. Calls must not block.
type Metrics interface {
	Admission(outcome, stage string, elapsed time.Duration)
	Rejection(reason string)
	ConsentDecision(outcome string)
	ReplayDetected()
	TimestampMissing()
	AnomalyBlock(reason string)
}

// Fanout takes conversion records for asynchronous persistence.
type Fanout interface {
	Enqueue(records ...model.ConversionRecord)
}

// Deps are the collaborators the stages call.
type Deps struct {
	Limiter      *ratelimit.Limiter
	Breaker      *circuit.Breaker
	Anomaly      *anomaly.Tracker
	Replay       *replay.Guard
	Consent      *consent.Filter
	Shops        repository.ShopRepository
	Receipts     repository.ReceiptRepository
	Destinations repository.DestinationRepository
	Fanout       Fanout
	Metrics      Metrics
}

// Options are the policy knobs of the pipeline.
type Options struct {
	TimestampWindow       time.Duration
	MaxBodyBytes          int
	AllowUnsignedEvents   bool
	AllowLocalhostOrigins bool
}

// Stage is one named step of the pipeline.
type Stage struct {
	Name string
	Run  func(ctx context.Context, st *state) Outcome
}

// Pipeline runs the admission stages in a fixed order.
type Pipeline struct {
	deps   Deps
	opts   Options
	stages []Stage
	now    func() time.Time
	newID  func() string
}

// New builds a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	p := &Pipeline{
		deps:  deps,
		opts:  opts,
		now:   time.Now,
		newID: newEventID,
	}
	p.stages = []Stage{
		{Name: "method_check", Run: p.methodCheck},
		{Name: "content_type_check", Run: p.contentTypeCheck},
		{Name: "origin_check", Run: p.originCheck},
		{Name: "timestamp_check", Run: p.timestampCheck},
		{Name: "rate_limit", Run: p.rateLimit},
		{Name: "body_size_check", Run: p.bodySizeCheck},
		{Name: "body_parse", Run: p.bodyParse},
		{Name: "circuit_breaker", Run: p.circuitBreaker},
		{Name: "event_routing", Run: p.eventRouting},
		{Name: "shop_resolve", Run: p.shopResolve},
		{Name: "origin_allowlist", Run: p.originAllowlist},
		{Name: "key_verify", Run: p.keyVerify},
		{Name: "trust_compute", Run: p.trustCompute},
		{Name: "identifier_resolve", Run: p.identifierResolve},
		{Name: "duplicate_check", Run: p.duplicateCheck},
		{Name: "destination_resolve", Run: p.destinationResolve},
		{Name: "replay_guard", Run: p.replayGuard},
		{Name: "record_receipt", Run: p.recordReceipt},
		{Name: "consent_filter", Run: p.consentFilter},
		{Name: "fanout_record", Run: p.fanoutRecord},
	}
	return p
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Handle runs req through the stages and stops at the first terminal outcome.
func (p *Pipeline) Handle(ctx context.Context, req Request) Response {
	st := &state{
		req:        req,
		receivedAt: p.now(),
		cors:       genericCORS(),
	}

	out, stage := internalError(), "exhausted"
	for _, s := range p.stages {
		o := p.runStage(ctx, s, st)
		if o.Kind != Continue {
			out, stage = o, s.Name
			break
		}
	}

	p.observe(st, out, stage)
	return finalize(out.Response, st.cors)
}

func (p *Pipeline) runStage(ctx context.Context, s Stage, st *state) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"stage": s.Name,
				"panic": fmt.Sprint(r),
			}).Error("admission stage panicked")
			out = internalError()
		}
	}()
	return s.Run(ctx, st)
}

func (p *Pipeline) observe(st *state, out Outcome, stage string) {
	elapsed := p.now().Sub(st.receivedAt)
	p.deps.Metrics.Admission(out.Kind.String(), stage, elapsed)
	if out.Reason == "" {
		return
	}
	p.deps.Metrics.Rejection(out.Reason)
	logrus.WithFields(logrus.Fields{
		"stage":   stage,
		"outcome": out.Kind.String(),
		"reason":  out.Reason,
		"status":  out.Response.Status,
		"shop":    st.anomalyShop(),
	}).Debug("beacon not admitted")
}

func finalize(resp Response, cors map[string]string) Response {
	headers := make(map[string]string, len(cors)+len(resp.Headers))
	for k, v := range cors {
		headers[k] = v
	}
	for k, v := range resp.Headers {
		headers[k] = v
	}
	resp.Headers = headers
	return resp
}

type nopMetrics struct{}

func (nopMetrics) Admission(string, string, time.Duration) {}
func (nopMetrics) Rejection(string)                        {}
func (nopMetrics) ConsentDecision(string)                  {}
func (nopMetrics) ReplayDetected()                         {}
func (nopMetrics) TimestampMissing()                       {}
func (nopMetrics) AnomalyBlock(string)                     {}
