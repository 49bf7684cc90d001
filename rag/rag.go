// Package rag implements C7, the RAG response-enhancement pipeline: an
// adaptive runner over an ordered list of Enhancer stages (dedup,
// contextual compression, reranking, filtering), skipping stages whose
// estimated cost outweighs their benefit under a quality threshold or
// latency budget.
package rag

import (
	"context"
	"sort"
	"time"

	"github.com/kaelion/agentkit/agenterrors"
	"github.com/kaelion/agentkit/hooks"
)

// EnhancementType classifies what kind of transformation an Enhancer
// performs.
type EnhancementType string

const (
	Deduplication EnhancementType = "DEDUPLICATION"
	Compression   EnhancementType = "COMPRESSION"
	Reranking     EnhancementType = "RERANKING"
	Filtering     EnhancementType = "FILTERING"
	Custom        EnhancementType = "CUSTOM"
)

// Recommendation is an Enhancer's verdict on whether it is worth applying.
type Recommendation string

const (
	Apply       Recommendation = "APPLY"
	Skip        Recommendation = "SKIP"
	Conditional Recommendation = "CONDITIONAL"
)

// Chunk is one retrieved unit of text, the most common match variant in a
// Result.
type Chunk struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Result pairs a match with the score the underlying service or an
// enhancer assigned it.
type Result struct {
	Match Chunk
	Score float64
}

// QualityMetrics summarizes how good a RagResponse currently is, used by
// the adaptive loop to decide whether further enhancement is worth its
// estimated cost.
type QualityMetrics struct {
	OverallScore float64
}

// Enhancement records what the last-applied enhancer did to a response,
// for observability and for reproducing the pipeline's decisions.
type Enhancement struct {
	Enhancer         string
	Basis            string // the enhancer applied immediately before this one, "" if first
	ProcessingTimeMs int64
	TokensProcessed  int
}

// CompressionConfig tunes the contextual-compression enhancer.
type CompressionConfig struct {
	MinLengthToCompress int // default 1500
	Concurrency         int // default 15
}

// RagRequest is the query driving a pipeline run.
type RagRequest struct {
	Query             string
	TopK              int
	DesiredMaxLatency time.Duration
	CompressionConfig CompressionConfig
}

// RagResponse is both the pipeline's input (as produced by an underlying
// retrieval service, typically with TopK inflated so the pipeline has room
// to filter) and its output.
type RagResponse struct {
	Request        *RagRequest
	Service        string
	Results        []Result
	QualityMetrics *QualityMetrics
	Enhancement    *Enhancement
}

// ImpactEstimate is an Enhancer's prediction of the cost/benefit of
// applying itself to the current response.
type ImpactEstimate struct {
	ExpectedQualityGain float64
	EstimatedLatencyMs  int64
	EstimatedTokenCost  int
	Recommendation      Recommendation
}

// Enhancer is a single pipeline stage.
type Enhancer interface {
	Name() string
	Type() EnhancementType
	EstimateImpact(ctx context.Context, response *RagResponse) (ImpactEstimate, error)
	Enhance(ctx context.Context, response *RagResponse) (*RagResponse, error)
}

// qualityThresholdDefault is the overallScore above which an expensive
// enhancer is skipped in adaptive mode (spec.md §4.7 rule 1).
const qualityThresholdDefault = 0.7

// expensiveLatencyMs is the estimated-latency floor above which rule 1's
// quality-threshold skip applies.
const expensiveLatencyMs = 1000

// Pipeline runs an ordered list of Enhancer stages over a RagResponse.
type Pipeline struct {
	Enhancers []Enhancer
	Adaptive  bool // when false, only the quality-threshold skip is off; latency budget, SKIP and estimate errors still apply
	Bus       hooks.Bus
}

// NewPipeline constructs an adaptive Pipeline publishing events on bus (a
// nil bus is replaced with a no-op one).
func NewPipeline(enhancers []Enhancer, bus hooks.Bus) *Pipeline {
	if bus == nil {
		bus = hooks.NewBus()
	}
	return &Pipeline{Enhancers: enhancers, Adaptive: true, Bus: bus}
}

// Run executes the pipeline over response, applying spec.md §4.7's
// adaptive execution loop: tracking wall-clock elapsed time from the call,
// skipping enhancers whose impact estimate says they're not worth it,
// and breaking out entirely once elapsed exceeds request.DesiredMaxLatency.
// A failing enhancer is logged (via an EnhancementCompletedEvent with
// Skipped=true) and skipped rather than aborting the run (spec.md §7: RAG
// enhancer errors are non-fatal).
func (p *Pipeline) Run(ctx context.Context, request *RagRequest, response *RagResponse) (*RagResponse, error) {
	start := time.Now()
	response.Request = request

	_ = p.Bus.Publish(ctx, hooks.NewRagRequestReceivedEvent(request.Query, request.TopK))

	current := response
	basis := ""
	for _, e := range p.Enhancers {
		elapsed := time.Since(start)

		estimate, err := e.EstimateImpact(ctx, current)
		if err != nil {
			p.publishSkip(ctx, e, err)
			continue
		}

		if p.Adaptive && current.QualityMetrics != nil &&
			current.QualityMetrics.OverallScore > qualityThresholdDefault &&
			estimate.EstimatedLatencyMs > expensiveLatencyMs {
			p.publishSkipReason(ctx, e, "quality above threshold and enhancer is expensive")
			continue
		}

		if request.DesiredMaxLatency > 0 && elapsed > request.DesiredMaxLatency {
			break
		}

		if estimate.Recommendation == Skip {
			p.publishSkipReason(ctx, e, "enhancer recommended skip")
			continue
		}

		_ = p.Bus.Publish(ctx, hooks.NewEnhancementStartingEvent(e.Name()))
		stageStart := time.Now()
		next, err := e.Enhance(ctx, current)
		stageElapsed := time.Since(stageStart)
		if err != nil {
			ragErr := &agenterrors.RagError{Kind: agenterrors.EnhancerFailed, Enhancer: e.Name(), Err: err}
			_ = p.Bus.Publish(ctx, hooks.NewEnhancementCompletedEvent(e.Name(), stageElapsed.Milliseconds(), 0, true, ragErr.Error()))
			continue
		}

		next.Enhancement = &Enhancement{
			Enhancer:         e.Name(),
			Basis:            basis,
			ProcessingTimeMs: stageElapsed.Milliseconds(),
			TokensProcessed:  estimate.EstimatedTokenCost,
		}
		_ = p.Bus.Publish(ctx, hooks.NewEnhancementCompletedEvent(e.Name(), stageElapsed.Milliseconds(), estimate.EstimatedTokenCost, false, ""))

		basis = e.Name()
		current = next
	}

	elapsedTotal := time.Since(start)
	quality := 0.0
	if current.QualityMetrics != nil {
		quality = current.QualityMetrics.OverallScore
	}
	_ = p.Bus.Publish(ctx, hooks.NewRagResponseEvent(len(current.Results), elapsedTotal.Milliseconds(), quality))

	return current, nil
}

func (p *Pipeline) publishSkip(ctx context.Context, e Enhancer, err error) {
	ragErr := &agenterrors.RagError{Kind: agenterrors.EnhancerFailed, Enhancer: e.Name(), Err: err}
	_ = p.Bus.Publish(ctx, hooks.NewEnhancementCompletedEvent(e.Name(), 0, 0, true, ragErr.Error()))
}

func (p *Pipeline) publishSkipReason(ctx context.Context, e Enhancer, reason string) {
	_ = p.Bus.Publish(ctx, hooks.NewEnhancementCompletedEvent(e.Name(), 0, 0, true, reason))
}

// sortStable sorts results by score descending, preserving input order
// among equal scores (spec.md §4.7's tie-break rule).
func sortStable(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
