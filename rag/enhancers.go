package rag

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kaelion/agentkit/llm"
)

// parallelMap applies f to every item with at most concurrency in flight
// at once, preserving input order in the returned slice. Grounded on
// spec.md §5/§9's parallelMap primitive, backed by golang.org/x/sync's
// errgroup.
func parallelMap[T, R any](ctx context.Context, items []T, concurrency int, f func(context.Context, T) (R, error)) ([]R, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, concurrency)

	for i, item := range items {
		i, item := i, item
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			r, err := f(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// DedupEnhancer drops results whose match.id has already been seen within
// the current response, preserving first-occurrence order (spec.md §4.7).
type DedupEnhancer struct {
	// Cache, when set, also suppresses ids seen by prior pipeline runs
	// sharing the same cache (a cross-request dedup cache).
	Cache *RedisDedupCache
}

func (d *DedupEnhancer) Name() string          { return "dedup" }
func (d *DedupEnhancer) Type() EnhancementType { return Deduplication }

func (d *DedupEnhancer) EstimateImpact(context.Context, *RagResponse) (ImpactEstimate, error) {
	return ImpactEstimate{ExpectedQualityGain: 0.05, EstimatedLatencyMs: 1, Recommendation: Apply}, nil
}

func (d *DedupEnhancer) Enhance(ctx context.Context, response *RagResponse) (*RagResponse, error) {
	seen := make(map[string]bool, len(response.Results))
	kept := make([]Result, 0, len(response.Results))
	for _, r := range response.Results {
		if seen[r.Match.ID] {
			continue
		}
		if d.Cache != nil {
			alreadySeenAcrossRuns, err := d.Cache.SeenBefore(ctx, r.Match.ID)
			if err == nil && alreadySeenAcrossRuns {
				continue
			}
		}
		seen[r.Match.ID] = true
		kept = append(kept, r)
	}
	if d.Cache != nil {
		for _, r := range kept {
			_ = d.Cache.MarkSeen(ctx, r.Match.ID)
		}
	}
	next := *response
	next.Results = kept
	return &next, nil
}

// Compressor is the narrow seam ContextualCompressionEnhancer calls
// through, satisfied by an *llm.Facade in production and a stub in tests.
type Compressor interface {
	Generate(ctx context.Context, processID, actionName, prompt string, history []llm.Message) (string, error)
}

// ContextualCompressionEnhancer asks the model to compress each
// sufficiently long result's text against the query, dropping results the
// model judges irrelevant. Results are processed in parallel with bounded
// concurrency (spec.md §4.7).
type ContextualCompressionEnhancer struct {
	Model     Compressor
	ProcessID string
	Config    CompressionConfig
}

const irrelevantMarker = "irrelevant"

func (c *ContextualCompressionEnhancer) Name() string          { return "contextual-compression" }
func (c *ContextualCompressionEnhancer) Type() EnhancementType { return Compression }

func (c *ContextualCompressionEnhancer) EstimateImpact(_ context.Context, response *RagResponse) (ImpactEstimate, error) {
	minLen := c.minLength()
	toCompress := 0
	for _, r := range response.Results {
		if len(r.Match.Text) > minLen {
			toCompress++
		}
	}
	if toCompress == 0 {
		return ImpactEstimate{Recommendation: Skip}, nil
	}
	return ImpactEstimate{
		ExpectedQualityGain: 0.2,
		EstimatedLatencyMs:  int64(toCompress) * 150,
		EstimatedTokenCost:  toCompress * 200,
		Recommendation:      Apply,
	}, nil
}

func (c *ContextualCompressionEnhancer) minLength() int {
	if c.Config.MinLengthToCompress <= 0 {
		return 1500
	}
	return c.Config.MinLengthToCompress
}

func (c *ContextualCompressionEnhancer) concurrency() int {
	if c.Config.Concurrency <= 0 {
		return 15
	}
	return c.Config.Concurrency
}

func (c *ContextualCompressionEnhancer) Enhance(ctx context.Context, response *RagResponse) (*RagResponse, error) {
	minLen := c.minLength()
	query := ""
	if response.Request != nil {
		query = response.Request.Query
	}

	type outcome struct {
		result Result
		drop   bool
	}

	outcomes, err := parallelMap(ctx, response.Results, c.concurrency(), func(ctx context.Context, r Result) (outcome, error) {
		if len(r.Match.Text) <= minLen {
			return outcome{result: r}, nil
		}
		prompt := fmt.Sprintf("Compress the following content so it serves the query %q. If the content is irrelevant to the query, respond with exactly %q.\n\n%s", query, irrelevantMarker, r.Match.Text)
		compressed, err := c.Model.Generate(ctx, c.ProcessID, c.Name(), prompt, nil)
		if err != nil {
			return outcome{}, err
		}
		if strings.EqualFold(strings.TrimSpace(compressed), irrelevantMarker) {
			return outcome{drop: true}, nil
		}
		r.Match.Text = compressed
		return outcome{result: r}, nil
	})
	if err != nil {
		return nil, err
	}

	kept := make([]Result, 0, len(outcomes))
	for _, o := range outcomes {
		if o.drop {
			continue
		}
		kept = append(kept, o.result)
	}

	next := *response
	next.Results = kept
	return &next, nil
}

// RerankingEnhancer reorders results by model-assigned relevance to the
// query, stable within ties (spec.md §4.7).
type RerankingEnhancer struct {
	Model     Compressor
	ProcessID string
}

func (r *RerankingEnhancer) Name() string          { return "reranking" }
func (r *RerankingEnhancer) Type() EnhancementType { return Reranking }

func (r *RerankingEnhancer) EstimateImpact(_ context.Context, response *RagResponse) (ImpactEstimate, error) {
	if len(response.Results) < 2 {
		return ImpactEstimate{Recommendation: Skip}, nil
	}
	return ImpactEstimate{
		ExpectedQualityGain: 0.15,
		EstimatedLatencyMs:  int64(len(response.Results)) * 100,
		EstimatedTokenCost:  len(response.Results) * 80,
		Recommendation:      Apply,
	}, nil
}

func (r *RerankingEnhancer) Enhance(ctx context.Context, response *RagResponse) (*RagResponse, error) {
	query := ""
	if response.Request != nil {
		query = response.Request.Query
	}

	scored, err := parallelMap(ctx, response.Results, 15, func(ctx context.Context, res Result) (Result, error) {
		prompt := fmt.Sprintf("On a scale of 0.00 to 1.00, how relevant is the following text to the query %q? Respond with only the number.\n\n%s", query, res.Match.Text)
		reply, err := r.Model.Generate(ctx, r.ProcessID, r.Name(), prompt, nil)
		if err != nil {
			return res, err
		}
		if score, ok := parseScore(reply); ok {
			res.Score = score
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	sortStable(scored)
	next := *response
	next.Results = scored
	return &next, nil
}

func parseScore(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	var f float64
	if _, err := fmt.Sscanf(s, "%f", &f); err != nil {
		return 0, false
	}
	return f, true
}

// FilterEnhancer drops results below a fixed score floor.
type FilterEnhancer struct {
	MinScore float64
}

func (f *FilterEnhancer) Name() string          { return "filter" }
func (f *FilterEnhancer) Type() EnhancementType { return Filtering }

func (f *FilterEnhancer) EstimateImpact(context.Context, *RagResponse) (ImpactEstimate, error) {
	return ImpactEstimate{ExpectedQualityGain: 0.1, EstimatedLatencyMs: 1, Recommendation: Apply}, nil
}

func (f *FilterEnhancer) Enhance(_ context.Context, response *RagResponse) (*RagResponse, error) {
	kept := make([]Result, 0, len(response.Results))
	for _, r := range response.Results {
		if r.Score >= f.MinScore {
			kept = append(kept, r)
		}
	}
	next := *response
	next.Results = kept
	return &next, nil
}
