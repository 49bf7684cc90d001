package llm

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// AdaptiveRateLimiter applies an AIMD-style adaptive token bucket in front
// of a ModelClient. It estimates the token cost of each request, blocks
// callers until capacity is available, and adjusts its effective
// tokens-per-minute budget in response to rate-limit signals from the
// provider: halving on a throttle signal, recovering by a fixed step on
// every successful call.
//
// A single instance is process-local unless constructed with a Redis
// client and key, in which case the tokens-per-minute budget is shared
// across every process watching the same key.
type AdaptiveRateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM float64
	minTPM     float64
	maxTPM     float64

	recoveryRate float64

	onBackoff func(newTPM float64)
	onProbe   func(newTPM float64)
}

type limitedClient struct {
	next    ModelClient
	limiter *AdaptiveRateLimiter
}

// NewAdaptiveRateLimiter constructs a process-local AdaptiveRateLimiter
// with a tokens-per-minute budget. initialTPM and maxTPM are expressed in
// tokens per minute; when maxTPM is zero or less than initialTPM it is
// clamped to initialTPM.
func NewAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	lim := rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM))

	return &AdaptiveRateLimiter{
		limiter:      lim,
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// NewClusterAdaptiveRateLimiter constructs an AdaptiveRateLimiter whose
// tokens-per-minute budget is coordinated across processes through a Redis
// key: every backoff/probe decision is applied with a compare-and-swap
// against the shared value, and a subscription to key invalidation
// notifications keeps each process's local limiter in sync with whichever
// process last won the swap. When rdb or key is empty, behaves as a
// process-local limiter.
func NewClusterAdaptiveRateLimiter(ctx context.Context, rdb *redis.Client, key string, initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if rdb == nil || key == "" {
		return NewAdaptiveRateLimiter(initialTPM, maxTPM)
	}

	l := NewAdaptiveRateLimiter(initialTPM, maxTPM)

	seeded, err := rdb.SetNX(ctx, key, strconv.Itoa(int(initialTPM)), 0).Result()
	if err != nil {
		// Shared budget unreachable: degrade to a process-local limiter so
		// callers still make progress.
		return l
	}
	if !seeded {
		if cur, err := rdb.Get(ctx, key).Result(); err == nil {
			if v, err := strconv.ParseFloat(cur, 64); err == nil && v > 0 {
				l.replaceTPM(v)
			}
		}
	}

	min, max, step := l.minTPM, l.maxTPM, l.recoveryRate
	l.setClusterCallbacks(
		func(_ float64) { go clusterBackoff(context.Background(), rdb, key, min) },
		func(_ float64) { go clusterProbe(context.Background(), rdb, key, step, max) },
	)

	go watchCluster(ctx, rdb, key, l)

	return l
}

// Middleware returns a ModelClient middleware that enforces the adaptive
// tokens-per-minute limit on every Complete call.
func (l *AdaptiveRateLimiter) Middleware() func(ModelClient) ModelClient {
	return func(next ModelClient) ModelClient {
		if next == nil {
			return nil
		}
		return &limitedClient{next: next, limiter: l}
	}
}

// CurrentTPM reports the limiter's current effective tokens-per-minute
// budget, for telemetry/debugging.
func (l *AdaptiveRateLimiter) CurrentTPM() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}

func (c *limitedClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, err
	}
	resp, err := c.next.Complete(ctx, req)
	c.limiter.observe(err)
	return resp, err
}

func (l *AdaptiveRateLimiter) wait(ctx context.Context, req *Request) error {
	tokens := estimateTokens(req)
	if tokens <= 0 {
		tokens = 1
	}
	return l.limiter.WaitN(ctx, tokens)
}

func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if errors.Is(err, ErrRateLimited) {
		l.backoff()
	}
}

func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		l.mu.Unlock()
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
	cb := l.onBackoff
	l.mu.Unlock()

	if cb != nil {
		cb(newTPM)
	}
}

func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		l.mu.Unlock()
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
	cb := l.onProbe
	l.mu.Unlock()

	if cb != nil {
		cb(newTPM)
	}
}

func (l *AdaptiveRateLimiter) replaceTPM(tpm float64) {
	l.mu.Lock()
	if tpm < l.minTPM {
		tpm = l.minTPM
	}
	if tpm > l.maxTPM {
		tpm = l.maxTPM
	}
	if tpm == l.currentTPM {
		l.mu.Unlock()
		return
	}
	l.currentTPM = tpm
	l.limiter.SetLimit(rate.Limit(tpm / 60.0))
	l.limiter.SetBurst(int(tpm))
	l.mu.Unlock()
}

func (l *AdaptiveRateLimiter) setClusterCallbacks(onBackoff, onProbe func(newTPM float64)) {
	l.mu.Lock()
	l.onBackoff = onBackoff
	l.onProbe = onProbe
	l.mu.Unlock()
}

// clusterCAS is a Lua script performing a compare-and-swap: it sets key to
// new only if its current value equals old, returning the value actually
// stored afterward. Using a script keeps the read-compare-write atomic
// without a WATCH/MULTI round trip.
var clusterCAS = redis.NewScript(`
local cur = redis.call("GET", KEYS[1])
if cur == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2])
	redis.call("PUBLISH", KEYS[1] .. ":changed", ARGV[2])
	return ARGV[2]
end
return cur
`)

func clusterBackoff(ctx context.Context, rdb *redis.Client, key string, floor float64) {
	casLoop(ctx, rdb, key, func(cur float64) (float64, bool) {
		next := cur * 0.5
		if next < floor {
			next = floor
		}
		return next, next != cur
	})
}

func clusterProbe(ctx context.Context, rdb *redis.Client, key string, step, ceiling float64) {
	casLoop(ctx, rdb, key, func(cur float64) (float64, bool) {
		if cur >= ceiling {
			return cur, false
		}
		next := cur + step
		if next > ceiling {
			next = ceiling
		}
		return next, next != cur
	})
}

// casLoop retries a compare-and-swap against key up to three times,
// tolerating a concurrent writer winning the race.
func casLoop(ctx context.Context, rdb *redis.Client, key string, next func(cur float64) (float64, bool)) {
	const maxAttempts = 3
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for i := 0; i < maxAttempts; i++ {
		curStr, err := rdb.Get(ctx, key).Result()
		if err != nil {
			return
		}
		cur, err := strconv.ParseFloat(curStr, 64)
		if err != nil || cur <= 0 {
			return
		}
		want, changed := next(cur)
		if !changed {
			return
		}
		wantStr := strconv.Itoa(int(want))
		result, err := clusterCAS.Run(ctx, rdb, []string{key}, curStr, wantStr).Result()
		if err != nil {
			return
		}
		if result == wantStr {
			return
		}
		// Another writer won; retry against the fresher value.
	}
}

// watchCluster subscribes to change notifications for key and reconciles
// this limiter's local budget whenever another process updates it.
func watchCluster(ctx context.Context, rdb *redis.Client, key string, l *AdaptiveRateLimiter) {
	sub := rdb.Subscribe(ctx, key+":changed")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if v, err := strconv.ParseFloat(msg.Payload, 64); err == nil && v > 0 {
				l.replaceTPM(v)
			}
		}
	}
}
