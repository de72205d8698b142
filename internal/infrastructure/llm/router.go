package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ngoclaw/aichat/internal/domain/service"
)

// Router implements the gateway capabilities by trying providers in priority
// order. Each provider sits behind its own circuit breaker.
type Router struct {
	providers []routed
	mu        sync.RWMutex
	logger    *zap.Logger

	failureThreshold int
	recoveryTimeout  time.Duration
}

type routed struct {
	provider Provider
	priority int
	stats    *providerStats
	breaker  *CircuitBreaker
}

type providerStats struct {
	mu           sync.Mutex
	TotalCalls   int64
	FailureCount int64
	LastLatency  time.Duration
	LastError    string
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithBreaker overrides the per-provider breaker settings.
func WithBreaker(failureThreshold int, recoveryTimeout time.Duration) RouterOption {
	return func(r *Router) {
		r.failureThreshold = failureThreshold
		r.recoveryTimeout = recoveryTimeout
	}
}

// NewRouter creates an empty router.
func NewRouter(logger *zap.Logger, opts ...RouterOption) *Router {
	r := &Router{
		logger:           logger.With(zap.String("component", "llm-router")),
		failureThreshold: 5,
		recoveryTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var (
	_ service.LLMClient      = (*Router)(nil)
	_ service.ImageGenerator = (*Router)(nil)
	_ service.Transcriber    = (*Router)(nil)
	_ service.Synthesizer    = (*Router)(nil)
)

// AddProvider registers p. Lower priority values are tried first; ties keep
// insertion order.
func (r *Router) AddProvider(p Provider, priority int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, routed{
		provider: p,
		priority: priority,
		stats:    &providerStats{},
		breaker:  NewCircuitBreaker(r.failureThreshold, r.recoveryTimeout),
	})
	sort.SliceStable(r.providers, func(i, j int) bool {
		return r.providers[i].priority < r.providers[j].priority
	})
	r.logger.Info("AI provider added",
		zap.String("name", p.Name()),
		zap.Int("priority", priority),
		zap.Strings("models", p.Models()),
	)
}

// Len returns the number of registered providers.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

func (r *Router) snapshot() []routed {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]routed(nil), r.providers...)
}

// try calls fn on each eligible provider until one succeeds.
func (r *Router) try(ctx context.Context, capability string, eligible func(Provider) bool, fn func(Provider) error) error {
	var lastErr error
	attempted := 0
	for _, rp := range r.snapshot() {
		p := rp.provider
		if !eligible(p) || !p.IsAvailable(ctx) {
			continue
		}
		if !rp.breaker.Allow() {
			r.logger.Debug("Provider circuit open, skipping",
				zap.String("provider", p.Name()),
				zap.String("capability", capability),
			)
			continue
		}

		attempted++
		start := time.Now()
		err := fn(p)
		rp.stats.record(time.Since(start), err)

		if err == nil {
			rp.breaker.RecordSuccess()
			return nil
		}

		classified := service.ClassifyLLMError(err, p.Name(), capability)
		if classified.Kind.CountsAgainstProvider() {
			rp.breaker.RecordFailure()
		}
		lastErr = err
		r.logger.Warn("Provider failed, trying next",
			zap.String("provider", p.Name()),
			zap.String("capability", capability),
			zap.String("kind", classified.Kind.String()),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if lastErr != nil {
		return fmt.Errorf("all providers failed for %s after %d attempts, last error: %w", capability, attempted, lastErr)
	}
	return fmt.Errorf("no provider available for %s: %w", capability, service.ErrCapabilityUnimplemented)
}

// Generate routes a completion. A provider that does not serve req.Model is
// still tried with its own default model so a secondary vendor can take over.
func (r *Router) Generate(ctx context.Context, req *service.LLMRequest) (*service.LLMResponse, error) {
	var out *service.LLMResponse
	err := r.try(ctx, "chat", func(Provider) bool { return true }, func(p Provider) error {
		call := *req
		if !p.SupportsModel(req.Model) {
			if p.DefaultModel() == "" {
				return fmt.Errorf("provider %s cannot serve model %q", p.Name(), req.Model)
			}
			call.Model = p.DefaultModel()
		}
		resp, err := p.Generate(ctx, &call)
		if err != nil {
			return err
		}
		if resp.ProviderUsed == "" {
			resp.ProviderUsed = p.Name()
		}
		if resp.ModelUsed == "" {
			resp.ModelUsed = call.Model
		}
		out = resp
		return nil
	})
	return out, err
}

// GenerateImage routes to providers implementing service.ImageGenerator.
func (r *Router) GenerateImage(ctx context.Context, req *service.ImageRequest) (*service.ImageResult, error) {
	var out *service.ImageResult
	err := r.try(ctx, "image", implements[service.ImageGenerator], func(p Provider) error {
		res, err := p.(service.ImageGenerator).GenerateImage(ctx, req)
		if err != nil {
			return err
		}
		if res.Provider == "" {
			res.Provider = p.Name()
		}
		out = res
		return nil
	})
	return out, err
}

// Transcribe routes to providers implementing service.Transcriber.
func (r *Router) Transcribe(ctx context.Context, audio []byte, mimeType string) (*service.Transcription, error) {
	var out *service.Transcription
	err := r.try(ctx, "transcription", implements[service.Transcriber], func(p Provider) error {
		res, err := p.(service.Transcriber).Transcribe(ctx, audio, mimeType)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// Synthesize routes to providers implementing service.Synthesizer.
func (r *Router) Synthesize(ctx context.Context, text string) (*service.SpeechResult, error) {
	var out *service.SpeechResult
	err := r.try(ctx, "speech", implements[service.Synthesizer], func(p Provider) error {
		res, err := p.(service.Synthesizer).Synthesize(ctx, text)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// HasCapability reports whether any provider implements T.
func HasCapability[T any](r *Router) bool {
	for _, rp := range r.snapshot() {
		if implements[T](rp.provider) {
			return true
		}
	}
	return false
}

func implements[T any](p Provider) bool {
	_, ok := p.(T)
	return ok
}

func (s *providerStats) record(latency time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalCalls++
	s.LastLatency = latency
	if err != nil && !errors.Is(err, context.Canceled) {
		s.FailureCount++
		s.LastError = err.Error()
	}
}

// ProviderStatus describes a provider's current state and performance.
type ProviderStatus struct {
	Name          string   `json:"name"`
	Priority      int      `json:"priority"`
	Models        []string `json:"models"`
	Capabilities  []string `json:"capabilities"`
	Available     bool     `json:"available"`
	TotalCalls    int64    `json:"total_calls"`
	FailureCount  int64    `json:"failure_count"`
	LastLatencyMs float64  `json:"last_latency_ms"`
	LastError     string   `json:"last_error,omitempty"`
	CircuitState  string   `json:"circuit_state"`
}

// ListProviders returns status and stats for every provider, in routing order.
func (r *Router) ListProviders(ctx context.Context) []ProviderStatus {
	providers := r.snapshot()
	result := make([]ProviderStatus, 0, len(providers))
	for _, rp := range providers {
		p := rp.provider
		caps := []string{"chat"}
		if implements[service.ImageGenerator](p) {
			caps = append(caps, "image")
		}
		if implements[service.Transcriber](p) {
			caps = append(caps, "transcription")
		}
		if implements[service.Synthesizer](p) {
			caps = append(caps, "speech")
		}

		rp.stats.mu.Lock()
		ps := ProviderStatus{
			Name:          p.Name(),
			Priority:      rp.priority,
			Models:        p.Models(),
			Capabilities:  caps,
			Available:     p.IsAvailable(ctx),
			TotalCalls:    rp.stats.TotalCalls,
			FailureCount:  rp.stats.FailureCount,
			LastLatencyMs: float64(rp.stats.LastLatency) / float64(time.Millisecond),
			LastError:     rp.stats.LastError,
			CircuitState:  rp.breaker.State().String(),
		}
		rp.stats.mu.Unlock()
		result = append(result, ps)
	}
	return result
}
