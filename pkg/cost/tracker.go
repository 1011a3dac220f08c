// Package cost tracks token usage and cost of translator calls.
package cost

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/agentic-turing/atm/pkg/config"
	"github.com/agentic-turing/atm/pkg/logger"
)

// Call is one tracked translator call
type Call struct {
	Timestamp    time.Time `json:"timestamp" db:"created_at"`
	RunID        string    `json:"run_id,omitempty" db:"run_id"`
	Provider     string    `json:"provider,omitempty" db:"provider"`
	Model        string    `json:"model" db:"model"`
	Stage        int       `json:"stage" db:"stage"`
	NoiseLevel   int       `json:"noise_level" db:"noise_level"`
	InputTokens  int       `json:"input_tokens" db:"input_tokens"`
	OutputTokens int       `json:"output_tokens" db:"output_tokens"`
	Cost         float64   `json:"cost" db:"cost"`
}

// Sink receives every tracked call, e.g. for persistence
type Sink interface {
	RecordCall(ctx context.Context, call Call) error
}

// Tokens is a token count breakdown
type Tokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// Summary is the aggregate view over all tracked calls
type Summary struct {
	TotalCost          float64         `json:"total_cost"`
	TotalCalls         int             `json:"total_calls"`
	TotalTokens        Tokens          `json:"total_tokens"`
	CostByStage        map[int]float64 `json:"cost_by_stage"`
	CostByNoiseLevel   map[int]float64 `json:"cost_by_noise_level"`
	AverageCostPerCall float64         `json:"average_cost_per_call"`
	Currency           string          `json:"currency"`
}

// Report is the on-disk cost report
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	Summary     Summary   `json:"summary"`
	Calls       []Call    `json:"calls"`
}

// Tracker accumulates calls. It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	enabled  bool
	currency string
	prices   PriceTable
	sink     Sink
	calls    []Call
	now      func() time.Time
}

// Option configures a Tracker
type Option func(*Tracker)

// WithSink forwards every tracked call to sink
func WithSink(sink Sink) Option {
	return func(t *Tracker) { t.sink = sink }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker from the cost tracking configuration
func NewTracker(cfg config.CostTrackingConfig, opts ...Option) *Tracker {
	currency := cfg.Currency
	if currency == "" {
		currency = "USD"
	}
	t := &Tracker{
		enabled:  cfg.Enabled,
		currency: currency,
		prices:   NewPriceTable(cfg.Pricing),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Enabled reports whether calls are being tracked
func (t *Tracker) Enabled() bool {
	return t.enabled
}

// Track prices and records call, returning its cost. A disabled tracker
// records nothing and returns 0.
func (t *Tracker) Track(ctx context.Context, call Call) float64 {
	if !t.enabled {
		return 0
	}

	call.Cost = t.prices.Cost(call.Model, call.InputTokens, call.OutputTokens)
	if call.Timestamp.IsZero() {
		call.Timestamp = t.now()
	}

	t.mu.Lock()
	t.calls = append(t.calls, call)
	t.mu.Unlock()

	log := logger.G(ctx).WithFields(logrus.Fields{
		"stage":         call.Stage,
		"noise_level":   call.NoiseLevel,
		"input_tokens":  call.InputTokens,
		"output_tokens": call.OutputTokens,
		"cost":          call.Cost,
	})
	log.Debug("api call tracked")

	if t.sink != nil {
		if err := t.sink.RecordCall(ctx, call); err != nil {
			log.WithError(err).Warn("failed to persist api call")
		}
	}
	return call.Cost
}

// Calls returns a copy of the tracked calls
func (t *Tracker) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}

// TotalCost sums the cost of all calls
func (t *Tracker) TotalCost() float64 {
	return Summarize(t.Calls(), t.currency).TotalCost
}

// TotalTokens sums token usage over all calls
func (t *Tracker) TotalTokens() Tokens {
	return Summarize(t.Calls(), t.currency).TotalTokens
}

// CostByStage returns cost per stage. Stages 1 to 3 are always present.
func (t *Tracker) CostByStage() map[int]float64 {
	return Summarize(t.Calls(), t.currency).CostByStage
}

// CostByNoiseLevel returns cost per noise level
func (t *Tracker) CostByNoiseLevel() map[int]float64 {
	return Summarize(t.Calls(), t.currency).CostByNoiseLevel
}

// Summary aggregates all tracked calls
func (t *Tracker) Summary() Summary {
	return Summarize(t.Calls(), t.currency)
}

// Summarize aggregates calls in any order
func Summarize(calls []Call, currency string) Summary {
	s := Summary{
		TotalCalls:       len(calls),
		CostByStage:      map[int]float64{1: 0, 2: 0, 3: 0},
		CostByNoiseLevel: map[int]float64{},
		Currency:         currency,
	}
	for _, c := range calls {
		s.TotalCost += c.Cost
		s.TotalTokens.Input += c.InputTokens
		s.TotalTokens.Output += c.OutputTokens
		s.CostByStage[c.Stage] += c.Cost
		s.CostByNoiseLevel[c.NoiseLevel] += c.Cost
	}
	s.TotalTokens.Total = s.TotalTokens.Input + s.TotalTokens.Output
	if len(calls) > 0 {
		s.AverageCostPerCall = s.TotalCost / float64(len(calls))
	}
	return s
}

// SaveReport writes the cost report to path. Without the breakdown the calls
// list is empty.
func (t *Tracker) SaveReport(path string, includeBreakdown bool) error {
	calls := t.Calls()
	sort.SliceStable(calls, func(i, j int) bool { return calls[i].Timestamp.Before(calls[j].Timestamp) })

	report := Report{
		GeneratedAt: t.now(),
		Summary:     Summarize(calls, t.currency),
		Calls:       []Call{},
	}
	if includeBreakdown {
		report.Calls = calls
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return atmerr.Wrap(err, atmerr.KindFileOperation, "failed to create report directory", atmerr.Details{"path": path})
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return atmerr.Wrap(err, atmerr.KindFileOperation, "failed to encode cost report", nil)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return atmerr.Wrap(err, atmerr.KindFileOperation, "failed to write cost report", atmerr.Details{"path": path})
	}
	return nil
}
