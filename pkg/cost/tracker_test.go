package cost

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-turing/atm/pkg/config"
)

func TestFamily(t *testing.T) {
	tests := []struct {
		model    string
		expected string
	}{
		{"claude-sonnet-4-20250514", FamilySonnet},
		{"claude-opus-4-1-20250805", FamilyOpus},
		{"claude-3-5-haiku-latest", FamilyHaiku},
		{"gpt-4o-2024-08-06", FamilyGPT4o},
		{"gpt-4o-mini", FamilyGPT4oMini},
		{"gemini-2.5-flash", FamilyGeminiFlash},
		{"gemini-2.5-pro", FamilyGeminiPro},
		{"mystery-model", FamilySonnet},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.expected, Family(tt.model))
		})
	}
}

func TestPriceTable_Cost(t *testing.T) {
	table := NewPriceTable(map[string]config.Pricing{"Haiku": {Input: 1, Output: 5}})

	assert.InDelta(t, 0.003+0.015, table.Cost("claude-sonnet-4", 1000, 1000), 1e-12)
	assert.InDelta(t, 0.001+0.005, table.Cost("claude-haiku", 1000, 1000), 1e-12)
	assert.InDelta(t, 0.0, table.Cost("gpt-4o", 0, 0), 1e-12)
}

type recordingSink struct {
	mu    sync.Mutex
	calls []Call
	err   error
}

func (s *recordingSink) RecordCall(_ context.Context, call Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return s.err
}

func fixedClock() time.Time {
	return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestTracker(t *testing.T) {
	sink := &recordingSink{}
	tracker := NewTracker(config.CostTrackingConfig{Enabled: true}, WithSink(sink), WithClock(fixedClock))

	c1 := tracker.Track(context.Background(), Call{Model: "claude-sonnet-4", Stage: 1, NoiseLevel: 0, InputTokens: 150, OutputTokens: 75})
	c2 := tracker.Track(context.Background(), Call{Model: "claude-sonnet-4", Stage: 2, NoiseLevel: 25, InputTokens: 100, OutputTokens: 50})

	assert.InDelta(t, 150.0/1e6*3+75.0/1e6*15, c1, 1e-12)
	assert.InDelta(t, c1+c2, tracker.TotalCost(), 1e-12)
	assert.Equal(t, Tokens{Input: 250, Output: 125, Total: 375}, tracker.TotalTokens())

	byStage := tracker.CostByStage()
	assert.Len(t, byStage, 3)
	assert.InDelta(t, 0.0, byStage[3], 1e-12)
	assert.InDelta(t, c2, byStage[2], 1e-12)

	byLevel := tracker.CostByNoiseLevel()
	assert.InDelta(t, c1, byLevel[0], 1e-12)
	assert.InDelta(t, c2, byLevel[25], 1e-12)

	summary := tracker.Summary()
	assert.Equal(t, 2, summary.TotalCalls)
	assert.Equal(t, "USD", summary.Currency)
	assert.InDelta(t, (c1+c2)/2, summary.AverageCostPerCall, 1e-12)

	require.Len(t, sink.calls, 2)
	assert.Equal(t, fixedClock(), sink.calls[0].Timestamp)
}

func TestTracker_Disabled(t *testing.T) {
	tracker := NewTracker(config.CostTrackingConfig{Enabled: false})

	assert.Equal(t, 0.0, tracker.Track(context.Background(), Call{Model: "x", Stage: 1, InputTokens: 1000}))
	assert.Empty(t, tracker.Calls())
	assert.Equal(t, 0.0, tracker.Summary().AverageCostPerCall)
}

func TestTracker_SinkErrorIsNotFatal(t *testing.T) {
	sink := &recordingSink{err: fmt.Errorf("disk full")}
	tracker := NewTracker(config.CostTrackingConfig{Enabled: true}, WithSink(sink))

	tracker.Track(context.Background(), Call{Model: "claude-sonnet-4", Stage: 1, InputTokens: 10})
	assert.Len(t, tracker.Calls(), 1)
}

func TestTracker_Concurrent(t *testing.T) {
	tracker := NewTracker(config.CostTrackingConfig{Enabled: true})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tracker.Track(context.Background(), Call{Model: "claude-sonnet-4", Stage: i%3 + 1, InputTokens: 10, OutputTokens: 10})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, tracker.Summary().TotalCalls)
	assert.Equal(t, 1000, tracker.TotalTokens().Total)
}

func TestTracker_SaveReport(t *testing.T) {
	tracker := NewTracker(config.CostTrackingConfig{Enabled: true, Currency: "EUR"}, WithClock(fixedClock))
	tracker.Track(context.Background(), Call{Model: "claude-sonnet-4", Stage: 1, NoiseLevel: 10, InputTokens: 100, OutputTokens: 10})

	t.Run("with breakdown", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "cost.json")
		require.NoError(t, tracker.SaveReport(path, true))

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var report map[string]any
		require.NoError(t, json.Unmarshal(data, &report))
		assert.Contains(t, report, "generated_at")
		summary := report["summary"].(map[string]any)
		assert.Equal(t, "EUR", summary["currency"])
		assert.Contains(t, summary["cost_by_stage"], "1")
		assert.Len(t, report["calls"], 1)
	})

	t.Run("without breakdown", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cost.json")
		require.NoError(t, tracker.SaveReport(path, false))

		var report Report
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &report))
		assert.Empty(t, report.Calls)
		assert.Equal(t, 1, report.Summary.TotalCalls)
	})
}
