// Package insight produces the short motivational narrative shown when a
// simulation run completes. Providers are best effort: every failure is
// resolved by the caller to one of the static fallbacks.
package insight

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the provider could not produce an insight.
	ErrUnavailable = errors.New("insight unavailable")

	// ErrNotConfigured means no provider credentials were supplied.
	ErrNotConfigured = fmt.Errorf("%w: provider not configured", ErrUnavailable)
)

// Insight is the narrative for one completed run.
type Insight struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Analogy string `json:"analogy"`
}

// Complete reports whether every field carries text.
func (i Insight) Complete() bool {
	return i.Title != "" && i.Message != "" && i.Analogy != ""
}

// Request describes the completed run the insight is about.
type Request struct {
	TotalDays  int     `json:"total_days"`
	DailyRate  float64 `json:"daily_rate"`
	FinalValue float64 `json:"final_value"`
}

// Provider produces an insight for a completed run.
type Provider interface {
	RequestInsight(ctx context.Context, req Request) (Insight, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, req Request) (Insight, error)

func (f ProviderFunc) RequestInsight(ctx context.Context, req Request) (Insight, error) {
	return f(ctx, req)
}

// Static fallbacks.
var (
	FallbackNotConfigured = Insight{
		Title:   "The Power of Tiny Gains",
		Message: "Small improvements feel invisible day to day, but they compound. Keep showing up and the curve bends in your favour.",
		Analogy: "Like a snowball rolling downhill: it starts as a handful and ends as an avalanche.",
	}

	FallbackFailed = Insight{
		Title:   "Consistency Wins",
		Message: "We couldn't fetch a personalised insight right now, but the numbers speak for themselves: steady daily progress adds up to remarkable results.",
		Analogy: "Like compound interest in a savings account, the returns you earn today start earning returns tomorrow.",
	}
)

// Fallback picks the static insight matching err.
func Fallback(err error) Insight {
	if errors.Is(err, ErrNotConfigured) {
		return FallbackNotConfigured
	}
	return FallbackFailed
}
