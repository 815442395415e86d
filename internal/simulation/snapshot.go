package simulation

import (
	"github.com/compounding/growth-backend/internal/growth"
	"github.com/compounding/growth-backend/internal/insight"
)

// Snapshot is a consistent, read-only view of a run.
type Snapshot struct {
	RunID          string           `json:"run_id"`
	Generation     uint64           `json:"generation"`
	Status         Status           `json:"status"`
	Config         growth.Config    `json:"config"`
	CurrentDay     int              `json:"current_day"`
	CurrentValue   float64          `json:"current_value"`
	Progress       float64          `json:"progress"`
	GrowthPercent  float64          `json:"growth_percent"`
	Series         []growth.Point   `json:"series"`
	Insight        *insight.Insight `json:"insight,omitempty"`
	InsightPending bool             `json:"insight_pending"`
}

// FinalValue reports the value the run ends on, known only once COMPLETED.
func (s Snapshot) FinalValue() (float64, bool) {
	return s.CurrentValue, s.Status == StatusCompleted
}

// snapshotLocked shares the series prefix with the controller. The series is
// append-only within a run and replaced on reset; capping the slice keeps
// readers from writing past it.
func (c *Controller) snapshotLocked() Snapshot {
	n := len(c.series)
	snap := Snapshot{
		RunID:          c.runID,
		Generation:     c.generation,
		Status:         c.status,
		Config:         c.cfg,
		CurrentDay:     c.day,
		CurrentValue:   c.value,
		Progress:       float64(c.day) / float64(c.cfg.TotalDays),
		GrowthPercent:  growth.GrowthPercent(c.cfg, c.value),
		Series:         c.series[:n:n],
		InsightPending: c.insightPending,
	}
	if c.insight != nil {
		ins := *c.insight
		snap.Insight = &ins
	}
	return snap
}
