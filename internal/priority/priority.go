// Package priority computes the composite calculated_priority score for a
// task from its base priority, deadline urgency, dependency depth, and
// source, per the documented weight table in the design ledger.
package priority

import (
	"time"

	"github.com/odgrim/abathur-swarm/internal/types"
)

// Weight constants. Exact numeric values were left unspecified upstream;
// these are the extracted defaults — see DESIGN.md's Open Question entry.
const (
	deadlineUrgencyMax    = 50.0
	deadlineUrgencyWindow = 72 * time.Hour

	depthBoostPerLevel = 5.0
	depthBoostCap       = 25.0
)

var sourceWeights = map[types.Source]float64{
	types.SourceHuman:                10.0,
	types.SourceAgentRequirements:      0.0,
	types.SourceAgentPlanner:           0.0,
	types.SourceAgentImplementation:    0.0,
}

// Calculate returns the composite score for t as of now. It is a pure
// function: no Store access, no side effects.
func Calculate(t *types.Task, now time.Time) float64 {
	score := float64(t.BasePriority)
	score += deadlineUrgency(t.Deadline, now)
	score += depthBoost(t.DependencyDepth)
	score += sourceWeight(t.Source)
	return score
}

// deadlineUrgency grows linearly as now approaches deadline, saturating at
// deadlineUrgencyMax once the deadline is at or in the past. Unset
// deadlines contribute zero.
func deadlineUrgency(deadline *time.Time, now time.Time) float64 {
	if deadline == nil {
		return 0
	}
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		return deadlineUrgencyMax
	}
	if remaining >= deadlineUrgencyWindow {
		return 0
	}
	fraction := 1 - float64(remaining)/float64(deadlineUrgencyWindow)
	return fraction * deadlineUrgencyMax
}

// depthBoost rewards tasks further down a dependency chain so unblocking
// them takes priority over enqueuing fresh roots; monotone, capped.
func depthBoost(depth int) float64 {
	boost := float64(depth) * depthBoostPerLevel
	if boost > depthBoostCap {
		return depthBoostCap
	}
	return boost
}

func sourceWeight(source types.Source) float64 {
	return sourceWeights[source]
}
