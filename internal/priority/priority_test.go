package priority

import (
	"testing"
	"time"

	"github.com/odgrim/abathur-swarm/internal/types"
)

func TestCalculate_BaseOnly(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	task := &types.Task{BasePriority: 5, Source: types.SourceAgentPlanner}
	got := Calculate(task, now)
	if got != 5 {
		t.Fatalf("expected 5, got %v", got)
	}
}

func TestCalculate_HumanSourceBoost(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	human := &types.Task{BasePriority: 5, Source: types.SourceHuman}
	agent := &types.Task{BasePriority: 5, Source: types.SourceAgentPlanner}
	if Calculate(human, now) <= Calculate(agent, now) {
		t.Fatalf("expected human-sourced task to outscore an equal-priority agent task")
	}
}

func TestCalculate_DeadlinePastMaxesUrgency(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	task := &types.Task{BasePriority: 0, Source: types.SourceAgentPlanner, Deadline: &past}
	if got := Calculate(task, now); got != deadlineUrgencyMax {
		t.Fatalf("expected %v, got %v", deadlineUrgencyMax, got)
	}
}

func TestCalculate_DeadlineFarAwayContributesNothing(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	far := now.Add(deadlineUrgencyWindow * 2)
	task := &types.Task{BasePriority: 0, Source: types.SourceAgentPlanner, Deadline: &far}
	if got := Calculate(task, now); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestCalculate_DeadlineMonotoneAsItApproaches(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	far := now.Add(deadlineUrgencyWindow)
	near := now.Add(deadlineUrgencyWindow / 4)
	farTask := &types.Task{BasePriority: 0, Source: types.SourceAgentPlanner, Deadline: &far}
	nearTask := &types.Task{BasePriority: 0, Source: types.SourceAgentPlanner, Deadline: &near}
	if Calculate(nearTask, now) <= Calculate(farTask, now) {
		t.Fatalf("expected urgency to increase as the deadline approaches")
	}
}

func TestCalculate_DepthBoostMonotoneAndCapped(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	shallow := &types.Task{BasePriority: 0, Source: types.SourceAgentPlanner, DependencyDepth: 1}
	deep := &types.Task{BasePriority: 0, Source: types.SourceAgentPlanner, DependencyDepth: 4}
	deeper := &types.Task{BasePriority: 0, Source: types.SourceAgentPlanner, DependencyDepth: 100}
	if Calculate(deep, now) <= Calculate(shallow, now) {
		t.Fatalf("expected deeper task to score higher")
	}
	if Calculate(deeper, now) != depthBoostCap {
		t.Fatalf("expected depth boost to cap at %v, got %v", depthBoostCap, Calculate(deeper, now))
	}
}
