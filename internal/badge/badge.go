// Package badge decides which achievement badges an owner newly qualifies for.
//
// Rules are pure functions of the aggregate before and after an update. They only
// ever add badges; an earned badge is never taken away, even when the score drops
// back below the threshold that granted it.
package badge

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrInvalidThreshold   = errors.New("badge threshold must be positive")
	ErrDuplicateThreshold = errors.New("duplicate badge threshold")
	ErrEmptyBadgeName     = errors.New("badge name must not be empty")
)

// Badge names granted by the default rule set.
const (
	FirstReport   = "Polter-Position Spotter"
	FiveApprovals = "Revealer"
)

// Counter names an aggregate counter a rule can watch.
type Counter string

const (
	CounterScore     Counter = "score"
	CounterReports   Counter = "reportsCount"
	CounterApprovals Counter = "approvalsCount"
)

// Snapshot is the slice of an owner aggregate the rules look at.
type Snapshot struct {
	Score          int64
	ReportsCount   int64
	ApprovalsCount int64
}

// Get returns the value of the named counter.
func (s Snapshot) Get(c Counter) int64 {
	switch c {
	case CounterScore:
		return s.Score
	case CounterReports:
		return s.ReportsCount
	case CounterApprovals:
		return s.ApprovalsCount
	default:
		return 0
	}
}

// Rule returns the badges that an update from before to after qualifies for.
type Rule interface {
	Evaluate(before, after Snapshot) []string
}

// EventRule fires once when a counter goes from below Boundary to at or above it.
type EventRule struct {
	Counter  Counter
	Boundary int64
	Badge    string
}

// Evaluate implements Rule.
func (r EventRule) Evaluate(before, after Snapshot) []string {
	if before.Get(r.Counter) < r.Boundary && after.Get(r.Counter) >= r.Boundary {
		return []string{r.Badge}
	}
	return nil
}

// Threshold pairs a score with the badge awarded for reaching it.
type Threshold struct {
	Score int64  `koanf:"score"`
	Badge string `koanf:"badge"`
}

// ThresholdRule fires for every threshold the score crosses upward.
// A single update can cross several thresholds.
type ThresholdRule struct {
	Thresholds []Threshold
}

// Evaluate implements Rule.
func (r ThresholdRule) Evaluate(before, after Snapshot) []string {
	var earned []string
	for _, t := range r.Thresholds {
		if before.Score < t.Score && t.Score <= after.Score {
			earned = append(earned, t.Badge)
		}
	}
	return earned
}

// DefaultThresholds is the point badge ladder, lowest first.
func DefaultThresholds() []Threshold {
	return []Threshold{
		{Score: 10, Badge: "Whisp Whisperer"},
		{Score: 25, Badge: "Soul Saver"},
		{Score: 50, Badge: "Wraith Wrecker"},
		{Score: 100, Badge: "Phantom Fighter"},
		{Score: 200, Badge: "Apparition Avoider"},
		{Score: 500, Badge: "Nightly Knight"},
		{Score: 1000, Badge: "That's... a thousand..."},
		{Score: 2000, Badge: "Eternal Echo"},
		{Score: 5000, Badge: "Golden Guide"},
	}
}

// ValidateThresholds checks a configured ladder and returns it sorted by score.
func ValidateThresholds(thresholds []Threshold) ([]Threshold, error) {
	sorted := slices.Clone(thresholds)
	slices.SortFunc(sorted, func(a, b Threshold) int {
		return cmp.Compare(a.Score, b.Score)
	})

	for i, t := range sorted {
		if t.Score <= 0 {
			return nil, fmt.Errorf("%w: %q at %d", ErrInvalidThreshold, t.Badge, t.Score)
		}
		if t.Badge == "" {
			return nil, fmt.Errorf("%w: threshold %d", ErrEmptyBadgeName, t.Score)
		}
		if i > 0 && sorted[i-1].Score == t.Score {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateThreshold, t.Score)
		}
	}

	return sorted, nil
}

// Engine evaluates a fixed set of rules.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine from the given rules.
func NewEngine(rules ...Rule) *Engine {
	return &Engine{rules: rules}
}

// NewDefaultEngine creates the standard rule set with the given point ladder.
// A nil ladder uses DefaultThresholds.
func NewDefaultEngine(thresholds []Threshold) *Engine {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}

	return NewEngine(
		EventRule{Counter: CounterReports, Boundary: 1, Badge: FirstReport},
		EventRule{Counter: CounterApprovals, Boundary: 5, Badge: FiveApprovals},
		ThresholdRule{Thresholds: thresholds},
	)
}

// Evaluate returns the sorted, de-duplicated badges every rule grants for the update.
func (e *Engine) Evaluate(before, after Snapshot) []string {
	var earned []string
	for _, rule := range e.rules {
		earned = append(earned, rule.Evaluate(before, after)...)
	}

	slices.Sort(earned)
	return slices.Compact(earned)
}

// Union adds badges to an existing set without duplicates.
// Existing members keep their order; new ones are appended in the order given.
func Union(existing []string, added ...string) []string {
	result := slices.Clone(existing)
	for _, b := range added {
		if b == "" || slices.Contains(result, b) {
			continue
		}
		result = append(result, b)
	}
	return result
}
