// Package progress computes mission progress from an aggregated activity log
// window. Every function here is pure: the same definition and aggregate
// always produce the same result.
package progress

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"ecoquest_miniapp/internal/model"
)

type Range struct {
	Min int64 `mapstructure:"min"`
	Max int64 `mapstructure:"max"`
}

func (r Range) Contains(id int64) bool {
	return id >= r.Min && id <= r.Max
}

type Config struct {
	PositiveImpact Range `mapstructure:"positiveImpact"`
	Transportation Range `mapstructure:"transportation"`
}

func DefaultConfig() Config {
	return Config{
		PositiveImpact: Range{Min: 100, Max: 199},
		Transportation: Range{Min: 1, Max: 99},
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.PositiveImpact == (Range{}) {
		c.PositiveImpact = defaults.PositiveImpact
	}
	if c.Transportation == (Range{}) {
		c.Transportation = defaults.Transportation
	}
	return c
}

// Outcome is what a single mission type strategy reports.
type Outcome struct {
	Value    float64
	Complete bool
}

type Result struct {
	Value      float64
	Complete   bool
	Percentage float64
	Text       string
}

type strategy interface {
	progress(def *model.MissionDefinition, agg *model.LogAggregate) Outcome
	// minWindowDays is the shortest period in which the type is meaningful.
	minWindowDays() int
	// capped types complete while the value stays at or below the target.
	capped() bool
	unit() string
}

type Calculator struct {
	cfg        Config
	strategies map[model.MissionType]strategy
}

func NewCalculator(cfg Config) *Calculator {
	cfg = cfg.withDefaults()
	return &Calculator{
		cfg: cfg,
		strategies: map[model.MissionType]strategy{
			model.MissionCO2Saved:         co2Saved{},
			model.MissionCO2Produced:      co2Produced{},
			model.MissionSpecificActivity: specificActivity{},
			model.MissionActivityCount:    activityCount{positive: cfg.PositiveImpact},
			model.MissionConsecutiveDays:  consecutiveDays{},
			model.MissionTotalDistance:    totalDistance{transport: cfg.Transportation},
		},
	}
}

// Supports reports whether the calculator has a strategy for t.
func (c *Calculator) Supports(t model.MissionType) bool {
	_, ok := c.strategies[t]
	return ok
}

// MinWindowDays is the shortest period a mission type can be scheduled in.
func (c *Calculator) MinWindowDays(t model.MissionType) int {
	s, ok := c.strategies[t]
	if !ok {
		return 0
	}
	return s.minWindowDays()
}

func (c *Calculator) Progress(def *model.MissionDefinition, agg *model.LogAggregate) (Result, error) {
	s, ok := c.strategies[def.Type]
	if !ok {
		return Result{}, fmt.Errorf("unsupported mission type %q", def.Type)
	}
	if agg == nil {
		agg = model.NewLogAggregate("", "")
	}

	out := s.progress(def, agg)
	return Result{
		Value:      out.Value,
		Complete:   out.Complete,
		Percentage: percentage(out, def.TargetValue, s.capped()),
		Text:       fmt.Sprintf("%s/%s %s", formatNumber(out.Value), formatNumber(def.TargetValue), s.unit()),
	}, nil
}

func percentage(out Outcome, target float64, capped bool) float64 {
	var pct float64
	switch {
	case capped && out.Complete:
		pct = 100
	case capped:
		pct = target / out.Value * 100
	case target <= 0:
		pct = 100
	default:
		pct = out.Value / target * 100
	}
	if math.IsNaN(pct) {
		return 0
	}
	return math.Round(math.Max(0, math.Min(100, pct))*100) / 100
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

type co2Saved struct{}

func (co2Saved) progress(def *model.MissionDefinition, agg *model.LogAggregate) Outcome {
	v := agg.TotalSaved()
	return Outcome{Value: v, Complete: v >= def.TargetValue}
}
func (co2Saved) minWindowDays() int { return 1 }
func (co2Saved) capped() bool       { return false }
func (co2Saved) unit() string       { return "kg CO2 saved" }

type co2Produced struct{}

func (co2Produced) progress(def *model.MissionDefinition, agg *model.LogAggregate) Outcome {
	v := agg.TotalProduced()
	return Outcome{Value: v, Complete: v <= def.TargetValue}
}
func (co2Produced) minWindowDays() int { return 1 }
func (co2Produced) capped() bool       { return true }
func (co2Produced) unit() string       { return "kg CO2 produced" }

type specificActivity struct{}

func (specificActivity) progress(def *model.MissionDefinition, agg *model.LogAggregate) Outcome {
	var v float64
	for _, id := range uniqueIDs(def.RequiredActivityIDs) {
		v += agg.ByActivity[id].InputValue
	}
	return Outcome{Value: v, Complete: v >= def.TargetValue}
}
func (specificActivity) minWindowDays() int { return 1 }
func (specificActivity) capped() bool       { return false }
func (specificActivity) unit() string       { return "units" }

type activityCount struct {
	positive Range
}

func (s activityCount) progress(def *model.MissionDefinition, agg *model.LogAggregate) Outcome {
	var n int64
	for id, totals := range agg.ByActivity {
		if s.positive.Contains(id) {
			n += totals.Count
		}
	}
	v := float64(n)
	return Outcome{Value: v, Complete: v >= def.TargetValue}
}
func (activityCount) minWindowDays() int { return 1 }
func (activityCount) capped() bool       { return false }
func (activityCount) unit() string       { return "activities" }

type consecutiveDays struct{}

func (consecutiveDays) progress(def *model.MissionDefinition, agg *model.LogAggregate) Outcome {
	v := float64(ConsecutiveRun(agg.Days, def.DurationDays))
	return Outcome{Value: v, Complete: v >= def.TargetValue}
}
func (consecutiveDays) minWindowDays() int { return 2 }
func (consecutiveDays) capped() bool       { return false }
func (consecutiveDays) unit() string       { return "days in a row" }

type totalDistance struct {
	transport Range
}

func (s totalDistance) progress(def *model.MissionDefinition, agg *model.LogAggregate) Outcome {
	var v float64
	for id, totals := range agg.ByActivity {
		if s.transport.Contains(id) {
			v += totals.InputValue
		}
	}
	return Outcome{Value: v, Complete: v >= def.TargetValue}
}
func (totalDistance) minWindowDays() int { return 1 }
func (totalDistance) capped() bool       { return false }
func (totalDistance) unit() string       { return "km" }

// ConsecutiveRun walks the dates with positive carbon saved from the most
// recent backwards and counts the contiguous run of one-day steps. A
// positive limit caps the run.
func ConsecutiveRun(days []model.DayTotal, limit int) int {
	seen := make(map[string]struct{}, len(days))
	dates := make([]time.Time, 0, len(days))
	for _, d := range days {
		if d.CarbonSaved <= 0 {
			continue
		}
		if _, ok := seen[d.Date]; ok {
			continue
		}
		t, err := time.Parse(model.DateLayout, d.Date)
		if err != nil {
			continue
		}
		seen[d.Date] = struct{}{}
		dates = append(dates, t)
	}
	if len(dates) == 0 {
		return 0
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })

	run := 1
	for i := 1; i < len(dates); i++ {
		if limit > 0 && run >= limit {
			break
		}
		if !dates[i].AddDate(0, 0, 1).Equal(dates[i-1]) {
			break
		}
		run++
	}
	if limit > 0 && run > limit {
		run = limit
	}
	return run
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
