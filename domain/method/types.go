package method

import (
	"fmt"
	"strings"
	"time"
)

// Category groups methods by estimation family
type Category string

const (
	CategoryPanel      Category = "panel"
	CategoryTimeSeries Category = "time_series"
	CategorySurvival   Category = "survival"
	CategoryCausal     Category = "causal"
	CategoryBayesian   Category = "bayesian"
	CategoryStateSpace Category = "state_space"
)

// CostTier is an ordinal computational cost class
type CostTier int

const (
	TierClosedForm CostTier = iota + 1
	TierIterative
	TierSimulation
)

func (t CostTier) String() string {
	switch t {
	case TierClosedForm:
		return "closed_form"
	case TierIterative:
		return "iterative"
	case TierSimulation:
		return "simulation"
	default:
		return fmt.Sprintf("tier_%d", int(t))
	}
}

// ParseCostTier maps a tier name to its ordinal
func ParseCostTier(s string) (CostTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "closed_form", "closed-form", "1":
		return TierClosedForm, nil
	case "iterative", "2":
		return TierIterative, nil
	case "simulation", "mcmc", "3":
		return TierSimulation, nil
	}
	return 0, fmt.Errorf("unknown cost tier %q", s)
}

// Weight returns the capacity units a fit of this tier holds while running
func (t CostTier) Weight() int64 {
	switch t {
	case TierClosedForm:
		return 1
	case TierIterative:
		return 2
	case TierSimulation:
		return 4
	default:
		return 1
	}
}

// Params are caller-supplied estimation parameters
type Params map[string]interface{}

// Clone returns a shallow copy
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge returns p overlaid with other
func (p Params) Merge(other Params) Params {
	out := p.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Int reads an integer parameter, accepting JSON numbers
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return def
}

// Float reads a float parameter
func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// Duration reads a duration parameter given as a Go duration string or seconds
func (p Params) Duration(key string, def time.Duration) time.Duration {
	switch v := p[key].(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case float64:
		return time.Duration(v * float64(time.Second))
	case int:
		return time.Duration(v) * time.Second
	}
	return def
}

// NativeResult is whatever an adapter's Fit returns; opaque to the engine
type NativeResult interface{}

// Convention states how a native library orients information criteria
type Convention string

const (
	LowerIsBetter  Convention = "lower_is_better"
	HigherIsBetter Convention = "higher_is_better"
)

// Metrics are the diagnostics an adapter extracts from its native result.
// Nil pointers mean the family has no such concept.
type Metrics struct {
	AIC           *float64
	BIC           *float64
	LogLikelihood *float64
	RSquared      *float64
	NObs          int
	Params        map[string]float64
	Convention    Convention
	Warnings      []string
}

// Float returns a pointer to v, for populating optional metrics
func Float(v float64) *float64 {
	return &v
}
