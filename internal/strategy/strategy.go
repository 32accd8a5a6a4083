// Package strategy defines the signal-generation contract used by the
// backtest engine and a registry of concrete strategy implementations.
//
// A strategy is a pure function: given the same price windows, parameters and
// portfolio snapshot it must return the same signal set, so runs are
// reproducible. Strategies never touch portfolio state; the simulator owns
// that exclusively.
package strategy

import (
	"fmt"
	"sort"

	"sapas/internal/dto"
)

// Window is the per-instrument lookback of bars ending at the evaluation day,
// ascending by date.
type Window map[string][]dto.PriceBar

// EvalContext bundles the inputs for one day's signal evaluation.
type EvalContext struct {
	Window    Window
	Params    map[string]float64
	Portfolio dto.PortfolioSnapshot
}

// SellSignal names an instrument to exit and why.
type SellSignal struct {
	Code   string
	Reason string
}

// SignalSet is the outcome of one evaluation; anything not listed is a hold.
// Both slices are sorted lexicographically by code so capital allocation ties
// resolve deterministically.
type SignalSet struct {
	Buys  []string
	Sells []SellSignal
}

// Sort orders both signal lists lexicographically by code.
func (s *SignalSet) Sort() {
	sort.Strings(s.Buys)
	sort.Slice(s.Sells, func(i, j int) bool { return s.Sells[i].Code < s.Sells[j].Code })
}

// ParamSpec declares one tunable parameter with its bounds and default.
type ParamSpec struct {
	Name        string
	DisplayName string
	Default     float64
	Min         float64
	Max         float64
}

// SignalGenerator is the contract every strategy variant implements.
type SignalGenerator interface {
	Name() string
	Info() dto.StrategyInfo
	Params() []ParamSpec
	Evaluate(ec EvalContext) SignalSet
}

// Registry holds the available strategies, keyed by name. It replaces the
// process-wide factory the engine used to depend on: the owner constructs one
// registry and passes it to whoever needs lookups.
type Registry struct {
	strategies map[string]SignalGenerator
}

func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]SignalGenerator)}
}

// NewDefaultRegistry returns a registry with all built-in strategies.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewRSIMACDStrategy())
	r.Register(NewSMACrossStrategy())
	r.Register(NewMomentumStrategy())
	return r
}

func (r *Registry) Register(s SignalGenerator) {
	r.strategies[s.Name()] = s
}

func (r *Registry) Get(name string) (SignalGenerator, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns strategy catalog entries sorted by name.
func (r *Registry) List() []dto.StrategyInfo {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)

	infos := make([]dto.StrategyInfo, 0, len(names))
	for _, name := range names {
		infos = append(infos, r.strategies[name].Info())
	}
	return infos
}

// ResolveParams validates user-supplied parameters against the strategy's
// declared specs and fills in defaults. Unknown parameter names and
// out-of-range values are rejected.
func ResolveParams(s SignalGenerator, params map[string]float64) (map[string]float64, error) {
	specs := s.Params()
	known := make(map[string]ParamSpec, len(specs))
	resolved := make(map[string]float64, len(specs))
	for _, spec := range specs {
		known[spec.Name] = spec
		resolved[spec.Name] = spec.Default
	}

	for name, value := range params {
		spec, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("unknown parameter %q for strategy %q", name, s.Name())
		}
		if value < spec.Min || value > spec.Max {
			return nil, fmt.Errorf("parameter %q out of range [%v, %v]: %v", name, spec.Min, spec.Max, value)
		}
		resolved[name] = value
	}
	return resolved, nil
}

func paramInfos(specs []ParamSpec) []dto.StrategyParamInfo {
	infos := make([]dto.StrategyParamInfo, 0, len(specs))
	for _, spec := range specs {
		infos = append(infos, dto.StrategyParamInfo{
			Name:        spec.Name,
			DisplayName: spec.DisplayName,
			Default:     spec.Default,
			Min:         spec.Min,
			Max:         spec.Max,
		})
	}
	return infos
}

// closes extracts the close series from a bar window.
func closes(bars []dto.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
