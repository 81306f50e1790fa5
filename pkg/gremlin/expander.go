package gremlin

import (
	"fmt"

	"github.com/gremlinsdk/harness/pkg/rule"
	"github.com/gremlinsdk/harness/pkg/topology"
)

// faultKind names one of the three independent fault blocks a rule carries.
type faultKind string

const (
	faultDelay  faultKind = "delay"
	faultMangle faultKind = "mangle"
	faultAbort  faultKind = "abort"
)

const defaultDistribution = rule.Uniform

// generateParams carries the fully-defaulted arguments for one call into
// generate, mirroring the original SDK's args dict after every default has
// been filled in exactly once by the scenario-specific wrapper.
type generateParams struct {
	source, dest               string
	messageType                rule.MessageType
	headerPattern, bodyPattern string

	delay  rule.Delay
	mangle rule.Mangle
	abort  rule.Abort
}

// Expander turns a Scenario into the concrete Rules it describes.
type Expander struct {
	topo *topology.Topology
}

// NewExpander builds an Expander bound to a topology.
func NewExpander(topo *topology.Topology) *Expander {
	return &Expander{topo: topo}
}

// Expand dispatches on the concrete scenario type and returns the rules it
// expands to, in topology declaration order.
func (e *Expander) Expand(s Scenario) ([]rule.Rule, error) {
	switch v := s.(type) {
	case AbortRequests:
		return e.generate([]faultKind{faultAbort}, generateParams{
			source: v.Source, dest: v.Dest, messageType: rule.Request,
			headerPattern: v.HeaderPattern, bodyPattern: v.BodyPattern,
			abort: rule.Abort{Probability: v.Probability, Distribution: orDefault(v.Distribution), ErrorCode: orDefaultInt(v.ErrorCode, rule.ResetConnection)},
		})
	case AbortResponses:
		return e.generate([]faultKind{faultAbort}, generateParams{
			source: v.Source, dest: v.Dest, messageType: rule.Response,
			headerPattern: v.HeaderPattern, bodyPattern: v.BodyPattern,
			abort: rule.Abort{Probability: v.Probability, Distribution: orDefault(v.Distribution), ErrorCode: orDefaultInt(v.ErrorCode, rule.ResetConnection)},
		})
	case DelayRequests:
		return e.generate([]faultKind{faultDelay}, generateParams{
			source: v.Source, dest: v.Dest, messageType: rule.Request,
			headerPattern: v.HeaderPattern, bodyPattern: v.BodyPattern,
			delay: rule.Delay{Probability: v.Probability, Distribution: orDefault(v.Distribution), Duration: orDefaultStr(v.Duration, "0s")},
		})
	case DelayResponses:
		return e.generate([]faultKind{faultDelay}, generateParams{
			source: v.Source, dest: v.Dest, messageType: rule.Response,
			headerPattern: v.HeaderPattern, bodyPattern: v.BodyPattern,
			delay: rule.Delay{Probability: v.Probability, Distribution: orDefault(v.Distribution), Duration: orDefaultStr(v.Duration, "0s")},
		})
	case OverloadService:
		return e.generate([]faultKind{faultDelay, faultAbort}, generateParams{
			dest: v.Dest, messageType: rule.Request,
			headerPattern: v.HeaderPattern, bodyPattern: v.BodyPattern,
			delay: rule.Delay{
				Probability:  orDefaultFloat(v.DelayProbability, 0.5),
				Distribution: orDefault(v.DelayDistribution),
				Duration:     orDefaultStrPtr(v.DelayDuration, "10s"),
			},
			abort: rule.Abort{
				Probability:  orDefaultFloat(v.AbortProbability, 0.5),
				Distribution: orDefault(v.AbortDistribution),
				ErrorCode:    orDefaultInt(v.ErrorCode, 503),
			},
		})
	case PartitionServices:
		return e.expandPartition(v)
	case CrashService:
		return e.generate([]faultKind{faultAbort}, generateParams{
			dest: v.Dest, messageType: rule.Request,
			headerPattern: v.HeaderPattern, bodyPattern: v.BodyPattern,
			abort: rule.Abort{
				Probability:  orDefaultFloat(v.Probability, 1),
				Distribution: defaultDistribution,
				ErrorCode:    orDefaultInt(v.ErrorCode, rule.ResetConnection),
			},
		})
	default:
		return nil, fmt.Errorf("gremlin: unknown scenario type %T", s)
	}
}

// expandPartition requires Dest to be a direct dependency of Source and
// emits two abort-request expansions, one per direction, using the
// respectively-named probabilities (spec §9 open question (a): both
// probabilities are read before either direction is expanded, so there is
// no mutation-order hazard).
func (e *Expander) expandPartition(v PartitionServices) ([]rule.Rule, error) {
	deps := e.topo.Dependencies(v.Source)
	found := false
	for _, d := range deps {
		if d == v.Dest {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("gremlin: partition_services requires dest %q to be a dependency of source %q", v.Dest, v.Source)
	}

	srcProb := orDefaultFloat(v.SrcProbability, 1)
	dstProb := orDefaultFloat(v.DstProbability, 1)
	errorCode := orDefaultInt(v.ErrorCode, rule.ResetConnection)

	forward, err := e.generate([]faultKind{faultAbort}, generateParams{
		source: v.Source, dest: v.Dest, messageType: rule.Request,
		headerPattern: v.HeaderPattern, bodyPattern: v.BodyPattern,
		abort: rule.Abort{Probability: srcProb, Distribution: defaultDistribution, ErrorCode: errorCode},
	})
	if err != nil {
		return nil, err
	}

	backward, err := e.generate([]faultKind{faultAbort}, generateParams{
		source: v.Dest, dest: v.Source, messageType: rule.Request,
		headerPattern: v.HeaderPattern, bodyPattern: v.BodyPattern,
		abort: rule.Abort{Probability: dstProb, Distribution: defaultDistribution, ErrorCode: errorCode},
	})
	if err != nil {
		return nil, err
	}

	return append(forward, backward...), nil
}

// generate is the sole procedure every scenario funnels through (spec
// §4.2): resolve (source,dest) wildcards against the topology, validate,
// and emit one Rule per resolved (s,d) pair.
func (e *Expander) generate(rtypes []faultKind, p generateParams) ([]rule.Rule, error) {
	sources, dests, err := e.resolve(p.source, p.dest)
	if err != nil {
		return nil, err
	}

	switch p.messageType {
	case rule.Request, rule.Response, rule.Publish, rule.Subscribe:
	default:
		return nil, fmt.Errorf("gremlin: invalid messagetype %q", p.messageType)
	}

	if len(rtypes) == 0 {
		return nil, fmt.Errorf("gremlin: no fault types requested")
	}

	var rules []rule.Rule
	for _, s := range sources {
		for _, d := range dests {
			r, err := rule.New(s, d, p.messageType, p.headerPattern, p.bodyPattern, p.delay, p.mangle, p.abort)
			if err != nil {
				return nil, err
			}
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// resolve implements spec §4.2 step 1: both endpoints present resolves to a
// singleton product, only one valid endpoint resolves the other side via
// adjacency, and neither valid is rejected.
func (e *Expander) resolve(source, dest string) (sources, dests []string, err error) {
	sourceOK := source != "" && e.topo.Has(source)
	destOK := dest != "" && e.topo.Has(dest)

	switch {
	case sourceOK && destOK:
		return []string{source}, []string{dest}, nil
	case sourceOK:
		return []string{source}, e.topo.Dependencies(source), nil
	case destOK:
		return e.topo.Dependents(dest), []string{dest}, nil
	default:
		return nil, nil, fmt.Errorf("gremlin: neither source %q nor dest %q resolve to a declared service", source, dest)
	}
}

func orDefault(d rule.Distribution) rule.Distribution {
	if d == "" {
		return defaultDistribution
	}
	return d
}

func orDefaultInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func orDefaultFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func orDefaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orDefaultStrPtr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}
