// Package rule defines the concrete per-edge fault specification that flows
// from the scenario expander to the proxy control plane, plus the duration
// grammar that specification embeds.
package rule

import (
	"encoding/json"
	"fmt"
)

// MessageType selects which leg of a call a Rule targets.
type MessageType string

const (
	Request   MessageType = "request"
	Response  MessageType = "response"
	Publish   MessageType = "publish"
	Subscribe MessageType = "subscribe"
)

// Distribution is the probability distribution a fault's trigger is sampled
// from on the proxy side.
type Distribution string

const (
	Uniform     Distribution = "uniform"
	Exponential Distribution = "exponential"
	Normal      Distribution = "normal"
)

// ResetConnection is the sentinel abort.errorcode meaning "reset the
// transport connection" rather than return an HTTP status.
const ResetConnection = -1

// Delay describes latency injection.
type Delay struct {
	Probability  float64      `json:"delayprobability"`
	Distribution Distribution `json:"delaydistribution"`
	Duration     string       `json:"delaytime"`
}

// Mangle describes payload corruption.
type Mangle struct {
	Probability  float64      `json:"mangleprobability"`
	Distribution Distribution `json:"mangledistribution"`
	Search       string       `json:"searchstring"`
	Replace      string       `json:"replacestring"`
}

// Abort describes request/response abortion.
type Abort struct {
	Probability  float64      `json:"abortprobability"`
	Distribution Distribution `json:"abortdistribution"`
	ErrorCode    int          `json:"errorcode"`
}

// Rule is the plain, wire-exact fault specification for one (source, dest)
// edge. Field names and JSON tags mirror the 15 proxy-contract fields in
// spec §3/§6 exactly; the proxy contract is bit-exact so no field is
// omitted, even at its zero value.
type Rule struct {
	Source        string      `json:"source"`
	Dest          string      `json:"dest"`
	MessageType   MessageType `json:"messagetype"`
	HeaderPattern string      `json:"headerpattern"`
	BodyPattern   string      `json:"bodypattern"`

	Delay  Delay  `json:"-"`
	Mangle Mangle `json:"-"`
	Abort  Abort  `json:"-"`
}

// wireRule flattens Rule's three fault blocks into the proxy's flat JSON
// shape (the proxy contract has no nested objects — see spec §6).
type wireRule struct {
	Source        string      `json:"source"`
	Dest          string      `json:"dest"`
	MessageType   MessageType `json:"messagetype"`
	HeaderPattern string      `json:"headerpattern"`
	BodyPattern   string      `json:"bodypattern"`

	DelayProbability  float64      `json:"delayprobability"`
	DelayDistribution Distribution `json:"delaydistribution"`
	DelayTime         string       `json:"delaytime"`

	MangleProbability  float64      `json:"mangleprobability"`
	MangleDistribution Distribution `json:"mangledistribution"`
	SearchString       string       `json:"searchstring"`
	ReplaceString      string       `json:"replacestring"`

	AbortProbability  float64      `json:"abortprobability"`
	AbortDistribution Distribution `json:"abortdistribution"`
	ErrorCode         int          `json:"errorcode"`
}

// MarshalJSON emits the flat 15-field wire shape the proxy control plane
// expects (spec §6 "Rule serialized as JSON with exactly the field names in
// §3").
func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRule{
		Source:        r.Source,
		Dest:          r.Dest,
		MessageType:   r.MessageType,
		HeaderPattern: r.HeaderPattern,
		BodyPattern:   r.BodyPattern,

		DelayProbability:  r.Delay.Probability,
		DelayDistribution: r.Delay.Distribution,
		DelayTime:         r.Delay.Duration,

		MangleProbability:  r.Mangle.Probability,
		MangleDistribution: r.Mangle.Distribution,
		SearchString:       r.Mangle.Search,
		ReplaceString:      r.Mangle.Replace,

		AbortProbability:  r.Abort.Probability,
		AbortDistribution: r.Abort.Distribution,
		ErrorCode:         r.Abort.ErrorCode,
	})
}

// UnmarshalJSON accepts the flat wire shape and reassembles the three fault
// blocks, mirroring MarshalJSON's flattening in reverse (used by
// pkg/proxyclient when decoding ListRules responses, and in tests).
func (r *Rule) UnmarshalJSON(data []byte) error {
	var w wireRule
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.Source = w.Source
	r.Dest = w.Dest
	r.MessageType = w.MessageType
	r.HeaderPattern = w.HeaderPattern
	r.BodyPattern = w.BodyPattern
	r.Delay = Delay{Probability: w.DelayProbability, Distribution: w.DelayDistribution, Duration: w.DelayTime}
	r.Mangle = Mangle{Probability: w.MangleProbability, Distribution: w.MangleDistribution, Search: w.SearchString, Replace: w.ReplaceString}
	r.Abort = Abort{Probability: w.AbortProbability, Distribution: w.AbortDistribution, ErrorCode: w.ErrorCode}
	return nil
}

// New builds a Rule and validates it in one step, the single point spec §3
// calls for ("a Rule with all three probabilities zero is rejected at
// construction").
func New(source, dest string, msgType MessageType, headerPattern, bodyPattern string, delay Delay, mangle Mangle, abort Abort) (Rule, error) {
	r := Rule{
		Source:        source,
		Dest:          dest,
		MessageType:   msgType,
		HeaderPattern: headerPattern,
		BodyPattern:   bodyPattern,
		Delay:         delay,
		Mangle:        mangle,
		Abort:         abort,
	}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate enforces the two invariants a Rule must satisfy at construction:
// the three fault probabilities sum to at most 1, and at least one of them
// is positive (an all-zero-probability rule does nothing and is rejected).
func (r Rule) Validate() error {
	sum := r.Delay.Probability + r.Mangle.Probability + r.Abort.Probability
	if sum > 1.0 {
		return fmt.Errorf("rule: delay+mangle+abort probability %.4f exceeds 1.0 for %s->%s", sum, r.Source, r.Dest)
	}
	if r.Delay.Probability <= 0 && r.Mangle.Probability <= 0 && r.Abort.Probability <= 0 {
		return fmt.Errorf("rule: %s->%s has no positive fault probability", r.Source, r.Dest)
	}
	return nil
}
