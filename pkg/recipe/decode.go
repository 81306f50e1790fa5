package recipe

import (
	"encoding/json"
	"fmt"

	"github.com/gremlinsdk/harness/pkg/checker"
	"github.com/gremlinsdk/harness/pkg/gremlin"
	"github.com/gremlinsdk/harness/pkg/rule"
)

// gremlinWire is every field any gremlin scenario entry can carry; each
// scenario's "scenario" discriminator decides which subset is read. This
// keeps gremlin.Scenario's Go types clean of JSON tags while still letting
// the recipe document use the original flat field names from spec §6.
type gremlinWire struct {
	Scenario string `json:"scenario"`

	Source string `json:"source"`
	Dest   string `json:"dest"`

	HeaderPattern string `json:"headerpattern"`
	BodyPattern   string `json:"bodypattern"`

	Probability  *float64          `json:"probability"`
	Distribution rule.Distribution `json:"distribution"`
	Duration     string            `json:"duration"`
	ErrorCode    *int              `json:"errorcode"`

	DelayProbability  *float64          `json:"delayprobability"`
	DelayDistribution rule.Distribution `json:"delaydistribution"`
	DelayDuration     *string           `json:"delayduration"`
	AbortProbability  *float64          `json:"abortprobability"`
	AbortDistribution rule.Distribution `json:"abortdistribution"`

	SrcProbability *float64 `json:"srcprobability"`
	DstProbability *float64 `json:"dstprobability"`
}

// decodeScenario turns one JSON gremlins[] entry into a concrete
// gremlin.Scenario, selected by its "scenario" discriminator field.
func decodeScenario(raw json.RawMessage) (gremlin.Scenario, error) {
	var w gremlinWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("recipe: decode gremlin entry: %w", err)
	}

	switch w.Scenario {
	case "abort_requests":
		return gremlin.AbortRequests{
			Source: w.Source, Dest: w.Dest,
			HeaderPattern: w.HeaderPattern, BodyPattern: w.BodyPattern,
			Probability: deref(w.Probability), Distribution: w.Distribution, ErrorCode: w.ErrorCode,
		}, nil
	case "abort_responses":
		return gremlin.AbortResponses{
			Source: w.Source, Dest: w.Dest,
			HeaderPattern: w.HeaderPattern, BodyPattern: w.BodyPattern,
			Probability: deref(w.Probability), Distribution: w.Distribution, ErrorCode: w.ErrorCode,
		}, nil
	case "delay_requests":
		return gremlin.DelayRequests{
			Source: w.Source, Dest: w.Dest,
			HeaderPattern: w.HeaderPattern, BodyPattern: w.BodyPattern,
			Probability: deref(w.Probability), Distribution: w.Distribution, Duration: w.Duration,
		}, nil
	case "delay_responses":
		return gremlin.DelayResponses{
			Source: w.Source, Dest: w.Dest,
			HeaderPattern: w.HeaderPattern, BodyPattern: w.BodyPattern,
			Probability: deref(w.Probability), Distribution: w.Distribution, Duration: w.Duration,
		}, nil
	case "overload_service":
		return gremlin.OverloadService{
			Dest:              w.Dest,
			HeaderPattern:     w.HeaderPattern,
			BodyPattern:       w.BodyPattern,
			DelayProbability:  w.DelayProbability,
			DelayDistribution: w.DelayDistribution,
			DelayDuration:     w.DelayDuration,
			AbortProbability:  w.AbortProbability,
			AbortDistribution: w.AbortDistribution,
			ErrorCode:         w.ErrorCode,
		}, nil
	case "partition_services":
		return gremlin.PartitionServices{
			Source: w.Source, Dest: w.Dest,
			HeaderPattern: w.HeaderPattern, BodyPattern: w.BodyPattern,
			SrcProbability: w.SrcProbability, DstProbability: w.DstProbability, ErrorCode: w.ErrorCode,
		}, nil
	case "crash_service":
		return gremlin.CrashService{
			Dest:          w.Dest,
			HeaderPattern: w.HeaderPattern, BodyPattern: w.BodyPattern,
			Probability: w.Probability, ErrorCode: w.ErrorCode,
		}, nil
	default:
		return nil, fmt.Errorf("recipe: unknown scenario %q", w.Scenario)
	}
}

// deref reads a possibly-absent wire float as its zero value, for the
// scenario kinds whose Probability is a required, non-optional field.
func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// checkWire is every field any checklist entry can carry; "name" selects
// which subset is read.
type checkWire struct {
	Name string `json:"name"`

	Source string `json:"source"`
	Dest   string `json:"dest"`

	ReqID  string `json:"req_id"`
	Status int    `json:"status"`

	MaxLatency string `json:"max_latency"`

	NumRequests int `json:"num_requests"`

	Retries  int     `json:"retries"`
	WaitTime *string `json:"wait_time"`
	ErrDelta string  `json:"errdelta"`
	ByURI    bool    `json:"by_uri"`

	ClosedAttempts   int    `json:"closed_attempts"`
	ResetTime        string `json:"reset_time"`
	HeaderPrefix     string `json:"headerprefix"`
	HalfOpenAttempts int    `json:"halfopen_attempts"`
	RemoveRetries    bool   `json:"remove_retries"`
}

// decodeCheck turns one JSON checks[] entry into a concrete checker.Check,
// selected by its "name" discriminator field.
func decodeCheck(raw json.RawMessage) (checker.Check, error) {
	var w checkWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("recipe: decode check entry: %w", err)
	}

	switch w.Name {
	case "no_proxy_errors":
		return checker.NoProxyErrors{}, nil
	case "http_success_status":
		return checker.HTTPSuccessStatus{}, nil
	case "http_status":
		return checker.HTTPStatus{Source: w.Source, Dest: w.Dest, ReqID: w.ReqID, Status: w.Status}, nil
	case "bounded_response_time":
		return checker.BoundedResponseTime{Source: w.Source, Dest: w.Dest, MaxLatency: w.MaxLatency}, nil
	case "at_most_requests":
		return checker.AtMostRequests{Source: w.Source, Dest: w.Dest, NumRequests: w.NumRequests}, nil
	case "bounded_retries":
		c := checker.BoundedRetries{Source: w.Source, Dest: w.Dest, Retries: w.Retries, WaitTime: w.WaitTime, ByURI: w.ByURI}
		if w.ErrDelta != "" {
			d, err := rule.ParseDuration(w.ErrDelta)
			if err != nil {
				return nil, fmt.Errorf("recipe: bounded_retries errdelta: %w", err)
			}
			c.ErrDelta = d
		}
		return c, nil
	case "circuit_breaker":
		return checker.CircuitBreaker{
			Source: w.Source, Dest: w.Dest,
			ClosedAttempts: w.ClosedAttempts, ResetTime: w.ResetTime, HeaderPrefix: w.HeaderPrefix,
			HalfOpenAttempts: w.HalfOpenAttempts, RemoveRetries: w.RemoveRetries,
		}, nil
	default:
		return nil, fmt.Errorf("recipe: unknown check %q", w.Name)
	}
}
