// Package gremlin turns a high-level, possibly under-specified scenario
// ("crash service X") into concrete per-edge fault rules, resolving
// wildcards against a topology.Topology. Every scenario kind is an explicit
// tagged record (spec §9: "dynamic keyword arguments become explicit tagged
// records") dispatched through a single shared expansion procedure.
package gremlin

import "github.com/gremlinsdk/harness/pkg/rule"

// Scenario is implemented by every concrete scenario kind below. The marker
// method keeps dispatch exhaustive and compile-time checked rather than
// routed through a name->handler map, per spec §9's "function dictionaries
// are replaced by exhaustive variant dispatch."
type Scenario interface {
	scenarioKind() string
}

// AbortRequests injects request aborts on the resolved edges.
type AbortRequests struct {
	Source, Dest               string
	HeaderPattern, BodyPattern string
	Probability                float64
	Distribution               rule.Distribution // default: Uniform
	ErrorCode                  *int               // default: rule.ResetConnection
}

func (AbortRequests) scenarioKind() string { return "abort_requests" }

// AbortResponses injects response aborts on the resolved edges.
type AbortResponses struct {
	Source, Dest               string
	HeaderPattern, BodyPattern string
	Probability                float64
	Distribution               rule.Distribution
	ErrorCode                  *int
}

func (AbortResponses) scenarioKind() string { return "abort_responses" }

// DelayRequests injects request latency on the resolved edges.
type DelayRequests struct {
	Source, Dest               string
	HeaderPattern, BodyPattern string
	Probability                float64
	Distribution               rule.Distribution
	Duration                   string
}

func (DelayRequests) scenarioKind() string { return "delay_requests" }

// DelayResponses injects response latency on the resolved edges.
type DelayResponses struct {
	Source, Dest               string
	HeaderPattern, BodyPattern string
	Probability                float64
	Distribution               rule.Distribution
	Duration                   string
}

func (DelayResponses) scenarioKind() string { return "delay_responses" }

// OverloadService gives the impression of an overloaded dependency: half
// its callers' requests are delayed, half are aborted, by default.
type OverloadService struct {
	Dest                       string // required
	HeaderPattern, BodyPattern string
	DelayProbability           *float64          // default 0.5
	DelayDistribution          rule.Distribution // default Uniform
	DelayDuration              *string           // default "10s"
	AbortProbability           *float64          // default 0.5
	AbortDistribution          rule.Distribution // default Uniform
	ErrorCode                  *int              // default 503
}

func (OverloadService) scenarioKind() string { return "overload_service" }

// PartitionServices severs the connection between two directly-dependent
// services. SrcProbability governs the source->dest direction and
// DstProbability governs dest->source, both read against their originally
// named direction (spec §9 open question (a)).
type PartitionServices struct {
	Source, Dest               string // required; Dest must be in Dependencies(Source)
	HeaderPattern, BodyPattern string
	SrcProbability             *float64 // default 1
	DstProbability             *float64 // default 1
	ErrorCode                  *int     // default rule.ResetConnection
}

func (PartitionServices) scenarioKind() string { return "partition_services" }

// CrashService makes Dest wholly unavailable to every service that depends
// on it.
type CrashService struct {
	Dest                       string // required
	HeaderPattern, BodyPattern string
	Probability                *float64 // default 1
	ErrorCode                  *int     // default rule.ResetConnection
}

func (CrashService) scenarioKind() string { return "crash_service" }
