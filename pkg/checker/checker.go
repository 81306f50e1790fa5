// Package checker replays log store events against an assertion and
// reports pass/fail, covering everything from "no proxy errors were
// logged" to a full circuit-breaker state-machine replay.
package checker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gremlinsdk/harness/pkg/logquery"
	"github.com/gremlinsdk/harness/pkg/rule"
	"github.com/gremlinsdk/harness/pkg/testid"
)

// Check is implemented by every concrete check kind, dispatched via type
// switch in Checker.Run rather than a name->handler map.
type Check interface {
	checkKind() string
}

// NoProxyErrors passes iff the log store recorded zero error-level events.
type NoProxyErrors struct{}

func (NoProxyErrors) checkKind() string { return "no_proxy_errors" }

// HTTPSuccessStatus passes iff every event carrying a status has status 200.
type HTTPSuccessStatus struct{}

func (HTTPSuccessStatus) checkKind() string { return "http_success_status" }

// HTTPStatus passes iff every Response on (Source,Dest) for ReqID equals Status.
type HTTPStatus struct {
	Source, Dest string
	ReqID        string
	Status       int
}

func (HTTPStatus) checkKind() string { return "http_status" }

// BoundedResponseTime passes iff no Response on (Source,Dest) exceeds
// MaxLatency, a pkg/rule duration string.
type BoundedResponseTime struct {
	Source, Dest string
	MaxLatency   string
}

func (BoundedResponseTime) checkKind() string { return "bounded_response_time" }

// AtMostRequests passes iff no reqID on (Source,Dest) was retried more than
// NumRequests times (NumRequests+1 total attempts allowed).
type AtMostRequests struct {
	Source, Dest string
	NumRequests  int
}

func (AtMostRequests) checkKind() string { return "at_most_requests" }

// BoundedRetries passes iff no reqID/uri bucket on (Source,Dest) was
// retried more than Retries times, and, when WaitTime is given, every
// consecutive retry gap in a bucket is within ErrDelta of WaitTime.
type BoundedRetries struct {
	Source, Dest string
	Retries      int
	WaitTime     *string
	ErrDelta     time.Duration // default 10ms
	ByURI        bool
}

func (BoundedRetries) checkKind() string { return "bounded_retries" }

// CircuitBreaker replays the three-state breaker state machine over the
// sorted event sequence for (Source,Dest) whose reqID starts with
// HeaderPrefix, and passes iff the open-state violation never fires.
type CircuitBreaker struct {
	Source, Dest     string
	ClosedAttempts   int
	ResetTime        string
	HeaderPrefix     string
	HalfOpenAttempts int // default 1
	RemoveRetries    bool
}

func (CircuitBreaker) checkKind() string { return "circuit_breaker" }

// Result is one check's outcome.
type Result struct {
	Success bool
	Info    string
}

// Checker runs checks against a single log store, scoped to one test run.
type Checker struct {
	store  *logquery.StoreClient
	testID testid.TestId
}

// New builds a Checker against store, scoping every query to testID.
func New(store *logquery.StoreClient, testID testid.TestId) *Checker {
	return &Checker{store: store, testID: testID}
}

// Run dispatches c to its concrete check algorithm and returns its Result.
func (ch *Checker) Run(ctx context.Context, c Check) (Result, error) {
	switch v := c.(type) {
	case NoProxyErrors:
		return ch.runNoProxyErrors(ctx)
	case HTTPSuccessStatus:
		return ch.runHTTPSuccessStatus(ctx)
	case HTTPStatus:
		return ch.runHTTPStatus(ctx, v)
	case BoundedResponseTime:
		return ch.runBoundedResponseTime(ctx, v)
	case AtMostRequests:
		return ch.runAtMostRequests(ctx, v)
	case BoundedRetries:
		return ch.runBoundedRetries(ctx, v)
	case CircuitBreaker:
		return ch.runCircuitBreaker(ctx, v)
	default:
		return Result{}, fmt.Errorf("checker: unknown check type %T", c)
	}
}

func (ch *Checker) scopedQuery() *logquery.Query {
	return logquery.New().Term("testid", ch.testID.String())
}

// noEvents is the shared preamble every check except NoProxyErrors runs: an
// empty hit set is a failure reporting "No log entries found", never a
// harness error. NoProxyErrors treats an empty hit set as its pass case.
func noEvents(events []logquery.LogEvent) (Result, bool) {
	if len(events) == 0 {
		return Result{Success: false, Info: "No log entries found"}, true
	}
	return Result{}, false
}

func (ch *Checker) runNoProxyErrors(ctx context.Context) (Result, error) {
	q := ch.scopedQuery().Term("level", "error")
	res, err := ch.store.Search(ctx, q)
	if err != nil {
		return Result{}, err
	}
	if len(res.Events) == 0 {
		return Result{Success: true, Info: "no error-level events"}, nil
	}
	return Result{Success: false, Info: fmt.Sprintf("%d error-level events found", len(res.Events))}, nil
}

func (ch *Checker) runHTTPSuccessStatus(ctx context.Context) (Result, error) {
	q := ch.scopedQuery().Exists("status")
	res, err := ch.store.Search(ctx, q)
	if err != nil {
		return Result{}, err
	}
	if r, empty := noEvents(res.Events); empty {
		return r, nil
	}
	for _, e := range res.Events {
		if e.Status != 200 {
			return Result{Success: false, Info: fmt.Sprintf("reqID %s had status %d", e.ReqID, e.Status)}, nil
		}
	}
	return Result{Success: true, Info: fmt.Sprintf("%d events all status 200", len(res.Events))}, nil
}

func (ch *Checker) runHTTPStatus(ctx context.Context, c HTTPStatus) (Result, error) {
	q := ch.scopedQuery().Term("source", c.Source).Term("dest", c.Dest).Term("reqID", c.ReqID).Term("msg", "Response")
	res, err := ch.store.Search(ctx, q)
	if err != nil {
		return Result{}, err
	}
	if r, empty := noEvents(res.Events); empty {
		return r, nil
	}
	for _, e := range res.Events {
		if e.Status != c.Status {
			return Result{Success: false, Info: fmt.Sprintf("reqID %s had status %d, expected %d", e.ReqID, e.Status, c.Status)}, nil
		}
	}
	return Result{Success: true, Info: fmt.Sprintf("all %d responses had status %d", len(res.Events), c.Status)}, nil
}

func (ch *Checker) runBoundedResponseTime(ctx context.Context, c BoundedResponseTime) (Result, error) {
	q := ch.scopedQuery().Term("source", c.Source).Term("dest", c.Dest).Term("msg", "Response")
	res, err := ch.store.Search(ctx, q)
	if err != nil {
		return Result{}, err
	}
	if r, empty := noEvents(res.Events); empty {
		return r, nil
	}

	max, err := rule.ParseDuration(c.MaxLatency)
	if err != nil {
		return Result{}, fmt.Errorf("checker: bounded_response_time: %w", err)
	}

	result := Result{Success: true, Info: fmt.Sprintf("all %d responses within %s", len(res.Events), c.MaxLatency)}
	for _, e := range res.Events {
		d, err := rule.ParseDuration(e.Duration)
		if err != nil {
			return Result{}, fmt.Errorf("checker: bounded_response_time: parse event duration %q: %w", e.Duration, err)
		}
		if d > max {
			// Keep scanning: the last overshoot in the sequence wins.
			result = Result{Success: false, Info: fmt.Sprintf("reqID %s took %s, exceeding %s", e.ReqID, e.Duration, c.MaxLatency)}
		}
	}
	return result, nil
}

func groupKey(e logquery.LogEvent, byURI bool) string {
	if byURI {
		return e.URI
	}
	return e.ReqID
}

func groupRequests(events []logquery.LogEvent, byURI bool) map[string][]logquery.LogEvent {
	groups := make(map[string][]logquery.LogEvent)
	for _, e := range events {
		if !e.IsRequest() {
			continue
		}
		k := groupKey(e, byURI)
		groups[k] = append(groups[k], e)
	}
	return groups
}

func (ch *Checker) runAtMostRequests(ctx context.Context, c AtMostRequests) (Result, error) {
	q := ch.scopedQuery().Term("source", c.Source).Term("dest", c.Dest).Term("msg", "Request")
	res, err := ch.store.Search(ctx, q)
	if err != nil {
		return Result{}, err
	}
	if r, empty := noEvents(res.Events); empty {
		return r, nil
	}

	groups := groupRequests(res.Events, false)
	limit := c.NumRequests + 1
	for reqID, bucket := range groups {
		if len(bucket) > limit {
			return Result{Success: false, Info: fmt.Sprintf("reqID %s made %d requests, exceeding limit %d", reqID, len(bucket), limit)}, nil
		}
	}
	return Result{Success: true, Info: fmt.Sprintf("%d reqID groups all within %d requests", len(groups), limit)}, nil
}

func (ch *Checker) runBoundedRetries(ctx context.Context, c BoundedRetries) (Result, error) {
	q := ch.scopedQuery().Term("source", c.Source).Term("dest", c.Dest).Term("msg", "Request")
	res, err := ch.store.Search(ctx, q)
	if err != nil {
		return Result{}, err
	}
	if r, empty := noEvents(res.Events); empty {
		return r, nil
	}

	groups := groupRequests(res.Events, c.ByURI)
	limit := c.Retries + 1
	for key, bucket := range groups {
		if len(bucket) > limit {
			return Result{Success: false, Info: fmt.Sprintf("%s retried %d times, exceeding limit %d", key, len(bucket)-1, c.Retries)}, nil
		}
	}

	if c.WaitTime == nil {
		return Result{Success: true, Info: fmt.Sprintf("%d groups all within %d retries", len(groups), c.Retries)}, nil
	}

	wait, err := rule.ParseDuration(*c.WaitTime)
	if err != nil {
		return Result{}, fmt.Errorf("checker: bounded_retries: %w", err)
	}
	errDelta := c.ErrDelta
	if errDelta == 0 {
		errDelta = 10 * time.Millisecond
	}

	for key, bucket := range groups {
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].TS.Before(bucket[j].TS) })
		for i := 1; i < len(bucket); i++ {
			gap := bucket[i].TS.Sub(bucket[i-1].TS)
			delta := gap - wait
			if delta < 0 {
				delta = -delta
			}
			if delta > errDelta {
				return Result{Success: false, Info: fmt.Sprintf("%s retry gap %s deviates from wait_time %s by more than %s", key, gap, wait, errDelta)}, nil
			}
		}
	}
	return Result{Success: true, Info: fmt.Sprintf("%d groups all within retry wait tolerance", len(groups))}, nil
}
