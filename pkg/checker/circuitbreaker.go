package checker

import (
	"context"
	"fmt"
	"sort"

	"github.com/sony/gobreaker"

	"github.com/gremlinsdk/harness/pkg/logquery"
	"github.com/gremlinsdk/harness/pkg/rule"
)

// containsAbort reports whether a Request's injected actions include an
// abort, the only Request-side trigger that can move a half-open breaker
// back to open.
func containsAbort(actions []string) bool {
	for _, a := range actions {
		if a == "abort" {
			return true
		}
	}
	return false
}

// collapseRetries keeps only the last event for each run of consecutive
// same-reqID events, used when RemoveRetries folds retried attempts into
// their final outcome before replay.
func collapseRetries(events []logquery.LogEvent) []logquery.LogEvent {
	if len(events) == 0 {
		return events
	}
	collapsed := make([]logquery.LogEvent, 0, len(events))
	i := 0
	for i < len(events) {
		j := i
		for j+1 < len(events) && events[j+1].ReqID == events[i].ReqID {
			j++
		}
		collapsed = append(collapsed, events[j])
		i = j + 1
	}
	return collapsed
}

func (ch *Checker) runCircuitBreaker(ctx context.Context, c CircuitBreaker) (Result, error) {
	q := ch.scopedQuery().Term("source", c.Source).Term("dest", c.Dest).Prefix("reqID", c.HeaderPrefix)
	res, err := ch.store.Search(ctx, q)
	if err != nil {
		return Result{}, err
	}
	if r, empty := noEvents(res.Events); empty {
		return r, nil
	}

	resetTime, err := rule.ParseDuration(c.ResetTime)
	if err != nil {
		return Result{}, fmt.Errorf("checker: circuit_breaker: %w", err)
	}
	halfOpenAttempts := c.HalfOpenAttempts
	if halfOpenAttempts == 0 {
		halfOpenAttempts = 1
	}

	events := make([]logquery.LogEvent, len(res.Events))
	copy(events, res.Events)
	sort.SliceStable(events, func(i, j int) bool { return events[i].TS.Before(events[j].TS) })

	if c.RemoveRetries {
		events = collapseRetries(events)
	}

	state := gobreaker.StateClosed
	var failures, successes int
	var openTS logquery.LogEvent // zero value until first trip; TS field used

	for _, e := range events {
		switch state {
		case gobreaker.StateClosed:
			if (e.IsResponse() && e.Status != 200) || (e.IsRequest() && len(e.Actions) > 0) {
				failures++
				if failures > c.ClosedAttempts {
					state = gobreaker.StateOpen
					openTS = e
					successes = 0
				}
			}

		case gobreaker.StateOpen:
			if e.IsRequest() {
				if e.TS.Sub(openTS.TS) < resetTime {
					return Result{
						Success: false,
						Info:    fmt.Sprintf("reqID %s issued before reset timer expired (%s since open)", e.ReqID, e.TS.Sub(openTS.TS)),
					}, nil
				}
				state = gobreaker.StateHalfOpen
				failures = 0
			}

		case gobreaker.StateHalfOpen:
			if e.IsResponse() {
				if e.Status == 200 {
					successes++
					if successes > halfOpenAttempts {
						state = gobreaker.StateClosed
					}
				} else {
					state = gobreaker.StateOpen
					openTS = e
					successes = 0
				}
			} else if e.IsRequest() && containsAbort(e.Actions) {
				state = gobreaker.StateOpen
				openTS = e
				successes = 0
			}
		}
	}

	return Result{Success: true, Info: fmt.Sprintf("replayed %d events, breaker ended in state %s", len(events), state)}, nil
}
