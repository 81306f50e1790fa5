// Package failuregen drives one test run's worth of fault rules onto every
// proxy in a topology: starting a test, queuing scenarios, and pushing the
// resulting rules in the ordering the harness guarantees.
package failuregen

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gremlinsdk/harness/pkg/gremlin"
	"github.com/gremlinsdk/harness/pkg/proxyclient"
	"github.com/gremlinsdk/harness/pkg/rule"
	"github.com/gremlinsdk/harness/pkg/telemetry"
	"github.com/gremlinsdk/harness/pkg/testid"
	"github.com/gremlinsdk/harness/pkg/topology"
)

// Generator ties a topology, its scenario expander, and one proxyclient per
// proxy endpoint together into the ordered sequence of control-plane calls
// one recipe run needs.
type Generator struct {
	topo        *topology.Topology
	expander    *gremlin.Expander
	clients     map[string]*proxyclient.Client
	log         *telemetry.Logger
	metrics     *telemetry.Metrics
	concurrency int

	testID testid.TestId
	queue  []rule.Rule
}

// New builds a Generator with one Client per distinct proxy endpoint named
// anywhere in the topology, each bound by proxyTimeout (0 falls back to
// proxyclient.DefaultTimeout). concurrencyLimit bounds ListRules's
// per-endpoint fan-out (0 or negative means unbounded).
func New(topo *topology.Topology, doc topology.Document, log *telemetry.Logger, metrics *telemetry.Metrics, proxyTimeout time.Duration, concurrencyLimit int) *Generator {
	clients := make(map[string]*proxyclient.Client)
	for _, svc := range doc.Services {
		for _, ep := range svc.ProxyEndpoints {
			if _, ok := clients[ep]; !ok {
				clients[ep] = proxyclient.New(ep, proxyTimeout)
			}
		}
	}
	return &Generator{
		topo:        topo,
		expander:    gremlin.NewExpander(topo),
		clients:     clients,
		log:         log,
		metrics:     metrics,
		concurrency: concurrencyLimit,
	}
}

func (g *Generator) endpointsFor(service string) []string {
	return g.topo.Endpoints(service)
}

// StartNewTest generates a fresh test id and PUTs it to every proxy
// endpoint of every service, service by service and endpoint by endpoint in
// topology declaration order. The first failure aborts the whole call.
func (g *Generator) StartNewTest(ctx context.Context) (testid.TestId, error) {
	id := testid.New()
	for _, svc := range g.topo.Services() {
		for _, ep := range g.endpointsFor(svc) {
			client, ok := g.clients[ep]
			if !ok {
				continue
			}
			if err := client.SetTestID(ctx, id); err != nil {
				g.metrics.ProxyErrors.WithLabelValues("SetTestID").Inc()
				return "", fmt.Errorf("failuregen: StartNewTest on %s (%s): %w", svc, ep, err)
			}
		}
	}
	g.testID = id
	return id, nil
}

// AddScenario expands a scenario into concrete rules and appends them to
// the pending push queue. It performs no I/O.
func (g *Generator) AddScenario(s gremlin.Scenario) error {
	rules, err := g.expander.Expand(s)
	if err != nil {
		return fmt.Errorf("failuregen: AddScenario: %w", err)
	}
	g.queue = append(g.queue, rules...)
	return nil
}

// ClearAll empties the pending queue and issues DELETE /rules against every
// known proxy endpoint. Per-endpoint failures are logged, not fatal: clear
// is idempotent by design, so a proxy that is already empty (or briefly
// unreachable) should not block the rest of the sweep.
func (g *Generator) ClearAll(ctx context.Context) {
	g.queue = nil
	for ep, client := range g.clients {
		if err := client.ClearRules(ctx); err != nil {
			g.metrics.ProxyErrors.WithLabelValues("ClearRules").Inc()
			g.log.WithFields(map[string]interface{}{"endpoint": ep, "error": err.Error()}).Warn("clear rules failed")
		}
	}
}

// Push installs every queued rule on every proxy endpoint of its source
// service, one rule's endpoints fully pushed before the next rule starts
// (spec's per-rule, per-service, per-endpoint ordering guarantee). When
// continueOnError is false the first failure aborts; when true, failures
// are logged and the sweep continues, returning a combined error at the end
// if anything failed.
func (g *Generator) Push(ctx context.Context, continueOnError bool) error {
	var failures []error
	for _, r := range g.queue {
		for _, ep := range g.endpointsFor(r.Source) {
			client, ok := g.clients[ep]
			if !ok {
				continue
			}
			if err := client.AddRule(ctx, r); err != nil {
				g.metrics.ProxyErrors.WithLabelValues("AddRule").Inc()
				wrapped := fmt.Errorf("failuregen: push %s->%s to %s: %w", r.Source, r.Dest, ep, err)
				if !continueOnError {
					return wrapped
				}
				g.log.WithField("error", wrapped.Error()).Warn("push failed, continuing")
				failures = append(failures, wrapped)
				continue
			}
			g.metrics.RulesPushed.WithLabelValues(r.Source).Inc()
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("failuregen: %d rule pushes failed, first: %w", len(failures), failures[0])
	}
	return nil
}

// ListRules aggregates ListRules across every proxy endpoint of a service.
// An endpoint that fails to answer leaves an empty entry and is logged,
// rather than failing the whole aggregation.
func (g *Generator) ListRules(ctx context.Context, service string) map[string]json.RawMessage {
	result := make(map[string]json.RawMessage)

	type outcome struct {
		endpoint string
		raw      json.RawMessage
		err      error
	}
	endpoints := g.endpointsFor(service)
	outcomes := make(chan outcome, len(endpoints))

	limit := g.concurrency
	if limit <= 0 {
		limit = len(endpoints)
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for _, ep := range endpoints {
		ep := ep
		client, ok := g.clients[ep]
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			rules, err := client.ListRules(ctx)
			if err != nil {
				outcomes <- outcome{endpoint: ep, err: err}
				return
			}
			raw, err := json.Marshal(rules)
			outcomes <- outcome{endpoint: ep, raw: raw, err: err}
		}()
	}
	wg.Wait()
	close(outcomes)

	for o := range outcomes {
		if o.err != nil {
			g.log.WithFields(map[string]interface{}{"endpoint": o.endpoint, "error": o.err.Error()}).Warn("list rules failed")
			result[o.endpoint] = json.RawMessage("[]")
			continue
		}
		result[o.endpoint] = o.raw
	}
	return result
}

// TestID returns the id of the currently active test, if any.
func (g *Generator) TestID() testid.TestId { return g.testID }
