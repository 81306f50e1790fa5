// Package recipe is the harness's top-level orchestrator: load the three
// recipe documents, build the topology and failure generator, clear and
// push the rules, block on the operator barrier, then run the checklist
// and return its results.
package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gremlinsdk/harness/pkg/checker"
	"github.com/gremlinsdk/harness/pkg/failuregen"
	"github.com/gremlinsdk/harness/pkg/harnessconfig"
	"github.com/gremlinsdk/harness/pkg/logquery"
	"github.com/gremlinsdk/harness/pkg/telemetry"
	"github.com/gremlinsdk/harness/pkg/testid"
	"github.com/gremlinsdk/harness/pkg/topology"
)

// gremlinsDoc is the top-level shape of the gremlins recipe document.
type gremlinsDoc struct {
	Gremlins []json.RawMessage `json:"gremlins"`
}

// ChecklistDoc is the top-level shape of the checklist document.
type ChecklistDoc struct {
	LogServer string            `json:"log_server"`
	Checks    []json.RawMessage `json:"checks"`
}

// Recipe is the loaded triple of topology, gremlins, and checklist
// documents that together define one harness run.
type Recipe struct {
	TopologyDoc topology.Document
	Gremlins    []json.RawMessage
	Checklist   ChecklistDoc
}

// Load reads and parses the three recipe files. A malformed file produces
// an error the caller should treat as an InputError (spec §7: exit 2).
func Load(topologyPath, gremlinsPath, checklistPath string) (*Recipe, error) {
	var r Recipe

	if err := readJSON(topologyPath, &r.TopologyDoc); err != nil {
		return nil, err
	}

	var gdoc gremlinsDoc
	if err := readJSON(gremlinsPath, &gdoc); err != nil {
		return nil, err
	}
	r.Gremlins = gdoc.Gremlins

	if err := readJSON(checklistPath, &r.Checklist); err != nil {
		return nil, err
	}

	return &r, nil
}

// argsString renders a checklist entry's own fields, minus the "name"
// discriminator, as the args-dict half of the "Check <name> <args>
// PASS|FAIL" line (spec §7).
func argsString(raw json.RawMessage) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "{}"
	}
	delete(m, "name")
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("recipe: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("recipe: parse %s: %w", path, err)
	}
	return nil
}

// NamedResult pairs a checklist check's name and args with its outcome, for
// the "Check <name> <args> PASS|FAIL" output line (spec §7; the args string
// is the checklist entry's own fields minus "name", matching the Python
// reference's `AssertionResult(name, str(kwargs), ...)`).
type NamedResult struct {
	Name   string
	Args   string
	Result checker.Result
}

// Run executes the full recipe: build topology and generator, clear and
// push rules, invoke onReady with the test id (so the caller can print it
// and prompt the operator before the barrier blocks), block on barrier,
// then run every checklist check.
func (r *Recipe) Run(ctx context.Context, barrier io.Reader, onReady func(testid.TestId), cfg *harnessconfig.Config, log *telemetry.Logger, metrics *telemetry.Metrics) (testid.TestId, []NamedResult, error) {
	start := time.Now()
	defer func() { metrics.RecipeDuration.Observe(time.Since(start).Seconds()) }()

	topo, err := topology.Build(r.TopologyDoc)
	if err != nil {
		return "", nil, fmt.Errorf("recipe: build topology: %w", err)
	}

	gen := failuregen.New(topo, r.TopologyDoc, log, metrics, cfg.Proxy.Timeout, cfg.Execution.ConcurrencyLimit)
	gen.ClearAll(ctx)

	for _, raw := range r.Gremlins {
		scenario, err := decodeScenario(raw)
		if err != nil {
			return "", nil, err
		}
		if err := gen.AddScenario(scenario); err != nil {
			return "", nil, fmt.Errorf("recipe: add scenario: %w", err)
		}
	}

	id, err := gen.StartNewTest(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("recipe: start test: %w", err)
	}

	if err := gen.Push(ctx, cfg.Execution.ContinueOnError); err != nil {
		return id, nil, fmt.Errorf("recipe: push rules: %w", err)
	}

	if onReady != nil {
		onReady(id)
	}

	if barrier != nil {
		buf := make([]byte, 1)
		_, _ = barrier.Read(buf)
	}

	store := logquery.NewStoreClient(r.Checklist.LogServer, cfg.LogStore.Timeout)
	ch := checker.New(store, id)

	results := make([]NamedResult, 0, len(r.Checklist.Checks))
	for _, raw := range r.Checklist.Checks {
		check, err := decodeCheck(raw)
		if err != nil {
			return id, nil, err
		}
		var wire checkWire
		_ = json.Unmarshal(raw, &wire)

		metrics.ChecksRun.WithLabelValues(wire.Name).Inc()
		result, err := ch.Run(ctx, check)
		if err != nil {
			return id, nil, fmt.Errorf("recipe: run check %q: %w", wire.Name, err)
		}
		if !result.Success {
			metrics.ChecksFailed.WithLabelValues(wire.Name).Inc()
		}
		results = append(results, NamedResult{Name: wire.Name, Args: argsString(raw), Result: result})
	}

	return id, results, nil
}
