package failuregen_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gremlinsdk/harness/pkg/failuregen"
	"github.com/gremlinsdk/harness/pkg/gremlin"
	"github.com/gremlinsdk/harness/pkg/telemetry"
	"github.com/gremlinsdk/harness/pkg/topology"
)

type recordingProxy struct {
	mu       sync.Mutex
	requests []string
}

func (p *recordingProxy) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.requests = append(p.requests, r.Method+" "+r.URL.Path)
		p.mu.Unlock()
		if r.URL.Path == "/gremlin/v1/rules/list" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte("[]"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func endpointOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func buildGeneratorFixture(t *testing.T) (*failuregen.Generator, *recordingProxy, *recordingProxy, func()) {
	t.Helper()

	pp := &recordingProxy{}
	reviews := &recordingProxy{}
	ppSrv := httptest.NewServer(pp.handler())
	reviewsSrv := httptest.NewServer(reviews.handler())

	doc := topology.Document{
		Services: []topology.Service{
			{Name: "productpage", ProxyEndpoints: []string{endpointOf(ppSrv)}},
			{Name: "reviews", ProxyEndpoints: []string{endpointOf(reviewsSrv)}},
		},
		Dependencies: map[string][]string{
			"productpage": {"reviews"},
		},
	}
	topo, err := topology.Build(doc)
	require.NoError(t, err)

	gen := failuregen.New(topo, doc, telemetry.Nop(), telemetry.NewMetrics(nil), 0, 0)
	cleanup := func() {
		ppSrv.Close()
		reviewsSrv.Close()
	}
	return gen, pp, reviews, cleanup
}

func TestStartNewTestSetsTestIDOnEveryEndpoint(t *testing.T) {
	gen, pp, reviews, cleanup := buildGeneratorFixture(t)
	defer cleanup()

	id, err := gen.StartNewTest(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, id.String())

	require.Len(t, pp.requests, 1)
	require.Len(t, reviews.requests, 1)
	require.Contains(t, pp.requests[0], "PUT /gremlin/v1/test/")
}

func TestAddScenarioThenPushPostsRuleToSourceEndpoints(t *testing.T) {
	gen, pp, reviews, cleanup := buildGeneratorFixture(t)
	defer cleanup()

	_, err := gen.StartNewTest(context.Background())
	require.NoError(t, err)

	require.NoError(t, gen.AddScenario(gremlin.CrashService{Dest: "reviews"}))
	require.NoError(t, gen.Push(context.Background(), false))

	require.Len(t, pp.requests, 2)
	require.Equal(t, "POST /gremlin/v1/rules/add", pp.requests[1])
	require.Len(t, reviews.requests, 1)
}

func TestClearAllIsIdempotentAcrossEndpoints(t *testing.T) {
	gen, pp, reviews, cleanup := buildGeneratorFixture(t)
	defer cleanup()

	gen.ClearAll(context.Background())
	gen.ClearAll(context.Background())

	require.Len(t, pp.requests, 2)
	require.Len(t, reviews.requests, 2)
	for _, r := range pp.requests {
		require.Equal(t, "DELETE /gremlin/v1/rules", r)
	}
}

func TestListRulesAggregatesAcrossEndpoints(t *testing.T) {
	gen, _, _, cleanup := buildGeneratorFixture(t)
	defer cleanup()

	result := gen.ListRules(context.Background(), "productpage")
	require.Len(t, result, 1)
	for _, raw := range result {
		require.Equal(t, "[]", string(raw))
	}
}

func TestListRulesHonorsConcurrencyLimit(t *testing.T) {
	var inflight, maxInflight int32

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			cur := atomic.LoadInt32(&maxInflight)
			if n <= cur || atomic.CompareAndSwapInt32(&maxInflight, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	})

	endpoints := make([]string, 4)
	servers := make([]*httptest.Server, 4)
	for i := range servers {
		servers[i] = httptest.NewServer(handler)
		endpoints[i] = endpointOf(servers[i])
	}
	defer func() {
		for _, srv := range servers {
			srv.Close()
		}
	}()

	doc := topology.Document{
		Services: []topology.Service{{Name: "fanout", ProxyEndpoints: endpoints}},
	}
	topo, err := topology.Build(doc)
	require.NoError(t, err)

	gen := failuregen.New(topo, doc, telemetry.Nop(), telemetry.NewMetrics(nil), 0, 2)
	result := gen.ListRules(context.Background(), "fanout")
	require.Len(t, result, 4)
	require.LessOrEqual(t, atomic.LoadInt32(&maxInflight), int32(2))
}

func TestPushStopsOnFirstFailureWhenNotContinuing(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	doc := topology.Document{
		Services: []topology.Service{
			{Name: "productpage", ProxyEndpoints: []string{endpointOf(failing)}},
			{Name: "reviews"},
		},
		Dependencies: map[string][]string{"productpage": {"reviews"}},
	}
	topo, err := topology.Build(doc)
	require.NoError(t, err)

	gen := failuregen.New(topo, doc, telemetry.Nop(), telemetry.NewMetrics(nil), 0, 0)
	require.NoError(t, gen.AddScenario(gremlin.CrashService{Dest: "reviews"}))
	err = gen.Push(context.Background(), false)
	require.Error(t, err)
}
