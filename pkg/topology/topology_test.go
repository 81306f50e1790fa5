package topology_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gremlinsdk/harness/pkg/topology"
)

func sampleDoc() topology.Document {
	return topology.Document{
		Services: []topology.Service{
			{Name: "gateway", ProxyEndpoints: []string{"127.0.0.1:9877"}},
			{Name: "productpage", ProxyEndpoints: []string{"127.0.0.1:9876"}},
			{Name: "reviews"},
			{Name: "details"},
		},
		Dependencies: map[string][]string{
			"gateway":     {"productpage"},
			"productpage": {"reviews", "details"},
		},
	}
}

func TestBuildAndLookups(t *testing.T) {
	topo, err := topology.Build(sampleDoc())
	require.NoError(t, err)

	require.Equal(t, []string{"gateway", "productpage", "reviews", "details"}, topo.Services())
	require.Equal(t, []string{"productpage"}, topo.Dependencies("gateway"))
	require.Equal(t, []string{"reviews", "details"}, topo.Dependencies("productpage"))
	require.Equal(t, []string{"productpage"}, topo.Dependents("reviews"))
	require.Equal(t, []string{"gateway"}, topo.Dependents("productpage"))
	require.Equal(t, []string{"127.0.0.1:9876"}, topo.Endpoints("productpage"))
	require.Empty(t, topo.Endpoints("reviews"))
	require.Nil(t, topo.Endpoints("nonexistent"))
}

// Purity: repeated lookups never mutate the topology or each other's results.
func TestLookupsArePure(t *testing.T) {
	topo, err := topology.Build(sampleDoc())
	require.NoError(t, err)

	a := topo.Dependencies("productpage")
	a[0] = "mutated"
	b := topo.Dependencies("productpage")
	require.Equal(t, []string{"reviews", "details"}, b)
}

func TestBuildRejectsDuplicateService(t *testing.T) {
	doc := sampleDoc()
	doc.Services = append(doc.Services, topology.Service{Name: "gateway"})
	_, err := topology.Build(doc)
	require.Error(t, err)
}

func TestBuildRejectsUnknownDependencyTarget(t *testing.T) {
	doc := sampleDoc()
	doc.Dependencies["reviews"] = []string{"ratings"}
	_, err := topology.Build(doc)
	require.Error(t, err)
}

func TestBuildRejectsUnknownDependencySource(t *testing.T) {
	doc := sampleDoc()
	doc.Dependencies["unknown-source"] = []string{"reviews"}
	_, err := topology.Build(doc)
	require.Error(t, err)
}

// Cycles are permitted; expansion never traverses edges transitively so a
// cyclic graph is perfectly usable.
func TestCyclesAreLegal(t *testing.T) {
	doc := sampleDoc()
	doc.Dependencies["reviews"] = []string{"gateway"}
	topo, err := topology.Build(doc)
	require.NoError(t, err)
	require.Equal(t, []string{"gateway"}, topo.Dependencies("reviews"))
}
