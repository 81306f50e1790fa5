package gremlin_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gremlinsdk/harness/pkg/gremlin"
	"github.com/gremlinsdk/harness/pkg/rule"
	"github.com/gremlinsdk/harness/pkg/topology"
)

func buildTopo(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.Build(topology.Document{
		Services: []topology.Service{
			{Name: "gateway"},
			{Name: "productpage"},
			{Name: "reviews"},
			{Name: "details"},
			{Name: "ratings"},
		},
		Dependencies: map[string][]string{
			"gateway":     {"productpage"},
			"productpage": {"reviews", "details"},
			"reviews":     {"ratings"},
		},
	})
	require.NoError(t, err)
	return topo
}

func errCode(v int) *int { return &v }
func prob(v float64) *float64 { return &v }
func str(v string) *string { return &v }

func TestExpandCrashServiceFansOutToAllDependents(t *testing.T) {
	topo := buildTopo(t)
	exp := gremlin.NewExpander(topo)

	rules, err := exp.Expand(gremlin.CrashService{Dest: "reviews"})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	r := rules[0]
	require.Equal(t, "productpage", r.Source)
	require.Equal(t, "reviews", r.Dest)
	require.Equal(t, rule.Request, r.MessageType)
	require.Equal(t, 1.0, r.Abort.Probability)
	require.Equal(t, rule.ResetConnection, r.Abort.ErrorCode)
	require.Equal(t, rule.Uniform, r.Abort.Distribution)
	require.Equal(t, 0.0, r.Delay.Probability)
	require.Equal(t, 0.0, r.Mangle.Probability)
}

func TestExpandCrashServiceTargetsItsSingleDependent(t *testing.T) {
	topo := buildTopo(t)
	exp := gremlin.NewExpander(topo)

	rules, err := exp.Expand(gremlin.CrashService{Dest: "productpage"})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "gateway", rules[0].Source)
}

func TestExpandOverloadServiceUsesDefaultsForBothFaultKinds(t *testing.T) {
	topo := buildTopo(t)
	exp := gremlin.NewExpander(topo)

	rules, err := exp.Expand(gremlin.OverloadService{Dest: "ratings"})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	r := rules[0]
	require.Equal(t, "reviews", r.Source)
	require.Equal(t, 0.5, r.Delay.Probability)
	require.Equal(t, "10s", r.Delay.Duration)
	require.Equal(t, 0.5, r.Abort.Probability)
	require.Equal(t, 503, r.Abort.ErrorCode)
}

func TestExpandOverloadServiceHonorsExplicitOverrides(t *testing.T) {
	topo := buildTopo(t)
	exp := gremlin.NewExpander(topo)

	rules, err := exp.Expand(gremlin.OverloadService{
		Dest:             "ratings",
		DelayProbability: prob(0.2),
		DelayDuration:    str("1s"),
		AbortProbability: prob(0.3),
		ErrorCode:        errCode(500),
	})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	r := rules[0]
	require.Equal(t, 0.2, r.Delay.Probability)
	require.Equal(t, "1s", r.Delay.Duration)
	require.Equal(t, 0.3, r.Abort.Probability)
	require.Equal(t, 500, r.Abort.ErrorCode)
}

func TestExpandPartitionServicesIsSymmetricByDefault(t *testing.T) {
	topo := buildTopo(t)
	exp := gremlin.NewExpander(topo)

	rules, err := exp.Expand(gremlin.PartitionServices{Source: "productpage", Dest: "reviews"})
	require.NoError(t, err)
	require.Len(t, rules, 2)

	require.Equal(t, "productpage", rules[0].Source)
	require.Equal(t, "reviews", rules[0].Dest)
	require.Equal(t, 1.0, rules[0].Abort.Probability)

	require.Equal(t, "reviews", rules[1].Source)
	require.Equal(t, "productpage", rules[1].Dest)
	require.Equal(t, 1.0, rules[1].Abort.Probability)

	require.Equal(t, rule.ResetConnection, rules[0].Abort.ErrorCode)
	require.Equal(t, rule.ResetConnection, rules[1].Abort.ErrorCode)
}

func TestExpandPartitionServicesHonorsAsymmetricProbabilities(t *testing.T) {
	topo := buildTopo(t)
	exp := gremlin.NewExpander(topo)

	rules, err := exp.Expand(gremlin.PartitionServices{
		Source:         "productpage",
		Dest:           "reviews",
		SrcProbability: prob(0.9),
		DstProbability: prob(0.1),
	})
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.Equal(t, 0.9, rules[0].Abort.Probability)
	require.Equal(t, 0.1, rules[1].Abort.Probability)
}

func TestExpandPartitionServicesRejectsNonAdjacentPair(t *testing.T) {
	topo := buildTopo(t)
	exp := gremlin.NewExpander(topo)

	_, err := exp.Expand(gremlin.PartitionServices{Source: "gateway", Dest: "reviews"})
	require.Error(t, err)
}

func TestExpandDelayRequestsWithBothEndpointsIsSingleton(t *testing.T) {
	topo := buildTopo(t)
	exp := gremlin.NewExpander(topo)

	rules, err := exp.Expand(gremlin.DelayRequests{
		Source: "productpage", Dest: "details",
		Probability: 0.5, Duration: "2s",
	})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "2s", rules[0].Delay.Duration)
}

func TestExpandAbortRequestsWithOnlySourceFansOutToDependencies(t *testing.T) {
	topo := buildTopo(t)
	exp := gremlin.NewExpander(topo)

	rules, err := exp.Expand(gremlin.AbortRequests{Source: "productpage", Probability: 1})
	require.NoError(t, err)
	require.Len(t, rules, 2)
	dests := map[string]bool{rules[0].Dest: true, rules[1].Dest: true}
	require.True(t, dests["reviews"])
	require.True(t, dests["details"])
}

func TestExpandRejectsWhenNeitherEndpointResolves(t *testing.T) {
	topo := buildTopo(t)
	exp := gremlin.NewExpander(topo)

	_, err := exp.Expand(gremlin.AbortRequests{Source: "nonexistent", Probability: 1})
	require.Error(t, err)
}

func TestExpandPropagatesRuleValidationErrors(t *testing.T) {
	topo := buildTopo(t)
	exp := gremlin.NewExpander(topo)

	_, err := exp.Expand(gremlin.AbortRequests{Source: "productpage", Dest: "reviews", Probability: 0})
	require.Error(t, err)
}

// TestExpandIsSafeForConcurrentCallers exercises Expand from several
// goroutines at once: every expansion reads the topology only, so
// concurrent calls must not race or disturb each other's results.
func TestExpandIsSafeForConcurrentCallers(t *testing.T) {
	topo := buildTopo(t)
	exp := gremlin.NewExpander(topo)

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func() {
			_, err := exp.Expand(gremlin.CrashService{Dest: "reviews"})
			done <- err
		}()
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-done)
	}
}
