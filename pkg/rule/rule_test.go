package rule_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gremlinsdk/harness/pkg/rule"
)

func TestNewRejectsAllZeroProbabilities(t *testing.T) {
	_, err := rule.New("a", "b", rule.Request, "", "", rule.Delay{}, rule.Mangle{}, rule.Abort{ErrorCode: -1})
	require.Error(t, err)
}

func TestNewRejectsOverBudgetProbabilitySum(t *testing.T) {
	_, err := rule.New("a", "b", rule.Request, "", "",
		rule.Delay{Probability: 0.6, Distribution: rule.Uniform, Duration: "1s"},
		rule.Mangle{},
		rule.Abort{Probability: 0.6, Distribution: rule.Uniform, ErrorCode: 503})
	require.Error(t, err)
}

func TestNewAcceptsValidRule(t *testing.T) {
	r, err := rule.New("productpage", "reviews", rule.Request, "", "",
		rule.Delay{}, rule.Mangle{}, rule.Abort{Probability: 1, Distribution: rule.Uniform, ErrorCode: -1})
	require.NoError(t, err)
	require.Equal(t, "productpage", r.Source)
	require.Equal(t, "reviews", r.Dest)
}

func TestRuleJSONRoundTripsWireFieldNames(t *testing.T) {
	r, err := rule.New("productpage", "reviews", rule.Request, "X-Gremlin-ID", "*",
		rule.Delay{Probability: 0.5, Distribution: rule.Uniform, Duration: "10s"},
		rule.Mangle{},
		rule.Abort{Probability: 0.5, Distribution: rule.Uniform, ErrorCode: 503})
	require.NoError(t, err)

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, field := range []string{
		"source", "dest", "messagetype", "headerpattern", "bodypattern",
		"delayprobability", "delaydistribution", "delaytime",
		"mangleprobability", "mangledistribution", "searchstring", "replacestring",
		"abortprobability", "abortdistribution", "errorcode",
	} {
		require.Contains(t, raw, field)
	}

	var back rule.Rule
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, r, back)
}

func TestParseDurationRoundTrip(t *testing.T) {
	for _, s := range []string{"1s500ms", "10ms", "2h", "30s", "1h30m", "500us", "0s"} {
		d, err := rule.ParseDuration(s)
		require.NoError(t, err, s)
		require.Equal(t, s, rule.FormatDuration(d), "round trip for %s", s)
	}
}

func TestParseDurationRejectsUnknownUnit(t *testing.T) {
	_, err := rule.ParseDuration("10x")
	require.Error(t, err)
}

func TestParseDurationRejectsEmpty(t *testing.T) {
	_, err := rule.ParseDuration("")
	require.Error(t, err)
}
