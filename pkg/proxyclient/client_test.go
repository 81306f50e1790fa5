package proxyclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gremlinsdk/harness/pkg/proxyclient"
	"github.com/gremlinsdk/harness/pkg/rule"
	"github.com/gremlinsdk/harness/pkg/testid"
)

func endpointOf(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestSetTestIDPutsToTestPath(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := proxyclient.New(endpointOf(srv), 0)
	id := testid.New()
	require.NoError(t, c.SetTestID(context.Background(), id))
	require.Equal(t, http.MethodPut, gotMethod)
	require.Equal(t, "/gremlin/v1/test/"+id.String(), gotPath)
}

func TestClearRulesSendsDelete(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := proxyclient.New(endpointOf(srv), 0)
	require.NoError(t, c.ClearRules(context.Background()))
	require.Equal(t, http.MethodDelete, gotMethod)
	require.Equal(t, "/gremlin/v1/rules", gotPath)
}

func TestAddRulePostsWireJSON(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := proxyclient.New(endpointOf(srv), 0)
	r, err := rule.New("productpage", "reviews", rule.Request, "", "",
		rule.Delay{}, rule.Mangle{}, rule.Abort{Probability: 1, Distribution: rule.Uniform, ErrorCode: 503})
	require.NoError(t, err)

	require.NoError(t, c.AddRule(context.Background(), r))
	require.Equal(t, "/gremlin/v1/rules/add", gotPath)
	require.Equal(t, "productpage", gotBody["source"])
	require.Equal(t, float64(503), gotBody["errorcode"])
}

func TestListRulesParsesArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"source":"a","dest":"b","messagetype":"request","headerpattern":"","bodypattern":"",
			"delayprobability":0,"delaydistribution":"uniform","delaytime":"0s",
			"mangleprobability":0,"mangledistribution":"uniform","searchstring":"","replacestring":"",
			"abortprobability":1,"abortdistribution":"uniform","errorcode":503}]`))
	}))
	defer srv.Close()

	c := proxyclient.New(endpointOf(srv), 0)
	rules, err := c.ListRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "a", rules[0].Source)
	require.Equal(t, 503, rules[0].Abort.ErrorCode)
}

func TestNonTwoXXBecomesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := proxyclient.New(endpointOf(srv), 0)
	err := c.ClearRules(context.Background())
	require.Error(t, err)
	var httpErr *proxyclient.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, 500, httpErr.StatusCode)
}

func TestConfiguredTimeoutIsEnforced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := proxyclient.New(endpointOf(srv), 5*time.Millisecond)
	err := c.ClearRules(context.Background())
	require.Error(t, err)
	var transportErr *proxyclient.TransportError
	require.ErrorAs(t, err, &transportErr)
}

func TestUnreachableEndpointBecomesTransportError(t *testing.T) {
	c := proxyclient.New("127.0.0.1:1", 0)
	err := c.ClearRules(context.Background())
	require.Error(t, err)
	var transportErr *proxyclient.TransportError
	require.ErrorAs(t, err, &transportErr)
}
