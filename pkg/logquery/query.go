// Package logquery builds structured queries against the log store and
// projects its JSON responses down to the narrow LogEvent shape the
// checker reads, following the same POST-JSON-body, decode-typed-response
// idiom the teacher uses for its JSON-RPC client.
package logquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// AllMatches is the result size cap meaning "every match", mirroring the
// 2^31-1 constant the original harness used for an unbounded search.
const AllMatches = 1<<31 - 1

// DefaultTimeout bounds a single search call when the caller supplies no
// timeout of its own.
const DefaultTimeout = 10 * time.Second

// predicate is one leaf of a Query's must/should filter set.
type predicate struct {
	Term   *termPredicate   `json:"term,omitempty"`
	Exists *existsPredicate `json:"exists,omitempty"`
	Prefix *prefixPredicate `json:"prefix,omitempty"`
}

type termPredicate struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type existsPredicate struct {
	Field string `json:"field"`
}

type prefixPredicate struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type aggregation struct {
	Name  string `json:"name"`
	Field string `json:"field"`
}

// Query is the small, fixed vocabulary the checker needs: term equality,
// field existence, prefix matching, combined with must/should, plus one
// optional terms aggregation bucket.
type Query struct {
	size  int
	must  []predicate
	shoud []predicate
	agg   *aggregation
}

// New starts an empty Query, defaulting to AllMatches.
func New() *Query {
	return &Query{size: AllMatches}
}

// Term adds an exact-match predicate on field==value.
func (q *Query) Term(field, value string) *Query {
	q.must = append(q.must, predicate{Term: &termPredicate{Field: field, Value: value}})
	return q
}

// Exists adds a field-presence predicate.
func (q *Query) Exists(field string) *Query {
	q.must = append(q.must, predicate{Exists: &existsPredicate{Field: field}})
	return q
}

// Prefix adds a prefix-match predicate, typically on reqID.
func (q *Query) Prefix(field, value string) *Query {
	q.must = append(q.must, predicate{Prefix: &prefixPredicate{Field: field, Value: value}})
	return q
}

// Must appends the predicates built on a scratch Query as mandatory
// filters; kept for symmetry with Should, since Term/Exists/Prefix already
// append to Must by default.
func (q *Query) Must(other *Query) *Query {
	q.must = append(q.must, other.must...)
	return q
}

// Should appends predicates built on a scratch Query as optional filters.
func (q *Query) Should(other *Query) *Query {
	q.shoud = append(q.shoud, other.must...)
	return q
}

// Aggregate requests a terms aggregation bucketed by field, named name
// ("byid" over reqID or uri, "bysource" over source, per spec vocabulary).
func (q *Query) Aggregate(name, field string) *Query {
	q.agg = &aggregation{Name: name, Field: field}
	return q
}

// Size overrides the default AllMatches result cap.
func (q *Query) Size(n int) *Query {
	q.size = n
	return q
}

// wireQuery is the JSON body shape the log store's search endpoint expects.
type wireQuery struct {
	Size  int                    `json:"size"`
	Must  []predicate            `json:"must,omitempty"`
	Shoud []predicate            `json:"should,omitempty"`
	Aggs  map[string]aggWireSpec `json:"aggs,omitempty"`
}

type aggWireSpec struct {
	Terms struct {
		Field string `json:"field"`
	} `json:"terms"`
}

func (q *Query) toWire() wireQuery {
	w := wireQuery{Size: q.size, Must: q.must, Shoud: q.shoud}
	if q.agg != nil {
		w.Aggs = map[string]aggWireSpec{
			q.agg.Name: {Terms: struct {
				Field string `json:"field"`
			}{Field: q.agg.Field}},
		}
	}
	return w
}

// LogEvent is the narrow projection of what the log store returns — the
// only shape anything downstream of the store touches.
type LogEvent struct {
	TS       time.Time `json:"ts"`
	TestID   string    `json:"testid"`
	Source   string    `json:"source"`
	Dest     string    `json:"dest"`
	Msg      string    `json:"msg"`
	ReqID    string    `json:"reqID"`
	Protocol string    `json:"protocol"`
	Status   int       `json:"status"`
	Duration string    `json:"duration"`
	Actions  []string  `json:"actions"`
	URI      string    `json:"uri"`
	Level    string    `json:"level"`
	ErrMsg   string    `json:"errmsg"`
}

// IsRequest reports whether this event is a Request-kind log line.
func (e LogEvent) IsRequest() bool { return e.Msg == "Request" }

// IsResponse reports whether this event is a Response-kind log line.
func (e LogEvent) IsResponse() bool { return e.Msg == "Response" }

// Bucket is one terms-aggregation result bucket.
type Bucket struct {
	Key      string `json:"key"`
	DocCount int    `json:"doc_count"`
}

// QueryResult is the decoded search response.
type QueryResult struct {
	Total      int
	Events     []LogEvent
	Aggregates map[string][]Bucket
}

type wireHit struct {
	Source LogEvent `json:"_source"`
}

type wireResponse struct {
	Hits struct {
		Total int       `json:"total"`
		Hits  []wireHit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets []Bucket `json:"buckets"`
	} `json:"aggregations"`
}

// StoreClient talks to the log store's search endpoint named in the
// checklist document's log_server field.
type StoreClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewStoreClient builds a StoreClient against baseURL (e.g.
// "http://logstore:9200"), the value of checklist.log_server. A
// non-positive timeout falls back to DefaultTimeout.
func NewStoreClient(baseURL string, timeout time.Duration) *StoreClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &StoreClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search POSTs q's JSON body to the store and decodes the response into a
// QueryResult, projecting hits into LogEvent and aggregations into Bucket.
func (c *StoreClient) Search(ctx context.Context, q *Query) (*QueryResult, error) {
	body, err := json.Marshal(q.toWire())
	if err != nil {
		return nil, fmt.Errorf("logquery: marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("logquery: build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("logquery: search %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("logquery: read search response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("logquery: search %s: status %d", c.baseURL, resp.StatusCode)
	}

	var wire wireResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, fmt.Errorf("logquery: unmarshal search response: %w", err)
	}

	events := make([]LogEvent, len(wire.Hits.Hits))
	for i, h := range wire.Hits.Hits {
		events[i] = h.Source
	}

	aggregates := make(map[string][]Bucket, len(wire.Aggregations))
	for name, agg := range wire.Aggregations {
		aggregates[name] = agg.Buckets
	}

	return &QueryResult{Total: wire.Hits.Total, Events: events, Aggregates: aggregates}, nil
}
