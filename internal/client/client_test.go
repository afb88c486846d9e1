// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/clickup-tap/internal/httputil"
	"github.com/pdiddy/clickup-tap/internal/metrics"
	"github.com/pdiddy/clickup-tap/internal/records"
	"github.com/pdiddy/clickup-tap/internal/streams"
	"github.com/pdiddy/clickup-tap/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return New(types.APIConfig{BaseURL: ts.URL + "/", APIToken: "pk_test"}, ts.Client(), nil)
}

func lookup(t *testing.T, name string) *streams.Definition {
	t.Helper()
	g, err := streams.Default()
	require.NoError(t, err)
	d, ok := g.Lookup(name)
	require.True(t, ok, name)
	return d
}

func collect(seq func(func(types.Record, error) bool)) ([]types.Record, error) {
	var out []types.Record
	for r, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

func TestGetSendsHeaders(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/team", r.URL.Path)
		assert.Equal(t, "pk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		fmt.Fprint(w, `{"teams":[]}`)
	})

	payload, err := c.Get(context.Background(), "team", "/team")
	require.NoError(t, err)
	obj, ok := payload.(map[string]any)
	require.True(t, ok)
	assert.Empty(t, obj["teams"])
}

func TestGetHTTPError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"err":"Token invalid","ECODE":"OAUTH_025"}`)
	})

	_, err := c.Get(context.Background(), "team", "/team")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "Token invalid")
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestGetMalformedBody(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	})

	_, err := c.Get(context.Background(), "team", "/team")
	assert.ErrorIs(t, err, records.ErrMalformedPayload)
}

func TestGetRetriesRateLimit(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"teams":[{"id":"1"}]}`)
	})

	_, err := c.Get(context.Background(), "team", "/team")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRecordsResolvesContext(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/team/1/space", r.URL.Path)
		fmt.Fprint(w, `{"spaces":[{"id":"S1"},{"id":"S2"}]}`)
	})

	got, err := collect(c.Records(context.Background(), lookup(t, "space"), types.Context{"team_id": "1"}))
	require.NoError(t, err)
	assert.Equal(t, []types.Record{{"id": "S1"}, {"id": "S2"}}, got)
}

func TestRecordsKeepsFixedQuery(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/team/1/task_template", r.URL.Path)
		assert.Equal(t, "0", r.URL.Query().Get("page"))
		fmt.Fprint(w, `{"templates":[{"id":"t-1","name":"Bug"}]}`)
	})

	got, err := collect(c.Records(context.Background(), lookup(t, "task_template"), types.Context{"team_id": "1"}))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRecordsSharedIsSingular(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"shared":{"tasks":["a","b"],"lists":[{"id":"L1"}],"folders":[]}}`)
	})

	got, err := collect(c.Records(context.Background(), lookup(t, "shared_hierarchy"), types.Context{"team_id": "1"}))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0]["tasks"], 2)
}

func TestRecordsPaginates(t *testing.T) {
	var pages []string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		switch page {
		case "0":
			fmt.Fprint(w, `{"tasks":[{"id":"a"},{"id":"b"}],"last_page":false}`)
		case "1":
			fmt.Fprint(w, `{"tasks":[{"id":"c"}],"last_page":true}`)
		default:
			t.Errorf("unexpected page %s", page)
			fmt.Fprint(w, `{"tasks":[]}`)
		}
	})

	got, err := collect(c.Records(context.Background(), lookup(t, "folderless_task"), types.Context{"list_id": "L1"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1"}, pages)
	assert.Len(t, got, 3)
}

func TestRecordsStopsOnEmptyPage(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, `{"tasks":[{"id":"a"}]}`)
			return
		}
		fmt.Fprint(w, `{"tasks":[]}`)
	})

	got, err := collect(c.Records(context.Background(), lookup(t, "folder_task"), types.Context{"list_id": "L1"}))
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRecordsPageLimit(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"tasks":[{"id":"a"}],"last_page":false}`)
	}))
	defer ts.Close()
	c := New(types.APIConfig{BaseURL: ts.URL, MaxPages: 3}, ts.Client(), nil)

	got, err := collect(c.Records(context.Background(), lookup(t, "folder_task"), types.Context{"list_id": "L1"}))
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRecordsIsLazyAndRestartable(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"teams":[{"id":"1"},{"id":"2"}]}`)
	})

	seq := c.Records(context.Background(), lookup(t, "team"), nil)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "nothing fetched before ranging")

	first, err := collect(seq)
	require.NoError(t, err)
	second, err := collect(seq)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRecordsMissingContext(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := collect(c.Records(context.Background(), lookup(t, "folder"), types.Context{"team_id": "1"}))
	assert.ErrorIs(t, err, streams.ErrMissingContext)
}

func TestRecordsMissingPath(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"err":"Team not authorized"}`)
	})

	_, err := collect(c.Records(context.Background(), lookup(t, "space"), types.Context{"team_id": "1"}))
	assert.ErrorIs(t, err, records.ErrPathNotFound)
}

func TestGetRecordsMetrics(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"teams":[]}`)
	}))
	defer ts.Close()

	reg := prometheus.NewRegistry()
	c := New(types.APIConfig{BaseURL: ts.URL}, ts.Client(), metrics.New(reg))
	_, err := c.Get(context.Background(), "team", "/team")
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "clickup_tap_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
