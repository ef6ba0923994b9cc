package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deliverly/admin-console/internal/filters"
)

type vendor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveUpstream(resource, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, resource+":"+outcome)
}

func newTestResource(t *testing.T, handler http.HandlerFunc, opts ...Option) *Resource[vendor] {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "svc-key", Timeout: 2 * time.Second}, opts...)
	return NewResource[vendor](client, "vendors", "/admin/vendors", []string{"status", "zoneId", "search"})
}

func TestListProjectsFiltersAndDecodesPage(t *testing.T) {
	res := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/admin/vendors", r.URL.Path)
		require.Equal(t, "svc-key", r.Header.Get("X-API-Key"))
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("pageNumber"))
		assert.Equal(t, "10", q.Get("pageSize"))
		assert.Equal(t, "createdAt", q.Get("sortBy"))
		assert.Equal(t, "desc", q.Get("sortOrder"))
		assert.Equal(t, "Pending", q.Get("status"))
		assert.False(t, q.Has("internalNote"), "unknown keys must be dropped")
		assert.False(t, q.Has("page"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items":      []vendor{{ID: "v1", Name: "Mama Put", Status: "Pending"}},
			"totalCount": 47,
			"pageNumber": 2,
			"pageSize":   10,
		})
	})

	page, err := res.List(context.Background(), filters.State{
		Page: 2, PageSize: 10, SortBy: "createdAt", SortOrder: filters.SortDesc,
		Values: map[string]string{"status": "Pending", "internalNote": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, 47, page.TotalCount)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 5, page.TotalPages())
}

func TestListFillsMissingPaginationAndEmptyItems(t *testing.T) {
	res := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"totalCount":0}`))
	})
	page, err := res.List(context.Background(), filters.State{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.PageNumber)
	assert.Equal(t, 10, page.PageSize)
	assert.NotNil(t, page.Items)
}

func TestListRejectsServerOverride(t *testing.T) {
	res := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[],"totalCount":3,"pageNumber":1,"pageSize":50}`))
	})
	_, err := res.List(context.Background(), filters.State{Page: 1, PageSize: 10})
	require.Error(t, err)
	assert.Equal(t, KindServer, KindOf(err))
}

func TestListRejectsOverflowingPage(t *testing.T) {
	res := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"id":"1"},{"id":"2"}],"totalCount":2,"pageNumber":1,"pageSize":1}`))
	})
	_, err := res.List(context.Background(), filters.State{Page: 1, PageSize: 1})
	assert.Equal(t, KindServer, KindOf(err))
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   Kind
		fields map[string]string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"message":"token expired"}`, KindUnauthorized, nil},
		{"forbidden", http.StatusForbidden, ``, KindUnauthorized, nil},
		{"field map", http.StatusUnprocessableEntity, `{"message":"invalid","errors":{"reason":"required"}}`, KindValidation, map[string]string{"reason": "required"}},
		{"field lists", http.StatusBadRequest, `{"errors":{"amount":["must be positive","too small"]}}`, KindValidation, map[string]string{"amount": "must be positive"}},
		{"details envelope", http.StatusBadRequest, `{"error":{"code":"VALIDATION_ERROR","message":"validation failed","details":[{"field":"zoneId","issue":"unknown zone"}]}}`, KindValidation, map[string]string{"zoneId": "unknown zone"}},
		{"problem", http.StatusConflict, `{"title":"Duplicate","detail":"vendor already approved"}`, KindValidation, nil},
		{"server", http.StatusInternalServerError, `oops`, KindServer, nil},
		{"gateway", http.StatusBadGateway, `{"message":"upstream"}`, KindServer, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := res.Get(context.Background(), "v1")
			require.Error(t, err)
			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.kind, apiErr.Kind)
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, tc.fields, apiErr.FieldErrors)
			assert.NotEmpty(t, apiErr.Message)
		})
	}
}

func TestNetworkErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewClient(Config{BaseURL: url})
	res := NewResource[vendor](client, "vendors", "/admin/vendors", nil)
	_, err := res.Get(context.Background(), "v1")
	assert.Equal(t, KindNetwork, KindOf(err))

	slow := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = slow.Get(ctx, "v1")
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	unconfigured := NewResource[vendor](NewClient(Config{}), "vendors", "/admin/vendors", nil)
	_, err = unconfigured.Get(context.Background(), "v1")
	assert.Equal(t, KindNetwork, KindOf(err))
}

func TestCancelledCallIsNotAnUpstreamFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := &recordingObserver{}
	res := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, WithLogger(logger), WithObserver(obs))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err := res.List(ctx, filters.State{Page: 1, PageSize: 10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	assert.Equal(t, []string{"vendors:" + OutcomeCancelled}, obs.outcomes)
	assert.NotContains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "marketplace api call cancelled")
}

func TestMalformedSuccessBodyIsServerError(t *testing.T) {
	res := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":`))
	})
	_, err := res.Get(context.Background(), "v1")
	assert.Equal(t, KindServer, KindOf(err))
}

func TestActionSendsPayloadTokenAndIdempotencyKey(t *testing.T) {
	res := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/admin/vendors/v 1/approve", r.URL.Path)
		assert.Equal(t, "Bearer admin-token", r.Header.Get("Authorization"))
		assert.Equal(t, "idem-1", r.Header.Get("Idempotency-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ok", body["reason"])
		assert.Equal(t, "Z1", body["zoneId"])
		_, _ = w.Write([]byte(`{"id":"v 1","status":"Approved"}`))
	})
	res = res.WithClient(res.client.WithToken("admin-token"))

	ctx := WithIdempotencyKey(context.Background(), "idem-1")
	result, err := res.Action(ctx, "v 1", "approve", map[string]any{"reason": "ok", "zoneId": "Z1"})
	require.NoError(t, err)
	require.Nil(t, result.Batch)
	var updated vendor
	require.NoError(t, result.Decode(&updated))
	assert.Equal(t, "Approved", updated.Status)
}

func TestActionBatchSummaryAndBulk(t *testing.T) {
	res := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"successful":["a","b"],"failed":["c"]}`))
	})
	result, err := res.Action(context.Background(), "a", "notify", nil)
	require.NoError(t, err)
	require.NotNil(t, result.Batch)
	assert.Equal(t, []string{"a", "b"}, result.Batch.Successful)
	assert.Error(t, result.Decode(&vendor{}))

	batch, err := res.Bulk(context.Background(), "suspend", map[string]any{"ids": []string{"a", "b", "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, batch.Failed)
}

func TestCreateUpdateAndObserver(t *testing.T) {
	obs := &recordingObserver{}
	res := newTestResource(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"v9","name":"Buka"}`))
		case http.MethodPut:
			require.Equal(t, "/admin/vendors/v9", r.URL.Path)
			_, _ = w.Write([]byte(`{"id":"v9","name":"Buka Hut"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}, WithObserver(obs))

	created, err := res.Create(context.Background(), map[string]string{"name": "Buka"})
	require.NoError(t, err)
	assert.Equal(t, "v9", created.ID)

	updated, err := res.Update(context.Background(), "v9", map[string]string{"name": "Buka Hut"})
	require.NoError(t, err)
	assert.Equal(t, "Buka Hut", updated.Name)

	_, err = res.Get(context.Background(), "v9")
	require.Error(t, err)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []string{"vendors:ok", "vendors:ok", "vendors:server"}, obs.outcomes)
}

func TestCurrentAdmin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":"a1","firstName":"Ada","lastName":"Obi"}`))
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	admin, err := client.WithToken("good").CurrentAdmin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ada Obi", admin.FullName())

	_, err = client.WithToken("bad").CurrentAdmin(context.Background())
	assert.True(t, IsUnauthorized(err))
}

func TestProjectSkipsEmptyAndReserved(t *testing.T) {
	q := Project(filters.State{Page: 1, PageSize: 10, Values: map[string]string{"status": "", "zoneId": "Z2"}},
		[]string{"status", "zoneId", "page", "pageNumber"})
	assert.Equal(t, "1", q.Get(ParamPageNumber))
	assert.Equal(t, "Z2", q.Get("zoneId"))
	assert.False(t, q.Has("status"))
	assert.False(t, q.Has(ParamSortOrder), "sort order without sort key is dropped")
}
