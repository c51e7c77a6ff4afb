package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/tsconsole/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*config.Config)) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := &config.Config{Server: config.ServerConfig{URL: srv.URL, RateLimit: 1000, Burst: 100}}
	for _, fn := range mutate {
		fn(cfg)
	}
	client, err := NewHTTPClient(cfg)
	require.NoError(t, err)
	return client
}

func TestGetDecodesEnvelopeData(t *testing.T) {
	var gotPath, gotRequestID string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRequestID = r.Header.Get(requestIDHeader)
		_, _ = io.WriteString(w, `{"code":200,"status":"OK","message":"","data":{"maxrss":2048,"currss":1024}}`)
	})

	var out struct {
		MaxRSS float64 `json:"maxrss"`
		CurRSS float64 `json:"currss"`
	}
	require.NoError(t, client.Get(context.Background(), "/stats/rss_stats.json", &out))
	require.Equal(t, "/api/1.0/stats/rss_stats.json", gotPath)
	require.NotEmpty(t, gotRequestID)
	require.Equal(t, 2048.0, out.MaxRSS)
	require.Equal(t, 1024.0, out.CurRSS)
}

func TestPutSendsQueryAndBody(t *testing.T) {
	var gotQuery url.Values
	var gotBody, gotType string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotQuery = r.URL.Query()
		gotType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		_, _ = io.WriteString(w, `{"code":"200","status":"OK","message":""}`)
	})

	query := url.Values{"tag": {"news"}, "input_url": {"udp://239.0.0.1:2000"}}
	require.NoError(t, client.Put(context.Background(), "/demuxers/0.json", query, nil))
	require.Equal(t, "news", gotQuery.Get("tag"))
	require.Equal(t, "udp://239.0.0.1:2000", gotQuery.Get("input_url"))
	require.Empty(t, gotBody)
	require.Empty(t, gotType)

	body := map[string]any{"services": []map[string]any{{"id": 1}}}
	require.NoError(t, client.Put(context.Background(), "/demuxers/0.json", nil, body))
	require.JSONEq(t, `{"services":[{"id":1}]}`, gotBody)
	require.Equal(t, "application/json", gotType)
}

func TestCreatedIsOnlyAcceptedForPost(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":"201","status":"Created","message":""}`)
	})

	require.NoError(t, client.Post(context.Background(), "/stream_procs.json", url.Values{"proc_name": {"mpeg2_sp"}}))

	err := client.Put(context.Background(), "/demuxers/0.json", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "201", apiErr.Code)
	require.Equal(t, "Error: Created.", apiErr.Message)
}

func TestFailureEnvelopeMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"code":"409","status":"Conflict","message":"Output URL already in use"}`)
	})

	err := client.Put(context.Background(), "/demuxers/0/program_processors/256.json", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.Status)
	require.Equal(t, "Error: Output URL already in use", apiErr.Message)
	require.Contains(t, err.Error(), "PUT /demuxers/0/program_processors/256.json")
}

func TestDeleteAcceptsMissingResource(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		_, _ = io.WriteString(w, `{"code":"404","status":"Not Found","message":""}`)
	})
	require.NoError(t, client.Delete(context.Background(), "/demuxers/3.json"))
}

func TestDeleteAcceptsNotFoundStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, "404 page not found")
	})
	require.NoError(t, client.Delete(context.Background(), "/demuxers/3.json"))

	emptyBody := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	require.NoError(t, emptyBody.Delete(context.Background(), "/demuxers/3.json"))

	err := emptyBody.Put(context.Background(), "/demuxers/3.json", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestDownloadReturnsRawArchive(t *testing.T) {
	archive := []byte("PK\x03\x04settings")
	var gotPath, gotAccept string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write(archive)
	})

	got, err := client.Download(context.Background(), "/download/configuration.zip")
	require.NoError(t, err)
	require.Equal(t, archive, got)
	require.Equal(t, "/api/1.0/download/configuration.zip", gotPath)
	require.Contains(t, gotAccept, "application/zip")
}

func TestDownloadReportsFailureEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"code":"500","status":"Internal Server Error","message":"cannot pack settings"}`)
	})

	_, err := client.Download(context.Background(), "/download/configuration.zip")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "Error: cannot pack settings", apiErr.Message)
}

func TestUploadSendsRawBody(t *testing.T) {
	var gotMethod, gotType string
	var gotBody []byte
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"code":"200","status":"OK","message":""}`)
	})

	archive := []byte("PK\x03\x04settings")
	require.NoError(t, client.Upload(context.Background(), "/upload/configuration.zip", "application/zip", archive))
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "application/zip", gotType)
	require.Equal(t, archive, gotBody)

	require.Error(t, client.Upload(context.Background(), "/upload/configuration.zip", "", nil))
}

func TestBreakerOpensAfterServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, func(cfg *config.Config) {
		cfg.Server.Breaker = config.BreakerConfig{MaxFailures: 2, Timeout: config.Duration{Duration: time.Minute}}
	})

	for i := 0; i < 2; i++ {
		err := client.Get(context.Background(), "/stream_procs.json", nil)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, "Error: Internal Server Error.", apiErr.Message)
	}

	err := client.Get(context.Background(), "/stream_procs.json", nil)
	require.True(t, errors.Is(err, ErrUnavailable), "got %v", err)
	require.Equal(t, int32(2), calls.Load())
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"code":"400","status":"Bad Request","message":""}`)
	}, func(cfg *config.Config) {
		cfg.Server.Breaker = config.BreakerConfig{MaxFailures: 1}
	})

	for i := 0; i < 3; i++ {
		err := client.Put(context.Background(), "/demuxers/0.json", nil, nil)
		require.False(t, errors.Is(err, ErrUnavailable))
		require.Error(t, err)
	}
}

func TestNewHTTPClientRequiresURL(t *testing.T) {
	_, err := NewHTTPClient(&config.Config{})
	require.Error(t, err)
	_, err = NewHTTPClient(nil)
	require.Error(t, err)
}

func TestResourcePath(t *testing.T) {
	cases := map[string]string{
		"/demuxers/0.json":                         "/demuxers/0.json",
		"127.0.0.1:8088/api/1.0/stream_procs.json": "/stream_procs.json",
		"http://tsp.local/api/1.0/demuxers/1.json": "/demuxers/1.json",
		"tsp.local/system.json":                    "/system.json",
		"/api/1.0/demuxers/1/programs/256.json":    "/demuxers/1/programs/256.json",
	}
	for href, want := range cases {
		require.Equal(t, want, ResourcePath(href, "/api/1.0"), href)
	}
}
