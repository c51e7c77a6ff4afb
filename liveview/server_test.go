package liveview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/tsconsole/console"
	"github.com/timzifer/tsconsole/nodes"
	"github.com/timzifer/tsconsole/remote"
)

type actionCall struct {
	key    string
	name   string
	values url.Values
}

type consoleStub struct {
	mu        sync.Mutex
	revision  uint64
	clicks    []string
	actions   []actionCall
	actionErr error
	subs      []chan uint64
	archive   []byte
	uploaded  []byte
}

func (c *consoleStub) Tree(context.Context) (nodes.View, error) {
	return nodes.View{
		Key: nodes.RootKey,
		Lists: []nodes.ListView{{
			Class: "main-tabs",
			Kind:  "tab",
			Items: []nodes.View{{Key: "-system", Label: "System", Selected: true, Rows: []nodes.Row{{Name: "Peak Rss", Value: "20"}}}},
		}},
	}, nil
}

func (c *consoleStub) Revision() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revision
}

func (c *consoleStub) Subscribe() (<-chan uint64, func()) {
	ch := make(chan uint64, 1)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch, func() {}
}

func (c *consoleStub) publish(rev uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revision = rev
	for _, ch := range c.subs {
		ch <- rev
	}
}

func (c *consoleStub) subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *consoleStub) Click(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "-missing" {
		return fmt.Errorf("%w: %s", nodes.ErrUnknownNode, key)
	}
	c.clicks = append(c.clicks, key)
	c.revision++
	return nil
}

func (c *consoleStub) Action(_ context.Context, key, name string, values url.Values) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.actionErr != nil {
		return c.actionErr
	}
	c.actions = append(c.actions, actionCall{key: key, name: name, values: values})
	return nil
}

func (c *consoleStub) Actions(key string) []string {
	if key == "-demuxers-1" {
		return []string{"delete", "settings"}
	}
	return nil
}

func (c *consoleStub) DownloadConfiguration(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.archive == nil {
		return nil, remote.ErrUnavailable
	}
	return c.archive, nil
}

func (c *consoleStub) UploadConfiguration(_ context.Context, archive []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !bytes.HasPrefix(archive, []byte("PK")) {
		return fmt.Errorf("%w: not a zip", console.ErrInvalidValue)
	}
	c.uploaded = archive
	c.revision++
	return nil
}

func (c *consoleStub) lastUpload() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploaded
}

func newTestServer(t *testing.T, opts ...Option) (*consoleStub, *httptest.Server) {
	t.Helper()
	stub := &consoleStub{revision: 7}
	srv := httptest.NewServer(New("127.0.0.1:0", stub, opts...).Handler())
	t.Cleanup(srv.Close)
	return stub, srv
}

func decodeBody(t *testing.T, res *http.Response, out any) {
	t.Helper()
	defer res.Body.Close()
	require.NoError(t, json.NewDecoder(res.Body).Decode(out))
}

func TestIndexPage(t *testing.T) {
	_, srv := newTestServer(t)
	res, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "/api/events")
}

func TestTreeEndpoint(t *testing.T) {
	_, srv := newTestServer(t)
	res, err := http.Get(srv.URL + "/api/tree")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var got treeResponse
	decodeBody(t, res, &got)
	require.Equal(t, uint64(7), got.Revision)
	require.Len(t, got.Tree.Lists, 1)
	require.Equal(t, "System", got.Tree.Lists[0].Items[0].Label)
	require.Equal(t, "20", got.Tree.Lists[0].Items[0].Rows[0].Value)
}

func TestToggleEndpoint(t *testing.T) {
	stub, srv := newTestServer(t)
	res, err := http.Post(srv.URL+"/api/nodes/-demuxers-1-programs-100/toggle", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var got revisionMessage
	decodeBody(t, res, &got)
	require.Equal(t, uint64(8), got.Revision)
	require.Equal(t, []string{"-demuxers-1-programs-100"}, stub.clicks)

	res, err = http.Post(srv.URL+"/api/nodes/-missing/toggle", "application/json", nil)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestActionWithJSONValues(t *testing.T) {
	stub, srv := newTestServer(t)
	body := `{"tag":"news","cbr":2800,"flag":true,"set":["1,2,3,4","5,6,7,8"],"empty":null}`
	res, err := http.Post(srv.URL+"/api/nodes/-demuxers-1/actions/settings", "application/json; charset=utf-8", strings.NewReader(body))
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	require.Len(t, stub.actions, 1)
	call := stub.actions[0]
	require.Equal(t, "-demuxers-1", call.key)
	require.Equal(t, "settings", call.name)
	require.Equal(t, "news", call.values.Get("tag"))
	require.Equal(t, "2800", call.values.Get("cbr"))
	require.Equal(t, "true", call.values.Get("flag"))
	require.Equal(t, []string{"1,2,3,4", "5,6,7,8"}, call.values["set"])
	require.Equal(t, "", call.values.Get("empty"))
}

func TestActionWithFormValues(t *testing.T) {
	stub, srv := newTestServer(t)
	res, err := http.PostForm(srv.URL+"/api/nodes/-demuxers-1/actions/settings", url.Values{
		"tag":       {"sports"},
		"input_url": {"udp://239.0.0.1:1234"},
	})
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "udp://239.0.0.1:1234", stub.actions[0].values.Get("input_url"))
}

func TestActionErrorStatus(t *testing.T) {
	cases := []struct {
		err     error
		status  int
		message string
	}{
		{&remote.APIError{Method: "PUT", Path: "/demuxers/1.json", Status: 200, Code: "409", Message: "Error: Busy"}, http.StatusBadGateway, "Error: Busy"},
		{fmt.Errorf("%w: cbr", console.ErrInvalidValue), http.StatusBadRequest, ""},
		{fmt.Errorf("%w: explode", console.ErrUnknownAction), http.StatusNotFound, ""},
		{fmt.Errorf("%w: open", remote.ErrUnavailable), http.StatusServiceUnavailable, ""},
		{errors.New("boom"), http.StatusInternalServerError, "boom"},
	}
	for _, tc := range cases {
		stub, srv := newTestServer(t)
		stub.actionErr = tc.err
		res, err := http.Post(srv.URL+"/api/nodes/-demuxers-1/actions/delete", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		require.Equal(t, tc.status, res.StatusCode, tc.err.Error())
		var got errorResponse
		decodeBody(t, res, &got)
		if tc.message != "" {
			require.Equal(t, tc.message, got.Error)
		}
	}
}

func TestActionRejectsBadJSON(t *testing.T) {
	stub, srv := newTestServer(t)
	res, err := http.Post(srv.URL+"/api/nodes/-demuxers-1/actions/settings", "application/json", strings.NewReader(`{"tag":`))
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Empty(t, stub.actions)
}

func TestListActions(t *testing.T) {
	_, srv := newTestServer(t)
	res, err := http.Get(srv.URL + "/api/nodes/-demuxers-1/actions")
	require.NoError(t, err)
	var names []string
	decodeBody(t, res, &names)
	require.Equal(t, []string{"delete", "settings"}, names)

	res, err = http.Get(srv.URL + "/api/nodes/-system/actions")
	require.NoError(t, err)
	names = nil
	decodeBody(t, res, &names)
	require.NotNil(t, names)
	require.Empty(t, names)
}

func TestMetricsRoute(t *testing.T) {
	_, srv := newTestServer(t)
	res, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	_, srv = newTestServer(t, WithMetrics(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "tsconsole_tree_nodes 3\n")
	})))
	res, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "tsconsole_tree_nodes")
}

func TestEventsStreamRevisions(t *testing.T) {
	stub, srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg revisionMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, uint64(7), msg.Revision)

	require.Eventually(t, func() bool { return stub.subscribers() == 1 }, time.Second, 5*time.Millisecond)
	stub.publish(9)
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, uint64(9), msg.Revision)
}

func TestServeStopsWithContext(t *testing.T) {
	stub := &consoleStub{}
	s := New("127.0.0.1:0", stub)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	var addr string
	select {
	case addr = <-s.Addr():
	case <-time.After(2 * time.Second):
		t.Fatal("live view did not start")
	}
	res, err := http.Get("http://" + addr + "/api/tree")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.Equal(t, "liveview", s.String())
}

const backupArchive = "PK\x03\x04settings"

func TestDownloadConfiguration(t *testing.T) {
	stub, srv := newTestServer(t)

	res, err := http.Get(srv.URL + "/api/configuration.zip")
	require.NoError(t, err)
	var body errorResponse
	decodeBody(t, res, &body)
	require.Equal(t, http.StatusServiceUnavailable, res.StatusCode)

	stub.mu.Lock()
	stub.archive = []byte(backupArchive)
	stub.mu.Unlock()
	res, err = http.Get(srv.URL + "/api/configuration.zip")
	require.NoError(t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "application/zip", res.Header.Get("Content-Type"))
	require.Contains(t, res.Header.Get("Content-Disposition"), `filename=configuration.zip`)
	require.Equal(t, backupArchive, string(raw))
}

func TestUploadConfigurationRawBody(t *testing.T) {
	stub, srv := newTestServer(t)

	res, err := http.Post(srv.URL+"/api/configuration.zip", "application/zip", strings.NewReader(backupArchive))
	require.NoError(t, err)
	var body revisionMessage
	decodeBody(t, res, &body)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, uint64(8), body.Revision)
	require.Equal(t, backupArchive, string(stub.lastUpload()))

	res, err = http.Post(srv.URL+"/api/configuration.zip", "application/zip", strings.NewReader("hello"))
	require.NoError(t, err)
	var failure errorResponse
	decodeBody(t, res, &failure)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestUploadConfigurationMultipart(t *testing.T) {
	stub, srv := newTestServer(t)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "configuration.zip")
	require.NoError(t, err)
	_, err = part.Write([]byte(backupArchive))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	res, err := http.Post(srv.URL+"/api/configuration.zip", form.FormDataContentType(), &buf)
	require.NoError(t, err)
	var body revisionMessage
	decodeBody(t, res, &body)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, backupArchive, string(stub.lastUpload()))

	empty := multipart.NewWriter(&buf)
	require.NoError(t, empty.Close())
	res, err = http.Post(srv.URL+"/api/configuration.zip", empty.FormDataContentType(), &buf)
	require.NoError(t, err)
	var failure errorResponse
	decodeBody(t, res, &failure)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	require.Contains(t, failure.Error, "archive file missing")
}
