package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ssocolow/zk-hyle/internal/interest"
	"github.com/ssocolow/zk-hyle/internal/upstream"
)

type forwardCall struct {
	path string
	body string
}

type recordingForwarder struct {
	mu     sync.Mutex
	calls  []forwardCall
	result upstream.Result
	err    error
}

func (f *recordingForwarder) Forward(_ context.Context, path string, body json.RawMessage) (upstream.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, forwardCall{path: path, body: string(body)})
	return f.result, f.err
}

func (f *recordingForwarder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newFileStore(t *testing.T) (*interest.Store, *interest.FileBackend) {
	t.Helper()
	backend, err := interest.NewFileBackend(filepath.Join(t.TempDir(), "hashed-interests.json"))
	require.NoError(t, err)
	return interest.NewStore(backend), backend
}

func newTestServer(t *testing.T, forwarder upstream.Forwarder, opts ...Option) *Server {
	t.Helper()
	store, _ := newFileStore(t)
	return NewServer(forwarder, store, opts...)
}

func serve(srv *Server, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rr := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), "body=%s", rr.Body.String())
	require.NotEmpty(t, body.Error)
	return body.Error
}

func TestRootReturnsHelloWorld(t *testing.T) {
	srv := newTestServer(t, &recordingForwarder{})
	rr := serve(srv, http.MethodGet, "/", nil, nil)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "Hello World!", rr.Body.String())
	require.NotEmpty(t, rr.Header().Get(requestIDHeader))
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	srv := newTestServer(t, &recordingForwarder{})
	rr := serve(srv, http.MethodGet, "/nope", nil, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &recordingForwarder{})
	rr := serve(srv, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestCreateMeetupPassesUpstreamResponseThrough(t *testing.T) {
	var gotPath, gotBody string
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"tx":"abc"}`))
	}))
	defer node.Close()

	client, err := upstream.NewClient(node.URL + "/v1")
	require.NoError(t, err)
	srv := newTestServer(t, client)

	rr := serve(srv, http.MethodPost, "/create-meetup", []byte(`{"name":"c1"}`), nil)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.JSONEq(t, `{"tx":"abc"}`, rr.Body.String())
	require.Equal(t, "/v1/contract/register", gotPath)
	require.JSONEq(t, `{"name":"c1"}`, gotBody)
}

func TestRelayRoutesForwardBodyToTheirEndpoint(t *testing.T) {
	cases := []struct {
		route string
		path  string
	}{
		{route: "/create-meetup", path: upstream.PathRegisterContract},
		{route: "/post-root", path: upstream.PathPostRoot},
	}
	for _, tc := range cases {
		t.Run(tc.route, func(t *testing.T) {
			forwarder := &recordingForwarder{result: upstream.Result{StatusCode: http.StatusOK, Body: json.RawMessage(`{"ok":true}`)}}
			srv := newTestServer(t, forwarder)

			body := `{"host":"h","contract_name":"c","interests":["a","b"],"n":1.5}`
			rr := serve(srv, http.MethodPost, tc.route, []byte(body), map[string]string{"Content-Type": "text/plain"})

			require.Equal(t, http.StatusOK, rr.Code)
			require.Equal(t, 1, forwarder.callCount())
			require.Equal(t, tc.path, forwarder.calls[0].path)
			require.JSONEq(t, body, forwarder.calls[0].body)
		})
	}
}

func TestRelayPassesUpstreamErrorStatusThrough(t *testing.T) {
	forwarder := &recordingForwarder{result: upstream.Result{StatusCode: http.StatusBadRequest, Body: json.RawMessage(`{"error":"bad contract","detail":[1]}`)}}
	srv := newTestServer(t, forwarder)

	rr := serve(srv, http.MethodPost, "/post-root", []byte(`{}`), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.JSONEq(t, `{"error":"bad contract","detail":[1]}`, rr.Body.String())
}

func TestRelayRejectsEmptyBody(t *testing.T) {
	for _, route := range []string{"/create-meetup", "/post-root", "/receive-hashed-interests"} {
		forwarder := &recordingForwarder{}
		srv := newTestServer(t, forwarder)

		rr := serve(srv, http.MethodPost, route, nil, nil)
		require.Equal(t, http.StatusBadRequest, rr.Code, route)
		require.Equal(t, "No data provided", decodeError(t, rr))
		require.Zero(t, forwarder.callCount())
	}
}

func TestRelayRejectsMalformedBody(t *testing.T) {
	forwarder := &recordingForwarder{}
	srv := newTestServer(t, forwarder)

	rr := serve(srv, http.MethodPost, "/create-meetup", []byte("not-json"), map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.True(t, strings.HasPrefix(decodeError(t, rr), "Invalid JSON format: "))
	require.Zero(t, forwarder.callCount())
}

func TestPostRootUpstreamUnreachable(t *testing.T) {
	node := httptest.NewServer(http.NotFoundHandler())
	addr := node.URL
	node.Close()

	client, err := upstream.NewClient(addr + "/v1")
	require.NoError(t, err)
	srv := newTestServer(t, client)

	rr := serve(srv, http.MethodPost, "/post-root", []byte(`{"root":"r"}`), nil)
	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.True(t, strings.HasPrefix(decodeError(t, rr), "Failed to connect to Hyle server: "))
}

func TestRelayUnexpectedFailure(t *testing.T) {
	forwarder := &recordingForwarder{err: errors.New("boom")}
	srv := newTestServer(t, forwarder)

	rr := serve(srv, http.MethodPost, "/post-root", []byte(`{}`), nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, "boom", decodeError(t, rr))
}

func TestRelayRejectsGet(t *testing.T) {
	forwarder := &recordingForwarder{}
	srv := newTestServer(t, forwarder)

	rr := serve(srv, http.MethodGet, "/create-meetup", nil, nil)
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	require.Zero(t, forwarder.callCount())
}

func TestMetricsEndpointCountsRelays(t *testing.T) {
	forwarder := &recordingForwarder{result: upstream.Result{StatusCode: http.StatusCreated, Body: json.RawMessage(`{}`)}}
	srv := newTestServer(t, forwarder)
	routes := srv.Routes()

	req := httptest.NewRequest(http.MethodPost, "/create-meetup", strings.NewReader(`{"name":"c1"}`))
	routes.ServeHTTP(httptest.NewRecorder(), req)

	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `gateway_relay_requests_total{code="201",route="create-meetup"} 1`)
}

func oversizeJSON() []byte {
	body := []byte(`{"root":"`)
	body = append(body, bytes.Repeat([]byte("0"), maxRequestBytes)...)
	return append(body, `"}`...)
}

func TestRelayRejectsOversizeBody(t *testing.T) {
	forwarder := &recordingForwarder{result: upstream.Result{StatusCode: http.StatusOK, Body: json.RawMessage(`{}`)}}
	srv := newTestServer(t, forwarder)
	routes := srv.Routes()

	rr := httptest.NewRecorder()
	routes.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/post-root", bytes.NewReader(oversizeJSON())))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, decodeError(t, rr), "Request body exceeds")
	require.Zero(t, forwarder.callCount())

	metrics := httptest.NewRecorder()
	routes.ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, metrics.Body.String(), `gateway_relay_requests_total{code="413",route="post-root"} 1`)
	require.NotContains(t, metrics.Body.String(), `gateway_relay_requests_total{code="400",route="post-root"}`)
}

func TestRelayForwardsBodyAtLimitUnchanged(t *testing.T) {
	forwarder := &recordingForwarder{result: upstream.Result{StatusCode: http.StatusOK, Body: json.RawMessage(`{}`)}}
	srv := newTestServer(t, forwarder)

	body := append([]byte("1"), bytes.Repeat([]byte("0"), maxRequestBytes-1)...)
	rr := serve(srv, http.MethodPost, "/post-root", body, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, forwarder.callCount())
	require.Equal(t, string(body), forwarder.calls[0].body)
}

func TestInterestRouteRejectsOversizeBody(t *testing.T) {
	srv := newTestServer(t, &recordingForwarder{})
	rr := serve(srv, http.MethodPost, "/receive-hashed-interests", oversizeJSON(), nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestRelayReportsOversizeUpstreamResponse(t *testing.T) {
	forwarder := &recordingForwarder{err: fmt.Errorf("%w: status 200", upstream.ErrResponseTooLarge)}
	srv := newTestServer(t, forwarder)

	rr := serve(srv, http.MethodPost, "/post-root", []byte(`{}`), nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, decodeError(t, rr), "upstream response exceeds")
}
