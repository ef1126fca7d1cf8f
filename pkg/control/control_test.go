package control

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/restinthemiddle/wrapperserver/pkg/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeTarget is an in-memory controller.
type fakeTarget struct {
	active   atomic.Bool
	initOK   bool
	initRuns atomic.Int32
}

func (f *fakeTarget) Init() bool {
	f.initRuns.Add(1)
	if f.initOK {
		f.active.Store(true)
	}
	return f.active.Load()
}

func (f *fakeTarget) Shutdown() bool {
	f.active.Store(false)
	return true
}

func (f *fakeTarget) IsActive() bool { return f.active.Load() }

func (f *fakeTarget) Port() int { return 18080 }

func serve(t *testing.T, target Target, opts Options) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewRouter(target, opts))
	t.Cleanup(ts.Close)
	return ts
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRouter_Init(t *testing.T) {
	target := &fakeTarget{initOK: true}
	ts := serve(t, target, Options{})

	resp, err := http.Post(ts.URL+"/init", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	body := decode[OperationResponse](t, resp)
	assert.Equal(t, OperationResponse{Operation: "init", OK: true, Active: true, Port: 18080}, body)
}

func TestRouter_InitFailure(t *testing.T) {
	target := &fakeTarget{initOK: false}
	ts := serve(t, target, Options{})

	resp, err := http.Post(ts.URL+"/init", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body := decode[OperationResponse](t, resp)
	assert.False(t, body.OK)
	assert.False(t, body.Active)
}

func TestRouter_ShutdownAndStatus(t *testing.T) {
	target := &fakeTarget{initOK: true}
	target.active.Store(true)
	ts := serve(t, target, Options{})

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	assert.Equal(t, StatusResponse{Active: true, Port: 18080}, decode[StatusResponse](t, resp))

	resp, err = http.Post(ts.URL+"/shutdown", "", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, OperationResponse{Operation: "shutdown", OK: true, Active: false, Port: 18080}, decode[OperationResponse](t, resp))

	resp, err = http.Get(ts.URL + "/status")
	require.NoError(t, err)
	assert.False(t, decode[StatusResponse](t, resp).Active)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	target := &fakeTarget{initOK: true}
	ts := serve(t, target, Options{})

	resp, err := http.Get(ts.URL + "/init")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Zero(t, target.initRuns.Load(), "GET must not trigger init")
}

func TestRouter_Readiness(t *testing.T) {
	target := &fakeTarget{initOK: true}
	ts := serve(t, target, Options{})

	resp, err := http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	target.Init()

	resp, err = http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_RequestID(t *testing.T) {
	ts := serve(t, &fakeTarget{}, Options{SetRequestID: true})

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Len(t, resp.Header.Get(RequestIDHeader), 36, "expected a generated UUID")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/status", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "harness-42")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "harness-42", resp.Header.Get(RequestIDHeader))
}

func TestRouter_RecoversRequestIDPanic(t *testing.T) {
	orig := newRequestID
	newRequestID = func() string { panic("entropy exhausted") }
	t.Cleanup(func() { newRequestID = orig })

	ts := serve(t, &fakeTarget{}, Options{SetRequestID: true})

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err, "the panic must become a response, not a dropped connection")
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRouter_RequestIDDisabled(t *testing.T) {
	ts := serve(t, &fakeTarget{}, Options{SetRequestID: false})

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get(RequestIDHeader))
}

func TestRouter_Metrics(t *testing.T) {
	ts := serve(t, &fakeTarget{}, Options{MetricsEnabled: true})

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `wrapper_control_requests_total{method="GET",route="/status",status_code="200"}`)
}

func TestRouter_MetricsDisabled(t *testing.T) {
	ts := serve(t, &fakeTarget{}, Options{})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_LogsRequests(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ts := serve(t, &fakeTarget{}, Options{Logger: zap.New(core), SetRequestID: true})

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	resp.Body.Close()

	entries := recorded.FilterMessage("control request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/status", fields["request"])
	assert.EqualValues(t, http.StatusOK, fields["status"])
	assert.NotEmpty(t, fields["request_id"])
}

// overlapTarget records how many lifecycle calls run at once.
type overlapTarget struct {
	fakeTarget
	inFlight   atomic.Int32
	maxOverlap atomic.Int32
}

func (o *overlapTarget) enter() func() {
	n := o.inFlight.Add(1)
	for {
		m := o.maxOverlap.Load()
		if n <= m || o.maxOverlap.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return func() { o.inFlight.Add(-1) }
}

func (o *overlapTarget) Init() bool {
	defer o.enter()()
	return o.fakeTarget.Init()
}

func (o *overlapTarget) Shutdown() bool {
	defer o.enter()()
	return o.fakeTarget.Shutdown()
}

// postConcurrently releases n POSTs to path at once and returns their status codes.
func postConcurrently(t *testing.T, url string, n int) []int {
	t.Helper()
	start := make(chan struct{})
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			resp, err := http.Post(url, "", nil)
			if err != nil {
				t.Errorf("POST %s: %v", url, err)
				return
			}
			resp.Body.Close()
			codes[i] = resp.StatusCode
		}(i)
	}
	close(start)
	wg.Wait()
	return codes
}

func TestRouter_SerializesLifecycleCalls(t *testing.T) {
	target := &overlapTarget{fakeTarget: fakeTarget{initOK: true}}
	ts := serve(t, target, Options{})

	postConcurrently(t, ts.URL+"/init", 8)
	postConcurrently(t, ts.URL+"/shutdown", 8)

	assert.EqualValues(t, 1, target.maxOverlap.Load(), "init and shutdown must never overlap")
}

func TestRouter_ConcurrentInitAllSucceed(t *testing.T) {
	for round := 0; round < 20; round++ {
		srv, err := lifecycle.New(0, lifecycle.WithHost("127.0.0.1"))
		require.NoError(t, err)
		ts := httptest.NewServer(NewRouter(srv, Options{}))

		for i, code := range postConcurrently(t, ts.URL+"/init", 8) {
			assert.Equal(t, http.StatusOK, code, "round %d request %d", round, i)
		}
		assert.True(t, srv.IsActive())

		ts.Close()
		srv.Shutdown()
	}
}

func TestClient_AgainstLifecycleServer(t *testing.T) {
	srv, err := lifecycle.New(0, lifecycle.WithHost("127.0.0.1"))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Shutdown() })
	addr := srv.Addr().String()

	ts := serve(t, srv, Options{})
	client := NewClient(ts.URL+"/", nil)
	ctx := context.Background()

	active, err := client.IsActive(ctx)
	require.NoError(t, err)
	assert.False(t, active)

	ok, err := client.Init(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, client.WaitForState(ctx, true))

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	conn.Close()

	ok, err = client.Shutdown(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, client.WaitForState(ctx, false))

	ok, err = client.Shutdown(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "second shutdown must still succeed")

	ok, err = client.Init(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "a released handle cannot be initialized again")
}

func TestClient_Controller(t *testing.T) {
	target := &fakeTarget{initOK: true}
	ts := serve(t, target, Options{})

	var ctrl lifecycle.Controller = NewClient(ts.URL, nil).Controller(time.Second)

	assert.False(t, ctrl.IsActive())
	assert.True(t, ctrl.Init())
	assert.True(t, ctrl.IsActive())
	assert.True(t, ctrl.Shutdown())
	assert.False(t, ctrl.IsActive())
}

func TestClient_UnreachableReadsFalse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	url := "http://" + l.Addr().String()
	l.Close()

	ctrl := NewClient(url, nil).Controller(200 * time.Millisecond)
	assert.False(t, ctrl.Init())
	assert.False(t, ctrl.Shutdown())
	assert.False(t, ctrl.IsActive())
}

func TestClient_UnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, nil).IsActive(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestClient_WaitForStateHonoursContext(t *testing.T) {
	ts := serve(t, &fakeTarget{}, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := NewClient(ts.URL, nil).WaitForState(ctx, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
