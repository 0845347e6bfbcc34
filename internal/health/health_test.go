package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/curtisra-gif/simple-gslb/internal/model"
)

func newEngine(t *testing.T, opts Options) (*Engine, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	e := New(zap.New(core), opts)
	t.Cleanup(e.Close)
	return e, logs
}

func targetFor(t *testing.T, rawURL, protocol, path string) model.Target {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return model.Target{Address: u.Hostname(), Port: port, Protocol: protocol, Path: path}
}

func slowHandler(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(5 * time.Second):
	}
}

func TestVerifyHTTP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e, _ := newEngine(t, Options{Timeout: time.Second})

	for _, tt := range []struct {
		name    string
		path    string
		healthy bool
	}{
		{name: "2xx", path: "/ok", healthy: true},
		{name: "5xx", path: "/fail"},
		{name: "redirect followed", path: "/moved", healthy: true},
		{name: "404", path: "/missing"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Verify(context.Background(), targetFor(t, srv.URL, "http", tt.path))
			assert.Equal(t, tt.healthy, res.Healthy, "err: %v", res.Err)
			assert.False(t, res.Unsupported)
		})
	}
}

func TestVerifyHTTPSSkipsCertificateValidation(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	e, _ := newEngine(t, Options{Timeout: time.Second})

	res := e.Verify(context.Background(), targetFor(t, srv.URL, "HTTPS", ""))
	assert.True(t, res.Healthy, "err: %v", res.Err)
}

func TestVerifyTCP(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	port := l.Addr().(*net.TCPAddr).Port

	e, logs := newEngine(t, Options{Timeout: time.Second})

	res := e.Verify(context.Background(), model.Target{Address: "127.0.0.1", Port: port, Protocol: "tcp"})
	assert.True(t, res.Healthy, "err: %v", res.Err)

	require.NoError(t, l.Close())
	res = e.Verify(context.Background(), model.Target{Address: "127.0.0.1", Port: port, Protocol: "tcp", Location: "us"})
	assert.False(t, res.Healthy)

	entries := logs.FilterMessage("target unhealthy").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "127.0.0.1", fields["address"])
	assert.Equal(t, "tcp", fields["protocol"])
	assert.EqualValues(t, port, fields["port"])
	assert.Equal(t, "/", fields["path"])
	assert.Equal(t, "us", fields["location"])
}

func TestVerifyUnsupportedProtocol(t *testing.T) {
	e, logs := newEngine(t, Options{})

	res := e.Verify(context.Background(), model.Target{Address: "10.0.0.1", Protocol: "icmp"})
	assert.False(t, res.Healthy)
	assert.True(t, res.Unsupported)
	assert.True(t, errors.Is(res.Err, ErrUnsupportedProtocol))
	assert.Less(t, res.Duration, 100*time.Millisecond)

	assert.Equal(t, 1, logs.FilterMessage("unsupported probe protocol, marking target unhealthy").Len())
	assert.Equal(t, 0, logs.FilterMessage("target unhealthy").Len())

	entry := logs.All()[0]
	assert.Equal(t, model.DefaultView, entry.ContextMap()["location"])
}

func TestVerifyMissingAddress(t *testing.T) {
	e, _ := newEngine(t, Options{})

	res := e.Verify(context.Background(), model.Target{Protocol: "tcp"})
	assert.False(t, res.Healthy)
	assert.False(t, res.Unsupported)
}

func TestCheckBoundsHungProbes(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(slowHandler))
	defer slow.Close()
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer fast.Close()

	timeout := 200 * time.Millisecond
	e, _ := newEngine(t, Options{Timeout: timeout})

	targets := []model.Target{
		targetFor(t, slow.URL, "http", "/a"),
		targetFor(t, fast.URL, "http", "/"),
		targetFor(t, slow.URL, "http", "/b"),
		targetFor(t, slow.URL, "http", "/c"),
		targetFor(t, slow.URL, "http", "/d"),
	}

	start := time.Now()
	results := e.Check(context.Background(), targets)
	elapsed := time.Since(start)

	require.Len(t, results, len(targets))
	for i, res := range results {
		assert.Equal(t, targets[i], res.Target, "results keep input order")
		assert.Equal(t, i == 1, res.Healthy)
	}
	// sequential probing would need 4 timeouts
	assert.Less(t, elapsed, 3*timeout)
}

func TestCheckMaxInFlight(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	e, _ := newEngine(t, Options{Timeout: time.Second, MaxInFlight: 2})

	targets := make([]model.Target, 6)
	for i := range targets {
		targets[i] = targetFor(t, srv.URL, "http", "/")
	}

	for _, res := range e.Check(context.Background(), targets) {
		assert.True(t, res.Healthy, "err: %v", res.Err)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestResolve(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ok.Close()

	e, _ := newEngine(t, Options{Timeout: time.Second})

	a := targetFor(t, ok.URL, "http", "/")
	a.Weight = 2
	b := targetFor(t, ok.URL, "http", "/")
	b.Location = "US"
	c := model.Target{Address: "127.0.0.1", Protocol: "gopher", Location: "EU"}

	healthy := e.Resolve(context.Background(), []model.Record{
		{Name: "www", Targets: []model.Target{a, b, c}},
		{Name: "", Targets: []model.Target{a}},
		{Name: "down", Targets: []model.Target{c}},
		{Name: "www", Targets: []model.Target{a}},
	})

	assert.Equal(t, []string{"www", "down"}, healthy.Names())
	assert.Equal(t, []model.Target{a, b, a}, healthy.Targets("www"))
	assert.Empty(t, healthy.Targets("down"))
}
