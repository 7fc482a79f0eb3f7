package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	require.NoError(t, m.Register(reg))
	require.NoError(t, m.Register(reg), "second register must be a no-op")

	now := time.Now()
	m.Launch("a", ResultSpawned, now)
	m.Launch("a", ResultSpawned, now)
	m.Launch("a", ResultSkipped, now)
	m.ChildExited("a", 1500*time.Millisecond, 3, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.launches.WithLabelValues("a", ResultSpawned)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.launches.WithLabelValues("a", ResultSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.childStderr.WithLabelValues("a")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.childExitCode.WithLabelValues("a")))
	assert.Equal(t, float64(now.Unix()), testutil.ToFloat64(m.lastRun.WithLabelValues("a", ResultSkipped)))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	want := map[string]bool{
		"foxy_launches_total":             false,
		"foxy_child_stderr_total":         false,
		"foxy_child_duration_seconds":     false,
		"foxy_child_exit_code":            false,
		"foxy_last_run_timestamp_seconds": false,
	}
	for _, mf := range mfs {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for n, ok := range want {
		assert.True(t, ok, "expected to find metric %s", n)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Launch("a", ResultFailed, time.Now())
	m.ChildExited("a", time.Second, 0, false)
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	require.NoError(t, m.Register(reg))
	m.Launch("x", ResultSpawned, time.Now())

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	b, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(b), `foxy_launches_total{id="x",result="spawned"} 1`)
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	require.NoError(t, m.Register(reg))
	m.Launch("abc", ResultFailed, time.Now())

	path := filepath.Join(t.TempDir(), TextfilePath("foxy_{id}.prom", "abc"))
	assert.True(t, strings.HasSuffix(path, "foxy_abc.prom"))
	require.NoError(t, WriteTextfile(path, reg))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `foxy_launches_total{id="abc",result="failed"} 1`)
}

func TestConcurrentLaunches(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Launch("c", ResultSpawned, time.Now())
		}()
	}
	wg.Wait()
	assert.Equal(t, 50.0, testutil.ToFloat64(m.launches.WithLabelValues("c", ResultSpawned)))
}

func TestRegisterError(t *testing.T) {
	err := New().Register(&errorRegisterer{err: errors.New("boom")})
	require.Error(t, err)
}

type errorRegisterer struct{ err error }

func (e *errorRegisterer) Register(prometheus.Collector) error  { return e.err }
func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
