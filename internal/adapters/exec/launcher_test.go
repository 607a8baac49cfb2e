package exec

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	osexec "os/exec"
	"os/signal"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passbooklabs/passbook/pkg/ports"
)

const testWorkerEnv = "PASSBOOK_TEST_WORKER"

// TestMain doubles as the worker entrypoint: launcher tests re-exec this
// test binary, which lets the whole fd handshake run for real.
func TestMain(m *testing.M) {
	if os.Getenv(testWorkerEnv) == "1" {
		runTestWorker()
		return
	}
	os.Exit(m.Run())
}

func runTestWorker() {
	params, err := ParamsFromEnv(os.LookupEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "test worker:", err)
		os.Exit(2)
	}
	if params.AppRef == "crash" {
		os.Exit(7)
	}

	ln, err := InheritedListener()
	if err != nil {
		fmt.Fprintln(os.Stderr, "test worker:", err)
		os.Exit(2)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "worker %s", params.ID)
	})}
	go srv.Serve(ln)

	// SIGTERM must be trapped before readiness is signalled: the supervisor
	// may drain at any moment after it sees ready, like the real worker.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM)

	if err := SignalReady(); err != nil {
		fmt.Fprintln(os.Stderr, "test worker:", err)
		os.Exit(2)
	}

	ctx := WatchLifeline(context.Background(), os.Stdin)
	select {
	case <-sig:
	case <-ctx.Done():
	}

	grace := params.GracePeriod
	if grace <= 0 {
		grace = time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	os.Exit(0)
}

func testListener(t *testing.T) *net.TCPListener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return ln.(*net.TCPListener)
}

func newLauncher(t *testing.T) (*Launcher, *net.TCPListener) {
	t.Helper()
	ln := testListener(t)
	return New(ln, os.Args[0], nil, WithEnv(testWorkerEnv+"=1")), ln
}

func waitReady(t *testing.T, h ports.Handle) {
	t.Helper()
	select {
	case <-h.Ready():
	case <-h.Done():
		t.Fatalf("worker exited before ready: %v", h.Err())
	case <-time.After(10 * time.Second):
		t.Fatal("worker never became ready")
	}
}

func waitDone(t *testing.T, h ports.Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("worker never exited")
	}
}

func TestLauncher_SpawnServeAndDrain(t *testing.T) {
	l, ln := newLauncher(t)

	h, err := l.Launch(context.Background(), ports.WorkerSpec{
		ID:          "w-0",
		AppRef:      "echo",
		GracePeriod: 5 * time.Second,
	})
	require.NoError(t, err)
	waitReady(t, h)
	assert.NotEqual(t, os.Getpid(), h.PID())

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "worker w-0", string(body))

	require.NoError(t, h.Drain())
	waitDone(t, h)
	assert.NoError(t, h.Err())
}

func TestLauncher_CrashBeforeReady(t *testing.T) {
	l, _ := newLauncher(t)

	h, err := l.Launch(context.Background(), ports.WorkerSpec{ID: "w-0", AppRef: "crash"})
	require.NoError(t, err)
	waitDone(t, h)

	var exitErr *osexec.ExitError
	require.ErrorAs(t, h.Err(), &exitErr)
	assert.Equal(t, 7, exitErr.ExitCode())

	select {
	case <-h.Ready():
		t.Fatal("crashed worker must never report ready")
	default:
	}
}

func TestLauncher_KillAbandonsWorker(t *testing.T) {
	l, _ := newLauncher(t)

	h, err := l.Launch(context.Background(), ports.WorkerSpec{ID: "w-0", AppRef: "echo"})
	require.NoError(t, err)
	waitReady(t, h)

	require.NoError(t, h.Kill())
	waitDone(t, h)
	assert.Error(t, h.Err())
}

func TestLauncher_CancelledContextRefusesLaunch(t *testing.T) {
	l, _ := newLauncher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Launch(ctx, ports.WorkerSpec{ID: "w-0", AppRef: "echo"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLauncher_Class(t *testing.T) {
	l, _ := newLauncher(t)
	assert.Equal(t, "process", l.Class())
}

func TestParams_EnvRoundTrip(t *testing.T) {
	in := Params{
		ID:          "w-3",
		AppRef:      "analyzer",
		AppOptions:  map[string]any{"format": "hdfc", "cache": map[string]any{"backend": "memory"}},
		GracePeriod: 30 * time.Second,
		MaxInFlight: 1024,
		RateLimit:   12.5,
		RateBurst:   25,
		LogLevel:    "debug",
	}
	kvs, err := in.environ()
	require.NoError(t, err)

	env := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		require.True(t, ok, kv)
		env[k] = v
	}
	out, err := ParamsFromEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParamsFromEnv_RequiresIdentity(t *testing.T) {
	_, err := ParamsFromEnv(func(string) (string, bool) { return "", false })
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvID)
}

func TestWatchLifeline_EOFCancels(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	ctx := WatchLifeline(context.Background(), r)
	select {
	case <-ctx.Done():
		t.Fatal("lifeline cancelled while the write end is still open")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, w.Close())
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("lifeline EOF did not cancel the context")
	}
}
