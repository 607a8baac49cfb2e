package worker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/passbooklabs/passbook/internal/logging"
)

// startRuntime serves h on an ephemeral port and returns the base URL plus a
// cancel that triggers drain. The returned done channel carries Run's result.
func startRuntime(t *testing.T, h http.Handler, maxInFlight int, grace time.Duration) (string, context.CancelFunc, chan error) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ready := make(chan struct{})
	rt, err := NewRuntime(Config{
		Listener:    ln,
		Handler:     h,
		Logger:      logging.NewNop(),
		GracePeriod: grace,
		MaxInFlight: maxInFlight,
		OnReady:     func() { close(ready) },
	})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("runtime never reported ready")
	}
	return "http://" + ln.Addr().String(), cancel, done
}

func TestRuntime_ServesHandler(t *testing.T) {
	url, cancel, done := startRuntime(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "hello")
	}), 8, time.Second)
	defer cancel()

	resp, err := http.Get(url + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK || string(body) != "hello" {
		t.Fatalf("got %d %q, want 200 hello", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("response missing X-Request-ID")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRuntime_SaturationAnswers503(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	url, cancel, done := startRuntime(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		<-release
	}), 1, time.Second)
	defer cancel()

	go http.Get(url + "/slow")
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first request never reached the handler")
	}

	resp, err := http.Get(url + "/rejected")
	if err != nil {
		t.Fatalf("GET while saturated: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("saturated status = %d, want 503", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("503 missing Retry-After")
	}

	close(release)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRuntime_PanicKeepsWorkerAlive(t *testing.T) {
	url, cancel, done := startRuntime(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/panic" {
			panic("pop")
		}
		w.WriteHeader(http.StatusNoContent)
	}), 8, time.Second)
	defer cancel()

	resp, err := http.Get(url + "/panic")
	if err != nil {
		t.Fatalf("GET /panic: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("panic status = %d, want 500", resp.StatusCode)
	}

	resp, err = http.Get(url + "/ok")
	if err != nil {
		t.Fatalf("GET after panic: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status after panic = %d, want 204: worker should survive handler panics", resp.StatusCode)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRuntime_DrainLetsInFlightFinish(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	url, cancel, done := startRuntime(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		fmt.Fprint(w, "finished")
	}), 8, 5*time.Second)

	type result struct {
		status int
		body   string
		err    error
	}
	resCh := make(chan result, 1)
	go func() {
		resp, err := http.Get(url + "/")
		if err != nil {
			resCh <- result{err: err}
			return
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		resCh <- result{status: resp.StatusCode, body: string(body)}
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the handler")
	}

	// Drain starts while the request is still in flight.
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	res := <-resCh
	if res.err != nil {
		t.Fatalf("in-flight request failed during drain: %v", res.err)
	}
	if res.status != http.StatusOK || res.body != "finished" {
		t.Fatalf("in-flight request got %d %q, want 200 finished", res.status, res.body)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after drain: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after drain")
	}
}

func TestRuntime_DrainDeadlineAbandonsWork(t *testing.T) {
	block := make(chan struct{}) // never closed; the handler outlives any grace
	entered := make(chan struct{})

	url, cancel, done := startRuntime(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-block
	}), 8, 50*time.Millisecond)

	clientErr := make(chan error, 1)
	go func() {
		resp, err := http.Get(url + "/stuck")
		if err == nil {
			resp.Body.Close()
		}
		clientErr <- err
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("request never reached the handler")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after forced drain: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run hung past the grace period")
	}

	// The abandoned client observes a failed request, not a silent hang.
	select {
	case err := <-clientErr:
		if err == nil {
			t.Fatal("stuck request succeeded; expected it to be cut at the grace deadline")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned client still waiting after forced drain")
	}
	close(block)
}
