package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/indigoray/civitai-downloader/pkg/items"
	"github.com/indigoray/civitai-downloader/pkg/ratelimit"
)

func newTestWorker() *Worker {
	return NewWorker(WorkerConfig{
		Throttle:         ratelimit.Throttle{Min: time.Millisecond, Max: 2 * time.Millisecond},
		RateLimitBackoff: ratelimit.LinearBackoff{Step: time.Millisecond, MaxAttempts: 3},
		NetworkBackoff:   time.Millisecond,
	})
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDownload_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("image-bytes"))
	}))
	defer server.Close()

	dir := t.TempDir()
	it := items.Item{ID: 1, RemoteRef: server.URL + "/pic.png", DisplayName: "pic"}

	worker := newTestWorker()
	if got := worker.Download(context.Background(), it, dir); got != ResultSuccess {
		t.Fatalf("Download() = %v, want ResultSuccess", got)
	}

	data, err := os.ReadFile(filepath.Join(dir, "pic_1.png"))
	if err != nil {
		t.Fatalf("Expected file on disk: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Errorf("File content = %q", data)
	}
}

func TestDownload_AlreadyPresentSkipsNetwork(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("fresh"))
	}))
	defer server.Close()

	dir := t.TempDir()
	it := items.Item{ID: 2, RemoteRef: server.URL + "/pic.png", DisplayName: "pic"}
	mustWriteFile(t, filepath.Join(dir, "pic_2.png"), "existing")

	worker := newTestWorker()
	if got := worker.Download(context.Background(), it, dir); got != ResultAlreadyPresent {
		t.Fatalf("Download() = %v, want ResultAlreadyPresent", got)
	}
	if n := requests.Load(); n != 0 {
		t.Errorf("Made %d requests, want 0", n)
	}
}

func TestDownload_ReconcileRenamesPriorFile(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte("fresh"))
	}))
	defer server.Close()

	dir := t.TempDir()
	it := items.Item{ID: 3, RemoteRef: server.URL + "/pic.png", DisplayName: "pic"}

	// Same identity, earlier naming scheme.
	old := filepath.Join(dir, "oldname_3.png")
	mustWriteFile(t, old, "prior-download")

	worker := newTestWorker()
	if got := worker.Download(context.Background(), it, dir); got != ResultAlreadyPresent {
		t.Fatalf("Download() = %v, want ResultAlreadyPresent", got)
	}
	if n := requests.Load(); n != 0 {
		t.Errorf("Made %d requests, want 0", n)
	}

	data, err := os.ReadFile(filepath.Join(dir, "pic_3.png"))
	if err != nil {
		t.Fatalf("Expected renamed file at target: %v", err)
	}
	if string(data) != "prior-download" {
		t.Errorf("Renamed file content = %q", data)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("Old file should have been moved away")
	}
}

func TestDownload_ReconcileDeletesRedundantDuplicate(t *testing.T) {
	dir := t.TempDir()
	it := items.Item{ID: 4, RemoteRef: "https://unused.invalid/pic.png", DisplayName: "pic"}

	mustWriteFile(t, filepath.Join(dir, "pic_4.png"), "valid-target")
	stale := filepath.Join(dir, "stale_4.png")
	mustWriteFile(t, stale, "leftover")

	worker := newTestWorker()
	if got := worker.Download(context.Background(), it, dir); got != ResultAlreadyPresent {
		t.Fatalf("Download() = %v, want ResultAlreadyPresent", got)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("Stale duplicate should have been deleted")
	}
}

func TestDownload_RateLimitBoundedByAttempts(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	dir := t.TempDir()
	it := items.Item{ID: 5, RemoteRef: server.URL + "/pic.png", DisplayName: "pic"}

	worker := newTestWorker()
	if got := worker.Download(context.Background(), it, dir); got != ResultFailed {
		t.Fatalf("Download() = %v, want ResultFailed", got)
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("Made %d requests, want 3 (attempt budget)", n)
	}
}

func TestDownload_EmptyBodyRetried(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			return // 200 with empty body
		}
		w.Write([]byte("second-try"))
	}))
	defer server.Close()

	dir := t.TempDir()
	it := items.Item{ID: 6, RemoteRef: server.URL + "/pic.png", DisplayName: "pic"}

	worker := newTestWorker()
	if got := worker.Download(context.Background(), it, dir); got != ResultSuccess {
		t.Fatalf("Download() = %v, want ResultSuccess", got)
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("Made %d requests, want 2", n)
	}

	data, err := os.ReadFile(filepath.Join(dir, "pic_6.png"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second-try" {
		t.Errorf("File content = %q", data)
	}
}

func TestDownload_TruncatedTransferDiscardedAndRetried(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			// Advertise more bytes than sent, then drop the connection so
			// the client sees a mid-body transport error.
			w.Header().Set("Content-Length", "1000")
			w.Write([]byte("truncated!"))
			if hj, ok := w.(http.Hijacker); ok {
				conn, _, _ := hj.Hijack()
				conn.Close()
			}
			return
		}
		w.Write([]byte("complete-content"))
	}))
	defer server.Close()

	dir := t.TempDir()
	it := items.Item{ID: 11, RemoteRef: server.URL + "/pic.png", DisplayName: "pic"}

	worker := newTestWorker()
	if got := worker.Download(context.Background(), it, dir); got != ResultSuccess {
		t.Fatalf("Download() = %v, want ResultSuccess", got)
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("Made %d requests, want 2 (partial file must not satisfy the retry)", n)
	}

	data, err := os.ReadFile(filepath.Join(dir, "pic_11.png"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "complete-content" {
		t.Errorf("File content = %q, want the full second transfer", data)
	}
}

func TestDownload_FallbackURLOnRejectedCanonical(t *testing.T) {
	var canonicalHits, fallbackHits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/original=true/pic.png":
			canonicalHits.Add(1)
			w.WriteHeader(http.StatusNotFound)
		case "/files/width=450/pic.png":
			fallbackHits.Add(1)
			w.Write([]byte("reduced-res"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	it := items.Item{ID: 8, RemoteRef: server.URL + "/files/width=450/pic.png", DisplayName: "pic"}

	worker := newTestWorker()
	if got := worker.Download(context.Background(), it, dir); got != ResultSuccess {
		t.Fatalf("Download() = %v, want ResultSuccess", got)
	}
	if canonicalHits.Load() != 1 || fallbackHits.Load() != 1 {
		t.Errorf("canonical hits = %d, fallback hits = %d; want 1 and 1",
			canonicalHits.Load(), fallbackHits.Load())
	}

	data, err := os.ReadFile(filepath.Join(dir, "pic_8.png"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "reduced-res" {
		t.Errorf("File content = %q", data)
	}
}

func TestDownload_MissingRemoteRefFails(t *testing.T) {
	worker := newTestWorker()
	if got := worker.Download(context.Background(), items.Item{ID: 9}, t.TempDir()); got != ResultFailed {
		t.Errorf("Download() = %v, want ResultFailed", got)
	}
}

func TestDownload_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := t.TempDir()
	it := items.Item{ID: 10, RemoteRef: "https://unused.invalid/pic.png", DisplayName: "pic"}

	worker := newTestWorker()
	if got := worker.Download(ctx, it, dir); got != ResultFailed {
		t.Errorf("Download() = %v, want ResultFailed", got)
	}
}
