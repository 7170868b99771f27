package syncclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckConnectionTrueOnOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			t.Errorf("missing or wrong API key header")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", "folder1")
	if !c.CheckConnection(context.Background()) {
		t.Error("expected CheckConnection to return true")
	}
}

func TestCheckConnectionFalseWhenUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", "secret", "folder1", WithTimeout(200*time.Millisecond))
	if c.CheckConnection(context.Background()) {
		t.Error("expected CheckConnection to return false for unreachable daemon")
	}
}

func TestGetFolderStatusDecodesAndClassifies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(FolderStatus{State: "idle", NeedFiles: 0, Errors: 0})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", "folder1")
	status, err := c.GetFolderStatus(context.Background())
	if err != nil {
		t.Fatalf("GetFolderStatus: %v", err)
	}
	if !status.IsSynced() {
		t.Error("expected status to be synced")
	}
	if status.IsSyncing() {
		t.Error("expected status to not be syncing")
	}
}

func TestFolderStatusIsSyncingMatchesAllSyncingStates(t *testing.T) {
	for _, state := range []string{"syncing", "sync-preparing", "sync-waiting"} {
		s := FolderStatus{State: state}
		if !s.IsSyncing() {
			t.Errorf("state %q: expected IsSyncing true", state)
		}
		if s.IsSynced() {
			t.Errorf("state %q: expected IsSynced false", state)
		}
	}
}

func TestFolderStatusNotSyncedWhileBytesOutstanding(t *testing.T) {
	// needFiles already drained but bytes are still streaming: not synced,
	// even though the daemon reports state=syncing.
	s := FolderStatus{State: "syncing", NeedFiles: 0, NeedBytes: 50000000}
	if s.IsSynced() {
		t.Error("expected IsSynced false while NeedBytes > 0")
	}
	if !s.IsSyncing() {
		t.Error("expected IsSyncing true for state=syncing")
	}
}

func TestFolderStatusHasErrorsIncludesPullErrors(t *testing.T) {
	s := FolderStatus{State: "idle", PullErrors: 2}
	if !s.HasErrors() {
		t.Error("expected HasErrors true when PullErrors > 0")
	}
	// IsSynced and HasErrors are independent predicates per spec.md:42;
	// callers must check both, since a folder can be idle/converged on
	// the files it has while still flagging pull errors from earlier.
	if !s.IsSynced() {
		t.Error("expected IsSynced true for idle/0/0 regardless of PullErrors")
	}
}

func TestGetFolderStatusNonOKReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", "folder1")
	_, err := c.GetFolderStatus(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *Error
	if !asError(err, &apiErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", apiErr.StatusCode)
	}
}

func TestPauseResumeFolderIdempotent(t *testing.T) {
	paused := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": "folder1", "paused": paused},
			})
		case http.MethodPut:
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			paused, _ = body["paused"].(bool)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", "folder1")
	if err := c.PauseFolder(context.Background()); err != nil {
		t.Fatalf("PauseFolder: %v", err)
	}
	if !paused {
		t.Error("expected folder to be paused")
	}
	if err := c.PauseFolder(context.Background()); err != nil {
		t.Fatalf("second PauseFolder (idempotent): %v", err)
	}
	if err := c.ResumeFolder(context.Background()); err != nil {
		t.Fatalf("ResumeFolder: %v", err)
	}
	if paused {
		t.Error("expected folder to be resumed")
	}
}

func TestWaitForSyncTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(FolderStatus{State: "syncing", NeedFiles: 5})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", "folder1")
	err := c.WaitForSync(context.Background(), 50*time.Millisecond, 10*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestWaitForSyncSucceedsOnceSynced(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			_ = json.NewEncoder(w).Encode(FolderStatus{State: "syncing", NeedFiles: 2})
			return
		}
		_ = json.NewEncoder(w).Encode(FolderStatus{State: "idle", NeedFiles: 0})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", "folder1")
	err := c.WaitForSync(context.Background(), time.Second, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForSync: %v", err)
	}
}

func TestWaitForSyncAbortsOnPullErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(FolderStatus{State: "syncing", NeedFiles: 3, PullErrors: 1})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", "folder1")
	start := time.Now()
	err := c.WaitForSync(context.Background(), time.Second, 5*time.Millisecond)
	if err == nil {
		t.Fatal("expected WaitForSync to abort on pull errors")
	}
	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Errorf("expected WaitForSync to abort well before the 1s timeout, took %s", elapsed)
	}
}

func TestTriggerScanPosts(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", "folder1")
	if err := c.TriggerScan(context.Background()); err != nil {
		t.Fatalf("TriggerScan: %v", err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
}

func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if ok {
		*target = e
	}
	return ok
}
