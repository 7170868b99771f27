// Package syncclient talks to the external sync daemon's REST API
// (Syncthing-compatible: X-API-Key header, /rest/... endpoints) to
// check connectivity, inspect and pause/resume the game-world folder,
// wait for a sync round to converge, and force an out-of-schedule
// rescan. It never touches the replicated lock file or world data
// itself — that is internal/lock's and internal/snapshot's job.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds every single HTTP round trip to the daemon.
const DefaultTimeout = 10 * time.Second

// Unavailable indicates the daemon could not be reached at all
// (connection refused, DNS failure, timeout) as opposed to the daemon
// responding with an application-level error, per spec.md §7's error
// taxonomy. The orchestrator's startup checks treat both kinds alike,
// with an operator prompt.
type Unavailable struct {
	Op  string
	Err error
}

func (e *Unavailable) Error() string {
	return fmt.Sprintf("syncclient: %s: daemon unavailable: %v", e.Op, e.Err)
}

func (e *Unavailable) Unwrap() error { return e.Err }

// Error wraps a daemon response that was received but indicates
// failure (non-2xx status, or a well-formed response the daemon
// itself marked as an error).
type Error struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("syncclient: %s: daemon returned status %d: %s", e.Op, e.StatusCode, e.Body)
}

// FolderStatus mirrors the subset of /rest/db/status this coordinator
// cares about.
type FolderStatus struct {
	State        string `json:"state"`
	NeedFiles    int    `json:"needFiles"`
	NeedBytes    int64  `json:"needBytes"`
	Errors       int    `json:"errors"`
	PullErrors   int    `json:"pullErrors"`
	GlobalBytes  int64  `json:"globalBytes"`
	InSyncBytes  int64  `json:"inSyncBytes"`
	SyncPriority string `json:"-"`
}

// IsSynced reports whether the folder has fully converged: idle, with
// nothing left to pull.
func (s FolderStatus) IsSynced() bool {
	return s.State == "idle" && s.NeedBytes == 0 && s.NeedFiles == 0
}

// IsSyncing reports whether a sync round is actively in progress or
// about to be.
func (s FolderStatus) IsSyncing() bool {
	return s.State == "syncing" || s.State == "sync-preparing" || s.State == "sync-waiting"
}

// HasErrors reports whether the daemon recorded errors for this folder,
// scan-level or pull-level.
func (s FolderStatus) HasErrors() bool {
	return s.Errors > 0 || s.PullErrors > 0
}

// Client is a small REST client for one folder on one sync daemon
// instance.
type Client struct {
	baseURL    string
	apiKey     string
	folderID   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides DefaultTimeout for every request this client
// issues.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient swaps in a caller-provided *http.Client, e.g. for
// tests with a fake transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New constructs a Client for the given daemon base URL, API key, and
// folder ID.
func New(baseURL, apiKey, folderID string, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		folderID: folderID,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) request(ctx context.Context, op, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("syncclient: %s: build request: %w", op, err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Unavailable{Op: op, Err: err}
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, out interface{}) error {
	resp, err := c.request(ctx, op, method, path)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &Error{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("syncclient: %s: decode response: %w", op, err)
	}
	return nil
}

// CheckConnection reports whether the daemon is reachable and
// responding at all, via /rest/system/status. It does not return
// *Unavailable on failure; it simply returns false.
func (c *Client) CheckConnection(ctx context.Context) bool {
	err := c.do(ctx, "check_connection", http.MethodGet, "/rest/system/status", nil)
	return err == nil
}

// GetFolderStatus fetches current sync status for the configured
// folder.
func (c *Client) GetFolderStatus(ctx context.Context) (*FolderStatus, error) {
	var status FolderStatus
	path := fmt.Sprintf("/rest/db/status?folder=%s", c.folderID)
	if err := c.do(ctx, "get_folder_status", http.MethodGet, path, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetFolderConfig fetches the raw folder configuration, including
// whether it is currently paused.
func (c *Client) GetFolderConfig(ctx context.Context) (map[string]interface{}, error) {
	var folders []map[string]interface{}
	if err := c.do(ctx, "get_folder_config", http.MethodGet, "/rest/config/folders", &folders); err != nil {
		return nil, err
	}
	for _, f := range folders {
		if id, ok := f["id"].(string); ok && id == c.folderID {
			return f, nil
		}
	}
	return nil, &Error{Op: "get_folder_config", StatusCode: http.StatusNotFound, Body: "folder not found in config"}
}

// IsFolderPaused reports whether the configured folder is currently
// paused.
func (c *Client) IsFolderPaused(ctx context.Context) (bool, error) {
	cfg, err := c.GetFolderConfig(ctx)
	if err != nil {
		return false, err
	}
	paused, _ := cfg["paused"].(bool)
	return paused, nil
}

func (c *Client) setPaused(ctx context.Context, op string, paused bool) error {
	cfg, err := c.GetFolderConfig(ctx)
	if err != nil {
		return err
	}
	if current, ok := cfg["paused"].(bool); ok && current == paused {
		return nil // already at target: no PUT needed
	}
	cfg["paused"] = paused
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("syncclient: %s: marshal config: %w", op, err)
	}

	url := fmt.Sprintf("%s/rest/config/folders/%s", c.baseURL, c.folderID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("syncclient: %s: build request: %w", op, err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Unavailable{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return &Error{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}

// PauseFolder pauses replication for the configured folder. Idempotent:
// pausing an already-paused folder is not an error and sends no update.
func (c *Client) PauseFolder(ctx context.Context) error {
	return c.setPaused(ctx, "pause_folder", true)
}

// ResumeFolder resumes replication for the configured folder.
// Idempotent: resuming an already-active folder is not an error and
// sends no update.
func (c *Client) ResumeFolder(ctx context.Context) error {
	return c.setPaused(ctx, "resume_folder", false)
}

// TriggerScan forces an out-of-schedule rescan of the folder, rather
// than waiting for the daemon's normal scan interval to elapse. No
// other package in this module calls it; the orchestrator's restore
// path does not request a rescan.
func (c *Client) TriggerScan(ctx context.Context) error {
	path := fmt.Sprintf("/rest/db/scan?folder=%s", c.folderID)
	return c.do(ctx, "trigger_scan", http.MethodPost, path, nil)
}

// WaitForSync polls folder status until it reports fully synced,
// aborting with an error if the daemon reports errors, the context is
// cancelled, or timeout elapses.
func (c *Client) WaitForSync(ctx context.Context, timeout, pollInterval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		status, err := c.GetFolderStatus(ctx)
		if err == nil {
			if status.IsSynced() {
				return nil
			}
			if status.HasErrors() {
				return fmt.Errorf("syncclient: wait_for_sync: folder reports errors (errors=%d pullErrors=%d)",
					status.Errors, status.PullErrors)
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("syncclient: wait_for_sync: timed out after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
