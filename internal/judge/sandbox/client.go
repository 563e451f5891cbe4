package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appErr "github.com/YanagiOrigami/LightCPVerifier/pkg/errors"
	"github.com/YanagiOrigami/LightCPVerifier/pkg/utils/logger"

	"go.uber.org/zap"
)

const defaultRequestTimeout = 5 * time.Minute

// Client talks to one sandbox executor instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a sandbox client. addr is the executor base URL, e.g.
// "http://127.0.0.1:5050". A non-positive timeout falls back to five minutes.
func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(addr, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Run dispatches a command batch and returns results aligned with cmds.
func (c *Client) Run(ctx context.Context, cmds []Cmd, pipes []PipeMap) ([]Result, error) {
	body, err := json.Marshal(runRequest{Cmd: cmds, PipeMapping: pipes})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "encode run request failed")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "build run request failed")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxUnavailable, "sandbox run call failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxBadReply, "read sandbox reply failed")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, appErr.Newf(appErr.SandboxRejected, "sandbox returned %d: %s", resp.StatusCode, truncate(string(raw), 512))
	}

	var results []Result
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, appErr.Wrapf(err, appErr.SandboxBadReply, "decode sandbox reply failed")
	}
	if len(results) != len(cmds) {
		return nil, appErr.Newf(appErr.SandboxBadReply, "sandbox returned %d results for %d commands", len(results), len(cmds))
	}
	return results, nil
}

// DeleteFile releases one cached artifact. Failures are logged and swallowed:
// cleanup must never mask the primary outcome, and the sandbox garbage
// collects leaked files on its own schedule.
func (c *Client) DeleteFile(ctx context.Context, id string) {
	if id == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/file/%s", c.baseURL, id), nil)
	if err != nil {
		logger.Warn(ctx, "build delete-file request failed", zap.String("file_id", id), zap.Error(err))
		return
	}
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn(ctx, "delete sandbox file failed", zap.String("file_id", id), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Warn(ctx, "delete sandbox file rejected", zap.String("file_id", id), zap.Int("status", resp.StatusCode))
	}
}

// CacheInline stores content into the sandbox file cache under name by
// issuing a no-op run that copies the file in and caches it out. Returns the
// new artifact id.
func (c *Client) CacheInline(ctx context.Context, name, content string) (string, error) {
	cmd := Cmd{
		Args: []string{"/usr/bin/env", "true"},
		Env:  DefaultEnv(),
		Files: []*CmdFile{
			{Content: strPtr("")},
			Collector("stdout", 4096),
			Collector("stderr", 4096),
		},
		CPULimit:      int64(10 * time.Second),
		MemoryLimit:   256 << 20,
		ProcLimit:     50,
		CopyIn:        map[string]CmdFile{name: MemoryFile(content)},
		CopyOutCached: []string{name},
	}
	results, err := c.Run(ctx, []Cmd{cmd}, nil)
	if err != nil {
		return "", err
	}
	r := results[0]
	if r.Status != StatusAccepted {
		return "", appErr.Newf(appErr.JudgeSystemError, "cache file %s: sandbox returned %s", name, r.Status)
	}
	id, ok := r.FileIDs[name]
	if !ok || id == "" {
		return "", appErr.Newf(appErr.SandboxBadReply, "cache file %s: no file id in reply", name)
	}
	return id, nil
}

func DefaultEnv() []string {
	return []string{"PATH=/usr/bin:/bin"}
}

func strPtr(s string) *string {
	return &s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
