package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/labdeck/pkg/events"
)

// ErrLoginFailed is returned when qBittorrent rejects the stored credentials
var ErrLoginFailed = errors.New("qbittorrent login failed")

// etaUnknown is qBittorrent's sentinel for "no estimate" (100 days)
const etaUnknown = 8640000

// QBittorrentClient reads torrent state from the qBittorrent WebUI API. It
// keeps the SID cookie between calls and logs in again when it expires.
type QBittorrentClient struct {
	baseURL  string
	username string
	password string
	client   *http.Client

	loginMu sync.Mutex
}

// NewQBittorrentClient creates a client for the WebUI at baseURL
func NewQBittorrentClient(baseURL, username, password string, timeout time.Duration) *QBittorrentClient {
	jar, _ := cookiejar.New(nil)
	return &QBittorrentClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		client:   &http.Client{Timeout: timeout, Jar: jar},
	}
}

// Torrent is one entry of /api/v2/torrents/info
type Torrent struct {
	Hash     string  `json:"hash"`
	Name     string  `json:"name"`
	Progress float64 `json:"progress"`
	DLSpeed  int64   `json:"dlspeed"`
	UPSpeed  int64   `json:"upspeed"`
	ETA      int64   `json:"eta"`
	State    string  `json:"state"`
}

// Torrents lists every torrent, logging in first if the session is missing
// or has expired
func (c *QBittorrentClient) Torrents(ctx context.Context) ([]Torrent, error) {
	var out []Torrent
	status, err := c.getJSON(ctx, "/api/v2/torrents/info", &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusForbidden || status == http.StatusUnauthorized {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
		status, err = c.getJSON(ctx, "/api/v2/torrents/info", &out)
		if err != nil {
			return nil, err
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("qbittorrent torrents: unexpected status %d", status)
	}
	return out, nil
}

// Login opens a WebUI session
func (c *QBittorrentClient) Login(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("qbittorrent login: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// The WebUI enforces CSRF protection through the Referer header
	req.Header.Set("Referer", c.baseURL)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("qbittorrent login: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "Ok." {
		return fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode)
	}
	return nil
}

func (c *QBittorrentClient) getJSON(ctx context.Context, path string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("qbittorrent %s: %w", path, err)
	}
	req.Header.Set("Referer", c.baseURL)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qbittorrent %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("qbittorrent %s: decode: %w", path, err)
	}
	return resp.StatusCode, nil
}

// torrentStatus maps a qBittorrent state onto the wire status
func torrentStatus(state string) (events.TorrentStatus, bool) {
	switch state {
	case "downloading", "metaDL", "forcedMetaDL", "stalledDL", "forcedDL", "queuedDL",
		"checkingDL", "allocating", "moving", "checkingResumeData":
		return events.TorrentDownloading, true
	case "uploading", "stalledUP", "forcedUP", "queuedUP", "checkingUP":
		return events.TorrentSeeding, true
	case "pausedDL", "pausedUP":
		return events.TorrentPaused, true
	case "stoppedDL", "stoppedUP":
		return events.TorrentStopped, true
	case "error", "missingFiles":
		return events.TorrentError, true
	}
	return events.TorrentError, false
}

// Event converts a torrent into a torrent:progress payload for an
// instance
func (t Torrent) Event(instanceID int64) events.TorrentProgress {
	status, known := torrentStatus(t.State)

	eta := t.ETA
	if eta >= etaUnknown || eta < 0 {
		eta = -1
	}

	p := events.TorrentProgress{
		InstanceID:    instanceID,
		TorrentHash:   t.Hash,
		TorrentName:   t.Name,
		Progress:      clampPercent(t.Progress * 100),
		DownloadSpeed: t.DLSpeed,
		UploadSpeed:   t.UPSpeed,
		ETA:           eta,
		Status:        status,
	}
	switch {
	case !known:
		p.Error = "unknown state " + t.State
	case t.State == "missingFiles":
		p.Error = "missing files"
	}
	return p
}
