package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cuemby/labdeck/pkg/events"
	"golang.org/x/sync/errgroup"
)

// GlancesClient reads system statistics from a Glances agent's REST API
type GlancesClient struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

// NewGlancesClient creates a client for the agent at baseURL. Username and
// password are sent as basic auth when set.
func NewGlancesClient(baseURL, username, password string, timeout time.Duration) *GlancesClient {
	return &GlancesClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		client:   &http.Client{Timeout: timeout},
	}
}

type glancesCPU struct {
	Total float64 `json:"total"`
}

type glancesCore struct {
	Log  int `json:"log"`
	Phys int `json:"phys"`
}

type glancesMem struct {
	Total   uint64  `json:"total"`
	Used    uint64  `json:"used"`
	Percent float64 `json:"percent"`
}

type glancesFS struct {
	MntPoint string `json:"mnt_point"`
	Size     uint64 `json:"size"`
	Used     uint64 `json:"used"`
}

// glancesNet covers both the v4 gauge fields and the older cumulative ones
type glancesNet struct {
	Interface    string `json:"interface_name"`
	BytesRecv    uint64 `json:"bytes_recv_gauge"`
	BytesSent    uint64 `json:"bytes_sent_gauge"`
	CumulativeRx uint64 `json:"cumulative_rx"`
	CumulativeTx uint64 `json:"cumulative_tx"`
	PacketsRecv  uint64 `json:"packets_recv"`
	PacketsSent  uint64 `json:"packets_sent"`
}

// Sample fetches one snapshot of CPU, memory, disk and network figures.
// The five endpoints are read concurrently; any failure fails the sample.
func (c *GlancesClient) Sample(ctx context.Context) (events.ServerMetrics, error) {
	var (
		cpu  glancesCPU
		core glancesCore
		mem  glancesMem
		fs   []glancesFS
		nics []glancesNet
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.get(gctx, "cpu", &cpu) })
	g.Go(func() error { return c.get(gctx, "core", &core) })
	g.Go(func() error { return c.get(gctx, "mem", &mem) })
	g.Go(func() error { return c.get(gctx, "fs", &fs) })
	g.Go(func() error { return c.get(gctx, "network", &nics) })
	if err := g.Wait(); err != nil {
		return events.ServerMetrics{}, err
	}

	cores := core.Log
	if cores == 0 {
		cores = core.Phys
	}

	return events.ServerMetrics{
		CPU: events.CPUStats{
			Percent: clampPercent(cpu.Total),
			Cores:   cores,
		},
		Memory: events.UsageStats{
			Used:    mem.Used,
			Total:   mem.Total,
			Percent: clampPercent(mem.Percent),
		},
		Disk:    sumDisks(fs),
		Network: sumNetwork(nics),
	}, nil
}

func (c *GlancesClient) get(ctx context.Context, plugin string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/4/"+plugin, nil)
	if err != nil {
		return fmt.Errorf("glances %s: %w", plugin, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("glances %s: %w", plugin, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("glances %s: unexpected status %d", plugin, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("glances %s: decode: %w", plugin, err)
	}
	return nil
}

// sumDisks adds up every mounted filesystem. Bind mounts of the same
// device are reported once per mount point by Glances, so this can exceed
// physical capacity on hosts that use them.
func sumDisks(fs []glancesFS) events.UsageStats {
	var out events.UsageStats
	for _, f := range fs {
		out.Total += f.Size
		out.Used += f.Used
	}
	if out.Total > 0 {
		out.Percent = clampPercent(float64(out.Used) / float64(out.Total) * 100)
	}
	return out
}

// sumNetwork adds up the cumulative counters of every interface except
// loopback
func sumNetwork(ifaces []glancesNet) events.NetworkStats {
	var out events.NetworkStats
	for _, n := range ifaces {
		if n.Interface == "lo" {
			continue
		}
		rx, tx := n.BytesRecv, n.BytesSent
		if rx == 0 && tx == 0 {
			rx, tx = n.CumulativeRx, n.CumulativeTx
		}
		out.BytesIn += rx
		out.BytesOut += tx
		out.PacketsIn += n.PacketsRecv
		out.PacketsOut += n.PacketsSent
	}
	return out
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
