package poller

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/labdeck/pkg/events"
	"github.com/cuemby/labdeck/pkg/log"
	"github.com/cuemby/labdeck/pkg/metrics"
	"github.com/cuemby/labdeck/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// TorrentLister lists the torrents of one client
type TorrentLister interface {
	Torrents(ctx context.Context) ([]Torrent, error)
}

// TorrentPoller samples every qBittorrent instance and pushes one
// torrent:progress per torrent to the owner
type TorrentPoller struct {
	source  Source
	creds   Credentials
	emitter events.Emitter
	config  Config
	loop    *loop
	logger  zerolog.Logger

	mu      sync.Mutex
	clients map[int64]cachedLister

	newLister func(inst *types.Instance, password string) TorrentLister
}

type cachedLister struct {
	fingerprint string
	lister      TorrentLister
}

// NewTorrentPoller creates a new torrent progress sampler
func NewTorrentPoller(source Source, creds Credentials, emitter events.Emitter, config Config) *TorrentPoller {
	p := &TorrentPoller{
		source:  source,
		creds:   creds,
		emitter: emitter,
		config:  config,
		loop:    newLoop(config.Interval),
		logger:  log.WithComponent("torrent-poller"),
		clients: make(map[int64]cachedLister),
	}
	p.newLister = func(inst *types.Instance, password string) TorrentLister {
		return NewQBittorrentClient(inst.URL, inst.Username, password, config.Timeout)
	}
	return p
}

// Start begins polling
func (p *TorrentPoller) Start(ctx context.Context) {
	p.loop.start(ctx, p.RunOnce)
}

// Stop stops polling
func (p *TorrentPoller) Stop() {
	p.loop.stop()
}

// RunOnce polls every qBittorrent instance once
func (p *TorrentPoller) RunOnce(ctx context.Context) {
	instances, err := p.source.ListInstancesByType(types.PluginTypeQBittorrent)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to list instances")
		return
	}
	p.forget(instances)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPolls)
	for _, inst := range instances {
		inst := inst
		g.Go(func() error {
			p.poll(gctx, inst)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *TorrentPoller) poll(ctx context.Context, inst *types.Instance) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.PollDuration, "qbittorrent")

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	torrents, err := p.lister(inst).Torrents(ctx)
	if err != nil {
		metrics.PollFailures.WithLabelValues("qbittorrent").Inc()
		p.logger.Warn().Err(err).Int64("instance_id", inst.ID).Msg("torrent poll failed")
		p.emitter.Emit(inst.UserID, events.ErrorNotice{
			Code:    CodeTorrentPollFailed,
			Message: fmt.Sprintf("failed to read torrents from %s: %v", inst.Name, err),
			Context: map[string]interface{}{"instanceId": inst.ID},
		})
		return
	}

	for _, t := range torrents {
		p.emitter.Emit(inst.UserID, t.Event(inst.ID))
	}
	p.logger.Debug().Int64("instance_id", inst.ID).Int("torrents", len(torrents)).Msg("torrents sampled")
}

func (p *TorrentPoller) lister(inst *types.Instance) TorrentLister {
	fp := inst.URL + "\x00" + inst.Username + "\x00" + string(inst.Password)

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[inst.ID]; ok && c.fingerprint == fp {
		return c.lister
	}
	l := p.newLister(inst, password(p.creds, inst, p.logger))
	p.clients[inst.ID] = cachedLister{fingerprint: fp, lister: l}
	return l
}

func (p *TorrentPoller) forget(live []*types.Instance) {
	keep := make(map[int64]struct{}, len(live))
	for _, inst := range live {
		keep[inst.ID] = struct{}{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for id := range p.clients {
		if _, ok := keep[id]; !ok {
			delete(p.clients, id)
		}
	}
}
