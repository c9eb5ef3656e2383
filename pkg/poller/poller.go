package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cuemby/labdeck/pkg/security"
	"github.com/cuemby/labdeck/pkg/types"
	"github.com/rs/zerolog"
)

// Error codes pushed to users when an upstream poll fails
const (
	CodeMetricsPollFailed = "METRICS_POLL_FAILED"
	CodeTorrentPollFailed = "TORRENT_POLL_FAILED"
	CodeThresholdExceeded = "THRESHOLD_EXCEEDED"
)

// maxConcurrentPolls bounds the upstream requests of one round
const maxConcurrentPolls = 8

// Source is the part of the store the pollers read
type Source interface {
	ListInstancesByType(t types.PluginType) ([]*types.Instance, error)
	ListAlertThresholdsByInstance(instanceID int64) ([]*types.AlertThreshold, error)
}

// Credentials opens stored instance passwords
type Credentials interface {
	InstancePassword(inst *types.Instance) (string, error)
}

var _ Credentials = (*security.SecretsManager)(nil)

// Config holds the timing of one poller
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
}

// loop runs fn every interval until Stop or ctx is done
type loop struct {
	interval time.Duration
	stopCh   chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

func newLoop(interval time.Duration) *loop {
	return &loop{interval: interval, stopCh: make(chan struct{})}
}

func (l *loop) start(ctx context.Context, fn func(context.Context)) {
	ctx, cancel := context.WithCancel(ctx)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer cancel()

		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		// Poll immediately on start
		fn(ctx)

		for {
			select {
			case <-ticker.C:
				fn(ctx)
			case <-ctx.Done():
				return
			case <-l.stopCh:
				return
			}
		}
	}()
	go func() {
		select {
		case <-l.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
}

// stop ends the loop and waits for an in-flight round to finish
func (l *loop) stop() {
	l.once.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

// password resolves an instance's password, treating "no credentials" as
// an empty password
func password(creds Credentials, inst *types.Instance, logger zerolog.Logger) string {
	if creds == nil || len(inst.Password) == 0 {
		return ""
	}
	p, err := creds.InstancePassword(inst)
	if err != nil {
		if !errors.Is(err, security.ErrNoCredentials) {
			logger.Warn().Err(err).Int64("instance_id", inst.ID).Msg("failed to open instance credentials")
		}
		return ""
	}
	return p
}
