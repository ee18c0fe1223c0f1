/*
sweeper.go - Idle schedule-session eviction

PURPOSE:
  Schedule sessions live in memory between HTTP calls. A user who opens a
  session and walks away would otherwise keep it forever. The sweeper
  periodically drops sessions that have not been touched for the TTL.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Unsaved work in an evicted session is discarded; saved schedules
    are already in the Ledger
  - Logs each sweep that evicted something

CONFIGURATION:
  - Interval: How often to check (config sweep_interval, default 1m)
  - TTL:      Idle time before eviction (config session_ttl, default 30m)
  - Enabled:  Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewSessionSweeper(registry, logger)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - sessions.go: SessionRegistry
  - handlers.go: session endpoints
*/
package api

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SessionSweeper evicts idle sessions from a registry.
type SessionSweeper struct {
	Registry *SessionRegistry
	Log      logrus.FieldLogger
	Interval time.Duration
	TTL      time.Duration
	Enabled  bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSessionSweeper creates a sweeper with default timings.
func NewSessionSweeper(registry *SessionRegistry, logger logrus.FieldLogger) *SessionSweeper {
	return &SessionSweeper{
		Registry: registry,
		Log:      logger,
		Interval: time.Minute,
		TTL:      30 * time.Minute,
		Enabled:  true,
	}
}

// Start begins the sweeper.
func (ss *SessionSweeper) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		ss.Log.Info("[Sweeper] Disabled, not starting")
		return
	}
	if ss.ticker != nil {
		return
	}

	ss.ticker = time.NewTicker(ss.Interval)
	ss.stop = make(chan struct{})
	ss.wg.Add(1)

	go ss.run(ss.ticker, ss.stop)

	ss.Log.WithFields(logrus.Fields{"interval": ss.Interval, "ttl": ss.TTL}).Info("[Sweeper] Started")
}

// Stop stops the sweeper and waits for the loop to exit.
func (ss *SessionSweeper) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		ss.ticker = nil
		ss.Log.Info("[Sweeper] Stopped")
	}
}

func (ss *SessionSweeper) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer ss.wg.Done()

	for {
		select {
		case <-ticker.C:
			ss.RunNow()
		case <-stop:
			return
		}
	}
}

// RunNow performs one sweep and returns the evicted session IDs.
func (ss *SessionSweeper) RunNow() []string {
	evicted := ss.Registry.EvictIdle(ss.TTL)
	if len(evicted) > 0 {
		ss.Log.WithFields(logrus.Fields{
			"evicted":   len(evicted),
			"remaining": ss.Registry.Len(),
		}).Info("[Sweeper] Evicted idle sessions")
	}
	return evicted
}
