package sweeper

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/formrelay/squarelink/internal/pkg/env"
)

// tickTimeout caps how long one sweep may run.
const tickTimeout = 5 * time.Minute

// Manager runs the sweeper on an hourly ticker. Ticks are serialized by the
// single worker goroutine; there is no cross-process lock, the scheduler is
// expected to run one instance.
type Manager struct {
	sweeper *Sweeper
	ticker  *time.Ticker
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewManager creates a sweep manager around a sweeper.
func NewManager(sweeper *Sweeper) *Manager {
	return &Manager{
		sweeper: sweeper,
		stopCh:  make(chan struct{}),
	}
}

// Start starts the background sweep worker
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	interval := time.Hour
	if raw := env.GetEnv("SWEEP_INTERVAL_MINUTES", ""); raw != "" {
		if minutes, err := strconv.Atoi(raw); err == nil && minutes > 0 {
			interval = time.Duration(minutes) * time.Minute
		}
	}

	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	m.ticker = time.NewTicker(interval)

	m.wg.Add(1)
	go m.sweepWorker()

	log.Infof("[Sweeper] Started with interval %s", interval)
}

// Stop stops the background sweep worker
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Sweeper] Stopping...")
	if m.ticker != nil {
		m.ticker.Stop()
	}
	close(m.stopCh)
	m.running = false
	m.wg.Wait()
	log.Info("[Sweeper] Stopped")
}

func (m *Manager) sweepWorker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
			m.sweeper.Tick(ctx)
			cancel()
		case <-m.stopCh:
			return
		}
	}
}
