package promoter

import (
	"context"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/pingcap/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/siddontang/go-log/log"
	"github.com/siddontang/go/sync2"
)

var errPostmasterGone = errors.New("postmaster exited, standby cannot continue")

// Monitor drives the failover loop on the standby. One goroutine runs the
// loop; shutdown, reload and postmaster death are delivered through
// channels and consumed at the top of each iteration, never mid heartbeat.
type Monitor struct {
	m sync.Mutex

	cfg *Config

	checker Checker
	promote func(dataDir string, triggerFileName string, hostPID int) error

	hostPID   int
	sessionID uuid.UUID

	// swapped in by SignalReload, consumed once by the loop
	pending *Config

	interval         time.Duration
	threshold        int
	hostPollInterval time.Duration

	failures int

	quit      chan struct{}
	reloadCh  chan struct{}
	hostDeath chan struct{}

	closed sync2.AtomicBool

	wg sync.WaitGroup
}

// NewMonitor validates the config, reads the postmaster pid and confirms
// the primary is reachable once. An unreachable primary at startup is fatal,
// the monitor refuses to start counting failures from a known broken state.
func NewMonitor(cfg *Config) (*Monitor, error) {
	return newMonitor(cfg, NewHeartbeat(cfg), Promote)
}

func newMonitor(cfg *Config, checker Checker, promote func(string, string, int) error) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}

	m := new(Monitor)
	m.cfg = cfg
	m.checker = checker
	m.promote = promote
	m.sessionID = uuid.NewV4()

	m.interval = cfg.keepaliveInterval()
	m.threshold = cfg.KeepaliveCount
	m.hostPollInterval = time.Second

	m.quit = make(chan struct{})
	m.reloadCh = make(chan struct{}, 1)
	m.hostDeath = make(chan struct{})
	m.closed.Set(false)

	pid, err := ReadPIDFile(filepath.Join(cfg.DataDir, cfg.PIDFileName))
	if err != nil {
		return nil, errors.Trace(err)
	}
	m.hostPID = pid

	ctx, cancel := context.WithTimeout(context.Background(), cfg.connectTimeout())
	defer cancel()

	if err = m.checker.Check(ctx); err != nil {
		return nil, errors.Annotatef(err, "connection confirm failed for %s", cfg.PrimaryConnInfo)
	}

	return m, nil
}

// Run executes the failover loop until shutdown, postmaster death or
// promotion. It returns nil on normal shutdown and on successful promotion,
// the worker is done in both cases.
func (m *Monitor) Run() error {
	log.Infof("pg-promoter session %s started, watching primary (keepalive_time=%ds, keepalive_count=%d, pid=%d)",
		m.sessionID, m.cfg.KeepaliveTime, m.cfg.KeepaliveCount, m.hostPID)

	stop := make(chan struct{})
	defer m.wg.Wait()
	defer close(stop)

	m.wg.Add(1)
	go m.watchHost(stop)

	for {
		t := time.NewTimer(m.interval)
		select {
		case <-t.C:
		case <-m.quit:
		case <-m.reloadCh:
		case <-m.hostDeath:
		}
		t.Stop()

		select {
		case <-m.hostDeath:
			log.Errorf("postmaster (pid %d) has exited, terminating", m.hostPID)
			return errors.Trace(errPostmasterGone)
		default:
		}

		if m.closed.Get() {
			log.Infof("shutdown requested, terminating")
			return nil
		}

		if cfg := m.takePending(); cfg != nil {
			m.interval = cfg.keepaliveInterval()
			m.threshold = cfg.KeepaliveCount
			log.Infof("configuration reloaded, keepalive_time=%ds, keepalive_count=%d",
				cfg.KeepaliveTime, cfg.KeepaliveCount)
		}

		if m.heartbeat() {
			continue
		}

		log.Errorf("the primary server might be crashed, promoting the standby (session %s)", m.sessionID)

		if err := m.promote(m.cfg.DataDir, m.cfg.TriggerFileName, m.hostPID); err != nil {
			log.Errorf("promotion failed: %v", err)
			return errors.Trace(err)
		}

		log.Infof("standby promotion triggered, signaled postmaster (pid %d)", m.hostPID)
		return nil
	}
}

// heartbeat runs one liveness attempt and updates the failure counter.
// It returns true while the loop should keep running and false once the
// consecutive failure threshold has been reached.
func (m *Monitor) heartbeat() bool {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.connectTimeout())
	defer cancel()

	err := m.checker.Check(ctx)
	if err == nil {
		if m.failures > 0 {
			log.Infof("primary is alive again after %d failed heartbeats", m.failures)
		}
		m.failures = 0
		return true
	}

	m.failures++

	switch errors.Cause(err) {
	case ErrPrimaryUnreachable:
		log.Warnf("could not establish connection to primary server (%d/%d failures): %v",
			m.failures, m.threshold, err)
	default:
		log.Warnf("could not retrieve expected result from primary server (%d/%d failures): %v",
			m.failures, m.threshold, err)
	}

	return m.failures < m.threshold
}

// Close requests a graceful shutdown and wakes a blocked wait. A pending
// heartbeat is skipped, an in-flight one is allowed to finish.
func (m *Monitor) Close() {
	m.m.Lock()
	defer m.m.Unlock()

	if m.closed.Get() {
		return
	}

	m.closed.Set(true)
	close(m.quit)
}

// SignalReload hands a re-read configuration to the loop and wakes a
// blocked wait. Only KeepaliveTime and KeepaliveCount take effect, the
// connection info and trigger file are fixed for this process generation.
func (m *Monitor) SignalReload(cfg *Config) error {
	if cfg.KeepaliveTime < 1 {
		return errors.Errorf("keepalive_time must be >= 1, got %d", cfg.KeepaliveTime)
	}
	if cfg.KeepaliveCount < 1 {
		return errors.Errorf("keepalive_count must be >= 1, got %d", cfg.KeepaliveCount)
	}

	m.m.Lock()
	m.pending = cfg
	m.m.Unlock()

	select {
	case m.reloadCh <- struct{}{}:
	default:
	}

	return nil
}

func (m *Monitor) takePending() *Config {
	m.m.Lock()
	defer m.m.Unlock()

	cfg := m.pending
	m.pending = nil
	return cfg
}

// watchHost polls the postmaster pid and closes hostDeath once the process
// is gone. Signal 0 only probes existence, EPERM still means alive.
func (m *Monitor) watchHost(stop chan struct{}) {
	defer m.wg.Done()

	t := time.NewTicker(m.hostPollInterval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := syscall.Kill(m.hostPID, 0); err == syscall.ESRCH {
				close(m.hostDeath)
				return
			}
		}
	}
}
