package health

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/jmarlin/focusd/internal/logging"
)

// Stats is a point-in-time view of the daemon's own resource use, exposed
// on /status so a runaway leak shows up before the OOM killer does.
type Stats struct {
	CPUPercent float64       `json:"cpu_percent"`
	RSSBytes   uint64        `json:"rss_bytes"`
	Goroutines int           `json:"goroutines"`
	Uptime     time.Duration `json:"uptime"`
}

// Monitor samples the daemon's own process on a ticker and keeps the last
// reading for /status.
type Monitor struct {
	proc      *process.Process
	startedAt time.Time
	interval  time.Duration

	mu   sync.Mutex
	last Stats

	stopChan chan struct{}
	running  bool
}

func NewMonitor(interval time.Duration) *Monitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		// Unlikely for our own PID; run with self-sampling disabled.
		logging.Info("health", "cannot inspect own process: %v", err)
	}
	return &Monitor{
		proc:      proc,
		startedAt: time.Now(),
		interval:  interval,
		stopChan:  make(chan struct{}),
	}
}

func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	go m.loop()
	logging.Info("health", "self-monitor started (every %v)", m.interval)
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		close(m.stopChan)
		m.running = false
	}
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample()
	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() {
	stats := Stats{
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(m.startedAt).Round(time.Second),
	}
	if m.proc != nil {
		if cpu, err := m.proc.CPUPercent(); err == nil {
			stats.CPUPercent = cpu
		}
		if mem, err := m.proc.MemoryInfo(); err == nil && mem != nil {
			stats.RSSBytes = mem.RSS
		}
	}

	m.mu.Lock()
	m.last = stats
	m.mu.Unlock()
	logging.Debug("health", "cpu=%.1f%% rss=%dMB goroutines=%d",
		stats.CPUPercent, stats.RSSBytes/(1024*1024), stats.Goroutines)
}

// Snapshot returns the most recent sample.
func (m *Monitor) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
