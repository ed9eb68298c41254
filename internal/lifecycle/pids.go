package lifecycle

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

const pidsFile = "pids.json"

// PIDTracker persists the PIDs of supervised server processes so a later
// invocation can find and clean up orphans.
type PIDTracker struct {
	mu     sync.Mutex
	path   string
	pids   map[string]int
	logger *slog.Logger
}

// NewPIDTracker creates a tracker backed by ~/.config/mcpherd/pids.json.
func NewPIDTracker(logger *slog.Logger) (*PIDTracker, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	pt := &PIDTracker{
		path:   filepath.Join(home, ".config", "mcpherd", pidsFile),
		pids:   make(map[string]int),
		logger: logger,
	}
	pt.load()
	return pt, nil
}

func (pt *PIDTracker) load() {
	data, err := os.ReadFile(pt.path)
	if err != nil {
		return
	}
	if err := json.Unmarshal(data, &pt.pids); err != nil {
		pt.logger.Warn("unparseable pid file, starting fresh", "path", pt.path, "err", err)
		pt.pids = make(map[string]int)
	}
}

// save writes the tracking file. Caller holds mu.
func (pt *PIDTracker) save() error {
	if err := os.MkdirAll(filepath.Dir(pt.path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(pt.pids, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(pt.path, data, 0600)
}

// Track records a server's PID.
func (pt *PIDTracker) Track(name string, pid int) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.pids[name] = pid
	return pt.save()
}

// Untrack forgets a server's PID.
func (pt *PIDTracker) Untrack(name string) error {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	delete(pt.pids, name)
	return pt.save()
}

// PIDs returns a copy of the tracked PIDs.
func (pt *PIDTracker) PIDs() map[string]int {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	out := make(map[string]int, len(pt.pids))
	for name, pid := range pt.pids {
		out[name] = pid
	}
	return out
}

// Alive reports whether a tracked server's process still exists.
func (pt *PIDTracker) Alive(name string) bool {
	pt.mu.Lock()
	pid, ok := pt.pids[name]
	pt.mu.Unlock()
	return ok && processExists(pid)
}

// Terminate signals a tracked server's process with SIGTERM and forgets it.
// Returns false when the server is not tracked or its process is gone.
func (pt *PIDTracker) Terminate(name string) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pid, ok := pt.pids[name]
	if !ok {
		return false
	}
	delete(pt.pids, name)
	if err := pt.save(); err != nil {
		pt.logger.Warn("saving pid file", "err", err)
	}
	if !processExists(pid) {
		return false
	}
	return terminateProcess(pid)
}

// CleanupOrphans terminates tracked processes left over from a previous
// session and clears the file. Returns the number of processes signalled.
func (pt *PIDTracker) CleanupOrphans() int {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	killed := 0
	for name, pid := range pt.pids {
		if processExists(pid) {
			pt.logger.Warn("terminating orphan server process", "server", name, "pid", pid)
			if terminateProcess(pid) {
				killed++
			}
		}
		delete(pt.pids, name)
	}
	if err := pt.save(); err != nil {
		pt.logger.Warn("saving pid file after cleanup", "err", err)
	}
	return killed
}

// processExists probes a PID with signal 0.
func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// terminateProcess sends SIGTERM. The caller does not wait; orphan cleanup
// runs at startup and must not block.
func terminateProcess(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.SIGTERM) == nil
}
