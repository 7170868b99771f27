package util

import (
	"fmt"
	"os"
	"sync"
)

// ResourceTracker tracks open files and processes so tests can assert
// that a full orchestrator startup/shutdown cycle leaks nothing — the
// coordinator is meant to run unattended for long periods, so a slow
// handle leak across repeated runs is a real failure mode worth
// catching in tests rather than in production.
type ResourceTracker struct {
	mu        sync.Mutex
	files     map[string]*os.File
	processes map[string]*os.Process
}

// NewResourceTracker creates an empty tracker.
func NewResourceTracker() *ResourceTracker {
	return &ResourceTracker{
		files:     make(map[string]*os.File),
		processes: make(map[string]*os.Process),
	}
}

// TrackFile registers an open file under name.
func (rt *ResourceTracker) TrackFile(name string, file *os.File) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.files[name] = file
}

// UntrackFile marks a file as closed/released.
func (rt *ResourceTracker) UntrackFile(name string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.files, name)
}

// TrackProcess registers a running child process under name.
func (rt *ResourceTracker) TrackProcess(name string, process *os.Process) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.processes[name] = process
}

// UntrackProcess marks a process as reaped.
func (rt *ResourceTracker) UntrackProcess(name string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.processes, name)
}

// Leaked returns a description of every resource still tracked. An
// empty slice means everything was cleaned up.
func (rt *ResourceTracker) Leaked() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var leaked []string
	for name := range rt.files {
		leaked = append(leaked, fmt.Sprintf("file:%s", name))
	}
	for name := range rt.processes {
		leaked = append(leaked, fmt.Sprintf("process:%s", name))
	}
	return leaked
}

// Count returns the total number of tracked resources.
func (rt *ResourceTracker) Count() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.files) + len(rt.processes)
}
