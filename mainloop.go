package reactor

import (
	"sync"
	"weak"
)

// Process-wide main-loop slot. The reference is weak so holding the role
// never keeps a loop alive: once the main loop is closed or collected the
// slot reads as empty and a successor may claim it. Guarded by its own
// mutex, independent of any loop's mutex.
var mainRegistry struct {
	sync.Mutex
	loop weak.Pointer[Loop]
}

// installMainLoop claims the main-loop slot for l, failing while another
// live loop holds it.
func installMainLoop(l *Loop) error {
	mainRegistry.Lock()
	defer mainRegistry.Unlock()
	if mainRegistry.loop.Value() != nil {
		return ErrMainLoopExists
	}
	mainRegistry.loop = weak.Make(l)
	return nil
}

// vacateMainLoop clears the slot if l holds it.
func vacateMainLoop(l *Loop) {
	mainRegistry.Lock()
	defer mainRegistry.Unlock()
	if mainRegistry.loop.Value() == l {
		mainRegistry.loop = weak.Pointer[Loop]{}
	}
}

// Main returns the process-wide main loop, or nil when none exists.
// Absence is a normal outcome the caller must branch on.
func Main() *Loop {
	mainRegistry.Lock()
	defer mainRegistry.Unlock()
	return mainRegistry.loop.Value()
}

// Per-goroutine loop registry, consulted by Current before the main-loop
// fallback. Entries are weak so an abandoned loop cannot leak through its
// registration.
var loopRegistry struct {
	sync.Mutex
	loops map[uint64]weak.Pointer[Loop]
}

func registerLoopGoroutine(gid uint64, l *Loop) {
	loopRegistry.Lock()
	defer loopRegistry.Unlock()
	if loopRegistry.loops == nil {
		loopRegistry.loops = make(map[uint64]weak.Pointer[Loop])
	}
	// Scavenge entries whose loops have been collected. The map holds one
	// entry per live loop, so a full sweep stays cheap.
	for k, p := range loopRegistry.loops {
		if p.Value() == nil {
			delete(loopRegistry.loops, k)
		}
	}
	loopRegistry.loops[gid] = weak.Make(l)
}

func unregisterLoopGoroutine(gid uint64, l *Loop) {
	loopRegistry.Lock()
	defer loopRegistry.Unlock()
	if p, ok := loopRegistry.loops[gid]; ok {
		if v := p.Value(); v == nil || v == l {
			delete(loopRegistry.loops, gid)
		}
	}
}

// Current returns the loop owned by the calling goroutine, falling back to
// the main loop; nil when neither exists.
func Current() *Loop {
	gid := getGoroutineID()
	loopRegistry.Lock()
	if p, ok := loopRegistry.loops[gid]; ok {
		if l := p.Value(); l != nil {
			loopRegistry.Unlock()
			return l
		}
		delete(loopRegistry.loops, gid)
	}
	loopRegistry.Unlock()
	return Main()
}

// IsMainThread reports whether the calling goroutine owns the main loop.
func IsMainThread() bool {
	m := Main()
	return m != nil && m.ownerGID() == getGoroutineID()
}
