package engine

import (
	"sync"
)

// Unit handles the lifecycle management of an engine: it tracks launched
// goroutines, exposes a quit channel for them to select on, and drains them
// on shutdown.
type Unit struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	once sync.Once
	quit chan struct{}
}

// NewUnit returns a new unit.
func NewUnit() *Unit {
	return &Unit{
		quit: make(chan struct{}),
	}
}

// Lock locks the unit's internal mutex, to serialize engine state updates.
func (u *Unit) Lock() {
	u.mu.Lock()
}

// Unlock unlocks the unit's internal mutex.
func (u *Unit) Unlock() {
	u.mu.Unlock()
}

// Launch runs the given function in a goroutine tracked by the unit. Launch
// after shutdown is a no-op.
func (u *Unit) Launch(f func()) {
	select {
	case <-u.quit:
		return
	default:
	}
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		f()
	}()
}

// Quit returns a channel that is closed when the unit begins shutting down.
func (u *Unit) Quit() <-chan struct{} {
	return u.quit
}

// Ready returns a channel that is closed once the unit is ready.
func (u *Unit) Ready() <-chan struct{} {
	ready := make(chan struct{})
	close(ready)
	return ready
}

// Done signals shutdown and returns a channel that is closed once all
// launched goroutines have returned.
func (u *Unit) Done() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		u.once.Do(func() {
			close(u.quit)
		})
		u.wg.Wait()
		close(done)
	}()
	return done
}
