package main

import (
	"sync"

	"github.com/sweeney/brew-controller/internal/machine"
	"github.com/sweeney/brew-controller/internal/order"
)

// lockedMachine serializes HTTP commands against the tick loop. The
// controller is single-threaded; this wrapper is the one place where two
// goroutines meet it. Commands land between ticks, and a rejected Start
// never mutates controller state.
type lockedMachine struct {
	mu sync.Mutex
	c  *machine.Controller
}

func (m *lockedMachine) Start(o order.Order) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.Start(o)
}

func (m *lockedMachine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Stop()
}

func (m *lockedMachine) Tick() []machine.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.Tick()
}

func (m *lockedMachine) LastError() machine.ErrorKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.LastError()
}

func (m *lockedMachine) CycleID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.CycleID()
}

// Status returns the fields the tracker mirrors, in one lock acquisition.
func (m *lockedMachine) Status() (machine.State, string, machine.ErrorKind, bool, string, order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.State(), m.c.Step(), m.c.LastError(), m.c.Busy(), m.c.CycleID(), m.c.Order()
}
