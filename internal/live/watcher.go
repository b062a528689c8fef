// Package live forwards a connected MIDI keyboard to an output backend.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

const rescanInterval = 1000 * time.Millisecond

// Watcher monitors available MIDI inputs and maintains a connection to the
// preferred device. It handles hot-plug (new device appears) and hot-unplug
// (device disappears) transparently.
//
// onMessage is called for every message while a device is connected.
// onDisconnect is called (from a goroutine) when the active device is lost;
// callers should use it to release every held key immediately.
type Watcher struct {
	mu           sync.Mutex
	drv          drivers.Driver
	inPort       drivers.In
	stopFn       func()
	connected    bool
	selectedName string
	lastRescanAt time.Time

	preferred []string
	excluded  []string

	onMessage    func(midi.Message)
	onDisconnect func()
	log          *slog.Logger
}

// NewWatcher wraps drv. Devices matching a preferred pattern are picked
// first; ports matching an excluded pattern are never auto-connected.
func NewWatcher(drv drivers.Driver, preferred, excluded []string, onMessage func(midi.Message), onDisconnect func()) *Watcher {
	return &Watcher{
		drv:          drv,
		preferred:    preferred,
		excluded:     excluded,
		onMessage:    onMessage,
		onDisconnect: onDisconnect,
		log:          slog.Default().With("component", "live"),
	}
}

// Close shuts down the active MIDI connection and the driver.
func (m *Watcher) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeConn()
	_ = m.drv.Close()
}

// Connected returns the selected device name, if any.
func (m *Watcher) Connected() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectedName, m.connected
}

// Run ticks the watcher every second until ctx is done.
func (m *Watcher) Run(ctx context.Context) {
	m.Tick()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick scans for devices, auto-connects to a preferred one, and detects
// disappearances.
func (m *Watcher) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if !m.lastRescanAt.IsZero() && now.Sub(m.lastRescanAt) < rescanInterval {
		return
	}
	m.lastRescanAt = now

	inputs := m.listInputs()

	if m.connected {
		for _, n := range inputs {
			if n == m.selectedName {
				return
			}
		}
		m.log.Warn("live: device disappeared", "device", m.selectedName)
		m.closeConn()
		m.lastRescanAt = time.Time{} // rescan immediately next tick
		if m.onDisconnect != nil {
			go m.onDisconnect()
		}
		return
	}

	if len(inputs) == 0 {
		return
	}
	cand, ok := pickPreferred(inputs, m.preferred)
	if !ok {
		m.log.Debug("live: no preferred device", "available", strings.Join(inputs, ", "))
		return
	}
	if err := m.openByName(cand); err != nil {
		m.log.Error("live: connect failed", "device", cand, "err", err)
	}
}

// -------------------- internal --------------------

func (m *Watcher) listInputs() []string {
	ins, err := m.drv.Ins()
	if err != nil {
		m.log.Error("live: list inputs failed", "err", err)
		return nil
	}
	var names []string
	for _, in := range ins {
		name := in.String()
		if matchesAny(name, m.excluded) {
			m.log.Debug("live: input excluded", "device", name)
			continue
		}
		names = append(names, name)
	}
	m.log.Debug("live: inputs found", "count", len(names), "devices", strings.Join(names, ", "))
	return names
}

func (m *Watcher) closeConn() {
	if m.stopFn != nil {
		m.stopFn()
		m.stopFn = nil
	}
	if m.inPort != nil {
		_ = m.inPort.Close()
		m.inPort = nil
	}
	m.connected = false
	m.selectedName = ""
}

func (m *Watcher) openByName(name string) error {
	ins, err := m.drv.Ins()
	if err != nil {
		return err
	}
	var found drivers.In
	for _, in := range ins {
		if in.String() == name {
			found = in
			break
		}
	}
	if found == nil {
		return fmt.Errorf("input %q not found", name)
	}
	if err := found.Open(); err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}

	stop, err := midi.ListenTo(found, func(msg midi.Message, _ int32) {
		m.onMessage(msg)
	}, midi.HandleError(func(listenErr error) {
		m.log.Warn("live: listener error", "device", name, "err", listenErr)
		// closeConn must not run on the listener goroutine itself.
		go func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.connected && m.selectedName == name {
				m.closeConn()
				m.lastRescanAt = time.Time{}
				if m.onDisconnect != nil {
					go m.onDisconnect()
				}
			}
		}()
	}))
	if err != nil {
		_ = found.Close()
		return fmt.Errorf("listen %q: %w", name, err)
	}

	m.inPort = found
	m.stopFn = stop
	m.connected = true
	m.selectedName = name
	m.log.Info("live: connected", "device", name)
	return nil
}

// pickPreferred returns the first input matching a preferred pattern, in
// pattern order, or the only input when there is exactly one.
func pickPreferred(inputs, preferred []string) (string, bool) {
	for _, pat := range preferred {
		for _, name := range inputs {
			if containsCI(name, pat) {
				return name, true
			}
		}
	}
	if len(inputs) == 1 {
		return inputs[0], true
	}
	return "", false
}

func matchesAny(name string, patterns []string) bool {
	for _, pat := range patterns {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
