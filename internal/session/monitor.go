package session

import (
	"fmt"
	"sync"
)

// Signal is a focus or presentation change reported by the exam client.
type Signal string

const (
	SignalHidden                Signal = "visibility_hidden"
	SignalVisible               Signal = "visibility_visible"
	SignalBlur                  Signal = "blur"
	SignalFocus                 Signal = "focus"
	SignalFullscreenExit        Signal = "fullscreen_exit"
	SignalFullscreenEnter       Signal = "fullscreen_enter"
	SignalFullscreenDenied      Signal = "fullscreen_denied"
	SignalFullscreenUnsupported Signal = "fullscreen_unsupported"
)

// ParseSignal validates a signal name sent by the client.
func ParseSignal(s string) (Signal, error) {
	switch sig := Signal(s); sig {
	case SignalHidden, SignalVisible, SignalBlur, SignalFocus,
		SignalFullscreenExit, SignalFullscreenEnter,
		SignalFullscreenDenied, SignalFullscreenUnsupported:
		return sig, nil
	}
	return "", fmt.Errorf("unknown signal %q", s)
}

// Platform is the presentation surface of the exam client. Both calls are
// requests; the outcome comes back as a Signal.
type Platform interface {
	RequestFullscreen()
	ExitFullscreen()
}

// Monitor counts integrity violations: the student hiding the page, moving
// focus away, or leaving fullscreen. Each qualifying signal counts once,
// whichever kind it is.
//
// When the client cannot enter fullscreen at all, the monitor switches to a
// degraded mode that ignores fullscreen exits but keeps counting the rest.
// Degraded mode is sticky for the life of the monitor.
type Monitor struct {
	mu          sync.Mutex
	platform    Platform
	onViolation func(count int, signal Signal)

	running    bool
	stopped    bool
	degraded   bool
	violations int
}

// NewMonitor creates a stopped monitor. onViolation may be nil.
func NewMonitor(platform Platform, onViolation func(count int, signal Signal)) *Monitor {
	return &Monitor{platform: platform, onViolation: onViolation}
}

// Start begins counting and asks the client for fullscreen. Starting a
// monitor that was stopped has no effect.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running || m.stopped {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.requestFullscreen()
}

// Stop detaches the monitor and returns the final count. No signal is
// counted after Stop returns.
func (m *Monitor) Stop() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	m.stopped = true
	return m.violations
}

// Observe feeds one client signal. It reports whether a violation was counted.
func (m *Monitor) Observe(sig Signal) bool {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return false
	}

	switch sig {
	case SignalFullscreenDenied, SignalFullscreenUnsupported:
		m.degraded = true
		m.mu.Unlock()
		return false
	case SignalFullscreenExit:
		if m.degraded {
			m.mu.Unlock()
			return false
		}
	case SignalHidden, SignalBlur:
	default:
		m.mu.Unlock()
		return false
	}

	m.violations++
	count := m.violations
	m.mu.Unlock()

	if m.onViolation != nil {
		m.onViolation(count, sig)
	}
	return true
}

// Acknowledge is called once the student dismissed the violation warning.
// The monitor asks for fullscreen again.
func (m *Monitor) Acknowledge() {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if running {
		m.requestFullscreen()
	}
}

// Violations returns the current count.
func (m *Monitor) Violations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.violations
}

// Degraded reports whether fullscreen exits are being ignored.
func (m *Monitor) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

// Running reports whether signals are being counted.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) requestFullscreen() {
	if m.platform != nil {
		m.platform.RequestFullscreen()
	}
}
