package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fleetdesk/fleetdesk-client/internal/listener"
)

// Defaults applied by New.
const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultDialTimeout    = 10 * time.Second
)

// TokenSource supplies the current session token; "" means signed out.
type TokenSource interface {
	Token() string
}

// Notifier receives forwarded events.
type Notifier interface {
	Notify(ev listener.Event)
}

// Timer is a pending reconnect.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. Tests substitute a manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Manager.
type Options struct {
	// BaseURL is the http(s) or ws(s) URL the endpoint is derived from.
	BaseURL string
	// Path is the channel path; DefaultPath when empty.
	Path string

	ReconnectDelay time.Duration
	DialTimeout    time.Duration

	// Session is required.
	Session TokenSource
	// Notifier may be nil, in which case events are decoded and dropped.
	Notifier Notifier

	Dialer    Dialer
	AfterFunc AfterFunc
	Logger    Logger
}

// Manager owns the push channel. All methods are safe for concurrent use.
type Manager struct {
	opts Options

	mu         sync.Mutex
	state      State
	conn       Conn
	gen        uint64 // bumped on every dial and teardown; stale readers and dials check it
	dialCancel context.CancelFunc
	timer      Timer
	timerSeq   uint64 // bumped whenever the pending timer is replaced or cancelled
	stopped    bool
}

// New creates a Manager in the Closed state.
func New(opts Options) (*Manager, error) {
	if opts.Session == nil {
		return nil, ErrNoSession
	}
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer{}
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	return &Manager{opts: opts}, nil
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ReconnectPending reports whether a reconnect timer is armed.
func (m *Manager) ReconnectPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timer != nil
}

// Endpoint returns the URL Connect would dial.
func (m *Manager) Endpoint() (string, error) {
	return BuildURL(m.opts.BaseURL, m.opts.Path)
}

// Connect opens the channel.
//
// It returns nil without dialing when the channel is already Open or
// Connecting, or when the session holds no token. An endpoint that cannot
// be built leaves the manager Closed with no reconnect scheduled. A failed
// dial leaves it Closed with a reconnect scheduled, like a dropped
// connection.
//
// Both failures are logged here and recovery is the manager's job, so the
// returned error is informational: callers may ignore it or log it at
// debug level. Losing an open connection is never reported through it.
func (m *Manager) Connect(ctx context.Context) error {
	token := m.opts.Session.Token()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state == StateOpen || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	if token == "" {
		m.mu.Unlock()
		m.opts.Logger.Debug("realtime connect skipped, no session token")
		return nil
	}

	endpoint, err := m.Endpoint()
	if err != nil {
		m.state = StateClosed
		m.mu.Unlock()
		m.opts.Logger.Error("realtime endpoint invalid, not connecting", "error", err)
		return err
	}

	m.stopTimerLocked()
	m.gen++
	gen := m.gen
	m.state = StateConnecting
	dialCtx, cancel := context.WithTimeout(ctx, m.opts.DialTimeout)
	m.dialCancel = cancel
	m.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, err := m.opts.Dialer.Dial(dialCtx, endpoint, header)
	cancel()

	m.mu.Lock()
	if gen != m.gen {
		// Disconnect ran while dialing.
		m.mu.Unlock()
		if conn != nil {
			conn.Close() //nolint:errcheck // Discarding a superseded connection
		}
		return nil
	}
	m.dialCancel = nil

	if err != nil {
		m.state = StateClosed
		m.scheduleReconnectLocked()
		m.mu.Unlock()
		m.opts.Logger.Warn("realtime dial failed",
			"url", endpoint,
			"retry_in", m.opts.ReconnectDelay,
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrDialFailed, err)
	}

	m.conn = conn
	m.state = StateOpen
	m.mu.Unlock()

	m.opts.Logger.Info("realtime channel open", "url", endpoint)
	go m.readLoop(gen, conn)
	return nil
}

// Disconnect closes the channel and cancels any pending reconnect or
// in-flight dial. No reconnect follows. The handle is cleared before the
// socket close completes.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.stopTimerLocked()
	m.gen++
	gen := m.gen
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	conn := m.conn
	m.conn = nil
	if conn == nil {
		m.state = StateClosed
		m.mu.Unlock()
		return
	}
	m.state = StateClosing
	m.mu.Unlock()

	if err := conn.Close(); err != nil {
		m.opts.Logger.Debug("realtime close returned error", "error", err)
	}

	m.mu.Lock()
	if m.gen == gen && m.state == StateClosing {
		m.state = StateClosed
	}
	m.mu.Unlock()

	m.opts.Logger.Info("realtime channel disconnected")
}

// Close shuts the manager down permanently.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()

	m.Disconnect()
	return nil
}

// readLoop delivers messages from conn until it fails.
func (m *Manager) readLoop(gen uint64, conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(gen, conn, err)
			return
		}
		m.handleMessage(data)
	}
}

// handleMessage decodes one message and forwards device updates.
func (m *Manager) handleMessage(data []byte) {
	var ev listener.Event
	if err := json.Unmarshal(data, &ev); err != nil || ev == nil {
		m.opts.Logger.Warn("dropping malformed realtime message", "bytes", len(data), "error", err)
		return
	}

	if ev.Type() != listener.TypeDeviceUpdate {
		m.opts.Logger.Debug("ignoring realtime message", "type", ev.Type())
		return
	}
	if m.opts.Notifier != nil {
		m.opts.Notifier.Notify(ev)
	}
}

// handleClose reacts to the end of a connection not torn down by Disconnect.
func (m *Manager) handleClose(gen uint64, conn Conn, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = StateClosed
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	conn.Close() //nolint:errcheck // Connection already failed
	m.opts.Logger.Warn("realtime channel closed",
		"retry_in", m.opts.ReconnectDelay,
		"error", cause,
	)
}

// scheduleReconnectLocked arms the reconnect timer. Caller holds m.mu.
func (m *Manager) scheduleReconnectLocked() {
	if m.stopped {
		return
	}
	m.stopTimerLocked()
	seq := m.timerSeq
	m.timer = m.opts.AfterFunc(m.opts.ReconnectDelay, func() {
		m.fireReconnect(seq)
	})
}

// stopTimerLocked cancels the pending timer; a late firing becomes a no-op.
// Caller holds m.mu.
func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
}

func (m *Manager) fireReconnect(seq uint64) {
	m.mu.Lock()
	if seq != m.timerSeq || m.timer == nil || m.stopped {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()

	if m.opts.Session.Token() == "" {
		m.opts.Logger.Debug("reconnect skipped, session ended")
		return
	}

	m.opts.Logger.Info("realtime reconnecting")
	if err := m.Connect(context.Background()); err != nil {
		m.opts.Logger.Debug("reconnect attempt failed", "error", err)
	}
}
