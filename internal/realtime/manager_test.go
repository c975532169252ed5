package realtime

import (
	"context"
	"errors"
	"io"
	"net/http"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/fleetdesk/fleetdesk-client/internal/listener"
)

// =============================================================================
// Fakes
// =============================================================================

// tokenBox is a mutable TokenSource.
type tokenBox struct {
	mu    sync.Mutex
	token string
}

func (b *tokenBox) Token() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token
}

func (b *tokenBox) set(token string) {
	b.mu.Lock()
	b.token = token
	b.mu.Unlock()
}

// fakeConn delivers queued messages and fails once closed.
type fakeConn struct {
	msgs      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error // returned by ReadMessage after drop()
}

func newFakeConn() *fakeConn {
	return &fakeConn{msgs: make(chan []byte, 16), done: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-c.msgs:
		return 1, msg, nil
	case <-c.done:
		if c.closeErr != nil {
			return 0, nil, c.closeErr
		}
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) send(msg string) { c.msgs <- []byte(msg) }

// drop simulates the server going away.
func (c *fakeConn) drop() {
	c.closeErr = errors.New("connection reset by peer")
	c.Close() //nolint:errcheck // Test helper
}

func (c *fakeConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// fakeDialer hands out connections and records each dial.
type fakeDialer struct {
	mu      sync.Mutex
	urls    []string
	headers []http.Header
	conns   []*fakeConn
	err     error
	block   bool // wait for ctx cancellation
}

func (d *fakeDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	d.headers = append(d.headers, header.Clone())
	err, block := d.err, d.block
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

// fakeScheduler captures timers so tests fire them explicitly.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// fire runs the most recent timer's callback regardless of Stop, the way a
// real timer can fire concurrently with a Stop that loses the race.
func (s *fakeScheduler) fire() *fakeTimer {
	s.mu.Lock()
	t := s.timers[len(s.timers)-1]
	s.mu.Unlock()
	t.fn()
	return t
}

// eventSink is a Notifier that records events.
type eventSink struct {
	mu     sync.Mutex
	events []listener.Event
}

func (s *eventSink) Notify(ev listener.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *eventSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// =============================================================================
// Helpers
// =============================================================================

type harness struct {
	mgr    *Manager
	token  *tokenBox
	dialer *fakeDialer
	sched  *fakeScheduler
	sink   *eventSink
}

func newHarness(t *testing.T, token string) *harness {
	t.Helper()

	h := &harness{
		token:  &tokenBox{token: token},
		dialer: &fakeDialer{},
		sched:  &fakeScheduler{},
		sink:   &eventSink{},
	}
	mgr, err := New(Options{
		BaseURL:   "http://fleet.example.com:8001/api",
		Session:   h.token,
		Notifier:  h.sink,
		Dialer:    h.dialer,
		AfterFunc: h.sched.AfterFunc,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { mgr.Close() }) //nolint:errcheck // Test cleanup
	h.mgr = mgr
	return h
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// =============================================================================
// Tests
// =============================================================================

func TestNew_RequiresSession(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrNoSession) {
		t.Errorf("New() error = %v, want ErrNoSession", err)
	}
}

func TestConnect_NoTokenNoChannel(t *testing.T) {
	h := newHarness(t, "")

	if err := h.mgr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if h.dialer.dials() != 0 {
		t.Errorf("dials = %d, want 0", h.dialer.dials())
	}
	if h.mgr.State() != StateClosed {
		t.Errorf("State() = %v, want closed", h.mgr.State())
	}
}

func TestConnect_Opens(t *testing.T) {
	h := newHarness(t, "tok-1")

	if err := h.mgr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if h.mgr.State() != StateOpen {
		t.Fatalf("State() = %v, want open", h.mgr.State())
	}
	if got := h.dialer.urls[0]; got != "ws://fleet.example.com:8001/ws" {
		t.Errorf("dialed %q", got)
	}
	if got := h.dialer.headers[0].Get("Authorization"); got != "Bearer tok-1" {
		t.Errorf("Authorization = %q", got)
	}

	// Already open: no second channel.
	if err := h.mgr.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	if h.dialer.dials() != 1 {
		t.Errorf("dials = %d, want 1", h.dialer.dials())
	}
}

func TestMessages(t *testing.T) {
	h := newHarness(t, "tok-1")
	if err := h.mgr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	conn := h.dialer.lastConn()

	conn.send(`{"type":"device_update","device_id":"d1","status":"occupied"}`)
	conn.send(`not json`)
	conn.send(`null`)
	conn.send(`{"type":"heartbeat"}`)
	conn.send(`{"type":"device_update","timestamp":"2026-10-19T10:00:00Z"}`)

	waitFor(t, "two device updates", func() bool { return h.sink.len() == 2 })

	h.sink.mu.Lock()
	first, second := h.sink.events[0], h.sink.events[1]
	h.sink.mu.Unlock()
	if first.DeviceID() != "d1" || first["status"] != "occupied" {
		t.Errorf("first event = %v", first)
	}
	if second.DeviceID() != "" || second["timestamp"] == nil {
		t.Errorf("second event = %v, want broadcast passed through whole", second)
	}

	// Malformed messages do not drop the channel.
	if h.mgr.State() != StateOpen {
		t.Errorf("State() = %v after malformed messages, want open", h.mgr.State())
	}
	if h.sched.count() != 0 {
		t.Error("malformed messages should not schedule a reconnect")
	}
}

func TestServerClose_SchedulesReconnect(t *testing.T) {
	h := newHarness(t, "tok-1")
	_ = h.mgr.Connect(context.Background())

	h.dialer.lastConn().drop()
	waitFor(t, "closed state", func() bool { return h.mgr.State() == StateClosed })

	if h.sched.count() != 1 {
		t.Fatalf("timers = %d, want exactly 1", h.sched.count())
	}
	if !h.mgr.ReconnectPending() {
		t.Error("ReconnectPending() = false after drop")
	}
	if d := h.sched.timers[0].delay; d != DefaultReconnectDelay {
		t.Errorf("delay = %v, want %v", d, DefaultReconnectDelay)
	}

	h.sched.fire()
	if h.dialer.dials() != 2 {
		t.Errorf("dials = %d after timer, want 2", h.dialer.dials())
	}
	if h.mgr.State() != StateOpen {
		t.Errorf("State() = %v after reconnect, want open", h.mgr.State())
	}
}

func TestDisconnectDuringDelay_NoReconnect(t *testing.T) {
	h := newHarness(t, "tok-1")
	_ = h.mgr.Connect(context.Background())

	h.dialer.lastConn().drop()
	waitFor(t, "reconnect scheduled", h.mgr.ReconnectPending)

	h.mgr.Disconnect()
	if h.mgr.ReconnectPending() {
		t.Error("ReconnectPending() = true after Disconnect")
	}

	timer := h.sched.fire()
	if !timer.stopped {
		t.Error("Disconnect should stop the pending timer")
	}
	if h.dialer.dials() != 1 {
		t.Errorf("dials = %d, want 1 (late timer must be ignored)", h.dialer.dials())
	}
	if h.mgr.State() != StateClosed {
		t.Errorf("State() = %v, want closed", h.mgr.State())
	}
}

func TestSessionClearedDuringDelay_NoReconnect(t *testing.T) {
	h := newHarness(t, "tok-1")
	_ = h.mgr.Connect(context.Background())

	h.dialer.lastConn().drop()
	waitFor(t, "reconnect scheduled", h.mgr.ReconnectPending)

	h.token.set("")
	h.sched.fire()

	if h.dialer.dials() != 1 {
		t.Errorf("dials = %d, want 1", h.dialer.dials())
	}
	if h.mgr.State() != StateClosed {
		t.Errorf("State() = %v, want closed", h.mgr.State())
	}
}

func TestDisconnect_ClosesImmediately(t *testing.T) {
	h := newHarness(t, "tok-1")
	_ = h.mgr.Connect(context.Background())
	conn := h.dialer.lastConn()

	h.mgr.Disconnect()

	if h.mgr.State() != StateClosed {
		t.Errorf("State() = %v, want closed", h.mgr.State())
	}
	if !conn.closed() {
		t.Error("connection was not closed")
	}

	// The read loop exits without scheduling a reconnect.
	time.Sleep(20 * time.Millisecond)
	if h.sched.count() != 0 {
		t.Errorf("timers = %d after Disconnect, want 0", h.sched.count())
	}

	// A later Connect opens a fresh channel.
	if err := h.mgr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() after Disconnect error = %v", err)
	}
	if h.dialer.dials() != 2 || h.mgr.State() != StateOpen {
		t.Errorf("dials = %d state = %v, want 2/open", h.dialer.dials(), h.mgr.State())
	}
}

func TestDialFailure_SchedulesReconnect(t *testing.T) {
	h := newHarness(t, "tok-1")
	h.dialer.setErr(errors.New("connection refused"))

	err := h.mgr.Connect(context.Background())
	if !errors.Is(err, ErrDialFailed) {
		t.Fatalf("Connect() error = %v, want ErrDialFailed", err)
	}
	if h.mgr.State() != StateClosed {
		t.Errorf("State() = %v, want closed", h.mgr.State())
	}
	if !h.mgr.ReconnectPending() {
		t.Fatal("dial failure should schedule a reconnect")
	}

	h.dialer.setErr(nil)
	h.sched.fire()
	if h.mgr.State() != StateOpen {
		t.Errorf("State() = %v after retry, want open", h.mgr.State())
	}
}

func TestInvalidEndpoint_NoReconnect(t *testing.T) {
	mgr, err := New(Options{
		BaseURL: "ftp://fleet.example.com",
		Session: &tokenBox{token: "tok-1"},
		Dialer:  &fakeDialer{},
		AfterFunc: func(time.Duration, func()) Timer {
			t.Fatal("no timer expected")
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := mgr.Connect(context.Background()); !errors.Is(err, ErrInvalidEndpoint) {
		t.Errorf("Connect() error = %v, want ErrInvalidEndpoint", err)
	}
	if mgr.State() != StateClosed || mgr.ReconnectPending() {
		t.Errorf("State() = %v pending = %v, want closed without reconnect", mgr.State(), mgr.ReconnectPending())
	}
}

// levelLogger records the level of every log line.
type levelLogger struct {
	mu     sync.Mutex
	levels []string
}

func (l *levelLogger) add(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels = append(l.levels, level)
}

func (l *levelLogger) Debug(string, ...any) { l.add("debug") }
func (l *levelLogger) Info(string, ...any)  { l.add("info") }
func (l *levelLogger) Warn(string, ...any)  { l.add("warn") }
func (l *levelLogger) Error(string, ...any) { l.add("error") }

func (l *levelLogger) has(level string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Contains(l.levels, level)
}

func TestConnectFailures_LoggedByManager(t *testing.T) {
	tests := []struct {
		name      string
		baseURL   string
		dialErr   error
		wantLevel string
	}{
		{name: "invalid endpoint", baseURL: "ftp://fleet.example.com", wantLevel: "error"},
		{name: "dial failure", baseURL: "http://fleet.example.com", dialErr: errors.New("connection refused"), wantLevel: "warn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &levelLogger{}
			dialer := &fakeDialer{}
			dialer.setErr(tt.dialErr)
			sched := &fakeScheduler{}
			mgr, err := New(Options{
				BaseURL:   tt.baseURL,
				Session:   &tokenBox{token: "tok-1"},
				Dialer:    dialer,
				AfterFunc: sched.AfterFunc,
				Logger:    logger,
			})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer mgr.Close() //nolint:errcheck // Test cleanup

			if err := mgr.Connect(context.Background()); err == nil {
				t.Fatal("Connect() error = nil, want a failure")
			}
			if !logger.has(tt.wantLevel) {
				t.Errorf("no %s log for the failure, got %v", tt.wantLevel, logger.levels)
			}
		})
	}
}

func TestDisconnect_AbortsDial(t *testing.T) {
	h := newHarness(t, "tok-1")
	h.dialer.block = true

	done := make(chan error, 1)
	go func() { done <- h.mgr.Connect(context.Background()) }()

	waitFor(t, "connecting state", func() bool { return h.mgr.State() == StateConnecting })
	h.mgr.Disconnect()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("aborted Connect() error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("dial was not aborted")
	}

	if h.mgr.State() != StateClosed || h.mgr.ReconnectPending() {
		t.Errorf("State() = %v pending = %v, want closed without reconnect", h.mgr.State(), h.mgr.ReconnectPending())
	}
}

func TestClose_Permanent(t *testing.T) {
	h := newHarness(t, "tok-1")
	_ = h.mgr.Connect(context.Background())

	if err := h.mgr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := h.mgr.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect() after Close error = %v, want ErrClosed", err)
	}
}

func TestListenerMayDisconnect(t *testing.T) {
	h := newHarness(t, "tok-1")
	reg := listener.NewRegistry()
	reg.SubscribeFunc(func(listener.Event) error {
		h.mgr.Disconnect()
		return nil
	})
	h.mgr.opts.Notifier = reg

	_ = h.mgr.Connect(context.Background())
	h.dialer.lastConn().send(`{"type":"device_update","device_id":"d1"}`)

	waitFor(t, "disconnect from listener", func() bool { return h.mgr.State() == StateClosed })
	if h.mgr.ReconnectPending() {
		t.Error("Disconnect from a listener should not leave a reconnect pending")
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateClosed:     "closed",
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateClosing:    "closing",
		State(42):       "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
