package iotterminal

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"
)

type logEntry struct {
	category string
	text     string
	severity Severity
}

type recordingSink struct {
	mu      sync.Mutex
	entries []logEntry
}

var _ Sink = (*recordingSink)(nil)

func (s *recordingSink) Emit(category, text string, severity Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, logEntry{category, text, severity})
}

func (s *recordingSink) contains(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if strings.Contains(e.text, substr) {
			return true
		}
	}
	return false
}

type fakePeer string

func (p fakePeer) ID() string {
	return string(p)
}

type fakeSession struct {
	mu      sync.Mutex
	writes  [][]byte
	notify  func(data []byte)
	dropped func()
	alive   bool
	closed  bool

	resolveErr   error
	subscribeErr error
	writeErr     error
}

var _ Session = (*fakeSession)(nil)

func (s *fakeSession) Resolve(ctx context.Context) error {
	return s.resolveErr
}

func (s *fakeSession) Subscribe(fn func(data []byte)) error {
	if s.subscribeErr != nil {
		return s.subscribeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notify = fn
	return nil
}

func (s *fakeSession) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.writes = append(s.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (s *fakeSession) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func (s *fakeSession) OnDropped(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = fn
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.alive = false
	return nil
}

func (s *fakeSession) setAlive(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alive = v
}

func (s *fakeSession) drop() {
	s.mu.Lock()
	fn := s.dropped
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *fakeSession) push(line string) {
	s.mu.Lock()
	fn := s.notify
	s.mu.Unlock()
	if fn != nil {
		fn([]byte(line))
	}
}

func (s *fakeSession) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

// fakeLink plays both Chooser and Dialer.
type fakeLink struct {
	peer        fakePeer
	session     *fakeSession
	chooseErr   error
	dialErr     error
	chooseBlock chan struct{}
}

var (
	_ Chooser = (*fakeLink)(nil)
	_ Dialer  = (*fakeLink)(nil)
)

func (l *fakeLink) Choose(ctx context.Context, filter Filter) (PeerHandle, error) {
	if l.chooseBlock != nil {
		<-l.chooseBlock
	}
	if l.chooseErr != nil {
		return nil, l.chooseErr
	}
	return l.peer, nil
}

func (l *fakeLink) Dial(ctx context.Context, peer PeerHandle) (Session, error) {
	if l.dialErr != nil {
		return nil, l.dialErr
	}
	return l.session, nil
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		peer:    fakePeer("AA:BB:CC:DD:EE:FF"),
		session: &fakeSession{alive: true},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestInitiate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		link := newFakeLink()
		c := NewCentral(link, link, nil)

		if err := c.Initiate(t.Context()); err != nil {
			t.Fatal(err)
		}
		if got := c.State(); got != StateReady {
			t.Fatalf("expected %s, got %s", StateReady, got)
		}
	})

	t.Run("no peer selected", func(t *testing.T) {
		link := newFakeLink()
		link.chooseErr = errors.New("cancelled")
		c := NewCentral(link, link, nil)

		err := c.Initiate(t.Context())
		if !HasReason(err, ReasonNoPeerSelected) {
			t.Fatalf("expected %s, got %v", ReasonNoPeerSelected, err)
		}
		if got := c.State(); got != StateErrorIdle {
			t.Fatalf("expected %s, got %s", StateErrorIdle, got)
		}
	})

	t.Run("connect failed", func(t *testing.T) {
		link := newFakeLink()
		link.dialErr = errors.New("unreachable")
		c := NewCentral(link, link, nil)

		err := c.Initiate(t.Context())
		if !HasReason(err, ReasonConnectFailed) {
			t.Fatalf("expected %s, got %v", ReasonConnectFailed, err)
		}
	})

	t.Run("incompatible peer", func(t *testing.T) {
		link := newFakeLink()
		link.session.resolveErr = errors.New("service not found")
		c := NewCentral(link, link, nil)

		err := c.Initiate(t.Context())
		if !HasReason(err, ReasonIncompatiblePeer) {
			t.Fatalf("expected %s, got %v", ReasonIncompatiblePeer, err)
		}
		if !link.session.closed {
			t.Fatal("session should be closed after resolve failure")
		}
	})

	t.Run("subscribe failed", func(t *testing.T) {
		link := newFakeLink()
		link.session.subscribeErr = errors.New("cccd write rejected")
		c := NewCentral(link, link, nil)

		err := c.Initiate(t.Context())
		if !HasReason(err, ReasonSubscribeFailed) {
			t.Fatalf("expected %s, got %v", ReasonSubscribeFailed, err)
		}
		if !link.session.closed {
			t.Fatal("session should be closed after subscribe failure")
		}
	})

	t.Run("retry after failure", func(t *testing.T) {
		link := newFakeLink()
		link.chooseErr = errors.New("cancelled")
		c := NewCentral(link, link, nil)

		if err := c.Initiate(t.Context()); err == nil {
			t.Fatal("expected an error")
		}

		link.chooseErr = nil
		if err := c.Initiate(t.Context()); err != nil {
			t.Fatal(err)
		}
		if got := c.State(); got != StateReady {
			t.Fatalf("expected %s, got %s", StateReady, got)
		}
	})

	t.Run("reentrant call rejected", func(t *testing.T) {
		link := newFakeLink()
		link.chooseBlock = make(chan struct{})
		c := NewCentral(link, link, nil)

		done := make(chan error, 1)
		go func() {
			done <- c.Initiate(context.Background())
		}()

		waitFor(t, "first initiate to start", func() bool {
			return c.State() == StateScanning
		})

		if err := c.Initiate(t.Context()); err == nil {
			t.Fatal("second initiate should be rejected")
		}

		close(link.chooseBlock)
		if err := <-done; err != nil {
			t.Fatal(err)
		}
		if got := c.State(); got != StateReady {
			t.Fatalf("expected %s, got %s", StateReady, got)
		}
	})

	t.Run("not valid from ready", func(t *testing.T) {
		link := newFakeLink()
		c := NewCentral(link, link, nil)

		if err := c.Initiate(t.Context()); err != nil {
			t.Fatal(err)
		}
		if err := c.Initiate(t.Context()); err == nil {
			t.Fatal("initiate from Ready should be rejected")
		}
	})
}

func TestSend(t *testing.T) {
	t.Run("rejected while idle", func(t *testing.T) {
		link := newFakeLink()
		c := NewCentral(link, link, nil)

		if err := c.Send("STATUS"); err == nil {
			t.Fatal("expected an error")
		}
		if n := link.session.writeCount(); n != 0 {
			t.Fatalf("expected 0 writes, got %d", n)
		}
	})

	t.Run("rejected when empty", func(t *testing.T) {
		link := newFakeLink()
		c := NewCentral(link, link, nil)
		if err := c.Initiate(t.Context()); err != nil {
			t.Fatal(err)
		}

		if err := c.Send("   "); err == nil {
			t.Fatal("expected an error")
		}
		if n := link.session.writeCount(); n != 0 {
			t.Fatalf("expected 0 writes, got %d", n)
		}
	})

	t.Run("one write per command", func(t *testing.T) {
		link := newFakeLink()
		c := NewCentral(link, link, nil)
		if err := c.Initiate(t.Context()); err != nil {
			t.Fatal(err)
		}

		if err := c.Send("STATUS"); err != nil {
			t.Fatal(err)
		}
		if n := link.session.writeCount(); n != 1 {
			t.Fatalf("expected 1 write, got %d", n)
		}
		if got := string(link.session.writes[0]); got != "STATUS" {
			t.Fatalf("expected %q, got %q", "STATUS", got)
		}
	})

	t.Run("newline terminated", func(t *testing.T) {
		link := newFakeLink()
		c := NewCentral(link, link, nil, WithNewlineTerminated())
		if err := c.Initiate(t.Context()); err != nil {
			t.Fatal(err)
		}

		if err := c.Send("LED ON"); err != nil {
			t.Fatal(err)
		}
		if got := string(link.session.writes[0]); got != "LED ON\n" {
			t.Fatalf("expected %q, got %q", "LED ON\n", got)
		}
	})

	t.Run("write failure keeps link ready", func(t *testing.T) {
		link := newFakeLink()
		c := NewCentral(link, link, nil)
		if err := c.Initiate(t.Context()); err != nil {
			t.Fatal(err)
		}

		link.session.writeErr = errors.New("gatt timeout")
		err := c.Send("STATUS")
		if !HasReason(err, ReasonWriteFailed) {
			t.Fatalf("expected %s, got %v", ReasonWriteFailed, err)
		}
		if got := c.State(); got != StateReady {
			t.Fatalf("expected %s, got %s", StateReady, got)
		}
	})
}

func TestNotification(t *testing.T) {
	var gotTemp float64
	var gotOk bool

	sink := &recordingSink{}
	link := newFakeLink()
	c := NewCentral(link, link, sink, WithTemperatureFunc(func(v float64) {
		gotTemp, gotOk = v, true
	}))
	if err := c.Initiate(t.Context()); err != nil {
		t.Fatal(err)
	}

	const line = "Temperature: 25.5 °C | Humidity: 60.2 %"
	link.session.push(line)

	if !gotOk || gotTemp != 25.5 {
		t.Fatalf("expected display update 25.5, got %v %v", gotTemp, gotOk)
	}
	if !sink.contains(line) {
		t.Fatal("expected the raw line to reach the sink verbatim")
	}

	// lines without the pattern are still displayed
	gotOk = false
	link.session.push("Hello! ESP32 Temperature Sensor ready!")
	if gotOk {
		t.Fatal("no display update expected")
	}
	if !sink.contains("ready!") {
		t.Fatal("expected the raw line to reach the sink")
	}
}

func TestTerminate(t *testing.T) {
	link := newFakeLink()
	c := NewCentral(link, link, nil)
	if err := c.Initiate(t.Context()); err != nil {
		t.Fatal(err)
	}

	if err := c.Terminate(); err != nil {
		t.Fatal(err)
	}
	if got := c.State(); got != StateIdle {
		t.Fatalf("expected %s, got %s", StateIdle, got)
	}
	if !link.session.closed {
		t.Fatal("session should be closed")
	}
	if err := c.Send("STATUS"); err == nil {
		t.Fatal("send after terminate should be rejected")
	}

	// a fresh session can be established from the clean idle state
	link.session = &fakeSession{alive: true}
	if err := c.Initiate(t.Context()); err != nil {
		t.Fatal(err)
	}
	if got := c.State(); got != StateReady {
		t.Fatalf("expected %s, got %s", StateReady, got)
	}
}

func TestPeerDropped(t *testing.T) {
	t.Run("confirmed after debounce", func(t *testing.T) {
		sink := &recordingSink{}
		link := newFakeLink()
		c := NewCentral(link, link, sink, WithDebounceWindow(5*time.Millisecond))
		if err := c.Initiate(t.Context()); err != nil {
			t.Fatal(err)
		}

		link.session.setAlive(false)
		link.session.drop()

		waitFor(t, "disconnect to finalize", func() bool {
			return c.State() == StateIdle
		})
		if !sink.contains("unexpected disconnect") {
			t.Fatal("expected an unexpected-disconnect log entry")
		}

		link.session = &fakeSession{alive: true}
		if err := c.Initiate(t.Context()); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("transient blip ignored", func(t *testing.T) {
		sink := &recordingSink{}
		link := newFakeLink()
		c := NewCentral(link, link, sink, WithDebounceWindow(5*time.Millisecond))
		if err := c.Initiate(t.Context()); err != nil {
			t.Fatal(err)
		}

		// the transport reports a drop but the session recovers before
		// the debounce window elapses
		link.session.drop()

		time.Sleep(30 * time.Millisecond)
		if got := c.State(); got != StateReady {
			t.Fatalf("expected %s, got %s", StateReady, got)
		}
		if sink.contains("unexpected disconnect") {
			t.Fatal("a transient blip must not produce a disconnect entry")
		}
	})

	t.Run("drop after terminate is a no-op", func(t *testing.T) {
		sink := &recordingSink{}
		link := newFakeLink()
		c := NewCentral(link, link, sink, WithDebounceWindow(5*time.Millisecond))
		if err := c.Initiate(t.Context()); err != nil {
			t.Fatal(err)
		}

		if err := c.Terminate(); err != nil {
			t.Fatal(err)
		}
		link.session.drop()

		time.Sleep(30 * time.Millisecond)
		if got := c.State(); got != StateIdle {
			t.Fatalf("expected %s, got %s", StateIdle, got)
		}
		if sink.contains("unexpected disconnect") {
			t.Fatal("drop after terminate must not log a disconnect")
		}
	})
}

func TestEvents(t *testing.T) {
	link := newFakeLink()
	c := NewCentral(link, link, nil)
	if err := c.Initiate(t.Context()); err != nil {
		t.Fatal(err)
	}

	next, done := iter.Pull2(c.Events(t.Context(), EventLine))
	defer done()

	go link.session.push("Temperature: 21.0 °C | Humidity: 40.0 %")

	event, err, ok := next()
	if !ok || err != nil {
		t.Fatalf("expected an event, got %v %v", err, ok)
	}
	if event.Kind != EventLine {
		t.Fatalf("expected %s, got %s", EventLine, event.Kind)
	}
	if event.Text != "Temperature: 21.0 °C | Humidity: 40.0 %" {
		t.Fatalf("unexpected event text %q", event.Text)
	}
}
