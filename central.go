package iotterminal

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/kellegous/poop"
)

// State is the lifecycle state of the central controller.
type State byte

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateServiceDiscovery
	StateSubscribing
	StateReady
	StateDisconnecting
	// StateErrorIdle absorbs any failure; the only way out is a fresh
	// Initiate.
	StateErrorIdle
)

var stateText = map[State]string{
	StateIdle:             "Idle",
	StateScanning:         "Scanning",
	StateConnecting:       "Connecting",
	StateServiceDiscovery: "ServiceDiscovery",
	StateSubscribing:      "Subscribing",
	StateReady:            "Ready",
	StateDisconnecting:    "Disconnecting",
	StateErrorIdle:        "ErrorIdle",
}

func (s State) String() string {
	return stateText[s]
}

// Filter narrows peer selection to the well-known device name, with the
// service identifier as fallback for peers that advertise the service but
// not the name.
type Filter struct {
	Name    string
	Service string
}

// PeerHandle identifies a selected peer.
type PeerHandle interface {
	ID() string
}

// Chooser is the peer-selection prompt. Cancellation or no match is an
// error; the central maps it to ReasonNoPeerSelected.
type Chooser interface {
	Choose(ctx context.Context, filter Filter) (PeerHandle, error)
}

// Dialer opens a transport session to a selected peer.
type Dialer interface {
	Dial(ctx context.Context, peer PeerHandle) (Session, error)
}

// Session is one transport connection. Resolve looks up the well-known
// service and characteristics, Subscribe registers the notification
// callback, Write sends one command message. Alive reports whether the
// transport still considers the peer attached; the drop debounce consults
// it before declaring the link dead.
type Session interface {
	Resolve(ctx context.Context) error
	Subscribe(fn func(data []byte)) error
	Write(p []byte) (int, error)
	Alive() bool
	OnDropped(fn func())
	Close() error
}

// Central is the client-side controller. A single operation is in flight
// at a time; reentrant calls are rejected, not queued.
type Central struct {
	chooser Chooser
	dialer  Dialer
	sink    Sink
	events  *EventCenter

	filter        Filter
	debounce      time.Duration
	newline       bool
	onTemperature func(v float64)

	mu      sync.Mutex
	state   State
	busy    bool
	peer    PeerHandle
	session Session
	dropGen int
}

type CentralOption func(*Central)

// WithFilter overrides the peer-selection filter.
func WithFilter(filter Filter) CentralOption {
	return func(c *Central) {
		c.filter = filter
	}
}

// WithDebounceWindow sets the grace window between a reported drop and the
// final disconnected transition. Transport layers can report transient
// disconnect blips during renegotiation; a session still alive when the
// window elapses is not treated as dropped.
func WithDebounceWindow(d time.Duration) CentralOption {
	return func(c *Central) {
		c.debounce = d
	}
}

// WithNewlineTerminated appends a trailing newline to command writes.
func WithNewlineTerminated() CentralOption {
	return func(c *Central) {
		c.newline = true
	}
}

// WithTemperatureFunc installs the live display hook fed by best-effort
// temperature extraction from telemetry lines.
func WithTemperatureFunc(fn func(v float64)) CentralOption {
	return func(c *Central) {
		c.onTemperature = fn
	}
}

func NewCentral(chooser Chooser, dialer Dialer, sink Sink, opts ...CentralOption) *Central {
	if sink == nil {
		sink = NopSink{}
	}
	c := &Central{
		chooser:  chooser,
		dialer:   dialer,
		sink:     sink,
		events:   NewEventCenter(),
		debounce: time.Second,
		filter: Filter{
			Name:    DeviceName,
			Service: ServiceID,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Central) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Events returns a live stream of link events of the given kinds.
func (c *Central) Events(ctx context.Context, kinds ...EventKind) iter.Seq2[Event, error] {
	return c.events.Subscribe(ctx, kinds...)
}

// Initiate runs the full connection chain: peer selection, connect,
// service resolution, subscription. Valid only while idle. Any stage
// failure lands in ErrorIdle with the session fields cleared, and Initiate
// may be retried immediately.
func (c *Central) Initiate(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return poop.New("another operation is in flight")
	}
	if c.state != StateIdle && c.state != StateErrorIdle {
		c.mu.Unlock()
		return poop.Newf("initiate is not valid from %s", c.state)
	}
	c.busy = true
	c.state = StateScanning
	filter := c.filter
	c.mu.Unlock()

	peer, session, err := c.establish(ctx, filter)

	c.mu.Lock()
	c.busy = false
	if err != nil {
		c.peer, c.session = nil, nil
		c.state = StateErrorIdle
		c.mu.Unlock()
		c.sink.Emit(CategoryLink, err.Error(), SeverityError)
		return err
	}
	c.peer, c.session = peer, session
	c.state = StateReady
	c.mu.Unlock()

	c.sink.Emit(CategoryLink, fmt.Sprintf("subscribed; link to %s ready", peer.ID()), SeverityInfo)
	c.events.Publish(EventConnected, peer.ID())
	return nil
}

func (c *Central) establish(ctx context.Context, filter Filter) (PeerHandle, Session, error) {
	peer, err := c.chooser.Choose(ctx, filter)
	if err != nil {
		return nil, nil, failedWith(ReasonNoPeerSelected, err)
	}

	c.setState(StateConnecting)
	session, err := c.dialer.Dial(ctx, peer)
	if err != nil {
		return nil, nil, failedWith(ReasonConnectFailed, err)
	}

	c.setState(StateServiceDiscovery)
	if err := session.Resolve(ctx); err != nil {
		session.Close()
		return nil, nil, failedWith(ReasonIncompatiblePeer, err)
	}

	c.setState(StateSubscribing)
	session.OnDropped(func() {
		c.onPeerDropped(session)
	})
	if err := session.Subscribe(c.onNotification); err != nil {
		session.Close()
		return nil, nil, failedWith(ReasonSubscribeFailed, err)
	}

	return peer, session, nil
}

func (c *Central) setState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

// Send writes one command message. Valid only from Ready with a non-empty
// command; rejections never touch the transport. A transport failure is
// logged and returned, and the link stays Ready.
func (c *Central) Send(command string) error {
	data, ok := EncodeCommand(command, c.newline)
	if !ok {
		c.sink.Emit(CategoryCommand, "ignoring empty command", SeverityWarn)
		return poop.New("empty command")
	}

	c.mu.Lock()
	session := c.session
	ready := c.state == StateReady
	c.mu.Unlock()

	if !ready || session == nil {
		c.sink.Emit(CategoryCommand, "cannot send: not connected", SeverityError)
		return poop.New("not connected")
	}

	if _, err := session.Write(data); err != nil {
		lerr := failedWith(ReasonWriteFailed, err)
		c.sink.Emit(CategoryCommand, lerr.Error(), SeverityError)
		return lerr
	}

	c.sink.Emit(CategoryCommand, fmt.Sprintf("sent: %s", command), SeverityDebug)
	return nil
}

func (c *Central) onNotification(data []byte) {
	line := string(data)
	if v, ok := ParseTemperature(line); ok && c.onTemperature != nil {
		c.onTemperature(v)
	}
	c.sink.Emit(CategoryTelemetry, line, SeverityInfo)
	c.events.Publish(EventLine, line)
}

// Terminate closes the session and always lands in Idle with all session
// fields cleared, even if the close itself fails.
func (c *Central) Terminate() error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return poop.New("another operation is in flight")
	}
	session := c.session
	c.dropGen++ // cancel any pending drop confirmation
	c.peer, c.session = nil, nil
	c.state = StateDisconnecting
	c.mu.Unlock()

	var err error
	if session != nil {
		err = session.Close()
	}

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()

	c.sink.Emit(CategoryLink, "disconnected", SeverityInfo)
	if err != nil {
		return poop.Chain(err)
	}
	return nil
}

// onPeerDropped handles an unsolicited drop report from the transport. The
// final transition is deferred by the debounce window and skipped entirely
// if the session turns out to still be alive.
func (c *Central) onPeerDropped(session Session) {
	c.mu.Lock()
	if c.session != session {
		c.mu.Unlock()
		return
	}
	c.dropGen++
	gen := c.dropGen
	c.mu.Unlock()

	c.sink.Emit(CategoryLink, "peer drop reported, waiting to confirm", SeverityDebug)

	time.AfterFunc(c.debounce, func() {
		c.mu.Lock()
		if c.dropGen != gen || c.session != session {
			c.mu.Unlock()
			return
		}
		if session.Alive() {
			c.mu.Unlock()
			c.sink.Emit(CategoryLink, "transient drop ignored, session still alive", SeverityDebug)
			return
		}
		c.peer, c.session = nil, nil
		c.state = StateIdle
		c.mu.Unlock()

		session.Close()
		c.sink.Emit(CategoryLink, "unexpected disconnect", SeverityError)
		c.events.Publish(EventDropped, ReasonUnexpectedDisconnect.String())
	})
}

// Shutdown terminates any active session and cancels all event
// subscribers.
func (c *Central) Shutdown() {
	c.Terminate()
	c.events.Shutdown()
}
