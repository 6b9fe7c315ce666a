package bluetooth

import (
	"context"
	"iter"
	"sync"

	"github.com/kellegous/poop"
	"tinygo.org/x/bluetooth"

	iotterminal "github.com/KishorMore-2005/iot-terminal"
)

var (
	serviceUUID = mustParseUUID(iotterminal.ServiceID)
	rxUUID      = mustParseUUID(iotterminal.RXCharacteristicID)
	txUUID      = mustParseUUID(iotterminal.TXCharacteristicID)
)

func mustParseUUID(s string) bluetooth.UUID {
	uuid, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return uuid
}

// Client is the central-side BLE transport. It implements
// iotterminal.Chooser and iotterminal.Dialer.
type Client struct {
	adapter *bluetooth.Adapter

	mu       sync.Mutex
	sessions map[string]*Session // keyed by peer address
}

var (
	_ iotterminal.Chooser = (*Client)(nil)
	_ iotterminal.Dialer  = (*Client)(nil)
)

func NewClient(adapter *bluetooth.Adapter) (*Client, error) {
	if err := adapter.Enable(); err != nil {
		return nil, poop.Chain(err)
	}

	c := &Client{
		adapter:  adapter,
		sessions: make(map[string]*Session),
	}

	// The adapter reports connects and disconnects for all devices; route
	// them to the session for that address so the central's debounce can
	// ask whether a reported drop stuck.
	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		c.mu.Lock()
		s := c.sessions[device.Address.String()]
		c.mu.Unlock()
		if s == nil {
			return
		}
		s.alive.Store(connected)
		if !connected {
			s.notifier.Notify(iotterminal.EventDropped, "")
		}
	})

	return c, nil
}

func matchesFilter(result *bluetooth.ScanResult, filter iotterminal.Filter) bool {
	if filter.Name != "" && result.LocalName() == filter.Name {
		return true
	}
	if filter.Service != "" {
		if uuid, err := bluetooth.ParseUUID(filter.Service); err == nil {
			return result.HasServiceUUID(uuid)
		}
	}
	return false
}

// DiscoverDevices scans for peripherals matching the filter, yielding each
// matching device once.
func (c *Client) DiscoverDevices(ctx context.Context, filter iotterminal.Filter) iter.Seq2[*bluetooth.ScanResult, error] {
	return func(yield func(*bluetooth.ScanResult, error) bool) {
		seen := make(map[string]bool)

		go func() {
			<-ctx.Done()
			c.adapter.StopScan()
		}()

		if err := c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !matchesFilter(&result, filter) || seen[result.Address.String()] {
				return
			}

			seen[result.Address.String()] = true
			if !yield(&result, nil) {
				c.adapter.StopScan()
			}
		}); err != nil {
			yield(nil, poop.Chain(err))
		}
	}
}

// LookupDevice scans for a peripheral advertising the exact local name.
func (c *Client) LookupDevice(ctx context.Context, name string) (*bluetooth.ScanResult, error) {
	filter := iotterminal.Filter{Name: name, Service: iotterminal.ServiceID}
	for device, err := range c.DiscoverDevices(ctx, filter) {
		if err != nil {
			return nil, poop.Chain(err)
		}

		if device.LocalName() == name {
			return device, nil
		}
	}
	return nil, poop.Newf("device %s not found", name)
}

// Choose returns the first peripheral matching the filter. It is the
// programmatic stand-in for an interactive chooser prompt; cancel the
// context to cancel the selection.
func (c *Client) Choose(ctx context.Context, filter iotterminal.Filter) (iotterminal.PeerHandle, error) {
	for device, err := range c.DiscoverDevices(ctx, filter) {
		if err != nil {
			return nil, poop.Chain(err)
		}
		return &Peer{result: *device}, nil
	}
	return nil, poop.New("no matching peer found")
}

// Peer is a discovered peripheral.
type Peer struct {
	result bluetooth.ScanResult
}

var _ iotterminal.PeerHandle = (*Peer)(nil)

func (p *Peer) ID() string {
	return p.result.Address.String()
}

func (p *Peer) Name() string {
	return p.result.LocalName()
}

// Dial opens a connection to a peer previously returned by Choose or
// DiscoverDevices. Service resolution is a separate step on the session.
func (c *Client) Dial(ctx context.Context, peer iotterminal.PeerHandle) (iotterminal.Session, error) {
	p, ok := peer.(*Peer)
	if !ok {
		return nil, poop.Newf("peer %s was not discovered by this client", peer.ID())
	}

	device, err := c.adapter.Connect(p.result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, poop.Chain(err)
	}

	s := &Session{
		client:   c,
		id:       p.ID(),
		device:   device,
		notifier: iotterminal.NewNotifier(),
	}
	s.alive.Store(true)

	c.mu.Lock()
	c.sessions[s.id] = s
	c.mu.Unlock()

	return s, nil
}

func (c *Client) forget(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions[s.id] == s {
		delete(c.sessions, s.id)
	}
}
