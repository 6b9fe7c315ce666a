package bluetooth

import (
	"context"
	"time"

	"github.com/kellegous/poop"
	"tinygo.org/x/bluetooth"

	iotterminal "github.com/KishorMore-2005/iot-terminal"
)

// Server is the peripheral-side BLE transport: it advertises the service,
// exposes the RX/TX characteristic pair and drives the device tick loop.
// It implements iotterminal.Pusher and iotterminal.Advertiser.
type Server struct {
	adapter *bluetooth.Adapter
	name    string
	tick    time.Duration

	tx  bluetooth.Characteristic
	adv *bluetooth.Advertisement
}

var (
	_ iotterminal.Pusher     = (*Server)(nil)
	_ iotterminal.Advertiser = (*Server)(nil)
)

type ServerOption func(*Server)

// WithLocalName overrides the advertised device name.
func WithLocalName(name string) ServerOption {
	return func(s *Server) {
		s.name = name
	}
}

// WithTickInterval sets the cadence of the device loop.
func WithTickInterval(d time.Duration) ServerOption {
	return func(s *Server) {
		s.tick = d
	}
}

func NewServer(adapter *bluetooth.Adapter, opts ...ServerOption) (*Server, error) {
	if err := adapter.Enable(); err != nil {
		return nil, poop.Chain(err)
	}
	s := &Server{
		adapter: adapter,
		name:    iotterminal.DeviceName,
		tick:    50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Notify implements iotterminal.Pusher by writing to the notify
// characteristic. One call is one message on the wire.
func (s *Server) Notify(p []byte) (int, error) {
	n, err := s.tx.Write(p)
	if err != nil {
		return n, poop.Chain(err)
	}
	return n, nil
}

// Start implements iotterminal.Advertiser.
func (s *Server) Start() error {
	if s.adv == nil {
		return poop.New("server is not serving")
	}
	return poop.Chain(s.adv.Start())
}

// Serve registers the GATT service, starts advertising and runs the tick
// loop until ctx is done. Transport callbacks and ticks are all delivered
// from this loop's goroutine or the adapter's event thread; dev is built
// for exactly that single-threaded regime.
func (s *Server) Serve(ctx context.Context, dev *iotterminal.Peripheral) error {
	s.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			dev.OnPeerConnect()
		} else {
			dev.OnPeerDisconnect()
		}
	})

	if err := s.adapter.AddService(&bluetooth.Service{
		UUID: serviceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				UUID: rxUUID,
				Flags: bluetooth.CharacteristicWritePermission |
					bluetooth.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					// value is only valid for the duration of the callback
					data := make([]byte, len(value))
					copy(data, value)
					dev.OnCommandReceived(data)
				},
			},
			{
				Handle: &s.tx,
				UUID:   txUUID,
				Flags: bluetooth.CharacteristicReadPermission |
					bluetooth.CharacteristicNotifyPermission,
			},
		},
	}); err != nil {
		return poop.Chain(err)
	}

	s.adv = s.adapter.DefaultAdvertisement()
	if err := s.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    s.name,
		ServiceUUIDs: []bluetooth.UUID{serviceUUID},
	}); err != nil {
		return poop.Chain(err)
	}
	if err := s.adv.Start(); err != nil {
		return poop.Chain(err)
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			dev.Tick()
		}
	}
}
