package bluetooth

import (
	"context"
	"sync/atomic"

	"github.com/kellegous/poop"
	"tinygo.org/x/bluetooth"

	iotterminal "github.com/KishorMore-2005/iot-terminal"
)

// Session is one BLE connection to a peripheral.
type Session struct {
	client *Client
	id     string
	device bluetooth.Device

	rx bluetooth.DeviceCharacteristic // central -> device
	tx bluetooth.DeviceCharacteristic // device -> central

	resolved bool
	alive    atomic.Bool
	notifier *iotterminal.Notifier
}

var _ iotterminal.Session = (*Session)(nil)

// Resolve looks up the well-known service and its two characteristics. A
// peer without them is incompatible.
func (s *Session) Resolve(ctx context.Context) error {
	services, err := s.device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil {
		return poop.Chain(err)
	}
	if len(services) != 1 {
		return poop.Newf("expected 1 service, got %d", len(services))
	}

	characteristics, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{rxUUID, txUUID})
	if err != nil {
		return poop.Chain(err)
	}
	if len(characteristics) != 2 {
		return poop.Newf("expected 2 characteristics, got %d", len(characteristics))
	}

	s.rx, s.tx = characteristics[0], characteristics[1]
	s.resolved = true
	return nil
}

// Subscribe enables notifications on the device->central characteristic.
func (s *Session) Subscribe(fn func(data []byte)) error {
	if !s.resolved {
		return poop.New("session is not resolved")
	}
	return poop.Chain(s.tx.EnableNotifications(fn))
}

// Write sends one command message, preferring the non-acknowledged write
// mode and falling back to an acknowledged write when the peer rejects it.
func (s *Session) Write(p []byte) (int, error) {
	if !s.resolved {
		return 0, poop.New("session is not resolved")
	}

	if n, err := s.rx.WriteWithoutResponse(p); err == nil {
		return n, nil
	}

	n, err := s.rx.Write(p)
	if err != nil {
		return n, poop.Chain(err)
	}
	return n, nil
}

func (s *Session) Alive() bool {
	return s.alive.Load()
}

func (s *Session) OnDropped(fn func()) {
	s.notifier.Subscribe(iotterminal.EventDropped, func(string) {
		fn()
	})
}

func (s *Session) Close() error {
	s.alive.Store(false)
	s.client.forget(s)
	return s.device.Disconnect()
}
