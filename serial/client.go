// Package serial carries the same line protocol over a UART port, mostly
// for bench use without a radio. Messages are newline-delimited: one line
// is one message in either direction.
package serial

import (
	"context"

	"github.com/kellegous/poop"
	"go.bug.st/serial"

	iotterminal "github.com/KishorMore-2005/iot-terminal"
)

// Dialer connects the central controller to a device over a UART. It
// implements iotterminal.Chooser and iotterminal.Dialer; a serial link has
// exactly one peer, so Choose just hands back the configured port.
type Dialer struct {
	Port string
	Baud int
}

var (
	_ iotterminal.Chooser = (*Dialer)(nil)
	_ iotterminal.Dialer  = (*Dialer)(nil)
)

type endpoint string

func (e endpoint) ID() string {
	return string(e)
}

func (d *Dialer) Choose(ctx context.Context, filter iotterminal.Filter) (iotterminal.PeerHandle, error) {
	if d.Port == "" {
		return nil, poop.New("no serial port configured")
	}
	return endpoint(d.Port), nil
}

func (d *Dialer) Dial(ctx context.Context, peer iotterminal.PeerHandle) (iotterminal.Session, error) {
	baud := d.Baud
	if baud == 0 {
		baud = 115200
	}

	port, err := serial.Open(peer.ID(), &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		StopBits: serial.OneStopBit,
		Parity:   serial.NoParity,
	})
	if err != nil {
		return nil, poop.Chain(err)
	}

	s := &Session{
		port:     port,
		notifier: iotterminal.NewNotifier(),
	}
	s.alive.Store(true)
	return s, nil
}
