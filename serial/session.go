package serial

import (
	"bufio"
	"context"
	"sync/atomic"

	"github.com/kellegous/poop"
	"go.bug.st/serial"

	iotterminal "github.com/KishorMore-2005/iot-terminal"
)

// Session is one open UART link.
type Session struct {
	port       serial.Port
	alive      atomic.Bool
	subscribed atomic.Bool
	notifier   *iotterminal.Notifier
}

var _ iotterminal.Session = (*Session)(nil)

// Resolve is a no-op; a UART has no services to discover.
func (s *Session) Resolve(ctx context.Context) error {
	return nil
}

// Subscribe starts the reader goroutine that frames inbound bytes into
// lines and hands each line to fn.
func (s *Session) Subscribe(fn func(data []byte)) error {
	if !s.subscribed.CompareAndSwap(false, true) {
		return poop.New("already subscribed")
	}
	go s.readLines(fn)
	return nil
}

func (s *Session) readLines(fn func(data []byte)) {
	scanner := bufio.NewScanner(s.port)
	for scanner.Scan() {
		line := scanner.Bytes()
		data := make([]byte, len(line))
		copy(data, line)
		fn(data)
	}

	// EOF or a read error means the port went away underneath us.
	if s.alive.CompareAndSwap(true, false) {
		s.notifier.Notify(iotterminal.EventDropped, "")
	}
}

// Write sends one command message. The device frames on newline, so one is
// appended when the caller's policy did not already include it.
func (s *Session) Write(p []byte) (int, error) {
	if len(p) == 0 || p[len(p)-1] != '\n' {
		buf := make([]byte, 0, len(p)+1)
		buf = append(buf, p...)
		p = append(buf, '\n')
	}

	n, err := s.port.Write(p)
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
	return s.port.Close()
}
