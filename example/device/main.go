// Runs the sensor-side controller on the default adapter, standing in a
// simulated DHT22 and LED when no real hardware is wired up.
package main

import (
	"context"
	"errors"
	"flag"
	"math/rand"
	"os/signal"
	"syscall"
	"time"

	"github.com/kellegous/poop"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	iotterminal "github.com/KishorMore-2005/iot-terminal"
	iotterminal_bluetooth "github.com/KishorMore-2005/iot-terminal/bluetooth"
)

type simSensor struct {
	failEvery int
	reads     int
}

func (s *simSensor) Read() (iotterminal.Reading, error) {
	s.reads++
	if s.failEvery > 0 && s.reads%s.failEvery == 0 {
		return iotterminal.Reading{}, poop.New("simulated read failure")
	}
	return iotterminal.Reading{
		Temperature: 22 + rand.Float64()*4,
		Humidity:    55 + rand.Float64()*10,
	}, nil
}

type logLED struct {
	log *logrus.Logger
	on  bool
}

func (l *logLED) Set(on bool) {
	l.on = on
	l.log.WithField("category", iotterminal.CategoryDevice).Infof("led: on=%v", on)
}

func (l *logLED) Get() bool {
	return l.on
}

func main() {
	if err := run(); err != nil {
		poop.HitFan(err)
	}
}

func run() error {
	var name string
	var interval time.Duration
	var failEvery int
	flag.StringVar(
		&name,
		"name",
		iotterminal.DeviceName,
		"advertised device name",
	)
	flag.DurationVar(
		&interval,
		"interval",
		2*time.Second,
		"telemetry push interval",
	)
	flag.IntVar(
		&failEvery,
		"fail-every",
		0,
		"simulate a sensor failure every n reads",
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logrus.New()

	server, err := iotterminal_bluetooth.NewServer(
		bluetooth.DefaultAdapter,
		iotterminal_bluetooth.WithLocalName(name),
	)
	if err != nil {
		return poop.Chain(err)
	}

	dev := iotterminal.NewPeripheral(
		&simSensor{failEvery: failEvery},
		&logLED{log: log},
		server,
		server,
		iotterminal.NewLogSink(log),
		iotterminal.WithTelemetryInterval(interval),
	)

	if err := server.Serve(ctx, dev); err != nil && !errors.Is(err, context.Canceled) {
		return poop.Chain(err)
	}
	return nil
}
