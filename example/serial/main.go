// Talks to a device over a UART instead of the radio.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kellegous/poop"
	"github.com/sirupsen/logrus"

	iotterminal "github.com/KishorMore-2005/iot-terminal"
	iotterminal_serial "github.com/KishorMore-2005/iot-terminal/serial"
)

func main() {
	if err := run(context.Background()); err != nil {
		poop.HitFan(err)
	}
}

func run(ctx context.Context) error {
	var baud int
	flag.IntVar(&baud, "baud", 115200, "baud rate")
	flag.Parse()

	if flag.NArg() != 1 {
		return poop.Newf("expected 1 argument, got %d", flag.NArg())
	}

	dialer := &iotterminal_serial.Dialer{
		Port: flag.Arg(0),
		Baud: baud,
	}

	central := iotterminal.NewCentral(
		dialer,
		dialer,
		iotterminal.NewLogSink(logrus.New()),
		iotterminal.WithNewlineTerminated(),
	)
	defer central.Shutdown()

	if err := central.Initiate(ctx); err != nil {
		return poop.Chain(err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := scanner.Text()
		if line == "exit" || line == "quit" {
			break
		}
		if err := central.Send(line); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}

	return poop.Chain(central.Terminate())
}
