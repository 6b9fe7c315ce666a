// Interactive terminal for the sensor link.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kellegous/poop"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"tinygo.org/x/bluetooth"

	iotterminal "github.com/KishorMore-2005/iot-terminal"
	iotterminal_bluetooth "github.com/KishorMore-2005/iot-terminal/bluetooth"
	"github.com/KishorMore-2005/iot-terminal/config"
)

func main() {
	app := cli.NewApp()
	app.Name = "iot-terminal"
	app.Usage = "talk to the temperature sensor over BLE"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to a YAML config file",
		},
		cli.StringFlag{
			Name:  "name",
			Usage: "advertised device name to connect to",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "scan",
			Usage:  "list matching devices",
			Action: scanAction,
		},
		{
			Name:   "watch",
			Usage:  "connect and stream telemetry until interrupted",
			Action: watchAction,
		},
		{
			Name:      "send",
			Usage:     "connect, send one command and print the replies",
			ArgsUsage: "<command>",
			Action:    sendAction,
		},
		{
			Name:   "repl",
			Usage:  "connect and send commands read from stdin",
			Action: replAction,
		},
	}

	if err := app.Run(os.Args); err != nil {
		poop.HitFan(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.GlobalString("config"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, poop.Chain(err)
		}
	}
	if name := c.GlobalString("name"); name != "" {
		cfg.DeviceName = name
	}
	if err := cfg.Validate(); err != nil {
		return nil, poop.Chain(err)
	}
	return cfg, nil
}

func newCentral(cfg *config.Config) (*iotterminal.Central, *iotterminal_bluetooth.Client, error) {
	client, err := iotterminal_bluetooth.NewClient(bluetooth.DefaultAdapter)
	if err != nil {
		return nil, nil, poop.Chain(err)
	}

	log := logrus.New()
	log.SetLevel(cfg.Level())

	opts := []iotterminal.CentralOption{
		iotterminal.WithFilter(iotterminal.Filter{
			Name:    cfg.DeviceName,
			Service: iotterminal.ServiceID,
		}),
		iotterminal.WithDebounceWindow(cfg.Debounce()),
	}
	if cfg.NewlineTerminated {
		opts = append(opts, iotterminal.WithNewlineTerminated())
	}

	central := iotterminal.NewCentral(client, client, iotterminal.NewLogSink(log), opts...)
	return central, client, nil
}

func scanAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	client, err := iotterminal_bluetooth.NewClient(bluetooth.DefaultAdapter)
	if err != nil {
		return poop.Chain(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := iotterminal.Filter{
		Name:    cfg.DeviceName,
		Service: iotterminal.ServiceID,
	}
	for device, err := range client.DiscoverDevices(ctx, filter) {
		if err != nil {
			return poop.Chain(err)
		}
		fmt.Printf("%s  %s\n", device.Address.String(), device.LocalName())
	}
	return nil
}

func watchAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	central, _, err := newCentral(cfg)
	if err != nil {
		return err
	}
	defer central.Shutdown()

	ctx := context.Background()
	if err := central.Initiate(ctx); err != nil {
		return poop.Chain(err)
	}

	for event, err := range central.Events(ctx, iotterminal.EventLine, iotterminal.EventDropped) {
		if err != nil {
			return poop.Chain(err)
		}
		if event.Kind == iotterminal.EventDropped {
			return poop.New("link dropped")
		}
		fmt.Println(event.Text)
	}
	return nil
}

func sendAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return poop.Newf("expected 1 argument, got %d", c.NArg())
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	central, _, err := newCentral(cfg)
	if err != nil {
		return err
	}
	defer central.Shutdown()

	if err := central.Initiate(context.Background()); err != nil {
		return poop.Chain(err)
	}

	if err := central.Send(c.Args().First()); err != nil {
		return poop.Chain(err)
	}

	// give the device a moment to reply; the sink prints the lines
	time.Sleep(2 * time.Second)
	return poop.Chain(central.Terminate())
}

func replAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	central, _, err := newCentral(cfg)
	if err != nil {
		return err
	}
	defer central.Shutdown()

	if err := central.Initiate(context.Background()); err != nil {
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
