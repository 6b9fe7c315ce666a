package bluetooth_test

import (
	"context"
	"log"
	"time"

	"tinygo.org/x/bluetooth"

	iotterminal "github.com/KishorMore-2005/iot-terminal"
	iotterminal_bluetooth "github.com/KishorMore-2005/iot-terminal/bluetooth"
)

// Connect to the sensor and stream telemetry lines for a minute.
func ExampleClient() {
	client, err := iotterminal_bluetooth.NewClient(bluetooth.DefaultAdapter)
	if err != nil {
		log.Fatal(err)
	}

	central := iotterminal.NewCentral(client, client, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := central.Initiate(ctx); err != nil {
		log.Fatal(err)
	}
	defer central.Terminate()

	for event, err := range central.Events(ctx, iotterminal.EventLine) {
		if err != nil {
			log.Fatal(err)
		}
		log.Println(event.Text)
	}
}

// Discover sensors advertising the well-known service.
func ExampleClient_DiscoverDevices() {
	client, err := iotterminal_bluetooth.NewClient(bluetooth.DefaultAdapter)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := iotterminal.Filter{Service: iotterminal.ServiceID}
	for device, err := range client.DiscoverDevices(ctx, filter) {
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("%s %s", device.Address.String(), device.LocalName())
	}
}
