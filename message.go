package iotterminal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Well-known identifiers for the link. The peripheral advertises DeviceName
// and exposes a single service with one characteristic per direction: RX is
// written by the central, TX notifies the central.
const (
	DeviceName = "ESP32-TempSensor"

	ServiceID          = "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"
	RXCharacteristicID = "6E400002-B5A3-F393-E0A9-E50E24DCCA9E"
	TXCharacteristicID = "6E400003-B5A3-F393-E0A9-E50E24DCCA9E"
)

// Reading is a single successful sensor acquisition.
type Reading struct {
	Temperature float64
	Humidity    float64
}

// sensorErrorLine is pushed in place of telemetry when acquisition fails.
const sensorErrorLine = "Error: Sensor read failed!"

// FormatTelemetry renders a reading as the telemetry line pushed to the
// central, one decimal place per field.
func FormatTelemetry(r Reading) string {
	return fmt.Sprintf("Temperature: %.1f °C | Humidity: %.1f %%", r.Temperature, r.Humidity)
}

// Matches both the telemetry form ("Temperature: 25.5") and the status
// form ("Temperature=25.5").
var temperaturePattern = regexp.MustCompile(`Temperature[:=]\s*(-?[0-9]+(?:\.[0-9]+)?)`)

// ParseTemperature extracts the temperature value from a telemetry line.
// This is best-effort: lines without the pattern are still valid messages,
// they just carry no displayable value.
func ParseTemperature(line string) (float64, bool) {
	m := temperaturePattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// EncodeCommand prepares the bytes for one command write. Returns false when
// the command is empty after trimming, in which case nothing should be
// written. The trailing newline is a peer policy choice; the device trims
// inbound whitespace either way.
func EncodeCommand(command string, newline bool) ([]byte, bool) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, false
	}
	if newline {
		command += "\n"
	}
	return []byte(command), true
}
