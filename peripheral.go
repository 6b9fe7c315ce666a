package iotterminal

import (
	"fmt"
	"time"
)

// Sensor is the external acquisition collaborator. Read returns the current
// reading or an error when acquisition fails.
type Sensor interface {
	Read() (Reading, error)
}

// Actuator is the LED collaborator.
type Actuator interface {
	Set(on bool)
	Get() bool
}

// Pusher delivers one device-to-central notification per call.
type Pusher interface {
	Notify(p []byte) (int, error)
}

// Advertiser restarts discovery advertisement after a peer goes away.
type Advertiser interface {
	Start() error
}

// Peripheral is the sensor-side controller. It is a single-threaded state
// machine driven by Tick and the transport callbacks; none of its methods
// block and it holds no locks. The caller is responsible for serializing
// calls onto one goroutine (bluetooth.Server does this).
type Peripheral struct {
	sensor Sensor
	led    Actuator
	out    Pusher
	adv    Advertiser
	sink   Sink

	// millis is the wall-clock source in milliseconds. All elapsed-time
	// checks use unsigned subtraction so wraparound of the source is
	// harmless.
	millis func() uint32

	interval uint32 // ms between telemetry pushes
	settle   uint32 // ms to wait before re-advertising after a disconnect

	connected   bool
	lastPush    uint32
	settling    bool
	settleStart uint32

	last       Reading
	hasReading bool
}

type PeripheralOption func(*Peripheral)

// WithTelemetryInterval sets the cadence of unsolicited telemetry pushes.
func WithTelemetryInterval(d time.Duration) PeripheralOption {
	return func(p *Peripheral) {
		p.interval = uint32(d.Milliseconds())
	}
}

// WithSettleDelay sets how long the radio is given to release resources
// before advertising restarts.
func WithSettleDelay(d time.Duration) PeripheralOption {
	return func(p *Peripheral) {
		p.settle = uint32(d.Milliseconds())
	}
}

// WithMillis replaces the millisecond clock source.
func WithMillis(fn func() uint32) PeripheralOption {
	return func(p *Peripheral) {
		p.millis = fn
	}
}

func NewPeripheral(
	sensor Sensor,
	led Actuator,
	out Pusher,
	adv Advertiser,
	sink Sink,
	opts ...PeripheralOption,
) *Peripheral {
	if sink == nil {
		sink = NopSink{}
	}
	p := &Peripheral{
		sensor:   sensor,
		led:      led,
		out:      out,
		adv:      adv,
		sink:     sink,
		millis:   defaultMillis,
		interval: 2000,
		settle:   500,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func defaultMillis() uint32 {
	return uint32(time.Now().UnixMilli())
}

func (p *Peripheral) Connected() bool {
	return p.connected
}

// LastReading returns the most recent successful reading, if any.
func (p *Peripheral) LastReading() (Reading, bool) {
	return p.last, p.hasReading
}

func (p *Peripheral) OnPeerConnect() {
	p.connected = true
	p.settling = false
	// Backdate the timer so the first connected tick pushes immediately.
	p.lastPush = p.millis() - p.interval
	p.sink.Emit(CategoryDevice, "peer connected", SeverityInfo)
}

func (p *Peripheral) OnPeerDisconnect() {
	p.connected = false
	p.settling = true
	p.settleStart = p.millis()
	p.sink.Emit(CategoryDevice, "peer disconnected", SeverityInfo)
}

// Tick runs one pass of the device loop. It is called every few tens of
// milliseconds regardless of connection state and must never block.
func (p *Peripheral) Tick() {
	now := p.millis()

	if p.settling && now-p.settleStart >= p.settle {
		p.settling = false
		if err := p.adv.Start(); err != nil {
			p.sink.Emit(CategoryDevice, fmt.Sprintf("re-advertise failed: %s", err), SeverityError)
		} else {
			p.sink.Emit(CategoryDevice, "advertising restarted", SeverityInfo)
		}
	}

	if !p.connected {
		return
	}

	if now-p.lastPush >= p.interval {
		p.lastPush = now
		p.SendTelemetry()
	}
}

// SendTelemetry acquires a reading and pushes it as a notification. Without
// a connected peer it does nothing; missed samples are never queued. A
// failed read degrades to a fixed error line and polling continues.
func (p *Peripheral) SendTelemetry() {
	if !p.connected {
		return
	}

	r, err := p.sensor.Read()
	if err != nil {
		p.sink.Emit(CategoryTelemetry, fmt.Sprintf("%s: %s", ReasonSensorReadFailed, err), SeverityWarn)
		p.push(sensorErrorLine)
		return
	}

	p.last, p.hasReading = r, true
	p.push(FormatTelemetry(r))
}

// OnCommandReceived decodes and dispatches one inbound command write. An
// empty command after trimming is ignored. Unknown tokens reply with a
// hint; nothing here can take the loop down.
func (p *Peripheral) OnCommandReceived(data []byte) {
	original, token := normalizeCommand(data)
	if original == "" {
		return
	}

	p.sink.Emit(CategoryCommand, original, SeverityDebug)

	switch token {
	case CommandStatus:
		r, err := p.sensor.Read()
		if err != nil {
			p.push("Status: Sensor Error!")
			return
		}
		state := "OFF"
		if p.led.Get() {
			state = "ON"
		}
		p.push(fmt.Sprintf("Status: Temperature=%.1f°C, Humidity=%.1f%%, LED=%s", r.Temperature, r.Humidity, state))
	case CommandLedOn, CommandLedOnAlt:
		p.led.Set(true)
		p.push("LED turned ON")
	case CommandLedOff, CommandLedOffAlt:
		p.led.Set(false)
		p.push("LED turned OFF")
	case CommandTemp:
		p.SendTelemetry()
	case CommandHello, CommandHelloAlt:
		p.push(helloReply)
	case CommandHelp:
		p.push(helpReply)
	default:
		p.push(fmt.Sprintf("Unknown command: %s. Try HELP", original))
	}
}

func (p *Peripheral) push(line string) {
	if !p.connected {
		return
	}
	if _, err := p.out.Notify([]byte(line)); err != nil {
		p.sink.Emit(CategoryTelemetry, fmt.Sprintf("notify failed: %s", err), SeverityError)
	}
}
