package iotterminal

import "github.com/sirupsen/logrus"

// EventKind identifies a class of link event flowing out of a transport or
// controller.
type EventKind byte

const (
	// EventLine is a line of text pushed by the peer.
	EventLine EventKind = iota
	// EventConnected fires when the link becomes ready.
	EventConnected
	// EventDropped fires when the link is lost without a local Terminate.
	EventDropped
)

var eventKindText = map[EventKind]string{
	EventLine:      "Line",
	EventConnected: "Connected",
	EventDropped:   "Dropped",
}

func (k EventKind) String() string {
	return eventKindText[k]
}

// Event is a single link event together with its text payload. For
// EventLine the text is the verbatim line from the peer.
type Event struct {
	Kind EventKind
	Text string
}

type Severity byte

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

// Log categories used by the controllers.
const (
	CategoryLink      = "link"
	CategoryDevice    = "device"
	CategoryTelemetry = "telemetry"
	CategoryCommand   = "command"
)

// Sink receives human-readable log events from a controller. Emit is
// fire-and-forget and must never block the caller.
type Sink interface {
	Emit(category, text string, severity Severity)
}

// LogSink is a Sink backed by a logrus logger.
type LogSink struct {
	Logger *logrus.Logger
}

func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{Logger: logger}
}

func (s *LogSink) Emit(category, text string, severity Severity) {
	entry := s.Logger.WithField("category", category)
	switch severity {
	case SeverityDebug:
		entry.Debug(text)
	case SeverityInfo:
		entry.Info(text)
	case SeverityWarn:
		entry.Warn(text)
	default:
		entry.Error(text)
	}
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(category, text string, severity Severity) {}
