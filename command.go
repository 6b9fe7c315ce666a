package iotterminal

import "strings"

// The command vocabulary is closed and matched case-insensitively after
// trimming surrounding whitespace. Unknown tokens get an informational
// reply, never an error.
const (
	CommandStatus    = "STATUS"
	CommandLedOn     = "LED ON"
	CommandLedOnAlt  = "LEDON"
	CommandLedOff    = "LED OFF"
	CommandLedOffAlt = "LEDOFF"
	CommandTemp      = "TEMP"
	CommandHello     = "HELLO"
	CommandHelloAlt  = "HI"
	CommandHelp      = "HELP"
)

const (
	helloReply = "Hello! ESP32 Temperature Sensor ready!"
	helpReply  = "Commands: STATUS, LED ON, LED OFF, TEMP, HELLO, HELP"
)

// normalizeCommand returns the trimmed original text and the uppercase
// token used for matching. An empty original means the write carried no
// command at all.
func normalizeCommand(data []byte) (original, token string) {
	original = strings.TrimSpace(string(data))
	return original, strings.ToUpper(original)
}
