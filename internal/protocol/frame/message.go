package frame

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/danmuck/vimctl/internal/protocol"
)

const (
	// TypeKey holds the bare (non-attribute) field of a frame.
	TypeKey = "t"

	// AttrName is the target server (outbound) or notification text (inbound).
	AttrName = "n"
	// AttrString is the script text (outbound) or the serial (reply).
	AttrString = "s"
	// AttrResult is the return address (outbound) or the result (reply).
	AttrResult = "r"
)

// Message is the generic decoded form of a frame: attribute name to value,
// plus the type tag under TypeKey. Unknown attributes are kept as-is.
type Message map[string]string

func (m Message) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m Message) Type() string {
	return m[TypeKey]
}

// Decode splits raw on NUL and each field on its first space. Empty fields
// are skipped; an attribute without a value is not stored.
func Decode(raw []byte) Message {
	msg := make(Message)
	for _, field := range bytes.Split(raw, []byte{0}) {
		if len(field) == 0 {
			continue
		}
		s := string(field)
		if s[0] != '-' {
			tag, _, _ := strings.Cut(s, " ")
			msg[TypeKey] = tag
			continue
		}
		name, value, ok := strings.Cut(s[1:], " ")
		if name == "" || !ok {
			continue
		}
		msg[name] = value
	}
	return msg
}

// Split separates frames that peers appended to the same property value.
// A boundary is a NUL pair followed by a type tag; a NUL pair followed by an
// attribute is an empty field inside one frame.
func Split(raw []byte) [][]byte {
	var out [][]byte
	start := 0
	for i := 0; i+2 < len(raw); i++ {
		if raw[i] == 0 && raw[i+1] == 0 && raw[i+2] != 0 && raw[i+2] != '-' {
			out = appendChunk(out, raw[start:i+1])
			start = i + 1
		}
	}
	return appendChunk(out, raw[start:])
}

func appendChunk(out [][]byte, chunk []byte) [][]byte {
	if len(bytes.Trim(chunk, "\x00")) == 0 {
		return out
	}
	return append(out, chunk)
}

// Inbound is the closed set of shapes a received frame can take.
type Inbound interface {
	inbound()
}

// Reply answers an expression call identified by Serial.
type Reply struct {
	Serial int
	Result string
}

// Notification is a spontaneous message; Payload is the raw -n value.
type Notification struct {
	Payload string
}

// Malformed is a frame that could not be interpreted.
type Malformed struct {
	Err     error
	Message Message
}

func (Reply) inbound()        {}
func (Notification) inbound() {}
func (Malformed) inbound()    {}

// Classify maps a decoded message onto its Inbound shape. Type "r" is a reply;
// everything else is treated as a notification.
func Classify(msg Message) Inbound {
	if msg.Type() == string(KindReply) {
		raw, ok := msg.Get(AttrString)
		if !ok {
			return Malformed{Err: protocol.ErrMissingSerial, Message: msg}
		}
		serial, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Malformed{Err: protocol.ErrInvalidSerial, Message: msg}
		}
		return Reply{Serial: serial, Result: msg[AttrResult]}
	}
	payload, ok := msg.Get(AttrName)
	if !ok {
		return Malformed{Err: protocol.ErrMissingPayload, Message: msg}
	}
	return Notification{Payload: payload}
}
