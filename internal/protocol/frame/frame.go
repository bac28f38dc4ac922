package frame

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/vimctl/internal/protocol"
)

// Kind is the frame type tag. For outbound frames it doubles as the cork flag.
type Kind byte

const (
	KindKeys   Kind = 'k'
	KindExpr   Kind = 'c'
	KindReply  Kind = 'r'
	KindNotify Kind = 'n'
)

func (k Kind) String() string {
	switch k {
	case KindKeys:
		return "keys"
	case KindExpr:
		return "expr"
	case KindReply:
		return "reply"
	case KindNotify:
		return "notify"
	default:
		return fmt.Sprintf("kind(%q)", byte(k))
	}
}

// Frame is one protocol message.
//
// Target, SourceID and Serial are carried by keys/expr frames; replies carry
// Serial and the result in Payload; notifications carry only Payload.
type Frame struct {
	Kind     Kind
	Target   string
	Payload  string
	SourceID uint32
	Serial   int
}

// Encode renders f in the NUL-separated wire form.
func Encode(f Frame) ([]byte, error) {
	var b strings.Builder
	switch f.Kind {
	case KindKeys, KindExpr:
		if err := checkFields(f.Target, f.Payload); err != nil {
			return nil, err
		}
		b.WriteByte(0)
		b.WriteByte(byte(f.Kind))
		b.WriteString("\x00-n ")
		b.WriteString(f.Target)
		b.WriteString("\x00-s ")
		b.WriteString(f.Payload)
		b.WriteString("\x00-r ")
		b.WriteString(strconv.FormatUint(uint64(f.SourceID), 16))
		b.WriteByte(' ')
		b.WriteString(strconv.Itoa(f.Serial))
		b.WriteByte(0)
	case KindReply:
		if err := checkFields(f.Payload); err != nil {
			return nil, err
		}
		b.WriteString("\x00r\x00-s ")
		b.WriteString(strconv.Itoa(f.Serial))
		b.WriteString("\x00-r ")
		b.WriteString(f.Payload)
		b.WriteByte(0)
	case KindNotify:
		if err := checkFields(f.Payload); err != nil {
			return nil, err
		}
		b.WriteString("\x00n\x00-n ")
		b.WriteString(f.Payload)
		b.WriteByte(0)
	default:
		return nil, fmt.Errorf("%w: %s", protocol.ErrUnknownKind, f.Kind)
	}
	return []byte(b.String()), nil
}

// ParseFrame decodes raw and maps it back onto a Frame. It is the inverse of
// Encode for every kind Encode accepts.
func ParseFrame(raw []byte) (Frame, error) {
	msg := Decode(raw)
	t, ok := msg.Get(TypeKey)
	if !ok || len(t) != 1 {
		return Frame{}, protocol.ErrMissingType
	}
	kind := Kind(t[0])
	switch kind {
	case KindKeys, KindExpr:
		f := Frame{Kind: kind, Target: msg[AttrName], Payload: msg[AttrString]}
		if r, ok := msg.Get(AttrResult); ok {
			src, serial, err := parseReturnAddress(r)
			if err != nil {
				return Frame{}, err
			}
			f.SourceID = src
			f.Serial = serial
		}
		return f, nil
	case KindReply:
		switch in := Classify(msg).(type) {
		case Reply:
			return Frame{Kind: KindReply, Serial: in.Serial, Payload: in.Result}, nil
		case Malformed:
			return Frame{}, in.Err
		}
	case KindNotify:
		payload, ok := msg.Get(AttrName)
		if !ok {
			return Frame{}, protocol.ErrMissingPayload
		}
		return Frame{Kind: KindNotify, Payload: payload}, nil
	}
	return Frame{}, fmt.Errorf("%w: %s", protocol.ErrUnknownKind, kind)
}

// parseReturnAddress splits the "-r <hex-window> <serial>" value of an
// outbound frame.
func parseReturnAddress(v string) (uint32, int, error) {
	hex, serialRaw, _ := strings.Cut(strings.TrimSpace(v), " ")
	src, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", protocol.ErrInvalidSourceID, hex)
	}
	serial, err := strconv.Atoi(strings.TrimSpace(serialRaw))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", protocol.ErrInvalidSerial, serialRaw)
	}
	return uint32(src), serial, nil
}

func checkFields(fields ...string) error {
	for _, f := range fields {
		if strings.IndexByte(f, 0) >= 0 {
			return protocol.ErrEmbeddedNUL
		}
	}
	return nil
}
