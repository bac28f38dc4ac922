package protocol

import "errors"

var (
	ErrEmbeddedNUL     = errors.New("protocol: field contains NUL")
	ErrUnknownKind     = errors.New("protocol: unknown frame kind")
	ErrMissingType     = errors.New("protocol: frame has no type tag")
	ErrMissingSerial   = errors.New("protocol: reply has no serial")
	ErrInvalidSerial   = errors.New("protocol: invalid serial")
	ErrInvalidSourceID = errors.New("protocol: invalid source id")
	ErrMissingPayload  = errors.New("protocol: notification has no payload")
)
