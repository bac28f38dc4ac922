package session

import "github.com/danmuck/vimctl/internal/protocol"

// Config defines correlation and transport property defaults.
type Config struct {
	// SerialWrap is the last serial issued before wrapping back to 1.
	SerialWrap int
	// CommProperty is the property frames are exchanged through.
	CommProperty string
}

func DefaultConfig() Config {
	return Config{
		SerialWrap:   protocol.DefaultSerialWrap,
		CommProperty: protocol.PropComm,
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.SerialWrap <= 0 {
		c.SerialWrap = def.SerialWrap
	}
	if c.CommProperty == "" {
		c.CommProperty = def.CommProperty
	}
	return c
}
