package transport

import "time"

const (
	DefaultCharSpeed uint32 = 115200
	// MIDIBaud is the fixed MIDI 1.0 serial rate.
	MIDIBaud uint32 = 31250
)

// Config defines connect defaults shared by every peer.
type Config struct {
	ConnectTimeout time.Duration
	CharSpeed      uint32
	MidiSpeed      uint32
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		CharSpeed:      DefaultCharSpeed,
		MidiSpeed:      MIDIBaud,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.CharSpeed == 0 {
		c.CharSpeed = d.CharSpeed
	}
	if c.MidiSpeed == 0 {
		c.MidiSpeed = d.MidiSpeed
	}
	return c
}
