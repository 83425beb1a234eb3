package midi

// MIDI message types (status high nibble)
const (
	NoteOff       uint8 = 0x80
	NoteOn        uint8 = 0x90
	PolyPressure  uint8 = 0xA0
	CC            uint8 = 0xB0
	ProgramChange uint8 = 0xC0
	ChanPressure  uint8 = 0xD0
	PitchBend     uint8 = 0xE0
)

// File-only status bytes
const (
	SysEx       uint8 = 0xF0
	SysExEscape uint8 = 0xF7
	Meta        uint8 = 0xFF
)

// Meta event types
const (
	MetaText          uint8 = 0x01
	MetaCopyright     uint8 = 0x02
	MetaTrackName     uint8 = 0x03
	MetaInstrument    uint8 = 0x04
	MetaLyric         uint8 = 0x05
	MetaMarker        uint8 = 0x06
	MetaChannelPrefix uint8 = 0x20
	MetaEndOfTrack    uint8 = 0x2F
	MetaTempo         uint8 = 0x51
	MetaTimeSignature uint8 = 0x58
	MetaKeySignature  uint8 = 0x59
)

// Controller numbers with special handling
const (
	CCSustain     uint8 = 64
	CCAllNotesOff uint8 = 123
)

// DrumChannel is MIDI channel 10, zero-based.
const DrumChannel uint8 = 9

// melodicChannels skips the drum channel.
var melodicChannels = [15]uint8{0, 1, 2, 3, 4, 5, 6, 7, 8, 10, 11, 12, 13, 14, 15}

// dataLen returns the number of data bytes following a channel status.
func dataLen(status uint8) int {
	switch status & 0xF0 {
	case ProgramChange, ChanPressure:
		return 1
	default:
		return 2
	}
}
