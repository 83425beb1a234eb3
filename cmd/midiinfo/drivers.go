//go:build !nodrivers

package main

// Build with -tags nodrivers on hosts without ALSA/CoreMIDI headers;
// ports and play then find no outputs.
import _ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
