package midi

import (
	"fmt"
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// portTimeout bounds a port scan (CoreMIDI can hang).
var portTimeout = 3 * time.Second

// ErrPortScanTimeout is returned when the driver does not answer in time.
var ErrPortScanTimeout = fmt.Errorf("midi port scan timed out after %s", portTimeout)

// OutPorts lists output ports. A driver must be registered by the
// caller (e.g. importing gitlab.com/gomidi/midi/v2/drivers/rtmididrv).
func OutPorts() ([]drivers.Out, error) {
	ch := make(chan []drivers.Out, 1)
	go func() {
		ch <- gomidi.GetOutPorts()
	}()

	select {
	case outs := <-ch:
		return outs, nil
	case <-time.After(portTimeout):
		// User needs to run: sudo killall coreaudiod midiserver
		return nil, ErrPortScanTimeout
	}
}

// FindOutPort returns the first output whose name contains name,
// case-insensitively. An empty name selects the first port.
func FindOutPort(name string) (drivers.Out, error) {
	outs, err := OutPorts()
	if err != nil {
		return nil, err
	}
	return matchPort(outs, name)
}

func matchPort(outs []drivers.Out, name string) (drivers.Out, error) {
	if len(outs) == 0 {
		return nil, fmt.Errorf("no MIDI output ports")
	}
	if name == "" {
		return outs[0], nil
	}
	want := strings.ToLower(name)
	for _, p := range outs {
		if strings.Contains(strings.ToLower(p.String()), want) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no MIDI output port matching %q", name)
}

// OpenSender resolves a port by name and returns a send function for it.
func OpenSender(name string) (func(gomidi.Message) error, drivers.Out, error) {
	port, err := FindOutPort(name)
	if err != nil {
		return nil, nil, err
	}
	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", port.String(), err)
	}
	return send, port, nil
}
