// Package player sends a score to a MIDI output in real time.
package player

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-symusic/convert"
	"go-symusic/debug"
	"go-symusic/midi"
	"go-symusic/score"
)

// Ordering inside one tick, matching the file encoder.
const (
	prioProgram = iota
	prioNoteOff
	prioControl
	prioNoteOn
	prioZeroOff
)

// Event is one scheduled message.
type Event struct {
	Tick    score.Tick
	At      time.Duration // from the start of playback
	Track   int
	Channel uint8
	Msg     gomidi.Message

	prio int
}

// Schedule flattens s into time-ordered messages with wall-clock offsets
// taken from its tempo map. Tracks use the same channels as the encoder.
func Schedule(s *score.Score[score.Tick]) ([]Event, error) {
	tm, err := convert.NewTempoMap(s.TicksPerQuarter, s.Tempos)
	if err != nil {
		return nil, err
	}
	var events []Event
	channels := midi.AssignChannels(s.Tracks)
	for i, t := range s.Tracks {
		ch := channels[i]
		add := func(tick score.Tick, prio int, msg gomidi.Message) {
			events = append(events, Event{Tick: tick, Track: i, Channel: ch, Msg: msg, prio: prio})
		}
		add(0, prioProgram, gomidi.ProgramChange(ch, t.Program))
		for _, n := range t.Notes {
			if n.Velocity <= 0 || n.Duration < 0 || n.Pitch < 0 {
				continue
			}
			add(n.Time, prioNoteOn, gomidi.NoteOn(ch, uint8(n.Pitch), uint8(n.Velocity)))
			off := prioNoteOff
			if n.Duration == 0 {
				off = prioZeroOff
			}
			add(n.End(), off, gomidi.NoteOff(ch, uint8(n.Pitch)))
		}
		hasSustain := false
		for _, c := range t.Controls {
			hasSustain = hasSustain || c.Number == midi.CCSustain
			add(c.Time, prioControl, gomidi.ControlChange(ch, c.Number, c.Value))
		}
		if !hasSustain {
			for _, p := range t.Pedals {
				add(p.Time, prioControl, gomidi.ControlChange(ch, midi.CCSustain, 127))
				add(p.End(), prioControl, gomidi.ControlChange(ch, midi.CCSustain, 0))
			}
		}
		for _, b := range t.PitchBends {
			add(b.Time, prioControl, gomidi.Pitchbend(ch, int16(b.Value)))
		}
	}
	slices.SortStableFunc(events, func(a, b Event) int {
		if c := cmp.Compare(a.Tick, b.Tick); c != 0 {
			return c
		}
		return cmp.Compare(a.prio, b.prio)
	})
	for i := range events {
		events[i].At = time.Duration(tm.Seconds(float64(events[i].Tick)) * float64(time.Second))
	}
	return events, nil
}

// Clock abstracts waiting so playback can be tested without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Player sends scheduled events through Send.
type Player struct {
	Send  func(gomidi.Message) error
	Clock Clock
}

func New(send func(gomidi.Message) error) *Player {
	return &Player{Send: send, Clock: realClock{}}
}

// OpenPort resolves an output port by name (see midi.FindOutPort) and
// returns a player bound to it. The caller closes the port.
func OpenPort(name string) (*Player, drivers.Out, error) {
	send, port, err := midi.OpenSender(name)
	if err != nil {
		return nil, nil, err
	}
	debug.Log("player", "opened %s", port.String())
	return New(send), port, nil
}

// Play blocks until every event of s has been sent or ctx is done. On
// cancellation it sends All Notes Off on every channel in use and
// returns ctx.Err().
func (p *Player) Play(ctx context.Context, s *score.Score[score.Tick]) error {
	events, err := Schedule(s)
	if err != nil {
		return err
	}
	clock := p.Clock
	if clock == nil {
		clock = realClock{}
	}
	used := make(map[uint8]bool)
	start := clock.Now()
	debug.Log("player", "playing %d events", len(events))

	for _, e := range events {
		if err := ctx.Err(); err != nil {
			p.silence(used)
			return err
		}
		if wait := start.Add(e.At).Sub(clock.Now()); wait > 0 {
			select {
			case <-ctx.Done():
				p.silence(used)
				return ctx.Err()
			case <-clock.After(wait):
			}
		}
		used[e.Channel] = true
		if err := p.Send(e.Msg); err != nil {
			p.silence(used)
			return fmt.Errorf("send %s at tick %d: %w", e.Msg, e.Tick, err)
		}
	}
	debug.Log("player", "finished")
	return nil
}

func (p *Player) silence(used map[uint8]bool) {
	chans := make([]uint8, 0, len(used))
	for ch := range used {
		chans = append(chans, ch)
	}
	slices.Sort(chans)
	for _, ch := range chans {
		if err := p.Send(gomidi.ControlChange(ch, midi.CCAllNotesOff, 0)); err != nil {
			debug.Log("player", "all notes off ch=%d: %v", ch+1, err)
		}
	}
}
