// Package pianoroll rasterizes tick-based tracks into dense byte planes
// indexed by mode, pitch and tick.
package pianoroll

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"go-symusic/config"
	"go-symusic/debug"
	"go-symusic/score"
)

// Mode selects what part of a note is drawn.
type Mode uint8

const (
	Onset  Mode = iota // the first tick only
	Frame              // every tick in [time, time+duration)
	Offset             // the tick at time+duration
)

func (m Mode) String() string {
	switch m {
	case Onset:
		return "onset"
	case Frame:
		return "frame"
	case Offset:
		return "offset"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode accepts onset, frame or offset.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "onset":
		return Onset, nil
	case "frame":
		return Frame, nil
	case "offset":
		return Offset, nil
	}
	return 0, score.NewValueError("pianoroll mode", "%q is not one of onset, frame, offset", s)
}

// ParseModes parses a list, keeping the requested order.
func ParseModes(names []string) ([]Mode, error) {
	modes := make([]Mode, len(names))
	for i, n := range names {
		m, err := ParseMode(n)
		if err != nil {
			return nil, err
		}
		modes[i] = m
	}
	return modes, nil
}

// Options controls rasterization.
type Options struct {
	Modes []Mode
	// PitchLow and PitchHigh bound the pitch axis as [PitchLow, PitchHigh).
	PitchLow, PitchHigh int
	// EncodeVelocity writes the note velocity; otherwise cells are 1.
	EncodeVelocity bool
	// MaxCells caps the raster size in bytes. Zero or negative is unbounded.
	MaxCells int
}

// DefaultMaxCells is 64 MiB of raster.
const DefaultMaxCells = 1 << 26

// DefaultOptions draws frames over the full MIDI range with velocities.
func DefaultOptions() Options {
	return Options{Modes: []Mode{Frame}, PitchLow: 0, PitchHigh: 128, EncodeVelocity: true, MaxCells: DefaultMaxCells}
}

// OptionsFromConfig builds options from the pianoroll config section.
func OptionsFromConfig(c config.PianorollConfig) (Options, error) {
	modes, err := ParseModes(c.Modes)
	if err != nil {
		return Options{}, err
	}
	if len(modes) == 0 {
		modes = []Mode{Frame}
	}
	opts := Options{Modes: modes, PitchLow: c.PitchLow, PitchHigh: c.PitchHigh, EncodeVelocity: c.EncodeVelocity, MaxCells: c.MaxCells}
	return opts, opts.validate()
}

func (o Options) validate() error {
	if o.PitchLow < 0 || o.PitchHigh > 128 || o.PitchLow >= o.PitchHigh {
		return score.NewValueError("pitch range", "[%d, %d) must lie within [0, 128) and be non-empty", o.PitchLow, o.PitchHigh)
	}
	if len(o.Modes) == 0 {
		return score.NewValueError("pianoroll mode", "at least one mode is required")
	}
	for _, m := range o.Modes {
		if m > Offset {
			return score.NewValueError("pianoroll mode", "unknown mode %d", uint8(m))
		}
	}
	return nil
}

// Raster is a dense [mode][track][pitch][time] byte array. Track rasters
// have a single track.
type Raster struct {
	Modes    []Mode
	Tracks   int
	Pitches  int
	Times    int
	PitchLow int
	Data     []uint8

	fromScore bool
}

// checkSize rejects rasters above opts.MaxCells before allocating.
func checkSize(opts Options, tracks, times int) error {
	if opts.MaxCells <= 0 {
		return nil
	}
	cells := int64(len(opts.Modes)) * int64(max(tracks, 1)) * int64(opts.PitchHigh-opts.PitchLow)
	if cells > int64(opts.MaxCells) || int64(times) > int64(opts.MaxCells)/cells {
		return score.NewValueError("pianoroll size", "%d modes x %d tracks x %d pitches x %d ticks exceeds %d cells",
			len(opts.Modes), tracks, opts.PitchHigh-opts.PitchLow, times, opts.MaxCells)
	}
	return nil
}

func newRaster(opts Options, tracks, times int, fromScore bool) *Raster {
	pitches := opts.PitchHigh - opts.PitchLow
	return &Raster{
		Modes:     slices.Clone(opts.Modes),
		Tracks:    tracks,
		Pitches:   pitches,
		Times:     times,
		PitchLow:  opts.PitchLow,
		Data:      make([]uint8, len(opts.Modes)*tracks*pitches*times),
		fromScore: fromScore,
	}
}

// Shape is [modes, pitches, times] for a track raster and
// [modes, tracks, pitches, times] for a score raster.
func (r *Raster) Shape() []int {
	if r.fromScore {
		return []int{len(r.Modes), r.Tracks, r.Pitches, r.Times}
	}
	return []int{len(r.Modes), r.Pitches, r.Times}
}

func (r *Raster) offset(mode, track, pitch, time int) int {
	return ((mode*r.Tracks+track)*r.Pitches+pitch)*r.Times + time
}

// At reads one cell. pitch is an index into the pitch axis, not a MIDI pitch.
func (r *Raster) At(mode, track, pitch, time int) uint8 {
	return r.Data[r.offset(mode, track, pitch, time)]
}

// Row returns the time row for one (mode, track, pitch), sharing storage.
func (r *Raster) Row(mode, track, pitch int) []uint8 {
	start := r.offset(mode, track, pitch, 0)
	return r.Data[start : start+r.Times]
}

// ModeIndex returns the plane index of m, or -1.
func (r *Raster) ModeIndex(m Mode) int {
	return slices.Index(r.Modes, m)
}

// fill writes value into [from, from+n) of a row, clipped to the axis.
func (r *Raster) fill(mode, track, pitch, from, n int, value uint8) {
	row := r.Row(mode, track, pitch)
	lo, hi := max(from, 0), min(from+n, len(row))
	for i := lo; i < hi; i++ {
		row[i] = value
	}
}

func (r *Raster) draw(track int, notes score.Seq[score.Note[score.Tick]], opts Options) {
	ordered := slices.Clone(notes)
	slices.SortStableFunc(ordered, func(a, b score.Note[score.Tick]) int {
		if c := cmp.Compare(a.Time, b.Time); c != 0 {
			return c
		}
		return cmp.Compare(a.Pitch, b.Pitch)
	})
	for _, n := range ordered {
		p := int(n.Pitch)
		if p < opts.PitchLow || p >= opts.PitchHigh {
			continue
		}
		value := uint8(1)
		if opts.EncodeVelocity {
			value = uint8(n.Velocity)
		}
		for mi, m := range r.Modes {
			switch m {
			case Onset:
				r.fill(mi, track, p-opts.PitchLow, int(n.Time), 1, value)
			case Frame:
				r.fill(mi, track, p-opts.PitchLow, int(n.Time), int(n.Duration), value)
			case Offset:
				r.fill(mi, track, p-opts.PitchLow, int(n.End()), 1, value)
			}
		}
	}
}

func timeAxis(tracks ...*score.Track[score.Tick]) int {
	end := score.Tick(0)
	for _, t := range tracks {
		for _, n := range t.Notes {
			end = max(end, n.End())
		}
	}
	return int(end) + 1
}

func asTicks[T score.Unit](v any) (*score.Score[score.Tick], *score.Track[score.Tick], error) {
	if score.KindOf[T]() != score.UnitTick {
		return nil, nil, fmt.Errorf("pianoroll over %s time: %w", score.KindOf[T](), score.ErrNotImplemented)
	}
	switch x := v.(type) {
	case *score.Score[score.Tick]:
		return x, nil, nil
	case *score.Track[score.Tick]:
		return nil, x, nil
	}
	return nil, nil, fmt.Errorf("pianoroll: unexpected %T", v)
}

// FromTrack rasterizes one track. Only tick tracks are supported; convert
// other units first. The time axis runs to the last note end inclusive.
func FromTrack[T score.Unit](t *score.Track[T], opts Options) (*Raster, error) {
	_, tr, err := asTicks[T](t)
	if err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	times := timeAxis(tr)
	if err := checkSize(opts, 1, times); err != nil {
		return nil, err
	}
	r := newRaster(opts, 1, times, false)
	r.draw(0, tr.Notes, opts)
	debug.Log("pianoroll", "track %q: shape %v", tr.Name, r.Shape())
	return r, nil
}

// FromScore rasterizes every track of a score on a shared time axis.
func FromScore[T score.Unit](s *score.Score[T], opts Options) (*Raster, error) {
	sc, _, err := asTicks[T](s)
	if err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	times := timeAxis(sc.Tracks...)
	if err := checkSize(opts, len(sc.Tracks), times); err != nil {
		return nil, err
	}
	r := newRaster(opts, len(sc.Tracks), times, true)
	for i, t := range sc.Tracks {
		r.draw(i, t.Notes, opts)
	}
	debug.Log("pianoroll", "score: shape %v", r.Shape())
	return r, nil
}
