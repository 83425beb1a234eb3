package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gitlab.com/gomidi/midi/v2/smf"

	"go-symusic/abc"
	"go-symusic/config"
	"go-symusic/convert"
	"go-symusic/debug"
	"go-symusic/midi"
	"go-symusic/pianoroll"
	"go-symusic/player"
	"go-symusic/render"
	"go-symusic/score"
	"go-symusic/server"
	"go-symusic/warp"
)

type command struct {
	name string
	args string
	desc string
	run  func(cfg *config.Config, args []string) error
}

var commands = []command{
	{"info", "FILE", "Print a summary of a MIDI or ABC file", info},
	{"dump", "FILE.mid", "List raw SMF events", dump},
	{"roundtrip", "IN OUT.mid", "Decode and re-encode a file", roundtrip},
	{"png", "IN OUT.png", "Draw a track's piano roll", drawPNG},
	{"abc", "IN.abc OUT.mid", "Convert ABC notation to MIDI", abcToMIDI},
	{"warp", "IN OUT.mid", "Remap time through breakpoints", warpFile},
	{"ports", "", "List MIDI output ports", ports},
	{"play", "FILE", "Play a file to a MIDI output", play},
	{"serve", "", "Run the HTTP server", serve},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Debug {
		if err := debug.Enable(); err == nil {
			defer debug.Disable()
		}
	}

	for _, c := range commands {
		if c.name == os.Args[1] {
			if err := c.run(cfg, os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", c.name, err)
				os.Exit(1)
			}
			return
		}
	}
	usage()
	os.Exit(2)
}

func usage() {
	fmt.Println("midiinfo - symbolic music tools")
	fmt.Println("")
	fmt.Println("Commands:")
	for _, c := range commands {
		fmt.Printf("  %-10s %-16s %s\n", c.name, c.args, c.desc)
	}
}

// load reads .abc files with the ABC parser and anything else as SMF.
func load(cfg *config.Config, path string) (*score.Score[score.Tick], error) {
	if strings.EqualFold(filepath.Ext(path), ".abc") {
		return abc.ReadFile(path, abc.OptionsFromConfig(cfg.ABC))
	}
	return midi.ReadFile(path)
}

// positional parses flags and checks the number of remaining arguments.
func positional(fs *flag.FlagSet, args []string, n int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != n {
		return nil, fmt.Errorf("expected %d argument(s), got %d", n, fs.NArg())
	}
	return fs.Args(), nil
}

func info(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	unit := fs.String("unit", "tick", "time unit: tick, quarter or second")
	rest, err := positional(fs, args, 1)
	if err != nil {
		return err
	}
	u, err := score.ParseTimeUnit(*unit)
	if err != nil {
		return err
	}

	s, err := load(cfg, rest[0])
	if err != nil {
		return err
	}
	tm, err := convert.TempoMapOf(s)
	if err != nil {
		return err
	}
	fmt.Printf("File: %s\n", rest[0])
	fmt.Printf("Duration: %.3fs\n", tm.Seconds(float64(s.End())))

	switch u {
	case score.UnitQuarter:
		q, err := convert.ToQuarter(s)
		if err != nil {
			return err
		}
		fmt.Print(q.Summary())
	case score.UnitSecond:
		sec, err := convert.ToSecond(s)
		if err != nil {
			return err
		}
		fmt.Print(sec.Summary())
	default:
		fmt.Print(s.Summary())
	}
	for _, ts := range s.TimeSignatures {
		fmt.Printf("  time signature %s at %d\n", ts, ts.Time)
	}
	for _, ks := range s.KeySignatures {
		fmt.Printf("  key %s at %d\n", ks.Name(), ks.Time)
	}
	for _, t := range s.Tempos {
		fmt.Printf("  tempo %.2f qpm at %d\n", t.QPM(), t.Time)
	}
	return nil
}

func dump(_ *config.Config, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	rest, err := positional(fs, args, 1)
	if err != nil {
		return err
	}

	f, err := os.Open(rest[0])
	if err != nil {
		return err
	}
	defer f.Close()

	rd, err := smf.ReadFrom(f)
	if err != nil {
		return err
	}
	fmt.Printf("Format: %d\n", rd.Format())
	if tf, ok := rd.TimeFormat.(smf.MetricTicks); ok {
		fmt.Printf("Ticks per quarter note: %d\n", tf.Resolution())
	} else {
		fmt.Printf("Time format: %v\n", rd.TimeFormat)
	}
	for i, track := range rd.Tracks {
		fmt.Printf("\n=== Track %d (%d events) ===\n", i, len(track))
		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)
			fmt.Printf("  %8d  %s\n", tick, ev.Message.String())
		}
	}
	return nil
}

func roundtrip(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("roundtrip", flag.ContinueOnError)
	tpq := fs.Int("tpq", 0, "resample to this resolution (0 keeps the source)")
	minDur := fs.Int("min-dur", 0, "minimum note duration after resampling")
	rest, err := positional(fs, args, 2)
	if err != nil {
		return err
	}

	s, err := load(cfg, rest[0])
	if err != nil {
		return err
	}
	if *tpq > 0 {
		if s, err = convert.Resample(s, int32(*tpq), score.Tick(*minDur)); err != nil {
			return err
		}
	}
	if err := midi.WriteFile(rest[1], s); err != nil {
		return err
	}
	fmt.Printf("Wrote %s: %d tracks, %d notes\n", rest[1], len(s.Tracks), s.NoteNum())
	return nil
}

func drawPNG(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("png", flag.ContinueOnError)
	track := fs.Int("track", 0, "track index")
	mode := fs.String("mode", "frame", "raster plane: frame, onset or offset")
	tpp := fs.Int("tpp", cfg.Render.TicksPerPixel, "ticks per pixel")
	cell := fs.Int("cell", cfg.Render.CellHeight, "pixel height of a pitch row")
	rest, err := positional(fs, args, 2)
	if err != nil {
		return err
	}

	m, err := pianoroll.ParseMode(*mode)
	if err != nil {
		return err
	}
	s, err := load(cfg, rest[0])
	if err != nil {
		return err
	}
	if *track < 0 || *track >= len(s.Tracks) {
		return fmt.Errorf("track %d out of range [0, %d)", *track, len(s.Tracks))
	}

	ropts, err := pianoroll.OptionsFromConfig(cfg.Pianoroll)
	if err != nil {
		return err
	}
	ropts.Modes = []pianoroll.Mode{m}
	r, err := pianoroll.FromTrack(s.Tracks[*track], ropts)
	if err != nil {
		return err
	}

	opts, err := render.OptionsFromConfig(cfg.Render)
	if err != nil {
		return err
	}
	opts.Mode = m
	if *tpp > 0 {
		opts.TicksPerPixel = *tpp
	}
	if *cell > 0 {
		opts.CellHeight = *cell
	}

	f, err := os.Create(rest[1])
	if err != nil {
		return err
	}
	if err := render.PNG(f, r, opts); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	w, h := render.Size(r, opts)
	fmt.Printf("Wrote %s (%dx%d)\n", rest[1], w, h)
	return nil
}

func abcToMIDI(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("abc", flag.ContinueOnError)
	tpq := fs.Int("tpq", int(cfg.ABC.TicksPerQuarter), "ticks per quarter")
	rest, err := positional(fs, args, 2)
	if err != nil {
		return err
	}

	opts := abc.OptionsFromConfig(cfg.ABC)
	opts.TicksPerQuarter = int32(*tpq)
	s, err := abc.ReadFile(rest[0], opts)
	if err != nil {
		return err
	}
	if err := midi.WriteFile(rest[1], s); err != nil {
		return err
	}
	fmt.Printf("Wrote %s: %d tracks, %d notes\n", rest[1], len(s.Tracks), s.NoteNum())
	return nil
}

// parseTicks reads a comma separated breakpoint list.
func parseTicks(s string) ([]score.Tick, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]score.Tick, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("breakpoint %q: %w", p, err)
		}
		out[i] = score.Tick(v)
	}
	return out, nil
}

func warpFile(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("warp", flag.ContinueOnError)
	oldArg := fs.String("old", "", "source breakpoints, e.g. 0,960,1920")
	newArg := fs.String("new", "", "target breakpoints")
	rest, err := positional(fs, args, 2)
	if err != nil {
		return err
	}

	oldTimes, err := parseTicks(*oldArg)
	if err != nil {
		return err
	}
	newTimes, err := parseTicks(*newArg)
	if err != nil {
		return err
	}
	s, err := load(cfg, rest[0])
	if err != nil {
		return err
	}
	out, err := warp.AdjustTime(s, oldTimes, newTimes)
	if err != nil {
		return err
	}
	if err := midi.WriteFile(rest[1], out); err != nil {
		return err
	}
	fmt.Printf("Wrote %s: end %d -> %d\n", rest[1], s.End(), out.End())
	return nil
}

func ports(_ *config.Config, args []string) error {
	fs := flag.NewFlagSet("ports", flag.ContinueOnError)
	watch := fs.Bool("watch", false, "report ports as they connect and disconnect")
	if _, err := positional(fs, args, 0); err != nil {
		return err
	}

	if !*watch {
		fmt.Println("=== MIDI Output Ports ===")
		fmt.Println("(waiting up to 3 seconds...)")
		outs, err := midi.OutPorts()
		if err != nil {
			fmt.Println("Fix: sudo killall coreaudiod midiserver")
			return err
		}
		for i, p := range outs {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	w := midi.NewPortWatcher(time.Second)
	go w.Run(ctx)
	fmt.Println("Watching MIDI outputs (Ctrl+C to stop)...")
	for ev := range w.Events() {
		fmt.Printf("[%s] %s: %s\n", time.Now().Format("15:04:05"), ev.Type, ev.Name)
	}
	return nil
}

func play(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	port := fs.String("port", cfg.Player.PortName, "output port name (substring match)")
	rest, err := positional(fs, args, 1)
	if err != nil {
		return err
	}

	s, err := load(cfg, rest[0])
	if err != nil {
		return err
	}
	p, out, err := player.OpenPort(*port)
	if err != nil {
		return err
	}
	defer out.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	fmt.Printf("Playing %s on %s (Ctrl+C to stop)\n", rest[0], out.String())
	if err := p.Play(ctx, s); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func serve(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.Server.Addr, "listen address")
	if _, err := positional(fs, args, 0); err != nil {
		return err
	}
	cfg.Server.Addr = *addr

	srv, err := server.New(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	fmt.Printf("Listening on http://%s\n", *addr)
	return srv.ListenAndServe(ctx)
}
