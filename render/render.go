// Package render draws pianoroll rasters as PNG images.
package render

import (
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"go-symusic/config"
	"go-symusic/debug"
	"go-symusic/pianoroll"
	"go-symusic/score"
	"go-symusic/theme"
)

// LabelWidth is the left margin holding octave labels.
const LabelWidth = 28

// maxWidth keeps a forgotten TicksPerPixel from allocating gigabytes.
const maxWidth = 1 << 15

type Options struct {
	Mode          pianoroll.Mode
	Track         int
	CellHeight    int
	TicksPerPixel int
	Palette       *theme.Palette
}

func DefaultOptions() Options {
	return Options{Mode: pianoroll.Frame, CellHeight: 4, TicksPerPixel: 10, Palette: theme.Plasma()}
}

// OptionsFromConfig loads the configured palette.
func OptionsFromConfig(c config.RenderConfig) (Options, error) {
	p, err := theme.Load(c.Palette)
	if err != nil {
		return Options{}, err
	}
	opts := DefaultOptions()
	opts.Palette = p
	if c.CellHeight > 0 {
		opts.CellHeight = c.CellHeight
	}
	if c.TicksPerPixel > 0 {
		opts.TicksPerPixel = c.TicksPerPixel
	}
	return opts, nil
}

var (
	faceOnce sync.Once
	faceFont *truetype.Font
	faceErr  error
)

func labelFace(size float64) (font.Face, error) {
	faceOnce.Do(func() {
		faceFont, faceErr = truetype.Parse(goregular.TTF)
	})
	if faceErr != nil {
		return nil, faceErr
	}
	return truetype.NewFace(faceFont, &truetype.Options{Size: size}), nil
}

// Size returns the image dimensions for r under opts.
func Size(r *pianoroll.Raster, opts Options) (w, h int) {
	cols := (r.Times + opts.TicksPerPixel - 1) / opts.TicksPerPixel
	return LabelWidth + cols, r.Pitches * opts.CellHeight
}

func validate(r *pianoroll.Raster, opts Options) (int, error) {
	mode := r.ModeIndex(opts.Mode)
	if mode < 0 {
		return 0, score.NewValueError("render mode", "raster has no %s plane", opts.Mode)
	}
	if opts.Track < 0 || opts.Track >= r.Tracks {
		return 0, score.NewValueError("render track", "%d outside [0, %d)", opts.Track, r.Tracks)
	}
	if opts.CellHeight < 1 || opts.TicksPerPixel < 1 {
		return 0, score.NewValueError("render scale", "cell height %d and ticks per pixel %d must be positive", opts.CellHeight, opts.TicksPerPixel)
	}
	if w, _ := Size(r, opts); w > maxWidth {
		return 0, score.NewValueError("render width", "%d pixels; raise ticks per pixel", w)
	}
	return mode, nil
}

// bucket is the max over [b*n, (b+1)*n) of a row.
func bucket(row []uint8, b, n int) uint8 {
	var v uint8
	for _, x := range row[b*n : min((b+1)*n, len(row))] {
		v = max(v, x)
	}
	return v
}

// Image draws one mode plane of one raster track. Higher pitches are at
// the top; each C gets a grid line and a label.
func Image(r *pianoroll.Raster, opts Options) (image.Image, error) {
	mode, err := validate(r, opts)
	if err != nil {
		return nil, err
	}
	if opts.Palette == nil {
		opts.Palette = theme.Plasma()
	}
	th := theme.New(opts.Palette)
	w, h := Size(r, opts)
	cols := w - LabelWidth
	cell := float64(opts.CellHeight)

	// binary rasters hold 1 for every note
	var peak uint8
	for p := 0; p < r.Pitches; p++ {
		for _, v := range r.Row(mode, opts.Track, p) {
			peak = max(peak, v)
		}
	}
	scale := func(v uint8) uint8 {
		if peak <= 1 {
			return 127 * v
		}
		return v
	}

	dc := gg.NewContext(w, h)
	dc.SetColor(th.Palette.Lookup(theme.RoleBG).RGBA())
	dc.DrawRectangle(0, 0, float64(w), float64(h))
	dc.Fill()

	face, err := labelFace(min(cell*2, 12))
	if err != nil {
		return nil, fmt.Errorf("label font: %w", err)
	}
	dc.SetFontFace(face)

	for p := 0; p < r.Pitches; p++ {
		y := float64(r.Pitches-1-p) * cell
		pitch := r.PitchLow + p
		if pitch%12 == 0 {
			dc.SetColor(th.Palette.Lookup(theme.RoleMuted).RGBA())
			dc.DrawRectangle(LabelWidth, y+cell-1, float64(cols), 1)
			dc.Fill()
			dc.SetColor(th.Palette.Lookup(theme.RoleFG).RGBA())
			dc.DrawString(fmt.Sprintf("C%d", pitch/12-1), 2, y+cell)
		}

		row := r.Row(mode, opts.Track, p)
		// runs of equal value become one rectangle
		for b := 0; b < cols; {
			v := bucket(row, b, opts.TicksPerPixel)
			end := b + 1
			for end < cols && bucket(row, end, opts.TicksPerPixel) == v {
				end++
			}
			if v > 0 {
				dc.SetColor(th.Velocity(scale(v)).RGBA())
				dc.DrawRectangle(float64(LabelWidth+b), y, float64(end-b), cell)
				dc.Fill()
			}
			b = end
		}
	}
	debug.Log("render", "drew %dx%d image, mode %s track %d", w, h, opts.Mode, opts.Track)
	return dc.Image(), nil
}

// PNG draws r and writes it as a PNG.
func PNG(w io.Writer, r *pianoroll.Raster, opts Options) error {
	img, err := Image(r, opts)
	if err != nil {
		return err
	}
	dc := gg.NewContextForImage(img)
	return dc.EncodePNG(w)
}
