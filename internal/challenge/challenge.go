// Package challenge renders text CAPTCHAs: a random answer drawn over a noisy
// canvas with each character rotated independently, encoded as PNG.
package challenge

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"captcha/internal/models"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomonobold"
)

// Challenge is one generated CAPTCHA. It is never mutated after Generate
// returns it.
type Challenge struct {
	Text  string
	Image []byte // PNG
}

// EncodedImage returns the PNG as standard base64 without line wrapping.
func (c *Challenge) EncodedImage() string {
	return base64.StdEncoding.EncodeToString(c.Image)
}

// Options controls the rendered challenge.
type Options struct {
	Width       int
	Height      int
	Length      int
	Alphabet    string
	NoiseLines  int
	FontSize    float64
	CharAdvance float64 // fixed horizontal step per character, not glyph metrics
	MaxRotation int     // degrees; each character turns by an integer in [-MaxRotation, MaxRotation)
}

// DefaultOptions returns the 200x50, six character A-Z0-9 layout.
func DefaultOptions() Options {
	return OptionsFromConfig(models.NewDefaultConfig().Captcha)
}

// OptionsFromConfig maps the captcha config block onto generator options.
func OptionsFromConfig(cfg models.CaptchaConfig) Options {
	return Options{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Length:      cfg.Length,
		Alphabet:    cfg.Alphabet,
		NoiseLines:  cfg.NoiseLines,
		FontSize:    cfg.FontSize,
		CharAdvance: cfg.CharAdvance,
		MaxRotation: cfg.MaxRotation,
	}
}

func (o Options) validate() error {
	switch {
	case o.Width <= 0 || o.Height <= 0:
		return errors.New("canvas size must be positive")
	case o.Length <= 0:
		return errors.New("length must be positive")
	case o.Alphabet == "":
		return errors.New("alphabet cannot be empty")
	case o.FontSize <= 0:
		return errors.New("font size must be positive")
	case o.NoiseLines < 0 || o.MaxRotation < 0:
		return errors.New("noise lines and rotation cannot be negative")
	}
	return nil
}

// Generator produces challenges. It is safe for concurrent use.
//
// The random source is not cryptographically secure. Secrecy of the answer
// rests on rate limiting and session scoping, not on unpredictability.
type Generator struct {
	opts     Options
	alphabet []rune
	font     *truetype.Font

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option customizes a Generator.
type Option func(*Generator)

// WithRand replaces the random source, mainly for deterministic tests.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rnd = r }
}

// NewGenerator validates the options and loads the embedded Go Mono Bold face.
func NewGenerator(opts Options, options ...Option) (*Generator, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid captcha options: %w", err)
	}

	f, err := truetype.Parse(gomonobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse captcha font: %w", err)
	}

	g := &Generator{
		opts:     opts,
		alphabet: []rune(opts.Alphabet),
		font:     f,
		rnd:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, o := range options {
		o(g)
	}
	return g, nil
}

// Options returns the options the generator was built with.
func (g *Generator) Options() Options {
	return g.opts
}

type line struct{ x1, y1, x2, y2 float64 }

// plan holds every random decision of one challenge so that rendering can run
// without holding the generator lock.
type plan struct {
	text      string
	lines     []line
	rotations []int
}

func (g *Generator) draw() plan {
	g.mu.Lock()
	defer g.mu.Unlock()

	text := make([]rune, g.opts.Length)
	for i := range text {
		text[i] = g.alphabet[g.rnd.IntN(len(g.alphabet))]
	}

	lines := make([]line, g.opts.NoiseLines)
	for i := range lines {
		lines[i] = line{
			x1: float64(g.rnd.IntN(g.opts.Width)),
			y1: float64(g.rnd.IntN(g.opts.Height)),
			x2: float64(g.rnd.IntN(g.opts.Width)),
			y2: float64(g.rnd.IntN(g.opts.Height)),
		}
	}

	rotations := make([]int, len(text))
	if g.opts.MaxRotation > 0 {
		for i := range rotations {
			rotations[i] = g.rnd.IntN(2*g.opts.MaxRotation) - g.opts.MaxRotation
		}
	}

	return plan{text: string(text), lines: lines, rotations: rotations}
}

// Generate draws a new answer and renders it. The context is accepted for
// tracing decorators; rendering itself does not block.
func (g *Generator) Generate(_ context.Context) (*Challenge, error) {
	p := g.draw()

	img, err := g.render(p)
	if err != nil {
		return nil, err
	}
	return &Challenge{Text: p.text, Image: img}, nil
}

func (g *Generator) render(p plan) ([]byte, error) {
	w, h := g.opts.Width, g.opts.Height
	dc := gg.NewContext(w, h)

	dc.SetRGB(1, 1, 1)
	dc.Clear()

	// Noise
	dc.SetRGB255(192, 192, 192)
	dc.SetLineWidth(1)
	for _, l := range p.lines {
		dc.DrawLine(l.x1, l.y1, l.x2, l.y2)
		dc.Stroke()
	}

	// A face caches glyphs and is not safe to share between renders.
	face := truetype.NewFace(g.font, &truetype.Options{Size: g.opts.FontSize, Hinting: font.HintingFull})
	defer face.Close()
	dc.SetFontFace(face)
	dc.SetRGB(0, 0, 0)

	textWidth, _ := dc.MeasureString(p.text)
	metrics := face.Metrics()
	ascent := float64(metrics.Ascent) / 64
	descent := float64(metrics.Descent) / 64
	x0 := (float64(w) - textWidth) / 2
	y := (float64(h) + ascent - descent) / 2

	for i, ch := range []rune(p.text) {
		x := x0 + float64(i)*g.opts.CharAdvance
		dc.Push()
		dc.RotateAbout(gg.Radians(float64(p.rotations[i])), x, y)
		dc.DrawString(string(ch), x, y)
		dc.Pop()
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode captcha image: %w", err)
	}
	return buf.Bytes(), nil
}
