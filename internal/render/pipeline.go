// Package render draws captcha solutions into noisy PNG images: angled
// glyphs over a flat background, up to two elliptical arc strokes, then
// per-pixel salt noise.
package render

import (
	"bytes"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"math/rand"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	DefaultWidth           = 240
	DefaultHeight          = 96
	DefaultFontSize        = 54
	DefaultMaxRotationDeg  = 25
	DefaultSaltProbability = 0.08
	DefaultBackground      = "#1e1e26"
	DefaultTextColor       = "#dfdfdf"
)

// Config are the pipeline knobs. Zero dimensions, font size or rotation
// fall back to the defaults above; SaltProbability is clamped to [0, 1]
// and zero genuinely means no salt.
type Config struct {
	Width           int
	Height          int
	FontSize        float64
	MaxRotationDeg  float64
	SaltProbability float64
	Background      string
	TextColor       string
}

// Pipeline renders solutions. Construct once with NewPipeline (parsing the
// embedded font is the expensive part) and share it; Render is safe for
// concurrent use.
type Pipeline struct {
	cfg  Config
	font *truetype.Font
}

// NewPipeline parses the embedded Go Regular face and returns a renderer
// for the given config.
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}
	if cfg.FontSize <= 0 {
		cfg.FontSize = DefaultFontSize
	}
	if cfg.MaxRotationDeg <= 0 {
		cfg.MaxRotationDeg = DefaultMaxRotationDeg
	}
	if cfg.SaltProbability < 0 {
		cfg.SaltProbability = 0
	}
	if cfg.SaltProbability > 1 {
		cfg.SaltProbability = 1
	}
	if cfg.Background == "" {
		cfg.Background = DefaultBackground
	}
	if cfg.TextColor == "" {
		cfg.TextColor = DefaultTextColor
	}

	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse embedded font: %w", err)
	}
	return &Pipeline{cfg: cfg, font: f}, nil
}

// Render draws solution and returns the encoded PNG. Stage order is fixed:
// background, angled glyphs, arc strokes, salt. Randomness comes from a
// fresh crypto-seeded stream per call, so two renders of the same solution
// differ; memoizing the output is the caller's job.
func (p *Pipeline) Render(solution string) ([]byte, error) {
	rng := rand.New(rand.NewSource(cryptoSeed()))

	dc := gg.NewContext(p.cfg.Width, p.cfg.Height)
	dc.SetHexColor(p.cfg.Background)
	dc.Clear()

	p.drawGlyphs(dc, rng, solution)
	p.drawArcs(dc, rng)

	im := dc.Image().(*image.RGBA)
	saltAndPepper(im, rng, p.cfg.SaltProbability)

	var buf bytes.Buffer
	if err := png.Encode(&buf, im); err != nil {
		return nil, fmt.Errorf("encode captcha png: %w", err)
	}
	return buf.Bytes(), nil
}

// drawGlyphs places each character on its own transparent sub-canvas,
// rotated about the sub-canvas center, and composites it onto the base at
// a sequential x-offset with slight y-jitter. Per-glyph canvases keep the
// rotations independent and deny OCR a stable glyph template.
func (p *Pipeline) drawGlyphs(dc *gg.Context, rng *rand.Rand, solution string) {
	face := truetype.NewFace(p.font, &truetype.Options{Size: p.cfg.FontSize})

	n := len(solution)
	if n == 0 {
		return
	}
	step := float64(p.cfg.Width) / float64(n+1)
	box := int(p.cfg.FontSize * 2)
	center := float64(box) / 2
	maxRot := gg.Radians(p.cfg.MaxRotationDeg)

	for i := 0; i < n; i++ {
		sub := gg.NewContext(box, box)
		sub.SetFontFace(face)
		sub.SetHexColor(p.cfg.TextColor)

		angle := (rng.Float64()*2 - 1) * maxRot
		sub.RotateAbout(angle, center, center)
		sub.DrawStringAnchored(string(solution[i]), center, center, 0.5, 0.5)

		x := step*float64(i+1) - center
		y := float64(p.cfg.Height)/2 - center + (rng.Float64()*2-1)*p.cfg.FontSize*0.15
		dc.DrawImage(sub.Image(), int(x), int(y))
	}
}

// drawArcs strokes 0-2 white ellipse outlines whose bounding box starts
// well off-canvas at (-50,-50) and ends past the right edge at a random
// height, so each arc cuts across the glyphs at a different sweep.
func (p *Pipeline) drawArcs(dc *gg.Context, rng *rand.Rand) {
	dc.SetRGB(1, 1, 1)
	dc.SetLineWidth(1.5)
	for i := 0; i < rng.Intn(3); i++ {
		x0, y0 := -50.0, -50.0
		x1 := float64(p.cfg.Width) + 10
		y1 := rng.Float64() * (float64(p.cfg.Height) + 10)

		dc.DrawEllipse((x0+x1)/2, (y0+y1)/2, (x1-x0)/2, (y1-y0)/2)
		dc.Stroke()
	}
}

// saltAndPepper replaces each pixel with pure white with probability prob.
// One Uint32 draw against a fixed threshold per pixel keeps the decisions
// i.i.d. Bernoulli(prob) while the loop stays a flat scan over Pix; this
// stage dominates render cost.
func saltAndPepper(im *image.RGBA, rng *rand.Rand, prob float64) {
	if prob <= 0 {
		return
	}
	threshold := uint64(prob * float64(1<<32))
	pix := im.Pix
	for i := 0; i < len(pix); i += 4 {
		if uint64(rng.Uint32()) < threshold {
			pix[i] = 0xFF
			pix[i+1] = 0xFF
			pix[i+2] = 0xFF
			pix[i+3] = 0xFF
		}
	}
}

func cryptoSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
