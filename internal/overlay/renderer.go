// Package overlay draws detection boxes on a transparent surface sized to the
// native video so it can be layered over the live feed.
package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sync"

	"github.com/eleven-am/live-vision/internal/vision"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	strokeWidth   = 3
	labelHeight   = 25
	labelPadding  = 5
	labelBaseline = 7
)

// Palette is indexed by detection position, not by class.
var Palette = []color.RGBA{
	{R: 0x00, G: 0xFF, B: 0x00, A: 0xFF},
	{R: 0xFF, G: 0x00, B: 0xFF, A: 0xFF},
	{R: 0x00, G: 0xFF, B: 0xFF, A: 0xFF},
	{R: 0xFF, G: 0xFF, B: 0x00, A: 0xFF},
	{R: 0xFF, G: 0x66, B: 0x00, A: 0xFF},
	{R: 0xFF, G: 0x00, B: 0x66, A: 0xFF},
}

var ErrDetached = errors.New("overlay: surface detached")

type Box struct {
	Index int             `json:"index"`
	Rect  image.Rectangle `json:"rect"`
	Color color.RGBA      `json:"color"`
	Label string          `json:"label"`
}

type Renderer struct {
	mu      sync.Mutex
	surface *image.RGBA
	boxes   []Box
	face    font.Face
}

func NewRenderer() *Renderer {
	return &Renderer{face: basicfont.Face7x13}
}

func ColorFor(index int) color.RGBA {
	return Palette[index%len(Palette)]
}

func Label(d vision.Detection) string {
	return fmt.Sprintf("%s %d%%", d.Class, int(math.Round(d.Confidence*100)))
}

// Render replaces whatever was drawn before with the given detections. The
// surface takes the video's native size; boxes arrive in the coordinate space
// of the frameW x frameH capture and are scaled per axis.
func (r *Renderer) Render(videoW, videoH, frameW, frameH int, detections []vision.Detection) ([]Box, error) {
	if videoW <= 0 || videoH <= 0 {
		return nil, fmt.Errorf("overlay: invalid video size %dx%d", videoW, videoH)
	}
	if frameW <= 0 || frameH <= 0 {
		frameW, frameH = videoW, videoH
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.resize(videoW, videoH)

	bounds := r.surface.Bounds()
	sx := float64(bounds.Dx()) / float64(frameW)
	sy := float64(bounds.Dy()) / float64(frameH)

	boxes := make([]Box, 0, len(detections))
	for idx, det := range detections {
		rect := image.Rect(
			int(math.Round(det.BBox.X1*sx)),
			int(math.Round(det.BBox.Y1*sy)),
			int(math.Round(det.BBox.X2*sx)),
			int(math.Round(det.BBox.Y2*sy)),
		)
		box := Box{
			Index: idx,
			Rect:  rect,
			Color: ColorFor(idx),
			Label: Label(det),
		}
		r.strokeRect(rect, box.Color)
		r.drawLabel(rect.Min, box.Label, box.Color)
		boxes = append(boxes, box)
	}

	r.boxes = boxes
	return append([]Box(nil), boxes...), nil
}

// Clear wipes the surface but keeps its size.
func (r *Renderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.surface != nil {
		draw.Draw(r.surface, r.surface.Bounds(), image.Transparent, image.Point{}, draw.Src)
	}
	r.boxes = nil
}

func (r *Renderer) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface = nil
	r.boxes = nil
}

func (r *Renderer) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.surface != nil
}

func (r *Renderer) Boxes() []Box {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Box(nil), r.boxes...)
}

// Surface returns a copy of the current drawing.
func (r *Renderer) Surface() (*image.RGBA, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.surface == nil {
		return nil, ErrDetached
	}
	out := image.NewRGBA(r.surface.Bounds())
	copy(out.Pix, r.surface.Pix)
	return out, nil
}

func (r *Renderer) PNG() ([]byte, error) {
	img, err := r.Surface()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("overlay: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) resize(w, h int) {
	if r.surface != nil && r.surface.Bounds().Dx() == w && r.surface.Bounds().Dy() == h {
		draw.Draw(r.surface, r.surface.Bounds(), image.Transparent, image.Point{}, draw.Src)
		return
	}
	r.surface = image.NewRGBA(image.Rect(0, 0, w, h))
}

func (r *Renderer) strokeRect(rect image.Rectangle, c color.RGBA) {
	outer := rect.Inset(-1)
	src := image.NewUniform(c)
	bands := []image.Rectangle{
		image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, outer.Min.Y+strokeWidth),
		image.Rect(outer.Min.X, outer.Max.Y-strokeWidth, outer.Max.X, outer.Max.Y),
		image.Rect(outer.Min.X, outer.Min.Y, outer.Min.X+strokeWidth, outer.Max.Y),
		image.Rect(outer.Max.X-strokeWidth, outer.Min.Y, outer.Max.X, outer.Max.Y),
	}
	for _, band := range bands {
		draw.Draw(r.surface, band.Intersect(r.surface.Bounds()), src, image.Point{}, draw.Src)
	}
}

func (r *Renderer) drawLabel(at image.Point, text string, bg color.RGBA) {
	width := font.MeasureString(r.face, text).Ceil()
	box := image.Rect(at.X, at.Y-labelHeight, at.X+width+2*labelPadding, at.Y)
	draw.Draw(r.surface, box.Intersect(r.surface.Bounds()), image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  r.surface,
		Src:  image.NewUniform(color.Black),
		Face: r.face,
		Dot:  fixed.P(at.X+labelPadding, at.Y-labelBaseline),
	}
	d.DrawString(text)
}
