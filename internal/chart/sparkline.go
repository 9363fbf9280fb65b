// Package chart renders dashboard series as small PNG line charts.
package chart

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/lox/healthdash/internal/series"
)

const (
	Width  = 600
	Height = 160

	padLeft   = 8
	padRight  = 8
	padTop    = 22
	padBottom = 8
)

var (
	background = color.RGBA{20, 22, 30, 255}
	lineColor  = color.RGBA{94, 176, 239, 255}
	textColor  = color.RGBA{200, 200, 200, 255}
)

// Options controls the chart title line.
type Options struct {
	Title string
	Unit  string
}

// plot maps tick positions and values into pixel space.
type plot struct {
	n        int
	min, max float64
}

func (p plot) x(i int) int {
	w := Width - padLeft - padRight - 1
	if p.n <= 1 {
		return padLeft + w/2
	}
	return padLeft + int(math.Round(float64(i)*float64(w)/float64(p.n-1)))
}

func (p plot) y(v float64) int {
	h := Height - padTop - padBottom - 1
	if p.max == p.min {
		return padTop + h/2
	}
	frac := (v - p.min) / (p.max - p.min)
	return padTop + h - int(math.Round(frac*float64(h)))
}

func bounds(values []series.Value) (lo, hi float64, ok bool) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if !v.Valid {
			continue
		}
		lo = math.Min(lo, v.Float64)
		hi = math.Max(hi, v.Float64)
		ok = true
	}
	return lo, hi, ok
}

// Sparkline draws s as a line chart. Consecutive valid ticks are joined;
// a gap breaks the line, and a valid tick between two gaps is drawn as a dot.
func Sparkline(s series.Series, opts Options) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	lo, hi, ok := bounds(s.Values)
	title := opts.Title + "  no data"
	if ok {
		title = fmt.Sprintf("%s  min %s  max %s", opts.Title, formatValue(lo, opts.Unit), formatValue(hi, opts.Unit))
	}
	drawText(img, title, padLeft, 15, textColor)

	if ok {
		p := plot{n: len(s.Values), min: lo, max: hi}
		for i, v := range s.Values {
			if !v.Valid {
				continue
			}
			x, y := p.x(i), p.y(v.Float64)
			joined := false
			if i+1 < len(s.Values) && s.Values[i+1].Valid {
				drawLine(img, x, y, p.x(i+1), p.y(s.Values[i+1].Float64), lineColor)
				joined = true
			}
			if i > 0 && s.Values[i-1].Valid {
				joined = true
			}
			if !joined {
				drawDot(img, x, y, lineColor)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

func formatValue(v float64, unit string) string {
	s := fmt.Sprintf("%.1f", v)
	if unit != "" {
		s += " " + unit
	}
	return s
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func drawLine(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		img.SetRGBA(x0, y0, col)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func drawDot(img *image.RGBA, x, y int, col color.RGBA) {
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			img.SetRGBA(x+dx, y+dy, col)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
