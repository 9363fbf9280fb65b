package chart

import (
	"bytes"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/healthdash/internal/series"
)

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func rgba(img image.Image, x, y int) [3]uint32 {
	r, g, b, _ := img.At(x, y).RGBA()
	return [3]uint32{r >> 8, g >> 8, b >> 8}
}

func TestSparklineBreaksAtGaps(t *testing.T) {
	s := series.Series{Values: []series.Value{series.Some(10), series.Some(20), series.Gap, series.Gap, series.Some(15)}}

	data, err := Sparkline(s, Options{Title: "glucose", Unit: "mg/dL"})
	require.NoError(t, err)
	img := decode(t, data)
	assert.Equal(t, image.Rect(0, 0, Width, Height), img.Bounds())

	p := plot{n: 5, min: 10, max: 20}
	line := [3]uint32{uint32(lineColor.R), uint32(lineColor.G), uint32(lineColor.B)}
	bg := [3]uint32{uint32(background.R), uint32(background.G), uint32(background.B)}

	assert.Equal(t, line, rgba(img, p.x(0), p.y(10)))
	assert.Equal(t, line, rgba(img, p.x(1), p.y(20)))
	assert.Equal(t, line, rgba(img, p.x(4), p.y(15)), "isolated value is drawn")

	// Nothing is drawn across the gap.
	gapX := p.x(3)
	for y := padTop; y < Height-padBottom; y++ {
		assert.Equal(t, bg, rgba(img, gapX, y), "y=%d", y)
	}
}

func TestSparklineWithoutData(t *testing.T) {
	data, err := Sparkline(series.Series{Values: []series.Value{series.Gap, series.Gap}}, Options{Title: "steps"})
	require.NoError(t, err)
	decode(t, data)

	data, err = Sparkline(series.Series{}, Options{Title: "steps"})
	require.NoError(t, err)
	decode(t, data)
}

func TestSparklineFlatSeries(t *testing.T) {
	s := series.Series{Values: []series.Value{series.Some(5), series.Some(5)}}
	data, err := Sparkline(s, Options{})
	require.NoError(t, err)

	p := plot{n: 2, min: 5, max: 5}
	img := decode(t, data)
	assert.Equal(t, [3]uint32{uint32(lineColor.R), uint32(lineColor.G), uint32(lineColor.B)}, rgba(img, p.x(1), p.y(5)))
}

func TestCache(t *testing.T) {
	c := NewCache(time.Minute)

	_, ok := c.Get("glucose", "7d")
	assert.False(t, ok)

	c.Set("glucose", "7d", []byte("png"))
	got, ok := c.Get("glucose", "7d")
	require.True(t, ok)
	assert.Equal(t, []byte("png"), got)

	_, ok = c.Get("glucose", "30d")
	assert.False(t, ok)

	c.Clear()
	_, ok = c.Get("glucose", "7d")
	assert.False(t, ok)
}

func TestCacheExpires(t *testing.T) {
	c := NewCache(-time.Second)
	c.Set("steps", "24h", []byte("png"))
	_, ok := c.Get("steps", "24h")
	assert.False(t, ok)
}
