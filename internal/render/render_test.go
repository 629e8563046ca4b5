package render

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shared-canvas/backend/internal/model"
)

func stroke(x float64, color string) model.BoardEvent {
	return model.NewStrokeEvent(model.StrokeSegment{X1: x, Y1: x, X2: x + 10, Y2: x + 10, Color: color, Width: 3})
}

func TestRaster_ApplyChangesPixels(t *testing.T) {
	blank := NewRaster(64, 64).Fingerprint()

	r := NewRaster(64, 64)
	r.Apply(stroke(5, "#ff0000"))
	assert.NotEqual(t, blank, r.Fingerprint())

	r.Apply(model.NewClearEvent())
	assert.Equal(t, blank, r.Fingerprint())
}

func TestRaster_ClearIsIdempotent(t *testing.T) {
	once := Render(64, 64, []model.BoardEvent{stroke(5, "#000"), model.NewClearEvent(), stroke(20, "#00f")})
	twice := Render(64, 64, []model.BoardEvent{stroke(5, "#000"), model.NewClearEvent(), model.NewClearEvent(), stroke(20, "#00f")})
	assert.Equal(t, once.Fingerprint(), twice.Fingerprint())
}

func TestRaster_EncodePNG(t *testing.T) {
	r := Render(32, 16, []model.BoardEvent{stroke(1, "#123")})

	var buf bytes.Buffer
	require.NoError(t, r.EncodePNG(&buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	err := WritePDF(&buf, 200, 100, []model.BoardEvent{stroke(1, "#000000"), model.NewClearEvent(), stroke(2, "#abc")})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestParseHexColor(t *testing.T) {
	r, g, b, err := parseHexColor("#ff8000")
	require.NoError(t, err)
	assert.Equal(t, []int{255, 128, 0}, []int{r, g, b})

	r, g, b, err = parseHexColor("#0af")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 170, 255}, []int{r, g, b})

	_, _, _, err = parseHexColor("blue")
	assert.ErrorIs(t, err, model.ErrMalformedEvent)
}

// Folding the effective history gives the same picture as folding the
// whole log.
func TestEffectiveHistoryRenderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	colors := []string{"#000", "#f00", "#0f0", "#00f"}
	properties.Property("effective history renders like the full log", prop.ForAll(
		func(codes []int) bool {
			events := make([]model.BoardEvent, len(codes))
			for i, c := range codes {
				if c == 0 {
					events[i] = model.NewClearEvent()
				} else {
					events[i] = stroke(float64(c*3), colors[c%len(colors)])
				}
			}
			full := Render(48, 48, events)
			effective := Render(48, 48, model.EffectiveHistory(events))
			return full.Fingerprint() == effective.Fingerprint()
		},
		gen.SliceOf(gen.IntRange(0, 10)),
	))

	properties.TestingRun(t)
}
