package render

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jung-kurt/gofpdf"

	"github.com/shared-canvas/backend/internal/model"
)

// WritePDF writes the effective history of events as a single-page vector
// PDF. One board unit is one point.
func WritePDF(w io.Writer, width, height int, events []model.BoardEvent) error {
	p := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: float64(width), Ht: float64(height)},
	})
	p.SetMargins(0, 0, 0)
	p.SetAutoPageBreak(false, 0)
	p.AddPage()
	p.SetLineCapStyle("round")

	for _, ev := range model.EffectiveHistory(events) {
		seg := ev.StrokeSegment
		if ev.IsClear() || seg == nil {
			continue
		}
		r, g, b, err := parseHexColor(seg.Color)
		if err != nil {
			return err
		}
		p.SetDrawColor(r, g, b)
		p.SetLineWidth(seg.Width)
		p.Line(seg.X1, seg.Y1, seg.X2, seg.Y2)
	}

	if err := p.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

// parseHexColor splits #rgb or #rrggbb into 0-255 components.
func parseHexColor(c string) (int, int, int, error) {
	if !model.ValidColor(c) {
		return 0, 0, 0, fmt.Errorf("%w: color %q", model.ErrMalformedEvent, c)
	}
	hex := c[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, err
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff), nil
}
