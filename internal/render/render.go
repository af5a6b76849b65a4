package render

import (
	"fmt"
	"image"
	"io"

	"github.com/gogpu/gg"

	"github.com/adirajukashyap/drawd/pkg/draw"
)

const (
	DefaultWidth  = 1280
	DefaultHeight = 720
)

// Snapshot rasterizes the finalized operations onto a white canvas.
// Inactive operations are skipped, so the output matches what an
// up-to-date client would show.
func Snapshot(ops []draw.Stroke, width, height int) (image.Image, error) {
	dc := gg.NewContext(clampDim(width, DefaultWidth), clampDim(height, DefaultHeight))
	defer dc.Close()

	if err := paint(dc, ops); err != nil {
		return nil, err
	}
	return dc.Image(), nil
}

// EncodePNG writes the rasterized snapshot as PNG.
func EncodePNG(w io.Writer, ops []draw.Stroke, width, height int) error {
	dc := gg.NewContext(clampDim(width, DefaultWidth), clampDim(height, DefaultHeight))
	defer dc.Close()

	if err := paint(dc, ops); err != nil {
		return err
	}
	return dc.EncodePNG(w)
}

func paint(dc *gg.Context, ops []draw.Stroke) error {
	dc.ClearWithColor(gg.White)
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)

	for i := range ops {
		op := &ops[i]
		if !op.Active || len(op.Points) == 0 {
			continue
		}

		// Erasers paint the background color, same as clients do.
		if op.Tool == draw.ToolEraser {
			dc.SetRGB(1, 1, 1)
		} else {
			dc.SetHexColor(op.Color)
		}
		dc.SetLineWidth(op.Width)

		// A tap with no movement still leaves a dot.
		if len(op.Points) == 1 {
			p := op.Points[0]
			dc.DrawCircle(p.X, p.Y, op.Width/2)
			if err := dc.Fill(); err != nil {
				return fmt.Errorf("fill stroke %s: %w", op.OpID, err)
			}
			continue
		}

		dc.MoveTo(op.Points[0].X, op.Points[0].Y)
		for _, p := range op.Points[1:] {
			dc.LineTo(p.X, p.Y)
		}
		if err := dc.Stroke(); err != nil {
			return fmt.Errorf("stroke %s: %w", op.OpID, err)
		}
	}
	return nil
}

func clampDim(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
