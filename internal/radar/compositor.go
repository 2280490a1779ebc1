package radar

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"time"

	"github.com/nfnt/resize"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mfortin/radar-loop-service/internal/models"
	"github.com/mfortin/radar-loop-service/internal/observability"
)

// labelFace is the fixed bitmap font for the timestamp label. The drawn
// label is doubled with a nearest-neighbor upscale for legibility.
var labelFace = basicfont.Face7x13

// Compositor renders composite frames for a session. Location is the
// timezone used for the frame label; frames themselves stay in UTC.
type Compositor struct {
	Location *time.Location
}

// NewCompositor returns a Compositor labelling frames in loc (UTC if nil).
func NewCompositor(loc *time.Location) *Compositor {
	if loc == nil {
		loc = time.UTC
	}
	return &Compositor{Location: loc}
}

// Compose overlays one radar raster on the session basemap, pastes the
// legend and a timestamp label, and returns the flattened frame as PNG
// bytes. The basemap dimensions define the canvas; the radar layer is
// alpha-composited strictly over it.
func (c *Compositor) Compose(s *Session, radarBytes []byte, frameTime time.Time) (models.CompositeFrame, error) {
	start := time.Now()
	defer func() { observability.ComposeDuration.Observe(time.Since(start).Seconds()) }()

	base, _, err := image.Decode(bytes.NewReader(s.Basemap))
	if err != nil {
		return nil, fmt.Errorf("%w: decode basemap: %v", ErrComposition, err)
	}
	radar, _, err := image.Decode(bytes.NewReader(radarBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: decode radar frame: %v", ErrComposition, err)
	}

	canvas := image.NewRGBA(base.Bounds())
	draw.Draw(canvas, canvas.Bounds(), base, image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), radar, image.Point{}, draw.Over)

	// Legend is pre-rendered on a solid background: opaque paste, no blending.
	legendRect := image.Rectangle{Min: s.LegendOffset, Max: s.LegendOffset.Add(s.Legend.Bounds().Size())}
	draw.Draw(canvas, legendRect, s.Legend, s.Legend.Bounds().Min, draw.Src)

	label := c.renderLabel(s.Precip, frameTime)
	draw.Draw(canvas, label.Bounds(), label, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("%w: encode frame: %v", ErrComposition, err)
	}
	return buf.Bytes(), nil
}

// renderLabel draws "<Kind> @ <HH:MM>" black-on-white with the bitmap
// font, then doubles the pixel dimensions.
func (c *Compositor) renderLabel(precip models.PrecipKind, frameTime time.Time) image.Image {
	text := precip.Title() + " @ " + frameTime.In(c.Location).Format("15:04")

	width := font.MeasureString(labelFace, text).Ceil()
	box := image.NewRGBA(image.Rect(0, 0, width, labelFace.Height))
	draw.Draw(box, box.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	drawer := font.Drawer{
		Dst:  box,
		Src:  image.NewUniform(color.Black),
		Face: labelFace,
		Dot:  fixed.P(0, labelFace.Ascent),
	}
	drawer.DrawString(text)

	return resize.Resize(uint(width*2), uint(labelFace.Height*2), box, resize.NearestNeighbor)
}
