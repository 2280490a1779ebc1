package radar

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"time"

	"github.com/ericpauley/go-quantize/quantize"

	"github.com/mfortin/radar-loop-service/internal/models"
	"github.com/mfortin/radar-loop-service/internal/observability"
)

// DefaultFrameDelay is the per-frame display time of the assembled loop
// (5 fps in the upstream product).
const DefaultFrameDelay = 200 * time.Millisecond

// EncodeGIF encodes the ordered frame sequence as an animated GIF. Each
// frame is palettized with a median-cut quantizer and dithered. delay is
// the per-frame display time, truncated to GIF's 10ms resolution.
func EncodeGIF(frames []models.CompositeFrame, delay time.Duration) ([]byte, error) {
	start := time.Now()
	defer func() { observability.EncodeDuration.Observe(time.Since(start).Seconds()) }()

	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames to encode")
	}

	delayCS := int(delay / (10 * time.Millisecond))
	if delayCS < 1 {
		delayCS = 1
	}

	quantizer := quantize.MedianCutQuantizer{}
	images := make([]*image.Paletted, 0, len(frames))
	delays := make([]int, 0, len(frames))

	for i, frame := range frames {
		img, _, err := image.Decode(bytes.NewReader(frame))
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", i, err)
		}

		palette := quantizer.Quantize(make([]color.Color, 0, 256), img)
		paletted := image.NewPaletted(img.Bounds(), palette)
		draw.FloydSteinberg.Draw(paletted, img.Bounds(), img, image.Point{})

		images = append(images, paletted)
		delays = append(delays, delayCS)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, &gif.GIF{Image: images, Delay: delays}); err != nil {
		return nil, fmt.Errorf("encode gif: %w", err)
	}
	return buf.Bytes(), nil
}
