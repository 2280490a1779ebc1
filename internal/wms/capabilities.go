package wms

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"

	"github.com/mfortin/radar-loop-service/internal/models"
)

// dimensionXPath locates the time Dimension of a named layer. local-name()
// sidesteps the wms namespace prefix in the capability document.
const dimensionXPath = `//*[local-name()='Layer'][*[local-name()='Name']=%q]/*[local-name()='Dimension']`

// ResolveTimeRange fetches the capability document and extracts the valid
// [start, end] interval for the layer. The dimension value has the form
// "<start>/<end>[/<step>]" with RFC3339 endpoints. The interval is
// resolved fresh on every call; data availability shifts continuously.
func (c *Client) ResolveTimeRange(ctx context.Context, layer string) (models.TimeInterval, error) {
	doc, err := c.GetCapabilities(ctx, layer)
	if err != nil {
		return models.TimeInterval{}, fmt.Errorf("%w: %v", ErrResolution, err)
	}
	return parseTimeDimension(doc, layer)
}

// parseTimeDimension extracts and parses the layer's Dimension text from a
// capability document.
func parseTimeDimension(doc []byte, layer string) (models.TimeInterval, error) {
	root, err := xmlquery.Parse(bytes.NewReader(doc))
	if err != nil {
		return models.TimeInterval{}, fmt.Errorf("%w: parse capability document: %v", ErrResolution, err)
	}

	node, err := xmlquery.Query(root, fmt.Sprintf(dimensionXPath, layer))
	if err != nil {
		return models.TimeInterval{}, fmt.Errorf("%w: dimension query: %v", ErrResolution, err)
	}
	if node == nil {
		return models.TimeInterval{}, fmt.Errorf("%w: layer %s has no time dimension", ErrResolution, layer)
	}

	parts := strings.Split(strings.TrimSpace(node.InnerText()), "/")
	if len(parts) < 2 {
		return models.TimeInterval{}, fmt.Errorf("%w: malformed dimension %q for layer %s", ErrResolution, node.InnerText(), layer)
	}

	start, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return models.TimeInterval{}, fmt.Errorf("%w: dimension start %q: %v", ErrResolution, parts[0], err)
	}
	end, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return models.TimeInterval{}, fmt.Errorf("%w: dimension end %q: %v", ErrResolution, parts[1], err)
	}

	return models.TimeInterval{Start: start, End: end}, nil
}
