package canvas

import "sphere_canvas/internal/domain"

// Viewport maps logical graph space to screen space: screen = logical*Zoom + Pan.
type Viewport struct {
	Zoom float64
	Pan  domain.Point
}

func (v Viewport) ScreenToLogical(p domain.Point) domain.Point {
	return p.Sub(v.Pan).Scale(1 / v.Zoom)
}

func (v Viewport) LogicalToScreen(p domain.Point) domain.Point {
	return p.Scale(v.Zoom).Add(v.Pan)
}

type Config struct {
	MinZoom    float64
	MaxZoom    float64
	FitMaxZoom float64
	ZoomStep   float64
	NodeSize   domain.Size
	Padding    float64
	// MinCanvas is the backing canvas size used when the graph is empty or small.
	MinCanvas domain.Size
}

func (c Config) withDefaults() Config {
	if c.MinZoom <= 0 {
		c.MinZoom = 0.5
	}
	if c.MaxZoom <= 0 {
		c.MaxZoom = 2.0
	}
	if c.MaxZoom < c.MinZoom {
		c.MaxZoom = c.MinZoom
	}
	if c.FitMaxZoom <= 0 {
		c.FitMaxZoom = 1.5
	}
	if c.ZoomStep <= 1 {
		c.ZoomStep = 1.1
	}
	if c.NodeSize.Width <= 0 {
		c.NodeSize.Width = 180
	}
	if c.NodeSize.Height <= 0 {
		c.NodeSize.Height = 80
	}
	if c.Padding < 0 {
		c.Padding = 0
	}
	if c.MinCanvas.Width <= 0 {
		c.MinCanvas.Width = 2000
	}
	if c.MinCanvas.Height <= 0 {
		c.MinCanvas.Height = 1500
	}
	return c
}

// DefaultConfig is the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{Padding: 100}.withDefaults()
}

func (c Config) clampZoom(z float64) float64 {
	return min(max(z, c.MinZoom), c.MaxZoom)
}

// NodeRect is the logical footprint of a node.
func (c Config) NodeRect(n domain.Node) domain.Rect {
	return domain.Rect{
		MinX: n.Position.X,
		MinY: n.Position.Y,
		MaxX: n.Position.X + c.NodeSize.Width,
		MaxY: n.Position.Y + c.NodeSize.Height,
	}
}

// CalculateBounds returns the box covering every node footprint grown by the padding on all
// sides. With no nodes it returns the minimum canvas box anchored at the origin.
func (c Config) CalculateBounds(nodes []domain.Node) domain.Rect {
	if len(nodes) == 0 {
		return domain.Rect{MaxX: c.MinCanvas.Width, MaxY: c.MinCanvas.Height}
	}
	b := c.NodeRect(nodes[0])
	for _, n := range nodes[1:] {
		r := c.NodeRect(n)
		b.MinX = min(b.MinX, r.MinX)
		b.MinY = min(b.MinY, r.MinY)
		b.MaxX = max(b.MaxX, r.MaxX)
		b.MaxY = max(b.MaxY, r.MaxY)
	}
	return domain.Rect{
		MinX: b.MinX - c.Padding,
		MinY: b.MinY - c.Padding,
		MaxX: b.MaxX + c.Padding,
		MaxY: b.MaxY + c.Padding,
	}
}

// FitViewport computes the zoom and pan that centre bounds inside a viewport of the given size.
// Zoom is min(vw/bw, vh/bh, FitMaxZoom).
func (c Config) FitViewport(bounds domain.Rect, view domain.Size) Viewport {
	bw, bh := bounds.Width(), bounds.Height()
	if bw <= 0 || bh <= 0 || view.Width <= 0 || view.Height <= 0 {
		return Viewport{Zoom: 1}
	}
	zoom := min(view.Width/bw, view.Height/bh, c.FitMaxZoom)
	return Viewport{
		Zoom: zoom,
		Pan: domain.Point{
			X: (view.Width-bw*zoom)/2 - bounds.MinX*zoom,
			Y: (view.Height-bh*zoom)/2 - bounds.MinY*zoom,
		},
	}
}
