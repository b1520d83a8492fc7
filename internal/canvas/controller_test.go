package canvas

import (
	"fmt"
	"math"
	"testing"

	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/graph"
)

func newTestGraph() *graph.Graph {
	n := 0
	return graph.New("canvas", graph.WithIDGenerator(func(prefix string) string {
		n++
		return fmt.Sprintf("%s_%d", prefix, n)
	}))
}

func testConfig() Config {
	return Config{
		NodeSize:  domain.Size{Width: 100, Height: 50},
		Padding:   20,
		MinCanvas: domain.Size{Width: 1000, Height: 800},
	}
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func nearPoint(a, b domain.Point) bool {
	return near(a.X, b.X) && near(a.Y, b.Y)
}

func TestViewportRoundTrip(t *testing.T) {
	views := []Viewport{
		{Zoom: 1},
		{Zoom: 0.5, Pan: domain.Point{X: -120, Y: 33}},
		{Zoom: 2, Pan: domain.Point{X: 17.25, Y: -400}},
		{Zoom: 1.37, Pan: domain.Point{X: 0.1, Y: 0.2}},
	}
	points := []domain.Point{{}, {X: 10, Y: -5}, {X: 1234.5, Y: 987.25}, {X: -3, Y: 44}}
	for _, v := range views {
		for _, p := range points {
			got := v.ScreenToLogical(v.LogicalToScreen(p))
			if !nearPoint(got, p) {
				t.Fatalf("zoom=%v pan=%v: round trip %v -> %v", v.Zoom, v.Pan, p, got)
			}
		}
	}
}

func TestCalculateBounds(t *testing.T) {
	cfg := testConfig().withDefaults()

	empty := cfg.CalculateBounds(nil)
	if empty != (domain.Rect{MaxX: 1000, MaxY: 800}) {
		t.Fatalf("empty bounds=%+v", empty)
	}

	single := cfg.CalculateBounds([]domain.Node{{ID: "a", Position: domain.Point{X: 50, Y: 60}, Data: domain.EndData{}}})
	want := domain.Rect{MinX: 30, MinY: 40, MaxX: 170, MaxY: 130}
	if single != want {
		t.Fatalf("single bounds=%+v want=%+v", single, want)
	}

	multi := cfg.CalculateBounds([]domain.Node{
		{ID: "a", Position: domain.Point{X: 0, Y: 0}, Data: domain.EndData{}},
		{ID: "b", Position: domain.Point{X: 300, Y: -100}, Data: domain.EndData{}},
	})
	want = domain.Rect{MinX: -20, MinY: -120, MaxX: 420, MaxY: 70}
	if multi != want {
		t.Fatalf("multi bounds=%+v want=%+v", multi, want)
	}
}

func TestFitToViewCapsZoomAndCentres(t *testing.T) {
	g := newTestGraph()
	c := NewController(g, testConfig())
	c.SetViewportSize(domain.Size{Width: 1000, Height: 1000})
	g.AddNode(domain.NodeTypeStart, domain.Point{X: 0, Y: 0})

	c.FitToView()
	v := c.Viewport()
	if v.Zoom != 1.5 {
		t.Fatalf("zoom=%v want fit cap 1.5", v.Zoom)
	}
	b := c.Bounds()
	centre := domain.Point{X: (b.MinX + b.MaxX) / 2, Y: (b.MinY + b.MaxY) / 2}
	if got := c.LogicalToScreen(centre); !nearPoint(got, domain.Point{X: 500, Y: 500}) {
		t.Fatalf("bounds centre on screen=%v", got)
	}

	g.AddNode(domain.NodeTypeEnd, domain.Point{X: 3860, Y: 0})
	c.FitToView()
	// bounds width 3860+100+40 = 4000
	if got := c.Viewport().Zoom; !near(got, 0.25) {
		t.Fatalf("zoom=%v want=0.25", got)
	}
}

func TestBoundsCacheInvalidatedByMutation(t *testing.T) {
	g := newTestGraph()
	c := NewController(g, testConfig())
	before := c.Bounds()
	n, _ := g.AddNode(domain.NodeTypeStart, domain.Point{X: 5000, Y: 5000})
	after := c.Bounds()
	if after == before {
		t.Fatalf("bounds not recomputed after add")
	}
	g.MoveNode(n.ID, domain.Point{})
	if c.Bounds().MaxX != 120 {
		t.Fatalf("bounds not recomputed after move: %+v", c.Bounds())
	}
	size := c.CanvasSize()
	if size.Width != 1000 || size.Height != 800 {
		t.Fatalf("canvas size=%+v", size)
	}
}

func TestManualZoomIsClamped(t *testing.T) {
	c := NewController(newTestGraph(), testConfig())
	c.SetZoom(10)
	if c.Viewport().Zoom != 2 {
		t.Fatalf("zoom=%v want=2", c.Viewport().Zoom)
	}
	c.SetZoom(0.01)
	if c.Viewport().Zoom != 0.5 {
		t.Fatalf("zoom=%v want=0.5", c.Viewport().Zoom)
	}
}

func TestZoomAtKeepsAnchorFixed(t *testing.T) {
	c := NewController(newTestGraph(), testConfig())
	c.SetViewport(Viewport{Zoom: 1, Pan: domain.Point{X: 30, Y: -10}})
	anchor := domain.Point{X: 200, Y: 150}
	before := c.ScreenToLogical(anchor)
	c.ZoomIn(anchor)
	c.ZoomIn(anchor)
	after := c.ScreenToLogical(anchor)
	if !nearPoint(before, after) {
		t.Fatalf("anchor moved from %v to %v", before, after)
	}
}

func TestDragCentresNodeUnderPointer(t *testing.T) {
	g := newTestGraph()
	c := NewController(g, testConfig())
	c.SetViewport(Viewport{Zoom: 2, Pan: domain.Point{X: 100, Y: 100}})
	n, _ := g.AddNode(domain.NodeTypeAgent, domain.Point{X: 0, Y: 0})

	out := c.PointerDown(domain.Point{X: 110, Y: 110})
	if out.Selected != n.ID || c.Dragging() != n.ID {
		t.Fatalf("press did not start drag: %+v", out)
	}
	// far outside any canvas
	c.PointerMove(domain.Point{X: -900, Y: 5000})
	got, _ := g.Node(n.ID)
	want := domain.Point{X: -500 - 50, Y: 2450 - 25}
	if !nearPoint(got.Position, want) {
		t.Fatalf("position=%v want=%v", got.Position, want)
	}
	c.PointerUp()
	if c.Dragging() != "" {
		t.Fatalf("drag not cleared")
	}
	if c.PointerMove(domain.Point{}) {
		t.Fatalf("move after release changed something")
	}
}

func TestPanDragOnEmptyCanvas(t *testing.T) {
	c := NewController(newTestGraph(), testConfig())
	c.PointerDown(domain.Point{X: 10, Y: 10})
	if !c.Panning() {
		t.Fatalf("expected pan to start")
	}
	c.PointerMove(domain.Point{X: 40, Y: -5})
	if got := c.Viewport().Pan; got != (domain.Point{X: 30, Y: -15}) {
		t.Fatalf("pan=%v", got)
	}
	c.PointerUp()
	if c.Panning() {
		t.Fatalf("pan not cleared")
	}
}

func TestConnectGesture(t *testing.T) {
	g := newTestGraph()
	c := NewController(g, testConfig())
	a, _ := g.AddNode(domain.NodeTypeStart, domain.Point{X: 0, Y: 0})
	b, _ := g.AddNode(domain.NodeTypeEnd, domain.Point{X: 300, Y: 0})

	if _, ok := c.CompleteConnect(b.ID); ok {
		t.Fatalf("connection created without pending source")
	}
	if !c.BeginConnect(a.ID) {
		t.Fatalf("begin connect failed")
	}
	if _, ok := c.CompleteConnect(a.ID); ok {
		t.Fatalf("connection to the source itself was created")
	}
	if c.Pending() != "" {
		t.Fatalf("clicking the source should cancel the gesture")
	}

	c.BeginConnect(a.ID)
	out := c.PointerDown(domain.Point{X: 310, Y: 10})
	if out.Connection == nil {
		t.Fatalf("expected connection from press on target")
	}
	if out.Connection.From != a.ID || out.Connection.To != b.ID {
		t.Fatalf("connection=%+v", out.Connection)
	}
	if c.Pending() != "" {
		t.Fatalf("pending not cleared")
	}
	if len(g.Connections()) != 1 {
		t.Fatalf("connections=%d", len(g.Connections()))
	}

	c.BeginConnect(a.ID)
	out = c.PointerDown(domain.Point{X: 900, Y: 900})
	if !out.Cancelled || c.Pending() != "" {
		t.Fatalf("press on empty canvas should cancel: %+v", out)
	}
}

func TestDeleteClearsInteractionState(t *testing.T) {
	g := newTestGraph()
	c := NewController(g, testConfig())
	a, _ := g.AddNode(domain.NodeTypeStart, domain.Point{})
	c.Select(a.ID)
	c.BeginConnect(a.ID)
	c.MarkExecuted(a.ID, "")
	g.DeleteNode(a.ID)
	if c.Selected() != "" || c.Pending() != "" || c.NodeExecuted(a.ID) {
		t.Fatalf("state survived delete: selected=%q pending=%q", c.Selected(), c.Pending())
	}
}

func TestDeleteNodeClearsCascadedConnectionHighlights(t *testing.T) {
	g := newTestGraph()
	c := NewController(g, testConfig())
	a, _ := g.AddNode(domain.NodeTypeStart, domain.Point{})
	b, _ := g.AddNode(domain.NodeTypeAgent, domain.Point{X: 200})
	d, _ := g.AddNode(domain.NodeTypeEnd, domain.Point{X: 400})
	ab := g.AddConnection(a.ID, b.ID, "")
	bd := g.AddConnection(b.ID, d.ID, "")
	c.MarkExecuted(b.ID, ab.ID)
	c.MarkExecuted(d.ID, bd.ID)

	g.DeleteNode(a.ID)
	if c.ConnectionExecuted(ab.ID) {
		t.Fatalf("highlight of removed connection %s survived", ab.ID)
	}
	if !c.ConnectionExecuted(bd.ID) || !c.NodeExecuted(b.ID) {
		t.Fatalf("unrelated highlights were cleared")
	}
}

func TestContextMenuPlacesNodeAtLogicalPoint(t *testing.T) {
	g := newTestGraph()
	c := NewController(g, testConfig())
	c.SetViewport(Viewport{Zoom: 0.5, Pan: domain.Point{X: -40, Y: 60}})

	m := c.OpenContextMenu(domain.Point{X: 160, Y: 160})
	if m.Logical != (domain.Point{X: 400, Y: 200}) {
		t.Fatalf("menu logical=%v", m.Logical)
	}
	n, err := c.AddNodeFromMenu(domain.NodeTypeCondition)
	if err != nil {
		t.Fatalf("add from menu: %v", err)
	}
	if n.Position != m.Logical {
		t.Fatalf("node position=%v want=%v", n.Position, m.Logical)
	}
	if _, open := c.ContextMenu(); open {
		t.Fatalf("menu still open")
	}
}

func TestToolbarAddUsesViewportCentre(t *testing.T) {
	g := newTestGraph()
	c := NewController(g, testConfig())
	c.SetViewportSize(domain.Size{Width: 800, Height: 600})
	first, _ := c.AddNode(domain.NodeTypeAgent)
	if first.Position != (domain.Point{X: 350, Y: 275}) {
		t.Fatalf("first position=%v", first.Position)
	}
	second, _ := c.AddNode(domain.NodeTypeAgent)
	if second.Position == first.Position {
		t.Fatalf("consecutive additions overlap exactly")
	}
}

func TestSelectRaisesNode(t *testing.T) {
	g := newTestGraph()
	c := NewController(g, testConfig())
	a, _ := g.AddNode(domain.NodeTypeStart, domain.Point{})
	g.AddNode(domain.NodeTypeEnd, domain.Point{})
	c.Select(a.ID)
	nodes := g.Nodes()
	if nodes[len(nodes)-1].ID != a.ID {
		t.Fatalf("selected node not on top")
	}
	if id, ok := c.HitTest(domain.Point{X: 10, Y: 10}); !ok || id != a.ID {
		t.Fatalf("hit=%q ok=%t want %q", id, ok, a.ID)
	}
}
