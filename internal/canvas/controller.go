package canvas

import (
	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/graph"
)

// ContextMenu is an open "add node" menu. Logical is where a node picked from it is placed.
type ContextMenu struct {
	Screen  domain.Point
	Logical domain.Point
}

// Outcome reports what a pointer press did.
type Outcome struct {
	Selected   string
	Connection *domain.Connection
	Cancelled  bool
}

// Controller holds the viewport and the interaction state of one canvas. It listens to the graph
// so that cached bounds and node references never outlive a mutation.
type Controller struct {
	cfg   Config
	graph *graph.Graph
	view  Viewport
	size  domain.Size

	bounds      domain.Rect
	boundsValid bool

	selected  string
	pending   string
	dragging  string
	panning   bool
	panAnchor domain.Point
	panOrigin domain.Point
	menu      *ContextMenu
	added     int

	executedNodes map[string]bool
	executedConns map[string]bool
}

func NewController(g *graph.Graph, cfg Config) *Controller {
	c := &Controller{
		cfg:           cfg.withDefaults(),
		graph:         g,
		view:          Viewport{Zoom: 1},
		executedNodes: map[string]bool{},
		executedConns: map[string]bool{},
	}
	g.Subscribe(c.onChange)
	return c
}

func (c *Controller) onChange(ch graph.Change) {
	c.boundsValid = false
	switch ch.Kind {
	case graph.ChangeNodeDeleted:
		if c.selected == ch.NodeID {
			c.selected = ""
		}
		if c.pending == ch.NodeID {
			c.pending = ""
		}
		if c.dragging == ch.NodeID {
			c.dragging = ""
		}
		delete(c.executedNodes, ch.NodeID)
	case graph.ChangeConnectionDeleted:
		delete(c.executedConns, ch.ConnectionID)
	case graph.ChangeReplaced:
		c.selected, c.pending, c.dragging = "", "", ""
		c.panning = false
		c.menu = nil
		c.ClearExecuted()
	}
}

func (c *Controller) Config() Config {
	return c.cfg
}

func (c *Controller) Viewport() Viewport {
	return c.view
}

func (c *Controller) SetViewport(v Viewport) {
	if v.Zoom <= 0 {
		v.Zoom = 1
	}
	c.view = v
}

// SetViewportSize records the visible area in screen units.
func (c *Controller) SetViewportSize(size domain.Size) {
	c.size = size
}

func (c *Controller) ViewportSize() domain.Size {
	return c.size
}

func (c *Controller) ScreenToLogical(p domain.Point) domain.Point {
	return c.view.ScreenToLogical(p)
}

func (c *Controller) LogicalToScreen(p domain.Point) domain.Point {
	return c.view.LogicalToScreen(p)
}

// SetZoom clamps z to the manual zoom range.
func (c *Controller) SetZoom(z float64) {
	c.view.Zoom = c.cfg.clampZoom(z)
}

// ZoomAt scales the zoom by factor while keeping the logical point under anchor fixed on screen.
func (c *Controller) ZoomAt(factor float64, anchor domain.Point) {
	logical := c.view.ScreenToLogical(anchor)
	c.view.Zoom = c.cfg.clampZoom(c.view.Zoom * factor)
	c.view.Pan = anchor.Sub(logical.Scale(c.view.Zoom))
}

func (c *Controller) ZoomIn(anchor domain.Point) {
	c.ZoomAt(c.cfg.ZoomStep, anchor)
}

func (c *Controller) ZoomOut(anchor domain.Point) {
	c.ZoomAt(1/c.cfg.ZoomStep, anchor)
}

func (c *Controller) PanBy(delta domain.Point) {
	c.view.Pan = c.view.Pan.Add(delta)
}

func (c *Controller) ResetView() {
	c.view = Viewport{Zoom: 1}
}

// Bounds returns the padded bounds of the graph, recomputed only after a mutation.
func (c *Controller) Bounds() domain.Rect {
	if !c.boundsValid {
		c.bounds = c.cfg.CalculateBounds(c.graph.Nodes())
		c.boundsValid = true
	}
	return c.bounds
}

// CanvasSize is the backing canvas size: large enough for every node plus padding and never
// smaller than the minimum canvas.
func (c *Controller) CanvasSize() domain.Size {
	b := c.Bounds()
	return domain.Size{
		Width:  max(b.MaxX, c.cfg.MinCanvas.Width),
		Height: max(b.MaxY, c.cfg.MinCanvas.Height),
	}
}

// FitToView centres the whole graph in the visible viewport.
func (c *Controller) FitToView() {
	if c.size.Width <= 0 || c.size.Height <= 0 {
		return
	}
	c.view = c.cfg.FitViewport(c.Bounds(), c.size)
}

// HitTest returns the top-most node whose footprint contains the screen point.
func (c *Controller) HitTest(screen domain.Point) (string, bool) {
	p := c.view.ScreenToLogical(screen)
	nodes := c.graph.Nodes()
	for i := len(nodes) - 1; i >= 0; i-- {
		if c.cfg.NodeRect(nodes[i]).Contains(p) {
			return nodes[i].ID, true
		}
	}
	return "", false
}

// Select marks id as selected and raises it to the top of the render order. An empty id clears
// the selection.
func (c *Controller) Select(id string) bool {
	if id == "" {
		c.selected = ""
		return true
	}
	if !c.graph.BringToFront(id) {
		return false
	}
	c.selected = id
	return true
}

func (c *Controller) Selected() string {
	return c.selected
}

func (c *Controller) Pending() string {
	return c.pending
}

func (c *Controller) Dragging() string {
	return c.dragging
}

func (c *Controller) Panning() bool {
	return c.panning
}

// BeginConnect makes id the pending source of a connection.
func (c *Controller) BeginConnect(id string) bool {
	if _, ok := c.graph.Node(id); !ok {
		return false
	}
	c.pending = id
	return true
}

// CompleteConnect connects the pending source to id. Without a pending source, or when id is the
// source itself, nothing is created; the latter cancels the gesture.
func (c *Controller) CompleteConnect(id string) (domain.Connection, bool) {
	if c.pending == "" {
		return domain.Connection{}, false
	}
	if id == c.pending {
		c.pending = ""
		return domain.Connection{}, false
	}
	if _, ok := c.graph.Node(id); !ok {
		return domain.Connection{}, false
	}
	conn := c.graph.AddConnection(c.pending, id, "")
	c.pending = ""
	return conn, true
}

// CancelGesture drops a pending connection, an active drag or pan, and the context menu.
func (c *Controller) CancelGesture() {
	c.pending = ""
	c.dragging = ""
	c.panning = false
	c.menu = nil
}

// BeginDrag starts dragging id.
func (c *Controller) BeginDrag(id string) bool {
	if _, ok := c.graph.Node(id); !ok {
		return false
	}
	c.dragging = id
	return true
}

// DragTo centres the dragged node under the pointer. The pointer may be outside the canvas.
func (c *Controller) DragTo(screen domain.Point) bool {
	if c.dragging == "" {
		return false
	}
	p := c.view.ScreenToLogical(screen)
	pos := domain.Point{
		X: p.X - c.cfg.NodeSize.Width/2,
		Y: p.Y - c.cfg.NodeSize.Height/2,
	}
	return c.graph.MoveNode(c.dragging, pos)
}

func (c *Controller) EndDrag() {
	c.dragging = ""
}

// PointerDown interprets a primary button press at a screen point. A press completes a pending
// connection, selects and starts dragging a node, or starts panning the empty canvas.
func (c *Controller) PointerDown(screen domain.Point) Outcome {
	c.menu = nil
	id, hit := c.HitTest(screen)
	if c.pending != "" {
		if !hit {
			c.pending = ""
			return Outcome{Cancelled: true}
		}
		conn, ok := c.CompleteConnect(id)
		if !ok {
			return Outcome{Cancelled: true}
		}
		return Outcome{Connection: &conn}
	}
	if hit {
		c.Select(id)
		c.BeginDrag(id)
		return Outcome{Selected: id}
	}
	c.Select("")
	c.panning = true
	c.panAnchor = screen
	c.panOrigin = c.view.Pan
	return Outcome{}
}

// PointerMove continues a drag or a pan. It reports whether anything moved.
func (c *Controller) PointerMove(screen domain.Point) bool {
	if c.dragging != "" {
		return c.DragTo(screen)
	}
	if c.panning {
		c.view.Pan = c.panOrigin.Add(screen.Sub(c.panAnchor))
		return true
	}
	return false
}

// PointerUp ends any drag or pan regardless of where the pointer is.
func (c *Controller) PointerUp() {
	c.dragging = ""
	c.panning = false
}

// OpenContextMenu opens the add-node menu at a screen point.
func (c *Controller) OpenContextMenu(screen domain.Point) ContextMenu {
	c.pending = ""
	m := ContextMenu{Screen: screen, Logical: c.view.ScreenToLogical(screen)}
	c.menu = &m
	return m
}

func (c *Controller) ContextMenu() (ContextMenu, bool) {
	if c.menu == nil {
		return ContextMenu{}, false
	}
	return *c.menu, true
}

func (c *Controller) CloseContextMenu() {
	c.menu = nil
}

// AddNodeFromMenu places a node of type t at the menu's logical point and closes the menu.
func (c *Controller) AddNodeFromMenu(t domain.NodeType) (domain.Node, error) {
	m, ok := c.ContextMenu()
	if !ok {
		return c.AddNode(t)
	}
	n, err := c.graph.AddNode(t, m.Logical)
	if err != nil {
		return domain.Node{}, err
	}
	c.menu = nil
	return n, nil
}

// DefaultPosition is where toolbar additions go: the logical centre of the visible viewport,
// shifted so the node is centred there, staggered across consecutive additions.
func (c *Controller) DefaultPosition() domain.Point {
	centre := c.view.ScreenToLogical(domain.Point{X: c.size.Width / 2, Y: c.size.Height / 2})
	offset := float64(c.added%5) * 24
	return domain.Point{
		X: centre.X - c.cfg.NodeSize.Width/2 + offset,
		Y: centre.Y - c.cfg.NodeSize.Height/2 + offset,
	}
}

// AddNode adds a node of type t at the default position.
func (c *Controller) AddNode(t domain.NodeType) (domain.Node, error) {
	n, err := c.graph.AddNode(t, c.DefaultPosition())
	if err != nil {
		return domain.Node{}, err
	}
	c.added++
	return n, nil
}

// MarkExecuted highlights a node and, when non-empty, the connection that led to it.
func (c *Controller) MarkExecuted(nodeID, connectionID string) {
	if nodeID != "" {
		c.executedNodes[nodeID] = true
	}
	if connectionID != "" {
		c.executedConns[connectionID] = true
	}
}

func (c *Controller) ClearExecuted() {
	clear(c.executedNodes)
	clear(c.executedConns)
}

func (c *Controller) NodeExecuted(id string) bool {
	return c.executedNodes[id]
}

func (c *Controller) ConnectionExecuted(id string) bool {
	return c.executedConns[id]
}
