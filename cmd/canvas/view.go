package main

import (
	"fmt"
	"math"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"sphere_canvas/internal/canvas"
	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/editor"
	"sphere_canvas/internal/graph"
)

var nodeColors = map[domain.NodeType]tcell.Color{
	domain.NodeTypeStart:     tcell.ColorDarkGreen,
	domain.NodeTypeAgent:     tcell.ColorNavy,
	domain.NodeTypeCondition: tcell.ColorOlive,
	domain.NodeTypeBranch:    tcell.ColorPurple,
	domain.NodeTypeEnd:       tcell.ColorMaroon,
}

// canvasView draws the session's graph and turns mouse input into canvas gestures. The controller
// works in abstract screen units; one terminal cell is cell.Width x cell.Height of them.
type canvasView struct {
	*tview.Box
	session *editor.Session
	cell    domain.Size

	onMenu    func(x, y int)
	onEdit    func(id string)
	onDismiss func()
}

func newCanvasView(s *editor.Session, cell domain.Size) *canvasView {
	v := &canvasView{
		Box:     tview.NewBox(),
		session: s,
		cell:    cell,
	}
	v.SetBorder(true).SetTitle("Canvas")
	return v
}

// toUnits maps a terminal cell to controller screen units, relative to the inner rect.
func (v *canvasView) toUnits(cx, cy int) domain.Point {
	x, y, _, _ := v.GetInnerRect()
	return domain.Point{
		X: (float64(cx-x) + 0.5) * v.cell.Width,
		Y: (float64(cy-y) + 0.5) * v.cell.Height,
	}
}

func (v *canvasView) toCell(p domain.Point) (int, int) {
	x, y, _, _ := v.GetInnerRect()
	return x + int(math.Floor(p.X/v.cell.Width)), y + int(math.Floor(p.Y/v.cell.Height))
}

func (v *canvasView) centre() domain.Point {
	_, _, w, h := v.GetInnerRect()
	return domain.Point{X: float64(w) * v.cell.Width / 2, Y: float64(h) * v.cell.Height / 2}
}

func (v *canvasView) Draw(screen tcell.Screen) {
	v.Box.DrawForSubclass(screen, v)
	x, y, w, h := v.GetInnerRect()
	if w <= 0 || h <= 0 {
		return
	}
	size := domain.Size{Width: float64(w) * v.cell.Width, Height: float64(h) * v.cell.Height}
	v.session.Update(func(c *canvas.Controller) { c.SetViewportSize(size) })

	pen := painter{screen: screen, minX: x, minY: y, maxX: x + w, maxY: y + h}
	v.session.View(func(g *graph.Graph, c *canvas.Controller) {
		nodes := g.Nodes()
		if len(nodes) == 0 {
			msg := "Empty canvas: press 1-5 or right-click to add a node, e for examples"
			pen.text(x+max(0, (w-len(msg))/2), y+h/2, msg, tcell.StyleDefault.Foreground(tcell.ColorGray))
			return
		}
		cfg := c.Config()
		byID := make(map[string]domain.Node, len(nodes))
		for _, n := range nodes {
			byID[n.ID] = n
		}
		for _, conn := range g.Connections() {
			from, okFrom := byID[conn.From]
			to, okTo := byID[conn.To]
			if !okFrom || !okTo {
				continue
			}
			style := tcell.StyleDefault.Foreground(tcell.ColorGray)
			if c.ConnectionExecuted(conn.ID) {
				style = tcell.StyleDefault.Foreground(tcell.ColorLime).Bold(true)
			}
			fr, tr := cfg.NodeRect(from), cfg.NodeRect(to)
			ax, ay := v.toCell(c.LogicalToScreen(domain.Point{X: fr.MaxX, Y: (fr.MinY + fr.MaxY) / 2}))
			bx, by := v.toCell(c.LogicalToScreen(domain.Point{X: tr.MinX, Y: (tr.MinY + tr.MaxY) / 2}))
			pen.line(ax, ay, bx-1, by, style)
			pen.set(bx-1, by, '▶', style)
			if conn.Label != "" {
				pen.text((ax+bx)/2-len(conn.Label)/2, (ay+by)/2, conn.Label, style)
			}
		}
		for _, n := range nodes {
			v.drawNode(pen, c, n)
		}
	})
}

func (v *canvasView) drawNode(pen painter, c *canvas.Controller, n domain.Node) {
	r := c.Config().NodeRect(n)
	x0, y0 := v.toCell(c.LogicalToScreen(domain.Point{X: r.MinX, Y: r.MinY}))
	x1, y1 := v.toCell(c.LogicalToScreen(domain.Point{X: r.MaxX, Y: r.MaxY}))
	x1 = max(x1, x0+8)
	y1 = max(y1, y0+2)

	fill := tcell.StyleDefault.Background(nodeColors[n.Type()]).Foreground(tcell.ColorWhite)
	border := fill
	switch {
	case c.Pending() == n.ID:
		border = border.Foreground(tcell.ColorAqua).Bold(true)
	case c.Selected() == n.ID:
		border = border.Foreground(tcell.ColorYellow).Bold(true)
	case c.NodeExecuted(n.ID):
		border = border.Foreground(tcell.ColorLime).Bold(true)
	}
	for cy := y0; cy <= y1; cy++ {
		for cx := x0; cx <= x1; cx++ {
			ch := ' '
			switch {
			case cy == y0 && cx == x0:
				ch = '┌'
			case cy == y0 && cx == x1:
				ch = '┐'
			case cy == y1 && cx == x0:
				ch = '└'
			case cy == y1 && cx == x1:
				ch = '┘'
			case cy == y0 || cy == y1:
				ch = '─'
			case cx == x0 || cx == x1:
				ch = '│'
			}
			st := fill
			if ch != ' ' {
				st = border
			}
			pen.set(cx, cy, ch, st)
		}
	}
	inner := x1 - x0 - 1
	pen.text(x0+1, y0, trimLine(" "+string(n.Type())+" ", inner), border)
	if y1-y0 >= 2 {
		pen.text(x0+1, y0+1, trimLine(nodeTitle(n), inner), fill.Bold(true))
	}
	if y1-y0 >= 3 {
		pen.text(x0+1, y0+2, trimLine(nodeDetail(n), inner), fill)
	}
}

func nodeTitle(n domain.Node) string {
	switch d := n.Data.(type) {
	case domain.StartData:
		return d.Label
	case domain.EndData:
		return d.Label
	case domain.BranchData:
		return d.Label
	case domain.AgentData:
		return "@" + d.Agent
	case domain.ConditionData:
		return fmt.Sprintf("%s %s %q", d.Condition.Field, d.Condition.Operator, d.Condition.Value)
	}
	return n.ID
}

func nodeDetail(n domain.Node) string {
	if d, ok := n.Data.(domain.AgentData); ok {
		if d.Request == "" {
			return "(no request)"
		}
		return d.Request
	}
	return n.ID
}

func (v *canvasView) MouseHandler() func(action tview.MouseAction, event *tcell.EventMouse, setFocus func(p tview.Primitive)) (bool, tview.Primitive) {
	return v.WrapMouseHandler(func(action tview.MouseAction, event *tcell.EventMouse, setFocus func(p tview.Primitive)) (bool, tview.Primitive) {
		mx, my := event.Position()
		p := v.toUnits(mx, my)
		switch action {
		case tview.MouseLeftDown:
			if !v.InRect(mx, my) {
				return false, nil
			}
			if v.onDismiss != nil {
				v.onDismiss()
			}
			setFocus(v)
			v.session.PointerDown(p)
			return true, v
		case tview.MouseMove:
			if event.Buttons()&tcell.Button1 == 0 {
				return false, nil
			}
			v.session.PointerMove(p)
			return true, v
		case tview.MouseLeftUp:
			v.session.PointerUp()
			return true, nil
		case tview.MouseLeftDoubleClick:
			if !v.InRect(mx, my) || v.onEdit == nil {
				return false, nil
			}
			var id string
			var hit bool
			v.session.View(func(_ *graph.Graph, c *canvas.Controller) { id, hit = c.HitTest(p) })
			if hit {
				v.onEdit(id)
			}
			return true, nil
		case tview.MouseRightDown:
			if !v.InRect(mx, my) {
				return false, nil
			}
			setFocus(v)
			v.session.OpenContextMenu(p)
			if v.onMenu != nil {
				v.onMenu(mx, my)
			}
			return true, nil
		case tview.MouseScrollUp:
			if !v.InRect(mx, my) {
				return false, nil
			}
			v.session.Update(func(c *canvas.Controller) { c.ZoomIn(p) })
			return true, nil
		case tview.MouseScrollDown:
			if !v.InRect(mx, my) {
				return false, nil
			}
			v.session.Update(func(c *canvas.Controller) { c.ZoomOut(p) })
			return true, nil
		}
		return false, nil
	})
}

// painter writes cells clipped to the canvas inner rect.
type painter struct {
	screen     tcell.Screen
	minX, minY int
	maxX, maxY int
}

func (p painter) set(x, y int, ch rune, style tcell.Style) {
	if x < p.minX || x >= p.maxX || y < p.minY || y >= p.maxY {
		return
	}
	p.screen.SetContent(x, y, ch, nil, style)
}

func (p painter) text(x, y int, s string, style tcell.Style) {
	for _, ch := range s {
		p.set(x, y, ch, style)
		x++
	}
}

// line draws a Bresenham line between two cells.
func (p painter) line(x0, y0, x1, y1 int, style tcell.Style) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	ch := '·'
	switch {
	case dy == 0:
		ch = '─'
	case dx == 0:
		ch = '│'
	}
	e := dx + dy
	for {
		p.set(x0, y0, ch, style)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
