package main

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"sphere_canvas/internal/canvas"
	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/editor"
	"sphere_canvas/internal/graph"
	"sphere_canvas/internal/notify"
)

const (
	pageMenu   = "menu"
	pageDialog = "dialog"
)

// showMenu opens the add-node menu at the pointer cell.
func (u *ui) showMenu(x, y int) {
	u.closeMenu()
	list := tview.NewList().ShowSecondaryText(false)
	for i, t := range domain.NodeTypes() {
		list.AddItem(string(t), "", rune('1'+i), func() {
			_, _ = u.session.AddNodeFromMenu(t)
			u.closeMenu()
		})
	}
	list.SetDoneFunc(func() {
		u.session.Update(func(c *canvas.Controller) { c.CloseContextMenu() })
		u.closeMenu()
	})
	list.SetBorder(true).SetTitle("Add node")
	list.SetRect(x, y, 18, len(domain.NodeTypes())+2)
	u.pages.AddPage(pageMenu, list, false, true)
	u.app.SetFocus(list)
}

func (u *ui) closeMenu() {
	if !u.pages.HasPage(pageMenu) {
		return
	}
	u.pages.RemovePage(pageMenu)
	u.app.SetFocus(u.view)
}

func (u *ui) showDialog(p tview.Primitive, width, height int) {
	u.pages.AddPage(pageDialog, centered(p, width, height), true, true)
	u.app.SetFocus(p)
}

func (u *ui) closeDialog() {
	u.pages.RemovePage(pageDialog)
	u.app.SetFocus(u.view)
}

func centered(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}

// editNode opens the form for the fields of the node's type.
func (u *ui) editNode(id string) {
	var node domain.Node
	var ok bool
	u.session.View(func(g *graph.Graph, _ *canvas.Controller) { node, ok = g.Node(id) })
	if !ok {
		return
	}

	form := tview.NewForm()
	var apply func() graph.Patch
	switch d := node.Data.(type) {
	case domain.StartData:
		apply = labelField(form, d.Label)
	case domain.EndData:
		apply = labelField(form, d.Label)
	case domain.BranchData:
		apply = labelField(form, d.Label)
	case domain.AgentData:
		agents := u.session.Agents()
		options := make([]string, 0, len(agents))
		current := 0
		for i, a := range agents {
			options = append(options, fmt.Sprintf("%s (%s)", a.Name, a.ID))
			if a.ID == d.Agent {
				current = i
			}
		}
		form.AddDropDown("Agent", options, current, nil)
		form.AddInputField("Request", d.Request, 48, nil, nil)
		apply = func() graph.Patch {
			var p graph.Patch
			if i, _ := form.GetFormItemByLabel("Agent").(*tview.DropDown).GetCurrentOption(); i >= 0 && i < len(agents) {
				p.Agent = &agents[i].ID
			}
			req := form.GetFormItemByLabel("Request").(*tview.InputField).GetText()
			p.Request = &req
			return p
		}
	case domain.ConditionData:
		ops := domain.ConditionOperators()
		names := make([]string, len(ops))
		current := 0
		for i, op := range ops {
			names[i] = string(op)
			if op == d.Condition.Operator {
				current = i
			}
		}
		form.AddInputField("Field", d.Condition.Field, 24, nil, nil)
		form.AddDropDown("Operator", names, current, nil)
		form.AddInputField("Value", d.Condition.Value, 24, nil, nil)
		apply = func() graph.Patch {
			field := form.GetFormItemByLabel("Field").(*tview.InputField).GetText()
			value := form.GetFormItemByLabel("Value").(*tview.InputField).GetText()
			p := graph.Patch{Field: &field, Value: &value}
			if i, _ := form.GetFormItemByLabel("Operator").(*tview.DropDown).GetCurrentOption(); i >= 0 {
				op := ops[i]
				p.Operator = &op
			}
			return p
		}
	default:
		return
	}

	form.AddButton("Save", func() {
		u.session.UpdateNode(id, apply())
		u.closeDialog()
	})
	form.AddButton("Delete", func() {
		u.session.DeleteNode(id)
		u.closeDialog()
	})
	form.AddButton("Cancel", u.closeDialog)
	form.SetCancelFunc(u.closeDialog)
	form.SetBorder(true).SetTitle(fmt.Sprintf("Edit %s %s", node.Type(), id))
	u.showDialog(form, 70, form.GetFormItemCount()*2+5)
}

func labelField(form *tview.Form, label string) func() graph.Patch {
	form.AddInputField("Label", label, 32, nil, nil)
	return func() graph.Patch {
		v := form.GetFormItemByLabel("Label").(*tview.InputField).GetText()
		return graph.Patch{Label: &v}
	}
}

func (u *ui) prompt(title, initial string, done func(string)) {
	field := tview.NewInputField().SetLabel(title + ": ").SetText(initial)
	field.SetDoneFunc(func(key tcell.Key) {
		text := strings.TrimSpace(field.GetText())
		u.closeDialog()
		if key == tcell.KeyEnter && text != "" {
			done(text)
		}
	})
	field.SetBorder(true)
	u.showDialog(field, 70, 3)
}

func (u *ui) pick(title string, items, details []string, chosen func(i int)) {
	list := tview.NewList()
	list.ShowSecondaryText(len(details) > 0)
	for i, item := range items {
		secondary := ""
		if i < len(details) {
			secondary = details[i]
		}
		list.AddItem(item, secondary, 0, func() {
			u.closeDialog()
			chosen(i)
		})
	}
	list.SetDoneFunc(u.closeDialog)
	list.SetBorder(true).SetTitle(title)
	height := len(items) + 2
	if len(details) > 0 {
		height = 2*len(items) + 2
	}
	u.showDialog(list, 60, min(height, 20))
}

func (u *ui) showExamples() {
	names := graph.ExampleNames()
	u.pick("Examples", names, nil, func(i int) {
		_ = u.session.LoadExample(names[i])
	})
}

// showLibrary lists saved graphs; it runs off the UI goroutine.
func (u *ui) showLibrary() {
	graphs, err := u.session.ListLibrary(u.ctx)
	if err != nil {
		u.center.Error(fmt.Sprintf("Library: %v", err))
		return
	}
	if len(graphs) == 0 {
		u.center.Info("The library is empty")
		return
	}
	items := make([]string, len(graphs))
	details := make([]string, len(graphs))
	for i, g := range graphs {
		items[i] = g.Name
		details[i] = fmt.Sprintf("%s  nodes=%d  updated=%s", shortID(g.ID), g.NodeCount, g.UpdatedAt.Format("2006-01-02 15:04"))
	}
	u.app.QueueUpdateDraw(func() {
		u.pick("Library", items, details, func(i int) {
			go func() { _ = u.session.OpenFromLibrary(u.ctx, graphs[i].ID) }()
		})
	})
}

func renderStatus(s *editor.Session, apiURL string) string {
	var b strings.Builder
	h := s.Health()
	switch {
	case !h.Checked:
		b.WriteString("[gray]server: checking[-]")
	case h.OK:
		b.WriteString("[green]server: online[-]")
	default:
		b.WriteString("[red]server: offline[-]")
	}
	b.WriteString("  " + apiURL + "\n")

	doc := s.Document()
	var zoom float64
	var pending string
	s.View(func(_ *graph.Graph, c *canvas.Controller) {
		zoom = c.Viewport().Zoom
		pending = c.Pending()
	})
	b.WriteString(fmt.Sprintf("%s  nodes=%d connections=%d zoom=%.0f%%", doc.Name, len(doc.Nodes), len(doc.Connections), zoom*100))
	if id := s.LibraryID(); id != "" {
		b.WriteString("  saved=" + shortID(id))
	}
	b.WriteString("\n")

	switch revealed, total, state := s.ReplayProgress(); {
	case s.Running():
		b.WriteString("[yellow]executing...[-]")
	case pending != "":
		b.WriteString("[aqua]connecting from " + pending + ": click the target[-]")
	case total > 0:
		b.WriteString(fmt.Sprintf("replay %d/%d %s", revealed, total, state))
	}
	if res, ok := s.LastResult(); ok {
		b.WriteString(fmt.Sprintf("  last run: %s %.2fs", res.Status, res.DurationSeconds))
	}
	return b.String()
}

var levelColors = map[notify.Level]string{
	notify.LevelInfo:    "white",
	notify.LevelSuccess: "green",
	notify.LevelWarning: "yellow",
	notify.LevelError:   "red",
}

func renderNotifications(items []notify.Notification) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for i := len(items) - 1; i >= 0; i-- {
		n := items[i]
		b.WriteString(fmt.Sprintf("[%s]%s[-]\n", levelColors[n.Level], tview.Escape(n.Message)))
	}
	return b.String()
}

func trimLine(s string, limit int) string {
	r := []rune(s)
	if limit <= 0 {
		return ""
	}
	if len(r) <= limit {
		return s
	}
	if limit <= 3 {
		return string(r[:limit])
	}
	return string(r[:limit-3]) + "..."
}

func shortID(v string) string {
	if len(v) <= 8 {
		return v
	}
	return v[:8]
}
