package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"sphere_canvas/internal/canvas"
	"sphere_canvas/internal/config"
	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/editor"
	"sphere_canvas/internal/events"
	"sphere_canvas/internal/execution"
	"sphere_canvas/internal/fs"
	"sphere_canvas/internal/graph"
	"sphere_canvas/internal/messaging/inproc"
	"sphere_canvas/internal/notify"
	"sphere_canvas/internal/policy"
	"sphere_canvas/internal/store/backend"
)

const helpLine = "1-5 add | c connect | Enter edit | Del delete | x run | f fit | 0 reset | +/- zoom | e examples | r rename | Ctrl+S save | Ctrl+L library | Ctrl+E export | Ctrl+O import | F10 quit"

func main() {
	configPath := flag.String("config", "", "path to canvas.toml (default: ~/.sphere/canvas.toml)")
	apiFlag := flag.String("api", "", "execution server base URL override")
	dbFlag := flag.String("db", "", "graph library DSN override (sqlite path or postgres:// URL)")
	logFlag := flag.String("log", "", "log file override")
	eventsFlag := flag.Bool("events", false, "follow the execution server's socket.io events")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg.API.BaseURL = firstNonEmpty(*apiFlag, cfg.API.BaseURL)
	cfg.Library.DSN = firstNonEmpty(*dbFlag, cfg.Library.DSN)
	cfg.Canvas.LogPath = firstNonEmpty(*logFlag, cfg.Canvas.LogPath)
	if *eventsFlag {
		cfg.Events.Enabled = true
		if *apiFlag != "" {
			cfg.Events.URL = *apiFlag
		}
	}

	logger, closeLog, err := openLog(cfg.Canvas.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := execution.NewClient(execution.ClientConfig{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.APITimeout(),
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create execution client: %v\n", err)
		os.Exit(1)
	}

	app := tview.NewApplication()
	redraw := func() { go app.QueueUpdateDraw(func() {}) }
	center := notify.NewCenter(cfg.NotifyLifetime(), notify.OnChange(redraw))

	deps := editor.Deps{API: client, Notifier: center, Logger: logger}
	lib, libErr := backend.Open(ctx, cfg.Library.DSN)
	if libErr != nil {
		logger.Printf("library unavailable dsn=%s err=%v", cfg.Library.DSN, libErr)
	} else {
		defer func() {
			_ = lib.Close()
		}()
		deps.Library = lib
	}
	exports, err := fs.NewGateway(cfg.Library.ExportDir, logger)
	if err != nil {
		logger.Printf("export directory unavailable dir=%s err=%v", cfg.Library.ExportDir, err)
	} else {
		deps.Exports = exports
	}

	var listener *events.Listener
	if cfg.Events.Enabled {
		bus := inproc.New(64)
		listener, err = events.NewListener(events.Config{URL: cfg.Events.URL, Path: cfg.Events.Path, Logger: logger}, bus)
		if err != nil {
			logger.Printf("events disabled err=%v", err)
		} else {
			deps.Events = bus
		}
	}

	session, err := editor.New(editor.Config{
		Canvas:         canvasConfig(cfg.Canvas),
		StepDelay:      cfg.StepDelay(),
		HealthInterval: cfg.HealthInterval(),
		Policy: policy.Config{
			WarnSelfLoops: cfg.Policy.SelfLoops(),
			WarnCycles:    cfg.Policy.Cycles(),
		},
	}, deps)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create editor: %v\n", err)
		os.Exit(1)
	}
	session.OnChange(redraw)
	if libErr != nil {
		center.Warn(fmt.Sprintf("Library unavailable: %v", libErr))
	}

	if path := flag.Arg(0); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			center.Error(fmt.Sprintf("Open %s: %v", path, err))
		} else {
			_, _ = session.Import(data, filepath.Base(path))
		}
	}

	ui := newUI(ctx, app, session, center, domain.Size{Width: cfg.Canvas.CellWidth, Height: cfg.Canvas.CellHeight})
	ui.apiURL = client.BaseURL()

	session.Start(ctx)
	if listener != nil {
		go func() {
			if err := listener.Run(ctx); err != nil {
				logger.Printf("events listener stopped err=%v", err)
			}
		}()
	}
	go func() {
		if err := session.RefreshAgents(ctx); err != nil {
			logger.Printf("agent refresh failed err=%v", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				app.Stop()
				return
			case <-ticker.C:
				center.Prune()
				app.QueueUpdateDraw(ui.refreshStatus)
			}
		}
	}()

	logger.Printf("canvas started api=%s library=%s events=%t", client.BaseURL(), cfg.Library.DSN, deps.Events != nil)
	if err := app.SetRoot(ui.pages, true).EnableMouse(true).SetFocus(ui.view).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "canvas failed: %v\n", err)
		os.Exit(1)
	}
	cancel()
	session.Wait()
	logger.Printf("canvas stopped")
}

type ui struct {
	ctx     context.Context
	app     *tview.Application
	session *editor.Session
	center  *notify.Center
	apiURL  string

	pages  *tview.Pages
	view   *canvasView
	status *tview.TextView
	notes  *tview.TextView
}

func newUI(ctx context.Context, app *tview.Application, s *editor.Session, center *notify.Center, cell domain.Size) *ui {
	u := &ui{ctx: ctx, app: app, session: s, center: center}
	u.view = newCanvasView(s, cell)
	u.view.onMenu = u.showMenu
	u.view.onEdit = u.editNode
	u.view.onDismiss = u.closeMenu

	u.status = tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	u.status.SetBorder(true).SetTitle("Status")
	u.notes = tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	u.notes.SetBorder(true).SetTitle("Notifications")
	help := tview.NewTextView().SetDynamicColors(true).SetWrap(false).SetText("[gray]" + helpLine)

	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(u.view, 0, 1, true).
		AddItem(tview.NewFlex().
			AddItem(u.status, 0, 1, false).
			AddItem(u.notes, 0, 1, false), 6, 0, false).
		AddItem(help, 1, 0, false)

	u.pages = tview.NewPages().AddPage("main", root, true, true)
	app.SetInputCapture(u.handleKey)
	u.refreshStatus()
	return u
}

func (u *ui) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyF10 {
		u.app.Stop()
		return nil
	}
	if u.app.GetFocus() != u.view {
		return event
	}

	s := u.session
	switch event.Key() {
	case tcell.KeyEscape:
		s.Escape()
		return nil
	case tcell.KeyEnter:
		if id := u.selected(); id != "" {
			u.editNode(id)
		}
		return nil
	case tcell.KeyDelete, tcell.KeyBackspace, tcell.KeyBackspace2:
		s.DeleteSelected()
		return nil
	case tcell.KeyCtrlS:
		go func() { _, _ = s.SaveToLibrary(u.ctx) }()
		return nil
	case tcell.KeyCtrlE:
		_, _ = s.Export()
		return nil
	case tcell.KeyCtrlO:
		u.prompt("Import file (relative to export dir)", "", func(name string) {
			_, _ = s.ImportFile(name)
		})
		return nil
	case tcell.KeyCtrlL:
		go u.showLibrary()
		return nil
	case tcell.KeyUp, tcell.KeyDown, tcell.KeyLeft, tcell.KeyRight:
		u.pan(event.Key())
		return nil
	case tcell.KeyRune:
	default:
		return event
	}

	switch r := event.Rune(); r {
	case '1', '2', '3', '4', '5':
		types := domain.NodeTypes()
		_, _ = s.AddNode(types[int(r-'1')])
	case 'c':
		s.BeginConnect("")
	case 'f':
		s.Update(func(c *canvas.Controller) { c.FitToView() })
	case '0':
		s.Update(func(c *canvas.Controller) { c.ResetView() })
	case '+', '=':
		s.Update(func(c *canvas.Controller) { c.ZoomIn(u.view.centre()) })
	case '-':
		s.Update(func(c *canvas.Controller) { c.ZoomOut(u.view.centre()) })
	case 'x':
		go func() { _, _ = s.Execute(u.ctx) }()
	case 'e':
		u.showExamples()
	case 'r':
		u.prompt("Workflow name", s.Document().Name, s.Rename)
	case 'a':
		go func() { _ = s.RefreshAgents(u.ctx) }()
	default:
		return event
	}
	return nil
}

func (u *ui) selected() string {
	var id string
	u.session.View(func(_ *graph.Graph, c *canvas.Controller) { id = c.Selected() })
	return id
}

func (u *ui) pan(key tcell.Key) {
	step := u.view.cell
	var d domain.Point
	switch key {
	case tcell.KeyUp:
		d.Y = 2 * step.Height
	case tcell.KeyDown:
		d.Y = -2 * step.Height
	case tcell.KeyLeft:
		d.X = 4 * step.Width
	case tcell.KeyRight:
		d.X = -4 * step.Width
	}
	u.session.Update(func(c *canvas.Controller) { c.PanBy(d) })
}

func (u *ui) refreshStatus() {
	u.status.SetText(renderStatus(u.session, u.apiURL))
	u.notes.SetText(renderNotifications(u.center.Active()))
}

func openLog(path string) (*log.Logger, func(), error) {
	if strings.TrimSpace(path) == "" {
		return log.New(os.Stderr, "", log.LstdFlags), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return log.New(f, "", log.LstdFlags|log.Lmicroseconds), func() { _ = f.Close() }, nil
}

func canvasConfig(c config.CanvasConfig) canvas.Config {
	return canvas.Config{
		MinZoom:    c.MinZoom,
		MaxZoom:    c.MaxZoom,
		FitMaxZoom: c.FitMaxZoom,
		ZoomStep:   c.ZoomStep,
		NodeSize:   domain.Size{Width: c.NodeWidth, Height: c.NodeHeight},
		Padding:    c.Padding,
		MinCanvas:  domain.Size{Width: c.MinWidth, Height: c.MinHeight},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
