package library

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"sphere_canvas/internal/compiler"
	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/interchange"
	"sphere_canvas/internal/store"
)

// Server exposes the local graph library over HTTP.
type Server struct {
	store  store.Store
	logger *log.Logger
	app    *fiber.App
}

func NewServer(s store.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	srv := &Server{
		store:  s,
		logger: logger,
		app:    fiber.New(),
	}
	srv.routes()
	return srv
}

// App returns the underlying fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Printf("library listening addr=%s", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) routes() {
	s.app.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "time": time.Now().UTC()})
	})

	// ── Graphs ────────────────────────────────────────────────────────
	s.app.Get("/graphs", func(c fiber.Ctx) error {
		graphs, err := s.store.ListGraphs(c.Context())
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(graphs)
	})

	s.app.Post("/graphs", func(c fiber.Ctx) error {
		doc, report, err := interchange.Import(c.Body())
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		saved, err := s.store.SaveGraph(c.Context(), domain.SavedGraph{Document: doc})
		if err != nil {
			return s.fail(c, err)
		}
		s.logger.Printf("library graph saved id=%s name=%q nodes=%d repairs=%d", saved.ID, doc.Name, len(doc.Nodes), len(report.Repairs))
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"graph": saved, "repairs": report.Repairs})
	})

	s.app.Get("/graphs/:id", func(c fiber.Ctx) error {
		g, err := s.store.GetGraph(c.Context(), c.Params("id"))
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(g)
	})

	s.app.Put("/graphs/:id", func(c fiber.Ctx) error {
		existing, err := s.store.GetGraph(c.Context(), c.Params("id"))
		if err != nil {
			return s.fail(c, err)
		}
		doc, report, err := interchange.Import(c.Body())
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		existing.Document = doc
		saved, err := s.store.SaveGraph(c.Context(), existing)
		if err != nil {
			return s.fail(c, err)
		}
		s.logger.Printf("library graph updated id=%s nodes=%d", saved.ID, len(doc.Nodes))
		return c.JSON(fiber.Map{"graph": saved, "repairs": report.Repairs})
	})

	s.app.Delete("/graphs/:id", func(c fiber.Ctx) error {
		if err := s.store.DeleteGraph(c.Context(), c.Params("id")); err != nil {
			return s.fail(c, err)
		}
		s.logger.Printf("library graph deleted id=%s", c.Params("id"))
		return c.SendStatus(fiber.StatusNoContent)
	})

	s.app.Get("/graphs/:id/export", func(c fiber.Ctx) error {
		g, err := s.store.GetGraph(c.Context(), c.Params("id"))
		if err != nil {
			return s.fail(c, err)
		}
		body, err := interchange.Export(g.Document)
		if err != nil {
			return s.fail(c, err)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", interchange.FileName(g.Document.Name)))
		return c.Send(body)
	})

	s.app.Post("/graphs/:id/compile", func(c fiber.Ctx) error {
		g, err := s.store.GetGraph(c.Context(), c.Params("id"))
		if err != nil {
			return s.fail(c, err)
		}
		comp, err := compiler.Compile(compiler.FromDocument(g.Document))
		if err != nil {
			return s.fail(c, err)
		}
		notes := make([]string, 0, len(comp.Notes))
		for _, n := range comp.Notes {
			notes = append(notes, n.String())
		}
		return c.JSON(fiber.Map{"workflow": comp.Workflow, "walk": comp.Walk, "notes": notes})
	})

	// ── Runs ──────────────────────────────────────────────────────────
	s.app.Get("/runs", func(c fiber.Ctx) error {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid limit"})
			}
			limit = n
		}
		runs, err := s.store.ListRuns(c.Context(), c.Query("graph_id"), limit)
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(runs)
	})
}

func (s *Server) fail(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "graph not found"})
	case compiler.IsValidation(err):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	default:
		s.logger.Printf("library request failed method=%s path=%s err=%v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
