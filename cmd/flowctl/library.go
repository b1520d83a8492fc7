package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/fs"
	"sphere_canvas/internal/interchange"
	"sphere_canvas/internal/library"
)

var (
	importID   string
	runsGraph  string
	runsLimit  int
	serveAddr  string
	listAsJSON bool
)

var exportCmd = &cobra.Command{
	Use:   "export <library-id> [out]",
	Short: "Write a library graph as JSON (to the export directory unless out is given, - for stdout)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		lib, err := openLibrary(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = lib.Close()
		}()

		g, err := lib.GetGraph(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get graph %s: %w", args[0], err)
		}
		body, err := interchange.Export(g.Document)
		if err != nil {
			return err
		}

		out := ""
		if len(args) == 2 {
			out = args[1]
		}
		switch out {
		case "-":
			_, err = cmd.OutOrStdout().Write(body)
			return err
		case "":
			gw, err := fs.NewGateway(cfg.Library.ExportDir, newLogger())
			if err != nil {
				return err
			}
			path, _, err := gw.WriteFile(interchange.FileName(g.Document.Name), body)
			if err != nil {
				return fmt.Errorf("export graph: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		default:
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			if err := os.WriteFile(out, body, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		}
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Store a JSON or HCL workflow file in the library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		doc, err := readGraph(cmd, args[0])
		if err != nil {
			return err
		}
		lib, err := openLibrary(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = lib.Close()
		}()

		saved, err := lib.SaveGraph(ctx, domain.SavedGraph{ID: importID, Document: doc})
		if err != nil {
			return fmt.Errorf("save graph: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", saved.ID, saved.Document.Name)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the graphs in the library",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		lib, err := openLibrary(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = lib.Close()
		}()

		graphs, err := lib.ListGraphs(ctx)
		if err != nil {
			return fmt.Errorf("list graphs: %w", err)
		}
		if listAsJSON {
			return printJSON(cmd.OutOrStdout(), graphs)
		}
		if len(graphs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No graphs")
			return nil
		}
		for _, g := range graphs {
			fmt.Fprintf(cmd.OutOrStdout(), "%-36s %-24s nodes=%-3d updated=%s\n", g.ID, g.Name, g.NodeCount, g.UpdatedAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		lib, err := openLibrary(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = lib.Close()
		}()

		runs, err := lib.ListRuns(ctx, runsGraph, runsLimit)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}
		if listAsJSON {
			return printJSON(cmd.OutOrStdout(), runs)
		}
		for _, r := range runs {
			line := fmt.Sprintf("%s %s %-20s success=%-5t status=%-10s %.2fs path=%s",
				shortID(r.ID),
				r.CreatedAt.Local().Format(time.DateTime),
				r.WorkflowID,
				r.Success,
				r.Status,
				r.DurationSeconds,
				strings.Join(r.ExecutionPath, ">"),
			)
			if r.Error != "" {
				line += " error=" + r.Error
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the graph library over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		lib, err := openLibrary(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = lib.Close()
		}()

		addr := firstNonEmpty(serveAddr, cfg.Library.Addr)
		srv := library.NewServer(lib, log.New(os.Stderr, "", log.LstdFlags))
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown()
		}()
		if err := srv.Listen(addr); err != nil && ctx.Err() == nil {
			return fmt.Errorf("library server: %w", err)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importID, "id", "", "update this library graph instead of creating one")
	runsCmd.Flags().StringVar(&runsGraph, "graph", "", "only runs of this library graph")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum runs to list (0 for all)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address override")
	for _, c := range []*cobra.Command{listCmd, runsCmd} {
		c.Flags().BoolVar(&listAsJSON, "json", false, "print JSON")
	}

	rootCmd.AddCommand(exportCmd, importCmd, listCmd, runsCmd, serveCmd)
}
