package fs

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

var ErrPathEscapesRoot = errors.New("path escapes export root")

type Operation string

const (
	OperationCreate Operation = "create"
	OperationWrite  Operation = "write"
	OperationRead   Operation = "read"
)

// Gateway reads and writes workflow files below a single root directory. Paths are relative to
// the root; absolute paths and paths that climb out of it are rejected.
type Gateway struct {
	root   string
	logger *log.Logger
}

func NewGateway(root string, logger *log.Logger) (*Gateway, error) {
	if logger == nil {
		logger = log.Default()
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create root path: %w", err)
	}
	return &Gateway{
		root:   absRoot,
		logger: logger,
	}, nil
}

func (g *Gateway) Root() string {
	return g.root
}

// WriteFile writes content to relPath and returns the absolute path written.
func (g *Gateway) WriteFile(relPath string, content []byte) (string, Operation, error) {
	absPath, normalized, err := g.resolve(relPath)
	if err != nil {
		return "", "", err
	}
	op := OperationCreate
	if _, statErr := os.Stat(absPath); statErr == nil {
		op = OperationWrite
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", "", fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(absPath, content, 0o644); err != nil {
		return "", "", fmt.Errorf("write file: %w", err)
	}
	g.logger.Printf("file %s path=%s bytes=%d", op, normalized, len(content))
	return absPath, op, nil
}

// ReadFile reads relPath below the root.
func (g *Gateway) ReadFile(relPath string) ([]byte, error) {
	absPath, normalized, err := g.resolve(relPath)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	g.logger.Printf("file %s path=%s bytes=%d", OperationRead, normalized, len(content))
	return content, nil
}

func (g *Gateway) resolve(relPath string) (absolute string, normalized string, err error) {
	normalized = strings.ReplaceAll(strings.TrimSpace(relPath), "\\", "/")
	normalized = strings.TrimPrefix(normalized, "./")
	if strings.HasPrefix(normalized, "/") {
		return "", "", fmt.Errorf("%w: %q is absolute", ErrPathEscapesRoot, relPath)
	}
	if normalized == "" || normalized == "." {
		return "", "", fmt.Errorf("invalid relative path %q", relPath)
	}

	absClean := filepath.Clean(filepath.Join(g.root, filepath.FromSlash(normalized)))
	rel, err := filepath.Rel(g.root, absClean)
	if err != nil {
		return "", "", fmt.Errorf("resolve relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == "." {
		return "", "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, relPath)
	}
	return absClean, filepath.ToSlash(rel), nil
}
