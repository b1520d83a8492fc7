package interchange

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sphere_canvas/internal/domain"
)

// Decode reads data as HCL when filename ends in .hcl and as JSON otherwise.
func Decode(data []byte, filename string) (domain.Document, Report, error) {
	if strings.EqualFold(filepath.Ext(filename), ".hcl") {
		doc, err := DecodeHCL(data, filename)
		return doc, Report{}, err
	}
	return Import(data)
}

// LoadFile reads and decodes a workflow file from disk.
func LoadFile(path string) (domain.Document, Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, Report{}, fmt.Errorf("read workflow file: %w", err)
	}
	return Decode(data, path)
}
