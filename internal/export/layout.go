package export

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Layout selects the CSV rendering.
type Layout string

const (
	// LayoutReport is the multi-section, semicolon-delimited report.
	LayoutReport Layout = "report"
	// LayoutTable is the one-row-per-tire, comma-delimited, BOM-prefixed table.
	LayoutTable Layout = "table"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	byteOrderMark   = "\uFEFF"
	fallbackName    = "mes"
	placeholderText = "\u2014"
)

var (
	// ErrNothingToExport indicates the table layout was requested for a month without tires.
	ErrNothingToExport = errors.New("export: nothing to export")
	// ErrUnknownLayout indicates an unsupported layout name.
	ErrUnknownLayout = errors.New("export: unknown layout")

	unsafeFilenameChars = regexp.MustCompile(`[^\w\- ]+`)
	whitespaceRun       = regexp.MustCompile(`\s+`)
)

// ParseLayout resolves a layout name; empty selects the report.
func ParseLayout(value string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(value))) {
	case "", LayoutReport:
		return LayoutReport, nil
	case LayoutTable:
		return LayoutTable, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLayout, value)
	}
}

// SanitizeFilename keeps word characters, dashes and spaces, then joins words with underscores.
func SanitizeFilename(value string) string {
	if strings.TrimSpace(value) == "" {
		return fallbackName
	}
	cleaned := unsafeFilenameChars.ReplaceAllString(value, "")
	cleaned = whitespaceRun.ReplaceAllString(cleaned, "_")
	if strings.Trim(cleaned, "_") == "" {
		return fallbackName
	}
	return cleaned
}

// Artifact is a rendered export ready to be downloaded or written to disk.
type Artifact struct {
	Filename    string
	ContentType string
	Body        []byte
	TireCount   int
}
