// Package loader provides a pluggable registry mapping file extension to a
// Loader that turns a downloaded file into a sequence of text units. Raw
// format parsing itself is out of scope (spec §1's "assume a pluggable
// loader returns a sequence of text units"); this package is the registry
// and its contract.
package loader

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// ErrUnsupportedFormat is returned by loaders registered for extensions
// whose raw parsing is out of scope (PDF, DOC/DOCX, XLS/XLSX, PPT/PPTX).
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Unit is one text unit produced by a Loader, fed into the chunker.
type Unit struct {
	Text string
}

// Loader turns a file at path into a sequence of text units.
type Loader interface {
	Load(ctx context.Context, path string) ([]Unit, error)
}

// LoaderFunc adapts a function to a Loader.
type LoaderFunc func(ctx context.Context, path string) ([]Unit, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, path string) ([]Unit, error) {
	return f(ctx, path)
}

// Registry maps a lowercased file extension (with leading dot) to a Loader.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry builds the default registry: real loaders for plain text,
// Markdown, HTML, CSV, and JSON, the plain-text loader for XML, and
// unsupported stubs for PDF, DOC/DOCX, XLS/XLSX, and PPT/PPTX.
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]Loader)}

	r.Register(".txt", LoaderFunc(loadText))
	r.Register(".md", LoaderFunc(loadText))
	r.Register(".html", LoaderFunc(loadHTML))
	r.Register(".htm", LoaderFunc(loadHTML))
	r.Register(".csv", LoaderFunc(loadCSV))
	r.Register(".json", LoaderFunc(loadJSON))
	r.Register(".xml", LoaderFunc(loadText))

	for _, ext := range []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx"} {
		r.Register(ext, LoaderFunc(unsupported))
	}

	return r
}

// Register installs a Loader for an extension, overwriting any existing one.
func (r *Registry) Register(ext string, l Loader) {
	r.loaders[strings.ToLower(ext)] = l
}

// Load dispatches to the Loader registered for path's extension.
func (r *Registry) Load(ctx context.Context, path string) ([]Unit, error) {
	ext := strings.ToLower(filepath.Ext(path))
	l, ok := r.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("no loader registered for extension %q: %w", ext, ErrUnsupportedFormat)
	}
	return l.Load(ctx, path)
}

func unsupported(ctx context.Context, path string) ([]Unit, error) {
	return nil, ErrUnsupportedFormat
}

func loadText(ctx context.Context, path string) ([]Unit, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}

	text := normalizeWhitespace(string(raw))
	if text == "" {
		return nil, nil
	}
	return []Unit{{Text: text}}, nil
}

func loadHTML(ctx context.Context, path string) ([]Unit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	defer f.Close()

	var sb strings.Builder
	tokenizer := html.NewTokenizer(f)
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			sb.Write(tokenizer.Text())
			sb.WriteByte(' ')
		}
	}

	text := normalizeWhitespace(sb.String())
	if text == "" {
		return nil, nil
	}
	return []Unit{{Text: text}}, nil
}

func loadCSV(ctx context.Context, path string) ([]Unit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var sb strings.Builder
	for {
		record, err := reader.Read()
		if err != nil {
			break
		}
		sb.WriteString(strings.Join(record, " "))
		sb.WriteByte('\n')
	}

	text := normalizeWhitespace(sb.String())
	if text == "" {
		return nil, nil
	}
	return []Unit{{Text: text}}, nil
}

func loadJSON(ctx context.Context, path string) ([]Unit, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("parsing json %q: %w", path, err)
	}

	var sb strings.Builder
	flattenJSON(v, &sb)

	text := normalizeWhitespace(sb.String())
	if text == "" {
		return nil, nil
	}
	return []Unit{{Text: text}}, nil
}

func flattenJSON(v any, sb *strings.Builder) {
	switch t := v.(type) {
	case map[string]any:
		for _, val := range t {
			flattenJSON(val, sb)
		}
	case []any:
		for _, val := range t {
			flattenJSON(val, sb)
		}
	case string:
		sb.WriteString(t)
		sb.WriteByte(' ')
	case nil:
	default:
		fmt.Fprintf(sb, "%v ", t)
	}
}

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, collapseSpaces(s)))
}

// collapseSpaces reduces runs of whitespace to a single space.
func collapseSpaces(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}
