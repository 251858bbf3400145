// Package discovery reads every known client config file and extracts its MCP
// server entries into one ordered result. It never fails as a whole: sources
// that cannot be read or parsed are reported in the result's error list.
package discovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/tidwall/gjson"

	"github.com/michaelbrown/mcpm/internal/model"
)

// Scanner runs discovery passes over a catalog.
type Scanner struct {
	log *slog.Logger
}

// New creates a Scanner. A nil logger uses slog.Default().
func New(log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{log: log.With("component", "discovery")}
}

// Scan reads each catalog entry in order. Missing files are skipped silently.
func (s *Scanner) Scan(cat model.Catalog) *model.DiscoveryResult {
	res := &model.DiscoveryResult{}
	for _, cl := range cat {
		before := len(res.Servers)
		s.scanClient(cl, res)
		s.log.Debug("scanned source", "client", cl.Kind.Label(), "path", cl.Path, "servers", len(res.Servers)-before)
	}
	return res
}

// Scan is a convenience wrapper using the default logger.
func Scan(cat model.Catalog) *model.DiscoveryResult {
	return New(nil).Scan(cat)
}

func (s *Scanner) scanClient(cl model.Client, res *model.DiscoveryResult) {
	data, err := os.ReadFile(cl.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		res.Errors = append(res.Errors, model.SourceError{
			Client:  cl.Kind,
			Path:    cl.Path,
			Kind:    model.SourceReadError,
			Message: err.Error(),
		})
		return
	}

	if err := json.Unmarshal(data, new(json.RawMessage)); err != nil {
		res.Errors = append(res.Errors, model.SourceError{
			Client:  cl.Kind,
			Path:    cl.Path,
			Kind:    model.SourceParseError,
			Message: DescribeSyntaxError(data, err),
		})
		return
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		res.Errors = append(res.Errors, model.SourceError{
			Client:  cl.Kind,
			Path:    cl.Path,
			Kind:    model.SourceParseError,
			Message: "document is not a JSON object",
		})
		return
	}

	x := &extractor{client: cl, res: res, seen: make(map[string]bool)}

	container, ok := ServerContainer(root, cl.Layout)
	switch {
	case ok && !container.IsObject():
		x.fileError(fmt.Sprintf("servers container is %s, not an object", container.Type))
	case ok:
		x.entries(container, false)
	case cl.Layout.AllowFlat:
		x.entries(root, true)
	}

	if cl.Layout.ProjectsKey != "" {
		x.projects(root.Get(cl.Layout.ProjectsKey))
	}
}

// ServerContainer returns the value of the first of layout's keys present in
// root. The boolean is false when none is present.
func ServerContainer(root gjson.Result, layout model.Layout) (gjson.Result, bool) {
	for _, key := range layout.Keys {
		if v := root.Get(gjson.Escape(key)); v.Exists() {
			return v, true
		}
	}
	return gjson.Result{}, false
}

type extractor struct {
	client model.Client
	res    *model.DiscoveryResult
	seen   map[string]bool
}

func (x *extractor) fileError(msg string) {
	x.res.Errors = append(x.res.Errors, model.SourceError{
		Client:  x.client.Kind,
		Path:    x.client.Path,
		Kind:    model.SourceParseError,
		Message: msg,
	})
}

func (x *extractor) entryError(name, msg string) {
	x.res.Errors = append(x.res.Errors, model.SourceError{
		Client:  x.client.Kind,
		Path:    x.client.Path,
		Kind:    model.SourceParseError,
		Entry:   name,
		Message: msg,
	})
}

// entries walks a server map in document order. In a flat document,
// non-object values are metadata and are skipped without an error.
func (x *extractor) entries(container gjson.Result, flat bool) {
	container.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if !value.IsObject() {
			if !flat {
				x.entryError(name, fmt.Sprintf("entry is %s, not an object", value.Type))
			}
			return true
		}
		if x.seen[name] {
			x.entryError(name, "duplicate entry, keeping the first one")
			return true
		}
		srv, err := ParseEntry(name, value)
		if err != nil {
			x.entryError(name, err.Error())
			return true
		}
		srv.Client = x.client.Kind
		srv.Source = x.client.Path
		x.seen[name] = true
		x.res.Servers = append(x.res.Servers, srv)
		return true
	})
}

// projects merges per-project server maps. A name already seen (top level or
// an earlier project) is skipped.
func (x *extractor) projects(projects gjson.Result) {
	if !projects.IsObject() {
		return
	}
	key := x.client.Layout.Keys[0]
	projects.ForEach(func(dir, doc gjson.Result) bool {
		servers := doc.Get(gjson.Escape(key))
		if !servers.IsObject() {
			return true
		}
		servers.ForEach(func(k, v gjson.Result) bool {
			name := k.String()
			if x.seen[name] || !v.IsObject() {
				return true
			}
			srv, err := ParseEntry(name, v)
			if err != nil {
				x.entryError(name, fmt.Sprintf("project %s: %v", dir.String(), err))
				return true
			}
			srv.Client = x.client.Kind
			srv.Source = x.client.Path
			x.seen[name] = true
			x.res.Servers = append(x.res.Servers, srv)
			return true
		})
		return true
	})
}

// DescribeSyntaxError turns a decoding error into a message with a line and column.
func DescribeSyntaxError(data []byte, err error) string {
	var syn *json.SyntaxError
	if !errors.As(err, &syn) {
		return "invalid JSON: " + err.Error()
	}
	line, col := 1, 1
	for i := int64(0); i < syn.Offset-1 && i < int64(len(data)); i++ {
		if data[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return fmt.Sprintf("invalid JSON at line %d, column %d: %s", line, col, syn.Error())
}
