package model

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ClientKind identifies one client application (and scope) that owns a config file.
type ClientKind int

const (
	ClaudeCodeGlobal ClientKind = iota
	ClaudeCodeProject
	CursorGlobal
	CursorProject
	VsCodeProject
	Windsurf
	ClaudeDesktop
)

var clientLabels = map[ClientKind]string{
	ClaudeCodeGlobal:  "CC-Global",
	ClaudeCodeProject: "CC-Project",
	CursorGlobal:      "Cursor",
	CursorProject:     "Cur-Proj",
	VsCodeProject:     "VSCode",
	Windsurf:          "Windsurf",
	ClaudeDesktop:     "Desktop",
}

// AllClients returns every client in catalog order.
func AllClients() []ClientKind {
	return []ClientKind{
		ClaudeCodeGlobal,
		ClaudeCodeProject,
		CursorGlobal,
		CursorProject,
		VsCodeProject,
		Windsurf,
		ClaudeDesktop,
	}
}

// Label is the short display name used in listings and on the command line.
func (k ClientKind) Label() string {
	if l, ok := clientLabels[k]; ok {
		return l
	}
	return fmt.Sprintf("client(%d)", int(k))
}

func (k ClientKind) String() string { return k.Label() }

// ParseClientKind resolves a label such as "cursor" or "CC-Project".
func ParseClientKind(s string) (ClientKind, error) {
	for _, k := range AllClients() {
		if strings.EqualFold(k.Label(), s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown client %q (known: %s)", s, strings.Join(clientLabelList(), ", "))
}

func clientLabelList() []string {
	labels := make([]string, 0, len(clientLabels))
	for _, k := range AllClients() {
		labels = append(labels, k.Label())
	}
	return labels
}

// Layout describes where a client keeps its server map and how it spells entries.
type Layout struct {
	// Keys are the candidate container keys, in lookup order. The first one is
	// used when a new container has to be created.
	Keys []string
	// AllowFlat means the document itself may be the server map when none of
	// Keys is present.
	AllowFlat bool
	// ProjectsKey names an object of per-project documents that carry their own
	// server maps under Keys[0].
	ProjectsKey string
	// ExplicitType forces a "type" field on every written entry.
	ExplicitType bool
	// URLKey is the field holding a network endpoint's URL.
	URLKey string
}

// Client is one catalog entry.
type Client struct {
	Kind     ClientKind
	Path     string
	Layout   Layout
	Writable bool
	// Alternate is the writable client to target instead when Writable is false.
	Alternate ClientKind
}

// Catalog is the fixed, ordered list of config sources.
type Catalog []Client

// NewCatalog builds the catalog for a home directory and a project directory.
func NewCatalog(home, project string) Catalog {
	mcp := Layout{Keys: []string{"mcpServers"}, URLKey: "url"}

	return Catalog{
		{
			Kind:     ClaudeCodeGlobal,
			Path:     filepath.Join(home, ".claude.json"),
			Layout:   Layout{Keys: []string{"mcpServers"}, ProjectsKey: "projects", URLKey: "url"},
			Writable: true,
		},
		{
			Kind:     ClaudeCodeProject,
			Path:     filepath.Join(project, ".mcp.json"),
			Layout:   Layout{Keys: []string{"mcpServers"}, AllowFlat: true, URLKey: "url"},
			Writable: true,
		},
		{Kind: CursorGlobal, Path: filepath.Join(home, ".cursor", "mcp.json"), Layout: mcp, Writable: true},
		{Kind: CursorProject, Path: filepath.Join(project, ".cursor", "mcp.json"), Layout: mcp, Writable: true},
		{
			Kind:     VsCodeProject,
			Path:     filepath.Join(project, ".vscode", "mcp.json"),
			Layout:   Layout{Keys: []string{"servers", "mcpServers"}, ExplicitType: true, URLKey: "url"},
			Writable: true,
		},
		{
			Kind:     Windsurf,
			Path:     filepath.Join(home, ".codeium", "windsurf", "mcp_config.json"),
			Layout:   Layout{Keys: []string{"mcpServers"}, URLKey: "serverUrl"},
			Writable: true,
		},
		{
			Kind:      ClaudeDesktop,
			Path:      desktopConfigPath(home),
			Layout:    mcp,
			Writable:  false,
			Alternate: ClaudeCodeGlobal,
		},
	}
}

// desktopConfigPath picks the first existing Claude Desktop config, falling
// back to the platform default.
func desktopConfigPath(home string) string {
	candidates := []string{
		filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json"),
		filepath.Join(home, ".config", "Claude", "claude_desktop_config.json"),
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if runtime.GOOS == "darwin" {
		return candidates[0]
	}
	return candidates[1]
}

// Lookup returns the catalog entry for kind.
func (c Catalog) Lookup(kind ClientKind) (Client, bool) {
	for _, cl := range c {
		if cl.Kind == kind {
			return cl, true
		}
	}
	return Client{}, false
}

// Writable returns the writable clients in catalog order.
func (c Catalog) Writable() []ClientKind {
	var out []ClientKind
	for _, cl := range c {
		if cl.Writable {
			out = append(out, cl.Kind)
		}
	}
	return out
}
