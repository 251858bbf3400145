package model

import (
	"encoding/json"
	"fmt"
)

// TransportKind is the closed set of ways a server is launched or reached.
type TransportKind string

const (
	TransportStdio TransportKind = "stdio"
	TransportHTTP  TransportKind = "http"
	TransportSSE   TransportKind = "sse"
)

// Transport describes how to reach a server. Command, Args and Env apply to
// stdio; URL and Headers apply to the network kinds.
type Transport struct {
	Kind    TransportKind
	Command string
	Args    []string
	Env     map[string]string
	URL     string
	Headers map[string]string
}

// IsStdio reports whether the server is reached by spawning a process.
func (t Transport) IsStdio() bool { return t.Kind == TransportStdio }

// IsNetwork reports whether the server is reached through a URL.
func (t Transport) IsNetwork() bool {
	return t.Kind == TransportHTTP || t.Kind == TransportSSE
}

// Target is a one-line description: the command line or the URL.
func (t Transport) Target() string {
	if t.IsStdio() {
		s := t.Command
		for _, a := range t.Args {
			s += " " + a
		}
		return s
	}
	return t.URL
}

// Field is a source field kept verbatim because the model does not interpret it.
type Field struct {
	Key   string
	Value json.RawMessage
}

// ServerID identifies a server entry. Names are only unique within one client.
type ServerID struct {
	Client ClientKind
	Name   string
}

func (id ServerID) String() string { return id.Client.Label() + "/" + id.Name }

// Server is an immutable snapshot of one entry as discovered.
type Server struct {
	Name      string
	Client    ClientKind
	Source    string
	Transport Transport
	// Raw is the entry exactly as it appeared in the source document.
	Raw json.RawMessage
	// Extra holds unrecognized entry fields in source order.
	Extra []Field
}

// ID returns the server's identity.
func (s Server) ID() ServerID { return ServerID{Client: s.Client, Name: s.Name} }

// ErrorKind classifies a non-fatal discovery failure.
type ErrorKind string

const (
	SourceReadError  ErrorKind = "read"
	SourceParseError ErrorKind = "parse"
)

// SourceError is one collected discovery failure. Entry is set when the
// failure concerns a single server entry rather than the whole file.
type SourceError struct {
	Client  ClientKind
	Path    string
	Kind    ErrorKind
	Entry   string
	Message string
}

func (e SourceError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("%s: %s: entry %q: %s", e.Client.Label(), e.Path, e.Entry, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Client.Label(), e.Path, e.Message)
}

// DiscoveryResult is the output of one scan. Servers are in catalog order,
// then source order.
type DiscoveryResult struct {
	Servers []Server
	Errors  []SourceError
}

// Find returns the server with the given identity.
func (r *DiscoveryResult) Find(id ServerID) (Server, bool) {
	for _, s := range r.Servers {
		if s.ID() == id {
			return s, true
		}
	}
	return Server{}, false
}

// Named returns every entry called name, in result order.
func (r *DiscoveryResult) Named(name string) []Server {
	var out []Server
	for _, s := range r.Servers {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// ActiveClients lists, in catalog order, the clients that contributed at
// least one server.
func (r *DiscoveryResult) ActiveClients() []ClientKind {
	seen := make(map[ClientKind]bool)
	for _, s := range r.Servers {
		seen[s.Client] = true
	}
	var out []ClientKind
	for _, k := range AllClients() {
		if seen[k] {
			out = append(out, k)
		}
	}
	return out
}

// ClientsWithServer lists the clients that have an entry called name.
func (r *DiscoveryResult) ClientsWithServer(name string) []ClientKind {
	var out []ClientKind
	for _, s := range r.Named(name) {
		out = append(out, s.Client)
	}
	return out
}

// WritableClientsWithout lists the writable clients of cat lacking an entry called name.
func (r *DiscoveryResult) WritableClientsWithout(cat Catalog, name string) []ClientKind {
	have := make(map[ClientKind]bool)
	for _, k := range r.ClientsWithServer(name) {
		have[k] = true
	}
	var out []ClientKind
	for _, k := range cat.Writable() {
		if !have[k] {
			out = append(out, k)
		}
	}
	return out
}

// StdioServers returns the servers that can be probed.
func (r *DiscoveryResult) StdioServers() []Server {
	var out []Server
	for _, s := range r.Servers {
		if s.Transport.IsStdio() {
			out = append(out, s)
		}
	}
	return out
}
