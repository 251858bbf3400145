package discovery

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/michaelbrown/mcpm/internal/model"
)

// knownFields are the entry fields mapped into model.Transport. Everything
// else is retained in Server.Extra.
var knownFields = map[string]bool{
	"type":      true,
	"command":   true,
	"args":      true,
	"env":       true,
	"url":       true,
	"serverUrl": true,
	"headers":   true,
}

// ParseEntry extracts one server entry. The transport is taken from an
// explicit "type" when it names a known kind, otherwise inferred from the
// presence of "command" (stdio) or "url"/"serverUrl" (http).
func ParseEntry(name string, v gjson.Result) (model.Server, error) {
	srv := model.Server{
		Name: name,
		Raw:  json.RawMessage(v.Raw),
	}

	typ := ""
	if t := v.Get("type"); t.Type == gjson.String {
		typ = t.String()
	}
	command := v.Get("command")
	url := v.Get("url")
	if !url.Exists() {
		url = v.Get("serverUrl")
	}

	switch {
	case typ == "http" || typ == "streamable-http" || typ == "streamableHttp":
		t, err := networkTransport(model.TransportHTTP, url, v)
		if err != nil {
			return srv, err
		}
		srv.Transport = t
	case typ == "sse":
		t, err := networkTransport(model.TransportSSE, url, v)
		if err != nil {
			return srv, err
		}
		srv.Transport = t
	case typ == "stdio" || command.Exists():
		if command.Type != gjson.String || command.String() == "" {
			return srv, fmt.Errorf("stdio entry has no command")
		}
		srv.Transport = model.Transport{
			Kind:    model.TransportStdio,
			Command: command.String(),
			Args:    stringList(v.Get("args")),
			Env:     stringMap(v.Get("env")),
		}
	case url.Exists():
		t, err := networkTransport(model.TransportHTTP, url, v)
		if err != nil {
			return srv, err
		}
		srv.Transport = t
	case typ != "":
		return srv, fmt.Errorf("unsupported transport type %q", typ)
	default:
		return srv, fmt.Errorf("unrecognized server shape: no command or url")
	}

	v.ForEach(func(key, value gjson.Result) bool {
		if !knownFields[key.String()] {
			srv.Extra = append(srv.Extra, model.Field{Key: key.String(), Value: json.RawMessage(value.Raw)})
		}
		return true
	})
	return srv, nil
}

func networkTransport(kind model.TransportKind, url, v gjson.Result) (model.Transport, error) {
	if url.Type != gjson.String || url.String() == "" {
		return model.Transport{}, fmt.Errorf("%s entry has no url", kind)
	}
	return model.Transport{
		Kind:    kind,
		URL:     url.String(),
		Headers: stringMap(v.Get("headers")),
	}, nil
}

// stringList keeps the string elements of an array; anything else yields nil.
func stringList(v gjson.Result) []string {
	if !v.IsArray() {
		return nil
	}
	var out []string
	for _, el := range v.Array() {
		if el.Type == gjson.String {
			out = append(out, el.String())
		}
	}
	return out
}

// stringMap keeps the string-valued members of an object.
func stringMap(v gjson.Result) map[string]string {
	if !v.IsObject() {
		return nil
	}
	out := make(map[string]string)
	v.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String {
			out[key.String()] = value.String()
		}
		return true
	})
	if len(out) == 0 {
		return nil
	}
	return out
}
