package configwriter

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/michaelbrown/mcpm/internal/model"
)

// EncodeEntry renders srv as an entry in the dialect of layout. It starts from
// the entry's retained source JSON so unknown fields survive, and only touches
// fields whose value differs; an unchanged server encodes to its Raw bytes.
func EncodeEntry(srv model.Server, layout model.Layout) (json.RawMessage, error) {
	e := &entry{data: []byte("{}")}
	if len(srv.Raw) > 0 && gjson.ValidBytes(srv.Raw) && gjson.ParseBytes(srv.Raw).IsObject() {
		e.data = append([]byte(nil), srv.Raw...)
	} else {
		for _, f := range srv.Extra {
			e.setRaw(f.Key, f.Value)
		}
	}

	t := srv.Transport
	switch {
	case t.IsStdio():
		if t.Command == "" {
			return nil, fmt.Errorf("stdio server %q has no command", srv.Name)
		}
		if layout.ExplicitType || e.has("type") {
			e.setString("type", string(model.TransportStdio))
		}
		e.setString("command", t.Command)
		e.setStrings("args", t.Args)
		e.setMap("env", t.Env)
		e.del("url")
		e.del("serverUrl")
		e.del("headers")
	case t.IsNetwork():
		if t.URL == "" {
			return nil, fmt.Errorf("%s server %q has no url", t.Kind, srv.Name)
		}
		urlKey, other := "url", "serverUrl"
		if layout.URLKey == "serverUrl" {
			urlKey, other = other, urlKey
		}
		// serverUrl implies streamable http, so a type is only needed for sse there
		if urlKey == "url" || t.Kind == model.TransportSSE || e.has("type") {
			e.setString("type", string(t.Kind))
		}
		e.setString(urlKey, t.URL)
		e.del(other)
		e.setMap("headers", t.Headers)
		e.del("command")
		e.del("args")
		e.del("env")
	default:
		return nil, fmt.Errorf("server %q has no transport", srv.Name)
	}
	if e.err != nil {
		return nil, fmt.Errorf("encoding server %q: %w", srv.Name, e.err)
	}
	return e.data, nil
}

// entry accumulates edits to one server object; the first error sticks.
type entry struct {
	data []byte
	err  error
}

func (e *entry) get(key string) gjson.Result {
	return gjson.GetBytes(e.data, gjson.Escape(key))
}

func (e *entry) has(key string) bool { return e.get(key).Exists() }

func (e *entry) set(key string, v any) {
	if e.err != nil {
		return
	}
	e.data, e.err = sjson.SetBytes(e.data, gjson.Escape(key), v)
}

func (e *entry) setRaw(key string, raw []byte) {
	if e.err != nil {
		return
	}
	e.data, e.err = sjson.SetRawBytes(e.data, gjson.Escape(key), raw)
}

func (e *entry) del(key string) {
	if e.err != nil || !e.has(key) {
		return
	}
	e.data, e.err = sjson.DeleteBytes(e.data, gjson.Escape(key))
}

func (e *entry) setString(key, v string) {
	cur := e.get(key)
	if cur.Type == gjson.String && cur.String() == v {
		return
	}
	e.set(key, v)
}

func (e *entry) setStrings(key string, vs []string) {
	cur := e.get(key)
	if sameStrings(cur, vs) {
		return
	}
	if len(vs) == 0 {
		e.del(key)
		return
	}
	e.set(key, vs)
}

func (e *entry) setMap(key string, m map[string]string) {
	cur := e.get(key)
	if sameMap(cur, m) {
		return
	}
	if len(m) == 0 {
		e.del(key)
		return
	}
	e.set(key, m)
}

func sameStrings(cur gjson.Result, vs []string) bool {
	if !cur.Exists() {
		return len(vs) == 0
	}
	if !cur.IsArray() {
		return false
	}
	els := cur.Array()
	if len(els) != len(vs) {
		return false
	}
	for i, el := range els {
		if el.Type != gjson.String || el.String() != vs[i] {
			return false
		}
	}
	return true
}

func sameMap(cur gjson.Result, m map[string]string) bool {
	if !cur.Exists() {
		return len(m) == 0
	}
	if !cur.IsObject() {
		return false
	}
	n := 0
	same := true
	cur.ForEach(func(k, v gjson.Result) bool {
		n++
		want, ok := m[k.String()]
		same = ok && v.Type == gjson.String && v.String() == want
		return same
	})
	return same && n == len(m)
}
