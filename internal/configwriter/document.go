package configwriter

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/michaelbrown/mcpm/internal/model"
)

// document is a raw JSON object edited in place. Bytes outside the edited
// member are never rewritten.
type document struct {
	data    []byte
	pretty  bool
	unit    string
	synth   bool
	changed bool
}

func newDocument(original []byte, existed bool) *document {
	if len(bytes.TrimSpace(original)) == 0 {
		return &document{data: []byte("{}"), pretty: true, unit: "  ", synth: true}
	}
	return &document{
		data:   append([]byte(nil), original...),
		pretty: bytes.IndexByte(bytes.TrimSpace(original), '\n') >= 0,
		unit:   detectIndent(original),
	}
}

func (d *document) bytes() []byte {
	if d.synth && !bytes.HasSuffix(d.data, []byte("\n")) {
		return append(d.data, '\n')
	}
	return d.data
}

func validateObject(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid JSON")
	}
	if !gjson.ParseBytes(data).IsObject() {
		return fmt.Errorf("document is not a JSON object")
	}
	return nil
}

func (d *document) apply(cl model.Client, ch Change) error {
	key, path, exists, err := d.container(cl.Layout)
	if err != nil {
		return err
	}

	if ch.Op == OpAdd || ch.Op == OpSetPresence && ch.Server != nil {
		raw, err := EncodeEntry(*ch.Server, cl.Layout)
		if err != nil {
			return err
		}
		if !exists {
			start, end := d.span("")
			d.insertMember(start, end, key, []byte("{}"))
		}
		return d.setEntry(path, ch.Name, raw)
	}

	if exists {
		if err := d.deleteEntry(join(path, gjson.Escape(ch.Name))); err != nil {
			return err
		}
	}
	if cl.Layout.ProjectsKey != "" {
		return d.deleteFromProjects(cl.Layout, ch.Name)
	}
	return nil
}

// container locates the server map. key is the member name to create when
// exists is false; path is empty for a flat document.
func (d *document) container(layout model.Layout) (key, path string, exists bool, err error) {
	for _, k := range layout.Keys {
		v := gjson.GetBytes(d.data, gjson.Escape(k))
		if !v.Exists() {
			continue
		}
		if !v.IsObject() {
			return "", "", false, fmt.Errorf("%w: %q is %s, not an object", ErrSourceParse, k, v.Type)
		}
		return k, gjson.Escape(k), true, nil
	}
	if layout.AllowFlat && hasObjectMember(gjson.ParseBytes(d.data)) {
		return "", "", true, nil
	}
	return layout.Keys[0], gjson.Escape(layout.Keys[0]), false, nil
}

func hasObjectMember(root gjson.Result) bool {
	found := false
	root.ForEach(func(_, v gjson.Result) bool {
		found = v.IsObject()
		return !found
	})
	return found
}

func join(path, comp string) string {
	if path == "" {
		return comp
	}
	return path + "." + comp
}

// span returns the byte range of the object at path ("" is the root).
func (d *document) span(path string) (int, int) {
	if path == "" {
		start := bytes.IndexByte(d.data, '{')
		end := bytes.LastIndexByte(d.data, '}') + 1
		return start, end
	}
	v := gjson.GetBytes(d.data, path)
	start := offset(d.data, v)
	return start, start + len(v.Raw)
}

// offset is the position of v in data. gjson leaves Index at zero when it
// cannot tell.
func offset(data []byte, v gjson.Result) int {
	if v.Index > 0 {
		return v.Index
	}
	return bytes.Index(data, []byte(v.Raw))
}

func (d *document) setEntry(containerPath, name string, raw []byte) error {
	entryPath := join(containerPath, gjson.Escape(name))
	cur := gjson.GetBytes(d.data, entryPath)
	if !cur.Exists() {
		start, end := d.span(containerPath)
		d.insertMember(start, end, name, raw)
		return nil
	}
	if cur.Raw == string(raw) {
		return nil
	}
	out, err := sjson.SetRawBytes(d.data, entryPath, d.format(raw, lineIndent(d.data, offset(d.data, cur))))
	if err != nil {
		return fmt.Errorf("replacing entry %q: %w", name, err)
	}
	d.data = out
	d.changed = true
	return nil
}

func (d *document) deleteEntry(entryPath string) error {
	if !gjson.GetBytes(d.data, entryPath).Exists() {
		return nil
	}
	out, err := sjson.DeleteBytes(d.data, entryPath)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", entryPath, err)
	}
	d.data = out
	d.changed = true
	return nil
}

// deleteFromProjects removes name from every per-project server map.
func (d *document) deleteFromProjects(layout model.Layout, name string) error {
	projects := gjson.GetBytes(d.data, gjson.Escape(layout.ProjectsKey))
	if !projects.IsObject() {
		return nil
	}
	var paths []string
	projects.ForEach(func(dir, doc gjson.Result) bool {
		if doc.Get(gjson.Escape(layout.Keys[0])).Get(gjson.Escape(name)).Exists() {
			paths = append(paths, gjson.Escape(layout.ProjectsKey)+"."+gjson.Escape(dir.String())+"."+
				gjson.Escape(layout.Keys[0])+"."+gjson.Escape(name))
		}
		return true
	})
	for _, p := range paths {
		if err := d.deleteEntry(p); err != nil {
			return err
		}
	}
	return nil
}

// insertMember adds "key": value as the last member of the object spanning
// data[start:end], following the surrounding indentation.
func (d *document) insertMember(start, end int, key string, value []byte) {
	q, _ := json.Marshal(key)
	body := d.data[start+1 : end-1]

	var repl []byte
	at, cut := end-1, end-1
	if len(bytes.TrimSpace(body)) == 0 {
		at, cut = start, end
		if d.pretty {
			ci := lineIndent(d.data, start)
			mi := ci + d.unit
			repl = concat("{\n", mi, string(q), ": ", string(prettyValue(value, mi, d.unit)), "\n", ci, "}")
		} else {
			repl = concat("{", string(q), ":", string(pretty.Ugly(value)), "}")
		}
	} else {
		for at > start+1 && isSpace(d.data[at-1]) {
			at--
		}
		cut = at
		if d.pretty {
			mi := memberIndent(d.data, start, d.unit)
			repl = concat(",\n", mi, string(q), ": ", string(prettyValue(value, mi, d.unit)))
		} else {
			repl = concat(",", string(q), ":", string(pretty.Ugly(value)))
		}
	}

	out := make([]byte, 0, len(d.data)+len(repl))
	out = append(out, d.data[:at]...)
	out = append(out, repl...)
	out = append(out, d.data[cut:]...)
	d.data = out
	d.changed = true
}

func (d *document) format(raw []byte, indent string) []byte {
	if !d.pretty {
		return pretty.Ugly(raw)
	}
	return prettyValue(raw, indent, d.unit)
}

// prettyValue formats v for placement after a key on a line indented by prefix.
func prettyValue(v []byte, prefix, unit string) []byte {
	out := pretty.PrettyOptions(v, &pretty.Options{Width: 80, Prefix: prefix, Indent: unit})
	out = bytes.TrimRight(out, "\n")
	return bytes.TrimPrefix(out, []byte(prefix))
}

// memberIndent is the indentation of the first member of the object at start.
func memberIndent(data []byte, start int, unit string) string {
	i := start + 1
	for i < len(data) && isSpace(data[i]) {
		i++
	}
	if nl := bytes.LastIndexByte(data[start+1:i], '\n'); nl >= 0 {
		return string(data[start+1+nl+1 : i])
	}
	return lineIndent(data, start) + unit
}

// lineIndent is the leading whitespace of the line containing pos.
func lineIndent(data []byte, pos int) string {
	ls := bytes.LastIndexByte(data[:pos], '\n') + 1
	k := ls
	for k < pos && (data[k] == ' ' || data[k] == '\t') {
		k++
	}
	return string(data[ls:k])
}

// detectIndent guesses one indentation level from the first indented member line.
func detectIndent(data []byte) string {
	for _, line := range bytes.Split(data, []byte("\n"))[1:] {
		trimmed := bytes.TrimLeft(line, " \t")
		if len(trimmed) < len(line) && len(trimmed) > 0 && trimmed[0] == '"' {
			return string(line[:len(line)-len(trimmed)])
		}
	}
	return "  "
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func concat(parts ...string) []byte {
	var b bytes.Buffer
	for _, p := range parts {
		b.WriteString(p)
	}
	return b.Bytes()
}
