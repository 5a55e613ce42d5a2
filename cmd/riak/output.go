package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/riakpb/riakpb"
	"gopkg.in/yaml.v3"
)

// render writes v in the --output format. text falls back to the given
// line printer.
func (a *app) render(v any, text func() string) error {
	switch format := a.v.GetString("output"); format {
	case "", "text":
		_, err := fmt.Fprintln(a.out, text())
		return err
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

type contentView struct {
	Vtag         string            `json:"vtag,omitempty" yaml:"vtag,omitempty"`
	ContentType  string            `json:"content_type" yaml:"content_type"`
	Charset      string            `json:"charset,omitempty" yaml:"charset,omitempty"`
	Encoding     string            `json:"content_encoding,omitempty" yaml:"content_encoding,omitempty"`
	LastModified string            `json:"last_modified,omitempty" yaml:"last_modified,omitempty"`
	Links        []string          `json:"links,omitempty" yaml:"links,omitempty"`
	UserMeta     map[string]string `json:"usermeta,omitempty" yaml:"usermeta,omitempty"`
	Value        any               `json:"value" yaml:"value"`
}

// MarshalYAML writes JSON numbers as YAML numbers instead of quoted
// strings, keeping their literal.
func (v contentView) MarshalYAML() (any, error) {
	type plain contentView
	out := plain(v)
	out.Value = yamlValue(v.Value)
	return out, nil
}

func yamlValue(v any) any {
	switch v := v.(type) {
	case json.Number:
		tag := "!!int"
		if strings.ContainsAny(string(v), ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: string(v)}
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = yamlValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = yamlValue(e)
		}
		return out
	}
	return v
}

type keyView struct {
	Bucket   string        `json:"bucket" yaml:"bucket"`
	Key      string        `json:"key" yaml:"key"`
	State    string        `json:"state" yaml:"state"`
	Siblings []contentView `json:"siblings,omitempty" yaml:"siblings,omitempty"`
}

func newKeyView(k *riakpb.Key) keyView {
	view := keyView{Bucket: k.Bucket().Name(), Key: k.Name(), State: k.State().String()}
	for _, c := range k.Siblings() {
		view.Siblings = append(view.Siblings, newContentView(c))
	}
	return view
}

func newContentView(c *riakpb.Content) contentView {
	view := contentView{
		Vtag:        c.Vtag,
		ContentType: c.ContentType,
		Charset:     c.Charset,
		Encoding:    c.ContentEncoding,
		UserMeta:    c.UserMeta,
		Value:       c.Value,
	}
	if !c.LastModified.IsZero() {
		view.LastModified = c.LastModified.UTC().Format(time.RFC3339Nano)
	}
	for _, l := range c.Links() {
		view.Links = append(view.Links, formatLink(l))
	}
	switch v := c.Value.(type) {
	case []byte:
		view.Value = string(v)
	case nil:
		view.Value = ""
	}
	return view
}

func (v keyView) text() string {
	if len(v.Siblings) == 0 {
		return fmt.Sprintf("%s/%s: %s", v.Bucket, v.Key, v.State)
	}

	var b strings.Builder
	for i, c := range v.Siblings {
		if i > 0 {
			b.WriteString("\n")
		}
		if len(v.Siblings) > 1 {
			fmt.Fprintf(&b, "--- sibling %d (vtag %s)\n", i+1, c.Vtag)
		}
		fmt.Fprintf(&b, "content-type: %s\n", c.ContentType)
		if c.Encoding != "" {
			fmt.Fprintf(&b, "content-encoding: %s\n", c.Encoding)
		}
		if c.LastModified != "" {
			fmt.Fprintf(&b, "last-modified: %s\n", c.LastModified)
		}
		for _, l := range c.Links {
			fmt.Fprintf(&b, "link: %s\n", l)
		}
		keys := make([]string, 0, len(c.UserMeta))
		for k := range c.UserMeta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "meta: %s=%s\n", k, c.UserMeta[k])
		}
		b.WriteString(formatValue(c.Value))
	}
	return b.String()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	default:
		out, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(out)
	}
}

func formatLink(l riakpb.Link) string {
	if l.Tag == "" {
		return l.Bucket + "/" + l.Key
	}
	return l.Bucket + "/" + l.Key + "/" + l.Tag
}

// parseLink reads bucket/key[/tag].
func parseLink(s string) (riakpb.Link, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return riakpb.Link{}, fmt.Errorf("invalid link %q, want bucket/key[/tag]", s)
	}
	l := riakpb.Link{Bucket: parts[0], Key: parts[1]}
	if len(parts) == 3 {
		l.Tag = parts[2]
	}
	return l, nil
}
