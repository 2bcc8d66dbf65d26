// Package out renders command envelopes as JSON or as key=value lines.
package out

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ggonzalez94/walletbot/internal/model"
)

const (
	ModeJSON  = "json"
	ModePlain = "plain"
)

type Options struct {
	Mode        string
	Select      []string
	ResultsOnly bool
}

// Render writes env to w. Select keeps only the named fields of each data
// record; nested fields are addressed with dots ("balances.token").
func Render(w io.Writer, env model.Envelope, opts Options) error {
	data := generic(env.Data)
	if len(opts.Select) > 0 {
		data = project(data, opts.Select)
	}

	if opts.Mode != ModePlain {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if opts.ResultsOnly {
			return enc.Encode(data)
		}
		env.Data = data
		return enc.Encode(env)
	}

	if opts.ResultsOnly {
		return writeLines(w, data)
	}
	plain := map[string]any{
		"success": env.Success,
		"data":    data,
		"meta":    generic(env.Meta),
	}
	if len(env.Warnings) > 0 {
		plain["warnings"] = env.Warnings
	}
	if env.Error != nil {
		plain["error"] = generic(env.Error)
	}
	return writeLines(w, plain)
}

// writeLines prints one line per record. A map whose only list is its
// payload still renders as a single line.
func writeLines(w io.Writer, data any) error {
	items, ok := data.([]any)
	if !ok {
		_, err := fmt.Fprintln(w, line(data))
		return err
	}
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "[]")
		return err
	}
	for _, item := range items {
		if _, err := fmt.Fprintln(w, line(item)); err != nil {
			return err
		}
	}
	return nil
}

func line(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		if v == nil {
			return "null"
		}
		buf, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(buf)
	}
	flat := map[string]string{}
	flatten("", m, flat)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+flat[k])
	}
	return strings.Join(parts, " ")
}

func flatten(prefix string, v any, into map[string]string) {
	switch t := v.(type) {
	case map[string]any:
		for k, inner := range t {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(key, inner, into)
		}
	case []any:
		for i, inner := range t {
			flatten(fmt.Sprintf("%s[%d]", prefix, i), inner, into)
		}
	case nil:
		into[prefix] = "null"
	default:
		into[prefix] = fmt.Sprint(t)
	}
}

func project(data any, fields []string) any {
	switch t := data.(type) {
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, projectMap(m, fields))
			}
		}
		return out
	case map[string]any:
		return projectMap(t, fields)
	default:
		return data
	}
}

func projectMap(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	nested := map[string][]string{}
	var order []string
	for _, f := range fields {
		head, rest, dotted := strings.Cut(f, ".")
		if !dotted {
			if v, ok := m[f]; ok {
				out[f] = v
			}
			continue
		}
		if _, seen := nested[head]; !seen {
			order = append(order, head)
		}
		nested[head] = append(nested[head], rest)
	}
	for _, head := range order {
		if v, ok := m[head]; ok {
			out[head] = project(v, nested[head])
		}
	}
	return out
}

// generic round-trips v through JSON so projection only deals with maps,
// slices and scalars.
func generic(v any) any {
	if v == nil {
		return nil
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}
