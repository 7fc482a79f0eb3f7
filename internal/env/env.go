// Package env composes the environment of launched commands.
package env

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Var maps variable names to values.
type Var map[string]string

// Parse converts "K=V" pairs into a Var. Entries without '=' or with an
// empty key are skipped; later entries win.
func Parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
	return m
}

// Merge applies overrides on top of base and returns the result as sorted
// "K=V" pairs. Override values may reference ${NAME}; references resolve
// against base and earlier overrides, unknown names are left as written.
func Merge(base, overrides []string) []string {
	m := Parse(base)
	for _, kv := range overrides {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		m[k] = expand(v, m)
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// expand replaces ${NAME} in s with values from m. It is a single pass, so
// expanded values are never expanded again.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			break
		}
		name := s[i+2 : i+2+j]
		b.WriteString(s[:i])
		if v, ok := m[name]; ok && name != "" {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+3+j])
		}
		s = s[i+3+j:]
	}
	b.WriteString(s)
	return b.String()
}

// ReadFile reads KEY=VALUE lines from path. Blank lines and lines starting
// with '#' are ignored, an optional "export " prefix is dropped and values
// wrapped in matching quotes are unquoted.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []string
	sc := bufio.NewScanner(f)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%s:%d: expected KEY=VALUE", path, n)
		}
		v = strings.TrimSpace(v)
		if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
			v = v[1 : len(v)-1]
		}
		out = append(out, k+"="+v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Load reads files in order and appends inline, returning the overrides to
// pass to Merge. Inline entries come last and win.
func Load(files, inline []string) ([]string, error) {
	var out []string
	for _, f := range files {
		kvs, err := ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("env file: %w", err)
		}
		out = append(out, kvs...)
	}
	return append(out, inline...), nil
}
