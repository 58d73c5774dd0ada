// Package env composes the child process environment: the supervisor's own
// environment with a fixed overlay applied on top.
package env

import (
	"maps"
	"os"
	"sort"
	"strings"
)

type Var map[string]string

type Env struct {
	Var  Var // overlay variables (K->V), applied over the base
	base Var // cached base from OS environment
}

func New() *Env {
	return &Env{
		Var: make(Var),
	}
}

// FromOS caches the current process environment as the base.
func (e *Env) FromOS() {
	e.base = parse(os.Environ())
}

// FromList uses kv ("K=V" entries) as the base instead of the OS environment.
func (e *Env) FromList(kv []string) {
	e.base = parse(kv)
}

// Set sets an overlay variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Merge composes the final environment list applying order:
// base = OS env (or cached / FromList)
// then overlay e.Var
// then extra (slice of "K=V") overrides
// Overlay and extra values get ${VAR} expansion against the composed map as it
// stood before expansion, so references are resolved one level deep and never
// depend on map order. Base values are passed through untouched. The result is
// sorted by key.
func (e *Env) Merge(extra []string) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(Var, len(e.base)+len(e.Var)+len(extra))
	for k, v := range e.base {
		m[k] = v
	}
	over := make(Var, len(e.Var)+len(extra))
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		over[k] = v
	}
	for k, v := range parse(extra) {
		over[k] = v
	}
	for k, v := range over {
		m[k] = v
	}
	snap := maps.Clone(m)
	for k, v := range over {
		m[k] = expand(v, snap)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

// Lookup returns the value k would have after Merge(nil).
func (e *Env) Lookup(k string) (string, bool) {
	for _, kv := range e.Merge(nil) {
		if strings.HasPrefix(kv, k+"=") {
			return kv[len(k)+1:], true
		}
	}
	return "", false
}

func parse(kv []string) Var {
	m := make(Var, len(kv))
	for _, s := range kv {
		if i := strings.IndexByte(s, '='); i > 0 {
			m[s[:i]] = s[i+1:]
		}
	}
	return m
}

// expand replaces each ${NAME} in s with m[NAME] in a single left-to-right
// pass. Unknown names are left as written and substituted text is not rescanned.
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
		end := i + 2 + j
		b.WriteString(s[:i])
		if v, ok := m[s[i+2:end]]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : end+1])
		}
		s = s[end+1:]
	}
	b.WriteString(s)
	return b.String()
}
