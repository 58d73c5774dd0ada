package env

import (
	"strings"
	"testing"
)

// FuzzMerge fuzzes Merge with random overlays to ensure no panics and that the
// output stays a well-formed, sorted K=V list.
func FuzzMerge(f *testing.F) {
	f.Add([]byte("A=1\nB=${A}-x"), []byte("C=${B}-y"))
	f.Add([]byte("FOO=bar"), []byte("FOO=${FOO}"))
	f.Add([]byte("X=$Y"), []byte("Y=${X}"))

	f.Fuzz(func(t *testing.T, overlayB []byte, extraB []byte) {
		overlay := splitNZ(string(overlayB))
		extra := splitNZ(string(extraB))
		if len(overlay) > 20 {
			overlay = overlay[:20]
		}
		if len(extra) > 20 {
			extra = extra[:20]
		}

		e := New()
		e.FromList(nil)
		for _, kv := range overlay {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				e.Set(kv[:i], kv[i+1:])
			}
		}
		out := e.Merge(extra)
		prev := ""
		for _, kv := range out {
			i := strings.IndexByte(kv, '=')
			if i <= 0 {
				t.Fatalf("bad pair: %q", kv)
			}
			if k := kv[:i]; k < prev {
				t.Fatalf("output not sorted: %q after %q", k, prev)
			} else {
				prev = k
			}
		}
	})
}

// splitNZ splits s by newlines and returns non-empty trimmed lines.
func splitNZ(s string) []string {
	var out []string
	for _, ln := range strings.Split(s, "\n") {
		ln = strings.TrimSpace(ln)
		if ln != "" {
			out = append(out, ln)
		}
	}
	return out
}
