package deb

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/blakesmith/ar"
	kgzip "github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

// countingWriter wraps an io.Writer and counts the bytes written.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// addBufferToAr writes a named byte slice as a file entry to the AR
// archive. mtime 0 and mode 0644 keep the outer archive reproducible
// (spec §4.6/§6).
func addBufferToAr(w *ar.Writer, name string, body []byte) error {
	header := &ar.Header{
		Name:    name,
		Size:    int64(len(body)),
		Mode:    0644,
		ModTime: time.Unix(0, 0),
	}
	if err := w.WriteHeader(header); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// newGzipWriter returns a deterministic gzip encoder: fixed mtime, fixed
// OS byte, and a compression level chosen from the fast/default knob.
// This answers spec §9's open question on reproducible gzip settings by
// pinning klauspost/compress's encoder (rather than compress/gzip) since
// it lets the OS byte and mtime be fixed explicitly.
func newGzipWriter(w io.Writer, fast bool) *kgzip.Writer {
	level := kgzip.DefaultCompression
	if fast {
		level = kgzip.BestSpeed
	}
	gw, _ := kgzip.NewWriterLevel(w, level)
	gw.ModTime = time.Unix(0, 0)
	gw.OS = 255 // "unknown" — avoid leaking the build host's OS byte
	return gw
}

// fastDictCap is the LZMA2 dictionary size used under --fast: a smaller
// window trades ratio for a much smaller match-finder search space,
// which is the actual lever ulikunitz/xz exposes in place of a numeric
// compression-level knob.
const fastDictCap = 1 << 20

// newXZWriter returns an xz (LZMA2) encoder. fast shrinks the dictionary
// and switches to the cheaper CRC32 integrity check, mirroring --fast's
// "fastest-level settings" (spec §4.6).
func newXZWriter(w io.Writer, fast bool) (*xz.Writer, error) {
	cfg := xz.WriterConfig{}
	if fast {
		cfg.DictCap = fastDictCap
		cfg.CheckSum = xz.CRC32
	}
	return cfg.NewWriter(w)
}

// splitList splits a comma-separated relation/list string into trimmed
// elements, or nil for an empty string.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var res []string
	for _, p := range parts {
		res = append(res, strings.TrimSpace(p))
	}
	return res
}

// parseControlFile parses a generated control file back into ordered
// field/value pairs, used to check the round-trip law of spec §8
// ("parsing the control file and re-serializing it in canonical order
// reproduces the emitted bytes"). Folded continuation lines (leading
// whitespace) are reattached to the previous field's value verbatim.
func parseControlFile(content string) []controlFieldValue {
	var out []controlFieldValue
	var cur *controlFieldValue

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") {
			if cur != nil {
				cur.Value += "\n" + line
			}
			continue
		}
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		out = append(out, controlFieldValue{
			Field: ControlField(strings.TrimSpace(parts[0])),
			Value: strings.TrimPrefix(parts[1], " "),
		})
		cur = &out[len(out)-1]
	}
	return out
}

type controlFieldValue struct {
	Field ControlField
	Value string
}

// BumpVersion increments the Debian revision of a version string.
//
// Strategy:
//  1. If no revision (no hyphen), append "-1".
//  2. If the revision is purely numeric, increment it (e.g. "1.0-1" -> "1.0-2").
//  3. Otherwise, bump the last alphanumeric character through 0-9, a-z
//     (e.g. "1.0-1a" -> "1.0-1b", "1.0-a9" -> "1.0-aa"); a trailing 'z'
//     gets a new "0" suffix appended ("1.0-1z" -> "1.0-1z0").
func BumpVersion(v string) string {
	idx := strings.LastIndex(v, "-")
	if idx == -1 {
		return v + "-1"
	}
	prefix := v[:idx+1]
	rev := v[idx+1:]
	if rev == "" {
		return prefix + "1"
	}

	if i, err := strconv.Atoi(rev); err == nil {
		return prefix + strconv.Itoa(i+1)
	}

	runes := []rune(rev)
	for i := len(runes) - 1; i >= 0; i-- {
		c := runes[i]
		if c >= '0' && c < '9' {
			runes[i]++
			return prefix + string(runes)
		}
		if c == '9' {
			runes[i] = 'a'
			return prefix + string(runes)
		}
		if c >= 'a' && c < 'z' {
			runes[i]++
			return prefix + string(runes)
		}
		if c == 'z' {
			return prefix + string(runes[:i+1]) + "0" + string(runes[i+1:])
		}
	}
	return v + "1"
}
