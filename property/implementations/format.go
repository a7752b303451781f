// Package implementations holds the concrete property handlers registered
// into a property.Registry (spec.md §4.1, §6). Handlers are grouped by
// concern into sibling files (lifecycle.go, runtime.go, resources.go,
// network.go, identity.go) the way nestybox-sysbox-fs groups its handler
// implementations one-file-per-emulated-resource under
// handler/implementations/.
package implementations

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ginta1337/porto/portoerr"
)

// parseBool accepts only the literal "true"/"false" tokens spec.md §6
// specifies, not Go's looser strconv.ParseBool grammar (no "1"/"T"/"0").
func parseBool(s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, portoerr.New(portoerr.InvalidValue, "invalid boolean %q", s)
	}
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// parseSize accepts raw decimal bytes, or a decimal value immediately
// followed by a unit suffix (K/M/G/T, base 1024) the way porto-flavored
// sizes are commonly entered; spec.md §6 only requires raw bytes, so the
// suffix forms are an accepted convenience, not a separate wire format.
func parseSize(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, portoerr.New(portoerr.InvalidValue, "empty size value")
	}
	mult := uint64(1)
	last := s[len(s)-1]
	switch last {
	case 'K', 'k':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'M', 'm':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'G', 'g':
		mult = 1 << 30
		s = s[:len(s)-1]
	case 'T', 't':
		mult = 1 << 40
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, portoerr.New(portoerr.InvalidValue, "invalid size %q", s)
	}
	return v * mult, nil
}

func formatSize(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// parseCpu accepts "<float>c" for a core count or a bare "<float>" for a
// percentage of one core (spec.md §6), returning the value in cores either
// way.
func parseCpu(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, portoerr.New(portoerr.InvalidValue, "empty cpu value")
	}
	if strings.HasSuffix(s, "c") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(s, "c"), 64)
		if err != nil {
			return 0, portoerr.New(portoerr.InvalidValue, "invalid cpu value %q", s)
		}
		return v, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, portoerr.New(portoerr.InvalidValue, "invalid cpu value %q", s)
	}
	return v / 100.0, nil
}

func formatCpu(cores float64) string {
	return fmt.Sprintf("%gc", cores)
}

// parseUint64Map parses the "key: value; key: value; ..." map encoding
// (spec.md §6) into a map of size values.
func parseUint64Map(s string) (map[string]uint64, error) {
	out := make(map[string]uint64)
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		k, v, err := splitMapEntry(entry)
		if err != nil {
			return nil, err
		}
		n, err := parseSize(v)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, nil
}

func formatUint64Map(m map[string]uint64) string {
	keys := sortedKeys(m)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", k, m[k]))
	}
	return strings.Join(parts, "; ")
}

func parseIntMap(s string) (map[string]int, error) {
	out := make(map[string]int)
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		k, v, err := splitMapEntry(entry)
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, portoerr.New(portoerr.InvalidValue, "invalid integer %q for key %q", v, k)
		}
		out[k] = n
	}
	return out, nil
}

func formatIntMap(m map[string]int) string {
	keys := sortedKeys(m)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", k, m[k]))
	}
	return strings.Join(parts, "; ")
}

func splitMapEntry(entry string) (key, value string, err error) {
	idx := strings.Index(entry, ":")
	if idx < 0 {
		return "", "", portoerr.New(portoerr.InvalidValue, "malformed map entry %q, expected \"key: value\"", entry)
	}
	return strings.TrimSpace(entry[:idx]), strings.TrimSpace(entry[idx+1:]), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// insertion-stable small maps: simple insertion sort avoids pulling in
	// "sort" for what's typically 1-8 interface names.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// parseList parses a "item; item; ..." list.
func parseList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func formatList(items []string) string {
	return strings.Join(items, "; ")
}
