// Package capability parses, validates and formats the porto Capability
// property (spec.md §4.1): a semicolon-separated list of uppercase, bare
// capability names (no "CAP_" prefix). It is grounded on
// github.com/syndtr/gocapability/capability, the real upstream the
// teacher's vendored nestybox-libs/capability fork derives from.
package capability

import (
	"sort"
	"strings"

	gocap "github.com/syndtr/gocapability/capability"
)

// Set is an immutable bitmask of Linux capabilities.
type Set struct {
	bits map[gocap.Cap]struct{}
}

// Empty is the capability set with nothing granted.
var Empty = Set{}

// byName indexes every capability gocapability knows about by its bare,
// upper-cased name (e.g. "NET_ADMIN").
var byName = func() map[string]gocap.Cap {
	m := make(map[string]gocap.Cap)
	for _, c := range gocap.List() {
		m[strings.ToUpper(c.String())] = c
	}
	return m
}()

// lastCap is the highest capability number this kernel reports supporting.
// gocapability resolves this once at init time by reading
// /proc/sys/kernel/cap_last_cap; on a kernel too old to expose that file it
// falls back to its compiled-in table, which is also the right fallback
// here since Set.Parse only needs a ceiling to reject unknown future names.
var lastCap = gocap.CAP_LAST_CAP

// Parse validates and builds a Set from the wire encoding: a
// semicolon-separated list of bare capability names.
func Parse(s string) (Set, error) {
	out := Set{bits: make(map[gocap.Cap]struct{})}
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, tok := range strings.Split(s, ";") {
		name := strings.ToUpper(strings.TrimSpace(tok))
		if name == "" {
			continue
		}
		c, ok := byName[name]
		if !ok {
			return Set{}, newInvalidCap(name)
		}
		if c > lastCap {
			return Set{}, newUnsupportedCap(name)
		}
		out.bits[c] = struct{}{}
	}
	return out, nil
}

// Format renders the set back to the wire encoding, sorted for a stable
// round-trip (Get(Set(Get())) idempotence, spec.md §8).
func (s Set) Format() string {
	names := make([]string, 0, len(s.bits))
	for c := range s.bits {
		names = append(names, strings.ToUpper(c.String()))
	}
	sort.Strings(names)
	return strings.Join(names, "; ")
}

// Has reports whether name (bare, case-insensitive) is in the set.
func (s Set) Has(name string) bool {
	c, ok := byName[strings.ToUpper(name)]
	if !ok {
		return false
	}
	_, has := s.bits[c]
	return has
}

// Len reports the number of granted capabilities.
func (s Set) Len() int { return len(s.bits) }

// All returns the set of every capability this kernel supports
// (CAPABILITIES=AllCaps back-fill, spec.md §4.1).
func All() Set {
	out := Set{bits: make(map[gocap.Cap]struct{})}
	for _, c := range gocap.List() {
		if c <= lastCap {
			out.bits[c] = struct{}{}
		}
	}
	return out
}

// PermittedCaps is the restricted capability set implicitly granted to a
// VirtMode=OS container: switching virt_mode to os back-fills it whatever
// the owner, and changing the owner back-fills it for a non-root owner
// where a root owner gets the full AllCaps grant (spec.md §3). It mirrors the bounding set
// most container runtimes default new containers to (chown, setuid/setgid,
// net_bind_service, and the like) rather than inventing a bespoke list.
var PermittedCaps = mustParse(
	"CHOWN; DAC_OVERRIDE; FOWNER; FSETID; KILL; SETGID; SETUID; SETPCAP; " +
		"NET_BIND_SERVICE; NET_RAW; SYS_CHROOT; MKNOD; AUDIT_WRITE; SETFCAP")

func mustParse(s string) Set {
	set, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return set
}

func newInvalidCap(name string) error {
	return &ParseError{Name: name, Unsupported: false}
}

func newUnsupportedCap(name string) error {
	return &ParseError{Name: name, Unsupported: true}
}

// ParseError is returned when a capability name is unknown, or known but
// above this kernel's last supported capability number.
type ParseError struct {
	Name        string
	Unsupported bool
}

func (e *ParseError) Error() string {
	if e.Unsupported {
		return "capability " + e.Name + " not supported by this kernel"
	}
	return "unknown capability " + e.Name
}
