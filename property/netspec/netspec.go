// Package netspec parses and formats the "net" property's grammar
// (spec.md §4.1), grounded on original_source/src/network.hpp's keyword
// set. Validation here is purely syntactic; physical interface creation
// happens at container start, outside this package's scope (spec.md §1).
package netspec

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is one line's network-description keyword.
type Kind string

const (
	None      Kind = "none"
	Inherited Kind = "inherited"
	Host      Kind = "host"
	Container Kind = "container"
	Macvlan   Kind = "macvlan"
	Ipvlan    Kind = "ipvlan"
	Veth      Kind = "veth"
	L3        Kind = "L3"
	NAT       Kind = "NAT"
	MTU       Kind = "MTU"
	Autoconf  Kind = "autoconf"
	Netns     Kind = "netns"
)

// Spec is one semicolon-separated line of the net property.
type Spec struct {
	Kind Kind

	// Populated depending on Kind; zero-valued fields are simply unused by
	// that kind.
	Iface    string // the name argument carried by most kinds
	Master   string // macvlan/ipvlan/veth's <master>/<bridge>
	Mode     string // macvlan bridge mode, or ipvlan l2/l3
	Mtu      int
	Hw       bool
	Arg      string // container <name>'s name, NAT's optional name, L3's master
}

func (s Spec) String() string {
	switch s.Kind {
	case None, Inherited:
		return string(s.Kind)
	case Autoconf:
		return fmt.Sprintf("autoconf %s", s.Iface)
	case Host:
		if s.Iface == "" {
			return "host"
		}
		return fmt.Sprintf("host %s", s.Iface)
	case Container:
		return fmt.Sprintf("container %s", s.Arg)
	case Macvlan:
		parts := []string{"macvlan", s.Master, s.Iface}
		if s.Mode != "" {
			parts = append(parts, s.Mode)
		}
		if s.Mtu != 0 {
			parts = append(parts, strconv.Itoa(s.Mtu))
		}
		if s.Hw {
			parts = append(parts, "hw")
		}
		return strings.Join(parts, " ")
	case Ipvlan:
		parts := []string{"ipvlan", s.Master, s.Iface}
		if s.Mode != "" {
			parts = append(parts, s.Mode)
		}
		if s.Mtu != 0 {
			parts = append(parts, strconv.Itoa(s.Mtu))
		}
		return strings.Join(parts, " ")
	case Veth:
		parts := []string{"veth", s.Iface, s.Master}
		if s.Mtu != 0 {
			parts = append(parts, strconv.Itoa(s.Mtu))
		}
		if s.Hw {
			parts = append(parts, "hw")
		}
		return strings.Join(parts, " ")
	case L3:
		if s.Arg == "" {
			return fmt.Sprintf("L3 %s", s.Iface)
		}
		return fmt.Sprintf("L3 %s %s", s.Iface, s.Arg)
	case NAT:
		if s.Arg == "" {
			return "NAT"
		}
		return fmt.Sprintf("NAT %s", s.Arg)
	case MTU:
		return fmt.Sprintf("MTU %s %d", s.Iface, s.Mtu)
	case Netns:
		return fmt.Sprintf("netns %s", s.Iface)
	default:
		return ""
	}
}

// Parse splits the whole "net" property value into its semicolon-separated
// lines and parses each.
func Parse(value string) ([]Spec, error) {
	var specs []Spec
	for _, line := range strings.Split(value, ";") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("net: at least one spec line required")
	}
	return specs, nil
}

// Format renders specs back to the wire encoding.
func Format(specs []Spec) string {
	parts := make([]string, 0, len(specs))
	for _, s := range specs {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, "; ")
}

func parseLine(line string) (Spec, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Spec{}, fmt.Errorf("net: empty spec line")
	}
	kw := fields[0]
	args := fields[1:]

	switch kw {
	case "none":
		return Spec{Kind: None}, nil
	case "inherited":
		return Spec{Kind: Inherited}, nil
	case "autoconf":
		if len(args) != 1 {
			return Spec{}, fmt.Errorf("net: autoconf requires <iface>")
		}
		return Spec{Kind: Autoconf, Iface: args[0]}, nil
	case "netns":
		if len(args) != 1 {
			return Spec{}, fmt.Errorf("net: netns requires <name>")
		}
		return Spec{Kind: Netns, Iface: args[0]}, nil
	case "host":
		if len(args) > 1 {
			return Spec{}, fmt.Errorf("net: host takes at most one [iface]")
		}
		s := Spec{Kind: Host}
		if len(args) == 1 {
			s.Iface = args[0]
		}
		return s, nil
	case "container":
		if len(args) != 1 {
			return Spec{}, fmt.Errorf("net: container requires <name>")
		}
		return Spec{Kind: Container, Arg: args[0]}, nil
	case "L3":
		if len(args) < 1 || len(args) > 2 {
			return Spec{}, fmt.Errorf("net: L3 requires <name> [master]")
		}
		s := Spec{Kind: L3, Iface: args[0]}
		if len(args) == 2 {
			s.Arg = args[1]
		}
		return s, nil
	case "NAT":
		if len(args) > 1 {
			return Spec{}, fmt.Errorf("net: NAT takes at most one [name]")
		}
		s := Spec{Kind: NAT}
		if len(args) == 1 {
			s.Arg = args[0]
		}
		return s, nil
	case "MTU":
		if len(args) != 2 {
			return Spec{}, fmt.Errorf("net: MTU requires <name> <mtu>")
		}
		mtu, err := strconv.Atoi(args[1])
		if err != nil {
			return Spec{}, fmt.Errorf("net: invalid MTU value %q", args[1])
		}
		return Spec{Kind: MTU, Iface: args[0], Mtu: mtu}, nil
	case "macvlan":
		if len(args) < 2 {
			return Spec{}, fmt.Errorf("net: macvlan requires <master> <name>")
		}
		s := Spec{Kind: Macvlan, Master: args[0], Iface: args[1]}
		rest := args[2:]
		for _, a := range rest {
			switch a {
			case "bridge", "private", "vepa", "passthru":
				s.Mode = a
			case "hw":
				s.Hw = true
			default:
				mtu, err := strconv.Atoi(a)
				if err != nil {
					return Spec{}, fmt.Errorf("net: macvlan: unrecognized argument %q", a)
				}
				s.Mtu = mtu
			}
		}
		return s, nil
	case "ipvlan":
		if len(args) < 2 {
			return Spec{}, fmt.Errorf("net: ipvlan requires <master> <name>")
		}
		s := Spec{Kind: Ipvlan, Master: args[0], Iface: args[1]}
		for _, a := range args[2:] {
			switch a {
			case "l2", "l3":
				s.Mode = a
			default:
				mtu, err := strconv.Atoi(a)
				if err != nil {
					return Spec{}, fmt.Errorf("net: ipvlan: unrecognized argument %q", a)
				}
				s.Mtu = mtu
			}
		}
		return s, nil
	case "veth":
		if len(args) < 2 {
			return Spec{}, fmt.Errorf("net: veth requires <name> <bridge>")
		}
		s := Spec{Kind: Veth, Iface: args[0], Master: args[1]}
		for _, a := range args[2:] {
			if a == "hw" {
				s.Hw = true
				continue
			}
			mtu, err := strconv.Atoi(a)
			if err != nil {
				return Spec{}, fmt.Errorf("net: veth: unrecognized argument %q", a)
			}
			s.Mtu = mtu
		}
		return s, nil
	default:
		return Spec{}, fmt.Errorf("net: unknown keyword %q", kw)
	}
}
