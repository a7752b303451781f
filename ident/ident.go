// Package ident resolves user/group names to numeric ids, enumerates
// supplementary groups, and evaluates the "may principal A control
// principal B" predicate the property engine uses to authorise OwnerCred
// changes (spec.md §4.5).
package ident

import (
	"os/user"
	"strconv"

	"github.com/ginta1337/porto/domain"
)

// LookupUser resolves a username (or a numeric uid string) to a uid.
func LookupUser(name string) (uint32, error) {
	if u, err := user.Lookup(name); err == nil {
		return parseID(u.Uid)
	}
	if uid, err := strconv.ParseUint(name, 10, 32); err == nil {
		return uint32(uid), nil
	}
	return 0, &user.UnknownUserError{}
}

// LookupGroup resolves a group name (or a numeric gid string) to a gid.
func LookupGroup(name string) (uint32, error) {
	if g, err := user.LookupGroup(name); err == nil {
		return parseID(g.Gid)
	}
	if gid, err := strconv.ParseUint(name, 10, 32); err == nil {
		return uint32(gid), nil
	}
	return 0, user.UnknownGroupError(name)
}

// UsernameFor is the inverse of LookupUser, used when formatting the user
// property back to its wire form.
func UsernameFor(uid uint32) string {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return strconv.FormatUint(uint64(uid), 10)
	}
	return u.Username
}

// GroupnameFor is the inverse of LookupGroup.
func GroupnameFor(gid uint32) string {
	g, err := user.LookupGroupId(strconv.FormatUint(uint64(gid), 10))
	if err != nil {
		return strconv.FormatUint(uint64(gid), 10)
	}
	return g.Name
}

// SupplementaryGroups enumerates every group a username belongs to,
// primary group included.
func SupplementaryGroups(username string) ([]uint32, error) {
	u, err := user.Lookup(username)
	if err != nil {
		return nil, err
	}
	gids, err := u.GroupIds()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, len(gids))
	for _, g := range gids {
		id, err := parseID(g)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// Resolve builds a domain.Credential from a username/groupname pair, the
// way OwnerCred and TaskCred are populated from the "user"/"group"
// properties.
func Resolve(username, groupname string) (domain.Credential, error) {
	uid, err := LookupUser(username)
	if err != nil {
		return domain.Credential{}, err
	}
	gid, err := LookupGroup(groupname)
	if err != nil {
		return domain.Credential{}, err
	}
	groups, err := SupplementaryGroups(username)
	if err != nil {
		groups = []uint32{gid}
	}
	return domain.Credential{Uid: uid, Gid: gid, Groups: groups}, nil
}

// CanControl reports whether the acting principal may change or operate on
// a container owned by target (spec.md §4.5): true iff acting is root, is
// the same uid as target, or is a member of target's primary group.
func CanControl(acting, target domain.Credential) bool {
	if acting.Uid == 0 {
		return true
	}
	if acting.Uid == target.Uid {
		return true
	}
	for _, g := range acting.Groups {
		if g == target.Gid {
			return true
		}
	}
	return false
}

func parseID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
