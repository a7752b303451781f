package implementations

import (
	"github.com/ginta1337/porto/domain"
	"github.com/ginta1337/porto/portoerr"
)

// toPortoErr converts a capability Result into the client-facing EError
// taxonomy (spec.md §7): capability failures surface as InvalidValue when
// they're a rejection of the requested value (the common case — a cgroup
// write refused because the value is out of bounds for the running
// workload) and preserve the errno when one was available.
func toPortoErr(context string, r domain.Result) error {
	if r.Ok() {
		return nil
	}
	if r.Errno != 0 {
		return portoerr.WithErrno(portoerr.InvalidValue, r.Errno, "%s: %v", context, r.Err)
	}
	return portoerr.New(portoerr.InvalidValue, "%s: %v", context, r.Err)
}

func isLive(s domain.State) bool {
	return s == domain.StateRunning || s == domain.StateMeta || s == domain.StatePaused
}
