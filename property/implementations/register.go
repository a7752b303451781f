// Register wires every concrete handler into a fresh property.Registry, in
// the style of nestybox-sysbox-fs/handler/handlerDB.go's DefaultHandlers
// list: one call per concern, registration order fixed at boot.
package implementations

import "github.com/ginta1337/porto/property"

func Register(reg *property.Registry) {
	registerLifecycle(reg)
	registerRuntime(reg)
	registerIdentity(reg)
	registerResources(reg)
	registerNetwork(reg)
}
