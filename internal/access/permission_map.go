package access

// PermissionMap is the effective permission view of a subject. Modules holds
// explicit per-module grants; Default, when set, answers every module that has
// no explicit entry.
type PermissionMap struct {
	Default *Grant
	Modules map[string]Grant
}

// Lookup returns the grant for module and whether any rule matched.
func (m PermissionMap) Lookup(module string) (Grant, bool) {
	if g, ok := m.Modules[NormalizeModule(module)]; ok {
		return g, true
	}
	if m.Default != nil {
		return *m.Default, true
	}
	return Grant{}, false
}

// Allows reports whether the map permits action on module.
func (m PermissionMap) Allows(module string, action Action) bool {
	g, _ := m.Lookup(module)
	return g.Allows(action)
}

// Aggregate OR-combines per-module grants. The result does not depend on the
// order of the input maps.
func Aggregate(sets ...map[string]Grant) map[string]Grant {
	out := make(map[string]Grant)
	for _, set := range sets {
		for module, g := range set {
			key := NormalizeModule(module)
			out[key] = out[key].Or(g)
		}
	}
	return out
}
