package auth

import "sort"

// grantDiff computes the minimal direct-grant changes that move a user to
// the desired permission state under a target role.
//
// desired maps permission name to the requested flag. Names outside catalog
// are dropped. rolePerms holds the names granted by the target role: they
// are never stored as direct grants, and any current direct grant the role
// now covers is scheduled for removal. current holds the user's existing
// direct grants.
//
// Applying the returned changes twice is a no-op: once current matches the
// desired state both slices come back empty.
func grantDiff(desired map[string]bool, catalog, rolePerms, current map[string]struct{}) (toAdd, toRemove []string) {
	for name, granted := range desired {
		if _, ok := catalog[name]; !ok {
			continue
		}
		if _, ok := rolePerms[name]; ok {
			continue
		}
		_, held := current[name]
		switch {
		case granted && !held:
			toAdd = append(toAdd, name)
		case !granted && held:
			toRemove = append(toRemove, name)
		}
	}
	for name := range current {
		if _, ok := rolePerms[name]; ok {
			toRemove = append(toRemove, name)
		}
	}
	sort.Strings(toAdd)
	sort.Strings(toRemove)
	return toAdd, toRemove
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
