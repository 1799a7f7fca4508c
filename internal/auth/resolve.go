package auth

import "context"

// EffectivePermissions computes the authorization oracle for a user: the
// union of permissions reached through the user's role and permissions
// granted directly, flattened into a presence map. A user with no grants
// resolves to an empty map, not an error. A dangling role id contributes
// nothing to the role side.
func (s *Service) EffectivePermissions(ctx context.Context, userID string) (map[string]bool, error) {
	perms := s.store.Permissions()
	viaRole, err := perms.NamesForUserRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	direct, err := perms.NamesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return mergePermissions(viaRole, direct), nil
}

func mergePermissions(lists ...[]string) map[string]bool {
	out := make(map[string]bool)
	for _, list := range lists {
		for _, name := range list {
			out[name] = true
		}
	}
	return out
}
