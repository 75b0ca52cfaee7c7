package identity

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// Resolver answers role and permission questions in a fixed number of
// store round-trips. Listing roles for N users is one query, computing a
// user's effective permission set is at most two, and membership checks
// are a single query each.
type Resolver struct {
	source AssociationSource
	logger Logger
}

var _ RoleSource = (*Resolver)(nil)

type ResolverOption func(*Resolver)

func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewResolver(source AssociationSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		source: source,
		logger: defLogger{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// RoleCodesForUsers resolves the active role codes of every requested user
// with a single lookup. Every requested ID gets an entry in the result,
// so a user with no roles maps to an empty slice rather than a missing
// key. Codes are sorted ascending.
func (r *Resolver) RoleCodesForUsers(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	unique := dedupeIDs(userIDs)

	result := make(map[uuid.UUID][]string, len(unique))
	for _, id := range unique {
		result[id] = []string{}
	}

	if len(unique) == 0 {
		return result, nil
	}

	rows, err := r.source.ActiveRoleCodesByUserIDs(ctx, unique)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("resolved role codes for %d users in one lookup", len(unique))

	for _, row := range rows {
		result[row.UserID] = append(result[row.UserID], row.RoleCode)
	}

	for _, codes := range result {
		sort.Strings(codes)
	}

	return result, nil
}

func (r *Resolver) RoleCodesForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	resolved, err := r.RoleCodesForUsers(ctx, []uuid.UUID{userID})
	if err != nil {
		return nil, err
	}
	return resolved[userID], nil
}

func (r *Resolver) PermissionCodesForRole(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	codes, err := r.source.ActivePermissionCodesByRoleID(ctx, roleID)
	if err != nil {
		return nil, err
	}

	sort.Strings(codes)
	return codes, nil
}

// EffectivePermissions computes the union of permission codes granted
// through the user's active roles: one query for the role IDs and, when
// the user holds any, one more for the deduplicated codes.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]string, error) {
	roleIDs, err := r.source.ActiveRoleIDsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(roleIDs) == 0 {
		return []string{}, nil
	}

	codes, err := r.source.ActivePermissionCodesByRoleIDs(ctx, roleIDs)
	if err != nil {
		return nil, err
	}

	sort.Strings(codes)
	return codes, nil
}

func (r *Resolver) HasPermission(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	return r.source.UserHasPermissionCode(ctx, userID, code)
}

// HasAnyPermission reports whether the user holds at least one of the
// given codes. An empty code list grants nothing.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID uuid.UUID, codes []string) (bool, error) {
	if len(codes) == 0 {
		return false, nil
	}
	return r.source.UserHasAnyPermissionCode(ctx, userID, codes)
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
