package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRoleCode is one row of the batched user->role-code lookup.
type UserRoleCode struct {
	UserID   uuid.UUID `bun:"user_id"`
	RoleCode string    `bun:"role_code"`
}

// AssociationSource is the read side the permission resolver batches over.
// Every method is a single store round-trip regardless of input size.
type AssociationSource interface {
	ActiveRoleCodesByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]UserRoleCode, error)
	ActiveRoleIDsByUserID(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	ActivePermissionCodesByRoleID(ctx context.Context, roleID uuid.UUID) ([]string, error)
	ActivePermissionCodesByRoleIDs(ctx context.Context, roleIDs []uuid.UUID) ([]string, error)
	UserHasPermissionCode(ctx context.Context, userID uuid.UUID, code string) (bool, error)
	UserHasAnyPermissionCode(ctx context.Context, userID uuid.UUID, codes []string) (bool, error)
}

// Associations manages the user<->role and role<->permission links.
type Associations interface {
	AssociationSource

	AssignRole(ctx context.Context, userID uuid.UUID, roleCode string) error
	RevokeRole(ctx context.Context, userID uuid.UUID, roleCode string) error
	UserHasRole(ctx context.Context, userID uuid.UUID, roleCode string) (bool, error)
	CountUsersForRole(ctx context.Context, roleID uuid.UUID) (int, error)
	CountRolesForUser(ctx context.Context, userID uuid.UUID) (int, error)

	AssignPermission(ctx context.Context, roleID uuid.UUID, permissionCode string) error
	RevokePermission(ctx context.Context, roleID uuid.UUID, permissionCode string) error
	RoleHasPermission(ctx context.Context, roleID uuid.UUID, permissionCode string) (bool, error)
}

type associations struct {
	db *bun.DB
}

var _ Associations = (*associations)(nil)

func NewAssociationsRepository(db *bun.DB) Associations {
	return &associations{db: db}
}

// AssignRole links the user to the role named by roleCode. The composite
// primary key serializes concurrent assigns: one wins, the rest surface
// ErrAlreadyAssigned.
func (a *associations) AssignRole(ctx context.Context, userID uuid.UUID, roleCode string) error {
	role, err := a.roleByCode(ctx, roleCode)
	if err != nil {
		return err
	}

	if err := a.ensureUserExists(ctx, userID); err != nil {
		return err
	}

	link := &UserRole{
		UserID:    userID,
		RoleID:    role.ID,
		CreatedAt: time.Now(),
	}

	if _, err := a.db.NewInsert().Model(link).Exec(ctx); err != nil {
		if isUniqueViolation(err, "user_roles.user_id") {
			return detailed(ErrAlreadyAssigned, map[string]any{
				"user_id":   userID.String(),
				"role_code": roleCode,
			})
		}
		return err
	}

	return nil
}

func (a *associations) RevokeRole(ctx context.Context, userID uuid.UUID, roleCode string) error {
	role, err := a.roleByCode(ctx, roleCode)
	if err != nil {
		return err
	}

	res, err := a.db.NewDelete().
		Model((*UserRole)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.role_id = ?", role.ID).
		Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return detailed(ErrNotAssigned, map[string]any{
			"user_id":   userID.String(),
			"role_code": roleCode,
		})
	}

	return nil
}

func (a *associations) UserHasRole(ctx context.Context, userID uuid.UUID, roleCode string) (bool, error) {
	return a.db.NewSelect().
		ColumnExpr("1").
		TableExpr("user_roles AS url").
		Join("JOIN roles AS rol ON rol.id = url.role_id").
		Where("url.user_id = ?", userID).
		Where("rol.role_code = ?", roleCode).
		Exists(ctx)
}

func (a *associations) CountUsersForRole(ctx context.Context, roleID uuid.UUID) (int, error) {
	return a.db.NewSelect().
		Model((*UserRole)(nil)).
		Where("?TableAlias.role_id = ?", roleID).
		Count(ctx)
}

func (a *associations) CountRolesForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	return a.db.NewSelect().
		Model((*UserRole)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Count(ctx)
}

func (a *associations) AssignPermission(ctx context.Context, roleID uuid.UUID, permissionCode string) error {
	permission, err := a.permissionByCode(ctx, permissionCode)
	if err != nil {
		return err
	}

	if err := a.ensureRoleExists(ctx, roleID); err != nil {
		return err
	}

	link := &RolePermission{
		RoleID:       roleID,
		PermissionID: permission.ID,
		CreatedAt:    time.Now(),
	}

	if _, err := a.db.NewInsert().Model(link).Exec(ctx); err != nil {
		if isUniqueViolation(err, "role_permissions.role_id") {
			return detailed(ErrAlreadyAssigned, map[string]any{
				"role_id":         roleID.String(),
				"permission_code": permissionCode,
			})
		}
		return err
	}

	return nil
}

func (a *associations) RevokePermission(ctx context.Context, roleID uuid.UUID, permissionCode string) error {
	permission, err := a.permissionByCode(ctx, permissionCode)
	if err != nil {
		return err
	}

	res, err := a.db.NewDelete().
		Model((*RolePermission)(nil)).
		Where("?TableAlias.role_id = ?", roleID).
		Where("?TableAlias.permission_id = ?", permission.ID).
		Exec(ctx)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return detailed(ErrNotAssigned, map[string]any{
			"role_id":         roleID.String(),
			"permission_code": permissionCode,
		})
	}

	return nil
}

func (a *associations) RoleHasPermission(ctx context.Context, roleID uuid.UUID, permissionCode string) (bool, error) {
	return a.db.NewSelect().
		ColumnExpr("1").
		TableExpr("role_permissions AS rpr").
		Join("JOIN permissions AS per ON per.id = rpr.permission_id").
		Where("rpr.role_id = ?", roleID).
		Where("per.permission_code = ?", permissionCode).
		Exists(ctx)
}

// ActiveRoleCodesByUserIDs is the anti-fan-out query: one IN lookup across
// all requested users joined against active roles.
func (a *associations) ActiveRoleCodesByUserIDs(ctx context.Context, userIDs []uuid.UUID) ([]UserRoleCode, error) {
	if len(userIDs) == 0 {
		return []UserRoleCode{}, nil
	}

	rows := []UserRoleCode{}
	err := a.db.NewSelect().
		ColumnExpr("url.user_id AS user_id").
		ColumnExpr("rol.role_code AS role_code").
		TableExpr("user_roles AS url").
		Join("JOIN roles AS rol ON rol.id = url.role_id").
		Where("url.user_id IN (?)", bun.In(userIDs)).
		Where("rol.is_active = ?", true).
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	return rows, nil
}

func (a *associations) ActiveRoleIDsByUserID(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := a.db.NewSelect().
		ColumnExpr("url.role_id").
		TableExpr("user_roles AS url").
		Join("JOIN roles AS rol ON rol.id = url.role_id").
		Where("url.user_id = ?", userID).
		Where("rol.is_active = ?", true).
		Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}

	return ids, nil
}

func (a *associations) ActivePermissionCodesByRoleID(ctx context.Context, roleID uuid.UUID) ([]string, error) {
	return a.permissionCodes(ctx, []uuid.UUID{roleID})
}

func (a *associations) ActivePermissionCodesByRoleIDs(ctx context.Context, roleIDs []uuid.UUID) ([]string, error) {
	if len(roleIDs) == 0 {
		return []string{}, nil
	}
	return a.permissionCodes(ctx, roleIDs)
}

func (a *associations) UserHasPermissionCode(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	return a.userPermissionQuery(userID).
		Where("per.permission_code = ?", code).
		Exists(ctx)
}

func (a *associations) UserHasAnyPermissionCode(ctx context.Context, userID uuid.UUID, codes []string) (bool, error) {
	if len(codes) == 0 {
		return false, nil
	}

	return a.userPermissionQuery(userID).
		Where("per.permission_code IN (?)", bun.In(codes)).
		Exists(ctx)
}

func (a *associations) permissionCodes(ctx context.Context, roleIDs []uuid.UUID) ([]string, error) {
	codes := []string{}
	err := a.db.NewSelect().
		ColumnExpr("DISTINCT per.permission_code").
		TableExpr("role_permissions AS rpr").
		Join("JOIN permissions AS per ON per.id = rpr.permission_id").
		Where("rpr.role_id IN (?)", bun.In(roleIDs)).
		Where("per.is_active = ?", true).
		Scan(ctx, &codes)
	if err != nil {
		return nil, err
	}

	return codes, nil
}

func (a *associations) userPermissionQuery(userID uuid.UUID) *bun.SelectQuery {
	return a.db.NewSelect().
		ColumnExpr("1").
		TableExpr("user_roles AS url").
		Join("JOIN roles AS rol ON rol.id = url.role_id").
		Join("JOIN role_permissions AS rpr ON rpr.role_id = rol.id").
		Join("JOIN permissions AS per ON per.id = rpr.permission_id").
		Where("url.user_id = ?", userID).
		Where("rol.is_active = ?", true).
		Where("per.is_active = ?", true)
}

func (a *associations) roleByCode(ctx context.Context, code string) (*Role, error) {
	record := &Role{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.role_code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, detailed(ErrRoleNotFound, map[string]any{"role_code": code})
		}
		return nil, err
	}

	return record, nil
}

func (a *associations) permissionByCode(ctx context.Context, code string) (*Permission, error) {
	record := &Permission{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.permission_code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, detailed(ErrPermissionNotFound, map[string]any{"permission_code": code})
		}
		return nil, err
	}

	return record, nil
}

func (a *associations) ensureUserExists(ctx context.Context, userID uuid.UUID) error {
	exists, err := a.db.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.id = ?", userID).
		Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return detailed(ErrUserNotFound, map[string]any{"id": userID.String()})
	}
	return nil
}

func (a *associations) ensureRoleExists(ctx context.Context, roleID uuid.UUID) error {
	exists, err := a.db.NewSelect().
		Model((*Role)(nil)).
		Where("?TableAlias.id = ?", roleID).
		Exists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		return detailed(ErrRoleNotFound, map[string]any{"id": roleID.String()})
	}
	return nil
}
