package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles manages role records. Deleting a role still held by users is
// rejected rather than cascaded, so a role removal can never silently
// deauthorize principals.
type Roles interface {
	ByID(ctx context.Context, id uuid.UUID) (*Role, error)
	GetByCode(ctx context.Context, code string) (*Role, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, payload RoleCreatePayload) (*Role, error)
	Update(ctx context.Context, role *Role) (*Role, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*Role, error)
	List(ctx context.Context, page Pagination) ([]*Role, error)
	ListActive(ctx context.Context, page Pagination) ([]*Role, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type roles struct {
	db *bun.DB
}

var _ Roles = (*roles)(nil)

func NewRolesRepository(db *bun.DB) Roles {
	return &roles{db: db}
}

func (r *roles) ByID(ctx context.Context, id uuid.UUID) (*Role, error) {
	record := &Role{}
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if isNoRows(err) {
			return nil, detailed(ErrRoleNotFound, map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (r *roles) GetByCode(ctx context.Context, code string) (*Role, error) {
	record := &Role{}
	err := r.db.NewSelect().
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

func (r *roles) ExistsByCode(ctx context.Context, code string) (bool, error) {
	return r.db.NewSelect().
		Model((*Role)(nil)).
		Where("?TableAlias.role_code = ?", code).
		Exists(ctx)
}

func (r *roles) ExistsByName(ctx context.Context, name string) (bool, error) {
	return r.db.NewSelect().
		Model((*Role)(nil)).
		Where("?TableAlias.role_name = ?", name).
		Exists(ctx)
}

func (r *roles) Create(ctx context.Context, payload RoleCreatePayload) (*Role, error) {
	if err := payload.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid role payload")
	}

	record := &Role{
		ID:          uuid.New(),
		RoleName:    payload.RoleName,
		RoleCode:    payload.RoleCode,
		Description: payload.Description,
		IsActive:    true,
		Version:     0,
	}
	record.Touch(time.Now())

	if _, err := r.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err, "roles.role_code") || isUniqueViolation(err, "roles.role_name") {
			return nil, detailed(ErrRoleExists, map[string]any{"role_code": payload.RoleCode})
		}
		return nil, err
	}

	return record, nil
}

// Update applies name/code/description changes under the optimistic-lock
// version counter.
func (r *roles) Update(ctx context.Context, role *Role) (*Role, error) {
	res, err := r.db.NewUpdate().
		Model((*Role)(nil)).
		Set("role_name = ?", role.RoleName).
		Set("role_code = ?", role.RoleCode).
		Set("description = ?", role.Description).
		Set("is_active = ?", role.IsActive).
		Set("updated_at = ?", time.Now()).
		Set("version = version + 1").
		Where("?TableAlias.id = ?", role.ID).
		Where("?TableAlias.version = ?", role.Version).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		exists, err := r.db.NewSelect().
			Model((*Role)(nil)).
			Where("?TableAlias.id = ?", role.ID).
			Exists(ctx)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, detailed(ErrConcurrentModification, map[string]any{
				"id":               role.ID.String(),
				"expected_version": role.Version,
			})
		}
		return nil, ErrRoleNotFound
	}

	return r.ByID(ctx, role.ID)
}

func (r *roles) SetActive(ctx context.Context, id uuid.UUID, active bool) (*Role, error) {
	res, err := r.db.NewUpdate().
		Model((*Role)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", time.Now()).
		Set("version = version + 1").
		Where("?TableAlias.id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrRoleNotFound
	}

	return r.ByID(ctx, id)
}

func (r *roles) List(ctx context.Context, page Pagination) ([]*Role, error) {
	return r.list(ctx, page, false)
}

func (r *roles) ListActive(ctx context.Context, page Pagination) ([]*Role, error) {
	return r.list(ctx, page, true)
}

func (r *roles) list(ctx context.Context, page Pagination, activeOnly bool) ([]*Role, error) {
	page = page.Normalize()

	records := []*Role{}
	q := r.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.role_code ASC").
		Offset(page.Offset).
		Limit(page.Limit)

	if activeOnly {
		q = q.Where("?TableAlias.is_active = ?", true)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return records, nil
}

// Delete removes the role and its permission links. It fails while any user
// still holds the role; the caller must revoke those assignments first.
func (r *roles) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		holders, err := tx.NewSelect().
			Model((*UserRole)(nil)).
			Where("?TableAlias.role_id = ?", id).
			Count(ctx)
		if err != nil {
			return err
		}
		if holders > 0 {
			return detailed(ErrRoleInUse, map[string]any{
				"id":    id.String(),
				"users": holders,
			})
		}

		if _, err := tx.NewDelete().
			Model((*RolePermission)(nil)).
			Where("?TableAlias.role_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}

		res, err := tx.NewDelete().
			Model((*Role)(nil)).
			Where("?TableAlias.id = ?", id).
			Exec(ctx)
		if err != nil {
			return err
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrRoleNotFound
		}

		return nil
	})
}
