package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Permissions manages permission records. Like roles, a permission still
// carried by roles cannot be deleted.
type Permissions interface {
	ByID(ctx context.Context, id uuid.UUID) (*Permission, error)
	GetByCode(ctx context.Context, code string) (*Permission, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, payload PermissionCreatePayload) (*Permission, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*Permission, error)
	List(ctx context.Context, page Pagination) ([]*Permission, error)
	ListByResource(ctx context.Context, resource string) ([]*Permission, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type permissions struct {
	db *bun.DB
}

var _ Permissions = (*permissions)(nil)

func NewPermissionsRepository(db *bun.DB) Permissions {
	return &permissions{db: db}
}

func (p *permissions) ByID(ctx context.Context, id uuid.UUID) (*Permission, error) {
	record := &Permission{}
	err := p.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if isNoRows(err) {
			return nil, detailed(ErrPermissionNotFound, map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (p *permissions) GetByCode(ctx context.Context, code string) (*Permission, error) {
	record := &Permission{}
	err := p.db.NewSelect().
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

func (p *permissions) ExistsByCode(ctx context.Context, code string) (bool, error) {
	return p.db.NewSelect().
		Model((*Permission)(nil)).
		Where("?TableAlias.permission_code = ?", code).
		Exists(ctx)
}

func (p *permissions) Create(ctx context.Context, payload PermissionCreatePayload) (*Permission, error) {
	if err := payload.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid permission payload")
	}

	record := &Permission{
		ID:             uuid.New(),
		PermissionName: payload.PermissionName,
		PermissionCode: payload.PermissionCode,
		ResourceName:   payload.ResourceName,
		ActionType:     payload.ActionType,
		IsActive:       true,
		Version:        0,
	}
	record.Touch(time.Now())

	if _, err := p.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err, "permissions.permission_code") {
			return nil, detailed(ErrPermissionExists, map[string]any{
				"permission_code": payload.PermissionCode,
			})
		}
		return nil, err
	}

	return record, nil
}

func (p *permissions) SetActive(ctx context.Context, id uuid.UUID, active bool) (*Permission, error) {
	res, err := p.db.NewUpdate().
		Model((*Permission)(nil)).
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
		return nil, ErrPermissionNotFound
	}

	return p.ByID(ctx, id)
}

func (p *permissions) List(ctx context.Context, page Pagination) ([]*Permission, error) {
	page = page.Normalize()

	records := []*Permission{}
	err := p.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.permission_code ASC").
		Offset(page.Offset).
		Limit(page.Limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (p *permissions) ListByResource(ctx context.Context, resource string) ([]*Permission, error) {
	records := []*Permission{}
	err := p.db.NewSelect().
		Model(&records).
		Where("?TableAlias.resource_name = ?", resource).
		OrderExpr("?TableAlias.permission_code ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Delete removes the permission. It fails while any role still carries it.
func (p *permissions) Delete(ctx context.Context, id uuid.UUID) error {
	return p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		carriers, err := tx.NewSelect().
			Model((*RolePermission)(nil)).
			Where("?TableAlias.permission_id = ?", id).
			Count(ctx)
		if err != nil {
			return err
		}
		if carriers > 0 {
			return detailed(ErrPermissionInUse, map[string]any{
				"id":    id.String(),
				"roles": carriers,
			})
		}

		res, err := tx.NewDelete().
			Model((*Permission)(nil)).
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
			return ErrPermissionNotFound
		}

		return nil
	})
}
