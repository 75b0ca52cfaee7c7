package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the credential store: user records plus the cascade delete that
// removes the user's own role links.
type Users interface {
	repository.Repository[*User]

	ByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByUsernameOrEmail(ctx context.Context, identifier string) (*User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	UpdateProfile(ctx context.Context, id uuid.UUID, payload UpdateUserPayload) (*User, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*User, error)
	ListPage(ctx context.Context, page Pagination) ([]*User, error)

	DeleteCascade(ctx context.Context, id uuid.UUID) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
	_ UserStore                    = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) ByID(ctx context.Context, id uuid.UUID) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if isNoRows(err) {
			return nil, detailed(ErrUserNotFound, map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.getByColumn(ctx, "username", username)
}

func (a *users) GetByUsernameOrEmail(ctx context.Context, identifier string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.username = ? OR ?TableAlias.email = ?", identifier, identifier).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if isNoRows(err) {
			return nil, detailed(ErrUserNotFound, map[string]any{"identifier": identifier})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return a.db.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.username = ?", username).
		Exists(ctx)
}

func (a *users) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return a.db.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.email = ?", email).
		Exists(ctx)
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)
	return a.Repository.CreateTx(ctx, tx, user)
}

// UpdateProfile applies the payload under optimistic concurrency: the update
// only lands when the stored version still equals payload.Version.
func (a *users) UpdateProfile(ctx context.Context, id uuid.UUID, payload UpdateUserPayload) (*User, error) {
	now := time.Now()

	q := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("first_name = ?", payload.FirstName).
		Set("last_name = ?", payload.LastName).
		Set("updated_at = ?", now).
		Set("version = version + 1").
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.version = ?", payload.Version)

	if payload.Email != "" {
		q = q.Set("email = ?", payload.Email)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		if isUniqueViolation(err, "users.email") {
			return nil, ErrEmailExists
		}
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		exists, err := a.db.NewSelect().
			Model((*User)(nil)).
			Where("?TableAlias.id = ?", id).
			Exists(ctx)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, detailed(ErrConcurrentModification, map[string]any{
				"id":               id.String(),
				"expected_version": payload.Version,
			})
		}
		return nil, ErrUserNotFound
	}

	return a.ByID(ctx, id)
}

func (a *users) SetActive(ctx context.Context, id uuid.UUID, active bool) (*User, error) {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
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
		return nil, ErrUserNotFound
	}

	return a.ByID(ctx, id)
}

// ListPage pages through users ordered by username; the embedded repository's
// criteria-based List stays available for ad hoc queries.
func (a *users) ListPage(ctx context.Context, page Pagination) ([]*User, error) {
	page = page.Normalize()

	records := []*User{}
	err := a.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.username ASC").
		Offset(page.Offset).
		Limit(page.Limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	return records, nil
}

// DeleteCascade removes the user and its own role links in one transaction.
// The links are safe to cascade since nothing else depends on them.
func (a *users) DeleteCascade(ctx context.Context, id uuid.UUID) error {
	return a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*UserRole)(nil)).
			Where("?TableAlias.user_id = ?", id).
			Exec(ctx); err != nil {
			return err
		}

		res, err := tx.NewDelete().
			Model((*User)(nil)).
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
			return ErrUserNotFound
		}

		return nil
	})
}

func (a *users) getByColumn(ctx context.Context, column, value string) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if isNoRows(err) {
			return nil, detailed(ErrUserNotFound, map[string]any{column: value})
		}
		return nil, err
	}

	return record, nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	record.Touch(time.Now())
}
