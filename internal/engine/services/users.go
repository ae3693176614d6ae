// Package services contains the engine's business logic: resolving users,
// binding and releasing license slots, and running integrity sweeps.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/slotkeeper/internal/common"
	"github.com/dmitrijs2005/slotkeeper/internal/dbx"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/models"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/repomanager"
)

// UserResolver finds a user by email or creates a minimal one so that
// licenses can be anchored to a user id.
type UserResolver struct {
	repomanager repomanager.RepositoryManager
	now         func() time.Time
}

// NewUserResolver constructs a UserResolver. A nil now defaults to time.Now.
func NewUserResolver(m repomanager.RepositoryManager, now func() time.Time) *UserResolver {
	if now == nil {
		now = time.Now
	}
	return &UserResolver{repomanager: m, now: now}
}

// ResolveOrCreate returns the id of the user with exactly this email,
// creating the user when absent. db may be a transaction handle, in which
// case the insert becomes part of it.
func (r *UserResolver) ResolveOrCreate(ctx context.Context, db dbx.DBTX, email string) (int64, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return 0, common.NewValidationError("email", "required")
	}

	repo := r.repomanager.Users(db)

	u, err := repo.GetByEmail(ctx, email)
	if err == nil {
		return u.ID, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return 0, common.WrapStore("resolve user", err)
	}

	created, err := repo.Create(ctx, &models.User{
		Email:     email,
		Name:      localPart(email),
		Role:      common.DefaultUserRole,
		Status:    common.DefaultUserStatus,
		CreatedAt: r.now().UTC(),
	})
	switch {
	case err == nil:
		return created.ID, nil
	case errors.Is(err, common.ErrAlreadyExists):
		// lost the race to a concurrent creator; its row is visible now
		u, err = repo.GetByEmail(ctx, email)
		if err != nil {
			return 0, common.WrapStore("resolve user", err)
		}
		return u.ID, nil
	default:
		return 0, common.WrapStore("create user", err)
	}
}

func localPart(email string) string {
	if i := strings.LastIndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
