package core

import (
	"context"
	"errors"

	"github.com/parlorchat/parlor/internal/domain"
)

// ErrUserNotFound means the principal authenticated at the transport
// level but no identity record backs it. Terminal for that connection.
var ErrUserNotFound = errors.New("user not found")

// IdentityResolver is the external source of truth for identity.
// The registry only caches what it returns.
type IdentityResolver interface {
	FindByID(ctx context.Context, id domain.UserID) (*domain.User, error)
}
