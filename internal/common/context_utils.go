package common

import (
	"context"
	"strconv"

	"dentalcrm/internal/models"

	"github.com/google/uuid"
)

type contextKey string

const identityKey contextKey = "identity"

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Identity is the verified caller, taken only from a token the server signed.
// Tenant scoping must use OrganizationID from here and never from request input.
type Identity struct {
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           models.Role
}

func (i Identity) HasRole(roles ...models.Role) bool {
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}

func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext reports false when the request did not pass the auth middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// ParsePagination reads limit/offset query values, falling back to defaults on
// anything unparsable and capping limit at MaxPageSize.
func ParsePagination(limitStr, offsetStr string) (limit, offset int) {
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	offset, err = strconv.Atoi(offsetStr)
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
