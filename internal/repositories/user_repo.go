package repositories

import (
	"context"
	"errors"
	"fmt"

	"dentalcrm/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (*models.User, error)
	ListByOrganization(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*models.User, error)
}

const (
	selectUserByEmailQuery = `
		SELECT id, organization_id, email, password_hash, first_name, last_name, role, created_at
		FROM users
		WHERE email = $1
	`
	existsUserByEmailQuery = `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`
	selectUserByIDQuery    = `
		SELECT id, organization_id, email, first_name, last_name, role, created_at
		FROM users
		WHERE organization_id = $1 AND id = $2
	`
	listUsersQuery = `
		SELECT id, organization_id, email, first_name, last_name, role, created_at
		FROM users
		WHERE organization_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3
	`
	insertUserQuery = `
		INSERT INTO users (id, organization_id, email, password_hash, first_name, last_name, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`
)

type userRepo struct {
	db Querier
}

func NewUserRepo(db Querier) UserRepository {
	return &userRepo{db: db}
}

// GetByEmail is the only query that loads the password hash.
func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	var role string
	err := r.db.QueryRow(ctx, selectUserByEmailQuery, email).
		Scan(&user.ID, &user.OrganizationID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	user.Role = models.Role(role)
	return user, nil
}

func (r *userRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, existsUserByEmailQuery, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check email uniqueness: %w", err)
	}
	return exists, nil
}

// GetByID is scoped to the organization so a caller can never read another tenant's user.
func (r *userRepo) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	var role string
	err := r.db.QueryRow(ctx, selectUserByIDQuery, organizationID, id).
		Scan(&user.ID, &user.OrganizationID, &user.Email, &user.FirstName, &user.LastName, &role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.Role = models.Role(role)
	return user, nil
}

func (r *userRepo) ListByOrganization(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]*models.User, error) {
	rows, err := r.db.Query(ctx, listUsersQuery, organizationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		user := &models.User{}
		var role string
		if err := rows.Scan(&user.ID, &user.OrganizationID, &user.Email, &user.FirstName, &user.LastName, &role, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.Role = models.Role(role)
		users = append(users, user)
	}
	return users, rows.Err()
}

func insertUser(ctx context.Context, q Querier, user *models.User) error {
	err := q.QueryRow(ctx, insertUserQuery,
		user.ID, user.OrganizationID, user.Email, user.PasswordHash, user.FirstName, user.LastName, string(user.Role)).
		Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}
