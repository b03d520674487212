package repositories

import (
	"context"
	"errors"
	"fmt"

	"dentalcrm/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type OrganizationRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	// CreateWithOwner inserts the organization and its first user in one transaction.
	// Either both rows exist afterwards or neither does.
	CreateWithOwner(ctx context.Context, org *models.Organization, owner *models.User) error
}

const (
	insertOrganizationQuery = `
		INSERT INTO organizations (id, name, created_at)
		VALUES ($1, $2, NOW())
		RETURNING created_at
	`
	selectOrganizationQuery = `
		SELECT id, name, created_at
		FROM organizations
		WHERE id = $1
	`
)

type organizationRepo struct {
	db Database
}

func NewOrganizationRepo(db Database) OrganizationRepository {
	return &organizationRepo{db: db}
}

func (r *organizationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	org := &models.Organization{}
	err := r.db.QueryRow(ctx, selectOrganizationQuery, id).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return org, nil
}

func (r *organizationRepo) CreateWithOwner(ctx context.Context, org *models.Organization, owner *models.User) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, insertOrganizationQuery, org.ID, org.Name).Scan(&org.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert organization: %w", err)
		}
		owner.OrganizationID = org.ID
		return insertUser(ctx, tx, owner)
	})
}

func withTx(ctx context.Context, db Database, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
