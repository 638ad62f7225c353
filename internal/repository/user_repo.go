package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"llm-chat/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByExternalID(ctx context.Context, externalID string) (domain.User, error)
	UpdateProfile(ctx context.Context, id, displayName, profileImage string) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, external_id, provider, display_name, profile_image, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.ExternalID,
		user.Provider,
		user.DisplayName,
		user.ProfileImage,
		user.CreatedAt,
	)
	return err
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `
		SELECT id, external_id, provider, display_name, profile_image, created_at
		FROM users
		WHERE id = $1
	`
	return r.scanOne(ctx, query, id)
}

func (r *PgUserRepository) GetByExternalID(ctx context.Context, externalID string) (domain.User, error) {
	const query = `
		SELECT id, external_id, provider, display_name, profile_image, created_at
		FROM users
		WHERE external_id = $1
	`
	return r.scanOne(ctx, query, externalID)
}

func (r *PgUserRepository) UpdateProfile(ctx context.Context, id, displayName, profileImage string) error {
	const query = `
		UPDATE users
		SET display_name = $2, profile_image = $3
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, displayName, profileImage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) scanOne(ctx context.Context, query string, arg string) (domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID,
		&u.ExternalID,
		&u.Provider,
		&u.DisplayName,
		&u.ProfileImage,
		&u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, err
	}
	return u, err
}

// MemoryUserRepository guarda usuarios en memoria cuando no hay DATABASE_URL.
type MemoryUserRepository struct {
	mu           sync.RWMutex
	byID         map[string]domain.User
	byExternalID map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:         make(map[string]domain.User),
		byExternalID: make(map[string]string),
	}
}

// ErrDuplicateExternalID se devuelve al crear un usuario cuyo id externo ya existe.
var ErrDuplicateExternalID = errors.New("duplicate external id")

func (r *MemoryUserRepository) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byExternalID[user.ExternalID]; exists {
		return ErrDuplicateExternalID
	}
	r.byID[user.ID] = user
	r.byExternalID[user.ExternalID] = user.ID
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (r *MemoryUserRepository) GetByExternalID(_ context.Context, externalID string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byExternalID[externalID]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return r.byID[id], nil
}

func (r *MemoryUserRepository) UpdateProfile(_ context.Context, id, displayName, profileImage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.DisplayName = displayName
	u.ProfileImage = profileImage
	r.byID[id] = u
	return nil
}
