package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"llm-chat/internal/domain"
	"llm-chat/internal/repository"
)

type failingUserRepo struct {
	*repository.MemoryUserRepository
	getErr    error
	createErr error
}

func (f *failingUserRepo) GetByExternalID(ctx context.Context, externalID string) (domain.User, error) {
	if f.getErr != nil {
		return domain.User{}, f.getErr
	}
	return f.MemoryUserRepository.GetByExternalID(ctx, externalID)
}

func (f *failingUserRepo) Create(ctx context.Context, user domain.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.MemoryUserRepository.Create(ctx, user)
}

func TestUserService_UpsertOAuthUser_CreatesWithProviderPrefix(t *testing.T) {
	svc := NewUserService(zap.NewNop(), repository.NewMemoryUserRepository())

	user, err := svc.UpsertOAuthUser(context.Background(), OAuthInput{
		Provider:     " Google ",
		Subject:      " 123 ",
		DisplayName:  " Alice ",
		ProfileImage: "https://img/alice.png",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if user.ID == "" || user.CreatedAt.IsZero() {
		t.Fatalf("expected generated id and created_at, got %+v", user)
	}
	if user.ExternalID != "google_123" || user.Provider != "google" {
		t.Fatalf("unexpected external id/provider: %+v", user)
	}
	if user.DisplayName != "Alice" || user.ProfileImage != "https://img/alice.png" {
		t.Fatalf("unexpected profile: %+v", user)
	}
}

func TestUserService_UpsertOAuthUser_ReturnsExisting(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(zap.NewNop(), repository.NewMemoryUserRepository())

	first, err := svc.UpsertOAuthUser(ctx, OAuthInput{Provider: "google", Subject: "123", DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := svc.UpsertOAuthUser(ctx, OAuthInput{Provider: "google", Subject: "123"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if first.ID != second.ID || second.DisplayName != "Alice" {
		t.Fatalf("expected same user, got %+v vs %+v", first, second)
	}
}

func TestUserService_UpsertOAuthUser_RefreshesProfile(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(zap.NewNop(), repository.NewMemoryUserRepository())

	first, err := svc.UpsertOAuthUser(ctx, OAuthInput{Provider: "google", Subject: "123", DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second, err := svc.UpsertOAuthUser(ctx, OAuthInput{Provider: "google", Subject: "123", DisplayName: "Alice B.", ProfileImage: "https://img/new.png"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID || second.DisplayName != "Alice B." || second.ProfileImage != "https://img/new.png" {
		t.Fatalf("expected refreshed profile, got %+v", second)
	}

	identity, err := svc.IdentityFor(ctx, "google_123")
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if identity.DisplayName != "Alice B." || identity.ProfileImage != "https://img/new.png" {
		t.Fatalf("expected persisted profile, got %+v", identity)
	}
}

func TestUserService_UpsertOAuthUser_ProvidersDoNotCollide(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(zap.NewNop(), repository.NewMemoryUserRepository())

	g, err := svc.UpsertOAuthUser(ctx, OAuthInput{Provider: "google", Subject: "42", DisplayName: "G"})
	if err != nil {
		t.Fatalf("google upsert: %v", err)
	}
	gh, err := svc.UpsertOAuthUser(ctx, OAuthInput{Provider: "github", Subject: "42", DisplayName: "GH"})
	if err != nil {
		t.Fatalf("github upsert: %v", err)
	}
	if g.ID == gh.ID || g.ExternalID == gh.ExternalID {
		t.Fatalf("expected distinct users across providers")
	}
}

func TestUserService_UpsertOAuthUser_Validation(t *testing.T) {
	svc := NewUserService(zap.NewNop(), repository.NewMemoryUserRepository())
	cases := []OAuthInput{
		{Provider: "", Subject: "1"},
		{Provider: "google", Subject: "  "},
	}
	for i, c := range cases {
		if _, err := svc.UpsertOAuthUser(context.Background(), c); !errors.Is(err, ErrOAuthInvalid) {
			t.Fatalf("case %d expected ErrOAuthInvalid, got %v", i, err)
		}
	}
}

func TestUserService_UpsertOAuthUser_DefaultsDisplayName(t *testing.T) {
	svc := NewUserService(zap.NewNop(), repository.NewMemoryUserRepository())
	user, err := svc.UpsertOAuthUser(context.Background(), OAuthInput{Provider: "google", Subject: "7"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if user.DisplayName != "google_7" {
		t.Fatalf("expected external id as display name fallback, got %q", user.DisplayName)
	}
}

func TestUserService_UpsertOAuthUser_PropagatesRepoErrors(t *testing.T) {
	repo := &failingUserRepo{MemoryUserRepository: repository.NewMemoryUserRepository(), getErr: errors.New("db down")}
	svc := NewUserService(zap.NewNop(), repo)
	if _, err := svc.UpsertOAuthUser(context.Background(), OAuthInput{Provider: "google", Subject: "1"}); err == nil {
		t.Fatalf("expected repo error")
	}

	repo = &failingUserRepo{MemoryUserRepository: repository.NewMemoryUserRepository(), createErr: errors.New("insert failed")}
	svc = NewUserService(zap.NewNop(), repo)
	if _, err := svc.UpsertOAuthUser(context.Background(), OAuthInput{Provider: "google", Subject: "1"}); err == nil {
		t.Fatalf("expected create error")
	}
}

func TestUserService_IdentityFor(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(zap.NewNop(), repository.NewMemoryUserRepository())
	if _, err := svc.UpsertOAuthUser(ctx, OAuthInput{Provider: "google", Subject: "1", DisplayName: "Alice", ProfileImage: "a.png"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	identity, err := svc.IdentityFor(ctx, "google_1")
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	if identity != (domain.Identity{ExternalID: "google_1", DisplayName: "Alice", ProfileImage: "a.png"}) {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	if _, err := svc.IdentityFor(ctx, "google_2"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := svc.IdentityFor(ctx, " "); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for empty id, got %v", err)
	}
}

func TestUserService_NotConfigured(t *testing.T) {
	var svc *UserService
	if _, err := svc.UpsertOAuthUser(context.Background(), OAuthInput{}); !errors.Is(err, ErrUserServiceNotConfigured) {
		t.Fatalf("expected ErrUserServiceNotConfigured, got %v", err)
	}
	svc = NewUserService(nil, nil)
	if _, err := svc.IdentityFor(context.Background(), "google_1"); !errors.Is(err, ErrUserServiceNotConfigured) {
		t.Fatalf("expected ErrUserServiceNotConfigured, got %v", err)
	}
}

func TestUserService_UpsertOAuthUser_ProviderAllowList(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(zap.NewNop(), repository.NewMemoryUserRepository())

	for _, provider := range []string{"google", "GitHub", " kakao "} {
		if _, err := svc.UpsertOAuthUser(ctx, OAuthInput{Provider: provider, Subject: "1"}); err != nil {
			t.Fatalf("provider %q: unexpected error %v", provider, err)
		}
	}
	if _, err := svc.UpsertOAuthUser(ctx, OAuthInput{Provider: "myspace", Subject: "1"}); !errors.Is(err, ErrOAuthProviderNotAllowed) {
		t.Fatalf("expected ErrOAuthProviderNotAllowed, got %v", err)
	}

	custom := NewUserService(zap.NewNop(), repository.NewMemoryUserRepository(), WithOAuthProviders("cli", " "))
	if _, err := custom.UpsertOAuthUser(ctx, OAuthInput{Provider: "cli", Subject: "1"}); err != nil {
		t.Fatalf("custom provider: %v", err)
	}
	if _, err := custom.UpsertOAuthUser(ctx, OAuthInput{Provider: "google", Subject: "1"}); !errors.Is(err, ErrOAuthProviderNotAllowed) {
		t.Fatalf("expected google rejected by custom list, got %v", err)
	}
}

func TestUserService_UpsertOAuthUser_DefaultProfileImage(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(zap.NewNop(), repository.NewMemoryUserRepository())
	user, err := svc.UpsertOAuthUser(ctx, OAuthInput{Provider: "kakao", Subject: "9", DisplayName: "Min"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if user.ProfileImage != DefaultProfileImage {
		t.Fatalf("expected %q, got %q", DefaultProfileImage, user.ProfileImage)
	}

	svc = NewUserService(zap.NewNop(), repository.NewMemoryUserRepository(), WithDefaultProfileImage("anon.png"))
	user, err = svc.UpsertOAuthUser(ctx, OAuthInput{Provider: "kakao", Subject: "9"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if user.ProfileImage != "anon.png" {
		t.Fatalf("expected configured default image, got %q", user.ProfileImage)
	}
}
