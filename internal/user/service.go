package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrCannotChangeOwnAdmin = errors.New("cannot change own admin status")
	ErrInvalidProfile       = errors.New("invalid profile")
)

type Service interface {
	EnsureUser(ctx context.Context, identity Identity) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SetAdmin(ctx context.Context, actorID, targetID string, isAdmin bool) (*User, error)
	UpdateProfile(ctx context.Context, id string, profile Profile) (*User, error)
	CountUsers(ctx context.Context) (int, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// EnsureUser returns the stored user for the identity, creating a non-admin
// record on first sight.
func (s *service) EnsureUser(ctx context.Context, identity Identity) (*User, error) {
	if strings.TrimSpace(identity.Subject) == "" {
		return nil, errors.New("identity subject is required")
	}

	existing, err := s.repo.GetByID(ctx, identity.Subject)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get user %s: %w", identity.Subject, err)
	}

	now := time.Now().UTC()
	u := &User{
		ID:          identity.Subject,
		Email:       identity.Email,
		DisplayName: identity.Name,
		IsAdmin:     false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if identity.PhotoURL != "" {
		photo := identity.PhotoURL
		u.PhotoURL = &photo
	}

	if err := s.repo.Create(ctx, u); err != nil {
		// Two first requests raced; the other one won.
		if errors.Is(err, ErrUserExists) {
			return s.repo.GetByID(ctx, identity.Subject)
		}
		return nil, fmt.Errorf("failed to create user %s: %w", identity.Subject, err)
	}

	log.Info().Str("user_id", u.ID).Str("email", u.Email).Msg("User created on first sign-in")
	return u, nil
}

func (s *service) GetUser(ctx context.Context, id string) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return u, nil
}

func (s *service) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// SetAdmin changes targetID's admin flag. An admin may never change their own
// flag.
func (s *service) SetAdmin(ctx context.Context, actorID, targetID string, isAdmin bool) (*User, error) {
	if actorID == targetID {
		log.Warn().Str("user_id", actorID).Msg("Rejected attempt to change own admin status")
		return nil, ErrCannotChangeOwnAdmin
	}

	if err := s.repo.SetAdmin(ctx, targetID, isAdmin); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to set admin flag for user %s: %w", targetID, err)
	}

	log.Info().Str("actor_id", actorID).Str("user_id", targetID).Bool("is_admin", isAdmin).Msg("Admin flag changed")

	return s.GetUser(ctx, targetID)
}

// UpdateProfile replaces the user's editable fields. Email, photo and the
// admin flag are not touched.
func (s *service) UpdateProfile(ctx context.Context, id string, profile Profile) (*User, error) {
	profile = Profile{
		DisplayName: strings.TrimSpace(profile.DisplayName),
		Phone:       strings.TrimSpace(profile.Phone),
		Address:     strings.TrimSpace(profile.Address),
	}
	if profile.DisplayName == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrInvalidProfile)
	}

	if err := s.repo.UpdateProfile(ctx, id, profile, time.Now().UTC()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update profile for user %s: %w", id, err)
	}

	log.Info().Str("user_id", id).Msg("Profile updated")

	return s.GetUser(ctx, id)
}

func (s *service) CountUsers(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}
