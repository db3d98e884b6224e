// Package credentials verifies and persists username/password credentials.
// Hashing happens explicitly here at the call site, not in a persistence
// hook, so the cost of a signup or login is visible where it is incurred.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/smartops/authd/internal/models"
	"github.com/smartops/authd/internal/store"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// MinPasswordLength is the minimum accepted password length.
const MinPasswordLength = 6

var (
	// ErrPasswordTooShort is returned when the password fails validation.
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)

	// ErrUsernameTaken is returned when the username already exists.
	ErrUsernameTaken = store.ErrUsernameTaken

	// ErrInvalidCredentials is returned for both an unknown username and a
	// wrong password, so callers cannot distinguish the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Store verifies candidate passwords against stored bcrypt hashes and
// creates new credential records.
type Store struct {
	users store.UserStore
	cost  int
	sem   *semaphore.Weighted

	// dummyHash is compared against when the username does not exist, so
	// the failure path costs the same as a real password comparison.
	dummyHash string
}

// New returns a credential store using the given bcrypt cost. A cost outside
// bcrypt's supported range falls back to the default cost; a single hash near
// bcrypt.MaxCost runs for hours, so high costs are never honored as given.
func New(users store.UserStore, cost int) *Store {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	// Hash a throwaway random value at the configured cost so unknown-user
	// comparisons match the work factor of real ones.
	dummy, err := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), cost)
	if err != nil {
		// only reachable with a cost outside bcrypt's range, which is
		// clamped above
		panic(err)
	}

	return &Store{
		users: users,
		cost:  cost,
		// bcrypt is CPU-bound; bound concurrent hashing so a burst of
		// signups cannot starve request dispatch
		sem:       semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
		dummyHash: string(dummy),
	}
}

// Create validates the password, hashes it, and persists the new user.
// Returns ErrUsernameTaken if the username exists (case-sensitive match) and
// ErrPasswordTooShort if the password fails validation.
func (s *Store) Create(ctx context.Context, username, password string) (*models.User, error) {
	if len(password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := s.hashPassword(ctx, password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	log.Debug().Str("user_id", user.ID.String()).Msg("Created credentials")

	return user, nil
}

// Verify looks up the user and compares the candidate password against the
// stored hash. An unknown username performs an equivalent-cost comparison
// against a fixed dummy hash so elapsed time does not reveal whether the
// account exists. Both failure modes return ErrInvalidCredentials.
func (s *Store) Verify(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			_ = s.comparePassword(ctx, s.dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := s.comparePassword(ctx, user.PasswordHash, password); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to compare password: %w", err)
	}

	return user, nil
}

func (s *Store) hashPassword(ctx context.Context, password string) (string, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer s.sem.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *Store) comparePassword(ctx context.Context, hash, password string) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.sem.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
