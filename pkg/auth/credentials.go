package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/time/rate"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
)

// argon2 parameters for password hashing. These are deliberately modest
// (this runtime is not expected to run on attacker-adjacent hardware) but
// follow the OWASP-recommended argon2id shape: one pass, 64 MiB, 4 lanes.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// user is a row of the credential store: {user_id, name, password_hash,
// salt, created_at, disabled_at?}.
type user struct {
	id           string
	name         string
	passwordHash []byte
	salt         []byte
	createdAt    time.Time
	disabledAt   *time.Time
}

// hashPassword derives an argon2id key from password and salt.
func hashPassword(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

func newSalt() ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// CredentialStore holds locally-managed user accounts: password hashes
// with per-credential salts, never plaintext. It backs PasswordVerifier
// and is authenticated against by user id (the same id the rbac store
// keys role assignment on).
type CredentialStore struct {
	mu    sync.RWMutex
	users map[string]*user

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	// maxAttempts bounds the leaky-bucket rate limiter: a burst of
	// maxAttempts tokens (default 5), refilling maxAttempts per
	// rateWindow.
	maxAttempts int
	rateWindow  time.Duration
}

// NewCredentialStore constructs an empty store. maxAttempts and rateWindow
// configure the per-principal leaky-bucket authentication rate limit;
// zero values fall back to the defaults (5 attempts per 60s).
func NewCredentialStore(maxAttempts int, rateWindow time.Duration) *CredentialStore {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if rateWindow <= 0 {
		rateWindow = time.Minute
	}
	return &CredentialStore{
		users:       make(map[string]*user),
		limiters:    make(map[string]*rate.Limiter),
		maxAttempts: maxAttempts,
		rateWindow:  rateWindow,
	}
}

// CreateUser adds a user with the given password, hashed and salted.
// Returns ErrInvalidFormat if the id is already taken.
func (s *CredentialStore) CreateUser(id, name, password string) error {
	salt, err := newSalt()
	if err != nil {
		return mcperrors.NewInternalError("failed to generate salt", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[id]; exists {
		return mcperrors.NewInvalidFormatError("user already exists: "+id, nil)
	}
	s.users[id] = &user{
		id:           id,
		name:         name,
		passwordHash: hashPassword(password, salt),
		salt:         salt,
		createdAt:    time.Now(),
	}
	return nil
}

// DisableUser marks a user as disabled; subsequent authentication attempts
// fail regardless of password correctness.
func (s *CredentialStore) DisableUser(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return mcperrors.NewInvalidFormatError("no such user: "+id, nil)
	}
	now := time.Now()
	u.disabledAt = &now
	return nil
}

// rateLimiter returns (creating if absent) the leaky-bucket limiter for a
// principal id. The bucket refills one token per rateWindow/maxAttempts,
// capped at maxAttempts burst, approximating a leaky bucket admission
// control over repeated failed logins.
func (s *CredentialStore) rateLimiter(id string) *rate.Limiter {
	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()
	l, ok := s.limiters[id]
	if !ok {
		perSecond := rate.Limit(float64(s.maxAttempts) / s.rateWindow.Seconds())
		l = rate.NewLimiter(perSecond, s.maxAttempts)
		s.limiters[id] = l
	}
	return l
}

// verify checks a password against the stored hash in constant time and
// enforces the per-user rate limit. It never distinguishes "unknown user"
// from "wrong password" in its returned error to avoid user enumeration.
func (s *CredentialStore) verify(id, password string) (*user, error) {
	if !s.rateLimiter(id).Allow() {
		return nil, mcperrors.NewAuthFailedError("rate limit exceeded for "+id, nil)
	}

	s.mu.RLock()
	u, ok := s.users[id]
	s.mu.RUnlock()
	if !ok {
		// Hash against a decoy salt so the timing profile of an unknown
		// user matches that of a known one.
		hashPassword(password, make([]byte, saltLen))
		return nil, mcperrors.NewAuthFailedError("invalid credentials", nil)
	}
	if u.disabledAt != nil {
		return nil, mcperrors.NewAuthFailedError("account disabled", nil)
	}

	candidate := hashPassword(password, u.salt)
	if subtle.ConstantTimeCompare(candidate, u.passwordHash) != 1 {
		return nil, mcperrors.NewAuthFailedError("invalid credentials", nil)
	}
	return u, nil
}

// PasswordVerifier authenticates Username/Password credentials against a
// CredentialStore.
type PasswordVerifier struct {
	store *CredentialStore
}

// NewPasswordVerifier builds a PasswordVerifier over store.
func NewPasswordVerifier(store *CredentialStore) *PasswordVerifier {
	return &PasswordVerifier{store: store}
}

// Authenticate verifies creds.Username/creds.Password against the store.
func (v *PasswordVerifier) Authenticate(_ context.Context, creds Credentials) (*Identity, error) {
	u, err := v.store.verify(creds.Username, creds.Password)
	if err != nil {
		return nil, err
	}
	return &Identity{
		Subject:   u.id,
		Name:      u.name,
		TokenType: "password",
	}, nil
}
