package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/farmtrack/internal/auth"
	"github.com/BradenHooton/farmtrack/internal/models"
)

// MockUserRepository implements UserRepository for testing. Unset funcs
// return models.ErrNotFound or zero values.
type MockUserRepository struct {
	GetByIDFunc                func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc             func(ctx context.Context, email string) (*models.User, error)
	FindByEmailOrPhoneFunc     func(ctx context.Context, identifier string) (*models.User, error)
	FindByResetTokenDigestFunc func(ctx context.Context, digest string, now time.Time) (*models.User, error)
	ExistsByEmailOrPhoneFunc   func(ctx context.Context, email, phone string) (bool, bool, error)
	ListFunc                   func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateFunc                 func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateAuthFieldsFunc       func(ctx context.Context, id string, update models.AuthFieldsUpdate) error
	RecordFailedLoginFunc      func(ctx context.Context, id string, policy auth.LockoutPolicy, now time.Time) (models.LockoutState, error)
	RecordSuccessfulLoginFunc  func(ctx context.Context, id, refreshToken string, now time.Time) error
	RotateRefreshTokenFunc     func(ctx context.Context, id, presented, next string) error
	ConsumeResetTokenFunc      func(ctx context.Context, id, digest, passwordHash, refreshToken string, now time.Time) (*models.User, error)
	UpdateRoleFunc             func(ctx context.Context, id string, role models.Role) (*models.User, error)
	UpdateStatusFunc           func(ctx context.Context, id string, active bool) (*models.User, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) FindByEmailOrPhone(ctx context.Context, identifier string) (*models.User, error) {
	if m.FindByEmailOrPhoneFunc != nil {
		return m.FindByEmailOrPhoneFunc(ctx, identifier)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) FindByResetTokenDigest(ctx context.Context, digest string, now time.Time) (*models.User, error) {
	if m.FindByResetTokenDigestFunc != nil {
		return m.FindByResetTokenDigestFunc(ctx, digest, now)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, bool, error) {
	if m.ExistsByEmailOrPhoneFunc != nil {
		return m.ExistsByEmailOrPhoneFunc(ctx, email, phone)
	}
	return false, false, nil
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdateAuthFields(ctx context.Context, id string, update models.AuthFieldsUpdate) error {
	if m.UpdateAuthFieldsFunc != nil {
		return m.UpdateAuthFieldsFunc(ctx, id, update)
	}
	return nil
}

func (m *MockUserRepository) RecordFailedLogin(ctx context.Context, id string, policy auth.LockoutPolicy, now time.Time) (models.LockoutState, error) {
	if m.RecordFailedLoginFunc != nil {
		return m.RecordFailedLoginFunc(ctx, id, policy, now)
	}
	return models.LockoutState{FailedAttempts: 1}, nil
}

func (m *MockUserRepository) RecordSuccessfulLogin(ctx context.Context, id, refreshToken string, now time.Time) error {
	if m.RecordSuccessfulLoginFunc != nil {
		return m.RecordSuccessfulLoginFunc(ctx, id, refreshToken, now)
	}
	return nil
}

func (m *MockUserRepository) RotateRefreshToken(ctx context.Context, id, presented, next string) error {
	if m.RotateRefreshTokenFunc != nil {
		return m.RotateRefreshTokenFunc(ctx, id, presented, next)
	}
	return nil
}

func (m *MockUserRepository) ConsumeResetToken(ctx context.Context, id, digest, passwordHash, refreshToken string, now time.Time) (*models.User, error) {
	if m.ConsumeResetTokenFunc != nil {
		return m.ConsumeResetTokenFunc(ctx, id, digest, passwordHash, refreshToken, now)
	}
	return nil, models.ErrResetTokenRejected
}

func (m *MockUserRepository) UpdateRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	if m.UpdateRoleFunc != nil {
		return m.UpdateRoleFunc(ctx, id, role)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) UpdateStatus(ctx context.Context, id string, active bool) (*models.User, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, active)
	}
	return nil, models.ErrNotFound
}

// MockFarmRepository implements FarmRepository for testing
type MockFarmRepository struct {
	CreateFunc      func(ctx context.Context, farm *models.Farm) (*models.Farm, error)
	GetByIDFunc     func(ctx context.Context, id string) (*models.Farm, error)
	ListByOwnerFunc func(ctx context.Context, ownerID string, limit, offset int) ([]*models.Farm, error)
}

func (m *MockFarmRepository) Create(ctx context.Context, farm *models.Farm) (*models.Farm, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, farm)
	}
	return nil, models.ErrInternalServer
}

func (m *MockFarmRepository) GetByID(ctx context.Context, id string) (*models.Farm, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockFarmRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Farm, error) {
	if m.ListByOwnerFunc != nil {
		return m.ListByOwnerFunc(ctx, ownerID, limit, offset)
	}
	return []*models.Farm{}, nil
}

// MockMailer implements Mailer for testing and records every message.
type MockMailer struct {
	SendFunc func(ctx context.Context, msg Message) (string, error)

	mu   sync.Mutex
	sent []Message
}

func (m *MockMailer) Send(ctx context.Context, msg Message) (string, error) {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()

	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	return "msg-" + uuid.New().String(), nil
}

// Sent returns the messages passed to Send so far
func (m *MockMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}

// MockInvalidator records invalidated user IDs
type MockInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (m *MockInvalidator) Invalidate(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
}

func (m *MockInvalidator) Invalidated() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ids...)
}

// MemoryUserStore is an in-memory UserRepository with the same conditional
// update semantics as the Postgres repository.
type MemoryUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]*models.User)}
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.LastLoginAt = cloneTime(u.LastLoginAt)
	c.LockedUntil = cloneTime(u.LockedUntil)
	c.PasswordResetExpiresAt = cloneTime(u.PasswordResetExpiresAt)
	c.PasswordChangedAt = cloneTime(u.PasswordChangedAt)
	c.RefreshToken = cloneString(u.RefreshToken)
	c.PasswordResetTokenHash = cloneString(u.PasswordResetTokenHash)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Put stores a copy of user, replacing any user with the same ID
func (s *MemoryUserStore) Put(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = cloneUser(user)
}

func (s *MemoryUserStore) find(match func(*models.User) bool) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemoryUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *MemoryUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(email)
	return s.find(func(u *models.User) bool { return u.Email == email })
}

func (s *MemoryUserStore) FindByEmailOrPhone(ctx context.Context, identifier string) (*models.User, error) {
	lower := strings.ToLower(identifier)
	return s.find(func(u *models.User) bool { return u.Email == lower || u.Phone == identifier })
}

func (s *MemoryUserStore) FindByResetTokenDigest(ctx context.Context, digest string, now time.Time) (*models.User, error) {
	return s.find(func(u *models.User) bool {
		return u.PasswordResetTokenHash != nil && *u.PasswordResetTokenHash == digest &&
			u.PasswordResetExpiresAt != nil && u.PasswordResetExpiresAt.After(now)
	})
}

func (s *MemoryUserStore) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var emailTaken, phoneTaken bool
	for _, u := range s.users {
		emailTaken = emailTaken || u.Email == strings.ToLower(email)
		phoneTaken = phoneTaken || u.Phone == phone
	}
	return emailTaken, phoneTaken, nil
}

func (s *MemoryUserStore) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	s.mu.Lock()
	all := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		all = append(all, cloneUser(u))
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return []*models.User{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryUserStore) Create(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user.Email = strings.ToLower(user.Email)
	for _, u := range s.users {
		if u.Email == user.Email {
			return nil, models.ErrEmailTaken
		}
		if u.Phone == user.Phone {
			return nil, models.ErrPhoneTaken
		}
	}

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.Role == "" {
		user.Role = models.RoleFarmer
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	s.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

// update applies fn to the stored user under the store lock
func (s *MemoryUserStore) update(id string, fn func(u *models.User) error) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if err := fn(u); err != nil {
		return nil, err
	}
	u.UpdatedAt = time.Now().UTC()
	return cloneUser(u), nil
}

func (s *MemoryUserStore) UpdateAuthFields(ctx context.Context, id string, f models.AuthFieldsUpdate) error {
	_, err := s.update(id, func(u *models.User) error {
		if f.PasswordHash != nil {
			u.PasswordHash = *f.PasswordHash
		}
		if f.FailedLoginAttempts != nil {
			u.FailedLoginAttempts = *f.FailedLoginAttempts
		}
		switch {
		case f.ClearLockedUntil:
			u.LockedUntil = nil
		case f.LockedUntil != nil:
			u.LockedUntil = cloneTime(f.LockedUntil)
		}
		if f.LastLoginAt != nil {
			u.LastLoginAt = cloneTime(f.LastLoginAt)
		}
		switch {
		case f.ClearRefreshToken:
			u.RefreshToken = nil
		case f.RefreshToken != nil:
			u.RefreshToken = cloneString(f.RefreshToken)
		}
		switch {
		case f.ClearPasswordReset:
			u.PasswordResetTokenHash = nil
			u.PasswordResetExpiresAt = nil
		case f.PasswordResetTokenHash != nil && f.PasswordResetExpiresAt != nil:
			u.PasswordResetTokenHash = cloneString(f.PasswordResetTokenHash)
			u.PasswordResetExpiresAt = cloneTime(f.PasswordResetExpiresAt)
		}
		if f.PasswordChangedAt != nil {
			u.PasswordChangedAt = cloneTime(f.PasswordChangedAt)
		}
		return nil
	})
	return err
}

func (s *MemoryUserStore) RecordFailedLogin(ctx context.Context, id string, policy auth.LockoutPolicy, now time.Time) (models.LockoutState, error) {
	var next models.LockoutState
	_, err := s.update(id, func(u *models.User) error {
		next = policy.RegisterFailure(models.LockoutState{FailedAttempts: u.FailedLoginAttempts, LockedUntil: u.LockedUntil}, now)
		u.FailedLoginAttempts = next.FailedAttempts
		u.LockedUntil = cloneTime(next.LockedUntil)
		return nil
	})
	return next, err
}

func (s *MemoryUserStore) RecordSuccessfulLogin(ctx context.Context, id, refreshToken string, now time.Time) error {
	_, err := s.update(id, func(u *models.User) error {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		u.LastLoginAt = &now
		u.RefreshToken = &refreshToken
		return nil
	})
	return err
}

func (s *MemoryUserStore) RotateRefreshToken(ctx context.Context, id, presented, next string) error {
	_, err := s.update(id, func(u *models.User) error {
		if u.RefreshToken == nil || *u.RefreshToken != presented {
			return models.ErrTokenInvalid
		}
		u.RefreshToken = &next
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrTokenInvalid
	}
	return err
}

func (s *MemoryUserStore) ConsumeResetToken(ctx context.Context, id, digest, passwordHash, refreshToken string, now time.Time) (*models.User, error) {
	user, err := s.update(id, func(u *models.User) error {
		if u.PasswordResetTokenHash == nil || *u.PasswordResetTokenHash != digest ||
			u.PasswordResetExpiresAt == nil || !u.PasswordResetExpiresAt.After(now) {
			return models.ErrResetTokenRejected
		}
		u.PasswordHash = passwordHash
		u.PasswordResetTokenHash = nil
		u.PasswordResetExpiresAt = nil
		u.PasswordChangedAt = &now
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		u.RefreshToken = &refreshToken
		u.LastLoginAt = &now
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrResetTokenRejected
	}
	return user, err
}

func (s *MemoryUserStore) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if u.PasswordResetExpiresAt != nil && !u.PasswordResetExpiresAt.After(now) {
			u.PasswordResetTokenHash = nil
			u.PasswordResetExpiresAt = nil
			n++
		}
	}
	return n, nil
}

func (s *MemoryUserStore) UpdateRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	return s.update(id, func(u *models.User) error {
		u.Role = role
		return nil
	})
}

func (s *MemoryUserStore) UpdateStatus(ctx context.Context, id string, active bool) (*models.User, error) {
	return s.update(id, func(u *models.User) error {
		u.IsActive = active
		if !active {
			u.RefreshToken = nil
		}
		return nil
	})
}

func (s *MemoryUserStore) count(match func(*models.User) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.users {
		if match(u) {
			n++
		}
	}
	return n
}

func (s *MemoryUserStore) CountTotal(ctx context.Context) (int64, error) {
	return s.count(func(*models.User) bool { return true }), nil
}

func (s *MemoryUserStore) CountByActive(ctx context.Context, active bool) (int64, error) {
	return s.count(func(u *models.User) bool { return u.IsActive == active }), nil
}

func (s *MemoryUserStore) CountByRole(ctx context.Context, role models.Role) (int64, error) {
	return s.count(func(u *models.User) bool { return u.Role == role }), nil
}

func (s *MemoryUserStore) CountLocked(ctx context.Context, now time.Time) (int64, error) {
	return s.count(func(u *models.User) bool { return u.LockedUntil != nil && u.LockedUntil.After(now) }), nil
}

func (s *MemoryUserStore) CountNewSince(ctx context.Context, since time.Time) (int64, error) {
	return s.count(func(u *models.User) bool { return !u.CreatedAt.Before(since) }), nil
}

// MemoryFarmStore is an in-memory FarmRepository
type MemoryFarmStore struct {
	mu    sync.Mutex
	farms map[string]*models.Farm
}

func NewMemoryFarmStore() *MemoryFarmStore {
	return &MemoryFarmStore{farms: make(map[string]*models.Farm)}
}

func (s *MemoryFarmStore) Create(ctx context.Context, farm *models.Farm) (*models.Farm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.farms {
		if f.OwnerID == farm.OwnerID && f.Name == farm.Name {
			return nil, models.ErrConflict
		}
	}
	c := *farm
	c.ID = uuid.New().String()
	c.IsActive = true
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	s.farms[c.ID] = &c
	out := c
	return &out, nil
}

func (s *MemoryFarmStore) GetByID(ctx context.Context, id string) (*models.Farm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.farms[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *f
	return &c, nil
}

func (s *MemoryFarmStore) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.Farm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Farm, 0)
	for _, f := range s.farms {
		if f.OwnerID == ownerID {
			c := *f
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []*models.Farm{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryFarmStore) CountTotal(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.farms)), nil
}

// NewTestUser creates an active test user with the given password hash
func NewTestUser(id, email, passwordHash string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		ID:           id,
		Email:        email,
		Phone:        "+1555" + id,
		FirstName:    "Test",
		LastName:     "User",
		PasswordHash: passwordHash,
		Role:         models.RoleFarmer,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
