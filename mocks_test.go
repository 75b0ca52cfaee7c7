package identity_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	identity "github.com/orps2678/go-identity"
	"github.com/stretchr/testify/mock"
)

// MockLogger implements identity.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Info(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Warn(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Error(format string, args ...any) {
	m.Called(format, args)
}

// quietLogger drops everything; used where log output is noise.
type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

// plainHasher is a cheap PasswordAuthenticator so tests do not pay bcrypt
// cost on every login. The digest reverses the input so the plaintext never
// appears in the stored hash.
type plainHasher struct{}

func (plainHasher) HashPassword(password string) (string, error) {
	return "hashed:" + reverseString(password), nil
}

func (plainHasher) ComparePasswordAndHash(password, hash string) error {
	if "hashed:"+reverseString(password) != hash {
		return identity.ErrMismatchedHashAndPassword
	}
	return nil
}

func reverseString(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// fakeUserStore is an in-memory UserStore. It counts lookups so ordering
// tests can assert which checks ran.
type fakeUserStore struct {
	mu sync.Mutex

	byUsername map[string]*identity.User
	byEmail    map[string]*identity.User

	existsUsernameCalls int
	existsEmailCalls    int
	registerErr         error
}

func newFakeUserStore(seed ...*identity.User) *fakeUserStore {
	s := &fakeUserStore{
		byUsername: map[string]*identity.User{},
		byEmail:    map[string]*identity.User{},
	}
	for _, u := range seed {
		s.byUsername[u.Username] = u
		s.byEmail[u.Email] = u
	}
	return s
}

func (s *fakeUserStore) GetByUsername(_ context.Context, username string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.byUsername[username]; ok {
		return u, nil
	}
	return nil, identity.ErrUserNotFound
}

func (s *fakeUserStore) GetByUsernameOrEmail(_ context.Context, identifier string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.byUsername[identifier]; ok {
		return u, nil
	}
	if u, ok := s.byEmail[identifier]; ok {
		return u, nil
	}
	return nil, identity.ErrUserNotFound
}

func (s *fakeUserStore) ExistsByUsername(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.existsUsernameCalls++
	_, ok := s.byUsername[username]
	return ok, nil
}

func (s *fakeUserStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.existsEmailCalls++
	_, ok := s.byEmail[email]
	return ok, nil
}

func (s *fakeUserStore) Register(_ context.Context, user *identity.User) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registerErr != nil {
		return nil, s.registerErr
	}
	if _, ok := s.byUsername[user.Username]; ok {
		return nil, fmt.Errorf("UNIQUE constraint failed: users.username")
	}
	if _, ok := s.byEmail[user.Email]; ok {
		return nil, fmt.Errorf("UNIQUE constraint failed: users.email")
	}

	s.byUsername[user.Username] = user
	s.byEmail[user.Email] = user
	return user, nil
}

func (s *fakeUserStore) uniquenessChecks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existsUsernameCalls + s.existsEmailCalls
}

// staticRoleSource returns a fixed set of codes for every user.
type staticRoleSource struct {
	codes []string
}

func (r staticRoleSource) RoleCodesForUser(context.Context, uuid.UUID) ([]string, error) {
	return r.codes, nil
}

// countingSource is an AssociationSource backed by fixtures that counts
// round-trips, so tests can prove resolution cost does not scale with input
// size.
type countingSource struct {
	rolesByUser       map[uuid.UUID][]string
	roleIDsByUser     map[uuid.UUID][]uuid.UUID
	permsByRoleID     map[uuid.UUID][]string
	permCodesByUserID map[uuid.UUID][]string

	calls int
}

func (c *countingSource) ActiveRoleCodesByUserIDs(_ context.Context, userIDs []uuid.UUID) ([]identity.UserRoleCode, error) {
	c.calls++
	out := []identity.UserRoleCode{}
	for _, id := range userIDs {
		for _, code := range c.rolesByUser[id] {
			out = append(out, identity.UserRoleCode{UserID: id, RoleCode: code})
		}
	}
	return out, nil
}

func (c *countingSource) ActiveRoleIDsByUserID(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	c.calls++
	return c.roleIDsByUser[userID], nil
}

func (c *countingSource) ActivePermissionCodesByRoleID(_ context.Context, roleID uuid.UUID) ([]string, error) {
	c.calls++
	return c.permsByRoleID[roleID], nil
}

func (c *countingSource) ActivePermissionCodesByRoleIDs(_ context.Context, roleIDs []uuid.UUID) ([]string, error) {
	c.calls++
	seen := map[string]struct{}{}
	out := []string{}
	for _, id := range roleIDs {
		for _, code := range c.permsByRoleID[id] {
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			out = append(out, code)
		}
	}
	return out, nil
}

func (c *countingSource) UserHasPermissionCode(_ context.Context, userID uuid.UUID, code string) (bool, error) {
	c.calls++
	for _, have := range c.permCodesByUserID[userID] {
		if have == code {
			return true, nil
		}
	}
	return false, nil
}

func (c *countingSource) UserHasAnyPermissionCode(_ context.Context, userID uuid.UUID, codes []string) (bool, error) {
	c.calls++
	for _, want := range codes {
		for _, have := range c.permCodesByUserID[userID] {
			if have == want {
				return true, nil
			}
		}
	}
	return false, nil
}

// recordingSink captures activity events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event identity.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) eventTypes() []identity.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]identity.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}
