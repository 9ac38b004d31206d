package identity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"
)

// memoryStore is an in-memory identity.IdentityStore enforcing the same
// uniqueness rules as the database schema.
type memoryStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]identity.Identity

	// beforeCreate runs inside Create before uniqueness checks
	beforeCreate func(record *identity.Identity)
	// afterFind runs once after the next FindByID, outside the lock
	afterFind func()
	// beforeLink runs inside LinkFederated before the record is checked
	beforeLink func(record *identity.Identity)
	findErr      error
	creates      int
	saves        int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[uuid.UUID]identity.Identity{}}
}

func (m *memoryStore) put(record identity.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record
}

func (m *memoryStore) get(id uuid.UUID) (identity.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	return r, ok
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memoryStore) FindByID(_ context.Context, id uuid.UUID) (*identity.Identity, error) {
	record, err := m.findByID(id)

	m.mu.Lock()
	hook := m.afterFind
	m.afterFind = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}

	return record, err
}

func (m *memoryStore) findByID(id uuid.UUID) (*identity.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	r, ok := m.records[id]
	if !ok {
		return nil, identity.ErrIdentityNotFound
	}
	return &r, nil
}

func (m *memoryStore) FindByEmail(_ context.Context, email string) (*identity.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, r := range m.records {
		if r.Email == email {
			return &r, nil
		}
	}
	return nil, identity.ErrIdentityNotFound
}

func (m *memoryStore) FindFederated(_ context.Context, subjectID, email string) (*identity.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var byEmail *identity.Identity
	for _, r := range m.records {
		if r.FederatedID != "" && r.FederatedID == subjectID {
			return &r, nil
		}
		if r.Email == email {
			rec := r
			byEmail = &rec
		}
	}
	if byEmail != nil {
		return byEmail, nil
	}
	return nil, identity.ErrIdentityNotFound
}

func (m *memoryStore) Create(_ context.Context, record *identity.Identity) error {
	if m.beforeCreate != nil {
		m.beforeCreate(record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if err := m.checkUnique(record); err != nil {
		return err
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	m.records[record.ID] = *record
	return nil
}

func (m *memoryStore) Save(_ context.Context, record *identity.Identity, columns ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	stored, ok := m.records[record.ID]
	if !ok {
		return identity.ErrIdentityNotFound
	}
	if len(columns) == 0 {
		columns = []string{
			identity.ColumnEmail,
			identity.ColumnPasswordHash,
			identity.ColumnFamilyName,
			identity.ColumnGivenName,
			identity.ColumnAvatarURL,
			identity.ColumnLevel,
			identity.ColumnTrack,
			identity.ColumnProfileCompleted,
		}
	}

	next := stored
	for _, col := range columns {
		switch col {
		case identity.ColumnEmail:
			next.Email = record.Email
		case identity.ColumnPasswordHash:
			next.PasswordHash = record.PasswordHash
		case identity.ColumnFamilyName:
			next.FamilyName = record.FamilyName
		case identity.ColumnGivenName:
			next.GivenName = record.GivenName
		case identity.ColumnAvatarURL:
			next.AvatarURL = record.AvatarURL
		case identity.ColumnLevel:
			next.Level = record.Level
		case identity.ColumnTrack:
			next.Track = record.Track
		case identity.ColumnProfileCompleted:
			next.ProfileCompleted = record.ProfileCompleted
		default:
			return identity.ErrValidation
		}
	}
	if err := m.checkUnique(&next); err != nil {
		return err
	}
	next.UpdatedAt = time.Now()
	record.UpdatedAt = next.UpdatedAt
	m.records[record.ID] = next
	return nil
}

func (m *memoryStore) LinkFederated(_ context.Context, record *identity.Identity) error {
	if m.beforeLink != nil {
		m.beforeLink(record)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	stored, ok := m.records[record.ID]
	if !ok || stored.FederatedID != "" {
		return identity.ErrDuplicateIdentity
	}

	next := stored
	next.FederatedID = record.FederatedID
	next.AuthProvider = record.AuthProvider
	next.FamilyName = record.FamilyName
	next.GivenName = record.GivenName
	next.AvatarURL = record.AvatarURL
	next.ProfileCompleted = record.ProfileCompleted
	if err := m.checkUnique(&next); err != nil {
		return err
	}
	next.UpdatedAt = time.Now()
	record.UpdatedAt = next.UpdatedAt
	m.records[record.ID] = next
	return nil
}

func (m *memoryStore) MutateCredits(_ context.Context, id uuid.UUID, fn identity.CreditFunc) (*identity.Identity, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, 0, identity.ErrIdentityNotFound
	}
	previous := r.Credits
	next, err := fn(previous)
	if err != nil {
		return nil, previous, err
	}
	if next < 0 {
		return nil, previous, identity.ErrInsufficientCredits
	}
	r.Credits = next
	m.records[id] = r
	return &r, previous, nil
}

func (m *memoryStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return identity.ErrIdentityNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memoryStore) checkUnique(record *identity.Identity) error {
	for id, r := range m.records {
		if id == record.ID {
			continue
		}
		if r.Email == record.Email {
			return identity.ErrDuplicateIdentity
		}
		if record.FederatedID != "" && r.FederatedID == record.FederatedID {
			return identity.ErrDuplicateIdentity
		}
	}
	return nil
}

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

// MockNotifier implements identity.Notifier for testing
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Welcome(ctx context.Context, record *identity.Identity) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// recordingSink collects activity events
type recordingSink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event identity.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) ofType(t identity.ActivityEventType) []identity.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []identity.ActivityEvent
	for _, e := range s.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type quietLogger struct{}

func (quietLogger) Debug(string, ...any) {}
func (quietLogger) Info(string, ...any)  {}
func (quietLogger) Warn(string, ...any)  {}
func (quietLogger) Error(string, ...any) {}

var errBoom = errors.New("boom")

const testSigningKey = "test-signing-key-0123456789abcdef"

func newTestTokens() *identity.TokenService {
	return identity.NewTokenService([]byte(testSigningKey), identity.DefaultTokenTTL, "go-identity-test",
		identity.WithTokenLogger(quietLogger{}))
}

func newTestVault() *identity.BcryptVault {
	return identity.NewBcryptVault(bcrypt.MinCost)
}

func mustHash(t *testing.T, vault identity.PasswordVault, password string) string {
	t.Helper()
	h, err := vault.Hash(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return h
}
