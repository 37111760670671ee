package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinerva/clinerva/internal/domain/audit"
	"github.com/clinerva/clinerva/internal/platform/auth"
	"github.com/clinerva/clinerva/internal/platform/blobstore"
)

// -- Mock Repository --

type mockRepo struct {
	users    map[uuid.UUID]*User
	sessions map[uuid.UUID]*auth.Session
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		users:    make(map[uuid.UUID]*User),
		sessions: make(map[uuid.UUID]*auth.Session),
	}
}

func (m *mockRepo) CreateUser(_ context.Context, u *User) error {
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = time.Now()
	m.users[u.ID] = u
	return nil
}

func (m *mockRepo) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *mockRepo) GetUserByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *mockRepo) UpdateUser(_ context.Context, u *User) error {
	existing, ok := m.users[u.ID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = existing.PasswordHash
	u.CertificateID = existing.CertificateID
	m.users[u.ID] = u
	return nil
}

func (m *mockRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockRepo) UpdateCertificate(_ context.Context, id uuid.UUID, blobID string) error {
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.CertificateID = &blobID
	return nil
}

func (m *mockRepo) ListUsers(_ context.Context, limit, offset int) ([]*User, int, error) {
	var out []*User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *mockRepo) ListActiveUserIDsByRole(_ context.Context, role string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, u := range m.users {
		if u.Role == role && u.Active {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (m *mockRepo) CreateSession(_ context.Context, s *auth.Session) error {
	m.sessions[s.ID] = s
	return nil
}

func (m *mockRepo) GetSession(_ context.Context, id uuid.UUID) (*auth.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, auth.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockRepo) TouchSession(_ context.Context, id uuid.UUID, lastSeen time.Time) error {
	s, ok := m.sessions[id]
	if !ok {
		return auth.ErrSessionNotFound
	}
	s.LastSeen = lastSeen
	return nil
}

func (m *mockRepo) DeleteSession(_ context.Context, id uuid.UUID) error {
	delete(m.sessions, id)
	return nil
}

func (m *mockRepo) DeleteSessionsByUser(_ context.Context, userID uuid.UUID) error {
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *mockRepo) DeleteSessionsIdleSince(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, s := range m.sessions {
		if s.LastSeen.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

type auditRepo struct {
	entries []*audit.Entry
}

func (m *auditRepo) Append(_ context.Context, e *audit.Entry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *auditRepo) List(_ context.Context, _ audit.Filter, _, _ int) ([]*audit.Entry, int, error) {
	return m.entries, len(m.entries), nil
}

// -- Helpers --

const testWindow = 90 * time.Minute

func newTestService(t *testing.T) (*Service, *mockRepo) {
	t.Helper()
	svc, repo, _ := newTestServiceWithAudit(t)
	return svc, repo
}

func newTestServiceWithAudit(t *testing.T) (*Service, *mockRepo, *auditRepo) {
	t.Helper()
	repo := newMockRepo()
	arepo := &auditRepo{}
	issuer := auth.NewTokenIssuer("test-secret", "clinerva-test")
	svc := NewService(repo, issuer, blobstore.NewInMemoryBlobStore(),
		audit.NewService(arepo, zerolog.Nop()), testWindow, 5*time.Minute, zerolog.Nop())
	return svc, repo, arepo
}

func seedUser(t *testing.T, svc *Service, email, password, role string) *User {
	t.Helper()
	u := &User{Email: email, Name: "Test User", Role: role}
	if err := svc.CreateUser(context.Background(), u, password); err != nil {
		t.Fatal(err)
	}
	return u
}

// -- Tests --

func TestLogin_Success(t *testing.T) {
	svc, repo := newTestService(t)
	seedUser(t, svc, "doc@clinic.test", "hunter22", auth.RoleDoctor)

	res, err := svc.Login(context.Background(), "doc@clinic.test", "hunter22")
	if err != nil {
		t.Fatal(err)
	}
	if res.Token == "" {
		t.Error("expected a token")
	}
	if res.ExpiresIn != testWindow {
		t.Errorf("expected expires_in %v, got %v", testWindow, res.ExpiresIn)
	}
	if len(repo.sessions) != 1 {
		t.Errorf("expected one session, got %d", len(repo.sessions))
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	seedUser(t, svc, "doc@clinic.test", "hunter22", auth.RoleDoctor)

	if _, err := svc.Login(context.Background(), "doc@clinic.test", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "nobody@clinic.test", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email must map to the same error, got %v", err)
	}
}

func TestLogin_InactiveUser(t *testing.T) {
	svc, _ := newTestService(t)
	u := seedUser(t, svc, "doc@clinic.test", "hunter22", auth.RoleDoctor)
	u.Active = false

	if _, err := svc.Login(context.Background(), "doc@clinic.test", "hunter22"); !errors.Is(err, ErrUserInactive) {
		t.Errorf("expected ErrUserInactive, got %v", err)
	}
}

func TestValidate_RollsWindowForward(t *testing.T) {
	svc, repo := newTestService(t)
	seedUser(t, svc, "doc@clinic.test", "hunter22", auth.RoleDoctor)

	now := time.Now().UTC()
	svc.now = func() time.Time { return now }
	res, err := svc.Login(context.Background(), "doc@clinic.test", "hunter22")
	if err != nil {
		t.Fatal(err)
	}
	_ = res

	var sessID uuid.UUID
	for id := range repo.sessions {
		sessID = id
	}

	// 80 minutes of idleness is still inside the window; activity rolls it.
	now = now.Add(80 * time.Minute)
	sess, err := svc.Validate(context.Background(), sessID)
	if err != nil {
		t.Fatal(err)
	}
	if !sess.LastSeen.Equal(now) {
		t.Errorf("expected LastSeen rolled to %v, got %v", now, sess.LastSeen)
	}

	// Another 80 minutes still works because the window rolled.
	now = now.Add(80 * time.Minute)
	if _, err := svc.Validate(context.Background(), sessID); err != nil {
		t.Fatalf("rolled session should still be valid: %v", err)
	}
}

func TestValidate_ExpiredSessionTerminated(t *testing.T) {
	svc, repo := newTestService(t)
	seedUser(t, svc, "doc@clinic.test", "hunter22", auth.RoleDoctor)

	now := time.Now().UTC()
	svc.now = func() time.Time { return now }
	if _, err := svc.Login(context.Background(), "doc@clinic.test", "hunter22"); err != nil {
		t.Fatal(err)
	}
	var sessID uuid.UUID
	for id := range repo.sessions {
		sessID = id
	}

	now = now.Add(testWindow + time.Minute)
	if _, err := svc.Validate(context.Background(), sessID); !errors.Is(err, auth.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if len(repo.sessions) != 0 {
		t.Error("expired session should be deleted")
	}
	if _, err := svc.Validate(context.Background(), sessID); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Errorf("second validation should report not found, got %v", err)
	}
}

func TestChangePassword_RequiresFreshLogin(t *testing.T) {
	svc, _ := newTestService(t)
	u := seedUser(t, svc, "doc@clinic.test", "hunter22", auth.RoleDoctor)

	now := time.Now().UTC()
	svc.now = func() time.Time { return now }
	sess := &auth.Session{ID: uuid.New(), UserID: u.ID, Email: u.Email, Role: u.Role, StartedAt: now.Add(-10 * time.Minute), LastSeen: now}

	if err := svc.ChangePassword(context.Background(), sess, "hunter22", "newpass99"); !errors.Is(err, ErrStaleLogin) {
		t.Errorf("expected ErrStaleLogin for a 10-minute-old session, got %v", err)
	}

	sess.StartedAt = now.Add(-time.Minute)
	if err := svc.ChangePassword(context.Background(), sess, "wrong", "newpass99"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), sess, "hunter22", "newpass99"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Login(context.Background(), "doc@clinic.test", "newpass99"); err != nil {
		t.Errorf("new password should work: %v", err)
	}
}

func TestUpdateProfile_EmailChangeRequiresFreshLogin(t *testing.T) {
	svc, _ := newTestService(t)
	u := seedUser(t, svc, "doc@clinic.test", "hunter22", auth.RoleDoctor)
	seedUser(t, svc, "other@clinic.test", "hunter22", auth.RoleDoctor)

	now := time.Now().UTC()
	svc.now = func() time.Time { return now }
	sess := &auth.Session{ID: uuid.New(), UserID: u.ID, Email: u.Email, Role: u.Role, StartedAt: now.Add(-10 * time.Minute), LastSeen: now}

	// Name and specialty edits do not need a fresh sign-in.
	got, err := svc.UpdateProfile(context.Background(), sess, ProfileUpdate{Name: "Dr. V. Vargas", Specialty: "Cardiology"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Dr. V. Vargas" || got.Specialty != "Cardiology" {
		t.Errorf("profile edits not applied: %+v", got)
	}

	if _, err := svc.UpdateProfile(context.Background(), sess, ProfileUpdate{Email: "new@clinic.test"}); !errors.Is(err, ErrStaleLogin) {
		t.Errorf("expected ErrStaleLogin for a 10-minute-old session, got %v", err)
	}

	sess.StartedAt = now.Add(-time.Minute)
	if _, err := svc.UpdateProfile(context.Background(), sess, ProfileUpdate{Email: "other@clinic.test"}); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
	got, err = svc.UpdateProfile(context.Background(), sess, ProfileUpdate{Email: "New@Clinic.test"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Email != "new@clinic.test" {
		t.Errorf("email should be stored lowercased, got %q", got.Email)
	}
}

func TestChangePassword_TerminatesOtherSessions(t *testing.T) {
	svc, repo := newTestService(t)
	u := seedUser(t, svc, "doc@clinic.test", "hunter22", auth.RoleDoctor)

	now := time.Now().UTC()
	svc.now = func() time.Time { return now }
	if _, err := svc.Login(context.Background(), "doc@clinic.test", "hunter22"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Login(context.Background(), "doc@clinic.test", "hunter22"); err != nil {
		t.Fatal(err)
	}

	sess := &auth.Session{ID: uuid.New(), UserID: u.ID, StartedAt: now, LastSeen: now}
	repo.sessions[sess.ID] = sess
	if err := svc.ChangePassword(context.Background(), sess, "hunter22", "newpass99"); err != nil {
		t.Fatal(err)
	}
	if len(repo.sessions) != 1 {
		t.Fatalf("expected only the changing session to survive, got %d", len(repo.sessions))
	}
	if _, ok := repo.sessions[sess.ID]; !ok {
		t.Error("the session that changed the password should stay signed in")
	}
}

func TestUpdateUser_DeactivationTerminatesSessions(t *testing.T) {
	svc, repo, arepo := newTestServiceWithAudit(t)
	u := seedUser(t, svc, "nurse@clinic.test", "hunter22", auth.RoleNurse)
	if _, err := svc.Login(context.Background(), "nurse@clinic.test", "hunter22"); err != nil {
		t.Fatal(err)
	}

	updated := &User{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, Active: false}
	if err := svc.UpdateUser(context.Background(), updated, ""); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("deactivation without a reason must fail, got %v", err)
	}
	if err := svc.UpdateUser(context.Background(), updated, "left the clinic"); err != nil {
		t.Fatal(err)
	}
	if len(repo.sessions) != 0 {
		t.Error("deactivation should terminate sessions immediately")
	}
	last := arepo.entries[len(arepo.entries)-1]
	if last.Action != audit.ActionUpdate || last.Detail["reason"] != "left the clinic" {
		t.Errorf("deactivation should audit the reason, got %+v", last)
	}
}

func TestCreateUser_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	seedUser(t, svc, "doc@clinic.test", "hunter22", auth.RoleDoctor)

	if err := svc.CreateUser(context.Background(), &User{Email: "doc@clinic.test", Name: "Dup", Role: auth.RoleDoctor}, "hunter22"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
	if err := svc.CreateUser(context.Background(), &User{Email: "x@clinic.test", Name: "X", Role: "janitor"}, "hunter22"); err == nil {
		t.Error("expected invalid role to fail")
	}
}

func TestPurgeIdleSessions(t *testing.T) {
	svc, repo := newTestService(t)
	now := time.Now().UTC()
	svc.now = func() time.Time { return now }

	stale := &auth.Session{ID: uuid.New(), UserID: uuid.New(), StartedAt: now.Add(-3 * time.Hour), LastSeen: now.Add(-2 * time.Hour)}
	live := &auth.Session{ID: uuid.New(), UserID: uuid.New(), StartedAt: now, LastSeen: now.Add(-time.Minute)}
	repo.sessions[stale.ID] = stale
	repo.sessions[live.ID] = live

	n, err := svc.PurgeIdleSessions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged, got %d", n)
	}
	if _, ok := repo.sessions[live.ID]; !ok {
		t.Error("live session must survive the purge")
	}
}

func TestStoreAndLoadCertificate(t *testing.T) {
	svc, _ := newTestService(t)
	u := seedUser(t, svc, "doc@clinic.test", "hunter22", auth.RoleDoctor)

	meta, err := svc.StoreCertificate(context.Background(), u.ID, "cert.p12", strings.NewReader("p12-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if meta.Category != blobstore.CategoryCertificate {
		t.Errorf("expected certificate category, got %q", meta.Category)
	}

	data, err := svc.LoadCertificate(context.Background(), u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "p12-bytes" {
		t.Errorf("unexpected certificate content %q", data)
	}
}
