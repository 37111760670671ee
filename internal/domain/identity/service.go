package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinerva/clinerva/internal/domain/audit"
	"github.com/clinerva/clinerva/internal/platform/auth"
	"github.com/clinerva/clinerva/internal/platform/blobstore"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserInactive       = errors.New("account is deactivated")
	ErrStaleLogin         = errors.New("recent sign-in required for this operation")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrReasonRequired     = errors.New("a deactivation reason is required")
)

type Service struct {
	repo   Repository
	tokens *auth.TokenIssuer
	blobs  blobstore.BlobStore
	audit  *audit.Service
	logger zerolog.Logger

	window   time.Duration
	freshAge time.Duration

	now func() time.Time
}

func NewService(repo Repository, tokens *auth.TokenIssuer, blobs blobstore.BlobStore, auditSvc *audit.Service, window, freshAge time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		tokens:   tokens,
		blobs:    blobs,
		audit:    auditSvc,
		logger:   logger,
		window:   window,
		freshAge: freshAge,
		now:      time.Now,
	}
}

// LoginResult carries everything the client needs after a sign-in.
type LoginResult struct {
	Token     string        `json:"token"`
	User      *User         `json:"user"`
	ExpiresIn time.Duration `json:"expires_in"`
}

// Login verifies credentials and opens a session. The verification failure
// reason is never distinguished in the returned error.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if auth.VerifyPassword(u.PasswordHash, password) != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.Active {
		return nil, ErrUserInactive
	}

	now := s.now().UTC()
	sess := &auth.Session{
		ID:        uuid.New(),
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		StartedAt: now,
		LastSeen:  now,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	token, err := s.tokens.Issue(sess)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info().Str("user_id", u.ID.String()).Str("role", u.Role).Msg("user signed in")
	return &LoginResult{Token: token, User: u, ExpiresIn: s.window}, nil
}

// Validate implements auth.SessionStore. An idle session past the rolling
// window is terminated here, on the request that discovers it; otherwise
// LastSeen rolls forward so activity keeps the session alive.
func (s *Service) Validate(ctx context.Context, sessionID uuid.UUID) (*auth.Session, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if sess.Expired(s.window, now) {
		if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("delete expired session")
		}
		return nil, auth.ErrSessionExpired
	}
	if err := s.repo.TouchSession(ctx, sessionID, now); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	sess.LastSeen = now
	return sess, nil
}

// Logout terminates the current session.
func (s *Service) Logout(ctx context.Context, sessionID uuid.UUID) error {
	return s.repo.DeleteSession(ctx, sessionID)
}

// SessionRemaining reports the time left in the rolling window.
func (s *Service) SessionRemaining(sess *auth.Session) time.Duration {
	return sess.Remaining(s.window, s.now().UTC())
}

// PurgeIdleSessions removes sessions whose window has already elapsed. The
// scheduler calls this hourly; Validate handles the interactive case.
func (s *Service) PurgeIdleSessions(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.window)
	n, err := s.repo.DeleteSessionsIdleSince(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int64("purged", n).Msg("idle sessions purged")
	}
	return n, nil
}

// CreateUser registers a staff account. Admin only, enforced at the route.
func (s *Service) CreateUser(ctx context.Context, u *User, password string) error {
	u.Email = strings.TrimSpace(strings.ToLower(u.Email))
	if u.Email == "" || !strings.Contains(u.Email, "@") {
		return fmt.Errorf("a valid email is required")
	}
	if u.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !auth.ValidRoles[u.Role] {
		return fmt.Errorf("invalid role: %s", u.Role)
	}
	if existing, err := s.repo.GetUserByEmail(ctx, u.Email); err == nil && existing != nil {
		return ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.Active = true
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.ActionCreate, "user", u.ID.String(), map[string]interface{}{
		"email": u.Email, "role": u.Role,
	})
	return nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.repo.ListUsers(ctx, limit, offset)
}

// ActiveUserIDsByRole lists active accounts holding a role, for notification
// fan-out.
func (s *Service) ActiveUserIDsByRole(ctx context.Context, role string) ([]uuid.UUID, error) {
	return s.repo.ListActiveUserIDsByRole(ctx, role)
}

// UpdateUser changes profile fields. Deactivation is the account's soft
// delete: it needs a reason for the audit trail and terminates the user's
// sessions so access ends immediately.
func (s *Service) UpdateUser(ctx context.Context, u *User, reason string) error {
	existing, err := s.repo.GetUserByID(ctx, u.ID)
	if err != nil {
		return err
	}
	if u.Role != "" && !auth.ValidRoles[u.Role] {
		return fmt.Errorf("invalid role: %s", u.Role)
	}
	if u.Role == "" {
		u.Role = existing.Role
	}
	if u.Email == "" {
		u.Email = existing.Email
	}
	if u.Name == "" {
		u.Name = existing.Name
	}
	deactivating := existing.Active && !u.Active
	if deactivating && strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return err
	}
	detail := map[string]interface{}{"email": u.Email, "role": u.Role, "active": u.Active}
	if deactivating {
		detail["reason"] = reason
		if err := s.repo.DeleteSessionsByUser(ctx, u.ID); err != nil {
			return fmt.Errorf("terminate sessions: %w", err)
		}
	}
	s.audit.Record(ctx, audit.ActionUpdate, "user", u.ID.String(), detail)
	return nil
}

// ProfileUpdate carries the self-service account edits. Role and active
// status stay admin-only.
type ProfileUpdate struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	Email     string `json:"email"`
}

// UpdateProfile lets a signed-in user edit their own account. Changing the
// email requires a fresh sign-in, like a password change.
func (s *Service) UpdateProfile(ctx context.Context, sess *auth.Session, req ProfileUpdate) (*User, error) {
	u, err := s.repo.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if req.Email != "" && !strings.EqualFold(req.Email, u.Email) {
		if !sess.IsFresh(s.freshAge, s.now().UTC()) {
			return nil, ErrStaleLogin
		}
		email := strings.TrimSpace(strings.ToLower(req.Email))
		if !strings.Contains(email, "@") {
			return nil, fmt.Errorf("a valid email is required")
		}
		if existing, err := s.repo.GetUserByEmail(ctx, email); err == nil && existing != nil && existing.ID != u.ID {
			return nil, ErrEmailTaken
		}
		u.Email = email
	}
	if req.Name != "" {
		u.Name = req.Name
	}
	if req.Specialty != "" {
		u.Specialty = req.Specialty
	}
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ChangePassword lets a user rotate their own password. It requires a fresh
// sign-in and the current password, and terminates every other session of
// the account afterwards.
func (s *Service) ChangePassword(ctx context.Context, sess *auth.Session, current, newPassword string) error {
	if !sess.IsFresh(s.freshAge, s.now().UTC()) {
		return ErrStaleLogin
	}
	u, err := s.repo.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return err
	}
	if auth.VerifyPassword(u.PasswordHash, current) != nil {
		return ErrInvalidCredentials
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, u.ID, hash); err != nil {
		return err
	}
	if err := s.repo.DeleteSessionsByUser(ctx, u.ID); err != nil {
		return fmt.Errorf("terminate sessions: %w", err)
	}
	return s.repo.CreateSession(ctx, sess)
}

// ResetPassword sets a new password without the current one. Admin only.
func (s *Service) ResetPassword(ctx context.Context, userID uuid.UUID, newPassword string) error {
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return err
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}
	if err := s.repo.DeleteSessionsByUser(ctx, userID); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.ActionUpdate, "user", userID.String(), map[string]interface{}{
		"password_reset": true,
	})
	return nil
}

// StoreCertificate saves the user's PKCS#12 bundle in the blob store and
// records its id on the account. The bundle stays password-protected; the
// server never holds the decrypted key outside a signing call.
func (s *Service) StoreCertificate(ctx context.Context, userID uuid.UUID, fileName string, content io.Reader) (*blobstore.BlobMetadata, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
		FileName:    fileName,
		ContentType: "application/x-pkcs12",
		OwnerID:     userID.String(),
		Category:    blobstore.CategoryCertificate,
		CreatedBy:   userID.String(),
	}, content)
	if err != nil {
		return nil, err
	}
	if u.CertificateID != nil {
		// best effort: the old bundle is orphaned otherwise
		if err := s.blobs.Delete(ctx, *u.CertificateID); err != nil {
			s.logger.Warn().Err(err).Str("blob_id", *u.CertificateID).Msg("delete replaced certificate")
		}
	}
	if err := s.repo.UpdateCertificate(ctx, userID, meta.ID); err != nil {
		return nil, err
	}
	return meta, nil
}

// LoadCertificate fetches the raw PKCS#12 bundle for a signing operation.
func (s *Service) LoadCertificate(ctx context.Context, userID uuid.UUID) ([]byte, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.CertificateID == nil {
		return nil, fmt.Errorf("no certificate uploaded for this account")
	}
	rc, _, err := s.blobs.Download(ctx, *u.CertificateID)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
