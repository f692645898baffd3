package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vaultgate/vaultgate/internal/face"
	"github.com/vaultgate/vaultgate/internal/mail"
	"github.com/vaultgate/vaultgate/internal/shared"
	"github.com/vaultgate/vaultgate/internal/token"
)

// DefaultCodeTTL is the one-time code validity window.
const DefaultCodeTTL = 120 * time.Second

const codeSubject = "Your Login OTP Code"

// Service wraps authentication business rules.
type Service struct {
	repo    Repository
	tokens  *token.Issuer
	mailer  mail.Mailer
	limiter *Limiter
	matcher face.Matcher
	codeTTL time.Duration
	now     func() time.Time
}

// NewService constructs a new Service. The limiter may be nil, in which
// case attempts are unbounded.
func NewService(repo Repository, tokens *token.Issuer, mailer mail.Mailer, limiter *Limiter, codeTTL time.Duration) *Service {
	if codeTTL <= 0 {
		codeTTL = DefaultCodeTTL
	}
	return &Service{
		repo:    repo,
		tokens:  tokens,
		mailer:  mailer,
		limiter: limiter,
		matcher: face.NewMatcher(),
		codeTTL: codeTTL,
		now:     time.Now,
	}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Register creates a new user from email and password.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateUser(ctx, email, string(hash))
}

// Authenticate validates email/password credentials and returns the
// user. It never issues a token; a second factor must follow.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	if err := s.limiter.Allow(ctx, "login", email); err != nil {
		return nil, err
	}
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	s.limiter.Reset(ctx, "login", email)
	return user, nil
}

// IssueCode generates a fresh one-time code, persists it with its
// expiry, and emails it to the user.
func (s *Service) IssueCode(ctx context.Context, userID uuid.UUID) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	code, err := randomCode()
	if err != nil {
		return err
	}
	expires := s.now().Add(s.codeTTL)
	if err := s.repo.SetCode(ctx, user.ID, code, expires); err != nil {
		return err
	}

	body := fmt.Sprintf(`<h2>Your OTP Code</h2>
<p style="font-size:20px; font-weight:bold;">%s</p>
<p>This OTP is valid for 2 minutes.</p>`, code)
	if err := s.mailer.Send(ctx, user.Email, codeSubject, body); err != nil {
		return fmt.Errorf("send code: %w", err)
	}
	return nil
}

// VerifyCode checks a submitted one-time code and issues a bearer
// token on success. The stored code is cleared atomically so it can
// only ever be consumed once.
func (s *Service) VerifyCode(ctx context.Context, userID uuid.UUID, submitted string) (string, error) {
	if err := s.limiter.Allow(ctx, "verify", userID.String()); err != nil {
		return "", err
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.OTPCode == nil || user.OTPExpires == nil || s.now().After(*user.OTPExpires) {
		return "", shared.ErrCodeExpired
	}
	if strings.TrimSpace(*user.OTPCode) != strings.TrimSpace(submitted) {
		return "", shared.ErrCodeMismatch
	}
	consumed, err := s.repo.ConsumeCode(ctx, user.ID, *user.OTPCode)
	if err != nil {
		return "", err
	}
	if !consumed {
		// A concurrent request won the race for this code.
		return "", shared.ErrCodeExpired
	}
	s.limiter.Reset(ctx, "verify", userID.String())
	return s.tokens.Issue(user.ID.String(), user.Email)
}

// RegisterFace stores the embedding for a user, replacing any prior one.
func (s *Service) RegisterFace(ctx context.Context, userID uuid.UUID, embedding []float64) error {
	if len(embedding) == 0 {
		return face.ErrEmptyEmbedding
	}
	return s.repo.SaveFace(ctx, userID, embedding)
}

// VerifyFace compares the submitted embedding against the claimed
// user's stored one. This is the primary face login flow.
func (s *Service) VerifyFace(ctx context.Context, userID uuid.UUID, embedding []float64) (FaceLogin, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return FaceLogin{}, err
	}
	if !user.FaceRegistered || len(user.FaceEmbedding) == 0 {
		return FaceLogin{}, shared.ErrNotFound
	}
	res, err := s.matcher.Verify(embedding, user.FaceEmbedding)
	if err != nil {
		return FaceLogin{}, err
	}
	if !res.Matched {
		return FaceLogin{Distance: res.Distance}, nil
	}
	signed, err := s.tokens.Issue(user.ID.String(), user.Email)
	if err != nil {
		return FaceLogin{}, err
	}
	return FaceLogin{Success: true, Token: signed, UserID: user.ID.String(), Distance: res.Distance}, nil
}

// IdentifyFace scans every registered embedding and logs in the owner
// of the globally best match. Legacy fallback for clients that cannot
// supply a user id.
func (s *Service) IdentifyFace(ctx context.Context, embedding []float64) (FaceLogin, error) {
	candidates, err := s.repo.FaceCandidates(ctx)
	if err != nil {
		return FaceLogin{}, err
	}
	best, err := s.matcher.BestMatch(embedding, candidates)
	if err != nil {
		return FaceLogin{}, err
	}
	if !best.Matched {
		return FaceLogin{Distance: best.Distance}, nil
	}
	signed, err := s.tokens.Issue(best.ID, best.Email)
	if err != nil {
		return FaceLogin{}, err
	}
	return FaceLogin{Success: true, Token: signed, UserID: best.ID, Distance: best.Distance}, nil
}

// randomCode draws a 6-digit code uniformly from [100000, 999999].
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
