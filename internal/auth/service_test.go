package auth

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultgate/vaultgate/internal/face"
	"github.com/vaultgate/vaultgate/internal/shared"
	"github.com/vaultgate/vaultgate/internal/token"
)

// ============================================================================
// IN-MEMORY FAKES
// ============================================================================

type memoryRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
	order []uuid.UUID
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[uuid.UUID]*User)}
}

func (r *memoryRepo) CreateUser(ctx context.Context, email, passwordHash string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return nil, shared.ErrEmailTaken
		}
	}
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	r.users[user.ID] = user
	r.order = append(r.order, user.ID)
	copied := *user
	return &copied, nil
}

func (r *memoryRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryRepo) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *memoryRepo) SetCode(ctx context.Context, id uuid.UUID, code string, expires time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.OTPCode = &code
	u.OTPExpires = &expires
	return nil
}

func (r *memoryRepo) ConsumeCode(ctx context.Context, id uuid.UUID, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.OTPCode == nil || *u.OTPCode != code {
		return false, nil
	}
	u.OTPCode = nil
	u.OTPExpires = nil
	return true, nil
}

func (r *memoryRepo) SaveFace(ctx context.Context, id uuid.UUID, embedding []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.FaceEmbedding = append([]float64(nil), embedding...)
	u.FaceRegistered = true
	return nil
}

func (r *memoryRepo) FaceCandidates(ctx context.Context) ([]face.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []face.Candidate
	for _, id := range r.order {
		u := r.users[id]
		if u.FaceRegistered && len(u.FaceEmbedding) > 0 {
			out = append(out, face.Candidate{
				ID:        u.ID.String(),
				Email:     u.Email,
				Embedding: append([]float64(nil), u.FaceEmbedding...),
			})
		}
	}
	return out, nil
}

func (r *memoryRepo) ClearExpiredCodes(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cleared int64
	for _, u := range r.users {
		if u.OTPCode != nil && u.OTPExpires != nil && u.OTPExpires.Before(now) {
			u.OTPCode = nil
			u.OTPExpires = nil
			cleared++
		}
	}
	return cleared, nil
}

type stubMailer struct {
	mu       sync.Mutex
	sent     []sentMail
	failWith error
}

type sentMail struct {
	to, subject, body string
}

func (m *stubMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (m *stubMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *stubMailer) {
	t.Helper()
	repo := newMemoryRepo()
	mailer := &stubMailer{}
	issuer, err := token.NewIssuer([]byte("test-secret"), token.DefaultTTL)
	require.NoError(t, err)
	svc := NewService(repo, issuer, mailer, nil, DefaultCodeTTL)
	return svc, repo, mailer
}

// ============================================================================
// PASSWORD FLOW
// ============================================================================

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, user.ID)

	got, err := svc.Authenticate(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = svc.Authenticate(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@x.com", "pw123")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "pw123")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "a@x.com", "other")
	assert.ErrorIs(t, err, shared.ErrEmailTaken)
}

func TestAuthenticateRandomPasswordPairs(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 10; i++ {
		email := fmt.Sprintf("user%d@x.com", i)
		password := fmt.Sprintf("secret-%d-%d", i, rng.Int63())
		_, err := svc.Register(ctx, email, password)
		require.NoError(t, err)

		_, err = svc.Authenticate(ctx, email, password)
		assert.NoError(t, err, "correct password must authenticate")

		_, err = svc.Authenticate(ctx, email, password+"x")
		assert.ErrorIs(t, err, shared.ErrInvalidCredentials, "any other password must fail")
	}
}

type failingRepo struct {
	*memoryRepo
	findByEmailErr error
}

func (r *failingRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if r.findByEmailErr != nil {
		return nil, r.findByEmailErr
	}
	return r.memoryRepo.FindByEmail(ctx, email)
}

func TestAuthenticateStoreFailureIsNotCredentialFailure(t *testing.T) {
	repo := &failingRepo{memoryRepo: newMemoryRepo()}
	mailer := &stubMailer{}
	issuer, err := token.NewIssuer([]byte("test-secret"), token.DefaultTTL)
	require.NoError(t, err)
	svc := NewService(repo, issuer, mailer, nil, DefaultCodeTTL)
	ctx := context.Background()

	_, err = svc.Register(ctx, "a@x.com", "pw123")
	require.NoError(t, err)

	errDB := errors.New("connection refused")
	repo.findByEmailErr = errDB

	_, err = svc.Authenticate(ctx, "a@x.com", "pw123")
	require.Error(t, err)
	assert.ErrorIs(t, err, errDB, "the store failure must reach the caller")
	assert.NotErrorIs(t, err, shared.ErrInvalidCredentials)
}

// ============================================================================
// ONE-TIME CODE FLOW
// ============================================================================

func TestCodeRoundTripSingleUse(t *testing.T) {
	svc, _, mailer := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@x.com", "pw123")
	require.NoError(t, err)

	require.NoError(t, svc.IssueCode(ctx, user.ID))
	msg := mailer.last(t)
	assert.Equal(t, "a@x.com", msg.to)
	assert.Equal(t, "Your Login OTP Code", msg.subject)

	code := extractCode(t, msg.body)
	signed, err := svc.VerifyCode(ctx, user.ID, code)
	require.NoError(t, err)
	assert.NotEmpty(t, signed)

	// The same code can never be consumed twice.
	_, err = svc.VerifyCode(ctx, user.ID, code)
	assert.ErrorIs(t, err, shared.ErrCodeExpired)
}

func TestCodeMismatch(t *testing.T) {
	svc, _, mailer := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	require.NoError(t, svc.IssueCode(ctx, user.ID))

	code := extractCode(t, mailer.last(t).body)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	_, err = svc.VerifyCode(ctx, user.ID, wrong)
	assert.ErrorIs(t, err, shared.ErrCodeMismatch)

	// Still valid after a failed guess.
	_, err = svc.VerifyCode(ctx, user.ID, code)
	assert.NoError(t, err)
}

func TestCodeWhitespaceTolerance(t *testing.T) {
	svc, _, mailer := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	require.NoError(t, svc.IssueCode(ctx, user.ID))

	code := extractCode(t, mailer.last(t).body)
	_, err = svc.VerifyCode(ctx, user.ID, "  "+code+" \n")
	assert.NoError(t, err)
}

func TestCodeExpiry(t *testing.T) {
	svc, _, mailer := newTestService(t)
	ctx := context.Background()

	issuedAt := time.Now()
	svc.WithNow(func() time.Time { return issuedAt })

	user, err := svc.Register(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	require.NoError(t, svc.IssueCode(ctx, user.ID))
	code := extractCode(t, mailer.last(t).body)

	// One second past the 120s window, even the right code fails.
	svc.WithNow(func() time.Time { return issuedAt.Add(DefaultCodeTTL + time.Second) })
	_, err = svc.VerifyCode(ctx, user.ID, code)
	assert.ErrorIs(t, err, shared.ErrCodeExpired)
}

func TestVerifyCodeWithoutIssue(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@x.com", "pw123")
	require.NoError(t, err)

	_, err = svc.VerifyCode(ctx, user.ID, "123456")
	assert.ErrorIs(t, err, shared.ErrCodeExpired)
}

func TestIssueCodeUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.IssueCode(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestIssueCodeDeliveryFailure(t *testing.T) {
	svc, _, mailer := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@x.com", "pw123")
	require.NoError(t, err)

	mailer.failWith = fmt.Errorf("%w: smtp down", shared.ErrDelivery)
	err = svc.IssueCode(ctx, user.ID)
	assert.ErrorIs(t, err, shared.ErrDelivery)
}

func TestReissueInvalidatesPriorCode(t *testing.T) {
	svc, _, mailer := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@x.com", "pw123")
	require.NoError(t, err)

	require.NoError(t, svc.IssueCode(ctx, user.ID))
	first := extractCode(t, mailer.last(t).body)
	require.NoError(t, svc.IssueCode(ctx, user.ID))
	second := extractCode(t, mailer.last(t).body)

	if first != second {
		_, err = svc.VerifyCode(ctx, user.ID, first)
		assert.Error(t, err)
	}
	_, err = svc.VerifyCode(ctx, user.ID, second)
	assert.NoError(t, err)
}

func TestRandomCodeRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := randomCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		assert.GreaterOrEqual(t, code, "100000")
		assert.LessOrEqual(t, code, "999999")
	}
}

// ============================================================================
// FACE FLOW
// ============================================================================

func TestFaceRegisterAndVerify(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@x.com", "pw123")
	require.NoError(t, err)

	emb := []float64{0.1, 0.2, 0.3}
	require.NoError(t, svc.RegisterFace(ctx, user.ID, emb))

	res, err := svc.VerifyFace(ctx, user.ID, emb)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, user.ID.String(), res.UserID)
	assert.Zero(t, res.Distance)
}

func TestFaceVerifyMismatchIsNotAnError(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	require.NoError(t, svc.RegisterFace(ctx, user.ID, []float64{0, 0, 0}))

	res, err := svc.VerifyFace(ctx, user.ID, []float64{1, 1, 1})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, res.Token)
}

func TestFaceVerifyUnregistered(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@x.com", "pw123")
	require.NoError(t, err)

	_, err = svc.VerifyFace(ctx, user.ID, []float64{0.1})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestFaceVerifyDimensionMismatch(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	require.NoError(t, svc.RegisterFace(ctx, user.ID, []float64{0.1, 0.2}))

	_, err = svc.VerifyFace(ctx, user.ID, []float64{0.1, 0.2, 0.3})
	assert.ErrorIs(t, err, face.ErrDimensionMismatch)
}

func TestFaceReRegistrationReplacesEmbedding(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@x.com", "pw123")
	require.NoError(t, err)

	old := []float64{0.9, 0.9}
	require.NoError(t, svc.RegisterFace(ctx, user.ID, old))
	replacement := []float64{0.1, 0.1}
	require.NoError(t, svc.RegisterFace(ctx, user.ID, replacement))

	res, err := svc.VerifyFace(ctx, user.ID, replacement)
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = svc.VerifyFace(ctx, user.ID, old)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestIdentifyFacePicksBestAcrossUsers(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	alice, err := svc.Register(ctx, "alice@x.com", "pw")
	require.NoError(t, err)
	bob, err := svc.Register(ctx, "bob@x.com", "pw")
	require.NoError(t, err)

	require.NoError(t, svc.RegisterFace(ctx, alice.ID, []float64{0.5, 0}))
	require.NoError(t, svc.RegisterFace(ctx, bob.ID, []float64{0.1, 0}))

	res, err := svc.IdentifyFace(ctx, []float64{0, 0})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, bob.ID.String(), res.UserID)
}

func TestIdentifyFaceNoRegisteredUsers(t *testing.T) {
	svc, _, _ := newTestService(t)
	res, err := svc.IdentifyFace(context.Background(), []float64{0.1})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func extractCode(t *testing.T, body string) string {
	t.Helper()
	start := strings.Index(body, "bold;\">")
	require.Greater(t, start, -1, "body %q", body)
	rest := body[start+len("bold;\">"):]
	end := strings.Index(rest, "<")
	require.Greater(t, end, -1)
	return rest[:end]
}

func TestVerifyCodeConcurrentSingleWinner(t *testing.T) {
	svc, _, mailer := newTestService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	require.NoError(t, svc.IssueCode(ctx, user.ID))
	code := extractCode(t, mailer.last(t).body)

	const attempts = 8
	errCh := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.VerifyCode(ctx, user.ID, code)
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	var wins int
	for err := range errCh {
		if err == nil {
			wins++
		} else {
			require.True(t, errors.Is(err, shared.ErrCodeExpired))
		}
	}
	assert.Equal(t, 1, wins)
}
