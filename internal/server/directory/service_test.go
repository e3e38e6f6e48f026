package directory

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"github.com/openchat-im/openchat/internal/common"
	"github.com/openchat-im/openchat/internal/logging"
	"github.com/openchat-im/openchat/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeRepo struct {
	byUser map[string]*models.DirectoryRecord
	byAuth map[string]*models.DirectoryRecord

	authAlwaysTaken bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byUser: make(map[string]*models.DirectoryRecord),
		byAuth: make(map[string]*models.DirectoryRecord),
	}
}

func (f *fakeRepo) Create(ctx context.Context, rec *models.DirectoryRecord) error {
	if _, ok := f.byUser[rec.Username]; ok {
		return common.ErrorDuplicateUsername
	}
	if _, ok := f.byAuth[rec.Authenticator]; ok {
		return common.ErrorAuthenticatorExhausted
	}
	f.byUser[rec.Username] = rec
	f.byAuth[rec.Authenticator] = rec
	return nil
}

func (f *fakeRepo) FindByUsername(ctx context.Context, username string) (*models.DirectoryRecord, error) {
	if rec, ok := f.byUser[username]; ok {
		return rec, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeRepo) FindByAuthenticator(ctx context.Context, code string) (*models.DirectoryRecord, error) {
	if rec, ok := f.byAuth[code]; ok {
		return rec, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeRepo) AuthenticatorExists(ctx context.Context, code string) (bool, error) {
	if f.authAlwaysTaken {
		return true, nil
	}
	_, ok := f.byAuth[code]
	return ok, nil
}

func (f *fakeRepo) UpdateStoreLocation(ctx context.Context, username, location string) error {
	rec, ok := f.byUser[username]
	if !ok {
		return common.ErrorNotFound
	}
	rec.StoreLocation = location
	return nil
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newTestService(repo *fakeRepo) *Service {
	return NewService(repo, testLogger(), "sqlite:///var/lib/oc", "")
}

func TestRegister_Success(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	rec, err := svc.Register(context.Background(), "alice", "sekret99")
	require.NoError(t, err)

	assert.Equal(t, "alice", rec.Username)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z]{8}$`), rec.Authenticator)
	assert.True(t, strings.HasPrefix(rec.StoreLocation, "sqlite:///var/lib/oc/oc-"))
	assert.True(t, strings.HasSuffix(rec.StoreLocation, ".db"))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte("sekret99")))
}

func TestRegister_DuplicateUsername(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "sekret99")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "other-password")
	require.ErrorIs(t, err, common.ErrorDuplicateUsername)
}

func TestRegister_WeakPassword(t *testing.T) {
	svc := newTestService(newFakeRepo())

	_, err := svc.Register(context.Background(), "alice", "short")
	require.ErrorIs(t, err, common.ErrorWeakPassword)
}

func TestRegister_EmptyUsername(t *testing.T) {
	svc := newTestService(newFakeRepo())

	_, err := svc.Register(context.Background(), "   ", "sekret99")
	require.ErrorIs(t, err, common.ErrorInvalidInput)
}

func TestRegister_AuthenticatorSpaceExhausted(t *testing.T) {
	repo := newFakeRepo()
	repo.authAlwaysTaken = true
	svc := newTestService(repo)

	_, err := svc.Register(context.Background(), "alice", "sekret99")
	require.ErrorIs(t, err, common.ErrorAuthenticatorExhausted)
}

func TestAuthenticate(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "sekret99")
	require.NoError(t, err)

	rec, err := svc.Authenticate(ctx, "alice", "sekret99")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Username)

	_, err = svc.Authenticate(ctx, "alice", "wrong")
	require.ErrorIs(t, err, common.ErrInvalidPassword)

	_, err = svc.Authenticate(ctx, "ghost", "sekret99")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestResolveByAuthenticator(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	created, err := svc.Register(ctx, "alice", "sekret99")
	require.NoError(t, err)

	rec, err := svc.ResolveByAuthenticator(ctx, created.Authenticator)
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Username)

	_, err = svc.ResolveByAuthenticator(ctx, "ZZZZZZZZ")
	require.ErrorIs(t, err, common.ErrorAuthenticatorNotFound)
}

func TestPublicLocation(t *testing.T) {
	svc := NewService(newFakeRepo(), testLogger(),
		"postgres://oc:pw@db.internal:5432", "postgres://oc:pw@chat.example.com:5432")

	got := svc.PublicLocation("postgres://oc:pw@db.internal:5432/oc-abc")
	assert.Equal(t, "postgres://oc:pw@chat.example.com:5432/oc-abc", got)

	// Foreign locations pass through untouched.
	foreign := "postgres://other:pw@elsewhere.net:5432/store"
	assert.Equal(t, foreign, svc.PublicLocation(foreign))
}

func TestPromoteLocation(t *testing.T) {
	orig := provisionPostgres
	provisionPostgres = func(ctx context.Context, adminDSN, name string) error { return nil }
	defer func() { provisionPostgres = orig }()

	repo := newFakeRepo()
	svc := NewService(repo, testLogger(),
		"postgres://oc:pw@db.internal:5432", "postgres://oc:pw@chat.example.com:5432")
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "sekret99")
	require.NoError(t, err)

	public, err := svc.PromoteLocation(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(public, "postgres://oc:pw@chat.example.com:5432/oc-"))
	assert.Equal(t, public, repo.byUser["alice"].StoreLocation)

	// Already promoted: stable.
	again, err := svc.PromoteLocation(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, public, again)
}

func TestBuildLocation(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/oc-1", BuildLocation("postgres://u:p@db:5432/", "oc-1"))
	assert.Equal(t, "sqlite:///data/oc-1.db", BuildLocation("sqlite:///data", "oc-1"))
}
