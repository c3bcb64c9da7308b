package local

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/gamedock/gamedock/app/models"
	"github.com/gamedock/gamedock/internal/pkg/auth"
	"github.com/gamedock/gamedock/internal/pkg/auth/token"
)

type fakeUserRepo struct {
	byID    map[uint]*models.User
	byEmail map[string]*models.User
	nextID  uint
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[uint]*models.User{}, byEmail: map[string]*models.User{}, nextID: 1}
}

func (f *fakeUserRepo) Create(user *models.User) error {
	user.ID = f.nextID
	f.nextID++
	f.byID[user.ID] = user
	f.byEmail[user.Email] = user
	return nil
}

func (f *fakeUserRepo) GetByID(id uint) (*models.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetByEmail(email string) (*models.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetByExternalID(externalID string) (*models.User, error) {
	for _, u := range f.byID {
		if u.ExternalID != nil && *u.ExternalID == externalID {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) UpsertByExternalID(user *models.User) (bool, error) {
	if user.ExternalID == nil {
		return false, errors.New("missing external id")
	}
	if existing, err := f.GetByExternalID(*user.ExternalID); err == nil {
		user.ID = existing.ID
		f.byID[user.ID] = user
		f.byEmail[user.Email] = user
		return false, nil
	}
	return true, f.Create(user)
}

func (f *fakeUserRepo) Update(user *models.User) error {
	f.byID[user.ID] = user
	f.byEmail[user.Email] = user
	return nil
}

func (f *fakeUserRepo) Deactivate(id uint, _ time.Time) error {
	u, ok := f.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.IsActive = false
	return nil
}

func (f *fakeUserRepo) List(int, int) ([]models.User, error) { return nil, nil }
func (f *fakeUserRepo) Count() (int64, error)                { return int64(len(f.byID)), nil }

func newTestProvider(t *testing.T) (*Provider, *fakeUserRepo) {
	t.Helper()
	codec, err := token.NewCodec("local-test-secret-0123456789", time.Hour)
	if err != nil {
		t.Fatalf("NewCodec failed: %v", err)
	}
	repo := newFakeUserRepo()
	p, err := New(nil, auth.Deps{Users: repo, Codec: codec})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p.(*Provider), repo
}

func TestCreateUserPasswordLength(t *testing.T) {
	p, _ := newTestProvider(t)

	if _, err := p.CreateUser(context.Background(), "Alice", "alice@example.com", "1234567"); !errors.Is(err, models.ErrPasswordTooShort) {
		t.Errorf("7-char password: err = %v, want ErrPasswordTooShort", err)
	}

	user, err := p.CreateUser(context.Background(), "Alice", "alice@example.com", "12345678")
	if err != nil {
		t.Fatalf("8-char password rejected: %v", err)
	}
	if user.PasswordHash == "" || user.PasswordHash == "12345678" {
		t.Error("password was not hashed")
	}
	if !user.IsActive {
		t.Error("new account is not active")
	}
}

func TestAuthenticateFailureIsIndistinguishable(t *testing.T) {
	p, repo := newTestProvider(t)
	if _, err := p.CreateUser(context.Background(), "Alice", "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	unknown, err := p.Authenticate(context.Background(), auth.Credentials{Email: "nobody@example.com", Password: "whatever"})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	wrongPw, err := p.Authenticate(context.Background(), auth.Credentials{Email: "alice@example.com", Password: "wrong"})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}

	if unknown.Success || wrongPw.Success {
		t.Fatal("failed login reported success")
	}
	if unknown.Error != wrongPw.Error {
		t.Errorf("failure messages differ: %q vs %q", unknown.Error, wrongPw.Error)
	}
	if unknown.Error != auth.ErrInvalidCredentials.Error() {
		t.Errorf("failure message = %q, want the generic one", unknown.Error)
	}

	// Deactivated accounts fail identically.
	stored, _ := repo.GetByEmail("alice@example.com")
	stored.IsActive = false
	inactive, err := p.Authenticate(context.Background(), auth.Credentials{Email: "alice@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if inactive.Success || inactive.Error != unknown.Error {
		t.Errorf("inactive failure = %+v, want generic failure", inactive)
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	p, repo := newTestProvider(t)
	if _, err := p.CreateUser(context.Background(), "Alice", "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	res, err := p.Authenticate(context.Background(), auth.Credentials{Email: "alice@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("login failed: %s", res.Error)
	}
	if res.SessionToken == "" {
		t.Error("no session token issued")
	}
	stored, _ := repo.GetByEmail("alice@example.com")
	if stored.LastLoginAt == nil {
		t.Error("last login timestamp not set")
	}

	// Username is accepted as an alias for email.
	res, err = p.Authenticate(context.Background(), auth.Credentials{Username: "alice@example.com", Password: "correct-horse"})
	if err != nil || !res.Success {
		t.Errorf("username alias login = (%+v, %v)", res, err)
	}
}

func TestVerifySessionDeactivatedAccount(t *testing.T) {
	p, repo := newTestProvider(t)
	if _, err := p.CreateUser(context.Background(), "Alice", "alice@example.com", "correct-horse"); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	res, err := p.Authenticate(context.Background(), auth.Credentials{Email: "alice@example.com", Password: "correct-horse"})
	if err != nil || !res.Success {
		t.Fatalf("login failed: %+v %v", res, err)
	}

	sess, err := p.VerifySession(context.Background(), res.SessionToken)
	if err != nil {
		t.Fatalf("VerifySession failed: %v", err)
	}
	if sess.Email != "alice@example.com" || sess.AuthType != auth.ProviderLocal {
		t.Errorf("session = %+v", sess)
	}

	stored, _ := repo.GetByEmail("alice@example.com")
	stored.IsActive = false

	// The token itself is still unexpired; deactivation must win.
	if _, err := p.VerifySession(context.Background(), res.SessionToken); err == nil {
		t.Error("VerifySession accepted a deactivated account")
	}
}

func TestChangePassword(t *testing.T) {
	p, _ := newTestProvider(t)
	user, err := p.CreateUser(context.Background(), "Alice", "alice@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if err := p.ChangePassword(context.Background(), user.ID, "wrong", "new-password-1"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("ChangePassword with wrong current = %v, want ErrInvalidCredentials", err)
	}
	if err := p.ChangePassword(context.Background(), user.ID, "correct-horse", "short"); !errors.Is(err, models.ErrPasswordTooShort) {
		t.Errorf("ChangePassword to short password = %v, want ErrPasswordTooShort", err)
	}
	if err := p.ChangePassword(context.Background(), user.ID, "correct-horse", "new-password-1"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	res, err := p.Authenticate(context.Background(), auth.Credentials{Email: "alice@example.com", Password: "new-password-1"})
	if err != nil || !res.Success {
		t.Errorf("login with new password = (%+v, %v)", res, err)
	}
}
