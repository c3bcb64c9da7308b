package models

import (
	"errors"
	"testing"
)

func TestNewLocalUser(t *testing.T) {
	user, err := NewLocalUser("Alice", "alice@example.com", "a-long-password")
	if err != nil {
		t.Fatalf("NewLocalUser failed: %v", err)
	}
	if !user.IsActive {
		t.Error("new account is not active")
	}
	if user.PasswordHash == "" || user.PasswordHash == "a-long-password" {
		t.Error("password was not hashed")
	}
	if !user.CheckPassword("a-long-password") {
		t.Error("CheckPassword rejects the original password")
	}
	if user.CheckPassword("something-else") {
		t.Error("CheckPassword accepts a wrong password")
	}
}

func TestNewLocalUserValidation(t *testing.T) {
	tests := []struct {
		name     string
		userName string
		email    string
		password string
		wantErr  error
	}{
		{"short password", "Alice", "alice@example.com", "1234567", ErrPasswordTooShort},
		{"bad email", "Alice", "not-an-email", "a-long-password", nil},
		{"empty name", "", "alice@example.com", "a-long-password", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLocalUser(tt.userName, tt.email, tt.password)
			if err == nil {
				t.Fatal("invalid input accepted")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetPassword(t *testing.T) {
	user, err := NewLocalUser("Alice", "alice@example.com", "a-long-password")
	if err != nil {
		t.Fatalf("NewLocalUser failed: %v", err)
	}

	if err := user.SetPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("SetPassword(short) = %v, want ErrPasswordTooShort", err)
	}
	if err := user.SetPassword("another-password"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}
	if !user.CheckPassword("another-password") {
		t.Error("new password not accepted")
	}
	if user.CheckPassword("a-long-password") {
		t.Error("old password still accepted")
	}
}

func TestIsLocal(t *testing.T) {
	ext := "u-1"
	tests := []struct {
		name string
		user User
		want bool
	}{
		{"password only", User{PasswordHash: "x"}, true},
		{"synced only", User{ExternalID: &ext}, false},
		// Bulk sync can attach an external id to a password account.
		{"hybrid", User{PasswordHash: "x", ExternalID: &ext}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.IsLocal(); got != tt.want {
				t.Errorf("IsLocal = %v, want %v", got, tt.want)
			}
		})
	}
}
