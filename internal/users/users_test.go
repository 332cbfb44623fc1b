package users

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/Simplici0/cotizaciones/internal/db"
	"github.com/Simplici0/cotizaciones/internal/migrations"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "users-test.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := migrations.Up(context.Background(), database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return NewStore(database)
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret!" {
		t.Fatalf("password stored in clear text")
	}
	if !CheckPassword(hash, "s3cret!") {
		t.Fatalf("expected password to match")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatalf("expected wrong password to fail")
	}
}

func TestCreateAndAuthenticate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, NewUser{Email: "ana@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := User{Email: "ana@example.com", Username: "ana", Role: RoleUser}
	if diff := cmp.Diff(want, created, cmpopts.IgnoreFields(User{}, "ID")); diff != "" {
		t.Fatalf("created user mismatch (-want +got):\n%s", diff)
	}

	for _, identifier := range []string{"ana@example.com", "ANA@example.com", "ana"} {
		u, err := s.Authenticate(ctx, identifier, "hunter22")
		if err != nil {
			t.Fatalf("Authenticate(%q): %v", identifier, err)
		}
		if u.ID != created.ID || u.IsAdmin() {
			t.Fatalf("unexpected user %+v", u)
		}
	}

	if _, err := s.Authenticate(ctx, "ana", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := s.Authenticate(ctx, "ghost", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, NewUser{Email: "admin@example.com", Password: "hunter22", Role: RoleAdmin}); err != nil {
		t.Fatalf("Create admin: %v", err)
	}

	tests := []struct {
		name string
		in   NewUser
		want error
	}{
		{"bad email", NewUser{Email: "nope", Password: "hunter22"}, ErrInvalid},
		{"short password", NewUser{Email: "b@example.com", Password: "123"}, ErrInvalid},
		{"bad role", NewUser{Email: "c@example.com", Password: "hunter22", Role: "root"}, ErrInvalid},
		{"duplicate email", NewUser{Email: "ADMIN@example.com", Username: "other", Password: "hunter22"}, ErrDuplicate},
		{"duplicate username", NewUser{Email: "d@example.com", Username: "admin", Password: "hunter22"}, ErrDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Create(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestListAndByEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, email := range []string{"zoe@example.com", "ana@example.com"} {
		if _, err := s.Create(ctx, NewUser{Email: email, Password: "hunter22"}); err != nil {
			t.Fatalf("Create %s: %v", email, err)
		}
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Email != "ana@example.com" {
		t.Fatalf("unexpected list: %+v", list)
	}

	u, err := s.ByEmail(ctx, "zoe@example.com")
	if err != nil || u.Username != "zoe" {
		t.Fatalf("ByEmail: %+v, %v", u, err)
	}
	if _, err := s.ByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
