package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Simplici0/cotizaciones/internal/users"
)

const (
	sessionCookieName = "cotizaciones_session"
	sessionTTL        = 12 * time.Hour
)

type authService struct {
	users         *users.Store
	sessionSecret []byte
	secureCookie  bool
	now           func() time.Time
}

func newAuthService(store *users.Store, sessionSecret string, secureCookie bool) *authService {
	return &authService{
		users:         store,
		sessionSecret: []byte(sessionSecret),
		secureCookie:  secureCookie,
		now:           time.Now,
	}
}

func (a *authService) sign(payload string) []byte {
	mac := hmac.New(sha256.New, a.sessionSecret)
	_, _ = mac.Write([]byte(payload))
	return mac.Sum(nil)
}

// createSessionValue encodes the email and expiry, signed with the session secret.
func (a *authService) createSessionValue(email string, expires time.Time) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(email + "\n" + strconv.FormatInt(expires.Unix(), 10)))
	return payload + "." + hex.EncodeToString(a.sign(payload))
}

func (a *authService) verifySessionValue(value string) (string, bool) {
	payload, signature, ok := strings.Cut(value, ".")
	if !ok {
		return "", false
	}

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return "", false
	}
	if !hmac.Equal(provided, a.sign(payload)) {
		return "", false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", false
	}
	email, rawExpiry, ok := strings.Cut(string(decoded), "\n")
	if !ok || email == "" {
		return "", false
	}
	expiry, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil || a.now().Unix() >= expiry {
		return "", false
	}

	return email, true
}

func (a *authService) setSessionCookie(w http.ResponseWriter, email string) {
	expires := a.now().Add(sessionTTL)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    a.createSessionValue(email, expires),
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *authService) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// currentUser resolves the session cookie to a stored account.
func (a *authService) currentUser(r *http.Request) (users.User, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return users.User{}, false
	}
	email, ok := a.verifySessionValue(cookie.Value)
	if !ok {
		return users.User{}, false
	}

	u, err := a.users.ByEmail(r.Context(), email)
	if err != nil {
		if !errors.Is(err, users.ErrInvalidCredentials) {
			log.Printf("load session user: %v", err)
		}
		return users.User{}, false
	}
	return u, true
}

type userContextKey struct{}

func withUser(ctx context.Context, u users.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, u)
}

func userFrom(ctx context.Context) users.User {
	u, _ := ctx.Value(userContextKey{}).(users.User)
	return u
}

func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login", "/healthz":
			next.ServeHTTP(w, r)
			return
		}

		u, ok := s.auth.currentUser(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "no autenticado")
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !userFrom(r.Context()).IsAdmin() {
			writeError(w, http.StatusForbidden, "se requiere rol de administrador")
			return
		}
		next.ServeHTTP(w, r)
	})
}
