// Package middleware содержит HTTP middleware системы ваучеров.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type contextKey string

const (
	participantIDKey contextKey = "participantID"
	staffKey         contextKey = "staff"
)

const (
	authCookieName = "auth_token"
	authCookieTTL  = 365 * 24 * time.Hour

	roleParticipant = "participant"
	roleStaff       = "staff"
)

// AuthMiddleware выполняет проверку аутентификации по подписанному cookie.
// Cookie содержит идентификатор участника и роль: участник или сотрудник.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет cookie авторизации и добавляет идентификатор
// участника и роль в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		participantID, role, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), participantIDKey, participantID)
		ctx = context.WithValue(ctx, staffKey, role == roleStaff)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireStaff пропускает только запросы с ролью сотрудника.
func (a *AuthMiddleware) RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsStaffFromContext(r.Context()) {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetAuthCookie устанавливает cookie авторизации участника.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, participantID int64) {
	a.setCookie(w, participantID, roleParticipant)
}

// SetStaffCookie устанавливает cookie авторизации сотрудника.
func (a *AuthMiddleware) SetStaffCookie(w http.ResponseWriter, staffID int64) {
	a.setCookie(w, staffID, roleStaff)
}

func (a *AuthMiddleware) setCookie(w http.ResponseWriter, id int64, role string) {
	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    a.sign(strconv.FormatInt(id, 10) + ":" + role),
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func (a *AuthMiddleware) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	return payload + "." + hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (int64, string, bool) {
	dot := strings.LastIndex(cookieValue, ".")
	if dot < 0 {
		return 0, "", false
	}

	payload := cookieValue[:dot]
	signature := cookieValue[dot+1:]

	expected := a.sign(payload)
	if !hmac.Equal([]byte(signature), []byte(expected[dot+1:])) {
		return 0, "", false
	}

	parts := strings.Split(payload, ":")
	if len(parts) != 2 {
		return 0, "", false
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", false
	}
	if parts[1] != roleParticipant && parts[1] != roleStaff {
		return 0, "", false
	}

	return id, parts[1], true
}

// GetParticipantIDFromContext извлекает идентификатор участника из контекста запроса.
func GetParticipantIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(participantIDKey).(int64)
	return id, ok
}

// IsStaffFromContext сообщает, принадлежит ли запрос сотруднику.
func IsStaffFromContext(ctx context.Context) bool {
	staff, ok := ctx.Value(staffKey).(bool)
	return ok && staff
}
