package http

import (
	"crypto/subtle"
	"net/http"
)

// AdminTokenHeader — заголовок с токеном административного API.
const AdminTokenHeader = "X-Admin-Token"

// AdminTokenMiddleware пропускает запрос только с корректным X-Admin-Token.
// Пустой токен в конфиге закрывает доступ полностью.
func AdminTokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminTokenHeader)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
