package rest

import (
	"crypto/subtle"
	"net/http"
)

const AdminTokenHeader = "X-Admin-Token"

// AdminTokenMiddleware пропускает запрос только с верным X-Admin-Token.
// Пустой токен в конфигурации закрывает админские маршруты полностью.
func AdminTokenMiddleware(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				WriteJSONError(w, http.StatusForbidden, "admin API is disabled")
				return
			}
			got := r.Header.Get(AdminTokenHeader)
			if got == "" {
				WriteJSONError(w, http.StatusUnauthorized, "X-Admin-Token header is missing")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				WriteJSONError(w, http.StatusForbidden, "invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
