package api

import (
	"crypto/subtle"
	"net/http"
)

// SecretHeader carrega o segredo compartilhado das rotas de leitura.
const SecretHeader = "X-Secret-Key"

// RequireSecret bloqueia com 401 quando o header está ausente ou diferente de secret.
// A comparação é em tempo constante. Segredo vazio rejeita tudo.
func RequireSecret(secret string) func(http.Handler) http.Handler {
	want := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(SecretHeader)
			if len(want) == 0 || got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				http.Error(w, "Invalid secret key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
