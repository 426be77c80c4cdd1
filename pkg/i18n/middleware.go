package i18n

import (
	"net/http"
)

// Middleware resolves the request locale and stores it in the context.
// A "lang" query parameter overrides the Accept-Language header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := ParseAcceptLanguage(r.Header.Get("Accept-Language"))
		if lang := r.URL.Query().Get("lang"); lang != "" {
			locale = ParseAcceptLanguage(lang)
		}

		next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), locale)))
	})
}
