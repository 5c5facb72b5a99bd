package api

import (
	"net/http"
	"strings"

	"bikeservice/internal/domain"
)

// authedHandler is a handler that runs with an authenticated actor.
type authedHandler func(w http.ResponseWriter, r *http.Request, actor domain.Identity)

// requireAuth resolves the bearer token to an identity or answers 401.
func (s *HTTPServer) requireAuth(next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		actor, err := s.services.Users.Authenticate(r.Context(), token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			s.writeServiceError(w, r, err)
			return
		}

		if info := requestInfoFrom(r.Context()); info != nil {
			info.userID = actor.UserID
		}
		next(w, r, actor)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
