package presentation

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/presentation/helpers"
)

// Claims are the bearer-token claims issued by the identity service.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type requesterKey struct{}

func WithRequester(ctx context.Context, req domain.Requester) context.Context {
	return context.WithValue(ctx, requesterKey{}, req)
}

// RequesterFrom returns the authenticated caller, or the zero Requester.
func RequesterFrom(ctx context.Context) domain.Requester {
	req, _ := ctx.Value(requesterKey{}).(domain.Requester)
	return req
}

// RequireAuth validates an HS256 bearer token and stores the caller in the request context.
func RequireAuth(secret []byte) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	keyfunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				unauthorized(w, "bearer token missing")
				return
			}
			var claims Claims
			if _, err := parser.ParseWithClaims(raw, &claims, keyfunc); err != nil {
				unauthorized(w, "bearer token invalid")
				return
			}
			if strings.TrimSpace(claims.Subject) == "" {
				unauthorized(w, "bearer token has no subject")
				return
			}
			role := domain.Role(strings.ToUpper(strings.TrimSpace(claims.Role)))
			if role == "" {
				role = domain.RoleCustomer
			}
			req := domain.Requester{UserID: claims.Subject, Role: role}
			next.ServeHTTP(w, r.WithContext(WithRequester(r.Context(), req)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="storefront"`)
	helpers.HttpError(w, http.StatusUnauthorized, string(domain.KindAuthentication), "unauthenticated", msg)
}
