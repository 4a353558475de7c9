package presentation

import (
	"net/http"

	"github.com/RaikyD/storefront-orders/internal/domain"
	"github.com/RaikyD/storefront-orders/internal/logger"
	"github.com/RaikyD/storefront-orders/internal/presentation/helpers"
)

// statusFor maps an error kind to an HTTP status. Authentication failures outside bearer auth
// (provider signatures) are reported as bad requests.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation, domain.KindAuthentication:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAccessDenied:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	code := domain.CodeOf(err)
	if code == "" {
		code = domain.CodeStorageUnavailable
	}
	if kind == domain.KindTransient {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	helpers.HttpError(w, statusFor(kind), string(kind), code, domain.PublicMessage(err))
}

func badRequest(w http.ResponseWriter, msg string) {
	helpers.HttpError(w, http.StatusBadRequest, string(domain.KindValidation), domain.CodeInvalidInput, msg)
}
