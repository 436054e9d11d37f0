package middleware

import (
	"net/http"

	apperrors "github.com/actiontracker/tracker-server-go/internal/errors"
	"github.com/actiontracker/tracker-server-go/internal/httputil"
)

func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	httputil.WriteError(w, err)
}
