package tenders

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/go-chi/render"

	"github.com/kilianp07/tendering/core/logger"
	"github.com/kilianp07/tendering/core/monitoring"
)

// Recoverer turns a handler panic into a 500 response and logs the stack.
func Recoverer(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					stack := make([]byte, 8*1024)
					stack = stack[:runtime.Stack(stack, false)]
					log.Errorf("panic recovered on %s %s: %v\n%s", r.Method, r.URL.Path, rec, stack)
					monitoring.CaptureException(fmt.Errorf("panic: %v", rec), map[string]string{"method": r.Method, "path": r.URL.Path})
					render.Status(r, http.StatusInternalServerError)
					render.JSON(w, r, HTTPError{Error: "internal server error", Code: "internal"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
