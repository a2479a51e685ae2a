// Package middleware reports failures of HTTP handlers served next to a
// hosted page.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/bugshot/bugshot-go/pkg/event"
	"github.com/bugshot/bugshot-go/pkg/host"
)

// ServerErrorType is the error type reported for 5xx responses.
const ServerErrorType = "ServerError"

// Reporter is implemented by *bugshot.Client.
type Reporter interface {
	CaptureError(err error, details *event.ErrorDetails)
}

// Recoverer reports panics raised by the next handler and answers them with
// 500 Internal Server Error when no response was started. Responses with a
// 5xx status are reported as well. http.ErrAbortHandler is passed through.
func Recoverer(r Reporter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			observer := &ResponseObserver{ResponseWriter: rw}
			defer func() {
				rec := recover()
				if rec == nil {
					if observer.Status >= 500 {
						r.CaptureError(fmt.Errorf("%s %s: %d %s", req.Method, req.URL.Path, observer.Status, http.StatusText(observer.Status)),
							&event.ErrorDetails{Type: ServerErrorType})
					}
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				r.CaptureError(host.NewPanicError(rec, debug.Stack()), nil)
				if !observer.WroteHeader() {
					http.Error(rw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(observer, req)
		})
	}
}
