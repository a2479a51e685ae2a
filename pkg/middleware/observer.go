package middleware

import "net/http"

// ResponseObserver records the status written by a handler.
type ResponseObserver struct {
	http.ResponseWriter
	Status      int
	wroteHeader bool
}

func (o *ResponseObserver) Write(p []byte) (n int, err error) {
	if !o.wroteHeader {
		o.WriteHeader(http.StatusOK)
	}
	return o.ResponseWriter.Write(p)
}

func (o *ResponseObserver) WriteHeader(code int) {
	if o.wroteHeader {
		return
	}
	o.wroteHeader = true
	o.Status = code
	o.ResponseWriter.WriteHeader(code)
}

// WroteHeader reports whether the handler has started its response.
func (o *ResponseObserver) WroteHeader() bool {
	return o.wroteHeader
}

func (o *ResponseObserver) Unwrap() http.ResponseWriter {
	return o.ResponseWriter
}
