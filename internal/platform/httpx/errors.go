package httpx

import "net/http"

// NotFound answers unknown paths with a problem body.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	Problem(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), "")
}

// MethodNotAllowed answers known paths hit with an unrouted method.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	Problem(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed), "")
}
