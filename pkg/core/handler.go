package core

import "net/http"

// wrappedHandler answers every request on the wrapped listener with
// 204 No Content and the configured static headers. Header names go out
// exactly as configured.
func wrappedHandler(headers map[string]string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for k, v := range headers {
			w.Header()[k] = []string{v}
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
