package modules

import "net/http"

// Module is an http feature served under its own path prefix.
type Module interface {
	http.Handler
	Shutdown()
}
