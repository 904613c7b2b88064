package httputil

import (
	"net/http"
	"time"
)

// DefaultTimeout bounds a single feed request. The FEMS query covers every
// station for six days and can take a while to assemble.
const DefaultTimeout = 2 * time.Minute

// NewClient returns an HTTP client with standard timeout configuration.
func NewClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
	}
}
