package api

import (
	"net/http"
	"time"

	"github.com/angelmondragon/fieldsync/pkg/config"
)

// NewServer wraps handler in an http.Server bound to the local API address.
func NewServer(cfg config.APIConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       time.Minute,
	}
}
