package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/pulse/pkg/httputil"
)

// NewRouter assembles the admin router with the standard middleware
// chain applied to every route
func NewRouter(h *Handlers, logger *logrus.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(httputil.RequestIDMiddleware())
	r.Use(httputil.RecoveryMiddleware(logger))
	r.Use(httputil.LoggingMiddleware(logger))

	h.RegisterRoutes(r)

	return r
}
