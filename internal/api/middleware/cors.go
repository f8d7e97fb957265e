// Package middleware provides gin middleware for the control-plane API.
package middleware

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS builds the cross-origin policy for the control plane. origins is a
// comma-separated list; "*" opens the API up, which is the development
// default.
func CORS(origins string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept",
			"Origin",
			"Authorization",
			"X-Requested-With",
		},
		MaxAge: 12 * time.Hour,
	}

	if origins == "" || origins == "*" {
		cfg.AllowAllOrigins = true
	} else {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
			}
		}
		cfg.AllowCredentials = true
	}

	return cors.New(cfg)
}
