package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

const defaultOrigins = "http://localhost:3000,http://localhost:8080,http://127.0.0.1:3000"

// CORSConfig allows the operator console origins. An empty list falls back
// to the local development origins.
func CORSConfig(allowedOrigins string) fiber.Handler {
	if allowedOrigins == "" {
		allowedOrigins = defaultOrigins
	}
	return cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID," + HeaderTenantID + "," + HeaderOperatorID,
		AllowCredentials: false,
		ExposeHeaders:    "Content-Length,X-Request-ID",
		MaxAge:           3600,
	})
}
