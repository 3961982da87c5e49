package middleware

import (
	"whatsapp-campaign-launcher/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	HeaderTenantID   = "X-Tenant-ID"
	HeaderOperatorID = "X-Operator-ID"

	stagingKeyLocal = "staging_key"
)

// TenantScope resolves the tenant and operator from request headers.
// Authentication happens upstream; requests without both ids get 401.
func TenantScope() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key, ok := scopeFromHeaders(c)
		if !ok {
			return unauthorized(c)
		}

		c.Locals(stagingKeyLocal, key)
		return c.Next()
	}
}

func scopeFromHeaders(c *fiber.Ctx) (domain.StagingKey, bool) {
	tenantID, err := uuid.Parse(c.Get(HeaderTenantID))
	if err != nil {
		return domain.StagingKey{}, false
	}
	operatorID, err := uuid.Parse(c.Get(HeaderOperatorID))
	if err != nil {
		return domain.StagingKey{}, false
	}
	return domain.StagingKey{TenantID: tenantID, OperatorID: operatorID}, true
}

// StagingKey returns the scope stored by TenantScope.
func StagingKey(c *fiber.Ctx) (domain.StagingKey, bool) {
	key, ok := c.Locals(stagingKeyLocal).(domain.StagingKey)
	return key, ok
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "tenant and operator headers are required"})
}
