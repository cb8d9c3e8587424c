package relay

import "github.com/gofiber/fiber/v2"

// The browser client may run from any origin, so the allow-list is fixed
// and permissive. These exact headers go on every response, errors and
// pre-flight included.
const (
	corsAllowMethods = "GET,OPTIONS,PATCH,DELETE,POST,PUT"
	corsAllowHeaders = "X-CSRF-Token, X-Requested-With, Accept, Accept-Version, Content-Length, Content-MD5, Content-Type, Date, X-Api-Version"
)

// corsMiddleware applies the fixed CORS header set and answers pre-flight
// OPTIONS requests with 200 and no body.
func corsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Access-Control-Allow-Credentials", "true")
		c.Set("Access-Control-Allow-Origin", "*")
		c.Set("Access-Control-Allow-Methods", corsAllowMethods)
		c.Set("Access-Control-Allow-Headers", corsAllowHeaders)

		if c.Method() == fiber.MethodOptions {
			// SendStatus would fill the body with the status text.
			return c.Status(fiber.StatusOK).SendString("")
		}

		return c.Next()
	}
}
