package middleware

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/benaresclub/feedback-backend/internal/storage"
)

// RequireAuth validates the Bearer token and loads the dashboard user into
// c.Locals("user").
func RequireAuth(store storage.Store) fiber.Handler {
	secret := []byte(os.Getenv("JWT_SECRET_KEY"))

	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == "" || tokenString == header {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Unauthorized - No Token Provided",
			})
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Unauthorized - Invalid Token",
			})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Unauthorized - Invalid Token",
			})
		}
		id, _ := claims["id"].(string)

		user, err := store.GetUserByID(id)
		if err != nil {
			log.Printf("Auth middleware: user %q not found: %v", id, err)
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"message": "User not found",
			})
		}

		c.Locals("user", user)
		return c.Next()
	}
}
