package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/gema-grader/internal/utils"
)

const (
	launchLocalKey = "launch"

	claimResourceLink = "https://purl.imsglobal.org/spec/lti/claim/resource_link"
	claimCustom       = "https://purl.imsglobal.org/spec/lti/claim/custom"
	claimAGSEndpoint  = "https://purl.imsglobal.org/spec/lti-ags/claim/endpoint"
	claimToolPlatform = "https://purl.imsglobal.org/spec/lti/claim/tool_platform"
)

// Launch is the caller identity and launch context carried by the bearer token.
type Launch struct {
	UserID            string
	Role              string
	InstitutionID     string
	CourseID          string
	Platform          string
	LineItemURL       string
	ResourceLinkTitle string
	AssignmentSlug    string
}

// JWTProtected returns a middleware that validates JWT bearer tokens.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authorization := c.Get("Authorization")
		if authorization == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "authorization header missing")
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid authorization header")
		}

		tokenString := strings.TrimSpace(authorization[len(bearer):])
		if tokenString == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		launch := launchFromClaims(claims)
		if launch.UserID == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, "token subject missing")
		}

		SetLaunch(c, launch)

		return c.Next()
	}
}

// SetLaunch stores the launch and the caller identity in request locals.
func SetLaunch(c *fiber.Ctx, launch Launch) {
	c.Locals("user_id", launch.UserID)
	if launch.Role != "" {
		c.Locals("user_role", launch.Role)
	}
	c.Locals(launchLocalKey, launch)
}

// LaunchFromContext returns the launch context stored by JWTProtected.
func LaunchFromContext(c *fiber.Ctx) (Launch, bool) {
	launch, ok := c.Locals(launchLocalKey).(Launch)
	return launch, ok
}

func launchFromClaims(claims jwt.MapClaims) Launch {
	return Launch{
		UserID:            extractUserIDFromClaims(claims),
		Role:              extractUserRoleFromClaims(claims),
		InstitutionID:     firstString(claims, "institution_id"),
		CourseID:          firstString(claims, "course_id"),
		Platform:          strings.ToLower(firstNonEmpty(firstString(claims, "platform"), nestedString(claims, claimToolPlatform, "product_family_code"))),
		LineItemURL:       firstNonEmpty(firstString(claims, "lineitem"), nestedString(claims, claimAGSEndpoint, "lineitem")),
		ResourceLinkTitle: firstNonEmpty(firstString(claims, "resource_link_title"), nestedString(claims, claimResourceLink, "title")),
		AssignmentSlug:    firstNonEmpty(firstString(claims, "assignment_slug"), nestedString(claims, claimCustom, "assignment_slug")),
	}
}

func extractUserIDFromClaims(claims jwt.MapClaims) string {
	keys := []string{"sub", "user_id", "id"}
	for _, key := range keys {
		if value, ok := claims[key]; ok {
			if normalized := normalizeUserID(value); normalized != "" {
				return normalized
			}
		}
	}

	return ""
}

func normalizeUserID(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v < 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func extractUserRoleFromClaims(claims jwt.MapClaims) string {
	candidates := []string{"role", "roles"}
	for _, key := range candidates {
		if value, ok := claims[key]; ok {
			if role := normalizeRole(value); role != "" {
				return role
			}
		}
	}
	return ""
}

func normalizeRole(value interface{}) string {
	switch v := value.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(v))
	case []interface{}:
		for _, item := range v {
			if str, ok := item.(string); ok {
				role := strings.ToLower(strings.TrimSpace(str))
				if role != "" {
					return role
				}
			}
		}
	default:
		return ""
	}
	return ""
}

func firstString(claims jwt.MapClaims, key string) string {
	if value, ok := claims[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func nestedString(claims jwt.MapClaims, claim, key string) string {
	object, ok := claims[claim].(map[string]interface{})
	if !ok {
		return ""
	}
	if value, ok := object[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
