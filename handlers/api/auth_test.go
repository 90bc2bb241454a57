// handlers/api/auth_test.go
package api

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSealKey = "0123456789abcdef0123456789abcdef"

func TestSealRoundTrip(t *testing.T) {
	creds := IMAPCredentials{Email: "user@example.com", Password: "hunter2"}

	sealed, err := seal(creds, testSealKey)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "hunter2")

	var out IMAPCredentials
	require.NoError(t, unseal(sealed, testSealKey, &out))
	assert.Equal(t, creds, out)
}

func TestUnsealWrongKey(t *testing.T) {
	sealed, err := seal(IMAPCredentials{Email: "a@b.c"}, testSealKey)
	require.NoError(t, err)

	var out IMAPCredentials
	err = unseal(sealed, "ffffffffffffffffffffffffffffffff", &out)
	assert.Error(t, err)
}

func TestUnsealGarbage(t *testing.T) {
	var out IMAPCredentials
	assert.Error(t, unseal("not base64!!", testSealKey, &out))
	assert.Error(t, unseal("c2hvcnQ", testSealKey, &out))
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("user@example.com", "secret")
	require.NoError(t, err)

	claims, err := ValidateToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", claims.Email)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken("user@example.com", "secret")
	require.NoError(t, err)

	_, err = ValidateToken(token, "other")
	assert.Error(t, err)
}

func newMiddlewareApp(secret string) *fiber.App {
	app := fiber.New()
	app.Use(SessionMiddleware(session.New(), secret))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/api/emails", func(c *fiber.Ctx) error {
		return c.SendString(SessionEmail(c))
	})
	return app
}

func TestSessionMiddlewareDenies(t *testing.T) {
	app := newMiddlewareApp("secret")

	// Page requests bounce to the login form.
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 302, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	// API requests get a JSON 401.
	resp, err = app.Test(httptest.NewRequest("GET", "/api/emails", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestSessionMiddlewareAcceptsBearerToken(t *testing.T) {
	app := newMiddlewareApp("secret")

	token, err := GenerateToken("user@example.com", "secret")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/emails", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", string(body))
}

func TestSessionMiddlewareRejectsBadBearerToken(t *testing.T) {
	app := newMiddlewareApp("secret")

	forged, err := GenerateToken("user@example.com", "other-secret")
	require.NoError(t, err)

	for _, header := range []string{
		"Bearer " + forged,
		"Bearer not-a-jwt",
		"Basic dXNlcjpwYXNz",
	} {
		req := httptest.NewRequest("GET", "/api/emails", nil)
		req.Header.Set("Authorization", header)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 401, resp.StatusCode, header)
	}
}

func TestSessionMiddlewareIgnoresBearerOnPages(t *testing.T) {
	app := newMiddlewareApp("secret")

	token, err := GenerateToken("user@example.com", "secret")
	require.NoError(t, err)

	// Bearer credentials are an API affordance; page routes still need the
	// session cookie.
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 302, resp.StatusCode)
}
