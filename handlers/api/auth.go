// handlers/api/auth.go
package api

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"mailsift/config"
	"mailsift/internal/gmail"
	"mailsift/internal/imapmail"
	"mailsift/internal/logger"
	"mailsift/internal/pipeline"

	"go.uber.org/zap"
)

// gmailScopes covers reading, archiving and trashing messages plus the
// account address for the session.
var gmailScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/userinfo.email",
}

type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IMAPCredentials are sealed into the session in imap provider mode.
type IMAPCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthHandler struct {
	store  *session.Store
	config *config.Config
	oauth  *oauth2.Config
}

func NewAuthHandler(store *session.Store, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		store:  store,
		config: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			RedirectURL:  cfg.OAuth.RedirectURL,
			Scopes:       gmailScopes,
			Endpoint:     google.Endpoint,
		},
	}
}

// HandleGoogleLogin starts the OAuth code flow with a state nonce bound to
// the session.
func (h *AuthHandler) HandleGoogleLogin(c *fiber.Ctx) error {
	sess, err := h.store.Get(c)
	if err != nil {
		return c.Status(500).SendString("Session error")
	}

	state, err := randomToken()
	if err != nil {
		return c.Status(500).SendString("Failed to create state")
	}

	sess.Set("oauth_state", state)
	if err := sess.Save(); err != nil {
		return c.Status(500).SendString("Failed to save session")
	}

	url := h.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
	return c.Redirect(url)
}

// HandleGoogleCallback exchanges the code, seals the token into the session
// and verifies it against the Gmail profile endpoint.
func (h *AuthHandler) HandleGoogleCallback(c *fiber.Ctx) error {
	sess, err := h.store.Get(c)
	if err != nil {
		return c.Redirect("/login")
	}

	state := sess.Get("oauth_state")
	if state == nil || state != c.Query("state") {
		return h.renderLogin(c, 401, "Login attempt could not be verified, please retry", "")
	}
	sess.Delete("oauth_state")

	code := c.Query("code")
	if code == "" {
		return h.renderLogin(c, 400, "Authorization was denied", "")
	}

	token, err := h.oauth.Exchange(c.UserContext(), code)
	if err != nil {
		logger.L.Warn("oauth exchange failed", zap.Error(err))
		return h.renderLogin(c, 401, "Sign-in failed, please retry", "")
	}

	// The profile call doubles as a token check and gives us the address.
	address, err := gmail.NewClient(token.AccessToken).Profile(c.UserContext())
	if err != nil {
		logger.L.Warn("profile check failed after exchange", zap.Error(err))
		return h.renderLogin(c, 401, "Mailbox could not be reached with the granted access", "")
	}

	if err := h.storeSession(sess, address, token, nil); err != nil {
		return h.renderLogin(c, 500, "Failed to create session", "")
	}

	return c.Redirect("/")
}

// HandleLogin processes the email/password form in imap provider mode.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	if h.config.Provider.Kind != "imap" {
		return c.Redirect("/auth/google")
	}

	sess, err := h.store.Get(c)
	if err != nil {
		return c.Status(500).SendString("Session error")
	}

	email := strings.TrimSpace(c.FormValue("email"))
	password := strings.TrimSpace(c.FormValue("password"))
	if email == "" || password == "" {
		return h.renderLogin(c, 400, "Email and password are required", email)
	}

	// Verify the credentials before storing anything.
	client, err := imapmail.Dial(h.imapConfig(email, password))
	if err != nil {
		return h.renderLogin(c, 401, "Invalid credentials or server error", email)
	}
	client.Close()

	creds := &IMAPCredentials{Email: email, Password: password}
	if err := h.storeSession(sess, email, nil, creds); err != nil {
		return h.renderLogin(c, 500, "Failed to create session", email)
	}

	return c.Redirect("/")
}

func (h *AuthHandler) renderLogin(c *fiber.Ctx, status int, message, email string) error {
	return c.Status(status).Render("login", fiber.Map{
		"GoogleEnabled": h.config.Provider.Kind == "gmail",
		"IMAPEnabled":   h.config.Provider.Kind == "imap",
		"Error":         message,
		"Email":         email,
	})
}

// HandleLogout destroys the session.
func (h *AuthHandler) HandleLogout(c *fiber.Ctx) error {
	sess, err := h.store.Get(c)
	if err != nil {
		return c.Redirect("/login")
	}

	if err := sess.Destroy(); err != nil {
		return c.Status(500).SendString("Error during logout")
	}

	return c.Redirect("/login")
}

// storeSession seals the provider credential, mints the API JWT and marks the
// session authenticated.
func (h *AuthHandler) storeSession(sess *session.Session, address string, token *oauth2.Token, creds *IMAPCredentials) error {
	var (
		sealed string
		err    error
	)
	if token != nil {
		sealed, err = seal(token, h.config.Security.SealKey)
	} else {
		sealed, err = seal(creds, h.config.Security.SealKey)
	}
	if err != nil {
		return fmt.Errorf("failed to seal credentials: %w", err)
	}

	apiToken, err := GenerateToken(address, h.config.Security.JWTSecret)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	sess.Set("authenticated", true)
	sess.Set("email", address)
	sess.Set("credentials", sealed)
	sess.Set("token", apiToken)
	sess.SetExpiry(h.config.Security.SessionTimeout.Std())

	return sess.Save()
}

// Mailbox builds the provider client for the current session. The returned
// closer is a no-op for the REST client and disconnects the IMAP client.
func (h *AuthHandler) Mailbox(c *fiber.Ctx) (pipeline.Mailbox, func(), error) {
	if h.config.Provider.Kind == "imap" {
		var creds IMAPCredentials
		if err := h.unsealSession(c, &creds); err != nil {
			return nil, nil, err
		}

		client, err := imapmail.Dial(h.imapConfig(creds.Email, creds.Password))
		if err != nil {
			return nil, nil, err
		}
		return client, func() { client.Close() }, nil
	}

	token, err := h.AccessToken(c)
	if err != nil {
		return nil, nil, err
	}
	return gmail.NewClient(token), func() {}, nil
}

// GmailClient returns the raw REST client for routes that go beyond the
// Mailbox interface (view, trash).
func (h *AuthHandler) GmailClient(c *fiber.Ctx) (*gmail.Client, error) {
	token, err := h.AccessToken(c)
	if err != nil {
		return nil, err
	}
	return gmail.NewClient(token), nil
}

// AccessToken unseals the OAuth token, refreshing it through the token
// source when expired. A refreshed token is sealed back into the session.
func (h *AuthHandler) AccessToken(c *fiber.Ctx) (string, error) {
	if h.config.Provider.Kind != "gmail" {
		return "", fmt.Errorf("no OAuth token in %s mode", h.config.Provider.Kind)
	}

	var stored oauth2.Token
	if err := h.unsealSession(c, &stored); err != nil {
		return "", err
	}

	fresh, err := h.oauth.TokenSource(c.UserContext(), &stored).Token()
	if err != nil {
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}

	if fresh.AccessToken != stored.AccessToken {
		sess, err := h.store.Get(c)
		if err == nil {
			if sealed, err := seal(fresh, h.config.Security.SealKey); err == nil {
				sess.Set("credentials", sealed)
				if err := sess.Save(); err != nil {
					logger.L.Warn("failed to persist refreshed token", zap.Error(err))
				}
			}
		}
	}

	return fresh.AccessToken, nil
}

func (h *AuthHandler) unsealSession(c *fiber.Ctx, v any) error {
	sess, err := h.store.Get(c)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	sealed, ok := sess.Get("credentials").(string)
	if !ok || sealed == "" {
		return fmt.Errorf("no credentials found in session")
	}

	return unseal(sealed, h.config.Security.SealKey, v)
}

func (h *AuthHandler) imapConfig(email, password string) imapmail.Config {
	return imapmail.Config{
		Server:        h.config.IMAP.Server,
		Port:          h.config.IMAP.Port,
		UseSSL:        h.config.IMAP.UseSSL,
		Username:      email,
		Password:      password,
		ArchiveFolder: h.config.IMAP.ArchiveFolder,
	}
}

// GenerateToken creates a new JWT token for the user
func GenerateToken(email, secret string) (string, error) {
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken verifies the JWT token and returns the claims
func ValidateToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// SessionMiddleware gates protected routes: JSON 401 for API requests,
// redirect to the login page otherwise. API routes also accept the JWT
// minted at login as an Authorization bearer credential.
func SessionMiddleware(store *session.Store, jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sess, err := store.Get(c); err == nil {
			if authenticated := sess.Get("authenticated"); authenticated == true {
				if email := sess.Get("email"); email != nil {
					c.Locals("email", email)
				}
				return c.Next()
			}
		}

		if strings.HasPrefix(c.Path(), "/api") {
			if claims, ok := bearerClaims(c, jwtSecret); ok {
				c.Locals("email", claims.Email)
				return c.Next()
			}
		}

		return deny(c)
	}
}

// bearerClaims validates an "Authorization: Bearer" header against the
// signing secret.
func bearerClaims(c *fiber.Ctx, secret string) (*Claims, bool) {
	header := c.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, false
	}

	claims, err := ValidateToken(strings.TrimPrefix(header, "Bearer "), secret)
	if err != nil {
		return nil, false
	}
	return claims, true
}

// SessionToken returns the API token minted at login.
func SessionToken(c *fiber.Ctx, store *session.Store) (string, error) {
	sess, err := store.Get(c)
	if err != nil {
		return "", fmt.Errorf("failed to get session: %w", err)
	}

	token, ok := sess.Get("token").(string)
	if !ok || token == "" {
		return "", fmt.Errorf("no token in session")
	}
	return token, nil
}

func deny(c *fiber.Ctx) error {
	if strings.HasPrefix(c.Path(), "/api") {
		return c.Status(401).JSON(fiber.Map{"error": "Unauthorized"})
	}
	return c.Redirect("/login")
}

// SessionEmail safely retrieves the account address from context
func SessionEmail(c *fiber.Ctx) string {
	if email := c.Locals("email"); email != nil {
		if emailStr, ok := email.(string); ok {
			return emailStr
		}
	}
	return ""
}

// seal encrypts v's JSON encoding with AES-GCM under key.
func seal(v any, key string) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal credentials: %w", err)
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to create nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// unseal reverses seal into v.
func unseal(sealed, key string, v any) error {
	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return fmt.Errorf("failed to decode credentials: %w", err)
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("failed to decrypt: %w", err)
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("failed to unmarshal credentials: %w", err)
	}

	return nil
}

func randomToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}
