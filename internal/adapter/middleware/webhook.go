package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const HeaderSignature = "X-Signature"

// WebhookSignature rejects callbacks whose X-Signature is not the hex
// HMAC-SHA256 of the raw body under secret.
func WebhookSignature(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			var body []byte
			if req.Body != nil {
				body, _ = io.ReadAll(io.LimitReader(req.Body, 1<<20))
			}
			req.Body = io.NopCloser(bytes.NewReader(body))

			got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(req.Header.Get(HeaderSignature)), "sha256="))
			if err != nil || len(got) == 0 || !hmac.Equal(got, mac(secret, body)) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
			}
			return next(c)
		}
	}
}

// Sign returns the X-Signature value for body.
func Sign(secret, body []byte) string { return hex.EncodeToString(mac(secret, body)) }

func mac(secret, body []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return h.Sum(nil)
}
