package webhook

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// MaxBodySize caps the notification body read before verification
const MaxBodySize = 32 * 1024 * 1024

// Ingester consumes verified notifications. It must not fail the request:
// per-message problems are handled and logged by the implementation.
type Ingester interface {
	Ingest(ctx context.Context, payload *Payload)
}

// Handler serves the Cloud API webhook endpoint
type Handler struct {
	secret      []byte
	verifyToken string
	ingester    Ingester
}

// NewHandler creates a webhook handler
func NewHandler(appSecret, verifyToken string, ingester Ingester) *Handler {
	return &Handler{
		secret:      []byte(appSecret),
		verifyToken: verifyToken,
		ingester:    ingester,
	}
}

// Register mounts the handshake and notification routes on g
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.Verify)
	g.POST("", h.Receive)
}

// Verify answers the subscription handshake
// @Summary Webhook subscription handshake
// @Tags webhooks
// @Param hub.mode query string true "subscribe"
// @Param hub.verify_token query string true "Verify token"
// @Param hub.challenge query integer true "Challenge"
// @Success 200 {integer} int
// @Failure 403 {object} map[string]string
// @Router /webhooks/whatsapp [get]
func (h *Handler) Verify(c echo.Context) error {
	challenge, err := VerifyChallenge(
		c.QueryParam("hub.mode"),
		c.QueryParam("hub.verify_token"),
		c.QueryParam("hub.challenge"),
		h.verifyToken,
	)
	if err != nil {
		log.Warn().Err(err).Str("remote_addr", c.RealIP()).Msg("Webhook handshake rejected")
		return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden", "message": "Forbidden"})
	}
	return c.JSON(http.StatusOK, challenge)
}

// Receive verifies and ingests a notification
// @Summary Receive WhatsApp notifications
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-Hub-Signature-256 header string true "sha256=<hex>"
// @Success 200 {object} map[string]bool
// @Failure 403 {object} map[string]string
// @Router /webhooks/whatsapp [post]
func (h *Handler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, MaxBodySize+1))
	if err != nil {
		log.Error().Err(err).Msg("Failed to read webhook body")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "validation", "message": "unreadable body"})
	}
	if len(body) > MaxBodySize {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "validation", "message": "body too large"})
	}

	if err := VerifySignature(h.secret, body, c.Request().Header.Get(SignatureHeader)); err != nil {
		log.Warn().Err(err).Str("remote_addr", c.RealIP()).Msg("Webhook signature rejected")
		return c.JSON(http.StatusForbidden, map[string]string{"error": "unauthenticated", "message": "invalid signature"})
	}

	payload, err := ParsePayload(body)
	if err != nil {
		// Acknowledged anyway: a retry of the same bytes cannot succeed.
		log.Warn().Err(err).Int("size", len(body)).Msg("Ignoring undecodable webhook payload")
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}

	// Ingestion outlives a provider that hangs up early.
	h.ingester.Ingest(context.WithoutCancel(c.Request().Context()), payload)

	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}
