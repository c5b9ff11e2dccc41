package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds every call to the Graph API
const DefaultTimeout = 20 * time.Second

// Client sends messages through the WhatsApp Cloud API
type Client struct {
	baseURL     string
	version     string
	accessToken string
	httpClient  *http.Client
}

// NewClient creates a new Cloud API client. baseURL is the Graph API host,
// version the Graph API version (for example v21.0).
func NewClient(baseURL, version, accessToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		version:     version,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// SendMessageRequest represents a message send request
type SendMessageRequest struct {
	MessagingProduct string    `json:"messaging_product"`
	RecipientType    string    `json:"recipient_type,omitempty"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             *TextBody `json:"text,omitempty"`
}

// TextBody represents text message content
type TextBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

// SendMessageResponse represents the API response
type SendMessageResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// APIError is returned when the Graph API answers with a non-2xx status
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}

// SendText sends a free-form text message from the number identified by
// phoneNumberID to the customer to. The returned message id is nil when the
// response does not carry one.
func (c *Client) SendText(ctx context.Context, phoneNumberID, to, text string) (*string, error) {
	request := SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &TextBody{Body: text},
	}
	return c.sendMessage(ctx, phoneNumberID, request)
}

// sendMessage sends a message to the WhatsApp API
func (c *Client) sendMessage(ctx context.Context, phoneNumberID string, request SendMessageRequest) (*string, error) {
	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.version, phoneNumberID)

	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var response SendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		log.Warn().Err(err).Str("phone_number_id", phoneNumberID).Msg("Unreadable send response, message id unknown")
		return nil, nil
	}

	if len(response.Messages) == 0 || response.Messages[0].ID == "" {
		log.Warn().Str("phone_number_id", phoneNumberID).Msg("Send response carried no message id")
		return nil, nil
	}

	messageID := response.Messages[0].ID
	return &messageID, nil
}
