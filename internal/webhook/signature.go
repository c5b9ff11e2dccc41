package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SignatureHeader carries the HMAC of the raw request body
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

var (
	ErrMissingSignature  = errors.New("webhook signature is missing")
	ErrInvalidSignature  = errors.New("webhook signature is malformed")
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
	ErrChallengeRejected = errors.New("webhook challenge rejected")
)

// VerifySignature checks a "sha256=<hex>" signature against the HMAC-SHA256
// of body under secret. body must be the bytes exactly as received.
func VerifySignature(secret, body []byte, signature string) error {
	if len(secret) == 0 {
		return errors.New("webhook secret is empty")
	}
	if signature == "" {
		return ErrMissingSignature
	}
	if !strings.HasPrefix(signature, signaturePrefix) {
		return ErrInvalidSignature
	}

	received, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, received) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the signature header value for body under secret
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifyChallenge validates a subscription handshake and returns the
// challenge to echo back.
func VerifyChallenge(mode, token, challenge, verifyToken string) (int64, error) {
	if mode != "subscribe" || verifyToken == "" {
		return 0, ErrChallengeRejected
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(verifyToken)) != 1 {
		return 0, ErrChallengeRejected
	}

	value, err := strconv.ParseInt(challenge, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: challenge is not an integer", ErrChallengeRejected)
	}
	return value, nil
}
