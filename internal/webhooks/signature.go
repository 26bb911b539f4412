package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/pro-marketplace/internal/apperr"
)

// SignatureHeader carries "t=<unix>,v1=<hex>" where the hex digest is
// HMAC-SHA256(secret, "<unix>.<payload>").
const SignatureHeader = "Gateway-Signature"

// SignatureTolerance bounds how far the signed timestamp may drift from now.
const SignatureTolerance = 5 * time.Minute

// Sign builds a header value for payload at ts.
func Sign(secret string, payload []byte, ts time.Time) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + unix + ",v1=" + digest(secret, unix, payload)
}

func digest(secret, unix string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unix))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against payload. An empty secret disables
// verification for local development.
func VerifySignature(secret string, payload []byte, header string, now time.Time) error {
	if secret == "" {
		return nil
	}
	var (
		unix       string
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			unix = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if unix == "" || len(signatures) == 0 {
		return apperr.Forbidden("invalid_signature", "missing webhook signature")
	}
	ts, err := strconv.ParseInt(unix, 10, 64)
	if err != nil {
		return apperr.Forbidden("invalid_signature", "malformed webhook timestamp")
	}
	drift := now.Sub(time.Unix(ts, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > SignatureTolerance {
		return apperr.Forbidden("stale_signature", "webhook timestamp outside tolerance")
	}
	expected := digest(secret, unix, payload)
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return apperr.Forbidden("invalid_signature", "webhook signature mismatch")
}
