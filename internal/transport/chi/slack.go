package chi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	slackTimestampHeader = "X-Slack-Request-Timestamp"
	slackSignatureHeader = "X-Slack-Signature"
	slackSignatureMaxAge = 5 * time.Minute
	slackVersion         = "v0"
)

var errBadSlackSignature = errors.New("invalid slack signature")

// verifySlackSignature checks the v0 HMAC-SHA256 signature Slack puts on every delivery.
func verifySlackSignature(secret string, h http.Header, body []byte, now time.Time) error {
	ts := h.Get(slackTimestampHeader)
	sig := h.Get(slackSignatureHeader)
	if ts == "" || sig == "" {
		return fmt.Errorf("%w: missing signature headers", errBadSlackSignature)
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", errBadSlackSignature, ts)
	}
	if age := now.Sub(time.Unix(sec, 0)); age > slackSignatureMaxAge || age < -slackSignatureMaxAge {
		return fmt.Errorf("%w: stale timestamp", errBadSlackSignature)
	}

	if !hmac.Equal([]byte(signSlackBody(secret, ts, body)), []byte(sig)) {
		return fmt.Errorf("%w: mismatch", errBadSlackSignature)
	}
	return nil
}

func signSlackBody(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(slackVersion + ":" + ts + ":"))
	_, _ = mac.Write(body)
	return slackVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}
