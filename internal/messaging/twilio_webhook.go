package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// WhatsAppWebhook is an inbound message delivery from the Twilio WhatsApp
// channel. Addresses keep their whatsapp: prefix as received.
type WhatsAppWebhook struct {
	MessageSid string
	AccountSid string
	From       string
	To         string
	Body       string
	MediaURL   string
}

// ParseWhatsAppWebhook decodes the form-encoded webhook body. Only the first
// media attachment is kept.
func ParseWhatsAppWebhook(r *http.Request) (*WhatsAppWebhook, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("messaging: parse webhook form: %w", err)
	}
	hook := &WhatsAppWebhook{
		MessageSid: r.FormValue("MessageSid"),
		AccountSid: r.FormValue("AccountSid"),
		From:       r.FormValue("From"),
		To:         r.FormValue("To"),
		Body:       r.FormValue("Body"),
	}
	if n, err := strconv.Atoi(r.FormValue("NumMedia")); err == nil && n > 0 {
		hook.MediaURL = r.FormValue("MediaUrl0")
	}
	return hook, nil
}

// ValidateTwilioSignature checks the X-Twilio-Signature header against the
// HMAC-SHA1 of the webhook URL plus the sorted form parameters.
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	expected := computeSignature(buildSignaturePayload(webhookURL, r.PostForm), authToken)
	return hmac.Equal([]byte(signature), []byte(expected))
}

func buildSignaturePayload(webhookURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(webhookURL)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}
	return payload.String()
}

func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
