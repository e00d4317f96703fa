package flexibee

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// signatureHeader carries the hex HMAC-SHA256 of the request body.
const signatureHeader = "X-Webhook-Signature"

// WebhookPayload is the change notification the server posts when
// invoices are created or modified.
type WebhookPayload struct {
	Winstrom struct {
		Changes []struct {
			Type      string `json:"@evidence"`
			Operation string `json:"@operation"`
			ID        string `json:"id"`
		} `json:"changes"`
	} `json:"winstrom"`
}

// WebhookHandler accepts change notifications and triggers a sync run.
// Requests are authenticated with an HMAC signature over the raw body;
// unauthenticated or malformed requests are rejected without touching
// the trigger.
type WebhookHandler struct {
	secret  []byte
	trigger func()
	logger  *zap.Logger
}

// NewWebhookHandler returns a handler that calls trigger for each
// authenticated notification.
func NewWebhookHandler(secret string, trigger func(), logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret:  []byte(secret),
		trigger: trigger,
		logger:  logger.With(zap.String("component", "webhook")),
	}
}

// ServeHTTP implements http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !h.verify(r.Header.Get(signatureHeader), body) {
		h.logger.Warn("rejected webhook with bad signature",
			zap.String("remote", r.RemoteAddr))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	h.logger.Info("webhook accepted",
		zap.Int("changes", len(payload.Winstrom.Changes)))
	h.trigger()
	w.WriteHeader(http.StatusAccepted)
}

// RegistrationStatus describes the outcome of a webhook registration
// request.
type RegistrationStatus struct {
	Status      string `json:"status"`
	CallbackURL string `json:"callback_url"`
}

// RegisterWebhook records the intent to receive change notifications at
// callbackURL. Server-side registration is not automated; the returned
// status is always pending and delivery starts once the registration is
// completed in the ERP's administration.
func RegisterWebhook(callbackURL string) RegistrationStatus {
	return RegistrationStatus{Status: "pending", CallbackURL: callbackURL}
}

func (h *WebhookHandler) verify(signature string, body []byte) bool {
	if len(h.secret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
