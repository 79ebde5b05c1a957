package chat

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	httputils "aggregator/aggregator/utils/http"
)

var (
	ErrEmptyMessage     = errors.New("chat: empty message")
	ErrSendInFlight     = errors.New("chat: a message is already being sent")
	ErrNoSession        = errors.New("chat: session not initialised")
	ErrNoSuchAttachment = errors.New("chat: no such attachment")
	ErrNoSuchMessage    = errors.New("chat: no such message")
)

type Category int

const (
	CategoryOther Category = iota
	CategoryRateLimit
	CategoryNetwork
	CategoryService
)

func (c Category) String() string {
	switch c {
	case CategoryRateLimit:
		return "rate_limit"
	case CategoryNetwork:
		return "network"
	case CategoryService:
		return "service"
	default:
		return "other"
	}
}

var (
	rateLimitMarkers = []string{"Rate limit exceeded", "free-models-per-day", "rate limit", "bad status: 429", "status code 429"}
	networkMarkers   = []string{"Failed to fetch", "NetworkError", "Network", "connection refused", "no such host", "i/o timeout", "connection reset"}
	serviceMarkers   = []string{"API key", "configured"}
)

// Classify buckets a send failure by its message text. The first matching
// group wins, in rate limit, network, service order.
func Classify(err error) Category {
	if err == nil {
		return CategoryOther
	}
	msg := err.Error()
	var se *httputils.StatusError
	if (errors.As(err, &se) && se.Code == http.StatusTooManyRequests) || containsAny(msg, rateLimitMarkers) {
		return CategoryRateLimit
	}
	var netErr net.Error
	if errors.As(err, &netErr) || containsAny(msg, networkMarkers) {
		return CategoryNetwork
	}
	if containsAny(msg, serviceMarkers) {
		return CategoryService
	}
	return CategoryOther
}

// UserMessage is the assistant-role text that replaces a failed placeholder.
func UserMessage(err error) string {
	switch Classify(err) {
	case CategoryRateLimit:
		return "⚠️ The request limit for today has been reached.\n\n" +
			"💡 What you can do:\n" +
			"• Pick another model in the menu\n" +
			"• Wait a little and try again"
	case CategoryNetwork:
		return "⚠️ Could not reach the server.\n\n" +
			"💡 What you can do:\n" +
			"• Check your internet connection\n" +
			"• Reload and try again"
	case CategoryService:
		return "⚠️ Temporary service error. Please try again in a few seconds."
	default:
		return fmt.Sprintf("❌ Error: %s\n\nTry:\n• Reloading\n• Sending the request again", err)
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
