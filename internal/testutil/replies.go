package testutil

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ReplyJSON writes a 200 response with the given JSON payload.
func ReplyJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// ReplyStatus writes an error status with a JSON body carrying a message.
func ReplyStatus(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message},
	})
}

// ReplyServerError writes a 5xx response.
func ReplyServerError(w http.ResponseWriter, status int, message string) {
	ReplyStatus(w, status, message)
}

// ReplyRateLimit writes a 429 with retry_after in both the JSON body and the
// Retry-After header.
func ReplyRateLimit(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message":     "rate limit exceeded",
		"retry_after": retryAfter,
	})
}

// ReplyRateLimitHeaderOnly writes a 429 with retry_after ONLY in the HTTP
// header. Useful for testing header fallback parsing.
func ReplyRateLimitHeaderOnly(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message": "rate limit exceeded",
	})
}

// ReplyRateLimitBare writes a 429 with no wait hint anywhere.
func ReplyRateLimitBare(w http.ResponseWriter) {
	ReplyStatus(w, http.StatusTooManyRequests, "rate limit exceeded")
}

// ReplyBadRequest writes a 400 with a body-provided message.
func ReplyBadRequest(w http.ResponseWriter, message string) {
	ReplyStatus(w, http.StatusBadRequest, message)
}

// ReplyUnauthorized writes a 401.
func ReplyUnauthorized(w http.ResponseWriter) {
	ReplyStatus(w, http.StatusUnauthorized, "invalid api key")
}

// ReplyForbidden writes a 403.
func ReplyForbidden(w http.ResponseWriter, message string) {
	ReplyStatus(w, http.StatusForbidden, message)
}

// ReplyChat writes a chat completion style success body.
func ReplyChat(w http.ResponseWriter, text string) {
	ReplyJSON(w, map[string]any{
		"id":   "chat-1",
		"text": text,
	})
}
