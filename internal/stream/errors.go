package stream

import (
	"fmt"
	"net/http"
)

// BrokerUnavailableMessage is the 503 body when events cannot reach other
// processes.
const BrokerUnavailableMessage = "Realtime broker unavailable; set REDIS_URL to enable realtime updates."

// AdmissionError is a rejected stream request. It is the only error Admit
// returns.
type AdmissionError struct {
	Status  int
	Message string
	// RetryAfter is set for 429 responses, in whole seconds.
	RetryAfter string
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("stream admission: %d %s", e.Status, e.Message)
}

func unauthorized() *AdmissionError {
	return &AdmissionError{Status: http.StatusUnauthorized, Message: "Unauthorized"}
}

func forbidden() *AdmissionError {
	return &AdmissionError{Status: http.StatusForbidden, Message: "Forbidden"}
}

func unavailable(msg string) *AdmissionError {
	return &AdmissionError{Status: http.StatusServiceUnavailable, Message: msg}
}

func badFilter(err error) *AdmissionError {
	if err == ErrFilterTooLong {
		return &AdmissionError{Status: http.StatusBadRequest, Message: "Filter too long"}
	}
	return &AdmissionError{Status: http.StatusBadRequest, Message: "Invalid filter: " + err.Error()}
}

func tooMany(retryAfter string) *AdmissionError {
	return &AdmissionError{Status: http.StatusTooManyRequests, Message: "Too many realtime connections", RetryAfter: retryAfter}
}
