package rates

import (
	"errors"
	"fmt"
	"time"
)

// ErrNetwork indicates the upstream API could not be reached.
var ErrNetwork = errors.New("upstream unreachable")

// APIError indicates the upstream API rejected the request or returned
// a payload that could not be used (bad key, rate limit, malformed body).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: %s", e.Message)
}

// Snapshot holds the raw rates for one effective date plus fetch metadata
type Snapshot struct {
	Date        string // YYYY-MM-DD the rates apply to
	Base        string
	Rates       map[string]float64
	APIVersion  string
	RetrievedAt time.Time
}

// ratesResponse is the upstream JSON shape
type ratesResponse struct {
	Disclaimer string             `json:"disclaimer"`
	License    string             `json:"license"`
	Timestamp  int64              `json:"timestamp"`
	Base       string             `json:"base"`
	Rates      map[string]float64 `json:"rates"`
}
