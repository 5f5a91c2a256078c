package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// apiClient is the shared HTTP client with timeout.
var apiClient = &http.Client{
	Timeout: DefaultClientTimeout,
}

// apiError is a non-2xx answer from the control plane. MatchedID is set on
// duplicate admissions so callers can name the suspected original.
type apiError struct {
	StatusCode int
	Message    string
	MatchedID  string
}

func (e *apiError) Error() string {
	if e.MatchedID != "" {
		return fmt.Sprintf("API error (%d): %s [matched task %s]", e.StatusCode, e.Message, e.MatchedID)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// apiGet performs a GET request to the API with timeout.
func apiGet(path string) ([]byte, error) {
	resp, err := apiClient.Get(apiAddr + path)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	return readResponse(resp)
}

// apiPost performs a POST request to the API with timeout.
func apiPost(path string, data interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	resp, err := apiClient.Post(apiAddr+path, "application/json", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	return readResponse(resp)
}

// readResponse drains the body, turning error statuses into an *apiError.
// The control plane answers errors with a structured JSON body; bodies that
// are not (validation rejections) are carried through as plain text.
func readResponse(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 400 {
		return body, nil
	}

	apiErr := &apiError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(body))}
	var parsed struct {
		Error     string `json:"error"`
		MatchedID string `json:"matched_id"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		apiErr.Message = parsed.Error
		apiErr.MatchedID = parsed.MatchedID
	}
	return nil, apiErr
}
