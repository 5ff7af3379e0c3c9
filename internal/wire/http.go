package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// httpClient is the shared client used for all coordinator<->worker
// communication. A per-call context still governs cancellation; Timeout
// here is a backstop against a peer that accepts the connection but never
// writes a response.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// StatusError is returned by the *Status helpers below when the peer
// responds with a non-2xx status. Callers that care about the exact code
// (the coordinator distinguishing a 409 busy from a 404 unknown task, for
// instance) type-assert for it instead of string-matching Error().
type StatusError struct {
	URL  string
	Body string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %s: %d: %s", e.URL, e.Code, e.Body)
}

// PostJSON sends a JSON-encoded POST and decodes a JSON response into out.
// Pass out as nil to discard the body. Returns a *StatusError for any
// non-2xx response.
func PostJSON(ctx context.Context, url string, body, out any) error {
	_, err := PostJSONStatus(ctx, url, body, out)
	return err
}

// PostJSONStatus is PostJSON plus the observed status code, so callers can
// branch on 409/404/etc. without parsing StatusError.Error().
func PostJSONStatus(ctx context.Context, url string, body, out any) (int, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, url, out)
}

// GetJSON sends a GET and decodes a JSON response into out. Returns a
// *StatusError for any non-2xx response.
func GetJSON(ctx context.Context, url string, out any) error {
	_, err := GetJSONStatus(ctx, url, out)
	return err
}

// GetJSONStatus is GetJSON plus the observed status code.
func GetJSONStatus(ctx context.Context, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, url, out)
}

func decodeResponse(resp *http.Response, url string, out any) (int, error) {
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, &StatusError{URL: url, Code: resp.StatusCode, Body: string(b)}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
}

// WriteJSON writes v as the JSON body of an HTTP response with the given
// status code. Errors encoding v are not logged here — callers accept that
// json.Marshal cannot fail for the shapes in this package.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WriteError writes an ErrorResponse with the given status and message.
func WriteError(w http.ResponseWriter, status int, msg string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: msg})
}
