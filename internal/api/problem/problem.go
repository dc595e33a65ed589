// Package problem renders RFC 7807 error bodies.
package problem

import (
	"encoding/json"
	"net/http"
)

const (
	contentType = "application/problem+json"
	baseTypeURL = "https://errors.logistics-wallet.dev/"
	traceHeader = "X-Trace-ID"
)

// Details is an RFC 7807 problem. Success is always false so wallet clients can branch
// on the same field for success and error bodies.
type Details struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Instance  string `json:"instance"`
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
}

// Type expands a slug such as "payout/insufficient-funds" into a problem type URI.
func Type(slug string) string {
	return baseTypeURL + slug
}

// New builds a problem for the request. An empty title uses the status text.
func New(r *http.Request, status int, problemType, title, detail string) Details {
	if title == "" {
		title = http.StatusText(status)
	}
	if problemType == "" {
		problemType = "about:blank"
	}
	d := Details{Type: problemType, Title: title, Status: status, Detail: detail}
	if r != nil {
		d.Instance = r.URL.Path
		d.RequestID = r.Header.Get(traceHeader)
	}
	return d
}

// Render writes the problem. The request id falls back to the response trace header.
func (d Details) Render(w http.ResponseWriter) {
	if d.RequestID == "" {
		d.RequestID = w.Header().Get(traceHeader)
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}

// Write builds and renders a problem in one call.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	New(r, status, problemType, title, detail).Render(w)
}
