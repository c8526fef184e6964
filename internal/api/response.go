// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// maxErrorBodySize bounds how much of an error body is read.
const maxErrorBodySize = 64 * 1024

var successBody = json.RawMessage(`{"success":true}`)

// Result is a normalized response. Raw is always valid JSON.
type Result struct {
	StatusCode int
	Raw        json.RawMessage

	// Items is set when the body is a collection: a bare array, or an
	// object whose "data" or "items" member is an array. A null body is an
	// empty collection.
	Items        []json.RawMessage
	IsCollection bool

	// Stale marks a result served from an expired cache entry in offline mode.
	Stale bool
}

// Decode unmarshals the raw body into v.
func (r *Result) Decode(v any) error {
	return json.Unmarshal(r.Raw, v)
}

// DecodeData unmarshals the "data" member when the body is wrapped in one,
// otherwise the whole body.
func (r *Result) DecodeData(v any) error {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if bytes.HasPrefix(bytes.TrimSpace(r.Raw), []byte("{")) {
		if err := json.Unmarshal(r.Raw, &wrapper); err == nil && len(wrapper.Data) > 0 && string(wrapper.Data) != "null" {
			return json.Unmarshal(wrapper.Data, v)
		}
	}
	return r.Decode(v)
}

// Map decodes the body as an object. Non-object bodies yield an error.
func (r *Result) Map() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(r.Raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// clone returns a copy safe to hand to another caller.
func (r *Result) clone() *Result {
	c := *r
	if r.Items != nil {
		c.Items = append([]json.RawMessage(nil), r.Items...)
	}
	return &c
}

// normalize builds a Result from a 2xx response body. A body that parses
// as JSON is used whatever the Content-Type says; anything else is wrapped
// as {"message": text}.
func normalize(status int, body []byte) *Result {
	res := &Result{StatusCode: status}
	trimmed := bytes.TrimSpace(body)

	switch {
	case status == http.StatusNoContent || len(trimmed) == 0:
		res.Raw = successBody
		return res
	case !json.Valid(trimmed):
		msg, _ := json.Marshal(map[string]string{"message": string(body)})
		res.Raw = msg
		return res
	}
	res.Raw = json.RawMessage(trimmed)

	switch trimmed[0] {
	case 'n':
		res.IsCollection = true
		res.Items = []json.RawMessage{}
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err == nil {
			res.IsCollection = true
			res.Items = items
		}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err == nil {
			for _, k := range []string{"data", "items"} {
				v := bytes.TrimSpace(obj[k])
				if len(v) == 0 || v[0] != '[' {
					continue
				}
				var items []json.RawMessage
				if err := json.Unmarshal(v, &items); err == nil {
					res.IsCollection = true
					res.Items = items
					break
				}
			}
		}
	}
	return res
}

// readBodyForError reads at most maxErrorBodySize bytes.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return nil
	}
	return body
}

// newHTTPError builds an HTTPError. The message comes from the body's
// "error" field, then "message", then an "errors" array joined by ", ",
// then "HTTP <status>: <status text>".
func newHTTPError(status int, body []byte) *HTTPError {
	return &HTTPError{StatusCode: status, Message: errorMessage(status, body), Body: body}
}

func errorMessage(status int, body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		if s := messageOf(obj["error"]); s != "" {
			return s
		}
		if s := messageOf(obj["message"]); s != "" {
			return s
		}
		if list, ok := obj["errors"].([]any); ok && len(list) > 0 {
			parts := make([]string, 0, len(list))
			for _, item := range list {
				if s := messageOf(item); s != "" {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		}
	}
	return fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
}

// messageOf accepts a string or an object carrying "message" or "detail".
func messageOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["message"].(string); ok {
			return s
		}
		if s, ok := t["detail"].(string); ok {
			return s
		}
	}
	return ""
}
