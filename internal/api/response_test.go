// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package api

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		wantRaw    string
		collection bool
		items      int
	}{
		{"no content", 204, "", `{"success":true}`, false, 0},
		{"empty body", 200, "  ", `{"success":true}`, false, 0},
		{"plain text", 200, "pong", `{"message":"pong"}`, false, 0},
		{"object", 200, `{"id":1}`, `{"id":1}`, false, 0},
		{"bare array", 200, `[{"id":1},{"id":2}]`, `[{"id":1},{"id":2}]`, true, 2},
		{"data array", 200, `{"data":[{"id":1}]}`, `{"data":[{"id":1}]}`, true, 1},
		{"items array", 200, `{"items":[1,2,3],"total":3}`, `{"items":[1,2,3],"total":3}`, true, 3},
		{"data object", 200, `{"data":{"id":1}}`, `{"data":{"id":1}}`, false, 0},
		{"null", 200, "null", "null", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := normalize(tt.status, []byte(tt.body))
			if string(res.Raw) != tt.wantRaw {
				t.Errorf("Raw = %s, want %s", res.Raw, tt.wantRaw)
			}
			if res.IsCollection != tt.collection {
				t.Errorf("IsCollection = %v, want %v", res.IsCollection, tt.collection)
			}
			if len(res.Items) != tt.items {
				t.Errorf("len(Items) = %d, want %d", len(res.Items), tt.items)
			}
			if tt.collection && res.Items == nil {
				t.Error("collection Items should be non-nil")
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error field wins", 422, `{"error":"bad input","message":"ignored"}`, "bad input"},
		{"message field", 400, `{"message":"missing email"}`, "missing email"},
		{"errors array", 422, `{"errors":["email taken","password short"]}`, "email taken, password short"},
		{"errors objects", 422, `{"errors":[{"message":"a"},{"detail":"b"}]}`, "a, b"},
		{"error object", 403, `{"error":{"message":"forbidden here"}}`, "forbidden here"},
		{"no json", 502, `<html>bad gateway</html>`, "HTTP 502: Bad Gateway"},
		{"empty", 500, ``, "HTTP 500: Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorMessage(tt.status, []byte(tt.body)); got != tt.want {
				t.Errorf("errorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadBodyForErrorLimit(t *testing.T) {
	t.Parallel()

	big := strings.Repeat("x", maxErrorBodySize*2)
	if got := readBodyForError(strings.NewReader(big)); len(got) != maxErrorBodySize {
		t.Errorf("read %d bytes, want %d", len(got), maxErrorBodySize)
	}
}

func TestResultDecodeData(t *testing.T) {
	t.Parallel()

	var out struct {
		ID int `json:"id"`
	}
	wrapped := &Result{Raw: []byte(`{"data":{"id":7}}`)}
	if err := wrapped.DecodeData(&out); err != nil || out.ID != 7 {
		t.Errorf("wrapped DecodeData = %d, %v", out.ID, err)
	}

	out.ID = 0
	flat := &Result{Raw: []byte(`{"id":9}`)}
	if err := flat.DecodeData(&out); err != nil || out.ID != 9 {
		t.Errorf("flat DecodeData = %d, %v", out.ID, err)
	}
}
