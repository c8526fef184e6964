// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package auth

import (
	"strconv"
	"strings"

	"github.com/tomtom215/ticktrax/internal/models"
)

// userMatcher extracts a user from one response shape.
type userMatcher func(body map[string]any) (models.User, bool)

// userMatchers are tried in order; the first match wins.
var userMatchers = []userMatcher{
	matchDataAttributes,
	matchDataUser,
	matchUser,
	matchDataWithEmail,
	matchFlat,
}

var (
	tokenPaths = [][]string{{"data", "token"}, {"meta", "token"}, {"token"}}
	csrfPaths  = [][]string{{"data", "csrf_token"}, {"meta", "csrf_token"}, {"csrf_token"}, {"xsrf_token"}}
)

// extractUser runs the matchers against body.
func extractUser(body map[string]any) (models.User, bool) {
	for _, match := range userMatchers {
		if u, ok := match(body); ok {
			return u, true
		}
	}
	return models.User{}, false
}

func matchDataAttributes(body map[string]any) (models.User, bool) {
	data, ok := body["data"].(map[string]any)
	if !ok {
		return models.User{}, false
	}
	attrs, ok := data["attributes"].(map[string]any)
	if !ok {
		return models.User{}, false
	}
	u := userFromMap(attrs)
	if id := models.IDFromAny(data["id"]); id != "" {
		u.ID = id
	}
	return u, true
}

func matchDataUser(body map[string]any) (models.User, bool) {
	data, ok := body["data"].(map[string]any)
	if !ok {
		return models.User{}, false
	}
	user, ok := data["user"].(map[string]any)
	if !ok {
		return models.User{}, false
	}
	return userFromMap(user), true
}

func matchUser(body map[string]any) (models.User, bool) {
	user, ok := body["user"].(map[string]any)
	if !ok {
		return models.User{}, false
	}
	return userFromMap(user), true
}

func matchDataWithEmail(body map[string]any) (models.User, bool) {
	data, ok := body["data"].(map[string]any)
	if !ok {
		return models.User{}, false
	}
	if _, ok := data["email"]; !ok {
		return models.User{}, false
	}
	return userFromMap(data), true
}

func matchFlat(body map[string]any) (models.User, bool) {
	_, hasEmail := body["email"]
	_, hasUserID := body["user_id"]
	if !hasEmail && !hasUserID {
		return models.User{}, false
	}
	return userFromMap(body), true
}

// userFromMap reads the user fields common to every shape.
func userFromMap(m map[string]any) models.User {
	u := models.User{
		ID:        models.IDFromAny(m["id"]),
		Email:     str(m["email"]),
		FirstName: firstOf(m, "first_name", "firstName"),
		LastName:  firstOf(m, "last_name", "lastName"),
		RoleID:    intOf(m["role_id"]),
	}
	if u.ID == "" {
		u.ID = models.IDFromAny(m["user_id"])
	}

	role := str(m["role"])
	if obj, ok := m["role"].(map[string]any); ok {
		role = str(obj["name"])
	}
	u.Role = models.NormalizeRole(role, u.RoleID)
	return u
}

// lookupString follows path through nested objects.
func lookupString(body map[string]any, path []string) string {
	var cur any = body
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = m[key]
	}
	return str(cur)
}

func firstString(body map[string]any, paths [][]string) string {
	for _, p := range paths {
		if s := lookupString(body, p); s != "" {
			return s
		}
	}
	return ""
}

func firstOf(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := str(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func intOf(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(t))
		return n
	}
	return 0
}

// failureMessage picks a message from a response that carried no token.
func failureMessage(body map[string]any) string {
	for _, k := range []string{"error", "message"} {
		if s := str(body[k]); s != "" {
			return s
		}
	}
	return "Login failed"
}
