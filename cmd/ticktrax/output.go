// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package main

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/tomtom215/ticktrax/internal/api"
	"github.com/tomtom215/ticktrax/internal/models"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func checkFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

// texter is implemented by views with a human-readable rendering.
type texter interface {
	Text() string
}

// writeOutput renders v. Text falls back to YAML for values without a
// Text method.
func writeOutput(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		return writeYAML(w, v)
	default:
		if t, ok := v.(texter); ok {
			_, err := fmt.Fprintln(w, t.Text())
			return err
		}
		return writeYAML(w, v)
	}
}

// writeYAML goes through JSON first so keys follow the json tags and keep
// their order.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return fmt.Errorf("convert output: %w", err)
	}
	blockStyle(&node)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return enc.Close()
}

// blockStyle clears the flow and quoting styles the JSON source left on
// every node.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// userView is printed by login and whoami.
type userView struct {
	User *models.User `json:"user"`
	// ExpiresAt is the unverified exp claim of the stored access token.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (v userView) Text() string {
	u := v.User
	s := fmt.Sprintf("%s <%s>\nid:   %s\nrole: %s", u.FullName(), u.Email, u.ID, u.Role)
	if v.ExpiresAt != nil {
		s += "\nsession expires: " + v.ExpiresAt.Local().Format(time.RFC1123)
	}
	return s
}

// statusView is printed by status.
type statusView struct {
	Clock  *models.ClockStatus `json:"clock"`
	Client api.Stats           `json:"client"`
}

func (v statusView) Text() string {
	var b strings.Builder
	if v.Clock.IsClockedIn {
		fmt.Fprintf(&b, "clocked in since %s", v.Clock.ClockInTime)
		if v.Clock.OnBreak {
			b.WriteString(" (on break)")
		}
	} else {
		b.WriteString("clocked out")
	}
	fmt.Fprintf(&b, "\nhours today: %.2f", v.Clock.TotalHoursToday)
	fmt.Fprintf(&b, "\nrequests: %d (%d ok, %d failed), circuit %s",
		v.Client.TotalRequests, v.Client.Successful, v.Client.Failed, v.Client.CircuitState)
	if v.Client.Offline {
		b.WriteString("\noffline mode")
	}
	return b.String()
}

// resultView is printed by request, clock-in and clock-out.
type resultView struct {
	Status int             `json:"status"`
	Stale  bool            `json:"stale,omitempty"`
	Body   json.RawMessage `json:"body"`
}

func newResultView(res *api.Result) resultView {
	return resultView{Status: res.StatusCode, Stale: res.Stale, Body: res.Raw}
}

func (v resultView) Text() string {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, v.Body, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(v.Body)
	}
	head := fmt.Sprintf("HTTP %d", v.Status)
	if v.Stale {
		head += " (stale, offline)"
	}
	return head + "\n" + pretty.String()
}

// messageView is a one-line confirmation.
type messageView struct {
	Message string `json:"message"`
}

func (v messageView) Text() string { return v.Message }
