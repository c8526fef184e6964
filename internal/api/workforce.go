// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/ticktrax/internal/models"
)

// Typed helpers for the workforce endpoints. Every mutation invalidates
// the cached GETs it affects; the generic Request never does.

// ClockStatus fetches the current clock status, cached for the status TTL.
func (c *Client) ClockStatus(ctx context.Context) (*models.ClockStatus, error) {
	res, err := c.Request(ctx, c.cfg.Endpoints.ClockStatus, &RequestOptions{CacheTTL: c.statusTTL})
	if err != nil {
		return nil, fmt.Errorf("clock status: %w", err)
	}
	var st models.ClockStatus
	if err := res.DecodeData(&st); err != nil {
		return nil, fmt.Errorf("decode clock status: %w", err)
	}
	return &st, nil
}

// RefreshClockStatus drops the cached status and fetches it again.
func (c *Client) RefreshClockStatus(ctx context.Context) (*models.ClockStatus, error) {
	c.Invalidate(c.cfg.Endpoints.ClockStatus)
	return c.ClockStatus(ctx)
}

// ClockIn clocks the user in. body may be nil. Each call carries a fresh
// idempotency key so a retried POST is not applied twice.
func (c *Client) ClockIn(ctx context.Context, body any) (*Result, error) {
	return c.clockMutation(ctx, c.cfg.Endpoints.ClockIn, body)
}

// ClockOut clocks the user out.
func (c *Client) ClockOut(ctx context.Context, body any) (*Result, error) {
	return c.clockMutation(ctx, c.cfg.Endpoints.ClockOut, body)
}

func (c *Client) clockMutation(ctx context.Context, endpoint string, body any) (*Result, error) {
	res, err := c.Request(ctx, endpoint, &RequestOptions{
		Method:         http.MethodPost,
		Body:           body,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}
	c.Invalidate(c.cfg.Endpoints.ClockStatus, c.cfg.Endpoints.TimeEntries, c.cfg.Endpoints.BreakStatus)
	return res, nil
}

// TimeEntries lists time entries. params are passed as the query string.
func (c *Client) TimeEntries(ctx context.Context, params map[string]string) (*Result, error) {
	return c.Request(ctx, c.cfg.Endpoints.TimeEntries, &RequestOptions{Params: params})
}

// CreateTimeEntry creates an entry.
func (c *Client) CreateTimeEntry(ctx context.Context, entry any) (*Result, error) {
	return c.mutate(ctx, http.MethodPost, c.cfg.Endpoints.TimeEntries, entry, c.cfg.Endpoints.TimeEntries)
}

// UpdateTimeEntry replaces entry id.
func (c *Client) UpdateTimeEntry(ctx context.Context, id string, entry any) (*Result, error) {
	return c.mutate(ctx, http.MethodPut, itemPath(c.cfg.Endpoints.TimeEntries, id), entry, c.cfg.Endpoints.TimeEntries)
}

// DeleteTimeEntry deletes entry id.
func (c *Client) DeleteTimeEntry(ctx context.Context, id string) (*Result, error) {
	return c.mutate(ctx, http.MethodDelete, itemPath(c.cfg.Endpoints.TimeEntries, id), nil, c.cfg.Endpoints.TimeEntries)
}

// Profile fetches the user profile.
func (c *Client) Profile(ctx context.Context) (*Result, error) {
	return c.Request(ctx, c.cfg.Endpoints.Profile, nil)
}

// UpdateProfile updates the user profile.
func (c *Client) UpdateProfile(ctx context.Context, profile any) (*Result, error) {
	return c.mutate(ctx, http.MethodPut, c.cfg.Endpoints.Profile, profile, c.cfg.Endpoints.Profile)
}

// StartBreak starts a break.
func (c *Client) StartBreak(ctx context.Context, body any) (*Result, error) {
	return c.mutate(ctx, http.MethodPost, c.cfg.Endpoints.BreakStart, body,
		c.cfg.Endpoints.BreakStatus, c.cfg.Endpoints.ClockStatus)
}

// EndBreak ends the current break.
func (c *Client) EndBreak(ctx context.Context, body any) (*Result, error) {
	return c.mutate(ctx, http.MethodPost, c.cfg.Endpoints.BreakEnd, body,
		c.cfg.Endpoints.BreakStatus, c.cfg.Endpoints.ClockStatus)
}

// BreakStatus fetches the break status, cached for the status TTL.
func (c *Client) BreakStatus(ctx context.Context) (*Result, error) {
	return c.Request(ctx, c.cfg.Endpoints.BreakStatus, &RequestOptions{CacheTTL: c.statusTTL})
}

// Notifications lists notifications. opts may set NoCache for polling.
func (c *Client) Notifications(ctx context.Context, opts *RequestOptions) ([]models.Notification, error) {
	res, err := c.Request(ctx, c.cfg.Endpoints.Notifications, opts)
	if err != nil {
		return nil, fmt.Errorf("notifications: %w", err)
	}
	if !res.IsCollection {
		var list []models.Notification
		if err := res.DecodeData(&list); err != nil {
			return nil, fmt.Errorf("decode notifications: %w", err)
		}
		return list, nil
	}
	list := make([]models.Notification, 0, len(res.Items))
	for _, raw := range res.Items {
		var n models.Notification
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("decode notification: %w", err)
		}
		list = append(list, n)
	}
	return list, nil
}

// MarkNotificationRead marks notification id as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) (*Result, error) {
	ep := itemPath(c.cfg.Endpoints.Notifications, id) + "/read"
	return c.mutate(ctx, http.MethodPut, ep, nil, c.cfg.Endpoints.Notifications)
}

func (c *Client) mutate(ctx context.Context, method, endpoint string, body any, invalidate ...string) (*Result, error) {
	res, err := c.Request(ctx, endpoint, &RequestOptions{Method: method, Body: body})
	if err != nil {
		return nil, err
	}
	c.Invalidate(invalidate...)
	return res, nil
}

func itemPath(base, id string) string {
	return base + "/" + url.PathEscape(id)
}
