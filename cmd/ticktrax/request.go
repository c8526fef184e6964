// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tomtom215/ticktrax/internal/api"
)

var requestCmd = &cobra.Command{
	Use:   "request ENDPOINT",
	Short: "Send a raw request through the resilient client",
	Long: `Send a request to ENDPOINT (relative to the API base URL).

GETs go through the response cache unless --no-cache is set. POST and
PATCH are only retried when --idempotent is set, which attaches a fresh
Idempotency-Key header.`,
	Example: `  ticktrax request /time/entries --param page=2
  ticktrax request /time/entries -X POST --data '{"description":"standup"}' --idempotent`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		opts, err := requestOptions(cmd)
		if err != nil {
			return err
		}
		res, err := a.client.Request(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}
		return a.print(cmd, newResultView(res))
	}),
}

func init() {
	addRequestFlags(requestCmd)
}

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringArrayP("param", "p", nil, "Query parameter as key=value (repeatable)")
	cmd.Flags().StringArrayP("header", "H", nil, "Extra header as key=value (repeatable)")
	cmd.Flags().StringP("data", "d", "", "JSON request body")
	cmd.Flags().Bool("no-cache", false, "Bypass the response cache")
	cmd.Flags().Bool("idempotent", false, "Attach an Idempotency-Key so POST/PATCH may be retried")
	cmd.Flags().Duration("cache-ttl", 0, "Cache TTL for this GET (0 uses the default)")
}

func requestOptions(cmd *cobra.Command) (*api.RequestOptions, error) {
	method, _ := cmd.Flags().GetString("method")
	params, _ := cmd.Flags().GetStringArray("param")
	headers, _ := cmd.Flags().GetStringArray("header")
	data, _ := cmd.Flags().GetString("data")
	noCache, _ := cmd.Flags().GetBool("no-cache")
	idempotent, _ := cmd.Flags().GetBool("idempotent")
	ttl, _ := cmd.Flags().GetDuration("cache-ttl")

	opts := &api.RequestOptions{
		Method:   strings.ToUpper(method),
		NoCache:  noCache,
		CacheTTL: ttl,
	}

	var err error
	if opts.Params, err = parsePairs(params); err != nil {
		return nil, fmt.Errorf("--param: %w", err)
	}
	if opts.Headers, err = parsePairs(headers); err != nil {
		return nil, fmt.Errorf("--header: %w", err)
	}
	if data != "" {
		if !json.Valid([]byte(data)) {
			return nil, fmt.Errorf("--data is not valid JSON")
		}
		opts.Body = json.RawMessage(data)
	}
	if idempotent {
		opts.IdempotencyKey = uuid.NewString()
	}
	return opts, nil
}

// parsePairs turns key=value strings into a map. Later keys win.
func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("%q is not key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
