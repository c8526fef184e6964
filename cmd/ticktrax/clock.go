// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the clock status",
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		st, err := a.client.ClockStatus(cmd.Context())
		if err != nil {
			return err
		}
		return a.print(cmd, statusView{Clock: st, Client: a.client.Stats()})
	}),
}

var clockInCmd = &cobra.Command{
	Use:   "clock-in",
	Short: "Start a work period",
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		res, err := a.client.ClockIn(cmd.Context(), clockBody(cmd))
		if err != nil {
			return err
		}
		return a.print(cmd, newResultView(res))
	}),
}

var clockOutCmd = &cobra.Command{
	Use:   "clock-out",
	Short: "End the current work period",
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		res, err := a.client.ClockOut(cmd.Context(), clockBody(cmd))
		if err != nil {
			return err
		}
		return a.print(cmd, newResultView(res))
	}),
}

func init() {
	clockInCmd.Flags().String("note", "", "Optional note sent with the request")
	clockOutCmd.Flags().String("note", "", "Optional note sent with the request")
}

func clockBody(cmd *cobra.Command) any {
	note, _ := cmd.Flags().GetString("note")
	if note == "" {
		return nil
	}
	return map[string]any{"note": note}
}
