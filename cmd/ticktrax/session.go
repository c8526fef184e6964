// Ticktrax - Resilient Time-Tracking API Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ticktrax

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// passwordEnvVar lets scripts log in without a prompt.
const passwordEnvVar = "TICKTRAX_PASSWORD"

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	Long: `Sign in with an email (or username) and password.

The password is taken from --password, then TICKTRAX_PASSWORD, then the
first line of standard input.`,
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")

		if password == "" {
			password = os.Getenv(passwordEnvVar)
		}
		if password == "" {
			fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
			p, err := readLine(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			password = p
		}

		user, err := a.auth.Login(cmd.Context(), email, password)
		if err != nil {
			return err
		}
		return a.print(cmd, userView{User: user})
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		if err := a.auth.Logout(cmd.Context()); err != nil {
			return err
		}
		return a.print(cmd, messageView{Message: "signed out"})
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: withApp(func(cmd *cobra.Command, _ []string, a *app) error {
		user, err := a.auth.CurrentUser(cmd.Context())
		if err != nil {
			return err
		}
		view := userView{User: user}
		if exp, ok := a.tokens.Expiry(); ok {
			view.ExpiresAt = &exp
		}
		return a.print(cmd, view)
	}),
}

func init() {
	loginCmd.Flags().String("email", "", "Email or username")
	loginCmd.Flags().String("password", "", "Password (prefer TICKTRAX_PASSWORD or stdin)")
	_ = loginCmd.MarkFlagRequired("email")
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
