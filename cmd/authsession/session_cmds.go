package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/spf13/cobra"
)

const maxPrintedBody = 1 << 20

func newLoginCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start a login with an identity provider",
		Long: `Start a login handshake and print the URL to open in a browser.

When the provider redirects back, complete the login with the callback command
using the code and state from the redirect.

Examples:
  authsession login --provider google`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, _ := cmd.Flags().GetString("provider")
			return withApp(cmd, cfg, func(a *app) error {
				flow, err := a.manager.InitiateAuth(cmd.Context(), provider)
				if err != nil {
					return fmt.Errorf("login failed: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Open this URL to sign in with %s:\n  %s\n", flow.Provider, flow.AuthRedirectURL)
				fmt.Fprintf(out, "State: %s\n", flow.State)
				return nil
			})
		},
	}
	cmd.Flags().String("provider", "", "identity provider, e.g. google or github")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func newCallbackCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "callback",
		Short: "Complete a login with the code and state from the provider redirect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, _ := cmd.Flags().GetString("provider")
			code, _ := cmd.Flags().GetString("code")
			state, _ := cmd.Flags().GetString("state")
			return withApp(cmd, cfg, func(a *app) error {
				if err := a.manager.HandleCallback(cmd.Context(), provider, code, state); err != nil {
					return fmt.Errorf("callback failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Login successful!")
				return nil
			})
		},
	}
	cmd.Flags().String("provider", "", "identity provider used at login")
	cmd.Flags().String("code", "", "authorization code from the redirect")
	cmd.Flags().String("state", "", "state from the redirect")
	_ = cmd.MarkFlagRequired("provider")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func newStatusCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(a *app) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()

				fmt.Fprintf(out, "Backend: %s\n", valueOr(a.api.BaseURL(), "(not configured)"))
				fmt.Fprintf(out, "State: %s\n", a.manager.State(ctx))
				if expiration, ok := a.manager.ExpirationTime(); ok {
					fmt.Fprintf(out, "Expires: %s\n", expiration.Format(time.RFC3339))
				}
				if _, ok := a.manager.RefreshToken(); ok {
					fmt.Fprintln(out, "Refresh token: present")
				}

				identity, err := a.manager.Identity(ctx)
				switch {
				case err == nil:
					fmt.Fprintf(out, "Subject: %s\n", identity.Subject)
					if identity.Email != "" {
						fmt.Fprintf(out, "Email: %s\n", identity.Email)
					}
				case errors.Is(err, session.ErrOpaqueToken):
					fmt.Fprintln(out, "Token: opaque")
				}
				return nil
			})
		},
	}
}

func newVerifyCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [token]",
		Short: "Check whether a token is valid; defaults to the held access token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(a *app) error {
				token, _ := a.manager.AccessToken(cmd.Context())
				if len(args) == 1 {
					token = args[0]
				}
				if !a.manager.VerifyToken(cmd.Context(), token) {
					fmt.Fprintln(cmd.OutOrStdout(), "invalid")
					return errors.New("token is not valid")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "valid")
				return nil
			})
		},
	}
}

func newLogoutCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(a *app) error {
				if err := a.manager.Logout(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}

func newRequestCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request <path>",
		Short: "Send an authenticated request to the backend and print the response",
		Long: `Send a request to the backend with the session's bearer token.

Examples:
  authsession request /api/v1/datasources
  authsession request /api/v1/datasources --method POST --data '{"name":"ds1"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, _ := cmd.Flags().GetString("method")
			data, _ := cmd.Flags().GetString("data")
			return withApp(cmd, cfg, func(a *app) error {
				client := a.manager.AuthenticatedClient()

				var body io.Reader
				if data != "" {
					body = strings.NewReader(data)
				}
				req, err := client.NewRequest(cmd.Context(), strings.ToUpper(method), args[0], body)
				if err != nil {
					return err
				}
				if data != "" {
					req.Header.Set("Content-Type", "application/json")
				}

				resp, err := client.Do(req)
				if err != nil {
					return fmt.Errorf("request failed: %w", err)
				}
				defer resp.Body.Close()

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s\n", resp.Status)
				if _, err := io.Copy(out, io.LimitReader(resp.Body, maxPrintedBody)); err != nil {
					return err
				}
				fmt.Fprintln(out)
				if resp.StatusCode >= http.StatusBadRequest {
					return fmt.Errorf("backend returned %s", resp.Status)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("method", http.MethodGet, "HTTP method")
	cmd.Flags().String("data", "", "JSON request body")
	return cmd
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
