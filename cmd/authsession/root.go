package main

import (
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/spf13/cobra"
)

var BuildVersion = "dev"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "authsession",
		Short:         "Client-side auth session manager",
		Long:          "Log in through the backend auth API, keep the session on disk and make authenticated requests.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cfg := config.New()
	rootCmd.AddCommand(
		newServeCmd(cfg),
		newLoginCmd(cfg),
		newCallbackCmd(cfg),
		newStatusCmd(cfg),
		newVerifyCmd(cfg),
		newLogoutCmd(cfg),
		newRequestCmd(cfg),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				cmd.Printf("%s\n", BuildVersion)
			},
		},
	)
	return rootCmd
}

// withApp builds the app for one command and closes it afterwards
func withApp(cmd *cobra.Command, cfg config.Config, fn func(a *app) error) error {
	a, err := newApp(cmd.Context(), cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
