package main

import (
	"github.com/spf13/cobra"
)

// newRegisterCmd builds the device registration command. The one-time code
// comes from my.remarkable.com/device/desktop/connect and is valid for a few
// minutes only.
func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <one-time-code>",
		Short: "Register this device with the reMarkable cloud",
		Long: `Register exchanges a one-time code for a long-lived device token and
persists it. Obtain the code from https://my.remarkable.com/device/desktop/connect.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := buildLogger()
			session := newSession(logger)

			if _, err := session.Register(cmd.Context(), args[0]); err != nil {
				return err
			}

			// The first user-token refresh persists the credential pair.
			if _, err := session.EnsureAuthenticated(cmd.Context()); err != nil {
				return err
			}

			statusf("Device registered. Credentials saved to %s\n", credentialPath())

			return nil
		},
	}
}
