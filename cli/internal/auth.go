package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
		Long:  `Manage authentication for the MakeReady CLI`,
	}

	cmd.AddCommand(newAuthLoginCommand())
	cmd.AddCommand(newAuthLogoutCommand())
	cmd.AddCommand(newAuthStatusCommand())
	cmd.AddCommand(newAuthCookieCommand())

	return cmd
}

func newAuthLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login to the MakeReady server",
		Long: `Authenticate with the MakeReady server through Google.

Opens a browser for the Google consent screen; the CLI receives a one-time
code on a loopback callback and exchanges it for session credentials.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cliCtx, err := config.GetCurrentContext()
			if err != nil {
				return err
			}

			flow := NewLoginFlow(cliCtx.Server.URL, cliCtx.CallbackPort())
			creds, err := flow.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			if err := SaveCredentials(creds); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}

			fmt.Println("\n✓ Successfully authenticated!")
			if creds.Email != "" {
				fmt.Printf("  Logged in as: %s\n", creds.Email)
			}
			return nil
		},
	}
}

func newAuthLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout from the MakeReady server",
		Long:  `Destroy the server-side session and remove stored credentials`,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := LoadCredentials()
			if err != nil {
				return fmt.Errorf("not logged in: %w", err)
			}

			// Best effort server-side logout; local credentials are removed
			// either way
			if config, err := LoadConfig(); err == nil {
				if serverURL, err := config.ServerURL(); err == nil {
					client := NewAPIClient(serverURL, creds.SessionCookie)
					if err := client.Logout(context.Background()); err != nil {
						fmt.Printf("Warning: server-side logout failed: %v\n", err)
					}
				}
			}

			if err := RemoveCredentials(); err != nil {
				return fmt.Errorf("failed to remove credentials: %w", err)
			}

			fmt.Println("✓ Successfully logged out")
			return nil
		},
	}
}

func newAuthStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := LoadCredentials()
			if err != nil {
				fmt.Println("Not logged in")
				return nil
			}

			config, err := LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			serverURL, err := config.ServerURL()
			if err != nil {
				return err
			}

			// Validate the session against the server
			client := NewAPIClient(serverURL, creds.SessionCookie)
			user, err := client.Me(cmd.Context())
			if err != nil {
				if errors.Is(err, ErrUnauthenticated) {
					fmt.Println("Session expired or revoked - run 'makeready auth login'")
					_ = RemoveCredentials()
					return nil
				}
				return fmt.Errorf("failed to check session: %w", err)
			}

			fmt.Printf("Logged in as: %s\n", user.Email)
			fmt.Printf("Name: %s\n", user.Name)
			fmt.Printf("User ID: %s\n", user.ID)
			return nil
		},
	}
}

func newAuthCookieCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cookie",
		Short: "Display the current session cookie value",
		Long:  `Print the signed session cookie, for use with curl or other HTTP tools`,
		RunE: func(cmd *cobra.Command, args []string) error {
			creds, err := LoadCredentials()
			if err != nil {
				return fmt.Errorf("not logged in: %w", err)
			}

			fmt.Println(creds.SessionCookie)
			return nil
		},
	}
}
