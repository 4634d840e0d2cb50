package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/matheus3301/wppgw/internal/api"
	"github.com/matheus3301/wppgw/internal/config"
	"github.com/matheus3301/wppgw/internal/model"
	"github.com/matheus3301/wppgw/internal/paths"
)

var (
	qrPNGPath string
	forceInit bool
)

var connectCmd = &cobra.Command{
	Use:   "connect <tenant>",
	Short: "Provision the tenant's instance and start pairing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			sess, err := c.Connect(ctx, args[0])
			if err != nil {
				return err
			}
			return printSession(cmd, sess, true)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <tenant>",
	Short: "Show the tenant's session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			sess, png, err := c.Session(ctx, args[0])
			if err != nil {
				return err
			}
			if qrPNGPath != "" && len(png) > 0 {
				if err := os.WriteFile(qrPNGPath, png, 0600); err != nil {
					return fmt.Errorf("write qr png: %w", err)
				}
			}
			return printSession(cmd, sess, true)
		})
	},
}

var contactsCmd = &cobra.Command{
	Use:   "contacts <tenant>",
	Short: "List the tenant's contacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			contacts, err := c.Contacts(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(cmd.OutOrStdout(), contacts)
			}
			renderContacts(cmd.OutOrStdout(), contacts)
			return nil
		})
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <tenant> <peer>",
	Short: "Show the conversation with a peer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			msgs, err := c.Messages(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(cmd.OutOrStdout(), msgs)
			}
			renderMessages(cmd.OutOrStdout(), msgs)
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <tenant> <peer> <text>",
	Short: "Send a text message",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			res, err := c.Send(ctx, args[0], args[1], args[2])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("sent"), dimStyle.Render(res.ID))
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout <tenant>",
	Short: "Log the tenant out of the gateway",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			sess, err := c.Logout(ctx, args[0])
			if err != nil {
				return err
			}
			return printSession(cmd, sess, false)
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <tenant>",
	Short: "Stop polling one tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			if err := c.StopTenant(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", okStyle.Render("stopped"), args[0])
			return nil
		})
	},
}

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "List tenants known to the daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *api.Client) error {
			list, err := c.Tenants(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(cmd.OutOrStdout(), list)
			}
			renderTenants(cmd.OutOrStdout(), list)
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch <tenant>",
	Short: "Stream session events until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		socket, err := resolveSocket()
		if err != nil {
			return err
		}
		c, err := api.Dial(socket)
		if err != nil {
			return fmt.Errorf("cannot connect to daemon: %w", err)
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		out := cmd.OutOrStdout()
		err = c.Watch(ctx, args[0], func(evt api.WatchEvent) error {
			if jsonOutput {
				return outputJSON(out, evt)
			}
			renderEvent(out, evt)
			return nil
		})
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a default config file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := paths.ResolveConfig(configFlag)
		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("%s exists (use --force to overwrite)", path)
		}
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func printSession(cmd *cobra.Command, sess model.Session, showQR bool) error {
	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), sess)
	}
	renderSession(cmd.OutOrStdout(), sess, showQR)
	return nil
}

func init() {
	statusCmd.Flags().StringVar(&qrPNGPath, "qr-png", "", "also write the pending QR as a PNG file")
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")

	rootCmd.AddCommand(
		connectCmd,
		statusCmd,
		contactsCmd,
		messagesCmd,
		sendCmd,
		logoutCmd,
		stopCmd,
		tenantsCmd,
		watchCmd,
		configInitCmd,
	)
}
