package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/outlivion/portal/core"
)

var (
	deleteConfig bool
	qrFile       string
)

func init() {
	configCmd.Flags().BoolVar(&deleteConfig, "delete", false, "delete the configuration instead of fetching it")
	configCmd.Flags().StringVar(&qrFile, "qr-file", "", "write the QR code payload to this file")

	rootCmd.AddCommand(paymentsCmd, serversCmd, configCmd)
}

var paymentsCmd = &cobra.Command{
	Use:     "payments",
	Aliases: []string{"transactions"},
	Short:   "List payment history",
	Args:    cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		s.nav.SetCurrentPath("/transactions")
		payments, err := s.portal.Account.Payments(cmd.Context())
		if err != nil {
			return err
		}
		if len(payments) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No payments yet")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDATE\tPLAN\tAMOUNT\tSTATUS\t")
		for _, p := range payments {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d %s\t%s\t\n", p.ID, p.CreatedAt.Local().Format("2006-01-02 15:04"), p.Plan, p.Amount, p.Currency, p.Status)
		}
		return w.Flush()
	}),
}

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "List VPN servers and your configurations",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		s.nav.SetCurrentPath(core.DefaultLandingPath)
		servers, err := s.portal.Account.Servers(cmd.Context())
		if err != nil {
			return err
		}
		configs, err := s.portal.Account.UserServers(cmd.Context())
		if err != nil {
			return err
		}
		configured := make(map[string]bool, len(configs))
		for _, c := range configs {
			configured[c.ServerID] = true
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tLOCATION\tLOAD\tSTATUS\tCONFIG\t")
		for _, srv := range servers {
			status := "offline"
			if srv.IsActive {
				status = "online"
			}
			load := "-"
			if srv.Load != nil {
				load = fmt.Sprintf("%d%%", *srv.Load)
			}
			config := ""
			if configured[srv.ID] {
				config = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n", srv.ID, srv.Name, srv.Location, load, status, config)
		}
		return w.Flush()
	}),
}

var configCmd = &cobra.Command{
	Use:   "config <server-id>",
	Short: "Fetch (or delete) the VPN configuration for a server",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		serverID := args[0]
		s.nav.SetCurrentPath("/config/" + serverID)
		out := cmd.OutOrStdout()

		if deleteConfig {
			if err := s.portal.Account.DeleteServerConfig(cmd.Context(), serverID); err != nil {
				return err
			}
			fmt.Fprintf(out, "Configuration for %s deleted\n", serverID)
			return nil
		}

		cfg, err := s.portal.Account.ServerConfig(cmd.Context(), serverID)
		if err != nil {
			return err
		}
		if qrFile != "" && cfg.QRCode != "" {
			if err := os.WriteFile(qrFile, []byte(cfg.QRCode), 0o600); err != nil {
				return fmt.Errorf("write qr code: %w", err)
			}
		}
		fmt.Fprintln(out, cfg.VlessConfig)
		return nil
	}),
}
