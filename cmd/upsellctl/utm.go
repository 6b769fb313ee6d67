package main

import (
	"fmt"
	"net/url"

	"github.com/boddenberg/upsell-checkout-bfa/internal/tracking"

	"github.com/spf13/cobra"
)

func utmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "utm",
		Short: "Inspect attribution parameters",
	}
	cmd.AddCommand(utmQueryCmd())
	return cmd
}

func utmQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [url]",
		Short: "Print the attribution fragment carried by a page URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("parse url: %w", err)
			}
			params := tracking.ExtractParams(u.Query())

			if base, _ := cmd.Flags().GetString("append"); base != "" {
				fmt.Fprintln(cmd.OutOrStdout(), tracking.AppendToURL(base, params))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), tracking.BuildQuery(params))
			return nil
		},
	}

	cmd.Flags().StringP("append", "a", "", "Append the fragment to this URL instead")

	return cmd
}
