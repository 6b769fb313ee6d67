// Command upsellctl is the operator CLI for the upsell checkout: CPF checks,
// PIX charges against the configured gateway and attribution fragments.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/boddenberg/upsell-checkout-bfa/internal/config"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "upsellctl",
		Short:         "Operator tools for the upsell checkout BFA",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = config.LoadDotEnv(".env")
		},
	}

	rootCmd.AddCommand(cpfCmd())
	rootCmd.AddCommand(pixCmd())
	rootCmd.AddCommand(utmCmd())

	return rootCmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
