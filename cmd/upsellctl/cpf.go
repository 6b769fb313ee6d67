package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/boddenberg/upsell-checkout-bfa/internal/config"
	"github.com/boddenberg/upsell-checkout-bfa/internal/document"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/client"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/resilience"

	"github.com/spf13/cobra"
)

func cpfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cpf",
		Short: "Validate, generate and look up CPFs",
	}
	cmd.AddCommand(cpfValidateCmd())
	cmd.AddCommand(cpfGenerateCmd())
	cmd.AddCommand(cpfLookupCmd())
	return cmd
}

func cpfValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [cpf]",
		Short: "Check a CPF's check digits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !document.ValidateCPF(args[0]) {
				return fmt.Errorf("%s: CPF inválido", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: válido\n", document.FormatCPF(args[0]))
			return nil
		},
	}
}

func cpfGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate valid CPFs for testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			formatted, _ := cmd.Flags().GetBool("formatted")

			for i := 0; i < count; i++ {
				cpf, err := randomCPF()
				if err != nil {
					return err
				}
				if formatted {
					cpf = document.FormatCPF(cpf)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cpf)
			}
			return nil
		},
	}

	cmd.Flags().IntP("count", "n", 1, "How many CPFs to generate")
	cmd.Flags().BoolP("formatted", "f", false, "Print as 000.000.000-00")

	return cmd
}

func randomCPF() (string, error) {
	for {
		var b strings.Builder
		for i := 0; i < 9; i++ {
			b.WriteByte(byte('0' + rand.IntN(10)))
		}
		cpf, err := document.CompleteCPF(b.String())
		if err != nil {
			return "", err
		}
		if document.ValidateCPF(cpf) {
			return cpf, nil
		}
	}
}

func cpfLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup [cpf]",
		Short: "Resolve a CPF against the configured lookup service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			lookup := client.NewCPFLookupClient(
				&http.Client{Timeout: cfg.HTTPTimeout},
				cfg.CPFLookupURL,
				resilience.NewCircuitBreaker("cpf-lookup", nil),
			)

			res := lookup.Lookup(context.Background(), args[0])
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.IsValid {
				return fmt.Errorf("%s", res.Error)
			}
			return nil
		},
	}
}
