package main

import (
	"context"
	"net/http"

	"github.com/boddenberg/upsell-checkout-bfa/internal/config"
	"github.com/boddenberg/upsell-checkout-bfa/internal/document"
	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/client"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/observability"
	"github.com/boddenberg/upsell-checkout-bfa/internal/infra/resilience"

	"github.com/spf13/cobra"
)

func pixCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pix",
		Short: "Create and poll PIX charges on the configured gateway",
	}
	cmd.AddCommand(pixCreateCmd())
	cmd.AddCommand(pixStatusCmd())
	return cmd
}

func newGateway(cfg *config.Config) *client.GatewayClient {
	return client.NewGatewayClient(
		&http.Client{Timeout: cfg.HTTPTimeout},
		cfg.GatewayURL,
		cfg.GatewaySecret,
		resilience.NewCircuitBreaker("payment-gateway", client.IsGatewaySuccess),
		client.StaticReachability(true),
		observability.NewLogger(cfg.LogLevel),
	)
}

func pixCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a PIX charge for the configured offer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			cpf, _ := cmd.Flags().GetString("cpf")
			phone, _ := cmd.Flags().GetString("phone")
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			utm, _ := cmd.Flags().GetString("utm")
			if email == "" {
				email = client.PlaceholderEmail(cpf)
			}

			req := &domain.PaymentIntentRequest{
				Name:             name,
				Email:            email,
				CPF:              document.Digits(cpf),
				Phone:            document.Digits(phone),
				PaymentMethod:    domain.PaymentMethodPix,
				AmountMinorUnits: cfg.OfferAmountCents,
				Traceable:        true,
				UTMQuery:         utm,
				Items: []domain.PaymentItem{{
					UnitPrice: cfg.OfferAmountCents,
					Title:     cfg.OfferTitle,
					Quantity:  1,
				}},
			}

			res, err := newGateway(cfg).CreatePurchase(context.Background(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().String("cpf", "", "Customer CPF")
	cmd.Flags().String("phone", "", "Customer phone")
	cmd.Flags().String("name", domain.PlaceholderName, "Customer name")
	cmd.Flags().String("email", "", "Customer email (defaults to the placeholder address)")
	cmd.Flags().String("utm", "", "Attribution fragment, e.g. &utm_source=fb")
	_ = cmd.MarkFlagRequired("cpf")
	_ = cmd.MarkFlagRequired("phone")

	return cmd
}

func pixStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [id]",
		Short: "Poll a charge status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			status := newGateway(cfg).GetStatus(context.Background(), args[0])
			return printJSON(cmd.OutOrStdout(), domain.PaymentStatusResponse{
				ID:     args[0],
				Status: status,
				Paid:   domain.PaidStatuses[status],
			})
		},
	}
}
