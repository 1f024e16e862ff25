package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/TabarBaptiste/masseuse/internal/routes"
	"github.com/TabarBaptiste/masseuse/internal/slothold"
	ucbooking "github.com/TabarBaptiste/masseuse/internal/usecase/booking"
)

func cleanupPendingCmd() *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup-pending",
		Short: "Cancel bookings whose deposit checkout was abandoned",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if maxAge <= 0 {
				maxAge = time.Duration(a.cfg.Booking.PendingPaymentMaxAgeMinutes) * time.Minute
			}

			deps := ucbooking.Deps{
				Repo:     a.repo,
				Clock:    a.clock,
				Defaults: routes.SitePolicy(a.cfg),
				Audit:    a.audit,
				Log:      a.log,
			}
			if a.rdb != nil {
				deps.Holds = slothold.New(a.rdb)
			}

			n, err := ucbooking.NewCleanupPendingPayment(deps, maxAge).Execute(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d booking(s) cancelled\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Age after which a PENDING_PAYMENT booking is abandoned (default from config)")
	return cmd
}
