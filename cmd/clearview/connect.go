package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/layer-3/clearview/config"
	"github.com/layer-3/clearview/core"
	"github.com/layer-3/clearview/service"
	"github.com/spf13/cobra"
)

func connectCommand() *cobra.Command {
	var expanded bool
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Authenticate once, print balances and disconnect",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.shutdown()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return connectOnce(ctx, cmd.OutOrStdout(), a.auth, a.agg, wait, expanded)
		},
	}
	cmd.Flags().BoolVar(&expanded, "expanded", false, "include the wallet tier")
	cmd.Flags().DurationVar(&wait, "wait", 10*time.Second, "how long to wait for the first balance snapshot")
	return cmd
}

func connectOnce(ctx context.Context, out io.Writer, auth *service.Authenticator, agg *service.Aggregator, wait time.Duration, expanded bool) error {
	defer auth.Disconnect(context.Background())

	if err := auth.ConnectAndAuthenticate(ctx); err != nil {
		st := auth.State()
		fmt.Fprintf(out, "%s: %s\n", st.Status.Label(), st.Error)
		return err
	}

	view := waitForSnapshot(ctx, agg, wait)
	fmt.Fprintf(out, "%s\n", view.Status.Label())
	fmt.Fprintf(out, "Available: %s\n", view.Snapshot.Headline())
	for _, row := range view.Snapshot.Breakdown(expanded) {
		fmt.Fprintf(out, "  %-18s %s\n", row.Label, row.Amount)
	}
	return nil
}

func waitForSnapshot(ctx context.Context, agg *service.Aggregator, wait time.Duration) service.View {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		view := agg.View()
		if view.Snapshot.Known() || view.Status != core.StatusAuthenticated {
			return view
		}
		select {
		case <-ctx.Done():
			return view
		case <-deadline.C:
			return view
		case <-ticker.C:
		}
	}
}
