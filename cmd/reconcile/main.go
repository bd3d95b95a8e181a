package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seguralta/portal/internal/config"
	"github.com/seguralta/portal/internal/database"
	"github.com/seguralta/portal/internal/identity"
	"github.com/seguralta/portal/internal/reconcile"
	"github.com/seguralta/portal/internal/users"
	"github.com/seguralta/portal/pkg/logger"
)

var (
	fix     bool
	limit   int
	userIDs []string
	asJSON  bool
	rootCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Compare provider onboarding metadata with the user store",
		Long: "Lists stored users, reads each user's public metadata from the identity\n" +
			"provider and reports records whose onboarding state disagrees. With --fix,\n" +
			"drift is repaired in both directions: store records behind the provider are\n" +
			"patched from its metadata, and provider metadata behind a completed store\n" +
			"record is rewritten from that record.",
		SilenceUsage: true,
		RunE:         run,
	}
)

func init() {
	rootCmd.Flags().BoolVar(&fix, "fix", false, "repair drift in whichever side is behind")
	rootCmd.Flags().IntVar(&limit, "limit", 0, "check at most this many users (0 = all)")
	rootCmd.Flags().StringSliceVar(&userIDs, "user", nil, "check only these external ids (repeatable, ignores --limit)")
	rootCmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
}

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.SetOutput(os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.MongoDB.URI == "" {
		return fmt.Errorf("MONGODB_URI is required")
	}
	client, err := database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 3, func(attempt int, err error) {
		logger.Warnf("attempt %d/3: failed to connect to MongoDB: %v", attempt, err)
	})
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	svc := users.NewService(users.NewMongoUserRepository(client.Database(cfg.MongoDB.Database).Collection("users")))
	idp, err := identity.NewStack(ctx, cfg.Identity)
	if err != nil {
		return err
	}

	rep, err := reconcile.New(svc, idp.Provider).Run(ctx, reconcile.Options{Fix: fix, Limit: limit, UserIDs: userIDs})
	if err != nil {
		return err
	}
	return printReport(cmd.OutOrStdout(), rep, asJSON)
}

func printReport(w io.Writer, rep reconcile.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	fmt.Fprintf(w, "checked=%d in_sync=%d fixed=%d errors=%d\n", rep.Checked, rep.InSync, rep.Fixed, rep.Errors)
	if len(rep.Drifts) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXTERNAL ID\tKIND\tSTORE\tPROVIDER\tFIXED\tERROR")
	for _, d := range rep.Drifts {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%v\t%v\t%s\n", d.ExternalID, d.Kind, d.StoreCompleted, d.ClaimCompleted, d.Fixed, d.Error)
	}
	return tw.Flush()
}
