//
//
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AnonymousTalent/opsradar/internal/config"
	"github.com/AnonymousTalent/opsradar/internal/ledger"
	"github.com/AnonymousTalent/opsradar/internal/logging"
	"github.com/AnonymousTalent/opsradar/internal/telemetry"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "opsradar",
		Short:         "Live operations telemetry broadcaster",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default: search ./opsradar.yaml, ./config, /etc/opsradar)")

	root.AddCommand(
		newServeCmd(opts),
		newSnapshotCmd(opts),
		newDispatchCmd(opts),
		newVersionCmd(),
	)
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the telemetry server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	var modules string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Generate one telemetry frame and print it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			names := cfg.Telemetry.Modules
			if modules != "" {
				names = strings.Split(modules, ",")
			}

			log, closer, err := logging.New(cfg.Log, cmd.ErrOrStderr(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closer.Close()

			src, err := newSource(cfg, log)
			if err != nil {
				return err
			}
			defer src.Close()

			snap, err := telemetry.NewGenerator(src, nil).Generate(cmd.Context(), names)
			if err != nil {
				return fmt.Errorf("generate snapshot: %w", err)
			}
			return writeFrame(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().StringVar(&modules, "modules", "", "comma separated module names, overrides telemetry.modules")
	return cmd
}

func writeFrame(w io.Writer, snap telemetry.Snapshot) error {
	frame, err := telemetry.EncodeFrame(snap)
	if err != nil {
		return err
	}
	var out json.RawMessage = frame
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func newDispatchCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Inspect the dispatch ledger",
		Long: `Inspect the bbolt dispatch ledger at ledger.path.

A running server holds the ledger file exclusively, so these commands only
work while the server is stopped.`,
	}

	var (
		limit  int
		asJSON bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent dispatch decisions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openLedgerForRead(opts.configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if records == nil {
					records = []ledger.Record{}
				}
				return enc.Encode(records)
			}
			return writeRecords(cmd.OutOrStdout(), records)
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "maximum records, 0 for all")
	list.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	show := &cobra.Command{
		Use:   "show ORDER_ID",
		Short: "Show the latest decision for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openLedgerForRead(opts.configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.Latest(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("order %s: %w", args[0], err)
			}
			return writeRecords(cmd.OutOrStdout(), []ledger.Record{rec})
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func openLedgerForRead(configPath string) (ledger.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Ledger.Path == "" {
		return nil, fmt.Errorf("ledger.path is not set; the in-memory ledger is only visible to a running server")
	}
	if _, err := os.Stat(cfg.Ledger.Path); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	store, err := ledger.OpenBoltReadOnly(cfg.Ledger.Path)
	if errors.Is(err, ledger.ErrLocked) {
		return nil, fmt.Errorf("%w; stop the server to read it", err)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

func writeRecords(w io.Writer, records []ledger.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tORDER\tRIDER\tSCORE\tRESULT")
	for _, r := range records {
		result := "assigned"
		if !r.Success {
			result = "unassigned"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%s\n",
			r.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), r.OrderID, riderLabel(r), r.Score, result)
	}
	return tw.Flush()
}

func riderLabel(r ledger.Record) string {
	switch {
	case r.RiderName != "" && r.RiderID != "":
		return r.RiderName + " (" + r.RiderID + ")"
	case r.RiderID != "":
		return r.RiderID
	default:
		return "-"
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "opsradar", version)
		},
	}
}
