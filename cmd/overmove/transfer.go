package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/langchou/overmove/internal/config"
	"github.com/langchou/overmove/internal/migrate"
)

func exportCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all travels, moves and geolocations as one document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tracker, err := openTracker(cfg, logger)
			if err != nil {
				return err
			}

			return withOutput(cmd.OutOrStdout(), out, tracker.Export)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to file instead of stdout")
	return cmd
}

func importCommand(cfg *config.Config, logger *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Replace all data with an exported document (0.1.0 documents are migrated)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			tracker, err := openTracker(cfg, logger)
			if err != nil {
				return err
			}

			report, err := tracker.Import(cmd.Context(), data)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %s (source version %s, %d records dropped)\n",
				args[0], report.SourceVersion, report.Dropped())
			return nil
		},
	}
}

func migrateCommand(logger *zap.Logger) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "migrate IN",
		Short: "Convert an exported document to the current schema without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			doc, report, err := migrate.Decode(data)
			if err != nil {
				return err
			}

			for _, m := range report.OrphanMoves {
				logger.Warn("Dropped move without owning travel", zap.String("move_id", m.ID))
			}
			for _, g := range report.OrphanGeolocations {
				logger.Warn("Dropped geolocation outside every move", zap.Time("timestamp", g.Timestamp))
			}

			return withOutput(cmd.OutOrStdout(), out, func(w io.Writer) error {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			})
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Write to file instead of stdout")
	return cmd
}

// withOutput path 为空时写入 stdout，否则写入文件
func withOutput(stdout io.Writer, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
