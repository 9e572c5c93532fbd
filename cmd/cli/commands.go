package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/dvloznov/taxonomy-bridge/internal/app"
	"github.com/dvloznov/taxonomy-bridge/internal/config"
	"github.com/dvloznov/taxonomy-bridge/internal/domain"
	"github.com/dvloznov/taxonomy-bridge/internal/logger"
	"github.com/dvloznov/taxonomy-bridge/internal/pipeline"
	"github.com/dvloznov/taxonomy-bridge/internal/source"
)

const (
	marketplaceFlag = "marketplace"
	fileFlag        = "file"
	autoMapFlag     = "auto-map"
	kindFlag        = "kind"
	idFlag          = "id"
	createTableFlag = "create-table"
)

// withApp loads the configuration and the spreadsheet, then runs fn.
func withApp(cmd *cobra.Command, load bool, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Out: os.Stderr})
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if load {
		if err := a.Load(ctx); err != nil {
			return err
		}
	}
	return fn(ctx, a)
}

func newBootstrapCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create missing sheets and write their headers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, false, func(ctx context.Context, a *app.App) error {
				created, err := a.Bootstrap(ctx)
				if err != nil {
					return err
				}
				if len(created) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "All sheets already present")
					return nil
				}
				for _, name := range created {
					fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", name)
				}
				return nil
			})
		},
	}
}

var importFlags = map[string]cobraflags.Flag{
	marketplaceFlag: &cobraflags.StringFlag{
		Name:  marketplaceFlag,
		Usage: "Marketplace id the file belongs to (required)",
	},
	fileFlag: &cobraflags.StringFlag{
		Name:  fileFlag,
		Usage: "Local path or gs:// URI of the export file (required)",
	},
	autoMapFlag: &cobraflags.StringFlag{
		Name:  autoMapFlag,
		Value: "false",
		Usage: "Map new records to canonical records of the same name",
	},
}

func newImportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a marketplace export file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			marketplaceID := importFlags[marketplaceFlag].GetString()
			file := importFlags[fileFlag].GetString()
			if marketplaceID == "" || file == "" {
				return fmt.Errorf("--%s and --%s are required", marketplaceFlag, fileFlag)
			}
			return withApp(cmd, true, func(ctx context.Context, a *app.App) error {
				var fetcher source.Fetcher = &source.Local{}
				if strings.HasPrefix(file, "gs://") {
					fetcher = a.Fetcher
				}
				data, err := fetcher.Fetch(ctx, file)
				if err != nil {
					return err
				}
				summary, err := a.Importer.Import(ctx, pipeline.Request{
					MarketplaceID: marketplaceID,
					Filename:      source.Filename(file),
					Data:          data,
					AutoMap:       domain.Truthy(importFlags[autoMapFlag].GetString()),
				})
				if summary != nil {
					printSummary(cmd, summary)
				}
				return err
			})
		},
	}
	cobraflags.RegisterMap(cmd, importFlags)
	return cmd
}

func printSummary(cmd *cobra.Command, s *pipeline.Summary) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "adapter\t%s\n", s.Adapter)
	if s.Sheet != "" {
		fmt.Fprintf(w, "sheet\t%s\n", s.Sheet)
	}
	for _, kind := range domain.Kinds {
		fmt.Fprintf(w, "%s\tcreated %d\trejected %d\n", kind, s.Created[kind], s.Rejected[kind])
		if res, ok := s.AutoMap[kind]; ok {
			fmt.Fprintf(w, "\tauto-mapped %d\tnot found %d\n", len(res.Mapped), len(res.NotFound))
		}
	}
	fmt.Fprintf(w, "merged\t%d\n", s.Merged)
	fmt.Fprintf(w, "skipped\t%d\n", s.Skipped)
	fmt.Fprintf(w, "duplicates\t%d\n", s.Duplicates)
	w.Flush()
}

var autoMapFlags = map[string]cobraflags.Flag{
	kindFlag: &cobraflags.StringFlag{
		Name:  kindFlag,
		Usage: "category, characteristic or option; all kinds when empty",
	},
}

func newAutoMapCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "automap",
		Short: "Map unmapped marketplace records to canonical records of the same name",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kinds := domain.Kinds
			if k := autoMapFlags[kindFlag].GetString(); k != "" {
				kind, err := domain.ParseKind(k)
				if err != nil {
					return err
				}
				kinds = []domain.Kind{kind}
			}
			return withApp(cmd, true, func(ctx context.Context, a *app.App) error {
				for _, kind := range kinds {
					var ids []string
					for _, ent := range a.Repo.AllMirrored(kind) {
						if !a.Engine.IsMapped(kind, ent.ID) {
							ids = append(ids, ent.ID)
						}
					}
					res := a.Engine.AutoMap(ctx, kind, ids)
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d unmapped, %d mapped, %d not found, %d failed\n",
						kind, len(ids), len(res.Mapped), len(res.NotFound), len(res.Failed))
				}
				return nil
			})
		},
	}
	cobraflags.RegisterMap(cmd, autoMapFlags)
	return cmd
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show mapping coverage per marketplace",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app.App) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "MARKETPLACE\tKIND\tMAPPED\tTOTAL\tCOVERAGE")
				for _, s := range a.Exporter.Stats() {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.1f%%\n", s.MarketplaceName, s.Kind, s.Mapped, s.Total, s.Percent())
				}
				return w.Flush()
			})
		},
	}
}

var deleteMarketplaceFlags = map[string]cobraflags.Flag{
	idFlag: &cobraflags.StringFlag{
		Name:  idFlag,
		Usage: "Marketplace id to delete with its mirrored records and mappings (required)",
	},
}

func newDeleteMarketplaceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete-marketplace",
		Short: "Delete a marketplace and everything imported for it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id := deleteMarketplaceFlags[idFlag].GetString()
			if id == "" {
				return fmt.Errorf("--%s is required", idFlag)
			}
			return withApp(cmd, true, func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.DeleteMarketplace(ctx, id)
				if res != nil {
					for _, kind := range domain.Kinds {
						fmt.Fprintf(cmd.OutOrStdout(), "%s: %d mirrored, %d mappings removed\n", kind, res.Mirrored[kind], res.Mappings[kind])
					}
					for _, f := range res.Failed {
						fmt.Fprintf(cmd.ErrOrStderr(), "failed %s: %s\n", f.ID, f.Error)
					}
				}
				return err
			})
		},
	}
	cobraflags.RegisterMap(cmd, deleteMarketplaceFlags)
	return cmd
}

var exportFlags = map[string]cobraflags.Flag{
	createTableFlag: &cobraflags.StringFlag{
		Name:  createTableFlag,
		Value: "false",
		Usage: "Create the BigQuery table first when it does not exist",
	},
}

func newExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a mapping coverage snapshot to BigQuery",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, true, func(ctx context.Context, a *app.App) error {
				if a.ExportTable != nil && domain.Truthy(exportFlags[createTableFlag].GetString()) {
					if err := a.ExportTable.EnsureTable(ctx); err != nil {
						return err
					}
				}
				res, err := a.Exporter.Export(ctx)
				if res != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s: %d rows, %d mapped\n", res.SnapshotID, res.Rows, res.Mapped)
				}
				return err
			})
		},
	}
	cobraflags.RegisterMap(cmd, exportFlags)
	return cmd
}
