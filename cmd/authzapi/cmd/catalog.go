package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/J41RO/MeStore-sub006/internal/db/bunx"
	"github.com/J41RO/MeStore-sub006/internal/repository"
	"github.com/J41RO/MeStore-sub006/internal/services/catalog"
)

var (
	catalogBootstrapFile string
	catalogBootstrapDir  string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Permission catalog commands",
	Long:  `Commands for loading and inspecting the permission catalog.`,
}

var catalogBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Load permission definitions into the catalog",
	Long: `Validates permission definition files and upserts them into the catalog.
Definitions are applied atomically per file; rows already matching a
definition are left untouched. Provide exactly one of --file or --dir.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (catalogBootstrapFile == "") == (catalogBootstrapDir == "") {
			return fmt.Errorf("provide exactly one of --file or --dir")
		}

		ctx := cmd.Context()

		var definitions []catalog.Definition
		if catalogBootstrapFile != "" {
			defs, err := catalog.ParseFile(catalogBootstrapFile)
			if err != nil {
				return err
			}
			definitions = defs
		} else {
			entries, err := os.ReadDir(catalogBootstrapDir)
			if err != nil {
				return fmt.Errorf("failed to read catalog directory: %w", err)
			}
			for _, entry := range entries {
				if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
					continue
				}
				path := filepath.Join(catalogBootstrapDir, entry.Name())
				defs, err := catalog.ParseFile(path)
				if err != nil {
					return err
				}
				definitions = append(definitions, defs...)
			}
			if len(definitions) == 0 {
				return fmt.Errorf("no definition files found in %s", catalogBootstrapDir)
			}
		}

		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		// The service logs the created/updated/unchanged summary and the
		// loader warns per discrepancy.
		if _, err := eng.svc.BootstrapCatalog(ctx, definitions); err != nil {
			return fmt.Errorf("catalog bootstrap failed: %w", err)
		}
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries",
	Long:  `Lists every permission in the catalog with its clearance, risk level, and flags.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := bunx.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		permissions, err := repository.NewBunPermissionRepository(db).List(ctx)
		if err != nil {
			return err
		}

		if len(permissions) == 0 {
			fmt.Println("No permissions found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tCLEARANCE\tRISK\tFLAGS\tDESCRIPTION")
		for _, p := range permissions {
			var flags []string
			if p.Inheritable {
				flags = append(flags, "inheritable")
			}
			if p.Delegatable {
				flags = append(flags, "delegatable")
			}
			if p.RequiresMFA {
				flags = append(flags, "mfa")
			}
			if p.RequiresApproval {
				flags = append(flags, "approval")
			}
			if !p.Conditions.Empty() {
				flags = append(flags, "conditional")
			}
			flagCol := "-"
			if len(flags) > 0 {
				flagCol = strings.Join(flags, ",")
			}
			_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
				p.Name,
				p.RequiredClearance,
				p.RiskLevel,
				flagCol,
				p.Description,
			)
		}
		_ = w.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogBootstrapCmd)
	catalogCmd.AddCommand(catalogListCmd)

	catalogBootstrapCmd.Flags().StringVar(&catalogBootstrapFile, "file", "", "Path to a single definition file")
	catalogBootstrapCmd.Flags().StringVar(&catalogBootstrapDir, "dir", "", "Directory of definition files (*.json)")
}
