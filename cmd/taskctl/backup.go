package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskcore/taskcore/internal/backup"
	"github.com/taskcore/taskcore/internal/eventbus"
	"github.com/taskcore/taskcore/internal/indexcoord"
	"github.com/taskcore/taskcore/internal/txn"
	"github.com/taskcore/taskcore/internal/types"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Export or import a full snapshot of the store (component C12)",
}

var backupOutPath string

var backupExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a YAML snapshot of all tasks and knowledge",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		out := os.Stdout
		if backupOutPath != "" {
			f, err := os.Create(backupOutPath)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		bus := eventbus.New(nil)
		b := backup.New(st, txn.New(bus), indexcoord.New(nil), types.SystemClock{}, "taskctl-export")
		if err := b.Export(cmd.Context(), out); err != nil {
			return err
		}
		if backupOutPath != "" {
			fmt.Fprintln(os.Stderr, "wrote", backupOutPath)
		}
		return nil
	},
}

var backupInPath string

var backupImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Restore a YAML snapshot written by `backup export`",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if backupInPath == "" {
			return fmt.Errorf("--file is required")
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		f, err := os.Open(backupInPath)
		if err != nil {
			return err
		}
		defer f.Close()

		bus := eventbus.New(nil)
		b := backup.New(st, txn.New(bus), indexcoord.New(nil), types.SystemClock{}, "taskctl-import")
		if err := b.Import(cmd.Context(), f); err != nil {
			return err
		}
		fmt.Println("import complete")
		return nil
	},
}

func init() {
	backupExportCmd.Flags().StringVar(&backupOutPath, "out", "", "output file (defaults to stdout)")
	backupImportCmd.Flags().StringVar(&backupInPath, "file", "", "snapshot file to import (required)")
	backupCmd.AddCommand(backupExportCmd)
	backupCmd.AddCommand(backupImportCmd)
}
