// Command taskctl is the maintenance CLI for the task/knowledge core:
// migrate, vacuum, integrity check, relationship repair, and
// backup/restore, mirroring the shape of the teacher's own `bd admin`/
// `bd doctor` command groups but scoped to what the core itself owns.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var baseDir string

var rootCmd = &cobra.Command{
	Use:   "taskctl",
	Short: "Maintenance CLI for the taskcore storage engine",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseDir, "base-dir", "", "storage base directory (defaults to the configured value)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(vacuumCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(integrityCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(backupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
