package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply any pending schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		fmt.Println("schema is up to date")
		return nil
	},
}

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Reclaim free pages and defragment the database file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Vacuum(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("vacuum complete")
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Refresh query planner statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Analyze(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("analyze complete")
		return nil
	},
}

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Force a WAL checkpoint",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Checkpoint(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("checkpoint complete")
		return nil
	},
}

var integrityCmd = &cobra.Command{
	Use:   "integrity",
	Short: "Run the database integrity check",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.VerifyIntegrity(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("integrity check passed")
		return nil
	},
}

var repairDryRun bool

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Remove dangling dependency edges and clear dangling parentPath references",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		report, err := st.RepairRelationships(cmd.Context(), repairDryRun)
		if err != nil {
			return err
		}
		verb := "fixed"
		if repairDryRun {
			verb = "would fix"
		}
		fmt.Printf("%s %d issue(s)\n", verb, report.Fixed)
		for _, issue := range report.Issues {
			fmt.Println(" -", issue)
		}
		return nil
	},
}

func init() {
	repairCmd.Flags().BoolVar(&repairDryRun, "dry-run", false, "report issues without fixing them")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print row counts and storage health counters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.GetStats(cmd.Context())
		if err != nil {
			return err
		}
		metrics, err := st.GetMetrics(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("tasks: %d, knowledge: %d\n", stats.TaskCount, stats.KnowledgeCount)
		for status, n := range stats.ByStatus {
			fmt.Printf("  status %s: %d\n", status, n)
		}
		fmt.Printf("wal size: %d bytes, pages: %d, freelist: %d, schema version: %d\n",
			metrics.WALSizeBytes, metrics.PageCount, metrics.FreelistCount, metrics.SchemaVersion)
		return nil
	},
}
