package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// doctorCmd mirrors the teacher's cmd/bd doctor subsystem at a scope
// appropriate to the core: a read-only health summary over
// VerifyIntegrity, GetStats, and a dry-run relationship repair, with no --fix flag of
// its own (use `taskctl repair` for that).
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Summarize storage health: stats, integrity, and relationship drift",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		fmt.Println("integrity:")
		if err := st.VerifyIntegrity(cmd.Context()); err != nil {
			fmt.Println("  FAIL:", err)
		} else {
			fmt.Println("  OK")
		}

		stats, err := st.GetStats(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("rows: %d tasks, %d knowledge\n", stats.TaskCount, stats.KnowledgeCount)

		report, err := st.RepairRelationships(cmd.Context(), true)
		if err != nil {
			return err
		}
		if len(report.Issues) == 0 {
			fmt.Println("relationships: OK")
		} else {
			fmt.Printf("relationships: %d issue(s) found (run `taskctl repair` to fix)\n", len(report.Issues))
			for _, issue := range report.Issues {
				fmt.Println(" -", issue)
			}
		}
		return nil
	},
}
