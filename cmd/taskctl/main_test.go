package main

import "testing"

func TestRootCommandRegistersAllSubcommands(t *testing.T) {
	want := []string{"migrate", "vacuum", "analyze", "checkpoint", "integrity", "repair", "stats", "doctor", "backup"}
	got := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		if !got[name] {
			t.Errorf("expected subcommand %q to be registered", name)
		}
	}
}

func TestBackupCommandRegistersExportAndImport(t *testing.T) {
	names := map[string]bool{}
	for _, c := range backupCmd.Commands() {
		names[c.Name()] = true
	}
	if !names["export"] || !names["import"] {
		t.Fatalf("expected backup export/import subcommands, got %v", names)
	}
}
