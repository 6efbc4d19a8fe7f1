package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"deployhook/internal/history"
)

func TestFormatCounts(t *testing.T) {
	got := formatCounts(map[string]int{
		history.StatusStarted:  3,
		history.StatusRejected: 1,
		history.StatusSkipped:  2,
	})
	want := "total 6: rejected=1 skipped=2 started=3"
	if got != want {
		t.Errorf("formatCounts() = %q, want %q", got, want)
	}

	if got := formatCounts(map[string]int{}); got != "total 0:" {
		t.Errorf("formatCounts(empty) = %q", got)
	}
}

func TestPrintRecords(t *testing.T) {
	pid := 4242
	commit := "0123456789abcdef0123"
	deployID := "0b7d4b5e-8f0e-4b47-9d1e-8a1f3c2f6a10"

	var buf bytes.Buffer
	printRecords(&buf, []history.TriggerRecord{
		{ID: 2, Ref: "refs/heads/vfp", CommitHash: &commit, DeployID: &deployID, PID: &pid,
			RemoteAddr: "192.0.2.10", Status: history.StatusStarted, CreatedAt: time.Now()},
		{ID: 1, RemoteAddr: "192.0.2.11", Status: history.StatusRejected, CreatedAt: time.Now()},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected header and 2 rows, got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "ID") {
		t.Errorf("Expected header row, got %q", lines[0])
	}
	for _, want := range []string{"started", "refs/heads/vfp", "0123456789ab", "4242", deployID} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("Expected %q in row %q", want, lines[1])
		}
	}
	if strings.Contains(lines[1], commit) {
		t.Errorf("Expected shortened commit hash in %q", lines[1])
	}
	if !strings.Contains(lines[2], "rejected") || !strings.Contains(lines[2], "-") {
		t.Errorf("Expected placeholders for missing fields in %q", lines[2])
	}
}
