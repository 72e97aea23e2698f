package media

import (
	"context"
	"testing"
)

func TestRunWaitsForExit(t *testing.T) {
	err := Run(context.Background(), "sh", "-c", "echo out; echo err 1>&2")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestRunReportsNonZeroExit(t *testing.T) {
	if err := Run(context.Background(), "sh", "-c", "exit 3"); err == nil {
		t.Fatal("expected error for non-zero exit")
	}
}

func TestRunMissingBinary(t *testing.T) {
	if err := Run(context.Background(), "definitely-not-a-binary"); err == nil {
		t.Fatal("expected error for missing binary")
	}
}
