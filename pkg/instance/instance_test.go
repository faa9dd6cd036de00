package instance

import "testing"

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv("YIELDVAULT_WORKER_ID", "cron-7")
	if got := GetID(); got != "cron-7" {
		t.Fatalf("expected env id, got %q", got)
	}
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("YIELDVAULT_WORKER_ID", "  ")
	if got := GetID(); got == "" {
		t.Fatal("expected a non-empty id")
	}
}
