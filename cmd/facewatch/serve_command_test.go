package main

import (
	"os"
	"testing"

	"github.com/gofrs/flock"
)

func TestServeRefusesSecondInstance(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.MkdirAll(env.cfg.Paths.DataDir, 0o755); err != nil {
		t.Fatalf("mkdir data dir: %v", err)
	}
	held := flock.New(env.cfg.LockPath())
	ok, err := held.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	_, _, err = runCLI(t, []string{"serve"}, env.configPath)
	if err == nil {
		t.Fatal("expected serve to refuse while the lock is held")
	}
	requireContains(t, err.Error(), "already running")
}
