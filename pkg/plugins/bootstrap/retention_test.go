package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/daimon-agents/daimon/pkg/core"
)

func TestRetentionPrunesOldMemories(t *testing.T) {
	tk := newFakeToolkit()
	tk.settings[SettingRetentionDays] = "1"
	tk.settings[SettingRetentionInterval] = "10ms"
	roomID := core.NewID()
	old := core.Memory{EntityID: core.NewID(), RoomID: roomID, Content: core.Content{Text: "stale"}, CreatedAt: time.Now().UTC().Add(-48 * time.Hour)}
	fresh := core.Memory{EntityID: core.NewID(), RoomID: roomID, Content: core.Content{Text: "fresh"}, CreatedAt: time.Now().UTC()}
	for _, m := range []core.Memory{old, fresh} {
		if _, err := tk.store.SaveMemory(context.Background(), m); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	svc := NewRetention()
	if err := svc.Start(context.Background(), tk); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = svc.Stop(context.Background()) })

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := tk.store.CountMemories(context.Background(), roomID)
		if err != nil {
			t.Fatalf("CountMemories: %v", err)
		}
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sweep never pruned, count = %d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	memories, err := tk.store.GetMemories(context.Background(), core.MemoryQuery{RoomID: roomID})
	if err != nil {
		t.Fatalf("GetMemories: %v", err)
	}
	if len(memories) != 1 || memories[0].Content.Text != "fresh" {
		t.Errorf("survivors = %+v", memories)
	}
}

func TestRetentionDisabledByDefault(t *testing.T) {
	tk := newFakeToolkit()
	svc := NewRetention()
	if err := svc.Start(context.Background(), tk); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Nothing was spawned, so Stop returns immediately.
	done := make(chan error, 1)
	go func() { done <- svc.Stop(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a disabled sweeper")
	}
}

func TestRetentionStopIdempotent(t *testing.T) {
	tk := newFakeToolkit()
	tk.settings[SettingRetentionDays] = "1"
	tk.settings[SettingRetentionInterval] = "50ms"
	svc := NewRetention()
	if err := svc.Start(context.Background(), tk); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestRetentionIgnoresBadSettings(t *testing.T) {
	tk := newFakeToolkit()
	tk.settings[SettingRetentionDays] = "not-a-number"
	svc := NewRetention()
	if err := svc.Start(context.Background(), tk); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
