package caller

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/23f2000792/tambola/internal/config"
	"github.com/23f2000792/tambola/internal/protocol"
)

func startService(t *testing.T, f *fixture) *Service {
	t.Helper()
	cfg := config.Default()
	svc := NewService(context.Background(), cfg.Caller, cfg.Game, f.caller, f.sessions, f.bus, newLogger())
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Close)
	if !svc.Healthy() {
		t.Fatal("service not healthy after start")
	}
	return svc
}

func TestServiceCallOverBus(t *testing.T) {
	f := newFixture(t, 90)
	startService(t, f)

	req, _ := json.Marshal(protocol.CallRequest{SessionID: "game-1"})
	msg, err := f.bus.Conn().Request(protocol.SubjectCallNext, req, 5*time.Second)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	var result protocol.CallResult
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.Number < 1 || result.Number > 90 {
		t.Fatalf("number %d outside range", result.Number)
	}
}

func TestServiceDefaultsSessionID(t *testing.T) {
	f := newFixture(t, 90)
	startService(t, f)

	req, _ := json.Marshal(protocol.CallRequest{})
	msg, err := f.bus.Conn().Request(protocol.SubjectCallNext, req, 5*time.Second)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var result protocol.CallResult
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.SessionID != "main-game" {
		t.Fatalf("expected default session, got %q", result.SessionID)
	}
}

func TestServiceSnapshotAndReset(t *testing.T) {
	f := newFixture(t, 90)
	startService(t, f)

	call, _ := json.Marshal(protocol.CallRequest{SessionID: "game-1"})
	if _, err := f.bus.Conn().Request(protocol.SubjectCallNext, call, 5*time.Second); err != nil {
		t.Fatalf("call request: %v", err)
	}

	snapReq, _ := json.Marshal(protocol.SnapshotRequest{SessionID: "game-1"})
	msg, err := f.bus.Conn().Request(protocol.SubjectSnapshot, snapReq, 5*time.Second)
	if err != nil {
		t.Fatalf("snapshot request: %v", err)
	}
	var snap protocol.Snapshot
	if err := json.Unmarshal(msg.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.CalledNumbers) != 1 {
		t.Fatalf("expected one called number, got %v", snap.CalledNumbers)
	}

	resetReq, _ := json.Marshal(protocol.ResetRequest{SessionID: "game-1"})
	if _, err := f.bus.Conn().Request(protocol.SubjectReset, resetReq, 5*time.Second); err != nil {
		t.Fatalf("reset request: %v", err)
	}

	msg, err = f.bus.Conn().Request(protocol.SubjectSnapshot, snapReq, 5*time.Second)
	if err != nil {
		t.Fatalf("snapshot after reset: %v", err)
	}
	if err := json.Unmarshal(msg.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.CalledNumbers) != 0 || snap.CurrentNumber != nil {
		t.Fatalf("expected empty state after reset, got %+v", snap)
	}
}
