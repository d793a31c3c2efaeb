package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"transplantcore/internal/blob"
)

func TestExportAllocations(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	svc := newDemoService(WithClock(ClockFunc(func() time.Time { return fixed })))
	organ, _, err := svc.RegisterOrgan(ctx, demoOrgan())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok, _, err := svc.Allocate(ctx, organ.ID); err != nil || !ok {
		t.Fatalf("allocate: %v %v", ok, err)
	}

	store := blob.NewMemory()
	info, err := svc.ExportAllocations(ctx, store)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if info.Key != "allocations/20261016T120000.000000000Z.json" || info.ContentType != "application/json" || info.Metadata["count"] != "1" {
		t.Fatalf("unexpected info %+v", info)
	}
	_, rc, err := store.Get(ctx, info.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	raw, _ := io.ReadAll(rc)
	var report AllocationReport
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if len(report.Allocations) != 1 || report.Allocations[0].PatientID != "P001" || report.Waiting != 3 || !report.GeneratedAt.Equal(fixed) {
		t.Fatalf("unexpected report %+v", report)
	}

	if _, err := svc.ExportAllocations(ctx, store); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected ErrExists on same-instant export, got %v", err)
	}
}

func TestExportEmptyReportToFilesystem(t *testing.T) {
	ctx := context.Background()
	store, err := blob.NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	svc := NewInMemoryService(nil, nil)
	info, err := svc.ExportAllocations(ctx, store)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	_, rc, err := store.Get(ctx, info.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	var report map[string]json.RawMessage
	if err := json.NewDecoder(rc).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(report["allocations"]) != "[]" {
		t.Fatalf("expected empty allocations array, got %s", report["allocations"])
	}
}
