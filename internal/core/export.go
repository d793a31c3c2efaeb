package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"transplantcore/internal/blob"
)

// AllocationsPrefix is the blob key prefix for exported reports.
const AllocationsPrefix = "allocations/"

// AllocationReport is the document written by ExportAllocations.
type AllocationReport struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Threshold   float64      `json:"threshold"`
	Waiting     int          `json:"waiting"`
	Allocations []Allocation `json:"allocations"`
}

// ExportAllocations writes every allocation record to store as a JSON report
// keyed by the export time.
func (s *Service) ExportAllocations(ctx context.Context, store blob.Store) (blob.Info, error) {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, opExport)
	info, err := s.exportAllocations(ctx, store, start.UTC())
	span.End(err)
	s.metrics.Observe(ctx, opExport, err == nil, s.clock.Now().Sub(start))
	if err != nil {
		s.logger.Error("export failed", "error", err)
		return blob.Info{}, err
	}
	s.logger.Info("allocations exported", "key", info.Key, "driver", store.Driver(), "bytes", info.Size)
	return info, nil
}

func (s *Service) exportAllocations(ctx context.Context, store blob.Store, now time.Time) (blob.Info, error) {
	report := AllocationReport{
		GeneratedAt: now,
		Threshold:   s.matcher.Threshold(),
		Waiting:     len(s.store.ListWaitlist()),
		Allocations: s.store.ListAllocations(),
	}
	if report.Allocations == nil {
		report.Allocations = []Allocation{}
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode report: %w", err)
	}
	key := AllocationsPrefix + now.Format("20060102T150405.000000000Z") + ".json"
	info, err := store.Put(ctx, key, bytes.NewReader(body), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"count": strconv.Itoa(len(report.Allocations))},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("write report %s: %w", key, err)
	}
	return info, nil
}
