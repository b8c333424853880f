// Package csvplan reads operation plans exported as CSV.
//
// The first row is a header; columns are matched by name and may appear in any
// order. vehicle_id, operator_id, operation_type and date are required.
package csvplan

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"fieldops/internal/integrations"
	"fieldops/internal/lifecycle"
)

var required = []string{"vehicle_id", "operator_id", "operation_type", "date"}

// Source reads a CSV file at Path on every fetch.
type Source struct {
	Path string
}

func (s Source) Name() string { return "csv" }

func (s Source) FetchPlans(ctx context.Context, since string) (integrations.PlanBatch, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return integrations.PlanBatch{}, err
	}
	defer f.Close()
	return Parse(ctx, f, since)
}

// Parse decodes a plan export from r.
func Parse(ctx context.Context, r io.Reader, since string) (integrations.PlanBatch, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return integrations.PlanBatch{}, nil
	}
	if err != nil {
		return integrations.PlanBatch{}, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return integrations.PlanBatch{}, fmt.Errorf("missing column %q", name)
		}
	}

	var batch integrations.PlanBatch
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			batch.Rejected = append(batch.Rejected, integrations.RowError{Line: line, Err: err})
			continue
		}
		get := func(name string) string {
			if i, ok := cols[name]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		d := lifecycle.OperationDraft{
			ID:            get("id"),
			VehicleID:     get("vehicle_id"),
			OperatorID:    get("operator_id"),
			FieldID:       get("field_id"),
			OperationType: get("operation_type"),
			Date:          get("date"),
			StartTime:     get("start_time"),
			EndTime:       get("end_time"),
			Weather:       get("weather"),
			Notes:         get("notes"),
		}
		if d.StartHours, err = optionalFloat(get("start_hours")); err != nil {
			batch.Rejected = append(batch.Rejected, integrations.RowError{Line: line, Err: fmt.Errorf("start_hours: %w", err)})
			continue
		}
		if d.StartMileage, err = optionalFloat(get("start_mileage")); err != nil {
			batch.Rejected = append(batch.Rejected, integrations.RowError{Line: line, Err: fmt.Errorf("start_mileage: %w", err)})
			continue
		}
		if since != "" && d.Date < since {
			continue
		}
		batch.Drafts = append(batch.Drafts, d)
	}
	return batch, nil
}

func optionalFloat(v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
