package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"transplantcore/pkg/domain"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// render writes v in the format chosen by --output. table draws the
// human-readable form and is only used for the table format.
func render(c *cli.Context, v any, table func(w io.Writer) error) error {
	w := c.App.Writer
	switch format := c.String("output"); format {
	case formatTable, "":
		return printTable(w, table)
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		// Round-trip through JSON so YAML keys match the JSON field names.
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func waitlistTable(entries []domain.RankedEntry) func(io.Writer) error {
	return func(w io.Writer) error {
		if len(entries) == 0 {
			_, err := fmt.Fprintln(w, "waitlist is empty")
			return err
		}
		_, _ = fmt.Fprintln(w, "RANK\tID\tNAME\tBLOOD\tWEIGHT_KG\tTISSUE\tPRIORITY")
		for _, e := range entries {
			p := e.Patient
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%d\n", e.Rank, p.ID, p.Name, p.BloodType, p.WeightKG, p.TissueType, e.Priority)
		}
		return nil
	}
}

func organsTable(organs []domain.Organ) func(io.Writer) error {
	return func(w io.Writer) error {
		if len(organs) == 0 {
			_, err := fmt.Fprintln(w, "no organs registered")
			return err
		}
		_, _ = fmt.Fprintln(w, "ID\tNAME\tBLOOD\tWEIGHT_G\tTISSUE\tALLOCATED_TO")
		for _, o := range organs {
			recipient := "-"
			if o.AllocatedTo != nil {
				recipient = *o.AllocatedTo
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", o.ID, o.Name, o.BloodType, o.WeightGrams, o.TissueType, recipient)
		}
		return nil
	}
}

func allocationsTable(allocations []domain.Allocation) func(io.Writer) error {
	return func(w io.Writer) error {
		if len(allocations) == 0 {
			_, err := fmt.Fprintln(w, "no allocations")
			return err
		}
		_, _ = fmt.Fprintln(w, "ORGAN\tPATIENT\tNAME\tRANK\tPRIORITY\tSCORE\tALLOCATED_AT")
		for _, a := range allocations {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.2f\t%s\n", a.OrganID, a.PatientID, a.PatientName, a.Rank, a.Priority, a.Score.Total, a.AllocatedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return nil
	}
}

func line(format string, args ...any) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := fmt.Fprintf(w, format+"\n", args...)
		return err
	}
}
