package main

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"transplantcore/internal/core"
	"transplantcore/internal/waitlist"
	"transplantcore/pkg/domain"
)

// demoPriorities makes the unseeded demo reproducible: John 5, Jane 8,
// Bob 3, Alice 9, then Bob is redrawn to 6.
var demoPriorities = []int{5, 8, 3, 9, 6}

var demoCmd = &cli.Command{
	Name:  "demo",
	Usage: "Run the waitlist and matching walkthrough against an in-memory store",
	Flags: []cli.Flag{
		&cli.Uint64Flag{Name: "seed", Usage: "draw random priorities from this seed instead of the fixed demo sequence"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		matcher, err := cfg.NewMatcher()
		if err != nil {
			return err
		}
		var drawer waitlist.PriorityDrawer = waitlist.NewSequenceDrawer(demoPriorities...)
		if seed := c.Uint64("seed"); seed != 0 {
			drawer = waitlist.NewRandomDrawer(seed)
		}
		svc := core.NewInMemoryService(core.NewPolicyRulesEngine(matcher.Threshold()), drawer, core.WithMatcher(matcher))
		return runDemo(c, svc, c.App.Writer)
	},
}

func runDemo(c *cli.Context, svc *core.Service, w io.Writer) error {
	ctx := c.Context
	patients := []domain.Patient{
		{ID: "P001", Name: "John Doe", BloodType: "A+", WeightKG: 70, TissueType: "HLA-A"},
		{ID: "P002", Name: "Jane Smith", BloodType: "B-", WeightKG: 65, TissueType: "HLA-B"},
		{ID: "P003", Name: "Bob Johnson", BloodType: "O+", WeightKG: 80, TissueType: "HLA-A"},
		{ID: "P004", Name: "Alice Brown", BloodType: "AB-", WeightKG: 55, TissueType: "HLA-C"},
	}
	show := func(title string) error {
		_, _ = fmt.Fprintf(w, "\n%s\n", title)
		return printTable(w, waitlistTable(svc.Waitlist()))
	}

	_, _ = fmt.Fprintln(w, "Adding patients to the waitlist...")
	for _, p := range patients[:3] {
		if _, _, err := svc.Enqueue(ctx, p); err != nil {
			return err
		}
	}
	if err := show("Initial waitlist:"); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "\nAdding new patient: %s\n", patients[3].Name)
	if _, _, err := svc.Enqueue(ctx, patients[3]); err != nil {
		return err
	}
	if err := show("Updated waitlist:"); err != nil {
		return err
	}

	if removed, ok, err := svc.RemoveHighest(ctx); err != nil {
		return err
	} else if ok {
		_, _ = fmt.Fprintf(w, "\nRemoving highest priority patient: %s\n", removed.Name)
	}

	_, _ = fmt.Fprintf(w, "\nUpdating priority for %s\n", patients[2].Name)
	if _, _, err := svc.Reprioritize(ctx, patients[2].ID); err != nil {
		return err
	}
	if err := show("Updated waitlist:"); err != nil {
		return err
	}

	organ, _, err := svc.RegisterOrgan(ctx, domain.Organ{ID: "O001", Name: "CyberHeart-X1", BloodType: "A+", WeightGrams: 350000, TissueType: "HLA-A"})
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "\nMatching %s to the waitlist:\n", organ.Name)
	allocation, ok, _, err := svc.Allocate(ctx, organ.ID)
	if err != nil {
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(w, "No compatible patient found in the waitlist.")
		return nil
	}
	_, _ = fmt.Fprintf(w, "Compatible patient found: %s (position %d, score %.2f)\n",
		allocation.PatientName, allocation.Rank, allocation.Score.Total)
	return show("Matched patient removed. Updated waitlist:")
}

func printTable(w io.Writer, table func(io.Writer) error) error {
	tw := newTabWriter(w)
	if err := table(tw); err != nil {
		return err
	}
	return tw.Flush()
}
