package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"transplantcore/internal/blob"
	"transplantcore/internal/compat"
	"transplantcore/pkg/domain"
)

func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 || c.Args().First() == "" {
		return "", fmt.Errorf("%s requires exactly one %s argument", c.Command.Name, name)
	}
	return c.Args().First(), nil
}

var enqueueCmd = &cli.Command{
	Name:  "enqueue",
	Usage: "Add a patient to the waitlist with a randomly drawn priority",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "id", Usage: "patient identifier (generated when empty)"},
		&cli.StringFlag{Name: "name", Required: true, Usage: "patient name"},
		&cli.StringFlag{Name: "blood-type", Required: true, Usage: "ABO group and Rh factor, e.g. A+"},
		&cli.IntFlag{Name: "weight", Required: true, Usage: "body weight in kg"},
		&cli.StringFlag{Name: "tissue", Usage: "tissue type, e.g. HLA-A"},
	},
	Action: func(c *cli.Context) error {
		patient := domain.Patient{
			ID:         c.String("id"),
			Name:       c.String("name"),
			BloodType:  domain.BloodType(c.String("blood-type")),
			WeightKG:   c.Int("weight"),
			TissueType: c.String("tissue"),
		}
		return withEnv(c, func(e *env) error {
			entry, _, err := e.svc.Enqueue(c.Context, patient)
			if err != nil {
				return err
			}
			position, _ := e.svc.Position(entry.Patient.ID)
			out := struct {
				Entry    domain.Entry `json:"entry"`
				Position int          `json:"position"`
			}{entry, position}
			return render(c, out, line("enqueued %s (%s) with priority %d at position %d",
				entry.Patient.Name, entry.Patient.ID, entry.Priority, position))
		})
	},
}

var listCmd = &cli.Command{
	Name:    "list",
	Aliases: []string{"ls"},
	Usage:   "Show the ranked waitlist",
	Action: func(c *cli.Context) error {
		return withEnv(c, func(e *env) error {
			entries := e.svc.Waitlist()
			if entries == nil {
				entries = []domain.RankedEntry{}
			}
			return render(c, entries, waitlistTable(entries))
		})
	},
}

var removeCmd = &cli.Command{
	Name:      "remove",
	Usage:     "Remove a patient from the waitlist",
	ArgsUsage: "<patient-id>",
	Action: func(c *cli.Context) error {
		id, err := requireArg(c, "patient id")
		if err != nil {
			return err
		}
		return withEnv(c, func(e *env) error {
			patient, ok, err := e.svc.RemovePatient(c.Context, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("patient %s is not on the waitlist", id)
			}
			return render(c, patient, line("removed %s (%s)", patient.Name, patient.ID))
		})
	},
}

var popCmd = &cli.Command{
	Name:  "pop",
	Usage: "Remove and show the highest priority patient",
	Action: func(c *cli.Context) error {
		return withEnv(c, func(e *env) error {
			patient, ok, err := e.svc.RemoveHighest(c.Context)
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("waitlist is empty")
			}
			return render(c, patient, line("removed highest priority patient %s (%s)", patient.Name, patient.ID))
		})
	},
}

var reprioritizeCmd = &cli.Command{
	Name:      "reprioritize",
	Usage:     "Draw a new priority for a waiting patient",
	ArgsUsage: "<patient-id>",
	Action: func(c *cli.Context) error {
		id, err := requireArg(c, "patient id")
		if err != nil {
			return err
		}
		return withEnv(c, func(e *env) error {
			entry, ok, err := e.svc.Reprioritize(c.Context, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("patient %s is not on the waitlist", id)
			}
			position, _ := e.svc.Position(id)
			out := struct {
				Entry    domain.Entry `json:"entry"`
				Position int          `json:"position"`
			}{entry, position}
			return render(c, out, line("%s now has priority %d at position %d", entry.Patient.Name, entry.Priority, position))
		})
	},
}

var positionCmd = &cli.Command{
	Name:      "position",
	Usage:     "Show a patient's 1-based position on the waitlist",
	ArgsUsage: "<patient-id>",
	Action: func(c *cli.Context) error {
		id, err := requireArg(c, "patient id")
		if err != nil {
			return err
		}
		return withEnv(c, func(e *env) error {
			position, ok := e.svc.Position(id)
			if !ok {
				return fmt.Errorf("patient %s is not on the waitlist", id)
			}
			out := struct {
				ID       string `json:"id"`
				Position int    `json:"position"`
			}{id, position}
			return render(c, out, line("%s is at position %d", id, position))
		})
	},
}

var registerOrganCmd = &cli.Command{
	Name:  "register-organ",
	Usage: "Register a donor organ for allocation",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "id", Usage: "organ identifier (generated when empty)"},
		&cli.StringFlag{Name: "name", Required: true, Usage: "organ name"},
		&cli.StringFlag{Name: "blood-type", Required: true, Usage: "donor ABO group and Rh factor"},
		&cli.IntFlag{Name: "weight-grams", Required: true, Usage: "organ weight in grams"},
		&cli.StringFlag{Name: "tissue", Usage: "tissue type, e.g. HLA-A"},
	},
	Action: func(c *cli.Context) error {
		organ := domain.Organ{
			ID:          c.String("id"),
			Name:        c.String("name"),
			BloodType:   domain.BloodType(c.String("blood-type")),
			WeightGrams: c.Int("weight-grams"),
			TissueType:  c.String("tissue"),
		}
		return withEnv(c, func(e *env) error {
			created, _, err := e.svc.RegisterOrgan(c.Context, organ)
			if err != nil {
				return err
			}
			return render(c, created, line("registered organ %s (%s)", created.Name, created.ID))
		})
	},
}

var organsCmd = &cli.Command{
	Name:  "organs",
	Usage: "List registered organs",
	Action: func(c *cli.Context) error {
		return withEnv(c, func(e *env) error {
			organs := e.svc.Organs()
			if organs == nil {
				organs = []domain.Organ{}
			}
			return render(c, organs, organsTable(organs))
		})
	},
}

func findOrgan(e *env, id string) (domain.Organ, error) {
	for _, o := range e.svc.Organs() {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.Organ{}, domain.ErrNotFound{Entity: domain.EntityOrgan, ID: id}
}

var matchCmd = &cli.Command{
	Name:      "match",
	Usage:     "Show which waiting patient a registered organ would go to, without allocating",
	ArgsUsage: "<organ-id>",
	Action: func(c *cli.Context) error {
		id, err := requireArg(c, "organ id")
		if err != nil {
			return err
		}
		return withEnv(c, func(e *env) error {
			organ, err := findOrgan(e, id)
			if err != nil {
				return err
			}
			match, ok := e.svc.FindMatch(c.Context, organ)
			if !ok {
				return render(c, struct {
					Matched bool `json:"matched"`
				}{}, line("no compatible patient found for %s", organ.Name))
			}
			out := struct {
				Matched bool `json:"matched"`
				compat.Match
			}{true, match}
			return render(c, out, line("compatible patient found: %s (position %d, score %.2f)",
				match.Patient.Name, match.Rank, match.Score.Total))
		})
	},
}

var allocateCmd = &cli.Command{
	Name:      "allocate",
	Usage:     "Allocate a registered organ to the first compatible patient and remove them from the waitlist",
	ArgsUsage: "<organ-id>",
	Action: func(c *cli.Context) error {
		id, err := requireArg(c, "organ id")
		if err != nil {
			return err
		}
		return withEnv(c, func(e *env) error {
			allocation, ok, _, err := e.svc.Allocate(c.Context, id)
			if err != nil {
				return err
			}
			if !ok {
				return render(c, struct {
					Matched bool `json:"matched"`
				}{}, line("no compatible patient found for organ %s", id))
			}
			out := struct {
				Matched    bool              `json:"matched"`
				Allocation domain.Allocation `json:"allocation"`
			}{true, allocation}
			return render(c, out, line("allocated %s to %s (%s), score %.2f",
				id, allocation.PatientName, allocation.PatientID, allocation.Score.Total))
		})
	},
}

var allocationsCmd = &cli.Command{
	Name:  "allocations",
	Usage: "List allocation records",
	Action: func(c *cli.Context) error {
		return withEnv(c, func(e *env) error {
			allocations := e.svc.ListAllocations()
			if allocations == nil {
				allocations = []domain.Allocation{}
			}
			return render(c, allocations, allocationsTable(allocations))
		})
	},
}

var exportCmd = &cli.Command{
	Name:  "export",
	Usage: "Write an allocation report to the configured blob store",
	Action: func(c *cli.Context) error {
		return withEnv(c, func(e *env) error {
			store, err := blob.Open(c.Context, e.cfg.Blob)
			if err != nil {
				return fmt.Errorf("open blob store: %w", err)
			}
			info, err := e.svc.ExportAllocations(c.Context, store)
			if err != nil {
				return err
			}
			return render(c, info, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "exported %s (%d bytes) to %s\n", info.Key, info.Size, store.Driver())
				return err
			})
		})
	},
}
