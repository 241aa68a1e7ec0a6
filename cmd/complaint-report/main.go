// complaint-report prints the monthly complaint report or the dashboard
// snapshot as JSON or YAML. It reads the same environment as the portal
// server and falls back to an empty in-memory store when the database is
// unreachable.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/gramseva/complaint-portal/internal/complaint/domain"
	"github.com/gramseva/complaint-portal/internal/complaint/infrastructure"
	"github.com/gramseva/complaint-portal/internal/complaint/report"
	"github.com/gramseva/complaint-portal/internal/shared/config"
	"github.com/gramseva/complaint-portal/internal/shared/database"
	"github.com/gramseva/complaint-portal/internal/shared/types"
)

type options struct {
	month           int
	year            int
	category        string
	status          string
	technician      string
	format          string
	output          string
	dashboard       bool
	technicianStats string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseArgs(args, time.Now())
	if err == pflag.ErrHelp {
		return nil
	}
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var (
		complaints  domain.ComplaintRepository
		technicians domain.TechnicianRepository
	)
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Database not available, reporting on an empty store: %v\n", err)
		complaints = infrastructure.NewMemoryComplaintRepository()
		technicians = infrastructure.NewMemoryTechnicianRepository()
	} else {
		defer db.Close()
		complaints = infrastructure.NewPostgresComplaintRepository(db.Pool)
		technicians = infrastructure.NewPostgresTechnicianRepository(db.Pool)
	}

	agg := report.NewAggregator(complaints, technicians, report.WithLocation(cfg.Reports.Location()))

	result, err := generate(ctx, agg, opts)
	if err != nil {
		return err
	}

	out := stdout
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", opts.output, err)
		}
		defer f.Close()
		out = f
	}

	return render(out, opts.format, result)
}

func parseArgs(args []string, now time.Time) (options, error) {
	opts := options{}

	flagSet := pflag.NewFlagSet("complaint-report", pflag.ContinueOnError)
	flagSet.IntVarP(&opts.month, "month", "m", int(now.Month()), "report month (1-12)")
	flagSet.IntVarP(&opts.year, "year", "y", now.Year(), "report year")
	flagSet.StringVar(&opts.category, "category", "", "only include this category")
	flagSet.StringVar(&opts.status, "status", "", "only include this status")
	flagSet.StringVar(&opts.technician, "technician", "", "only include complaints assigned to this technician ID")
	flagSet.StringVarP(&opts.format, "format", "f", "yaml", "output format: yaml or json")
	flagSet.StringVarP(&opts.output, "output", "o", "", "write to this file instead of stdout")
	flagSet.BoolVar(&opts.dashboard, "dashboard", false, "print the dashboard snapshot instead of the monthly report")
	flagSet.StringVar(&opts.technicianStats, "technician-stats", "", "print stats for this technician ID instead of the monthly report")

	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", rest[0])
	}

	switch opts.format {
	case "yaml", "json":
	default:
		return opts, fmt.Errorf("unknown format %q, expected yaml or json", opts.format)
	}
	if opts.dashboard && opts.technicianStats != "" {
		return opts, fmt.Errorf("--dashboard and --technician-stats are mutually exclusive")
	}

	return opts, nil
}

// filter builds the complaint filter from the flags
func (o options) filter() (domain.ComplaintFilter, error) {
	var f domain.ComplaintFilter

	if o.category != "" {
		c := domain.Category(o.category)
		if !c.IsValid() {
			return f, fmt.Errorf("unknown category %q", o.category)
		}
		f.Category = &c
	}
	if o.status != "" {
		s := domain.Status(o.status)
		if !s.IsValid() {
			return f, fmt.Errorf("unknown status %q", o.status)
		}
		f.Status = &s
	}
	if o.technician != "" {
		id, err := types.ParseID(o.technician)
		if err != nil {
			return f, fmt.Errorf("invalid technician: %w", err)
		}
		f.AssignedTo = &id
	}

	return f, nil
}

func generate(ctx context.Context, agg *report.Aggregator, opts options) (any, error) {
	if opts.dashboard {
		return agg.DashboardOverview(ctx)
	}

	filter, err := opts.filter()
	if err != nil {
		return nil, err
	}

	if opts.technicianStats != "" {
		id, err := types.ParseID(opts.technicianStats)
		if err != nil {
			return nil, fmt.Errorf("invalid technician: %w", err)
		}
		return agg.TechnicianStats(ctx, id, filter)
	}

	return agg.MonthlyReport(ctx, opts.month, opts.year, filter)
}

// render writes v in the requested format. YAML goes through JSON first so
// both formats share the same field names.
func render(w io.Writer, format string, v any) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("failed to convert report: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(generic)
}
