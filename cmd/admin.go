package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strconv"

	"grainflow/config"
	"grainflow/models"
	"grainflow/service"

	"github.com/shopspring/decimal"
)

const usage = `usage:
  grainflow                                      run the engine and cycle scheduler
  grainflow migrate up|down [n]|status
  grainflow cycle compost [--dry-run]
  grainflow cycle redistribute [--rate=0.1]
  grainflow balance <user-id>
  grainflow reconcile <user-id>
  grainflow adjust <user-id> <amount> [--note=text]
  grainflow silo`

// Usage returns the command line help
func Usage() string {
	return usage
}

// RunAdmin executes a one-shot administrative command and writes its JSON result to out
func RunAdmin(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("missing command\n%s", usage)
	}

	cfg := config.Get()
	if err := ConfigureLogging(cfg); err != nil {
		return err
	}

	app, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	result, err := dispatchAdmin(ctx, app, args)
	if result != nil {
		if encodeErr := writeJSON(out, result); encodeErr != nil && err == nil {
			err = encodeErr
		}
	}
	return err
}

func dispatchAdmin(ctx context.Context, app *App, args []string) (any, error) {
	switch args[0] {
	case "cycle":
		return runCycleCommand(ctx, app.Engine, args[1:])
	case "balance":
		userID, err := parseUserID(args[1:])
		if err != nil {
			return nil, err
		}
		return asResult(app.Engine.GetBalance(ctx, userID))
	case "reconcile":
		userID, err := parseUserID(args[1:])
		if err != nil {
			return nil, err
		}
		return asResult(app.Wallets.Reconcile(ctx, userID))
	case "adjust":
		return runAdjustCommand(ctx, app.Engine, args[1:])
	case "silo":
		return asResult(app.Silo.Status(ctx))
	default:
		return nil, fmt.Errorf("unknown command: %s\n%s", args[0], usage)
	}
}

func runCycleCommand(ctx context.Context, engine service.Engine, args []string) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("usage: grainflow cycle compost|redistribute [flags]")
	}

	switch args[0] {
	case "compost":
		fs := flag.NewFlagSet("compost", flag.ContinueOnError)
		dryRun := fs.Bool("dry-run", false, "report what would be composted without writing")
		if err := fs.Parse(args[1:]); err != nil {
			return nil, err
		}
		return asResult(engine.RunCompostCycle(ctx, *dryRun))

	case "redistribute":
		fs := flag.NewFlagSet("redistribute", flag.ContinueOnError)
		rateFlag := fs.String("rate", "", "override the configured redistribution rate")
		if err := fs.Parse(args[1:]); err != nil {
			return nil, err
		}

		var rate *decimal.Decimal
		if *rateFlag != "" {
			parsed, err := decimal.NewFromString(*rateFlag)
			if err != nil {
				return nil, fmt.Errorf("invalid rate %q: %w", *rateFlag, err)
			}
			rate = &parsed
		}
		return asResult(engine.RunRedistributionCycle(ctx, rate))

	default:
		return nil, fmt.Errorf("unknown cycle: %s", args[0])
	}
}

func runAdjustCommand(ctx context.Context, engine service.Engine, args []string) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("usage: grainflow adjust <user-id> <amount> [--note=text]")
	}

	userID, err := parseUserID(args)
	if err != nil {
		return nil, err
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", args[1], err)
	}

	fs := flag.NewFlagSet("adjust", flag.ContinueOnError)
	note := fs.String("note", "", "reason recorded in the journal metadata")
	if err := fs.Parse(args[2:]); err != nil {
		return nil, err
	}

	metadata := map[string]any{"source": "cli"}
	if *note != "" {
		metadata["note"] = *note
	}

	return asResult(engine.Harvest(ctx, service.HarvestRequest{
		UserID:   userID,
		Reason:   models.ReasonManualAdjust,
		Amount:   amount,
		Metadata: metadata,
	}))
}

// asResult keeps a nil pointer from becoming a non-nil interface
func asResult[T any](v *T, err error) (any, error) {
	if v == nil {
		return nil, err
	}
	return v, err
}

func parseUserID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("missing user id")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", args[0], err)
	}
	return userID, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
