// Command churnctl scores customers and manages the prediction history from
// the shell.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"churnguard/analytics"
	"churnguard/client"
	"churnguard/config"
	"churnguard/customer"
	"churnguard/history"
	"churnguard/inference"
	"churnguard/logging"
)

type cli struct {
	Config string `help:"Path to config.yaml (default: $CONFIG_PATH or ./config.yaml)." type:"path"`

	Predict PredictCmd `cmd:"" help:"Score a customer and save the result to history."`
	History HistoryCmd `cmd:"" help:"Inspect or edit the prediction history."`
	Stats   StatsCmd   `cmd:"" help:"Show prediction counts and mean tenure per class."`
	Backup  BackupCmd  `cmd:"" help:"Write a snapshot of the history and prune old ones."`
}

// app carries what every command needs.
type app struct {
	cfg    *config.Config
	store  history.Store
	logger *zap.Logger
	out    io.Writer

	predictor client.Predictor
}

func main() {
	if err := run(os.Args[1:], os.Stdout, nil); err != nil {
		fmt.Fprintln(os.Stderr, "churnctl:", err)
		os.Exit(1)
	}
}

// run parses args and executes the selected command. A nil predictor means
// the configured inference server.
func run(args []string, out io.Writer, predictor client.Predictor) error {
	var c cli
	parser, err := kong.New(&c,
		kong.Name("churnctl"),
		kong.Description("Churn prediction history tool."),
		kong.Writers(out, out),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := history.Open(cfg.HistoryOptions())
	if err != nil {
		return err
	}
	defer store.Close()

	if predictor == nil {
		predictor = client.New(cfg.Client.InferenceURL, cfg.Client.Timeout)
	}
	return kctx.Run(&app{cfg: cfg, store: store, logger: logger, out: out, predictor: predictor})
}

// PredictCmd takes the human labels shown on the original form.
type PredictCmd struct {
	Gender           string  `help:"Female or Male." default:"Female"`
	SeniorCitizen    string  `help:"No or Yes." default:"No"`
	Partner          string  `help:"No or Yes." default:"No"`
	Dependents       string  `help:"No or Yes." default:"No"`
	Tenure           int     `help:"Months with the company (0-72)." required:""`
	PhoneService     string  `help:"No or Yes." default:"Yes"`
	MultipleLines    string  `help:"No or Yes." default:"No"`
	InternetService  string  `help:"No Internet, DSL or Fiber Optic." default:"DSL"`
	OnlineSecurity   string  `help:"Not Available, Yes or No." default:"No"`
	OnlineBackup     string  `help:"Not Available, Yes or No." default:"No"`
	DeviceProtection string  `help:"Not Available, Yes or No." default:"No"`
	TechSupport      string  `help:"Not Available, Yes or No." default:"No"`
	StreamingTV      string  `name:"streaming-tv" help:"Not Available, Yes or No." default:"No"`
	StreamingMovies  string  `help:"Not Available, Yes or No." default:"No"`
	Contract         string  `help:"Month-to-Month, One Year or Two Year." default:"Month-to-Month"`
	PaperlessBilling string  `help:"No or Yes." default:"Yes"`
	PaymentMethod    string  `help:"Electronic Check, Mailed Check, Bank Transfer or Credit Card." default:"Electronic Check"`
	MonthlyCharges   float64 `help:"Monthly charges." required:""`
	TotalCharges     float64 `help:"Total charges." required:""`

	DryRun bool `help:"Print the prediction without saving it."`
}

func (c *PredictCmd) labels() map[string]string {
	return map[string]string{
		"gender":           c.Gender,
		"SeniorCitizen":    c.SeniorCitizen,
		"Partner":          c.Partner,
		"Dependents":       c.Dependents,
		"PhoneService":     c.PhoneService,
		"MultipleLines":    c.MultipleLines,
		"InternetService":  c.InternetService,
		"OnlineSecurity":   c.OnlineSecurity,
		"OnlineBackup":     c.OnlineBackup,
		"DeviceProtection": c.DeviceProtection,
		"TechSupport":      c.TechSupport,
		"StreamingTV":      c.StreamingTV,
		"StreamingMovies":  c.StreamingMovies,
		"Contract":         c.Contract,
		"PaperlessBilling": c.PaperlessBilling,
		"PaymentMethod":    c.PaymentMethod,
	}
}

func (c *PredictCmd) record(b customer.Bounds) (customer.Record, error) {
	payload := map[string]any{
		"tenure":         c.Tenure,
		"MonthlyCharges": c.MonthlyCharges,
		"TotalCharges":   c.TotalCharges,
	}
	for field, label := range c.labels() {
		code, err := customer.Encode(field, label)
		if err != nil {
			return customer.Record{}, err
		}
		payload[field] = code
	}
	return customer.FromPayload(payload, b)
}

func (c *PredictCmd) Run(a *app) error {
	record, err := c.record(a.cfg.Bounds())
	if err != nil {
		return err
	}

	ctx := context.Background()
	var result inference.Result
	if c.DryRun {
		result, err = a.predictor.Predict(ctx, record.Payload())
	} else {
		result, err = client.PredictAndRecord(ctx, a.predictor, a.store, record)
	}
	if err != nil {
		var unErr *client.UnreachableServiceError
		if errors.As(err, &unErr) {
			return fmt.Errorf("could not reach the inference server at %s, is it running? (%w)", a.cfg.Client.InferenceURL, err)
		}
		return err
	}

	fmt.Fprintf(a.out, "%s (prediction=%d)\n", result.Message, result.Label)
	if !c.DryRun {
		fmt.Fprintln(a.out, "saved to history")
	}
	return nil
}

type HistoryCmd struct {
	List       ListCmd       `cmd:"" default:"1" help:"List stored predictions with their positions."`
	Delete     DeleteCmd     `cmd:"" help:"Delete the prediction at a position."`
	DeleteMany DeleteManyCmd `cmd:"" help:"Delete several positions at once; invalid ones are ignored."`
	Clear      ClearCmd      `cmd:"" help:"Delete every stored prediction."`
}

type ListCmd struct {
	Last int `help:"Only show the last N rows (0 shows all)." default:"0"`
}

func (c *ListCmd) Run(a *app) error {
	records, err := a.store.LoadAll(context.Background())
	if err != nil {
		return err
	}
	start := 0
	if c.Last > 0 && c.Last < len(records) {
		start = len(records) - c.Last
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tGENDER\tTENURE\tINTERNET\tCONTRACT\tMONTHLY\tTOTAL\tPREDICTION")
	for i := start; i < len(records); i++ {
		r := records[i]
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%.2f\t%.2f\t%s\n",
			i,
			decode("gender", r.Gender),
			r.Tenure,
			decode("InternetService", r.InternetService),
			decode("Contract", r.Contract),
			r.MonthlyCharges,
			r.TotalCharges,
			predictionText(r))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d rows\n", len(records))
	return nil
}

func decode(field string, code int) string {
	label, err := customer.Decode(field, code)
	if err != nil {
		return strconv.Itoa(code)
	}
	return label
}

func predictionText(r customer.Record) string {
	label, ok := r.Label()
	if !ok {
		return "-"
	}
	msg, err := inference.MessageFor(label)
	if err != nil {
		return strconv.Itoa(label)
	}
	return msg
}

type DeleteCmd struct {
	Position int `arg:"" help:"Zero-based row position."`
}

func (c *DeleteCmd) Run(a *app) error {
	if err := a.store.DeleteAt(context.Background(), c.Position); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted row %d; later rows moved up by one\n", c.Position)
	return nil
}

type DeleteManyCmd struct {
	Positions []int `arg:"" help:"Zero-based row positions."`
}

func (c *DeleteManyCmd) Run(a *app) error {
	n, err := a.store.DeleteMany(context.Background(), c.Positions)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %d of %d requested rows\n", n, len(c.Positions))
	return nil
}

type ClearCmd struct {
	Yes bool `help:"Confirm deleting every row."`
}

func (c *ClearCmd) Run(a *app) error {
	if !c.Yes {
		return errors.New("refusing to clear history without --yes")
	}
	if err := a.store.Clear(context.Background()); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "history cleared")
	return nil
}

type StatsCmd struct{}

func (c *StatsCmd) Run(a *app) error {
	records, err := a.store.LoadAll(context.Background())
	if err != nil {
		return err
	}
	s := analytics.Summarize(records)

	fmt.Fprintf(a.out, "total predictions: %d\n", s.Total)
	for _, class := range analytics.Classes {
		msg, _ := inference.MessageFor(class)
		mean := "n/a"
		if m := s.MeanTenure[class]; m != nil {
			mean = fmt.Sprintf("%.1f months", *m)
		}
		fmt.Fprintf(a.out, "%-16s count=%d mean tenure=%s\n", msg+":", s.Counts[class], mean)
	}
	if s.ChurnRate != nil {
		fmt.Fprintf(a.out, "churn rate: %.1f%%\n", *s.ChurnRate*100)
	}
	return nil
}

type BackupCmd struct {
	Dir string `help:"Backup directory (default: history.backup_dir)." type:"path"`
}

func (c *BackupCmd) Run(a *app) error {
	dir := c.Dir
	if dir == "" {
		dir = a.cfg.History.BackupDir
	}
	if dir == "" {
		return errors.New("no backup directory configured")
	}
	path, err := history.Backup(context.Background(), a.store, dir, time.Now())
	if err != nil {
		return err
	}
	removed, err := history.PruneBackups(dir, a.cfg.History.BackupKeep)
	if err != nil {
		a.logger.Warn("prune backups", zap.String("dir", dir), zap.Error(err))
	}
	fmt.Fprintf(a.out, "backup written to %s (%d old snapshots pruned)\n", path, len(removed))
	return nil
}
