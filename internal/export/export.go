package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/domain"
)

// ErrNothingToExport is returned when no trade result passes the filters.
var ErrNothingToExport = errors.New("no trades match the export criteria")

// Format is the export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Options selects and places the exported results. Zero filters match everything.
type Options struct {
	Format        Format
	Since         time.Time
	Until         time.Time
	Token         string
	Direction     domain.Direction
	Source        string
	OnlyConfirmed bool
	OutputDir     string
}

// Exporter writes trade history files.
type Exporter struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewExporter creates an exporter.
func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger.Named("export"), now: time.Now}
}

// Export writes the matching results oldest first and returns the file path.
func (e *Exporter) Export(results []domain.TradeResult, opts Options) (string, error) {
	filtered := Filter(results, opts)
	if len(filtered) == 0 {
		return "", ErrNothingToExport
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(opts.OutputDir, e.filename(opts))

	var err error
	switch opts.Format {
	case FormatCSV:
		err = writeCSV(filtered, path)
	case FormatJSON:
		err = writeJSON(path, struct {
			ExportTime time.Time            `json:"export_time"`
			Summary    Summary              `json:"summary"`
			Trades     []domain.TradeResult `json:"trades"`
		}{e.now().UTC(), Summarize(filtered), filtered})
	default:
		err = fmt.Errorf("unsupported format: %s", opts.Format)
	}
	if err != nil {
		return "", err
	}

	e.logger.Info("📤 Trades exported",
		zap.String("file", path),
		zap.Int("count", len(filtered)),
		zap.String("format", string(opts.Format)))
	return path, nil
}

// Filter applies opts to results and sorts the survivors by submission time.
func Filter(results []domain.TradeResult, opts Options) []domain.TradeResult {
	var out []domain.TradeResult
	for _, r := range results {
		if !opts.Since.IsZero() && r.SubmittedAt.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && !r.SubmittedAt.Before(opts.Until) {
			continue
		}
		if opts.Token != "" && r.Order.Token() != opts.Token {
			continue
		}
		if opts.Direction != "" && r.Order.Direction != opts.Direction {
			continue
		}
		if opts.Source != "" && r.Order.Source != opts.Source {
			continue
		}
		if opts.OnlyConfirmed && r.Status != domain.TradeConfirmed {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

func (e *Exporter) filename(opts Options) string {
	prefix := "trades_all"
	if opts.Direction != "" {
		prefix = "trades_" + string(opts.Direction)
	}
	if opts.Token != "" {
		prefix += "_" + opts.Token[:min(8, len(opts.Token))]
	}
	return fmt.Sprintf("%s_%s.%s", prefix, e.now().UTC().Format("20060102_150405"), opts.Format)
}

// CSVHeader is the column order of CSV exports.
var CSVHeader = []string{
	"submitted_at", "id", "source", "direction", "token",
	"input_mint", "in_amount", "output_mint", "out_amount", "price",
	"status", "error_category", "signature", "position_id", "triggered_by",
}

func csvRow(r domain.TradeResult) []string {
	return []string{
		r.SubmittedAt.UTC().Format(time.RFC3339),
		r.ID,
		r.Order.Source,
		string(r.Order.Direction),
		r.Order.Token(),
		r.Order.InputMint,
		r.InAmount.String(),
		r.Order.OutputMint,
		r.OutAmount.String(),
		r.Price().String(),
		string(r.Status),
		string(r.ErrorCategory),
		r.Signature,
		r.Order.PositionID,
		r.Order.TriggeredBy,
	}
}

func writeCSV(results []domain.TradeResult, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range results {
		if err := w.Write(csvRow(r)); err != nil {
			return fmt.Errorf("failed to write trade %s: %w", r.ID, err)
		}
	}
	w.Flush()
	return w.Error()
}

func writeJSON(path string, v any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// Summary aggregates an exported batch. SOL flows count confirmed trades only.
type Summary struct {
	TotalTrades  int             `json:"total_trades"`
	Confirmed    int             `json:"confirmed"`
	Failed       int             `json:"failed"`
	Buys         int             `json:"buys"`
	Sells        int             `json:"sells"`
	UniqueTokens int             `json:"unique_tokens"`
	SOLSpent     decimal.Decimal `json:"sol_spent"`
	SOLReceived  decimal.Decimal `json:"sol_received"`
	NetSOL       decimal.Decimal `json:"net_sol"`
	Start        time.Time       `json:"start"`
	End          time.Time       `json:"end"`
}

// Summarize expects results sorted by submission time.
func Summarize(results []domain.TradeResult) Summary {
	s := Summary{TotalTrades: len(results), SOLSpent: decimal.Zero, SOLReceived: decimal.Zero}
	if len(results) == 0 {
		s.NetSOL = decimal.Zero
		return s
	}
	s.Start = results[0].SubmittedAt
	s.End = results[len(results)-1].SubmittedAt

	tokens := make(map[string]struct{})
	for _, r := range results {
		tokens[r.Order.Token()] = struct{}{}
		switch r.Order.Direction {
		case domain.DirectionBuy:
			s.Buys++
		case domain.DirectionSell:
			s.Sells++
		}
		switch r.Status {
		case domain.TradeFailed:
			s.Failed++
			continue
		case domain.TradeConfirmed:
			s.Confirmed++
		default:
			continue
		}
		if r.Order.InputMint == domain.SOLMint {
			s.SOLSpent = s.SOLSpent.Add(r.InAmount)
		}
		if r.Order.OutputMint == domain.SOLMint {
			s.SOLReceived = s.SOLReceived.Add(r.OutAmount)
		}
	}
	s.UniqueTokens = len(tokens)
	s.NetSOL = s.SOLReceived.Sub(s.SOLSpent)
	return s
}

// DailyReport is one UTC day of trade history.
type DailyReport struct {
	Date    time.Time            `json:"date"`
	Summary Summary              `json:"summary"`
	Hourly  []HourlyStats        `json:"hourly"`
	Trades  []domain.TradeResult `json:"trades"`
}

// HourlyStats counts the trades submitted within one hour.
type HourlyStats struct {
	Hour   int             `json:"hour"`
	Trades int             `json:"trades"`
	Buys   int             `json:"buys"`
	Sells  int             `json:"sells"`
	Volume decimal.Decimal `json:"volume_sol"`
}

// ExportDaily writes a JSON report for the UTC day containing date. It returns
// "" without error when the day has no trades.
func (e *Exporter) ExportDaily(results []domain.TradeResult, date time.Time, outputDir string) (string, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	filtered := Filter(results, Options{Since: day, Until: day.Add(24 * time.Hour)})
	if len(filtered) == 0 {
		e.logger.Info("No trades for daily report", zap.Time("date", day))
		return "", nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(outputDir, fmt.Sprintf("daily_report_%s.json", day.Format("20060102")))
	report := DailyReport{
		Date:    day,
		Summary: Summarize(filtered),
		Hourly:  hourly(filtered),
		Trades:  filtered,
	}
	if err := writeJSON(path, report); err != nil {
		return "", err
	}

	e.logger.Info("📤 Daily report exported",
		zap.String("file", path),
		zap.Int("trades", len(filtered)))
	return path, nil
}

func hourly(results []domain.TradeResult) []HourlyStats {
	byHour := make(map[int]*HourlyStats)
	for _, r := range results {
		h := r.SubmittedAt.UTC().Hour()
		st, ok := byHour[h]
		if !ok {
			st = &HourlyStats{Hour: h, Volume: decimal.Zero}
			byHour[h] = st
		}
		st.Trades++
		switch r.Order.Direction {
		case domain.DirectionBuy:
			st.Buys++
			if r.Order.InputMint == domain.SOLMint {
				st.Volume = st.Volume.Add(r.InAmount)
			}
		case domain.DirectionSell:
			st.Sells++
			if r.Order.OutputMint == domain.SOLMint {
				st.Volume = st.Volume.Add(r.OutAmount)
			}
		}
	}

	out := make([]HourlyStats, 0, len(byHour))
	for h := 0; h < 24; h++ {
		if st, ok := byHour[h]; ok {
			out = append(out, *st)
		}
	}
	return out
}
