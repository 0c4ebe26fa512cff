package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"github.com/username/lotledger/backend/src/logger"
	"github.com/username/lotledger/backend/src/metrics"
	"github.com/username/lotledger/backend/src/models"
	"github.com/username/lotledger/backend/src/parsers"
	"github.com/username/lotledger/backend/src/processors"
	"github.com/username/lotledger/backend/src/utils"
)

const (
	DefaultReportExpiration = 30 * time.Minute
	CacheCleanupInterval    = 30 * time.Minute
	DefaultStatementColumns = 17
)

// StatementOptions configures the statement pipeline.
type StatementOptions struct {
	Columns   int
	Timeout   time.Duration
	ReportTTL time.Duration
	TaxRate   decimal.Decimal
	Countries *utils.CountryDirectory
}

type statementServiceImpl struct {
	matcher           processors.Reconciler
	cashProcessor     processors.CashProcessor
	dividendProcessor processors.DividendProcessor
	reportCache       *cache.Cache
	opts              StatementOptions
}

func NewStatementService(
	matcher processors.Reconciler,
	cashProcessor processors.CashProcessor,
	dividendProcessor processors.DividendProcessor,
	reportCache *cache.Cache,
	opts StatementOptions,
) StatementService {
	if opts.Columns <= 0 {
		opts.Columns = DefaultStatementColumns
	}
	if opts.ReportTTL <= 0 {
		opts.ReportTTL = DefaultReportExpiration
	}
	return &statementServiceImpl{
		matcher:           matcher,
		cashProcessor:     cashProcessor,
		dividendProcessor: dividendProcessor,
		reportCache:       reportCache,
		opts:              opts,
	}
}

// ProcessStatement runs one statement through the pipeline and caches the
// report. Row and resolution problems end up in the report's issues; only an
// unreadable or empty statement is an error.
func (s *statementServiceImpl) ProcessStatement(ctx context.Context, r io.Reader, source string) (*StatementReport, error) {
	start := time.Now()
	id := uuid.NewString()
	log := logger.FromContext(ctx).With("statementID", id, "source", source)
	log.Info("ProcessStatement START")

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	brokerParsers, err := parsers.GetParsers(source, s.opts.Countries)
	if err != nil {
		metrics.StatementsProcessed.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	rows, err := parsers.ReadStatement(r, s.opts.Columns)
	if err != nil {
		metrics.StatementsProcessed.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	diag := &models.Diagnostics{}
	sections := parsers.SplitSections(rows, diag)
	if len(sections) == 0 {
		metrics.StatementsProcessed.WithLabelValues("empty").Inc()
		return nil, ErrEmptyStatement
	}

	report := &StatementReport{ID: id, ProcessedAt: time.Now().UTC(), Source: brokerName(source)}
	agg := processors.NewCategoryAggregator()

	for _, section := range sections {
		if section.Name == brokerParsers.TradesSection {
			orders := brokerParsers.NewAssembler(diag).Assemble(section)
			for _, order := range orders {
				disposals := s.matcher.Reconcile(ctx, order, diag)
				for i := range disposals {
					s.attribute(log, agg, &disposals[i])
				}
				report.Disposals = append(report.Disposals, disposals...)
			}
			continue
		}

		records, ok := brokerParsers.Cash.Parse(section, diag)
		if !ok {
			log.Debug("Ignoring section", "section", section.Name, "rows", len(section.Rows))
			continue
		}
		converted := s.cashProcessor.Convert(ctx, records, diag)
		for i := range converted {
			rec := &converted[i]
			s.attribute(log, agg, rec)
			switch rec.Kind {
			case models.CashFee:
				report.Fees = append(report.Fees, *rec)
			case models.CashDividend:
				report.Dividends = append(report.Dividends, *rec)
			case models.CashWithholdingTax:
				report.WithholdingTaxes = append(report.WithholdingTaxes, *rec)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		log.Warn("Statement deadline reached, unresolved values are flagged", "error", err)
	}

	report.Totals = agg.Totals()
	report.Issues = diag.Issues()
	report.Summary = s.summarize(report)

	s.reportCache.Set(id, report, s.opts.ReportTTL)
	metrics.StatementsProcessed.WithLabelValues("ok").Inc()
	metrics.StatementDuration.Observe(time.Since(start).Seconds())
	log.Info("ProcessStatement END",
		"sections", len(sections),
		"disposals", report.Summary.Disposals,
		"flaggedDisposals", report.Summary.FlaggedDisposals,
		"issues", len(report.Issues),
		"duration", time.Since(start))
	return report, nil
}

func (s *statementServiceImpl) attribute(log *slog.Logger, agg *processors.CategoryAggregator, record models.Attributable) {
	category, err := processors.CategoryOf(record)
	if err == nil {
		err = agg.Attribute(category, record)
	}
	if err != nil {
		log.Error("Record not attributed to a tax category", "error", err)
		return
	}
	if d, ok := record.(*models.MatchedDisposal); ok {
		metrics.DisposalsEmitted.WithLabelValues(string(category), strconv.FormatBool(d.NeedsReview)).Inc()
	}
}

func (s *statementServiceImpl) summarize(report *StatementReport) Summary {
	sum := Summary{
		GrandTotalLocal: utils.RoundMoney(report.Totals.GrandTotalLocal(), 2),
		Disposals:       len(report.Disposals),
		IssuesByKind:    make(map[models.IssueKind]int),
	}
	taxable := report.Totals[models.CategoryEquity].Local.Add(report.Totals[models.CategoryOption].Local)
	sum.TaxableGainLocal = utils.RoundMoney(taxable, 2)
	if taxable.IsPositive() {
		sum.EstimatedTax = utils.RoundMoney(taxable.Mul(s.opts.TaxRate), 2)
	}

	for _, d := range report.Disposals {
		if d.NeedsReview {
			sum.FlaggedDisposals++
		}
	}

	var cash []models.CashRecord
	cash = append(cash, report.Fees...)
	cash = append(cash, report.Dividends...)
	cash = append(cash, report.WithholdingTaxes...)
	sum.CashRecords = len(cash)
	for _, c := range cash {
		if c.NeedsReview {
			sum.FlaggedCashRecords++
		}
	}
	sum.DividendsByCountry = s.dividendProcessor.CalculateTaxSummary(cash)

	for _, is := range report.Issues {
		sum.IssuesByKind[is.Kind]++
	}
	return sum
}

func (s *statementServiceImpl) GetReport(id string) (*StatementReport, error) {
	if cached, found := s.reportCache.Get(id); found {
		logger.L.Debug("Cache hit for report", "statementID", id)
		return cached.(*StatementReport), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
}

func brokerName(source string) string {
	if name := strings.ToLower(strings.TrimSpace(source)); name != "" {
		return name
	}
	return "ibkr"
}
