package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/skinquant/internal/backtest"
	"github.com/newthinker/skinquant/internal/collector"
	"github.com/newthinker/skinquant/internal/core"
	"github.com/newthinker/skinquant/internal/storage/archive"
	"github.com/newthinker/skinquant/internal/storage/signal"
	"github.com/newthinker/skinquant/internal/strategy"
	"github.com/newthinker/skinquant/internal/strategy/trendvote"
)

// ReportKind is the archive kind of analysis reports.
const ReportKind = "analysis"

// warmupDays of history are loaded ahead of the live window so that the
// trend labels are defined on its first bar.
const warmupDays = 90

// Recorder receives run outcomes. *metrics.Registry satisfies it.
type Recorder interface {
	RecordBacktest(status string, duration float64)
	RecordOptimization(status string, duration float64, evaluated, skipped int)
}

// Config holds the analysis windows and optimizer settings.
type Config struct {
	OptimizeDays int
	HoldoutDays  int
	LiveDays     int
	Optimizer    backtest.OptimizerConfig
	SearchSpace  backtest.SearchSpace
	Timeout      time.Duration
}

// Window is a closed time range.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Analysis is the outcome of one optimise-then-replay run.
type Analysis struct {
	Symbol         string                       `json:"symbol"`
	GeneratedAt    time.Time                    `json:"generated_at"`
	OptimizeWindow Window                       `json:"optimize_window"`
	LiveWindow     Window                       `json:"live_window"`
	Optimization   *backtest.OptimizationResult `json:"optimization"`
	Live           *backtest.Result             `json:"live"`
	Annotations    []trendvote.Annotation       `json:"annotations"`
	Signals        []core.Signal                `json:"signals"`
	ReportKey      string                       `json:"report_key,omitempty"`
}

// Analyzer tunes the bias strategy on a past window and replays the winner
// over the recent window.
type Analyzer struct {
	history    collector.HistoryProvider
	strategies *strategy.Engine
	signals    signal.Store
	reports    *archive.Reports
	recorder   Recorder
	publisher  Publisher
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithStrategies runs the engine's other strategies on the latest bar.
func WithStrategies(e *strategy.Engine) AnalyzerOption {
	return func(a *Analyzer) { a.strategies = e }
}

// WithSignalStore persists generated signals.
func WithSignalStore(s signal.Store) AnalyzerOption {
	return func(a *Analyzer) { a.signals = s }
}

// WithReports archives every analysis.
func WithReports(r *archive.Reports) AnalyzerOption {
	return func(a *Analyzer) { a.reports = r }
}

// WithRecorder reports backtest and optimization outcomes.
func WithRecorder(r Recorder) AnalyzerOption {
	return func(a *Analyzer) { a.recorder = r }
}

// Publisher forwards fresh signals to subscribers and reports how many it
// delivered.
type Publisher interface {
	Publish(ctx context.Context, signals []core.Signal) int
}

// WithPublisher hands saved signals to p after every analysis.
func WithPublisher(p Publisher) AnalyzerOption {
	return func(a *Analyzer) { a.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer creates an analyzer over a history provider.
func NewAnalyzer(history collector.HistoryProvider, cfg Config, opts ...AnalyzerOption) *Analyzer {
	if cfg.LiveDays <= 0 {
		cfg.LiveDays = 30
	}
	if cfg.OptimizeDays <= cfg.HoldoutDays {
		cfg.OptimizeDays = cfg.HoldoutDays + 90
	}
	if cfg.SearchSpace == (backtest.SearchSpace{}) {
		cfg.SearchSpace = backtest.DefaultSearchSpace()
	}

	a := &Analyzer{
		history: history,
		cfg:     cfg,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Windows returns the optimisation and live windows ending at now.
func (a *Analyzer) Windows(now time.Time) (optimize, live Window) {
	day := 24 * time.Hour
	optimize = Window{
		Start: now.Add(-time.Duration(a.cfg.OptimizeDays) * day),
		End:   now.Add(-time.Duration(a.cfg.HoldoutDays) * day),
	}
	live = Window{
		Start: now.Add(-time.Duration(a.cfg.LiveDays) * day),
		End:   now,
	}
	return optimize, live
}

// Backtest simulates params over the symbol's history in [start, end].
func (a *Analyzer) Backtest(ctx context.Context, symbol string, start, end time.Time, params backtest.Params) (*backtest.Result, error) {
	began := a.now()
	res, err := backtest.New(a.history).Run(ctx, symbol, start, end, params)
	a.recordBacktest(err, a.now().Sub(began))
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Optimize fetches the symbol's history in [start, end] and grid-searches
// space over it. A zero space uses the configured one.
func (a *Analyzer) Optimize(ctx context.Context, symbol string, start, end time.Time, space backtest.SearchSpace, progress backtest.ProgressFunc) (*backtest.OptimizationResult, error) {
	bars, err := a.history.FetchHistory(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	return a.optimizeBars(ctx, bars, space, progress)
}

func (a *Analyzer) optimizeBars(ctx context.Context, bars []core.OHLCV, space backtest.SearchSpace, progress backtest.ProgressFunc) (*backtest.OptimizationResult, error) {
	if space == (backtest.SearchSpace{}) {
		space = a.cfg.SearchSpace
	}
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	opt := backtest.NewOptimizer(a.cfg.Optimizer, a.logger)
	if progress != nil {
		opt.OnProgress(progress)
	}

	began := a.now()
	res, err := opt.Optimize(ctx, bars, space)
	elapsed := a.now().Sub(began).Seconds()
	if a.recorder != nil {
		switch {
		case err == nil:
			a.recorder.RecordOptimization("ok", elapsed, res.Evaluated, res.Skipped)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			a.recorder.RecordOptimization("cancelled", elapsed, 0, 0)
		default:
			a.recorder.RecordOptimization("error", elapsed, 0, 0)
		}
	}
	return res, err
}

func (a *Analyzer) recordBacktest(err error, elapsed time.Duration) {
	if a.recorder == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	a.recorder.RecordBacktest(status, elapsed.Seconds())
}

// Analyze optimises over the optimisation window, replays the best params
// over the live window, and stores the signals labelled inside it.
func (a *Analyzer) Analyze(ctx context.Context, symbol string) (*Analysis, error) {
	now := a.now()
	optWin, liveWin := a.Windows(now)

	from := optWin.Start
	if warm := liveWin.Start.AddDate(0, 0, -warmupDays); warm.Before(from) {
		from = warm
	}
	bars, err := a.history.FetchHistory(ctx, symbol, from, now)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, core.Errorf(core.ErrNoData, "no bars for %s", symbol)
	}

	optBars := slice(bars, optWin)
	opt, err := a.optimizeBars(ctx, optBars, backtest.SearchSpace{}, nil)
	if err != nil {
		return nil, err
	}

	liveBars := slice(bars, liveWin)
	began := a.now()
	trace, err := backtest.Simulate(liveBars, opt.BestParams)
	a.recordBacktest(err, a.now().Sub(began))
	if err != nil {
		return nil, err
	}

	ppy := a.cfg.Optimizer.PeriodsPerYear
	if ppy <= 0 {
		ppy = backtest.DefaultPeriodsPerYear
	}
	result := &Analysis{
		Symbol:         symbol,
		GeneratedAt:    now,
		OptimizeWindow: optWin,
		LiveWindow:     liveWin,
		Optimization:   opt,
		Live: &backtest.Result{
			Symbol:    symbol,
			StartDate: liveWin.Start,
			EndDate:   liveWin.End,
			Params:    opt.BestParams,
			Trace:     trace,
			Metrics:   backtest.ComputeMetrics(trace, ppy),
			Summary:   backtest.Summarize(trace),
		},
	}

	// labels use the warm-up prefix but only live bars are reported
	actx := strategy.AnalysisContext{Symbol: symbol, Bars: bars, Now: now}
	for _, ann := range trendvote.Generate(actx.Indicators()) {
		if liveWin.contains(ann.Time) {
			result.Annotations = append(result.Annotations, ann)
		}
	}
	result.Signals = trendvote.Signals(symbol, result.Annotations)
	for i := range result.Signals {
		result.Signals[i].Strategy = trendvote.Name
		result.Signals[i].Metadata["params"] = opt.BestParams.String()
	}

	if others := a.otherStrategies(); len(others) > 0 {
		extra, err := a.strategies.Analyze(ctx, actx, others...)
		if err != nil {
			return nil, err
		}
		result.Signals = append(result.Signals, extra...)
	}

	if a.signals != nil && len(result.Signals) > 0 {
		if err := a.signals.SaveAll(ctx, result.Signals); err != nil {
			return nil, err
		}
	}
	if a.publisher != nil && len(result.Signals) > 0 {
		a.publisher.Publish(ctx, result.Signals)
	}

	if a.reports != nil {
		key, _, err := a.reports.Save(ctx, ReportKind, symbol, result)
		if err != nil {
			a.logger.Warn("failed to archive analysis",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
		} else {
			result.ReportKey = key
		}
	}

	a.logger.Info("analysis complete",
		zap.String("symbol", symbol),
		zap.String("params", opt.BestParams.String()),
		zap.Float64("optimize_sharpe", opt.BestMetrics.Sharpe),
		zap.Float64("live_sharpe", result.Live.Metrics.Sharpe),
		zap.Int("signals", len(result.Signals)),
	)
	return result, nil
}

// otherStrategies lists registered strategies besides trendvote, which is
// already replayed over the whole live window.
func (a *Analyzer) otherStrategies() []string {
	if a.strategies == nil {
		return nil
	}
	var names []string
	for _, name := range a.strategies.Names() {
		if name != trendvote.Name {
			names = append(names, name)
		}
	}
	return names
}

// slice returns the bars whose time falls inside w.
func slice(bars []core.OHLCV, w Window) []core.OHLCV {
	var out []core.OHLCV
	for _, b := range bars {
		if w.contains(b.Time) {
			out = append(out, b)
		}
	}
	return out
}
