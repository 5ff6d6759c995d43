package export

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/pneus/backend/internal/tires"
	"go.uber.org/zap"
)

var errMissingSource = errors.New("export: tire source is required")

// Source reads the records an export renders.
type Source interface {
	GetMonth(ctx context.Context, monthID tires.MonthID) (tires.Month, error)
	ListTiresByNumber(ctx context.Context, monthID tires.MonthID) ([]tires.Tire, error)
}

// Observer is notified of finished and failed exports.
type Observer interface {
	ExportCompleted(layout string, tireCount int)
	ExportFailed(layout string)
}

type noOpObserver struct{}

func (noOpObserver) ExportCompleted(string, int) {}
func (noOpObserver) ExportFailed(string)         {}

// Config wires an Exporter.
type Config struct {
	Source   Source
	Location *time.Location
	Clock    func() time.Time
	Logger   *zap.Logger
	Observer Observer
}

// Exporter fetches a month with its tires and renders the requested layout.
type Exporter struct {
	source   Source
	location *time.Location
	clock    func() time.Time
	logger   *zap.Logger
	observer Observer
}

// NewExporter validates the configuration.
func NewExporter(cfg Config) (*Exporter, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var observer Observer = noOpObserver{}
	if cfg.Observer != nil {
		observer = cfg.Observer
	}
	return &Exporter{
		source:   cfg.Source,
		location: location,
		clock:    clock,
		logger:   logger,
		observer: observer,
	}, nil
}

// Export renders the month. Any fetch failure aborts the whole export.
func (e *Exporter) Export(ctx context.Context, monthID tires.MonthID, layout Layout, responsible string) (Artifact, error) {
	artifact, err := e.render(ctx, monthID, layout, responsible)
	if err != nil {
		e.observer.ExportFailed(string(layout))
		if !errors.Is(err, ErrNothingToExport) {
			e.logger.Error("export failed",
				zap.String("mes_id", monthID.String()),
				zap.String("layout", string(layout)),
				zap.Error(err))
		}
		return Artifact{}, err
	}
	e.observer.ExportCompleted(string(layout), artifact.TireCount)
	e.logger.Info("month exported",
		zap.String("mes_id", monthID.String()),
		zap.String("layout", string(layout)),
		zap.String("arquivo", artifact.Filename),
		zap.Int("pneus", artifact.TireCount))
	return artifact, nil
}

func (e *Exporter) render(ctx context.Context, monthID tires.MonthID, layout Layout, responsible string) (Artifact, error) {
	if layout != LayoutReport && layout != LayoutTable {
		return Artifact{}, ErrUnknownLayout
	}
	month, err := e.source.GetMonth(ctx, monthID)
	if err != nil {
		return Artifact{}, err
	}
	records, err := e.source.ListTiresByNumber(ctx, monthID)
	if err != nil {
		return Artifact{}, err
	}
	if layout == LayoutTable {
		return RenderTable(month, records)
	}
	return RenderReport(month, records, e.clock().In(e.location), responsible), nil
}
