package pipeline

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/choropleth/internal/config"
	"github.com/sells-group/choropleth/internal/crs"
	"github.com/sells-group/choropleth/internal/measure"
	"github.com/sells-group/choropleth/internal/model"
	"github.com/sells-group/choropleth/internal/region"
)

// Options tunes a pipeline run.
type Options struct {
	// Reproject converts the map table to WGS 84, as the interactive renderer needs.
	Reproject bool
	// Client downloads remote boundary archives. Nil uses a client with the configured
	// download timeout.
	Client *http.Client
}

// StageResult records one completed stage.
type StageResult struct {
	Name     string        `json:"name"`
	Rows     int           `json:"rows"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of a run: the map table plus what happened on the way.
type Result struct {
	Regions  int             `json:"regions"`
	Measures int             `json:"measures"`
	Map      *model.GeoFrame `json:"-"`
	Report   JoinReport      `json:"join"`
	Stages   []StageResult   `json:"stages"`
}

// Run loads boundaries and measurements, joins them regions-first, applies the
// configured filter and optionally reprojects. Failures carry the failing stage.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	res := &Result{}
	track := func(name string, start time.Time, rows int) {
		d := time.Since(start)
		res.Stages = append(res.Stages, StageResult{Name: name, Rows: rows, Duration: d})
		zap.L().Debug("pipeline: stage complete",
			zap.String("stage", name),
			zap.Int("rows", rows),
			zap.Duration("duration", d),
		)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: time.Duration(cfg.Boundary.DownloadTimeoutSecs) * time.Second}
	}

	start := time.Now()
	regions, err := region.Load(ctx, region.Options{
		Path:     cfg.Boundary.Path,
		IDColumn: cfg.Boundary.IDColumn,
		Columns:  cfg.Boundary.Columns,
		CRS:      cfg.Boundary.CRS,
		TempDir:  cfg.TempDir,
		Client:   client,
	})
	if err != nil {
		return nil, model.AtStage(model.StageBoundaries, err)
	}
	res.Regions = regions.Len()
	track(model.StageBoundaries, start, regions.Len())

	start = time.Now()
	measures, err := measure.Load(ctx, measure.Options{
		Path:       cfg.Attributes.Path,
		KeyColumn:  cfg.Attributes.KeyColumn,
		RenameTo:   cfg.KeyName(),
		Columns:    cfg.Attributes.Columns,
		Sheet:      cfg.Attributes.Sheet,
		SheetIndex: cfg.Attributes.SheetIndex,
		Delimiter:  cfg.Attributes.DelimiterRune(),
		SkipRows:   cfg.Attributes.SkipRows,
	})
	if err != nil {
		return nil, model.AtStage(model.StageAttributes, err)
	}
	res.Measures = measures.Len()
	track(model.StageAttributes, start, measures.Len())

	start = time.Now()
	m, report, err := Join(regions, measures)
	res.Report = report
	if err != nil {
		return nil, model.AtStage(model.StageJoin, err)
	}
	track(model.StageJoin, start, m.Len())

	if cfg.Filter.Column != "" {
		start = time.Now()
		m, err = Filter(m, Predicate{
			Column:          cfg.Filter.Column,
			Values:          cfg.Filter.Values,
			CaseInsensitive: cfg.Filter.CaseInsensitive,
		})
		if err != nil {
			return nil, model.AtStage(model.StageFilter, err)
		}
		track(model.StageFilter, start, m.Len())
	}

	if opts.Reproject {
		start = time.Now()
		m, err = crs.Reproject(m)
		if err != nil {
			return nil, model.AtStage(model.StageReproject, err)
		}
		track(model.StageReproject, start, m.Len())
	}

	res.Map = m
	return res, nil
}
