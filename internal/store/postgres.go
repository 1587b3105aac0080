package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/choropleth/internal/model"
)

// Pool is the subset of pgxpool.Pool the exporter uses. pgxmock pools satisfy it.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostGISExporter writes map tables to PostgreSQL with a PostGIS geometry column.
type PostGISExporter struct {
	pool Pool
}

// NewPostGIS connects to the database at connString.
func NewPostGIS(ctx context.Context, connString string) (*PostGISExporter, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostGISExporter{pool: pool}, nil
}

// NewPostGISWithPool wraps an existing pool.
func NewPostGISWithPool(pool Pool) *PostGISExporter {
	return &PostGISExporter{pool: pool}
}

// Export replaces table with the rows of m. Rows are COPYed into a temporary staging
// table as EWKB and converted to geometry on insert.
func (p *PostGISExporter) Export(ctx context.Context, m *model.GeoFrame, table string) (int64, error) {
	if err := checkExport(m, table); err != nil {
		return 0, err
	}
	cols := columnsOf(m)
	srid := m.CRS().EPSG
	target := pgx.Identifier{table}.Sanitize()
	staging := "_tmp_export_" + strings.ToLower(strings.Map(identRune, table))

	defs := make([]string, 0, len(cols))
	names := make([]string, 0, len(cols))
	copyCols := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		typ := "TEXT"
		if c.numeric {
			typ = "DOUBLE PRECISION"
		}
		quoted := pgx.Identifier{c.name}.Sanitize()
		defs = append(defs, quoted+" "+typ)
		names = append(names, quoted)
		copyCols = append(copyCols, c.name)
	}
	copyCols = append(copyCols, "geom_ewkb")

	rows := make([][]any, m.Len())
	for i := 0; i < m.Len(); i++ {
		row := make([]any, 0, len(copyCols))
		for _, c := range cols {
			row = append(row, cell(m.Value(i, c.name), c.numeric))
		}
		g, err := withSRID(m.Geometry(i), srid)
		if err != nil {
			return 0, err
		}
		blob, err := ewkb.Marshal(g, ewkb.NDR)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: encode geometry of %q", m.Key(i))
		}
		rows[i] = append(row, blob)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	colList := strings.Join(names, ", ")
	stmts := []string{
		"DROP TABLE IF EXISTS " + target,
		fmt.Sprintf("CREATE TABLE %s (%s, geom geometry(Geometry, %d))", target, strings.Join(defs, ", "), srid),
		fmt.Sprintf("CREATE TEMP TABLE %s (%s, geom_ewkb BYTEA) ON COMMIT DROP", staging, strings.Join(defs, ", ")),
	}
	for _, sql := range stmts {
		if _, err := tx.Exec(ctx, sql); err != nil {
			return 0, eris.Wrapf(err, "postgres: %s", firstWords(sql))
		}
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, copyCols, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: COPY INTO %s", staging)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s, geom) SELECT %s, ST_GeomFromEWKB(geom_ewkb) FROM %s",
		target, colList, colList, staging)
	if _, err := tx.Exec(ctx, insert); err != nil {
		return 0, eris.Wrap(err, "postgres: insert from staging")
	}
	index := fmt.Sprintf("CREATE INDEX ON %s USING GIST (geom)", target)
	if _, err := tx.Exec(ctx, index); err != nil {
		return 0, eris.Wrap(err, "postgres: create spatial index")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit")
	}
	zap.L().Info("postgres: exported map table",
		zap.String("table", table), zap.Int64("rows", n), zap.Int("srid", srid))
	return n, nil
}

// Close closes the pool.
func (p *PostGISExporter) Close() error {
	p.pool.Close()
	return nil
}

func identRune(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return r
	default:
		return '_'
	}
}

// firstWords names a DDL statement in errors.
func firstWords(sql string) string {
	f := strings.Fields(sql)
	if len(f) > 3 {
		f = f[:3]
	}
	return strings.ToLower(strings.Join(f, " "))
}
