package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/choropleth/internal/model"
)

// SQLiteExporter writes map tables with modernc.org/sqlite. Geometry is stored as WKB in
// a geom BLOB with its EPSG code in srid.
type SQLiteExporter struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteExporter, error) {
	if dsn == "" {
		return nil, eris.New("sqlite: path is required")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteExporter{db: db}, nil
}

// quoteIdent quotes a SQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Export replaces table with the rows of m, in order.
func (s *SQLiteExporter) Export(ctx context.Context, m *model.GeoFrame, table string) (int64, error) {
	if err := checkExport(m, table); err != nil {
		return 0, err
	}
	cols := columnsOf(m)

	defs := make([]string, 0, len(cols)+2)
	names := make([]string, 0, len(cols)+2)
	for _, c := range cols {
		typ := "TEXT"
		if c.numeric {
			typ = "REAL"
		}
		defs = append(defs, quoteIdent(c.name)+" "+typ)
		names = append(names, quoteIdent(c.name))
	}
	defs = append(defs, geometryColumn+" BLOB NOT NULL", sridColumn+" INTEGER")
	names = append(names, geometryColumn, sridColumn)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
		return 0, eris.Wrap(err, "sqlite: drop table")
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return 0, eris.Wrap(err, "sqlite: create table")
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), strings.Join(names, ", "), placeholders)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	srid := m.CRS().EPSG
	var n int64
	for i := 0; i < m.Len(); i++ {
		args := make([]any, 0, len(names))
		for _, c := range cols {
			args = append(args, cell(m.Value(i, c.name), c.numeric))
		}
		blob, err := wkb.Marshal(m.Geometry(i), wkb.NDR)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: encode geometry of %q", m.Key(i))
		}
		var sridArg any
		if srid != 0 {
			sridArg = srid
		}
		args = append(args, blob, sridArg)

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert %q", m.Key(i))
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit")
	}
	zap.L().Info("sqlite: exported map table", zap.String("table", table), zap.Int64("rows", n))
	return n, nil
}

// Close closes the database.
func (s *SQLiteExporter) Close() error {
	return s.db.Close()
}
