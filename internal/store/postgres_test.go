package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostGIS(t *testing.T) (*PostGISExporter, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return NewPostGISWithPool(mock), mock
}

var simdCopyColumns = []string{"DataZone", "Council_area", "SIMD2020v2_Quintile", "SIMD2020v2_Decile", "geom_ewkb"}

func TestPostGIS_Export(t *testing.T) {
	exp, mock := newMockPostGIS(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "simd"`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE "simd" \("DataZone" TEXT, "Council_area" TEXT, "SIMD2020v2_Quintile" DOUBLE PRECISION, "SIMD2020v2_Decile" DOUBLE PRECISION, geom geometry\(Geometry, 27700\)\)`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TEMP TABLE _tmp_export_simd`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_export_simd"}, simdCopyColumns).WillReturnResult(3)
	mock.ExpectExec(`INSERT INTO "simd" .* ST_GeomFromEWKB\(geom_ewkb\) FROM _tmp_export_simd`).
		WillReturnResult(pgxmock.NewResult("INSERT", 3))
	mock.ExpectExec(`CREATE INDEX ON "simd" USING GIST`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCommit()

	n, err := exp.Export(context.Background(), simdTable(t), "simd")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_Export_StagingName(t *testing.T) {
	exp, mock := newMockPostGIS(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "SIMD 2020"`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE "SIMD 2020"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TEMP TABLE _tmp_export_simd_2020 `).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_export_simd_2020"}, simdCopyColumns).WillReturnResult(3)
	mock.ExpectExec(`INSERT INTO "SIMD 2020"`).WillReturnResult(pgxmock.NewResult("INSERT", 3))
	mock.ExpectExec(`CREATE INDEX`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCommit()

	_, err := exp.Export(context.Background(), simdTable(t), "SIMD 2020")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_Export_BeginError(t *testing.T) {
	exp, mock := newMockPostGIS(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	_, err := exp.Export(context.Background(), simdTable(t), "simd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}

func TestPostGIS_Export_CopyErrorRollsBack(t *testing.T) {
	exp, mock := newMockPostGIS(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_export_simd"}, simdCopyColumns).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := exp.Export(context.Background(), simdTable(t), "simd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO _tmp_export_simd")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_Export_DDLError(t *testing.T) {
	exp, mock := newMockPostGIS(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New(`type "geometry" does not exist`))
	mock.ExpectRollback()

	_, err := exp.Export(context.Background(), simdTable(t), "simd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_Export_NilMap(t *testing.T) {
	exp, mock := newMockPostGIS(t)

	_, err := exp.Export(context.Background(), nil, "simd")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFirstWords(t *testing.T) {
	assert.Equal(t, "create temp table", firstWords("CREATE TEMP TABLE x (a TEXT)"))
	assert.Equal(t, "drop", firstWords("DROP"))
}
