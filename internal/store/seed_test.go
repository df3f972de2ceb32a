package store

import (
	"context"
	"errors"
	"testing"

	"cooling-towers/internal/tile"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	seedCountSQL = `SELECT COUNT\(1\) FROM tile_index\s+WHERE col_num >= \$1`
	seedStageSQL = `CREATE TEMP TABLE tile_index_seed`
	seedCopySQL  = `COPY "tile_index_seed" \("col_num", "row_num", "lon", "lat"\) FROM STDIN`
	seedMergeSQL = `INSERT INTO tile_index \(col_num, row_num, lon, lat\)\s+SELECT .* FROM tile_index_seed\s+ON CONFLICT \(col_num, row_num\) DO NOTHING`
)

func withSeedBatch(t *testing.T, n int) {
	t.Helper()
	old := SeedBatch
	SeedBatch = n
	t.Cleanup(func() { SeedBatch = old })
}

func TestSeedIndexCopiesEveryOtherCell(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(seedCountSQL).WithArgs(0, 4, 0, 2).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectBegin()
	mock.ExpectExec(seedStageSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare(seedCopySQL)
	prep.ExpectExec().WithArgs(0, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(2, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(seedMergeSQL).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ext := tile.Extent{MinCol: 0, MaxCol: 4, MinRow: 0, MaxRow: 2, Step: 2}
	n, err := SeedIndex(context.Background(), s.DB(), ext, tile.Zoom)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedIndexSkipsWhenComplete(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(seedCountSQL).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tile.UtahExtent.Count()))

	n, err := SeedIndex(context.Background(), s.DB(), tile.UtahExtent, tile.Zoom)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedIndexResumesPartialSeed(t *testing.T) {
	s, mock := newMock(t)
	// 上次只提交了第一格；重跑时两格都送入临时表，合并只新增缺失的一格
	mock.ExpectQuery(seedCountSQL).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec(seedStageSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare(seedCopySQL)
	prep.ExpectExec().WithArgs(0, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(2, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(seedMergeSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ext := tile.Extent{MinCol: 0, MaxCol: 4, MinRow: 0, MaxRow: 2, Step: 2}
	n, err := SeedIndex(context.Background(), s.DB(), ext, tile.Zoom)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedIndexReportsOnlyCommittedRows(t *testing.T) {
	withSeedBatch(t, 2)
	s, mock := newMock(t)
	mock.ExpectQuery(seedCountSQL).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	mock.ExpectBegin()
	mock.ExpectExec(seedStageSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare(seedCopySQL)
	prep.ExpectExec().WithArgs(0, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(0, 2, sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(seedMergeSQL).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec(seedStageSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	prep = mock.ExpectPrepare(seedCopySQL)
	prep.ExpectExec().WithArgs(2, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs(2, 2, sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	ext := tile.Extent{MinCol: 0, MaxCol: 4, MinRow: 0, MaxRow: 4, Step: 2}
	n, err := SeedIndex(context.Background(), s.DB(), ext, tile.Zoom)
	require.Error(t, err)
	assert.Equal(t, int64(2), n, "rolled-back batch not counted")
	assert.NoError(t, mock.ExpectationsWereMet())
}
