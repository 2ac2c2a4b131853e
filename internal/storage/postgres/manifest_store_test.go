package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/comic-archive-crawler/internal/crawler"
)

func TestRecordUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewManifestStoreWithPool(mock, "downloads")
	require.NoError(t, err)

	rec := crawler.DownloadRecord{
		RunID:      "0190c8a2-7b7e-7000-8000-000000000001",
		SourceURL:  "http://images.ucomics.com/comics/ga/1978/ga780619.gif",
		Path:       "garfield/1978/06/19.gif",
		Status:     crawler.OutcomeDownloaded,
		Bytes:      1234,
		RecordedAt: time.Unix(1700000000, 0).UTC(),
	}

	mock.ExpectExec("INSERT INTO downloads").
		WithArgs(
			rec.Path,
			rec.RunID,
			rec.SourceURL,
			"downloaded",
			rec.Bytes,
			rec.ErrorText,
			rec.RecordedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Record(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewManifestStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO downloads").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("db down"))

	err = store.Record(context.Background(), crawler.DownloadRecord{Path: "p", Status: crawler.OutcomeFailed})
	require.ErrorContains(t, err, "insert manifest row: db down")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManifestStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewManifestStoreWithPool(nil, "downloads")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewManifestStoreWithPool(mock, "downloads; DROP TABLE x")
	require.ErrorContains(t, err, "invalid table name")

	store, err := NewManifestStoreWithPool(mock, "downloads")
	require.NoError(t, err)
	require.ErrorContains(t, store.Record(context.Background(), crawler.DownloadRecord{}), "path is required")

	var nilStore *ManifestStore
	require.Error(t, nilStore.Record(context.Background(), crawler.DownloadRecord{Path: "p"}))
	nilStore.Close()

	_, err = NewManifestStore(context.Background(), ManifestStoreConfig{})
	require.ErrorContains(t, err, "manifest.dsn is required")
}
