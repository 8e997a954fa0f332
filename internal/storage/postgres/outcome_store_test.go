package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/proceedings-harvester/internal/crawler"
)

func TestRecordOutcomesInsertsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewOutcomeStoreWithPool(mock, "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	outcomes := []crawler.DownloadOutcome{
		{
			Key:       "Paper_A_1.pdf",
			Success:   true,
			Title:     "Paper A",
			SourceURL: "https://papers.example.org/a.pdf",
			URI:       "file:///out/Paper_A_1.pdf",
			Bytes:     10,
			SHA256:    "abc",
			Partition: 2021,
			At:        now,
		},
		{Key: "Paper B", Reason: "no valid document found", Title: "Paper B", Partition: 2021, At: now},
	}

	for _, o := range outcomes {
		mock.ExpectExec("INSERT INTO harvest_outcomes").
			WithArgs("run-1", o.Key, o.Success, o.Reason, o.Title, o.SourceURL, o.URI, o.Bytes, o.SHA256, o.Partition, o.At).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	require.NoError(t, store.RecordOutcomes(context.Background(), "run-1", outcomes))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordOutcomesPropagatesErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewOutcomeStoreWithPool(mock, "ledger")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO ledger_outcomes").WillReturnError(errors.New("connection lost"))

	err = store.RecordOutcomes(context.Background(), "run-1", []crawler.DownloadOutcome{{Key: "k"}})
	require.ErrorContains(t, err, "connection lost")
	require.ErrorContains(t, err, `"k"`)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRunUpserts(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewOutcomeStoreWithPool(mock, "harvest")
	require.NoError(t, err)

	run := crawler.RunRecord{
		ID:         "run-1",
		State:      "Completed",
		StartedAt:  time.Unix(1700000000, 0).UTC(),
		FinishedAt: time.Unix(1700000600, 0).UTC(),
		Items:      2,
		Succeeded:  1,
		Failed:     1,
	}
	mock.ExpectExec("INSERT INTO harvest_runs").
		WithArgs(run.ID, run.State, run.StartedAt, run.FinishedAt, run.Items, run.Succeeded, run.Failed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordRun(context.Background(), run))
	require.Error(t, store.RecordRun(context.Background(), crawler.RunRecord{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateCreatesTables(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewOutcomeStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS harvest_runs").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS harvest_outcomes").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewOutcomeStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewOutcomeStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewOutcomeStoreWithPool(mock, "bad-name;")
	require.ErrorContains(t, err, "invalid table prefix")

	_, err = NewOutcomeStore(context.Background(), OutcomeStoreConfig{})
	require.ErrorContains(t, err, "db.dsn is required")
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewOutcomeStoreWithPool(mock, "")
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	finished := started.Add(10 * time.Minute)
	columns := []string{"id", "state", "started_at", "finished_at", "items", "succeeded", "failed"}
	mock.ExpectQuery("SELECT id, state, started_at").
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(columns).AddRow("run-1", "completed", started, finished, 4, 7, 1))
	mock.ExpectQuery("SELECT id, state, started_at").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(columns))

	run, err := store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, crawler.RunRecord{
		ID:         "run-1",
		State:      "completed",
		StartedAt:  started,
		FinishedAt: finished,
		Items:      4,
		Succeeded:  7,
		Failed:     1,
	}, run)

	_, err = store.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, crawler.ErrRunNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewOutcomeStoreWithPool(mock, "")
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("FROM harvest_runs ORDER BY started_at DESC").
		WithArgs(10, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "state", "started_at", "finished_at", "items", "succeeded", "failed"}).
			AddRow("run-2", "timed_out", started.Add(time.Hour), started.Add(2*time.Hour), 3, 1, 2).
			AddRow("run-1", "completed", started, started.Add(time.Minute), 1, 1, 0))

	runs, err := store.ListRuns(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-2", runs[0].ID)
	require.Equal(t, "timed_out", runs[0].State)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListOutcomes(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewOutcomeStoreWithPool(mock, "")
	require.NoError(t, err)

	at := time.Unix(1700000000, 0).UTC()
	columns := []string{"key", "success", "reason", "title", "source_url", "uri", "bytes", "sha256", "partition", "recorded_at"}
	mock.ExpectQuery("FROM harvest_outcomes WHERE run_id").
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow("Paper B", false, "no valid document found", "Paper B", "", "", int64(0), "", 2021, at).
			AddRow("Paper_A_1.pdf", true, "", "Paper A", "https://papers.example.org/a.pdf", "file:///out/Paper_A_1.pdf", int64(10), "abc", 2021, at))
	mock.ExpectQuery("FROM harvest_outcomes WHERE run_id").
		WithArgs("run-2").
		WillReturnError(errors.New("connection reset"))

	outcomes, err := store.ListOutcomes(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	require.False(t, outcomes[0].Success)
	require.Equal(t, "no valid document found", outcomes[0].Reason)
	require.Equal(t, int64(10), outcomes[1].Bytes)
	require.Equal(t, at, outcomes[1].At)

	_, err = store.ListOutcomes(context.Background(), "run-2")
	require.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewOutcomeStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(errors.New("down"))
	require.ErrorContains(t, store.Ping(context.Background()), "down")
	require.NoError(t, mock.ExpectationsWereMet())
}
