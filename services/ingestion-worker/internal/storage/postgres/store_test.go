package postgres

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"

	_ "github.com/lib/pq"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupStore(t *testing.T) (*Store, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.RunContainer(ctx,
		tcpostgres.WithDatabase("content_service"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		tcpostgres.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connString)
	require.NoError(t, err)

	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "..", "..", "..", "..", "..")
	migrationsDir := filepath.Join(projectRoot, "services", "content-service", "migrations", "sql")

	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(db, migrationsDir))

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)

	store := NewStoreFromPool(pool)

	cleanup := func() {
		store.Close()
		_ = db.Close()
		require.NoError(t, container.Terminate(ctx))
	}

	return store, cleanup
}

func mustInsertDocument(t *testing.T, store *Store, status string) uuid.UUID {
	t.Helper()
	orgID := uuid.New()
	documentID := uuid.New()
	_, err := store.pool.Exec(context.Background(), `
		INSERT INTO documents (id, org_id, filename, content_type, storage_key, status)
		VALUES ($1, $2, 'report.pdf', 'application/pdf', 'org/doc.pdf', $3)
	`, documentID, orgID, status)
	require.NoError(t, err)
	return documentID
}

func TestMarkProcessingTransitionsPendingToProcessing(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	documentID := mustInsertDocument(t, store, "uploaded")

	skip, err := store.MarkProcessing(context.Background(), documentID)
	require.NoError(t, err)
	assert.False(t, skip)

	doc, err := store.GetDocument(context.Background(), documentID)
	require.NoError(t, err)
	assert.Equal(t, "processing", doc.Status)
}

func TestMarkProcessingSkipsAlreadyCompletedDocument(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	documentID := mustInsertDocument(t, store, "completed")

	skip, err := store.MarkProcessing(context.Background(), documentID)
	require.NoError(t, err)
	assert.True(t, skip)

	doc, err := store.GetDocument(context.Background(), documentID)
	require.NoError(t, err)
	assert.Equal(t, "completed", doc.Status)
}

func TestMarkCompletedWritesChunksCount(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	documentID := mustInsertDocument(t, store, "processing")

	require.NoError(t, store.MarkCompleted(context.Background(), documentID, 42))

	doc, err := store.GetDocument(context.Background(), documentID)
	require.NoError(t, err)
	assert.Equal(t, "completed", doc.Status)
}

func TestMarkFailedTruncatesLongErrorMessages(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	documentID := mustInsertDocument(t, store, "processing")

	longMessage := make([]byte, 2000)
	for i := range longMessage {
		longMessage[i] = 'x'
	}

	require.NoError(t, store.MarkFailed(context.Background(), documentID, "PARSE_FAILED", string(longMessage)))

	doc, err := store.GetDocument(context.Background(), documentID)
	require.NoError(t, err)
	assert.Equal(t, "failed", doc.Status)
	assert.Equal(t, 1, doc.RetryCount)
}

func TestGetDocumentReturnsErrNotFoundForMissingRow(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	_, err := store.GetDocument(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
