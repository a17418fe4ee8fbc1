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
	projectRoot := filepath.Join(filepath.Dir(filename), "..", "..", "..", "..")
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

func mustCreateDocument(t *testing.T, store *Store, orgID uuid.UUID) Document {
	t.Helper()
	doc, err := store.CreateDocument(context.Background(), CreateDocumentParams{
		ID:                uuid.New(),
		OrgID:             orgID,
		UploaderUserID:    uuid.New(),
		Filename:          "report.pdf",
		SanitizedFilename: "report.pdf",
		ContentType:       "application/pdf",
		FileSize:          1024,
		StorageKey:        orgID.String() + "/documents/whatever.pdf",
	})
	require.NoError(t, err)
	return doc
}

func TestCreateAndGetDocument(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	orgID := uuid.New()
	doc := mustCreateDocument(t, store, orgID)
	require.Equal(t, StatusPending, doc.Status)
	require.Equal(t, int64(1), doc.Version)

	got, err := store.GetDocument(context.Background(), orgID, doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc.ID, got.ID)

	_, err = store.GetDocument(context.Background(), uuid.New(), doc.ID)
	require.ErrorIs(t, err, ErrNotFound, "a document must not be visible to another org")
}

func TestGetDocumentByIDIgnoresOrgScope(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	orgID := uuid.New()
	doc := mustCreateDocument(t, store, orgID)

	got, err := store.GetDocumentByID(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, orgID, got.OrgID)
}

func TestMarkUploadedTransitionsOnlyFromPending(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	orgID := uuid.New()
	doc := mustCreateDocument(t, store, orgID)

	require.NoError(t, store.MarkUploaded(context.Background(), doc.ID))
	got, err := store.GetDocument(context.Background(), orgID, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusUploaded, got.Status)

	// idempotent: a second call on an already-uploaded document must not error.
	require.NoError(t, store.MarkUploaded(context.Background(), doc.ID))
}

func TestUpdateStatusProcessingSkipsCompleted(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	orgID := uuid.New()
	doc := mustCreateDocument(t, store, orgID)
	require.NoError(t, store.CompleteDocument(context.Background(), doc.ID, 7))

	require.NoError(t, store.UpdateStatusProcessing(context.Background(), doc.ID))

	got, err := store.GetDocument(context.Background(), orgID, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status, "a completed document must not regress to processing")
}

func TestCompleteDocumentSetsChunksAndProcessedAt(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	orgID := uuid.New()
	doc := mustCreateDocument(t, store, orgID)
	require.NoError(t, store.CompleteDocument(context.Background(), doc.ID, 12))

	got, err := store.GetDocument(context.Background(), orgID, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.ChunksCount)
	require.Equal(t, 12, *got.ChunksCount)
	require.NotNil(t, got.ProcessedAt)
}

func TestFailDocumentBumpsRetryCount(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	orgID := uuid.New()
	doc := mustCreateDocument(t, store, orgID)

	require.NoError(t, store.FailDocument(context.Background(), doc.ID, "parse error", "PARSE_FAILED"))
	got, err := store.GetDocument(context.Background(), orgID, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.ErrorMessage)
	require.Equal(t, "parse error", *got.ErrorMessage)
}

func TestSoftDeleteDocumentIsTenantScopedAndNotDoubleDeletable(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	orgID := uuid.New()
	doc := mustCreateDocument(t, store, orgID)

	_, err := store.SoftDeleteDocument(context.Background(), uuid.New(), doc.ID)
	require.ErrorIs(t, err, ErrNotFound, "cannot delete a document belonging to another org")

	storageKey, err := store.SoftDeleteDocument(context.Background(), orgID, doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc.StorageKey, storageKey)

	_, err = store.GetDocument(context.Background(), orgID, doc.ID)
	require.ErrorIs(t, err, ErrNotFound, "a soft-deleted document must not be visible")

	_, err = store.SoftDeleteDocument(context.Background(), orgID, doc.ID)
	require.ErrorIs(t, err, ErrNotFound, "deleting an already-deleted document must not succeed twice")
}

func TestListDocumentsFiltersSortsAndPaginates(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	orgID := uuid.New()
	first := mustCreateDocument(t, store, orgID)
	second := mustCreateDocument(t, store, orgID)
	require.NoError(t, store.CompleteDocument(context.Background(), second.ID, 3))

	docs, total, err := store.ListDocuments(context.Background(), orgID, ListFilter{
		SortField: "uploaded_at", SortDir: "asc", Limit: 10,
	})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, docs, 2)
	require.Equal(t, first.ID, docs[0].ID)

	completedOnly, total, err := store.ListDocuments(context.Background(), orgID, ListFilter{
		Status: StatusCompleted, SortField: "uploaded_at", SortDir: "desc", Limit: 10,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, second.ID, completedOnly[0].ID)

	// unrelated org must not leak into the listing.
	otherOrgDocs, otherTotal, err := store.ListDocuments(context.Background(), uuid.New(), ListFilter{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 0, otherTotal)
	require.Empty(t, otherOrgDocs)
}

func TestCreateDocumentDuplicateIDReturnsDuplicate(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	orgID := uuid.New()
	id := uuid.New()
	params := CreateDocumentParams{
		ID: id, OrgID: orgID, UploaderUserID: uuid.New(),
		Filename: "a.pdf", SanitizedFilename: "a.pdf", ContentType: "application/pdf",
		FileSize: 10, StorageKey: "k1",
	}
	_, err := store.CreateDocument(context.Background(), params)
	require.NoError(t, err)

	_, err = store.CreateDocument(context.Background(), params)
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestFailedEventOutboxLifecycle(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	eventID := uuid.New()
	require.NoError(t, store.CreateFailedEvent(context.Background(), CreateFailedEventParams{
		ID: eventID, Topic: "document.uploaded", Payload: []byte(`{"document_id":"doc-1"}`), ErrorMessage: "dispatch failed",
	}))

	tx, err := store.BeginTx(context.Background())
	require.NoError(t, err)

	events, err := store.LockUndeliveredEvents(context.Background(), tx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, eventID, events[0].ID)

	require.NoError(t, store.MarkEventDelivered(context.Background(), tx, eventID))
	require.NoError(t, tx.Commit(context.Background()))

	tx2, err := store.BeginTx(context.Background())
	require.NoError(t, err)
	defer tx2.Rollback(context.Background())
	remaining, err := store.LockUndeliveredEvents(context.Background(), tx2, 10)
	require.NoError(t, err)
	require.Empty(t, remaining, "a delivered event must not be claimed again")
}
