package repo_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"colabora/internal/db"
	"colabora/internal/domain"
	"colabora/internal/events"
	"colabora/internal/migrate"
	"colabora/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, *sql.DB) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}, conn
}

func seedProject(t *testing.T, conn *sql.DB, r repo.Repo, id string) {
	t.Helper()
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	p := domain.Project{ID: id, Title: "School meals", Status: "active", CreatedAt: "2026-03-01T00:00:00Z"}
	if err := r.InsertProjectTx(ctx, tx, p); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func seedRequest(t *testing.T, conn *sql.DB, r repo.Repo, req domain.CollaborationRequest) {
	t.Helper()
	ctx := context.Background()
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := r.InsertRequestTx(ctx, tx, req); err != nil {
		t.Fatalf("insert request: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestGetRequestNotFound(t *testing.T) {
	r, _ := newTestRepo(t)
	if _, err := r.GetRequest(context.Background(), "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListRequestsFilters(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()
	seedProject(t, conn, r, "p1")
	seedProject(t, conn, r, "p2")
	target := int64(10)
	base := domain.CollaborationRequest{
		Title: "Rice", RequestType: domain.RequestTypeMaterials, TargetQty: &target,
		Status: domain.RequestOpen, CreatedAt: "2026-03-01T00:00:00Z", UpdatedAt: "2026-03-01T00:00:00Z",
	}
	for _, row := range []struct{ id, project, needRef, status string }{
		{"r1", "p1", "case-7", domain.RequestOpen},
		{"r2", "p1", "", domain.RequestReserved},
		{"r3", "p2", "", domain.RequestOpen},
	} {
		req := base
		req.ID, req.ProjectID, req.NeedRef, req.Status = row.id, row.project, row.needRef, row.status
		seedRequest(t, conn, r, req)
	}

	byProject, err := r.ListRequests(ctx, repo.RequestFilters{ProjectID: "p1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byProject) != 2 {
		t.Fatalf("p1 requests = %d, want 2", len(byProject))
	}
	open, err := r.ListRequests(ctx, repo.RequestFilters{ProjectID: "p1", Status: domain.RequestOpen})
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || open[0].ID != "r1" {
		t.Fatalf("open p1 requests = %+v, want only r1", open)
	}
	all, err := r.ListRequests(ctx, repo.RequestFilters{Status: "ALL"})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("all requests = %d, want 3", len(all))
	}
	byRef, err := r.ListRequests(ctx, repo.RequestFilters{NeedRef: "case-7"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byRef) != 1 || byRef[0].NeedRef != "case-7" {
		t.Fatalf("need_ref filter = %+v", byRef)
	}

	counts, err := r.CountRequestsByStatus(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if counts[domain.RequestOpen] != 1 || counts[domain.RequestReserved] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestUpdateRequestStateTx(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()
	seedProject(t, conn, r, "p1")
	target := int64(5)
	seedRequest(t, conn, r, domain.CollaborationRequest{
		ID: "r1", ProjectID: "p1", Title: "Blankets", RequestType: domain.RequestTypeMaterials,
		TargetQty: &target, Status: domain.RequestOpen,
		CreatedAt: "2026-03-01T00:00:00Z", UpdatedAt: "2026-03-01T00:00:00Z",
	})

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	req, err := r.GetRequestTx(ctx, tx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	req.ReservedQty = 5
	req.Status = domain.RequestReserved
	req.UpdatedAt = "2026-03-02T00:00:00Z"
	if err := r.UpdateRequestStateTx(ctx, tx, req); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	got, err := r.GetRequest(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ReservedQty != 5 || got.Status != domain.RequestReserved || got.UpdatedAt != "2026-03-02T00:00:00Z" {
		t.Fatalf("after update: %+v", got)
	}

	tx2, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx2.Rollback()
	missing := req
	missing.ID = "ghost"
	if err := r.UpdateRequestStateTx(ctx, tx2, missing); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("update missing request err = %v, want ErrNotFound", err)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()
	seedProject(t, conn, r, "p1")
	seedRequest(t, conn, r, domain.CollaborationRequest{
		ID: "r1", ProjectID: "p1", Title: "Water filters", RequestType: domain.RequestTypeMaterials,
		Status: domain.RequestOpen, CreatedAt: "2026-03-01T00:00:00Z", UpdatedAt: "2026-03-01T00:00:00Z",
	})

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := r.InsertCommitmentTx(ctx, tx, domain.Commitment{
		ID: "c1", RequestID: "r1", ActorLabel: "Cruz Roja", Status: domain.CommitmentActive,
		CommittedAt: "2026-03-01T00:00:00Z", UpdatedAt: "2026-03-01T00:00:00Z",
	}); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if err := r.DeleteProject(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetRequest(ctx, "r1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("request survived delete: %v", err)
	}
	if _, err := r.GetCommitment(ctx, "c1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("commitment survived delete: %v", err)
	}
	if err := r.DeleteProject(ctx, "p1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestEventCursor(t *testing.T) {
	r, conn := newTestRepo(t)
	ctx := context.Background()
	seedProject(t, conn, r, "p1")

	latest, err := r.LatestEventID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest != 0 {
		t.Fatalf("latest on empty log = %d, want 0", latest)
	}

	w := events.Writer{DB: conn}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	for _, typ := range []string{"request.created", "commitment.created", "commitment.executed"} {
		if err := w.Append(ctx, tx, events.Entry{
			Type: typ, ProjectID: "p1", EntityKind: "request", EntityID: "r1", ActorID: "tester",
		}); err != nil {
			t.Fatal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	latest, err = r.LatestEventID(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest != 3 {
		t.Fatalf("latest = %d, want 3", latest)
	}

	after, err := r.EventsAfter(ctx, 1, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != 2 || after[0].ID != 2 || after[1].ID != 3 {
		t.Fatalf("events after 1 = %+v", after)
	}

	recent, err := r.ListEvents(ctx, repo.EventFilters{Type: "commitment.executed"})
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].Type != "commitment.executed" {
		t.Fatalf("type filter = %+v", recent)
	}
}

func TestAPIKeyLookup(t *testing.T) {
	r, _ := newTestRepo(t)
	ctx := context.Background()
	secret := "clb_live_example"
	key := domain.APIKey{
		ID: "k1", ActorID: "ngo-cruz-roja", Name: "integration",
		KeyHash: repo.HashSecret(secret), CreatedAt: "2026-03-01T00:00:00Z",
	}
	if err := r.InsertAPIKey(ctx, key); err != nil {
		t.Fatal(err)
	}
	got, err := r.GetAPIKeyByHash(ctx, repo.HashSecret(secret))
	if err != nil {
		t.Fatal(err)
	}
	if got.ActorID != "ngo-cruz-roja" {
		t.Fatalf("actor = %q", got.ActorID)
	}
	if _, err := r.GetAPIKeyByHash(ctx, repo.HashSecret("wrong")); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("wrong secret err = %v, want ErrNotFound", err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, repo.HashSecret(secret)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted key still resolves: %v", err)
	}
}
