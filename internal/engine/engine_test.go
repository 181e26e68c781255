package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"colabora/internal/apperr"
	"colabora/internal/config"
	"colabora/internal/db"
	"colabora/internal/domain"
	"colabora/internal/engine"
	"colabora/internal/migrate"
	"colabora/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.CreateProject(ctx, engine.ProjectCreateOptions{ID: "proj-1", Title: "Well in Makeni", ActorID: "tester"}); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func i64(v int64) *int64 { return &v }

func (env testEnv) createRequest(t *testing.T, target *int64) domain.CollaborationRequest {
	t.Helper()
	req, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{
		ProjectID:   "proj-1",
		Title:       "Cement bags",
		RequestType: domain.RequestTypeMaterials,
		TargetQty:   target,
		ActorID:     "tester",
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

func (env testEnv) createCommitment(t *testing.T, requestID string, amount *int64) domain.Commitment {
	t.Helper()
	c, err := env.Engine.CreateCommitment(env.Ctx, engine.CommitmentCreateOptions{
		RequestID:  requestID,
		ActorLabel: "NGO Azahar",
		Amount:     amount,
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}
	return c
}

func (env testEnv) request(t *testing.T, id string) domain.CollaborationRequest {
	t.Helper()
	req, err := env.Engine.Repo.GetRequest(env.Ctx, id)
	if err != nil {
		t.Fatalf("reload request: %v", err)
	}
	return req
}

func (env testEnv) commitment(t *testing.T, id string) domain.Commitment {
	t.Helper()
	c, err := env.Engine.Repo.GetCommitment(env.Ctx, id)
	if err != nil {
		t.Fatalf("reload commitment: %v", err)
	}
	return c
}

func TestCreateRequestStatuses(t *testing.T) {
	env := newTestEnv(t)

	req := env.createRequest(t, i64(10))
	if req.Status != domain.RequestOpen {
		t.Fatalf("status = %s, want OPEN", req.Status)
	}
	open := env.createRequest(t, nil)
	if open.Status != domain.RequestOpen {
		t.Fatalf("untargeted status = %s, want OPEN", open.Status)
	}
	// A zero target needs nothing, so the request is born complete.
	done := env.createRequest(t, i64(0))
	if done.Status != domain.RequestCompleted {
		t.Fatalf("zero-target status = %s, want COMPLETED", done.Status)
	}
}

func TestCreateRequestValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{ProjectID: "proj-1", Title: "x", RequestType: "FOOD"})
	if apperr.Kind(err) != "validation_error" {
		t.Fatalf("unknown type: kind = %s, err = %v", apperr.Kind(err), err)
	}
	_, err = env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{ProjectID: "proj-1", Title: "x", RequestType: domain.RequestTypeLabor, TargetQty: i64(-1)})
	if apperr.Kind(err) != "validation_error" {
		t.Fatalf("negative target: kind = %s, err = %v", apperr.Kind(err), err)
	}
	_, err = env.Engine.CreateRequest(env.Ctx, engine.RequestCreateOptions{ProjectID: "nope", Title: "x", RequestType: domain.RequestTypeLabor})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing project: err = %v, want not found", err)
	}
}

func TestCommitmentReservesRequest(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(t, i64(10))

	c := env.createCommitment(t, req.ID, i64(4))
	if c.Status != domain.CommitmentActive {
		t.Fatalf("commitment status = %s, want ACTIVE", c.Status)
	}
	req = env.request(t, req.ID)
	if req.Status != domain.RequestReserved || req.ReservedQty != 4 || req.FulfilledQty != 0 {
		t.Fatalf("request = %s reserved=%d fulfilled=%d, want RESERVED 4 0", req.Status, req.ReservedQty, req.FulfilledQty)
	}

	// the request is under review now, nobody else may pledge against it
	_, err := env.Engine.CreateCommitment(env.Ctx, engine.CommitmentCreateOptions{RequestID: req.ID, Amount: i64(1)})
	if apperr.Kind(err) != "business_error" {
		t.Fatalf("second pledge: kind = %s, err = %v", apperr.Kind(err), err)
	}
}

func TestCommitmentOverReservation(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(t, i64(5))

	_, err := env.Engine.CreateCommitment(env.Ctx, engine.CommitmentCreateOptions{RequestID: req.ID, Amount: i64(6)})
	if apperr.Kind(err) != "validation_error" {
		t.Fatalf("over-reservation: kind = %s, err = %v", apperr.Kind(err), err)
	}
	_, err = env.Engine.CreateCommitment(env.Ctx, engine.CommitmentCreateOptions{RequestID: req.ID, Amount: i64(-2)})
	if apperr.Kind(err) != "validation_error" {
		t.Fatalf("negative amount: kind = %s, err = %v", apperr.Kind(err), err)
	}
	_, err = env.Engine.CreateCommitment(env.Ctx, engine.CommitmentCreateOptions{RequestID: "nope", Amount: i64(1)})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing request: err = %v, want not found", err)
	}
}

func TestAcceptCommitment(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(t, i64(10))
	c := env.createCommitment(t, req.ID, i64(10))

	if err := env.Engine.AcceptCommitment(env.Ctx, c.ID, "tester"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	req = env.request(t, req.ID)
	if req.Status != domain.RequestCompleted {
		t.Fatalf("request status = %s, want COMPLETED", req.Status)
	}
	// acceptance closes the request but the pledge itself is still pending execution
	if got := env.commitment(t, c.ID); got.Status != domain.CommitmentActive {
		t.Fatalf("commitment status = %s, want ACTIVE", got.Status)
	}
	if err := env.Engine.AcceptCommitment(env.Ctx, "nope", "tester"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing commitment: err = %v, want not found", err)
	}
}

func TestRejectCommitmentReopensRequest(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(t, i64(10))
	c := env.createCommitment(t, req.ID, i64(10))

	if err := env.Engine.RejectCommitment(env.Ctx, c.ID, "tester"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got := env.commitment(t, c.ID); got.Status != domain.CommitmentCancelled {
		t.Fatalf("commitment status = %s, want CANCELLED", got.Status)
	}
	req = env.request(t, req.ID)
	if req.Status != domain.RequestOpen {
		t.Fatalf("request status = %s, want OPEN", req.Status)
	}

	// reopened request accepts a fresh pledge
	env.createCommitment(t, req.ID, i64(3))

	if err := env.Engine.RejectCommitment(env.Ctx, c.ID, "tester"); apperr.Kind(err) != "business_error" {
		t.Fatalf("re-reject cancelled: kind = %s, err = %v", apperr.Kind(err), err)
	}
}

func TestExecuteCommitmentFulfilsRequest(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(t, i64(10))
	c := env.createCommitment(t, req.ID, i64(10))

	if err := env.Engine.ExecuteCommitment(env.Ctx, c.ID, "tester"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := env.commitment(t, c.ID); got.Status != domain.CommitmentFulfilled {
		t.Fatalf("commitment status = %s, want FULFILLED", got.Status)
	}
	req = env.request(t, req.ID)
	if req.Status != domain.RequestCompleted || req.ReservedQty != 0 || req.FulfilledQty != 10 {
		t.Fatalf("request = %s reserved=%d fulfilled=%d, want COMPLETED 0 10", req.Status, req.ReservedQty, req.FulfilledQty)
	}
}

func TestExecutePartialAmount(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(t, i64(10))
	c := env.createCommitment(t, req.ID, i64(4))

	if err := env.Engine.ExecuteCommitment(env.Ctx, c.ID, "tester"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	req = env.request(t, req.ID)
	if req.ReservedQty != 0 || req.FulfilledQty != 4 {
		t.Fatalf("reserved=%d fulfilled=%d, want 0 4", req.ReservedQty, req.FulfilledQty)
	}
	if req.Status != domain.RequestReserved {
		t.Fatalf("request status = %s, want RESERVED (partially fulfilled)", req.Status)
	}
}

func TestExecuteAfterAccept(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(t, i64(10))
	c := env.createCommitment(t, req.ID, i64(10))
	if err := env.Engine.AcceptCommitment(env.Ctx, c.ID, "tester"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := env.Engine.ExecuteCommitment(env.Ctx, c.ID, "tester"); err != nil {
		t.Fatalf("execute after accept: %v", err)
	}
	req = env.request(t, req.ID)
	if req.Status != domain.RequestCompleted || req.FulfilledQty != 10 {
		t.Fatalf("request = %s fulfilled=%d, want COMPLETED 10", req.Status, req.FulfilledQty)
	}
}

func TestExecuteTwiceIsRejected(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(t, i64(10))
	c := env.createCommitment(t, req.ID, i64(10))

	if err := env.Engine.ExecuteCommitment(env.Ctx, c.ID, "tester"); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	err := env.Engine.ExecuteCommitment(env.Ctx, c.ID, "tester")
	if !errors.Is(err, apperr.ErrAlreadyExecuted) {
		t.Fatalf("second execute: err = %v, want already-executed", err)
	}
	if apperr.Kind(err) != "commitment_already_executed" {
		t.Fatalf("kind = %s", apperr.Kind(err))
	}
	// quantities did not move twice
	req = env.request(t, req.ID)
	if req.FulfilledQty != 10 {
		t.Fatalf("fulfilled = %d, want 10", req.FulfilledQty)
	}
}

func TestExecuteCancelledCommitment(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(t, i64(10))
	c := env.createCommitment(t, req.ID, i64(10))
	if err := env.Engine.RejectCommitment(env.Ctx, c.ID, "tester"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	err := env.Engine.ExecuteCommitment(env.Ctx, c.ID, "tester")
	if apperr.Kind(err) != "business_error" {
		t.Fatalf("execute cancelled: kind = %s, err = %v", apperr.Kind(err), err)
	}
	if err := env.Engine.ExecuteCommitment(env.Ctx, "nope", "tester"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing commitment: err = %v, want not found", err)
	}
}

// A rejected commitment keeps its reserved amount on the books (statuses
// reset, quantities do not), so a later execute against a fresh pledge must
// clamp reserved at zero instead of going negative.
func TestReservedNeverGoesNegative(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(t, i64(10))

	first := env.createCommitment(t, req.ID, i64(4))
	if err := env.Engine.RejectCommitment(env.Ctx, first.ID, "tester"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	second := env.createCommitment(t, req.ID, i64(6))
	if err := env.Engine.ExecuteCommitment(env.Ctx, second.ID, "tester"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := env.Engine.ExecuteCommitment(env.Ctx, first.ID, "tester"); apperr.Kind(err) != "business_error" {
		t.Fatalf("execute rejected pledge: %v", err)
	}
	req = env.request(t, req.ID)
	if req.ReservedQty < 0 {
		t.Fatalf("reserved went negative: %d", req.ReservedQty)
	}
	if req.FulfilledQty != 6 {
		t.Fatalf("fulfilled = %d, want 6", req.FulfilledQty)
	}
}

// Many actors race to pledge against the same request. Exactly one pledge can
// win (a pledge moves the request out of OPEN), and the reserved total must
// never exceed the target.
func TestConcurrentCommitments(t *testing.T) {
	env := newTestEnv(t)
	req := env.createRequest(t, i64(10))

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.CreateCommitment(env.Ctx, engine.CommitmentCreateOptions{
				RequestID:  req.ID,
				ActorLabel: "NGO",
				Amount:     i64(3),
				ActorID:    "tester",
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		if apperr.Kind(err) != "business_error" {
			t.Fatalf("loser got %s: %v", apperr.Kind(err), err)
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
	req = env.request(t, req.ID)
	if req.Status != domain.RequestReserved || req.ReservedQty != 3 {
		t.Fatalf("request = %s reserved=%d, want RESERVED 3", req.Status, req.ReservedQty)
	}
}

func TestImportNeedsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.ImportNeeds(env.Ctx, "proj-1", []engine.NeedImport{
		{Title: "Pipes", RequestType: domain.RequestTypeMaterials, TargetQty: i64(20)},
		{Title: "Plumber", RequestType: "BOGUS"},
	}, "tester")
	if apperr.Kind(err) != "validation_error" {
		t.Fatalf("bad batch: kind = %s, err = %v", apperr.Kind(err), err)
	}
	reqs, err := env.Engine.Repo.ListRequests(env.Ctx, repo.RequestFilters{ProjectID: "proj-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reqs) != 0 {
		t.Fatalf("bad batch left %d requests behind", len(reqs))
	}

	got, err := env.Engine.ImportNeeds(env.Ctx, "proj-1", []engine.NeedImport{
		{NeedRef: "need-1", Title: "Pipes", RequestType: domain.RequestTypeMaterials, TargetQty: i64(20)},
		{NeedRef: "need-2", Title: "Plumber", RequestType: domain.RequestTypeLabor},
	}, "tester")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("imported %d, want 2", len(got))
	}
}

func TestStatusFilterListing(t *testing.T) {
	env := newTestEnv(t)
	open := env.createRequest(t, i64(5))
	reserved := env.createRequest(t, i64(5))
	env.createCommitment(t, reserved.ID, i64(5))

	got, err := env.Engine.Repo.ListRequests(env.Ctx, repo.RequestFilters{ProjectID: "proj-1", Status: domain.RequestOpen})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(got) != 1 || got[0].ID != open.ID {
		t.Fatalf("open filter returned %d rows", len(got))
	}
	got, err = env.Engine.Repo.ListRequests(env.Ctx, repo.RequestFilters{ProjectID: "proj-1", Status: "ALL"})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ALL filter returned %d rows, want 2", len(got))
	}
}
