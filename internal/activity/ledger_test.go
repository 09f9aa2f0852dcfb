package activity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tavernier-bot/tavernier/internal/audit"
	"github.com/tavernier-bot/tavernier/internal/config"
	"github.com/tavernier-bot/tavernier/internal/platform/platformtest"
	"github.com/tavernier-bot/tavernier/internal/store"
)

func testLedger(t *testing.T) (*Ledger, *platformtest.Fake, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	fake := platformtest.New()
	cfg := config.ActivityConfig{
		WeekStartDay:    int(time.Monday),
		Timezone:        "UTC",
		LevelThresholds: []time.Duration{0, 60 * time.Minute, 120 * time.Minute, 240 * time.Minute},
		LevelRoles:      map[int]string{1: "role-1", 2: "role-2", 3: "role-3"},
	}
	return NewLedger(st, fake, cfg, nil), fake, st
}

// Monday 2026-03-02 is a week boundary with a Monday start.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func mustRecord(t *testing.T, st *store.Store, memberID string) *MemberRecord {
	t.Helper()
	rec := &MemberRecord{MemberID: memberID}
	if err := st.FindOne(context.Background(), store.CollectionMembers, memberID, rec); err != nil {
		t.Fatalf("reading record failed: %v", err)
	}
	return rec
}

func TestAccrualAdditivity(t *testing.T) {
	l, _, st := testLedger(t)
	ctx := context.Background()

	// Two sessions inside the same week: 30min then 45min.
	at := monday.Add(10 * time.Hour)
	if err := l.OnVoiceEnter(ctx, "m1", at); err != nil {
		t.Fatal(err)
	}
	if err := l.OnVoiceLeave(ctx, "m1", at.Add(30*time.Minute)); err != nil {
		t.Fatal(err)
	}
	at2 := at.Add(5 * time.Hour)
	if err := l.OnVoiceEnter(ctx, "m1", at2); err != nil {
		t.Fatal(err)
	}
	if err := l.OnVoiceLeave(ctx, "m1", at2.Add(45*time.Minute)); err != nil {
		t.Fatal(err)
	}

	rec := mustRecord(t, st, "m1")
	if got := rec.Accumulated(); got != 75*time.Minute {
		t.Errorf("accumulated = %v, want 75m", got)
	}
}

func TestSingleLevelUpWithRolePair(t *testing.T) {
	l, fake, st := testLedger(t)
	ctx := context.Background()

	// Member at level 1 with 90min accrued; threshold[2] is 120min.
	seed := &MemberRecord{Level: 1, AccumulatedSeconds: 90 * 60, LastEventAt: monday.Add(8 * time.Hour).Unix()}
	if err := st.Upsert(ctx, store.CollectionMembers, "m1", seed); err != nil {
		t.Fatal(err)
	}
	fake.Roles["m1"] = []string{"role-1"}

	// Leaves 40 minutes after the stored last event, same week.
	if err := l.OnVoiceLeave(ctx, "m1", monday.Add(8*time.Hour+40*time.Minute)); err != nil {
		t.Fatal(err)
	}

	rec := mustRecord(t, st, "m1")
	if rec.Accumulated() != 130*time.Minute {
		t.Errorf("accumulated = %v, want 130m", rec.Accumulated())
	}
	if rec.Level != 2 {
		t.Errorf("level = %d, want 2", rec.Level)
	}
	if !fake.HasRole("m1", "role-2") {
		t.Error("level 2 role not granted")
	}
	if fake.HasRole("m1", "role-1") {
		t.Error("level 1 role not revoked")
	}
}

func TestLevelChangeBoundedToOnePerCall(t *testing.T) {
	l, _, st := testLedger(t)
	ctx := context.Background()

	// Level 0 member accrues 10h in one session: enough for level 3, but a
	// single leave moves one step at most.
	at := monday.Add(time.Hour)
	if err := l.OnVoiceEnter(ctx, "m1", at); err != nil {
		t.Fatal(err)
	}
	if err := l.OnVoiceLeave(ctx, "m1", at.Add(10*time.Hour)); err != nil {
		t.Fatal(err)
	}

	rec := mustRecord(t, st, "m1")
	if rec.Level != 1 {
		t.Errorf("level = %d, want 1 (one step per call)", rec.Level)
	}
}

func TestRolloverSplitsSessionAtBoundary(t *testing.T) {
	l, _, st := testLedger(t)
	ctx := context.Background()

	// Connected 2h before the boundary, leaves 30min after it. The old week
	// closes with the pre-boundary credit, the new week starts with 30min.
	enter := monday.Add(-2 * time.Hour)
	seed := &MemberRecord{Level: 1, AccumulatedSeconds: int64((3 * time.Hour).Seconds()), LastEventAt: enter.Unix()}
	if err := st.Upsert(ctx, store.CollectionMembers, "m1", seed); err != nil {
		t.Fatal(err)
	}

	if err := l.OnVoiceLeave(ctx, "m1", monday.Add(30*time.Minute)); err != nil {
		t.Fatal(err)
	}

	rec := mustRecord(t, st, "m1")
	if rec.Accumulated() != 30*time.Minute {
		t.Errorf("new week accumulated = %v, want 30m", rec.Accumulated())
	}
	// Old week closed with 5h ≥ threshold[2]=2h: holds level 1 and earns one.
	if rec.Level != 2 {
		t.Errorf("level = %d, want 2", rec.Level)
	}
}

func TestRolloverDemotesAtMostOne(t *testing.T) {
	l, _, st := testLedger(t)
	ctx := context.Background()

	// Level 3 member with 10 minutes in the closed week: below the 60min
	// hold threshold, demoted exactly one level.
	seed := &MemberRecord{Level: 3, AccumulatedSeconds: 10 * 60, LastEventAt: monday.Add(-24 * time.Hour).Unix()}
	if err := st.Upsert(ctx, store.CollectionMembers, "m1", seed); err != nil {
		t.Fatal(err)
	}

	if err := l.RolloverCheck(ctx, "m1", monday.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	rec := mustRecord(t, st, "m1")
	if rec.Level != 2 {
		t.Errorf("level = %d, want 2 (demotion is one step)", rec.Level)
	}
	if rec.AccumulatedSeconds != 0 {
		t.Errorf("accumulated = %d, want 0 after reset", rec.AccumulatedSeconds)
	}
}

func TestRolloverCheckThenLeaveDemotesOnce(t *testing.T) {
	l, _, st := testLedger(t)
	ctx := context.Background()

	// Level 3 member still connected across the boundary. A stats lookup
	// triggers the rollover correction mid-session; the later leave must
	// credit the remainder to the new week without closing it again.
	enter := monday.Add(-2 * time.Hour)
	seed := &MemberRecord{Level: 3, AccumulatedSeconds: 10 * 60, LastEventAt: enter.Unix()}
	if err := st.Upsert(ctx, store.CollectionMembers, "m1", seed); err != nil {
		t.Fatal(err)
	}

	if err := l.RolloverCheck(ctx, "m1", monday.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := l.OnVoiceLeave(ctx, "m1", monday.Add(90*time.Minute)); err != nil {
		t.Fatal(err)
	}

	rec := mustRecord(t, st, "m1")
	if rec.Level != 2 {
		t.Errorf("level = %d, want 2 (single demotion for one rollover)", rec.Level)
	}
	if rec.Accumulated() != 90*time.Minute {
		t.Errorf("new week accumulated = %v, want 90m", rec.Accumulated())
	}
}

func TestEnterExactlyAtBoundaryAccruesToNewWeek(t *testing.T) {
	l, _, st := testLedger(t)
	ctx := context.Background()

	if err := l.OnVoiceEnter(ctx, "m1", monday); err != nil {
		t.Fatal(err)
	}
	if err := l.OnVoiceLeave(ctx, "m1", monday.Add(45*time.Minute)); err != nil {
		t.Fatal(err)
	}

	rec := mustRecord(t, st, "m1")
	if rec.Accumulated() != 45*time.Minute {
		t.Errorf("accumulated = %v, want 45m", rec.Accumulated())
	}
	if rec.Level != 0 {
		t.Errorf("level = %d, want 0", rec.Level)
	}
}

func TestRolloverCheckIdempotent(t *testing.T) {
	l, _, st := testLedger(t)
	ctx := context.Background()

	seed := &MemberRecord{Level: 2, AccumulatedSeconds: 10 * 60, LastEventAt: monday.Add(-24 * time.Hour).Unix()}
	if err := st.Upsert(ctx, store.CollectionMembers, "m1", seed); err != nil {
		t.Fatal(err)
	}

	at := monday.Add(time.Hour)
	if err := l.RolloverCheck(ctx, "m1", at); err != nil {
		t.Fatal(err)
	}
	once := *mustRecord(t, st, "m1")

	if err := l.RolloverCheck(ctx, "m1", at.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	twice := *mustRecord(t, st, "m1")

	if once != twice {
		t.Errorf("second rollover check changed state: %+v vs %+v", once, twice)
	}
}

func TestDisplayLevelShowsPendingLevelUp(t *testing.T) {
	l, _, st := testLedger(t)
	ctx := context.Background()

	// Stored level 1, but accumulated time already meets threshold[2].
	seed := &MemberRecord{Level: 1, AccumulatedSeconds: int64((3 * time.Hour).Seconds()), LastEventAt: monday.Add(time.Hour).Unix()}
	if err := st.Upsert(ctx, store.CollectionMembers, "m1", seed); err != nil {
		t.Fatal(err)
	}

	got, err := l.DisplayLevel(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("DisplayLevel = %d, want 2", got)
	}

	// Display never persists.
	if rec := mustRecord(t, st, "m1"); rec.Level != 1 {
		t.Errorf("stored level mutated to %d by display", rec.Level)
	}
}

type auditRecorder struct {
	kinds   []string
	details []map[string]any
}

func (r *auditRecorder) Emit(_ context.Context, kind, _, _ string, details map[string]any) {
	r.kinds = append(r.kinds, kind)
	r.details = append(r.details, details)
}

func TestLevelChangeEmitsAuditEvent(t *testing.T) {
	l, _, st := testLedger(t)
	rec := &auditRecorder{}
	l.audit = rec
	ctx := context.Background()

	seed := &MemberRecord{Level: 1, AccumulatedSeconds: 90 * 60, LastEventAt: monday.Add(8 * time.Hour).Unix()}
	if err := st.Upsert(ctx, store.CollectionMembers, "m1", seed); err != nil {
		t.Fatal(err)
	}

	if err := l.OnVoiceLeave(ctx, "m1", monday.Add(8*time.Hour+40*time.Minute)); err != nil {
		t.Fatal(err)
	}

	if len(rec.kinds) != 1 || rec.kinds[0] != audit.KindLevelChanged {
		t.Fatalf("audit kinds = %v, want [%s]", rec.kinds, audit.KindLevelChanged)
	}
	if from, to := rec.details[0]["from"], rec.details[0]["to"]; from != 1 || to != 2 {
		t.Errorf("level change details = %v, want from=1 to=2", rec.details[0])
	}
}

func TestUnknownMemberDefaults(t *testing.T) {
	l, _, st := testLedger(t)
	ctx := context.Background()

	at := monday.Add(time.Hour)
	if err := l.OnVoiceEnter(ctx, "new", at); err != nil {
		t.Fatal(err)
	}
	rec := mustRecord(t, st, "new")
	if rec.Level != 0 || rec.AccumulatedSeconds != 0 {
		t.Errorf("new member record = %+v, want zeroed", rec)
	}
	if rec.LastEventAt != at.Unix() {
		t.Errorf("last = %d, want %d", rec.LastEventAt, at.Unix())
	}
}
