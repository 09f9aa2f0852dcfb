package gateway

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tavernier-bot/tavernier/internal/activity"
	"github.com/tavernier-bot/tavernier/internal/afk"
	"github.com/tavernier-bot/tavernier/internal/bus"
	"github.com/tavernier-bot/tavernier/internal/config"
	"github.com/tavernier-bot/tavernier/internal/infochannels"
	"github.com/tavernier-bot/tavernier/internal/leaderboard"
	"github.com/tavernier-bot/tavernier/internal/moderation"
	"github.com/tavernier-bot/tavernier/internal/platform"
	"github.com/tavernier-bot/tavernier/internal/platform/platformtest"
	"github.com/tavernier-bot/tavernier/internal/rooms"
	"github.com/tavernier-bot/tavernier/internal/store"
	"github.com/tavernier-bot/tavernier/internal/welcome"
)

// monday is a fixed week start, 10:00 local time.
var monday = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	gw    *Gateway
	fake  *platformtest.Fake
	store *store.Store
	cfg   *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.DefaultConfig()
	cfg.Bot.GuildID = "guild"
	cfg.Bot.OperatorChannelID = "ops"
	cfg.Activity.Timezone = "UTC"
	cfg.Activity.LevelThresholds = []time.Duration{0, time.Hour, 2 * time.Hour}
	cfg.Rooms.RedirectChannelID = "redirect"
	cfg.Rooms.CategoryID = "cat"
	cfg.Welcome.ChannelID = "welcome"
	cfg.Infochannels.MembersChannelID = "info-members"

	fake := platformtest.New()
	fake.AddChannel("redirect", "Créer un salon", "cat")
	fake.AddChannel("info-members", "Membres : 0", "")
	fake.AddChannel("ops", "staff", "")
	fake.AddChannel("welcome", "bienvenue", "")

	ledger := activity.NewLedger(st, fake, cfg.Activity, nil)
	roomMgr := rooms.NewManager(fake, st, cfg.Rooms, cfg.Bot, nil)
	gw := New(
		bus.New(),
		fake,
		cfg,
		ledger,
		roomMgr,
		leaderboard.NewBuilder(ledger, fake, cfg.Leaderboard),
		moderation.New(fake, cfg.Bot),
		welcome.New(fake, cfg.Welcome),
		infochannels.New(fake, cfg.Infochannels),
		afk.New(fake),
		nil,
	)
	return &fixture{gw: gw, fake: fake, store: st, cfg: cfg}
}

func voiceEvent(member string, bot bool, before, after string, at time.Time) *bus.Event {
	return &bus.Event{
		Type:            bus.EventVoiceState,
		MemberID:        member,
		MemberBot:       bot,
		BeforeChannelID: before,
		AfterChannelID:  after,
		At:              at,
	}
}

func TestVoiceStateCreatesRoomFromRedirect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fake.AddMember("alice", "Alice", false)
	f.fake.Connect("alice", "redirect")

	f.gw.handle(ctx, voiceEvent("alice", false, "", "redirect", monday))

	if got := f.gw.rooms.Tracked(); got != 1 {
		t.Fatalf("tracked rooms = %d, want 1", got)
	}
	if ch, _ := f.fake.MemberVoiceChannel(ctx, "alice"); ch == "redirect" || ch == "" {
		t.Fatalf("alice still in %q, want a fresh room", ch)
	}
}

func TestVoiceStateCreditsActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fake.AddMember("alice", "Alice", false)
	f.fake.AddChannel("general", "Général", "")

	f.gw.handle(ctx, voiceEvent("alice", false, "", "general", monday))
	f.gw.handle(ctx, voiceEvent("alice", false, "general", "", monday.Add(30*time.Minute)))

	rec, err := f.gw.ledger.Record(ctx, "alice", monday.Add(time.Hour))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := rec.Accumulated(); got != 30*time.Minute {
		t.Fatalf("accumulated = %v, want 30m", got)
	}
}

func TestRedirectHopNotCounted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fake.AddMember("alice", "Alice", false)
	f.fake.Connect("alice", "redirect")

	f.gw.handle(ctx, voiceEvent("alice", false, "", "redirect", monday))
	// The hop out of the redirect channel must not settle as voice time.
	f.gw.handle(ctx, voiceEvent("alice", false, "redirect", "chan-1", monday.Add(time.Hour)))

	rec, err := f.gw.ledger.Record(ctx, "alice", monday.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := rec.Accumulated(); got != 0 {
		t.Fatalf("accumulated = %v, want 0", got)
	}
}

func TestBotsDoNotAccrueActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fake.AddMember("music-bot", "Music", true)
	f.fake.AddChannel("general", "Général", "")

	f.gw.handle(ctx, voiceEvent("music-bot", true, "", "general", monday))
	f.gw.handle(ctx, voiceEvent("music-bot", true, "general", "", monday.Add(time.Hour)))

	rec, err := f.gw.ledger.Record(ctx, "music-bot", monday.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if got := rec.Accumulated(); got != 0 {
		t.Fatalf("accumulated = %v, want 0", got)
	}
}

func TestInfoChannelEjectsOnConnect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fake.AddMember("alice", "Alice", false)
	f.fake.Connect("alice", "info-members")

	f.gw.handle(ctx, voiceEvent("alice", false, "", "info-members", monday))

	if ch, _ := f.fake.MemberVoiceChannel(ctx, "alice"); ch != "" {
		t.Fatalf("alice in %q, want disconnected", ch)
	}
}

func TestMemberJoinWelcomesAndUpdatesCounter(t *testing.T) {
	f := newFixture(t)
	f.fake.Counts.Total = 42

	f.gw.handle(context.Background(), &bus.Event{Type: bus.EventMemberJoin, MemberID: "alice"})

	sent := f.fake.Sent["welcome"]
	if len(sent) != 1 || !strings.Contains(sent[0], "<@alice>") {
		t.Fatalf("welcome messages = %v", sent)
	}
	name, _ := f.fake.ChannelName(context.Background(), "info-members")
	if name != "Membres : 42" {
		t.Fatalf("counter name = %q", name)
	}
}

func TestCommandStatsReplies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fake.AddMember("alice", "Alice", false)
	f.fake.AddChannel("general", "Général", "")
	f.gw.handle(ctx, voiceEvent("alice", false, "", "general", monday))
	f.gw.handle(ctx, voiceEvent("alice", false, "general", "", monday.Add(90*time.Minute)))

	var got bus.Response
	f.gw.handle(ctx, &bus.Event{
		Type: bus.EventCommand,
		At:   monday.Add(2 * time.Hour),
		Command: &bus.Command{
			Name:    "stats",
			ActorID: "alice",
			Reply:   func(r bus.Response) { got = r },
		},
	})

	if !strings.Contains(got.Text, "1h 30min") {
		t.Fatalf("stats reply = %q, want weekly time mentioned", got.Text)
	}
}

func TestCommandAfkMarksAndVoiceLeaveRestores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fake.AddMember("alice", "Alice", false)
	f.fake.AddChannel("general", "Général", "")
	f.fake.Connect("alice", "general")

	var got bus.Response
	f.gw.handle(ctx, &bus.Event{
		Type: bus.EventCommand,
		At:   monday,
		Command: &bus.Command{
			Name:    "afk",
			Args:    map[string]string{"duree": "5", "unite": "minutes"},
			ActorID: "alice",
			Reply:   func(r bus.Response) { got = r },
		},
	})

	if !got.Private || !strings.Contains(got.Text, "AFK") {
		t.Fatalf("afk reply = %+v", got)
	}
	if nick := f.fake.Nicks["alice"]; nick != "[AFK 5min] Alice" {
		t.Fatalf("nick = %q, want AFK prefix", nick)
	}

	f.fake.DisconnectMember(ctx, "alice")
	f.gw.handle(ctx, voiceEvent("alice", false, "general", "", monday.Add(10*time.Minute)))

	if nick := f.fake.Nicks["alice"]; nick != "Alice" {
		t.Fatalf("nick = %q, want restored after disconnect", nick)
	}
}

func TestCommandAfkRequiresVoice(t *testing.T) {
	f := newFixture(t)
	f.fake.AddMember("alice", "Alice", false)

	var got bus.Response
	f.gw.handle(context.Background(), &bus.Event{
		Type: bus.EventCommand,
		At:   monday,
		Command: &bus.Command{
			Name:    "afk",
			Args:    map[string]string{"duree": "5", "unite": "minutes"},
			ActorID: "alice",
			Reply:   func(r bus.Response) { got = r },
		},
	})

	if !got.Private || !strings.Contains(got.Text, "salon vocal") {
		t.Fatalf("denial = %+v", got)
	}
}

func TestCommandRoomHandleReconciles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fake.AddMember("admin", "Admin", false)
	f.fake.GrantPermission("admin", platform.PermAdministrator)

	// Empty untracked channel in the rooms category, left by a crash.
	f.fake.AddChannel("orphan", "Vieille room", "cat")

	var got bus.Response
	f.gw.handle(ctx, &bus.Event{
		Type: bus.EventCommand,
		At:   monday,
		Command: &bus.Command{
			Name:    "room",
			Sub:     "handle",
			ActorID: "admin",
			Reply:   func(r bus.Response) { got = r },
		},
	})

	if !strings.Contains(got.Text, "salons suivis") {
		t.Fatalf("handle reply = %q", got.Text)
	}
	if _, err := f.fake.ChannelName(ctx, "orphan"); !errors.Is(err, platform.ErrGone) {
		t.Fatalf("orphan channel still present (err=%v)", err)
	}
}

func TestCommandRoomHandleRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	f.fake.AddMember("alice", "Alice", false)

	var got bus.Response
	f.gw.handle(context.Background(), &bus.Event{
		Type: bus.EventCommand,
		At:   monday,
		Command: &bus.Command{
			Name:    "room",
			Sub:     "handle",
			ActorID: "alice",
			Reply:   func(r bus.Response) { got = r },
		},
	})

	if !got.Private || !strings.Contains(got.Text, "permission") {
		t.Fatalf("denial = %+v", got)
	}
}

func TestCommandDenialIsPrivate(t *testing.T) {
	f := newFixture(t)
	f.fake.AddMember("alice", "Alice", false)

	var got bus.Response
	f.gw.handle(context.Background(), &bus.Event{
		Type: bus.EventCommand,
		At:   monday,
		Command: &bus.Command{
			Name:    "room",
			Sub:     "verrouiller",
			ActorID: "alice",
			Reply:   func(r bus.Response) { got = r },
		},
	})

	if !got.Private {
		t.Fatal("denial should be private")
	}
	if !strings.Contains(got.Text, "salon vocal") {
		t.Fatalf("denial text = %q", got.Text)
	}
}

func TestCommandMissingPermissionDenied(t *testing.T) {
	f := newFixture(t)
	f.fake.AddMember("alice", "Alice", false)
	f.fake.AddMember("bob", "Bob", false)

	var got bus.Response
	f.gw.handle(context.Background(), &bus.Event{
		Type: bus.EventCommand,
		At:   monday,
		Command: &bus.Command{
			Name:    "kick",
			ActorID: "alice",
			Args:    map[string]string{"membre": "bob"},
			Reply:   func(r bus.Response) { got = r },
		},
	})

	if !strings.Contains(got.Text, "permission") {
		t.Fatalf("reply = %q, want permission denial", got.Text)
	}
	if len(f.fake.Kicked) != 0 {
		t.Fatalf("kicked = %v, want none", f.fake.Kicked)
	}
}

func TestUnexpectedFailureReportsToOperator(t *testing.T) {
	f := newFixture(t)
	f.fake.AddMember("alice", "Alice", false)
	f.store.Close() // every ledger read now fails

	var got bus.Response
	f.gw.handle(context.Background(), &bus.Event{
		Type:    bus.EventCommand,
		TraceID: "trace-1",
		At:      monday,
		Command: &bus.Command{
			Name:    "stats",
			ActorID: "alice",
			Reply:   func(r bus.Response) { got = r },
		},
	})

	if got.Text != apology || !got.Private {
		t.Fatalf("user reply = %+v, want private apology", got)
	}
	ops := f.fake.Sent["ops"]
	if len(ops) != 1 || !strings.Contains(ops[0], "trace-1") {
		t.Fatalf("operator report = %v", ops)
	}
}
