package afk

import (
	"context"
	"errors"
	"testing"

	"github.com/tavernier-bot/tavernier/internal/platform/platformtest"
)

func testTracker(t *testing.T) (*Tracker, *platformtest.Fake) {
	t.Helper()
	fake := platformtest.New()
	fake.AddMember("alice", "Alice", false)
	fake.AddChannel("voice", "Général", "")
	return New(fake), fake
}

func TestMarkPrefixesNickname(t *testing.T) {
	tr, fake := testTracker(t)
	fake.Connect("alice", "voice")

	if err := tr.Mark(context.Background(), "alice", 5, "minutes"); err != nil {
		t.Fatal(err)
	}
	if got := fake.Nicks["alice"]; got != "[AFK 5min] Alice" {
		t.Errorf("nick = %q, want %q", got, "[AFK 5min] Alice")
	}
}

func TestMarkRequiresVoice(t *testing.T) {
	tr, _ := testTracker(t)

	err := tr.Mark(context.Background(), "alice", 5, "minutes")
	if !errors.Is(err, ErrNotInVoice) {
		t.Errorf("err = %v, want ErrNotInVoice", err)
	}
}

func TestRemarkKeepsOriginalNickname(t *testing.T) {
	tr, fake := testTracker(t)
	fake.Connect("alice", "voice")
	ctx := context.Background()

	if err := tr.Mark(ctx, "alice", 5, "minutes"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Mark(ctx, "alice", 2, "heures"); err != nil {
		t.Fatal(err)
	}
	if got := fake.Nicks["alice"]; got != "[AFK 2h] Alice" {
		t.Errorf("nick = %q, want %q (no nested prefix)", got, "[AFK 2h] Alice")
	}
}

func TestDisconnectRestoresNickname(t *testing.T) {
	tr, fake := testTracker(t)
	fake.Connect("alice", "voice")
	ctx := context.Background()

	if err := tr.Mark(ctx, "alice", 30, "secondes"); err != nil {
		t.Fatal(err)
	}
	if err := tr.OnVoiceState(ctx, "alice", "voice", ""); err != nil {
		t.Fatal(err)
	}
	if got := fake.Nicks["alice"]; got != "Alice" {
		t.Errorf("nick = %q, want restored %q", got, "Alice")
	}

	// Once restored, the mark is gone.
	fake.Nicks["alice"] = "custom"
	if err := tr.OnVoiceState(ctx, "alice", "voice", ""); err != nil {
		t.Fatal(err)
	}
	if got := fake.Nicks["alice"]; got != "custom" {
		t.Errorf("unmarked disconnect touched the nick: %q", got)
	}
}

func TestChannelHopKeepsMark(t *testing.T) {
	tr, fake := testTracker(t)
	fake.Connect("alice", "voice")
	ctx := context.Background()

	if err := tr.Mark(ctx, "alice", 5, "minutes"); err != nil {
		t.Fatal(err)
	}
	if err := tr.OnVoiceState(ctx, "alice", "voice", "other"); err != nil {
		t.Fatal(err)
	}
	if got := fake.Nicks["alice"]; got != "[AFK 5min] Alice" {
		t.Errorf("nick = %q, mark should survive a channel hop", got)
	}
}
