// Package rooms owns the ephemeral voice-room lifecycle: creation from the
// redirect channel, leader election, lock state, auto-naming, solo-grace
// eviction timers and startup reconciliation.
package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tavernier-bot/tavernier/internal/audit"
	"github.com/tavernier-bot/tavernier/internal/config"
	"github.com/tavernier-bot/tavernier/internal/platform"
	"github.com/tavernier-bot/tavernier/internal/store"
)

// Auditor receives room lifecycle events. May be nil.
type Auditor interface {
	Emit(ctx context.Context, kind, actorID, targetID string, details map[string]any)
}

// Command-surface errors, mapped to user-facing denials by the gateway.
var (
	ErrNoRoom      = errors.New("rooms: member is not in a tracked room")
	ErrNotLeader   = errors.New("rooms: member is not the room leader")
	ErrUnchanged   = errors.New("rooms: state already matches")
	ErrNotSameRoom = errors.New("rooms: target member is not in the same room")
	ErrSelfTarget  = errors.New("rooms: cannot target yourself")
)

// Manager owns the channel-id → Room mapping and the per-room eviction
// timers. It is constructed once at process start; handlers receive it by
// reference, there are no package-level globals.
type Manager struct {
	platform platform.Platform
	store    *store.Store
	cfg      config.RoomsConfig
	bot      config.BotConfig
	audit    Auditor

	mu     sync.Mutex
	rooms  map[string]*Room
	timers map[string]*time.Timer
}

// NewManager creates a Manager with an empty room map. Call
// Reconcile before serving events.
func NewManager(p platform.Platform, st *store.Store, cfg config.RoomsConfig, bot config.BotConfig, aud Auditor) *Manager {
	return &Manager{
		platform: p,
		store:    st,
		cfg:      cfg,
		bot:      bot,
		audit:    aud,
		rooms:    make(map[string]*Room),
		timers:   make(map[string]*time.Timer),
	}
}

// get returns the tracked room for a channel id, nil when untracked.
func (m *Manager) get(channelID string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[channelID]
}

// memberRoom returns the room the member currently occupies, or ErrNoRoom.
func (m *Manager) memberRoom(ctx context.Context, memberID string) (*Room, error) {
	channelID, err := m.platform.MemberVoiceChannel(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if channelID == "" {
		return nil, ErrNoRoom
	}
	room := m.get(channelID)
	if room == nil {
		return nil, ErrNoRoom
	}
	return room, nil
}

// leaderRoom is memberRoom plus the leadership check.
func (m *Manager) leaderRoom(ctx context.Context, memberID string) (*Room, error) {
	room, err := m.memberRoom(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if room.LeaderID != memberID {
		return nil, ErrNotLeader
	}
	return room, nil
}

func (m *Manager) commit(ctx context.Context, room *Room) error {
	return m.store.Upsert(ctx, store.CollectionRooms, room.ChannelID, room)
}

// occupants returns the room's human occupants sorted by member id. The sort
// makes leader election deterministic: first occupant in ascending id order.
func (m *Manager) occupants(ctx context.Context, channelID string) ([]platform.Member, error) {
	members, err := m.platform.VoiceChannelMembers(ctx, channelID)
	if err != nil {
		return nil, err
	}
	humans := members[:0]
	for _, mem := range members {
		if !mem.Bot {
			humans = append(humans, mem)
		}
	}
	sort.Slice(humans, func(i, j int) bool { return humans[i].ID < humans[j].ID })
	return humans, nil
}

// CreateRoom allocates a new voice channel for leaderID, named after their
// current game if any, moves them into it and starts tracking. A fresh room
// has exactly one occupant, so the solo-grace timer is armed immediately.
func (m *Manager) CreateRoom(ctx context.Context, leaderID string) (*Room, error) {
	name, err := m.platform.MemberActivity(ctx, leaderID)
	if err != nil || name == "" {
		name, err = m.platform.MemberDisplayName(ctx, leaderID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve room name: %w", err)
		}
	}

	overwrites := map[string]platform.Overwrite{
		leaderID: platform.LeaderOverwrite(),
	}
	if m.bot.BotRoleID != "" {
		overwrites[m.bot.BotRoleID] = platform.Overwrite{Connect: platform.Allow()}
	}
	if m.bot.MutedRoleID != "" {
		overwrites[m.bot.MutedRoleID] = platform.Overwrite{Speak: platform.Deny()}
	}

	channelID, err := m.platform.CreateVoiceChannel(ctx, m.cfg.CategoryID, name, overwrites)
	if err != nil {
		return nil, fmt.Errorf("failed to create room channel: %w", err)
	}
	if err := m.platform.MoveMember(ctx, leaderID, channelID); err != nil && !errors.Is(err, platform.ErrGone) {
		return nil, fmt.Errorf("failed to move leader into room: %w", err)
	}
	if err := m.platform.SendMessage(ctx, channelID, fmt.Sprintf("Le chef de la room est <@%s>", leaderID)); err != nil {
		slog.Warn("room leader announce failed", "channel", channelID, "error", err)
	}

	room := &Room{ChannelID: channelID, LeaderID: leaderID, Locked: false, AutoName: true}
	m.mu.Lock()
	m.rooms[channelID] = room
	m.mu.Unlock()
	if err := m.commit(ctx, room); err != nil {
		return nil, err
	}

	m.armSoloTimer(channelID)
	slog.Info("room created", "channel", channelID, "leader", leaderID, "name", name)
	if m.audit != nil {
		m.audit.Emit(ctx, audit.KindRoomCreated, leaderID, channelID, map[string]any{"name": name})
	}
	return room, nil
}

// OnVoiceState reacts to a member voice transition. Creates a room when the
// member enters the redirect channel, and updates occupancy bookkeeping for
// any tracked room the member left or joined.
func (m *Manager) OnVoiceState(ctx context.Context, memberID string, bot bool, beforeID, afterID string) error {
	if beforeID == afterID {
		return nil
	}

	if afterID == m.cfg.RedirectChannelID && afterID != "" && !bot {
		if _, err := m.CreateRoom(ctx, memberID); err != nil {
			return err
		}
	} else if room := m.get(afterID); room != nil && !bot {
		if err := m.onOccupancyChange(ctx, room, "", true); err != nil {
			return err
		}
	}

	if room := m.get(beforeID); room != nil && !bot {
		if err := m.onOccupancyChange(ctx, room, memberID, false); err != nil {
			return err
		}
	}
	return nil
}

// onOccupancyChange recomputes human occupancy for a tracked room and drives
// the Active ⇄ SoloGrace ⇄ Destroyed transitions. departed is the id of the
// member who just left, "" on joins.
func (m *Manager) onOccupancyChange(ctx context.Context, room *Room, departed string, joined bool) error {
	occ, err := m.occupants(ctx, room.ChannelID)
	if errors.Is(err, platform.ErrGone) {
		m.forget(ctx, room.ChannelID)
		return nil
	}
	if err != nil {
		return err
	}

	if len(occ) == 0 {
		return m.Destroy(ctx, room.ChannelID, "room vide")
	}

	if !joined && departed == room.LeaderID {
		if err := m.electLeader(ctx, room, occ[0].ID); err != nil {
			return err
		}
	}

	switch {
	case len(occ) == 1:
		m.armSoloTimer(room.ChannelID)
	case len(occ) >= 2:
		m.cancelSoloTimer(room.ChannelID)
	}
	return nil
}

// electLeader promotes newLeaderID after the previous leader departed.
func (m *Manager) electLeader(ctx context.Context, room *Room, newLeaderID string) error {
	room.LeaderID = newLeaderID
	if err := m.commit(ctx, room); err != nil {
		return err
	}
	if err := m.platform.SetPermission(ctx, room.ChannelID, newLeaderID, ptr(platform.LeaderOverwrite())); err != nil && !errors.Is(err, platform.ErrGone) {
		slog.Warn("leader overwrite failed", "channel", room.ChannelID, "error", err)
	}
	if err := m.platform.SendMessage(ctx, room.ChannelID, fmt.Sprintf("L'ancien leader a quitté, le nouveau leader est <@%s>", newLeaderID)); err != nil {
		slog.Warn("leader announce failed", "channel", room.ChannelID, "error", err)
	}
	if room.AutoName {
		m.renameToActivity(ctx, room, newLeaderID)
	}
	slog.Info("room leader elected", "channel", room.ChannelID, "leader", newLeaderID)
	return nil
}

// renameToActivity renames the channel to the member's current game. No-op
// when the member has no activity or the name is already current.
func (m *Manager) renameToActivity(ctx context.Context, room *Room, memberID string) {
	game, err := m.platform.MemberActivity(ctx, memberID)
	if err != nil || game == "" {
		return
	}
	current, err := m.platform.ChannelName(ctx, room.ChannelID)
	if err != nil || current == game {
		return
	}
	if err := m.platform.RenameChannel(ctx, room.ChannelID, game); err != nil && !errors.Is(err, platform.ErrGone) {
		slog.Warn("room auto-rename failed", "channel", room.ChannelID, "error", err)
		return
	}
	slog.Info("room auto-renamed", "channel", room.ChannelID, "name", game)
}

// OnPresence reacts to a member activity change: auto-named rooms follow
// their leader's current game.
func (m *Manager) OnPresence(ctx context.Context, memberID string) error {
	channelID, err := m.platform.MemberVoiceChannel(ctx, memberID)
	if err != nil || channelID == "" {
		return nil
	}
	room := m.get(channelID)
	if room == nil || room.LeaderID != memberID || !room.AutoName {
		return nil
	}
	m.renameToActivity(ctx, room, memberID)
	return nil
}

// OnChannelDelete reacts to an external deletion of a tracked channel: the
// record is removed, nothing is surfaced.
func (m *Manager) OnChannelDelete(ctx context.Context, channelID string) {
	if m.get(channelID) == nil {
		return
	}
	slog.Info("room channel deleted externally", "channel", channelID)
	m.forget(ctx, channelID)
}

// Destroy deletes the room channel and drops all tracking. Idempotent; a
// concurrently vanished channel is treated as already gone.
func (m *Manager) Destroy(ctx context.Context, channelID, reason string) error {
	m.cancelSoloTimer(channelID)
	if err := m.platform.DeleteChannel(ctx, channelID); err != nil && !errors.Is(err, platform.ErrGone) {
		slog.Warn("room channel delete failed", "channel", channelID, "error", err)
	}
	m.forget(ctx, channelID)
	slog.Info("room destroyed", "channel", channelID, "reason", reason)
	if m.audit != nil {
		m.audit.Emit(ctx, audit.KindRoomDestroyed, "", channelID, map[string]any{"reason": reason})
	}
	return nil
}

// forget drops the in-memory entry, the timer and the persisted snapshot.
func (m *Manager) forget(ctx context.Context, channelID string) {
	m.cancelSoloTimer(channelID)
	m.mu.Lock()
	delete(m.rooms, channelID)
	m.mu.Unlock()
	if err := m.store.DeleteOne(ctx, store.CollectionRooms, channelID); err != nil {
		slog.Warn("room snapshot delete failed", "channel", channelID, "error", err)
	}
}

// armSoloTimer arms the eviction timer for a room, replacing any timer
// already armed. At most one live timer per room.
func (m *Manager) armSoloTimer(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[channelID]; ok {
		t.Stop()
	}
	m.timers[channelID] = time.AfterFunc(m.cfg.SoloGrace, func() {
		m.soloTimeout(channelID)
	})
}

// cancelSoloTimer is a no-op when no timer is armed.
func (m *Manager) cancelSoloTimer(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[channelID]; ok {
		t.Stop()
		delete(m.timers, channelID)
	}
}

// soloTimeout fires when the grace period elapsed without growth. Occupancy
// is re-read before destroying: the timer may race a join that its
// cancellation hasn't caught.
func (m *Manager) soloTimeout(channelID string) {
	ctx := context.Background()
	if m.get(channelID) == nil {
		return
	}
	occ, err := m.occupants(ctx, channelID)
	if err == nil && len(occ) >= 2 {
		return
	}
	if err := m.Destroy(ctx, channelID, "solo timeout"); err != nil {
		slog.Warn("solo timeout destroy failed", "channel", channelID, "error", err)
	}
}

// SetLock locks or unlocks the actor's room. Locking denies connect for the
// default principal and explicitly allows every current occupant so nobody
// already connected is kicked; unlocking clears those overwrites again.
func (m *Manager) SetLock(ctx context.Context, actorID string, locked bool) (*Room, error) {
	room, err := m.leaderRoom(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if room.Locked == locked {
		return room, ErrUnchanged
	}

	occ, err := m.occupants(ctx, room.ChannelID)
	if err != nil {
		return nil, err
	}
	for _, mem := range occ {
		if mem.ID == room.LeaderID {
			continue // the leader overwrite already allows connect
		}
		var ow *platform.Overwrite
		if locked {
			ow = &platform.Overwrite{Connect: platform.Allow()}
		}
		if err := m.platform.SetPermission(ctx, room.ChannelID, mem.ID, ow); err != nil && !errors.Is(err, platform.ErrGone) {
			return nil, err
		}
	}
	var def *platform.Overwrite
	if locked {
		def = &platform.Overwrite{Connect: platform.Deny()}
	}
	if err := m.platform.SetPermission(ctx, room.ChannelID, platform.DefaultPrincipal, def); err != nil && !errors.Is(err, platform.ErrGone) {
		return nil, err
	}

	room.Locked = locked
	if err := m.commit(ctx, room); err != nil {
		return nil, err
	}
	slog.Info("room lock changed", "channel", room.ChannelID, "locked", locked, "by", actorID)
	return room, nil
}

// Rename renames the actor's room and turns auto-naming off.
func (m *Manager) Rename(ctx context.Context, actorID, name string) (*Room, error) {
	room, err := m.leaderRoom(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if err := m.platform.RenameChannel(ctx, room.ChannelID, name); err != nil && !errors.Is(err, platform.ErrGone) {
		return nil, err
	}
	room.AutoName = false
	if err := m.commit(ctx, room); err != nil {
		return nil, err
	}
	slog.Info("room renamed", "channel", room.ChannelID, "name", name, "by", actorID)
	return room, nil
}

// SetAutoName toggles leader-activity auto-naming for the actor's room.
func (m *Manager) SetAutoName(ctx context.Context, actorID string, on bool) (*Room, error) {
	room, err := m.leaderRoom(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if room.AutoName == on {
		return room, ErrUnchanged
	}
	room.AutoName = on
	if err := m.commit(ctx, room); err != nil {
		return nil, err
	}
	if on {
		m.renameToActivity(ctx, room, room.LeaderID)
	}
	return room, nil
}

// TransferLeadership hands the actor's leadership to target. Both must
// occupy the same room.
func (m *Manager) TransferLeadership(ctx context.Context, actorID, targetID string) (*Room, error) {
	room, err := m.leaderRoom(ctx, actorID)
	if err != nil {
		return nil, err
	}
	targetChannel, err := m.platform.MemberVoiceChannel(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if targetChannel != room.ChannelID {
		return nil, ErrNotSameRoom
	}

	// The old leader stays an occupant: keep connect when locked, otherwise
	// drop their overwrite entirely.
	var old *platform.Overwrite
	if room.Locked {
		old = &platform.Overwrite{Connect: platform.Allow()}
	}
	if err := m.platform.SetPermission(ctx, room.ChannelID, actorID, old); err != nil && !errors.Is(err, platform.ErrGone) {
		return nil, err
	}
	if err := m.platform.SetPermission(ctx, room.ChannelID, targetID, ptr(platform.LeaderOverwrite())); err != nil && !errors.Is(err, platform.ErrGone) {
		return nil, err
	}

	room.LeaderID = targetID
	if err := m.commit(ctx, room); err != nil {
		return nil, err
	}
	if room.AutoName {
		m.renameToActivity(ctx, room, targetID)
	}
	slog.Info("room leadership transferred", "channel", room.ChannelID, "from", actorID, "to", targetID)
	return room, nil
}

// Blacklist denies connect/send for target in the actor's room and
// force-disconnects them if currently connected there.
func (m *Manager) Blacklist(ctx context.Context, actorID, targetID string) (*Room, error) {
	room, err := m.leaderRoom(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if targetID == actorID {
		return nil, ErrSelfTarget
	}
	ow := &platform.Overwrite{Connect: platform.Deny(), SendMessages: platform.Deny()}
	if err := m.platform.SetPermission(ctx, room.ChannelID, targetID, ow); err != nil && !errors.Is(err, platform.ErrGone) {
		return nil, err
	}
	channelID, err := m.platform.MemberVoiceChannel(ctx, targetID)
	if err == nil && channelID == room.ChannelID {
		if err := m.platform.DisconnectMember(ctx, targetID); err != nil && !errors.Is(err, platform.ErrGone) {
			return nil, err
		}
	}
	slog.Info("room blacklist", "channel", room.ChannelID, "target", targetID, "by", actorID)
	return room, nil
}

// Whitelist allows connect/send for target in the actor's room.
func (m *Manager) Whitelist(ctx context.Context, actorID, targetID string) (*Room, error) {
	room, err := m.leaderRoom(ctx, actorID)
	if err != nil {
		return nil, err
	}
	ow := &platform.Overwrite{Connect: platform.Allow(), SendMessages: platform.Allow()}
	if err := m.platform.SetPermission(ctx, room.ChannelID, targetID, ow); err != nil && !errors.Is(err, platform.ErrGone) {
		return nil, err
	}
	slog.Info("room whitelist", "channel", room.ChannelID, "target", targetID, "by", actorID)
	return room, nil
}

// MemberRoomInfo renders the info command response for the actor's room.
func (m *Manager) MemberRoomInfo(ctx context.Context, actorID string) (string, error) {
	room, err := m.memberRoom(ctx, actorID)
	if err != nil {
		return "", err
	}
	name, err := m.platform.ChannelName(ctx, room.ChannelID)
	if err != nil {
		name = room.ChannelID
	}
	return room.Info(name), nil
}

// Reconcile rebuilds the process-local room map from the rooms category.
// Channels with a persisted snapshot are restored verbatim; empty unknown
// channels are deleted as orphans; occupied unknown channels are adopted
// with a default room state. Runs at startup and on the admin handle
// command.
func (m *Manager) Reconcile(ctx context.Context) error {
	channels, err := m.platform.ChannelsInCategory(ctx, m.cfg.CategoryID)
	if err != nil {
		return fmt.Errorf("failed to enumerate rooms category: %w", err)
	}
	present := make(map[string]bool, len(channels))
	for _, id := range channels {
		present[id] = true
	}

	snapshots, err := m.store.FindAll(ctx, store.CollectionRooms)
	if err != nil {
		return fmt.Errorf("failed to load room snapshots: %w", err)
	}

	// Snapshots whose channel no longer exists are stale.
	for id := range snapshots {
		if !present[id] {
			if err := m.store.DeleteOne(ctx, store.CollectionRooms, id); err != nil {
				slog.Warn("stale room snapshot delete failed", "channel", id, "error", err)
			}
		}
	}

	for _, channelID := range channels {
		if channelID == m.cfg.RedirectChannelID {
			continue
		}
		occ, err := m.occupants(ctx, channelID)
		if errors.Is(err, platform.ErrGone) {
			continue
		}
		if err != nil {
			return err
		}

		snap, hasSnap := snapshots[channelID]
		if len(occ) == 0 && !hasSnap {
			// Orphan left over from a previous process.
			if err := m.platform.DeleteChannel(ctx, channelID); err != nil && !errors.Is(err, platform.ErrGone) {
				slog.Warn("orphan room delete failed", "channel", channelID, "error", err)
			}
			slog.Info("orphan room deleted", "channel", channelID)
			continue
		}

		room := &Room{ChannelID: channelID, AutoName: true}
		if hasSnap {
			if err := json.Unmarshal(snap, room); err != nil {
				slog.Warn("room snapshot decode failed", "channel", channelID, "error", err)
			}
			room.ChannelID = channelID
		} else {
			room.LeaderID = occ[0].ID
			denied, err := m.platform.DefaultConnectDenied(ctx, channelID)
			if err == nil {
				room.Locked = denied
			}
			if err := m.commit(ctx, room); err != nil {
				return err
			}
		}

		m.mu.Lock()
		m.rooms[channelID] = room
		m.mu.Unlock()

		if len(occ) == 0 {
			if err := m.Destroy(ctx, channelID, "room vide"); err != nil {
				return err
			}
			continue
		}
		if len(occ) == 1 {
			m.armSoloTimer(channelID)
		}
		slog.Info("room adopted", "channel", channelID, "leader", room.LeaderID, "snapshot", hasSnap)
	}
	return nil
}

// Shutdown persists every tracked room and stops all timers.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
	m.mu.Unlock()

	for _, r := range rooms {
		if err := m.commit(ctx, r); err != nil {
			slog.Warn("room snapshot write failed", "channel", r.ChannelID, "error", err)
		}
	}
}

// Tracked returns the number of rooms currently tracked.
func (m *Manager) Tracked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

func ptr(ow platform.Overwrite) *platform.Overwrite { return &ow }
