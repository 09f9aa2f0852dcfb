// Package platformtest provides an in-memory platform.Platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tavernier-bot/tavernier/internal/platform"
)

// Channel is a fake voice channel.
type Channel struct {
	ID         string
	Name       string
	CategoryID string
	Overwrites map[string]platform.Overwrite
	Occupants  []string // member ids, join order
}

// Fake implements platform.Platform in memory and records side effects.
type Fake struct {
	mu sync.Mutex

	nextID   int
	Channels map[string]*Channel
	Members  map[string]*platform.Member

	Activities map[string]string   // member id -> current game
	Roles      map[string][]string // member id -> role ids
	Nicks      map[string]string
	Banned     map[string]bool
	Kicked     []string
	Perms      map[string]map[string]bool // member id -> perm -> allowed

	Sent      map[string][]string // channel id -> messages
	Presences []string

	Counts platform.PresenceCounts

	// FailWith, when set for a channel id, makes channel mutations return it.
	FailWith map[string]error
}

// New creates an empty fake platform.
func New() *Fake {
	return &Fake{
		Channels:   make(map[string]*Channel),
		Members:    make(map[string]*platform.Member),
		Activities: make(map[string]string),
		Roles:      make(map[string][]string),
		Nicks:      make(map[string]string),
		Banned:     make(map[string]bool),
		Perms:      make(map[string]map[string]bool),
		Sent:       make(map[string][]string),
		FailWith:   make(map[string]error),
	}
}

// AddMember registers a member.
func (f *Fake) AddMember(id, name string, bot bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Members[id] = &platform.Member{ID: id, DisplayName: name, Bot: bot}
}

// AddChannel registers an existing voice channel and returns it.
func (f *Fake) AddChannel(id, name, categoryID string) *Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := &Channel{ID: id, Name: name, CategoryID: categoryID, Overwrites: make(map[string]platform.Overwrite)}
	f.Channels[id] = ch
	return ch
}

// Connect puts a member into a channel, removing them from any other.
func (f *Fake) Connect(memberID, channelID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectLocked(memberID)
	if ch, ok := f.Channels[channelID]; ok {
		ch.Occupants = append(ch.Occupants, memberID)
	}
}

func (f *Fake) disconnectLocked(memberID string) {
	for _, ch := range f.Channels {
		for i, id := range ch.Occupants {
			if id == memberID {
				ch.Occupants = append(ch.Occupants[:i], ch.Occupants[i+1:]...)
				break
			}
		}
	}
}

func (f *Fake) channel(id string) (*Channel, error) {
	if err := f.FailWith[id]; err != nil {
		return nil, err
	}
	ch, ok := f.Channels[id]
	if !ok {
		return nil, platform.ErrGone
	}
	return ch, nil
}

func (f *Fake) CreateVoiceChannel(_ context.Context, categoryID, name string, overwrites map[string]platform.Overwrite) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("chan-%d", f.nextID)
	ows := make(map[string]platform.Overwrite, len(overwrites))
	for k, v := range overwrites {
		ows[k] = v
	}
	f.Channels[id] = &Channel{ID: id, Name: name, CategoryID: categoryID, Overwrites: ows}
	return id, nil
}

func (f *Fake) RenameChannel(_ context.Context, channelID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, err := f.channel(channelID)
	if err != nil {
		return err
	}
	ch.Name = name
	return nil
}

func (f *Fake) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.channel(channelID); err != nil {
		return err
	}
	delete(f.Channels, channelID)
	return nil
}

func (f *Fake) ChannelName(_ context.Context, channelID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, err := f.channel(channelID)
	if err != nil {
		return "", err
	}
	return ch.Name, nil
}

func (f *Fake) ChannelsInCategory(_ context.Context, categoryID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, ch := range f.Channels {
		if ch.CategoryID == categoryID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *Fake) SetPermission(_ context.Context, channelID, principalID string, ow *platform.Overwrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, err := f.channel(channelID)
	if err != nil {
		return err
	}
	if ow == nil {
		delete(ch.Overwrites, principalID)
		return nil
	}
	ch.Overwrites[principalID] = *ow
	return nil
}

func (f *Fake) DefaultConnectDenied(_ context.Context, channelID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, err := f.channel(channelID)
	if err != nil {
		return false, err
	}
	ow, ok := ch.Overwrites[platform.DefaultPrincipal]
	return ok && ow.Connect != nil && !*ow.Connect, nil
}

func (f *Fake) VoiceChannelMembers(_ context.Context, channelID string) ([]platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, err := f.channel(channelID)
	if err != nil {
		return nil, err
	}
	out := make([]platform.Member, 0, len(ch.Occupants))
	for _, id := range ch.Occupants {
		if m, ok := f.Members[id]; ok {
			out = append(out, *m)
		} else {
			out = append(out, platform.Member{ID: id})
		}
	}
	return out, nil
}

func (f *Fake) MemberVoiceChannel(_ context.Context, memberID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.Channels {
		for _, occ := range ch.Occupants {
			if occ == memberID {
				return id, nil
			}
		}
	}
	return "", nil
}

func (f *Fake) MoveMember(_ context.Context, memberID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.channel(channelID); err != nil {
		return err
	}
	f.disconnectLocked(memberID)
	f.Channels[channelID].Occupants = append(f.Channels[channelID].Occupants, memberID)
	return nil
}

func (f *Fake) DisconnectMember(_ context.Context, memberID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectLocked(memberID)
	return nil
}

func (f *Fake) AddRole(_ context.Context, memberID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Roles[memberID] = append(f.Roles[memberID], roleID)
	return nil
}

func (f *Fake) RemoveRole(_ context.Context, memberID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	roles := f.Roles[memberID]
	for i, r := range roles {
		if r == roleID {
			f.Roles[memberID] = append(roles[:i], roles[i+1:]...)
			return nil
		}
	}
	return nil
}

// HasRole reports whether the member currently holds roleID.
func (f *Fake) HasRole(memberID, roleID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.Roles[memberID] {
		if r == roleID {
			return true
		}
	}
	return false
}

func (f *Fake) MemberActivity(_ context.Context, memberID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Activities[memberID], nil
}

func (f *Fake) MemberDisplayName(_ context.Context, memberID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.Members[memberID]; ok {
		return m.DisplayName, nil
	}
	return "", platform.ErrGone
}

func (f *Fake) EditMemberNick(_ context.Context, memberID, nick string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Nicks[memberID] = nick
	return nil
}

func (f *Fake) HasPermission(_ context.Context, memberID, perm string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Perms[memberID][perm], nil
}

// GrantPermission marks a permission as held by the member.
func (f *Fake) GrantPermission(memberID, perm string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Perms[memberID] == nil {
		f.Perms[memberID] = make(map[string]bool)
	}
	f.Perms[memberID][perm] = true
}

func (f *Fake) KickMember(_ context.Context, memberID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Kicked = append(f.Kicked, memberID)
	delete(f.Members, memberID)
	f.disconnectLocked(memberID)
	return nil
}

func (f *Fake) BanMember(_ context.Context, memberID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Banned[memberID] = true
	delete(f.Members, memberID)
	f.disconnectLocked(memberID)
	return nil
}

func (f *Fake) UnbanMember(_ context.Context, userTag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.Banned[userTag] {
		return platform.ErrGone
	}
	delete(f.Banned, userTag)
	return nil
}

func (f *Fake) PurgeMessages(_ context.Context, channelID string, limit int, _ string) (int, error) {
	return limit, nil
}

func (f *Fake) SendMessage(_ context.Context, channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent[channelID] = append(f.Sent[channelID], content)
	return nil
}

func (f *Fake) SetPresence(_ context.Context, kind, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Presences = append(f.Presences, kind+":"+name)
	return nil
}

func (f *Fake) Presence(_ context.Context) (platform.PresenceCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Counts, nil
}
