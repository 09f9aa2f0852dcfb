package rooms

import "fmt"

// Room is the tracked state of one ephemeral voice channel. Rooms exist only
// for channels this manager created (or adopted at startup); organically
// created channels are never tracked.
type Room struct {
	ChannelID string `json:"-"`
	LeaderID  string `json:"leader"`
	Locked    bool   `json:"locked"`
	AutoName  bool   `json:"auto_name"`
}

// Info renders the room state for the info command.
func (r *Room) Info(name string) string {
	states := map[bool]string{true: "✅", false: "❌"}
	return fmt.Sprintf("Nom : %s\nLeader : <@%s>\nVerrouillée : %s\nNom automatique : %s",
		name, r.LeaderID, states[r.Locked], states[r.AutoName])
}
