// Package lobby relays a small multiplayer demo over websockets: players
// join with a nickname, move on a grid and see each other's last key.
package lobby

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyNickname    = errors.New("nickname cannot be empty")
	ErrUnknownPlayer    = errors.New("unknown player")
	ErrUnknownDirection = errors.New("unknown direction")
)

const (
	StatusAlive = "alive"
	nickPrefix  = "Player_"
)

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Player is one connected participant.
type Player struct {
	ConnectionID string   `json:"connectionId"`
	Nickname     string   `json:"nickname"`
	Joined       bool     `json:"joined"`
	Position     Position `json:"position"`
	Health       int      `json:"health"`
	Status       string   `json:"status"`
	LastKey      string   `json:"lastKey,omitempty"`
}

// Lobby is the player table. It is not safe for concurrent use; the Hub
// owns it from its run loop.
type Lobby struct {
	players map[string]*Player
	order   []string
}

func New() *Lobby {
	return &Lobby{players: map[string]*Player{}}
}

// Connect adds a player with a default nickname at the origin.
func (l *Lobby) Connect(id string) Player {
	if p, ok := l.players[id]; ok {
		return *p
	}
	suffix := id
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	p := &Player{
		ConnectionID: id,
		Nickname:     nickPrefix + suffix,
		Health:       1,
		Status:       StatusAlive,
	}
	l.players[id] = p
	l.order = append(l.order, id)
	return *p
}

// Join sets the nickname of a connected player.
func (l *Lobby) Join(id, nickname string) (Player, error) {
	p, ok := l.players[id]
	if !ok {
		return Player{}, ErrUnknownPlayer
	}
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return Player{}, ErrEmptyNickname
	}
	p.Nickname = nickname
	p.Joined = true
	return *p, nil
}

// Move steps a player one cell. Up decreases y.
func (l *Lobby) Move(id, direction string) (Player, error) {
	p, ok := l.players[id]
	if !ok {
		return Player{}, ErrUnknownPlayer
	}
	switch strings.ToLower(direction) {
	case "up":
		p.Position.Y--
	case "down":
		p.Position.Y++
	case "left":
		p.Position.X--
	case "right":
		p.Position.X++
	default:
		return Player{}, fmt.Errorf("%w: %q", ErrUnknownDirection, direction)
	}
	return *p, nil
}

// Key records the last key a player pressed.
func (l *Lobby) Key(id, key string) (Player, error) {
	p, ok := l.players[id]
	if !ok {
		return Player{}, ErrUnknownPlayer
	}
	p.LastKey = key
	return *p, nil
}

// Disconnect removes a player. Unknown ids are ignored.
func (l *Lobby) Disconnect(id string) {
	if _, ok := l.players[id]; !ok {
		return
	}
	delete(l.players, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Players lists players in connection order.
func (l *Lobby) Players() []Player {
	out := make([]Player, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.players[id])
	}
	return out
}

func (l *Lobby) Len() int { return len(l.players) }
