package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cory-johannsen/dicecrawl/internal/peersync"
)

// Manager tracks all live games and their room membership.
// All methods are safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	games    map[string]*Game
	roomSets map[string]map[string]bool
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		games:    make(map[string]*Game),
		roomSets: make(map[string]map[string]bool),
	}
}

// Add registers g under its ID and room.
//
// Postcondition: returns an error if the ID is already registered.
func (m *Manager) Add(g *Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.games[g.ID()]; exists {
		return fmt.Errorf("game %q already registered", g.ID())
	}
	m.games[g.ID()] = g
	if m.roomSets[g.Room()] == nil {
		m.roomSets[g.Room()] = make(map[string]bool)
	}
	m.roomSets[g.Room()][g.ID()] = true
	return nil
}

// Remove unregisters a game and closes its outbox.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return fmt.Errorf("game %q not found", id)
	}
	if rs, ok := m.roomSets[g.Room()]; ok {
		delete(rs, id)
		if len(rs) == 0 {
			delete(m.roomSets, g.Room())
		}
	}
	_ = g.Outbox().Close()
	delete(m.games, id)
	return nil
}

// Get returns the game with the given ID.
func (m *Manager) Get(id string) (*Game, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	return g, ok
}

// GamesInRoom returns the IDs of every game in room, sorted.
func (m *Manager) GamesInRoom(room string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.roomSets[room]))
	for id := range m.roomSets[room] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of live games.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.games)
}

// ApplySnapshot overwrites every game in the snapshot's room. It is the
// peersync.ApplyFunc for the server's hub.
//
// Postcondition: returns the number of games updated.
func (m *Manager) ApplySnapshot(snap peersync.Snapshot) int {
	m.mu.RLock()
	targets := make([]*Game, 0, len(m.roomSets[snap.Room]))
	for id := range m.roomSets[snap.Room] {
		targets = append(targets, m.games[id])
	}
	m.mu.RUnlock()
	for _, g := range targets {
		g.ApplyRemote(snap)
	}
	return len(targets)
}
