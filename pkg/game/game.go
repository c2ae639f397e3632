// Package game implements an in-memory tic-tac-toe engine scoped to
// conversations.
package game

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-Thakur002/Bantr/pkg/apperr"
)

// Status is the lifecycle state of a game.
type Status string

// Game states.
const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Error codes.
const (
	CodeNotFound      = "GAME_NOT_FOUND"
	CodeNotWaiting    = "GAME_NOT_WAITING"
	CodeAlreadyJoined = "ALREADY_JOINED"
	CodeFull          = "GAME_FULL"
	CodeNotActive     = "GAME_NOT_ACTIVE"
	CodeNotPlayer     = "NOT_PLAYER"
	CodeNotYourTurn   = "NOT_YOUR_TURN"
	CodeInvalidPos    = "INVALID_POSITION"
	CodePositionTaken = "POSITION_TAKEN"
)

const maxPlayers = 2

var errNotPlayer = apperr.Forbidden(CodeNotPlayer, "Not a player in this game")

// Game is a snapshot of one match. Values returned by Engine are copies.
type Game struct {
	ID                 string    `json:"id"`
	ConversationID     string    `json:"conversationId"`
	Players            []string  `json:"players"`
	Board              Board     `json:"board"`
	CurrentPlayerIndex int       `json:"currentPlayerIndex"`
	Status             Status    `json:"status"`
	Winner             *string   `json:"winner"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// IsDraw reports whether the game ended without a winner.
func (g *Game) IsDraw() bool {
	return g.Status == StatusFinished && g.Winner == nil
}

// HasPlayer reports whether userID is seated.
func (g *Game) HasPlayer(userID string) bool {
	return slices.Contains(g.Players, userID)
}

// CurrentPlayer returns the id of the player to move.
func (g *Game) CurrentPlayer() string {
	if g.CurrentPlayerIndex < len(g.Players) {
		return g.Players[g.CurrentPlayerIndex]
	}
	return ""
}

func (g *Game) clone() Game {
	c := *g
	c.Players = slices.Clone(g.Players)
	if g.Winner != nil {
		w := *g.Winner
		c.Winner = &w
	}
	return c
}

// Engine stores games in process memory. It is safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	games  map[string]*Game
	ttl    time.Duration
	now    func() time.Time
	newID  func() string
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// Config configures an Engine.
type Config struct {
	// TTL is how long an untouched game is kept. Default: 1h.
	TTL    time.Duration
	Now    func() time.Time
	Logger *slog.Logger
}

const defaultTTL = time.Hour

// NewEngine creates an empty engine.
func NewEngine(cfg Config) *Engine {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		games:  make(map[string]*Game),
		ttl:    cfg.TTL,
		now:    cfg.Now,
		newID:  uuid.NewString,
		logger: cfg.Logger,
	}
}

// Create starts a waiting game with creatorID seated first.
func (e *Engine) Create(creatorID, conversationID string) Game {
	now := e.now()
	g := &Game{
		ID:             e.newID(),
		ConversationID: conversationID,
		Players:        []string{creatorID},
		Status:         StatusWaiting,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	e.mu.Lock()
	e.games[g.ID] = g
	e.mu.Unlock()

	return g.clone()
}

// Join seats playerID as the second player and starts the game.
func (e *Engine) Join(id, playerID string) (Game, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.get(id)
	if err != nil {
		return Game{}, err
	}
	if g.Status != StatusWaiting {
		return Game{}, apperr.Conflict(CodeNotWaiting, "game is not waiting for players")
	}
	if g.HasPlayer(playerID) {
		return Game{}, apperr.Conflict(CodeAlreadyJoined, "already joined this game")
	}
	if len(g.Players) >= maxPlayers {
		return Game{}, apperr.Conflict(CodeFull, "game is full")
	}

	g.Players = append(g.Players, playerID)
	g.Status = StatusPlaying
	g.UpdatedAt = e.now()
	return g.clone(), nil
}

// Move places the current player's mark at position.
func (e *Engine) Move(id, playerID string, position int) (Game, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.get(id)
	if err != nil {
		return Game{}, err
	}
	if g.Status != StatusPlaying {
		return Game{}, apperr.Conflict(CodeNotActive, "game is not active")
	}
	idx := slices.Index(g.Players, playerID)
	if idx < 0 {
		return Game{}, errNotPlayer
	}
	if idx != g.CurrentPlayerIndex {
		return Game{}, apperr.Conflict(CodeNotYourTurn, "not your turn")
	}
	if position < 0 || position >= BoardSize {
		return Game{}, apperr.Invalid(CodeInvalidPos, "position must be between 0 and 8")
	}
	if g.Board[position] != Empty {
		return Game{}, apperr.Conflict(CodePositionTaken, "position already taken")
	}

	g.Board[position] = markFor(idx)
	g.UpdatedAt = e.now()

	switch {
	case Winner(g.Board) != Empty:
		g.Status = StatusFinished
		winner := playerID
		g.Winner = &winner
	case Full(g.Board):
		g.Status = StatusFinished
	default:
		g.CurrentPlayerIndex = 1 - g.CurrentPlayerIndex
	}
	return g.clone(), nil
}

// Reset clears the board and returns the game to playing with player 0 to
// move. A game still waiting for its second player cannot be reset.
func (e *Engine) Reset(id, requesterID string) (Game, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.get(id)
	if err != nil {
		return Game{}, err
	}
	if !g.HasPlayer(requesterID) {
		return Game{}, errNotPlayer
	}
	if len(g.Players) < maxPlayers {
		return Game{}, apperr.Conflict(CodeNotActive, "game needs two players before it can be reset")
	}

	g.Board = Board{}
	g.CurrentPlayerIndex = 0
	g.Status = StatusPlaying
	g.Winner = nil
	g.UpdatedAt = e.now()
	return g.clone(), nil
}

// MemberCheck reports, by returning nil, that userID belongs to
// conversationID.
type MemberCheck func(ctx context.Context, userID, conversationID string) error

// Visible returns the game when userID is seated in it or, for games
// attached to a conversation, when isMember accepts the user. Everyone else
// gets NOT_PLAYER, including for games whose conversation lookup fails.
func (e *Engine) Visible(ctx context.Context, id, userID string, isMember MemberCheck) (Game, error) {
	g, err := e.Get(id)
	if err != nil {
		return Game{}, err
	}
	if g.HasPlayer(userID) {
		return g, nil
	}
	if g.ConversationID == "" || isMember == nil {
		return Game{}, errNotPlayer
	}
	if err := isMember(ctx, userID, g.ConversationID); err != nil {
		return Game{}, errNotPlayer
	}
	return g, nil
}

// Get returns a snapshot of the game.
func (e *Engine) Get(id string) (Game, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.get(id)
	if err != nil {
		return Game{}, err
	}
	return g.clone(), nil
}

// ListByConversation returns the conversation's games, most recently updated first.
func (e *Engine) ListByConversation(conversationID string) []Game {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Game
	for _, g := range e.games {
		if g.ConversationID == conversationID {
			out = append(out, g.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Len returns the number of stored games.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.games)
}

// Cleanup deletes games not updated within the TTL and returns how many were removed.
func (e *Engine) Cleanup(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := now.Add(-e.ttl)
	n := 0
	for id, g := range e.games {
		if g.UpdatedAt.Before(cutoff) {
			delete(e.games, id)
			n++
		}
	}
	if n > 0 {
		e.logger.Debug("removed stale games", "count", n)
	}
	return n
}

// StartCleanupRoutine starts a background goroutine that periodically removes
// stale games. The goroutine is stopped when Close is called.
func (e *Engine) StartCleanupRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Cleanup(e.now())
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to exit.
func (e *Engine) Close() error {
	if e.cancel != nil {
		e.cancel()
		<-e.done
		e.cancel = nil
	}
	return nil
}

func (e *Engine) get(id string) (*Game, error) {
	g, ok := e.games[id]
	if !ok {
		return nil, apperr.NotFound(CodeNotFound, "game not found")
	}
	return g, nil
}
