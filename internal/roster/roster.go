// Package roster holds the admin operations on teams and players that sit
// outside the auction itself.
package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/player-auction/internal/event"
	"github.com/jensholdgaard/player-auction/internal/store"
)

// ErrInvalidInput is returned when a team or player fails validation.
var ErrInvalidInput = errors.New("invalid input")

// Manager handles roster administration.
type Manager struct {
	repos  *store.Repositories
	logger *slog.Logger
	tracer trace.Tracer
}

// NewManager returns a new roster Manager.
func NewManager(repos *store.Repositories, logger *slog.Logger, tp trace.TracerProvider) *Manager {
	return &Manager{
		repos:  repos,
		logger: logger,
		tracer: tp.Tracer("github.com/jensholdgaard/player-auction/internal/roster"),
	}
}

// TeamInput describes a team to create.
type TeamInput struct {
	Name         string
	OwnerName    string
	OwnerContact string
	Wallet       int
}

// CreateTeam registers a franchise with its starting wallet.
func (m *Manager) CreateTeam(ctx context.Context, in TeamInput) (*store.Team, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.CreateTeam",
		trace.WithAttributes(
			attribute.String("name", in.Name),
			attribute.Int("wallet", in.Wallet),
		),
	)
	defer span.End()

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("team name is required: %w", ErrInvalidInput)
	}
	if in.Wallet < 0 {
		return nil, fmt.Errorf("wallet %d is negative: %w", in.Wallet, ErrInvalidInput)
	}

	t := &store.Team{
		Name:          in.Name,
		OwnerName:     in.OwnerName,
		OwnerContact:  in.OwnerContact,
		Wallet:        in.Wallet,
		InitialWallet: in.Wallet,
	}
	if err := m.repos.Teams.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("creating team: %w", err)
	}

	data, _ := json.Marshal(event.TeamCreatedData{Name: t.Name, Wallet: t.Wallet})
	evt := event.Event{
		AggregateID: t.ID,
		Type:        event.TeamCreated,
		Data:        data,
		Version:     1,
	}
	if err := m.repos.Events.Append(ctx, evt); err != nil {
		m.logger.ErrorContext(ctx, "failed to append team created event", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "team created",
		slog.String("team_id", t.ID),
		slog.String("name", t.Name),
		slog.Int("wallet", t.Wallet),
	)
	return t, nil
}

// UpdateTeamProfile edits a team's name and owner details. The wallet is
// only ever changed by a sale.
func (m *Manager) UpdateTeamProfile(ctx context.Context, id, name, ownerName, ownerContact string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.UpdateTeamProfile",
		trace.WithAttributes(attribute.String("team_id", id)),
	)
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("team name is required: %w", ErrInvalidInput)
	}
	if err := m.repos.Teams.UpdateProfile(ctx, id, name, ownerName, ownerContact); err != nil {
		return fmt.Errorf("updating team: %w", err)
	}
	m.logger.InfoContext(ctx, "team updated", slog.String("team_id", id), slog.String("name", name))
	return nil
}

// CreatePlayer adds a single player to the pool as available.
func (m *Manager) CreatePlayer(ctx context.Context, profile store.PlayerProfile) (*store.Player, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.CreatePlayer",
		trace.WithAttributes(attribute.String("name", profile.Name)),
	)
	defer span.End()

	if err := validateProfile(&profile); err != nil {
		return nil, err
	}
	p := playerFrom(profile)
	if err := m.repos.Players.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("creating player: %w", err)
	}

	m.logger.InfoContext(ctx, "player created",
		slog.String("player_id", p.ID),
		slog.String("name", p.Name),
		slog.Int("base_price", p.BasePrice),
	)
	return p, nil
}

// UpdatePlayerProfile edits a player that is still available.
func (m *Manager) UpdatePlayerProfile(ctx context.Context, id string, profile store.PlayerProfile) error {
	ctx, span := m.tracer.Start(ctx, "Manager.UpdatePlayerProfile",
		trace.WithAttributes(attribute.String("player_id", id)),
	)
	defer span.End()

	if err := validateProfile(&profile); err != nil {
		return err
	}
	if err := m.repos.Players.UpdateProfile(ctx, id, profile); err != nil {
		return fmt.Errorf("updating player: %w", err)
	}
	m.logger.InfoContext(ctx, "player updated", slog.String("player_id", id))
	return nil
}

// ListPlayers returns players in creation order. An empty status returns all of them.
func (m *Manager) ListPlayers(ctx context.Context, status store.PlayerStatus) ([]store.Player, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ListPlayers",
		trace.WithAttributes(attribute.String("status", string(status))),
	)
	defer span.End()

	if status == "" {
		return m.repos.Players.List(ctx)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, ErrInvalidInput)
	}
	return m.repos.Players.ListByStatus(ctx, status)
}

// ListTeams returns teams in creation order.
func (m *Manager) ListTeams(ctx context.Context) ([]store.Team, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ListTeams")
	defer span.End()

	return m.repos.Teams.List(ctx)
}

// TeamSummary is a team with its spending and acquired players.
type TeamSummary struct {
	Team         store.Team     `json:"team"`
	Spent        int            `json:"spent"`
	SpentPercent float64        `json:"spent_percent"`
	PlayerCount  int            `json:"player_count"`
	Players      []store.Player `json:"players"` // acquisition order
}

// TeamSummaries reports how much of its wallet each team has spent.
func (m *Manager) TeamSummaries(ctx context.Context) ([]TeamSummary, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.TeamSummaries")
	defer span.End()

	teams, err := m.repos.Teams.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	players, err := m.repos.Players.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	byID := make(map[string]store.Player, len(players))
	for _, p := range players {
		byID[p.ID] = p
	}

	out := make([]TeamSummary, 0, len(teams))
	for _, t := range teams {
		s := TeamSummary{
			Team:        t,
			Spent:       t.InitialWallet - t.Wallet,
			PlayerCount: len(t.Players),
			Players:     make([]store.Player, 0, len(t.Players)),
		}
		if t.InitialWallet > 0 {
			s.SpentPercent = float64(s.Spent) * 100 / float64(t.InitialWallet)
		}
		for _, id := range t.Players {
			if p, ok := byID[id]; ok {
				s.Players = append(s.Players, p)
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func validateProfile(p *store.PlayerProfile) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("player name is required: %w", ErrInvalidInput)
	}
	if p.BasePrice <= 0 {
		return fmt.Errorf("base price %d must be positive: %w", p.BasePrice, ErrInvalidInput)
	}
	return nil
}

func playerFrom(profile store.PlayerProfile) *store.Player {
	return &store.Player{
		Name:         profile.Name,
		Role:         profile.Role,
		BattingStyle: profile.BattingStyle,
		BowlingStyle: profile.BowlingStyle,
		BasePrice:    profile.BasePrice,
		Status:       store.StatusAvailable,
	}
}
