package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jensholdgaard/player-auction/internal/store"
)

// IssueKind classifies a reconciliation finding.
type IssueKind string

// Reconciliation findings.
const (
	// IssueSoldNotOnTeam: a sold player is missing from its buyer's roster.
	IssueSoldNotOnTeam IssueKind = "sold_not_on_team"
	// IssueTeamListsUnsold: a team roster lists a player not sold to it.
	IssueTeamListsUnsold IssueKind = "team_lists_unsold_player"
	// IssueWalletMismatch: wallet plus spend differs from the initial wallet.
	IssueWalletMismatch IssueKind = "wallet_mismatch"
	// IssueSessionPlayer: the player on the block is not available.
	IssueSessionPlayer IssueKind = "session_player_unavailable"
)

// Issue is one inconsistency found by Reconcile.
type Issue struct {
	Kind     IssueKind `json:"kind"`
	PlayerID string    `json:"player_id,omitempty"`
	TeamID   string    `json:"team_id,omitempty"`
	Detail   string    `json:"detail"`
}

// Reconcile cross-checks players, team rosters, wallets and the session. It
// only reads; an empty result means the books balance.
func (e *Engine) Reconcile(ctx context.Context) ([]Issue, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Reconcile")
	defer span.End()

	players, err := e.repos.Players.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing players: %w", err)
	}
	teams, err := e.repos.Teams.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}

	byID := make(map[string]store.Player, len(players))
	spent := make(map[string]int, len(teams))
	for _, p := range players {
		byID[p.ID] = p
		if p.Status == store.StatusSold && p.SoldTo != nil {
			spent[*p.SoldTo] += p.SoldAmount
		}
	}
	rosters := make(map[string][]string, len(teams))
	for _, t := range teams {
		rosters[t.ID] = t.Players
	}

	var issues []Issue
	for _, p := range players {
		if p.Status != store.StatusSold {
			continue
		}
		teamID := deref(p.SoldTo)
		if !slices.Contains(rosters[teamID], p.ID) {
			issues = append(issues, Issue{
				Kind:     IssueSoldNotOnTeam,
				PlayerID: p.ID,
				TeamID:   teamID,
				Detail:   fmt.Sprintf("%s is sold to %q but missing from its roster", p.Name, teamID),
			})
		}
	}

	for _, t := range teams {
		for _, id := range t.Players {
			p, ok := byID[id]
			if ok && p.Status == store.StatusSold && deref(p.SoldTo) == t.ID {
				continue
			}
			issues = append(issues, Issue{
				Kind:     IssueTeamListsUnsold,
				PlayerID: id,
				TeamID:   t.ID,
				Detail:   fmt.Sprintf("%s lists player %s which is not sold to it", t.Name, id),
			})
		}
		if got := t.Wallet + spent[t.ID]; got != t.InitialWallet {
			issues = append(issues, Issue{
				Kind:   IssueWalletMismatch,
				TeamID: t.ID,
				Detail: fmt.Sprintf("%s: wallet %d + spent %d = %d, initial %d", t.Name, t.Wallet, spent[t.ID], got, t.InitialWallet),
			})
		}
	}

	sess, err := e.repos.Sessions.Get(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if err == nil && sess.CurrentPlayerID != nil {
		if p, ok := byID[*sess.CurrentPlayerID]; !ok || p.Status != store.StatusAvailable {
			issues = append(issues, Issue{
				Kind:     IssueSessionPlayer,
				PlayerID: *sess.CurrentPlayerID,
				Detail:   "player on the block is not available",
			})
		}
	}

	for _, is := range issues {
		e.logger.ErrorContext(ctx, "reconciliation issue",
			slog.String("kind", string(is.Kind)),
			slog.String("player_id", is.PlayerID),
			slog.String("team_id", is.TeamID),
			slog.String("detail", is.Detail),
		)
	}
	return issues, nil
}
