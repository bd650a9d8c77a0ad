// Package commands implements the auction's Discord slash commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/player-auction/internal/auction"
	"github.com/jensholdgaard/player-auction/internal/bidding"
	"github.com/jensholdgaard/player-auction/internal/roster"
	"github.com/jensholdgaard/player-auction/internal/store"
)

// Handlers process Discord interactions.
type Handlers struct {
	engine      *auction.Engine
	surface     *bidding.Surface
	roster      *roster.Manager
	adminRoleID string
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewHandlers creates new command handlers. Admin commands require
// adminRoleID, or the Administrator permission when it is empty.
func NewHandlers(engine *auction.Engine, surface *bidding.Surface, r *roster.Manager, adminRoleID string, logger *slog.Logger, tp trace.TracerProvider) *Handlers {
	return &Handlers{
		engine:      engine,
		surface:     surface,
		roster:      r,
		adminRoleID: adminRoleID,
		logger:      logger,
		tracer:      tp.Tracer("github.com/jensholdgaard/player-auction/internal/bot/commands"),
	}
}

var adminCommands = []string{
	"auction-start", "auction-sell", "auction-unsold", "auction-end", "round-advance", "round-reopen",
}

func playerOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "player",
		Description: "Player name or ID (defaults to the player on the block)",
		Required:    required,
	}
}

// SlashCommands returns the slash command definitions.
func SlashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "auction-status",
			Description: "Show the player on the block and the highest bid",
		},
		{
			Name:        "bid",
			Description: "Bid on the player on the block",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "team",
					Description: "Your team name",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "Bid amount",
					Required:    true,
				},
			},
		},
		{
			Name:        "teams",
			Description: "List teams with wallet and spend",
		},
		{
			Name:        "auction-start",
			Description: "Put a player on the block (admin only)",
			Options:     []*discordgo.ApplicationCommandOption{playerOption(true)},
		},
		{
			Name:        "auction-sell",
			Description: "Sell the player to the highest bidder (admin only)",
			Options:     []*discordgo.ApplicationCommandOption{playerOption(false)},
		},
		{
			Name:        "auction-unsold",
			Description: "Close the auction without a sale (admin only)",
			Options:     []*discordgo.ApplicationCommandOption{playerOption(false)},
		},
		{
			Name:        "auction-end",
			Description: "Take the player off the block without a decision (admin only)",
		},
		{
			Name:        "round-advance",
			Description: "Start the unsold replay round (admin only)",
		},
		{
			Name:        "round-reopen",
			Description: "Return to the main round (admin only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "Why the main round is reopened",
					Required:    true,
				},
			},
		},
	}
}

// InteractionCreate handles incoming slash command interactions.
func (h *Handlers) InteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	msg := h.Execute(context.Background(), data.Name, data.Options, i.Member)
	respond(s, i, msg)
}

// Execute runs a command for member and returns the reply.
func (h *Handlers) Execute(ctx context.Context, name string, opts []*discordgo.ApplicationCommandInteractionDataOption, member *discordgo.Member) string {
	ctx, span := h.tracer.Start(ctx, "Handlers.Execute",
		trace.WithAttributes(attribute.String("command", name)),
	)
	defer span.End()

	if slices.Contains(adminCommands, name) && !h.isAdmin(member) {
		return "This command is for auction admins."
	}
	o := optionMap(opts)

	switch name {
	case "auction-status":
		return h.handleStatus(ctx)
	case "bid":
		return h.handleBid(ctx, o)
	case "teams":
		return h.handleTeams(ctx)
	case "auction-start":
		return h.handleStart(ctx, o)
	case "auction-sell":
		return h.handleSell(ctx, o)
	case "auction-unsold":
		return h.handleUnsold(ctx, o)
	case "auction-end":
		return h.handleEnd(ctx)
	case "round-advance":
		return h.handleAdvance(ctx)
	case "round-reopen":
		return h.handleReopen(ctx, o, member)
	default:
		return "Unknown command"
	}
}

func (h *Handlers) isAdmin(m *discordgo.Member) bool {
	if m == nil {
		return false
	}
	if h.adminRoleID != "" {
		return slices.Contains(m.Roles, h.adminRoleID)
	}
	return m.Permissions&discordgo.PermissionAdministrator != 0
}

type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	m := make(options, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (o options) str(name string) string {
	if opt, ok := o[name]; ok {
		return strings.TrimSpace(opt.StringValue())
	}
	return ""
}

func (h *Handlers) handleStatus(ctx context.Context) string {
	snap, err := h.surface.CurrentAuctionState(ctx)
	if err != nil {
		return h.failure(ctx, "Could not read the auction", err)
	}
	if snap.Player == nil {
		return fmt.Sprintf("No player on the block. Round: **%s**.", snap.Session.Round)
	}
	msg := fmt.Sprintf("**%s** (%s) is on the block. Round: **%s**, base price %d.\n",
		snap.Player.Name, snap.Player.Role, snap.Session.Round, snap.EffectiveBasePrice)
	if snap.State == auction.StateIdle {
		if snap.Highest == nil {
			return msg + "Bidding has closed with no bids."
		}
		return msg + fmt.Sprintf("Bidding has closed. Highest bid: **%d** by %s.",
			snap.Highest.Amount, h.teamName(ctx, snap.Highest.TeamID))
	}
	if snap.Highest == nil {
		msg += fmt.Sprintf("No bids yet. Opening bid: **%d**.", snap.MinimumBid)
	} else {
		msg += fmt.Sprintf("Highest bid: **%d** by %s. Next bid: **%d**.",
			snap.Highest.Amount, h.teamName(ctx, snap.Highest.TeamID), snap.MinimumBid)
	}
	return msg
}

func (h *Handlers) handleBid(ctx context.Context, o options) string {
	snap, err := h.surface.CurrentAuctionState(ctx)
	if err != nil {
		return h.failure(ctx, "Could not read the auction", err)
	}
	if snap.Player == nil {
		return "No player is on the block."
	}
	team, err := h.findTeam(ctx, o.str("team"))
	if err != nil {
		return h.failure(ctx, "Bid failed", err)
	}
	opt, ok := o["amount"]
	if !ok {
		return "Bid failed: an amount is required."
	}
	amount := int(opt.IntValue())

	if _, err := h.surface.PlaceBid(ctx, snap.Player.ID, team.ID, amount); err != nil {
		return h.failure(ctx, "Bid failed", err)
	}
	return fmt.Sprintf("**%s** bids **%d** for **%s**.", team.Name, amount, snap.Player.Name)
}

func (h *Handlers) handleTeams(ctx context.Context) string {
	sums, err := h.roster.TeamSummaries(ctx)
	if err != nil {
		return h.failure(ctx, "Could not list teams", err)
	}
	if len(sums) == 0 {
		return "No teams yet."
	}
	var b strings.Builder
	b.WriteString("**Teams:**\n")
	for idx, s := range sums {
		fmt.Fprintf(&b, "%d. %s: wallet %d, spent %d (%.0f%%), %d players\n",
			idx+1, s.Team.Name, s.Team.Wallet, s.Spent, s.SpentPercent, s.PlayerCount)
	}
	return b.String()
}

func (h *Handlers) handleStart(ctx context.Context, o options) string {
	p, err := h.findPlayer(ctx, o.str("player"))
	if err != nil {
		return h.failure(ctx, "Could not start the auction", err)
	}
	sess, err := h.engine.StartAuction(ctx, p.ID)
	if err != nil {
		return h.failure(ctx, "Could not start the auction", err)
	}
	return fmt.Sprintf("**%s** is on the block. Opening bid: **%d**.", p.Name, auction.EffectiveBasePrice(sess, p))
}

func (h *Handlers) handleSell(ctx context.Context, o options) string {
	p, err := h.blockOrNamed(ctx, o.str("player"))
	if err != nil {
		return h.failure(ctx, "Sale failed", err)
	}
	sale, err := h.engine.ResolvePlayerSale(ctx, p.ID)
	if err != nil {
		return h.failure(ctx, "Sale failed", err)
	}
	return fmt.Sprintf("SOLD! **%s** goes to **%s** for **%d**.", p.Name, h.teamName(ctx, sale.TeamID), sale.Amount)
}

func (h *Handlers) handleUnsold(ctx context.Context, o options) string {
	p, err := h.blockOrNamed(ctx, o.str("player"))
	if err != nil {
		return h.failure(ctx, "Could not mark unsold", err)
	}
	status, err := h.engine.MarkUnsold(ctx, p.ID)
	if err != nil {
		return h.failure(ctx, "Could not mark unsold", err)
	}
	if status == store.StatusPermanentlyUnsold {
		return fmt.Sprintf("**%s** is unsold again and leaves the auction.", p.Name)
	}
	return fmt.Sprintf("**%s** is unsold and will return in the replay round.", p.Name)
}

func (h *Handlers) handleEnd(ctx context.Context) string {
	if _, err := h.engine.EndAuction(ctx); err != nil {
		return h.failure(ctx, "Could not end the auction", err)
	}
	return "Bidding closed. Sell the player or mark it unsold, or start another auction."
}

func (h *Handlers) handleAdvance(ctx context.Context) string {
	n, err := h.engine.AdvanceRound(ctx)
	if err != nil {
		return h.failure(ctx, "Could not advance the round", err)
	}
	return fmt.Sprintf("Unsold replay round started with **%d** players at reduced prices.", n)
}

func (h *Handlers) handleReopen(ctx context.Context, o options, m *discordgo.Member) string {
	operator := ""
	if m != nil && m.User != nil {
		operator = m.User.Username
	}
	if err := h.engine.ReopenMainRound(ctx, operator, o.str("reason")); err != nil {
		return h.failure(ctx, "Could not reopen the main round", err)
	}
	return "Main round reopened."
}

// blockOrNamed resolves the named player, or the player on the block when name is empty.
func (h *Handlers) blockOrNamed(ctx context.Context, name string) (*store.Player, error) {
	if name != "" {
		return h.findPlayer(ctx, name)
	}
	snap, err := h.surface.CurrentAuctionState(ctx)
	if err != nil {
		return nil, err
	}
	if snap.Player == nil {
		return nil, fmt.Errorf("no player on the block: %w", auction.ErrInvalidState)
	}
	return snap.Player, nil
}

func (h *Handlers) findPlayer(ctx context.Context, ref string) (*store.Player, error) {
	players, err := h.roster.ListPlayers(ctx, store.StatusAvailable)
	if err != nil {
		return nil, err
	}
	for i := range players {
		if players[i].ID == ref || strings.EqualFold(players[i].Name, ref) {
			return &players[i], nil
		}
	}
	return nil, fmt.Errorf("no available player %q: %w", ref, auction.ErrNotFound)
}

func (h *Handlers) findTeam(ctx context.Context, ref string) (*store.Team, error) {
	teams, err := h.roster.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	for i := range teams {
		if teams[i].ID == ref || strings.EqualFold(teams[i].Name, ref) {
			return &teams[i], nil
		}
	}
	return nil, fmt.Errorf("no team %q: %w", ref, auction.ErrNotFound)
}

func (h *Handlers) teamName(ctx context.Context, id string) string {
	if t, err := h.findTeam(ctx, id); err == nil {
		return t.Name
	}
	return id
}

// failure turns err into a reply. Infrastructure errors are logged and not shown.
func (h *Handlers) failure(ctx context.Context, prefix string, err error) string {
	var tooLow *auction.BidTooLowError
	var funds *auction.InsufficientFundsError
	switch {
	case errors.As(err, &tooLow):
		return fmt.Sprintf("%s: the minimum bid is **%d**.", prefix, tooLow.Minimum)
	case errors.As(err, &funds):
		return fmt.Sprintf("%s: wallet holds only **%d**, **%d** needed.", prefix, funds.Wallet, funds.Required)
	case errors.Is(err, auction.ErrSameBidder):
		return prefix + ": your team already holds the highest bid."
	case errors.Is(err, auction.ErrNoBids):
		return prefix + ": there are no bids. Mark the player unsold instead."
	case errors.Is(err, auction.ErrInvalidState), errors.Is(err, auction.ErrNotFound), errors.Is(err, bidding.ErrBusy):
		return fmt.Sprintf("%s: %s", prefix, err)
	default:
		h.logger.ErrorContext(ctx, "command failed", slog.String("reply", prefix), slog.Any("error", err))
		return prefix + ": the system is unavailable, try again."
	}
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
		},
	})
}
