package roster

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jensholdgaard/player-auction/internal/event"
	"github.com/jensholdgaard/player-auction/internal/store"
)

// DefaultBasePrice is used for imported rows with a missing or invalid price.
const DefaultBasePrice = 1000

// ImportAggregate is the aggregate ID of players.imported events.
const ImportAggregate = "roster-import"

// ErrImportRejected is returned when an import file has fatal errors.
// Nothing is created in that case.
var ErrImportRejected = errors.New("import rejected")

// ImportResult reports the outcome of an import.
type ImportResult struct {
	Created  int      `json:"created"`
	Warnings []string `json:"warnings"`
	Errors   []string `json:"errors"`
}

type column int

const (
	colName column = iota
	colRole
	colBatting
	colBowling
	colPrice
)

var headerAliases = map[string]column{
	"name":           colName,
	"player":         colName,
	"player name":    colName,
	"role":           colRole,
	"specialization": colRole,
	"type":           colRole,
	"batting":        colBatting,
	"batting style":  colBatting,
	"bowling":        colBowling,
	"bowling style":  colBowling,
	"base price":     colPrice,
	"baseprice":      colPrice,
	"price":          colPrice,
	"base":           colPrice,
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer("_", " ", "-", " ").Replace(h)
	return strings.Join(strings.Fields(h), " ")
}

// Import reads a CSV file with a header row and creates one available player
// per named row. Either every row is created or none is.
func (m *Manager) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Import")
	defer span.End()

	res := &ImportResult{}
	players, err := parsePlayers(r, res)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, fmt.Errorf("%w: %v", ErrImportRejected, err)
	}

	err = m.repos.Atomic(ctx, func(tx *store.Repositories) error {
		for _, p := range players {
			if err := tx.Players.Create(ctx, p); err != nil {
				return fmt.Errorf("creating player %q: %w", p.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, fmt.Errorf("importing players: %w", err)
	}
	res.Created = len(players)
	span.SetAttributes(attribute.Int("created", res.Created))

	data, _ := json.Marshal(event.PlayersImportedData{Created: res.Created, Warnings: len(res.Warnings)})
	evt := event.Event{
		AggregateID: ImportAggregate,
		Type:        event.PlayersImported,
		Data:        data,
	}
	if err := m.repos.Events.Append(ctx, evt); err != nil {
		m.logger.ErrorContext(ctx, "failed to append players imported event", slog.Any("error", err))
	}

	m.logger.InfoContext(ctx, "players imported",
		slog.Int("created", res.Created),
		slog.Int("warnings", len(res.Warnings)),
	)
	return res, nil
}

func parsePlayers(r io.Reader, res *ImportResult) ([]*store.Player, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	idx := map[column]int{}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		c, ok := headerAliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, dup := idx[c]; !dup {
			idx[c] = i
		}
	}
	if _, ok := idx[colName]; !ok {
		return nil, errors.New("no name column in header")
	}
	if _, ok := idx[colPrice]; !ok {
		res.Warnings = append(res.Warnings, fmt.Sprintf("no price column, every player gets base price %d", DefaultBasePrice))
	}

	field := func(rec []string, c column) string {
		i, ok := idx[c]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var players []*store.Player
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", line, err)
		}

		name := field(rec, colName)
		if name == "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("line %d: no name, row skipped", line))
			continue
		}

		price := DefaultBasePrice
		if _, ok := idx[colPrice]; ok {
			raw := field(rec, colPrice)
			n, err := strconv.Atoi(strings.ReplaceAll(raw, ",", ""))
			if err != nil || n <= 0 {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("line %d: invalid price %q for %s, using %d", line, raw, name, DefaultBasePrice))
			} else {
				price = n
			}
		}

		players = append(players, playerFrom(store.PlayerProfile{
			Name:         name,
			Role:         field(rec, colRole),
			BattingStyle: field(rec, colBatting),
			BowlingStyle: field(rec, colBowling),
			BasePrice:    price,
		}))
	}
	return players, nil
}
