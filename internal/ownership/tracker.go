package ownership

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"trading-bot/internal/events"
	"trading-bot/internal/journal"
	"trading-bot/pkg/exchanges/common"
)

// Owner is the actor a position belongs to.
type Owner string

const (
	OwnerStrategy Owner = "strategy"
	OwnerManual   Owner = "manual"
	// OwnerUnknown marks a trade-coin LONG that nobody owns.
	OwnerUnknown Owner = "unknown"
	// OwnerExternal marks any other position the bot does not manage.
	OwnerExternal Owner = "external"
)

// KV keys.
const (
	KeyStrategy     = "strategy_position_id"
	KeyManualList   = "manual_position_ids"
	KeyManualLegacy = "manual_position_id"
)

// ErrManualFull is returned when adding beyond the manual cap.
var ErrManualFull = errors.New("manual position limit reached")

// KV is the durable key-value store backing ownership.
type KV interface {
	Get(ctx context.Context, key, def string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Tracker records which venue positions belong to the strategy or to manual
// actions. All operations serialise on one mutex.
type Tracker struct {
	mu        sync.Mutex
	kv        KV
	journal   *journal.Journal
	bus       *events.Bus
	coin      string
	manualCap int
}

// NewTracker creates a tracker for tradeCoin. bus may be nil.
func NewTracker(kv KV, j *journal.Journal, bus *events.Bus, tradeCoin string, manualCap int) *Tracker {
	if manualCap <= 0 {
		manualCap = 3
	}
	return &Tracker{
		kv:        kv,
		journal:   j,
		bus:       bus,
		coin:      strings.ToUpper(tradeCoin),
		manualCap: manualCap,
	}
}

// ManualCap is the maximum number of manual-owned positions.
func (t *Tracker) ManualCap() int { return t.manualCap }

// StrategyID returns the strategy-owned id, or "".
func (t *Tracker) StrategyID(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.strategyID(ctx)
}

// BindStrategy makes id the strategy position and removes it from manual.
func (t *Tracker) BindStrategy(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bindStrategy(ctx, id)
}

// ClearStrategy unbinds the strategy position.
func (t *Tracker) ClearStrategy(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.kv.Set(ctx, KeyStrategy, ""); err != nil {
		return err
	}
	t.publish(events.OwnershipEvent{Owner: string(OwnerStrategy), Change: "cleared"})
	return nil
}

// ManualIDs returns the manual-owned ids in insertion order.
func (t *Tracker) ManualIDs(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.manualIDs(ctx)
}

// AddManual appends id to the manual list and removes it from strategy.
func (t *Tracker) AddManual(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addManual(ctx, id)
}

// RemoveManual drops id from the manual list.
func (t *Tracker) RemoveManual(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids, err := t.manualIDs(ctx)
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(ids, func(v string) bool { return v == id })
	if err := t.setManual(ctx, kept); err != nil {
		return err
	}
	t.publish(events.OwnershipEvent{Owner: string(OwnerManual), PositionID: id, Change: "cleared"})
	return nil
}

// Reconcile prunes ids that are no longer open and, when nothing is owned,
// maps unowned trade-coin LONGs to owners by a best-effort heuristic.
func (t *Tracker) Reconcile(ctx context.Context, positions []common.Position) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	strategyID, err := t.strategyID(ctx)
	if err != nil {
		return err
	}
	if strategyID != "" {
		if _, open := common.FindPosition(positions, strategyID); !open {
			if err := t.kv.Set(ctx, KeyStrategy, ""); err != nil {
				return err
			}
			t.info(ctx, fmt.Sprintf("Cleared stale strategy position id %s.", strategyID))
			t.publish(events.OwnershipEvent{Owner: string(OwnerStrategy), PositionID: strategyID, Change: "pruned"})
			strategyID = ""
		}
	}

	manual, err := t.manualIDs(ctx)
	if err != nil {
		return err
	}
	var valid, stale []string
	for _, id := range manual {
		if _, open := common.FindPosition(positions, id); open {
			valid = append(valid, id)
		} else {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := t.setManual(ctx, valid); err != nil {
			return err
		}
		t.info(ctx, "Cleared stale manual position ids: "+strings.Join(stale, ", "))
		t.publish(events.OwnershipEvent{Owner: string(OwnerManual), Change: "pruned", Detail: strings.Join(stale, ",")})
	}

	if strategyID != "" || len(valid) > 0 {
		return nil
	}
	return t.adoptUnowned(ctx, positions)
}

// adoptUnowned maps legacy unowned LONGs: a single one goes to manual;
// with several, the earliest goes to strategy and the latest to manual.
func (t *Tracker) adoptUnowned(ctx context.Context, positions []common.Position) error {
	longs := t.longsOn(positions, t.coin)
	switch len(longs) {
	case 0:
		return nil
	case 1:
		id := longs[0].ID
		if err := t.setManual(ctx, []string{id}); err != nil {
			return err
		}
		t.warn(ctx, fmt.Sprintf("Mapped legacy unknown %s position %s to manual owner.", t.coin, id))
		t.publish(events.OwnershipEvent{Owner: string(OwnerManual), PositionID: id, Change: "heuristic"})
		return nil
	}

	sort.SliceStable(longs, func(i, j int) bool { return longs[i].OpenedAt < longs[j].OpenedAt })
	strategyID := longs[0].ID
	manualID := longs[len(longs)-1].ID
	if err := t.kv.Set(ctx, KeyStrategy, strategyID); err != nil {
		return err
	}
	if err := t.setManual(ctx, []string{manualID}); err != nil {
		return err
	}
	t.warn(ctx, fmt.Sprintf("Mapped legacy unknown %s positions to owners strategy=%s, manual=%s.", t.coin, strategyID, manualID))
	t.publish(events.OwnershipEvent{Owner: string(OwnerStrategy), PositionID: strategyID, Change: "heuristic"})
	t.publish(events.OwnershipEvent{Owner: string(OwnerManual), PositionID: manualID, Change: "heuristic"})
	return nil
}

// CaptureTier says how a newly opened position was identified.
type CaptureTier int

const (
	CaptureNone CaptureTier = iota
	CaptureDiff
	CaptureResponse
	CaptureFallback
)

func (c CaptureTier) String() string {
	switch c {
	case CaptureDiff:
		return "diff"
	case CaptureResponse:
		return "response"
	case CaptureFallback:
		return "fallback"
	}
	return "none"
}

// Capture binds the position created by an open call to owner. It tries, in
// order: the single new LONG id on coin between before and after, the id in
// the open response if it is open, then the most recently opened LONG on coin.
func (t *Tracker) Capture(ctx context.Context, owner Owner, coin string, before, after []common.Position, resp common.Response) (string, CaptureTier, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	coin = strings.ToUpper(coin)
	beforeIDs := make(map[string]bool)
	for _, p := range t.longsOn(before, coin) {
		beforeIDs[p.ID] = true
	}
	afterLongs := t.longsOn(after, coin)

	var fresh []string
	afterIDs := make(map[string]bool, len(afterLongs))
	for _, p := range afterLongs {
		afterIDs[p.ID] = true
		if !beforeIDs[p.ID] {
			fresh = append(fresh, p.ID)
		}
	}

	var (
		id   string
		tier CaptureTier
	)
	switch respID := resp.PositionID(); {
	case len(fresh) == 1:
		id, tier = fresh[0], CaptureDiff
	case respID != "" && afterIDs[respID]:
		id, tier = respID, CaptureResponse
	case len(afterLongs) > 0:
		sort.SliceStable(afterLongs, func(i, j int) bool { return afterLongs[i].OpenedAt > afterLongs[j].OpenedAt })
		id, tier = afterLongs[0].ID, CaptureFallback
	default:
		return "", CaptureNone, nil
	}

	var err error
	if owner == OwnerManual {
		err = t.addManual(ctx, id)
	} else {
		err = t.bindStrategy(ctx, id)
	}
	if err != nil {
		return "", CaptureNone, err
	}

	switch tier {
	case CaptureDiff:
		t.info(ctx, fmt.Sprintf("Mapped %s position id %s.", owner, id))
	case CaptureResponse:
		t.info(ctx, fmt.Sprintf("Mapped %s position id %s from open response.", owner, id))
	case CaptureFallback:
		t.warn(ctx, fmt.Sprintf("Mapped %s position id %s using fallback matching.", owner, id))
	}
	return id, tier, nil
}

// OwnedPosition is a position annotated with its owner.
type OwnedPosition struct {
	common.Position
	Owner Owner `json:"owner"`
}

// Classification splits open positions by owner.
type Classification struct {
	StrategyPosition *common.Position `json:"strategy_position"`
	ManualPosition   *common.Position `json:"manual_position"`
	ManualPositions  []common.Position `json:"manual_positions"`
	UnknownPositions []common.Position `json:"unknown_positions"`
	Items            []OwnedPosition   `json:"items"`
}

// Classify annotates positions with their owners.
func (t *Tracker) Classify(ctx context.Context, positions []common.Position) (Classification, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	strategyID, err := t.strategyID(ctx)
	if err != nil {
		return Classification{}, err
	}
	manual, err := t.manualIDs(ctx)
	if err != nil {
		return Classification{}, err
	}

	out := Classification{
		ManualPositions:  []common.Position{},
		UnknownPositions: []common.Position{},
		Items:            make([]OwnedPosition, 0, len(positions)),
	}
	if p, ok := common.FindPosition(positions, strategyID); ok {
		out.StrategyPosition = &p
	}
	for _, id := range manual {
		if p, ok := common.FindPosition(positions, id); ok {
			out.ManualPositions = append(out.ManualPositions, p)
		}
	}
	if len(out.ManualPositions) > 0 {
		first := out.ManualPositions[0]
		out.ManualPosition = &first
	}

	for _, p := range positions {
		owner := OwnerExternal
		switch {
		case p.ID != "" && p.ID == strategyID:
			owner = OwnerStrategy
		case p.ID != "" && slices.Contains(manual, p.ID):
			owner = OwnerManual
		case p.IsLongOn(t.coin):
			owner = OwnerUnknown
			out.UnknownPositions = append(out.UnknownPositions, p)
		}
		out.Items = append(out.Items, OwnedPosition{Position: p, Owner: owner})
	}
	return out, nil
}

// StrategyOpen reports whether the strategy owns an open position.
func (t *Tracker) StrategyOpen(ctx context.Context, positions []common.Position) (common.Position, bool, error) {
	id, err := t.StrategyID(ctx)
	if err != nil {
		return common.Position{}, false, err
	}
	p, ok := common.FindPosition(positions, id)
	return p, ok, nil
}

// ManualHasOpenCoin reports whether a manual-owned LONG on coin is open.
func (t *Tracker) ManualHasOpenCoin(ctx context.Context, positions []common.Position, coin string) (bool, error) {
	ids, err := t.ManualIDs(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if p, ok := common.FindPosition(positions, id); ok && p.IsLongOn(coin) {
			return true, nil
		}
	}
	return false, nil
}

func (t *Tracker) strategyID(ctx context.Context) (string, error) {
	return t.kv.Get(ctx, KeyStrategy, "")
}

func (t *Tracker) bindStrategy(ctx context.Context, id string) error {
	if err := t.kv.Set(ctx, KeyStrategy, id); err != nil {
		return err
	}
	manual, err := t.manualIDs(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(manual, id) {
		if err := t.setManual(ctx, slices.DeleteFunc(manual, func(v string) bool { return v == id })); err != nil {
			return err
		}
	}
	t.publish(events.OwnershipEvent{Owner: string(OwnerStrategy), PositionID: id, Change: "bound"})
	return nil
}

func (t *Tracker) addManual(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	ids, err := t.manualIDs(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(ids, id) {
		if len(ids) >= t.manualCap {
			return fmt.Errorf("%w (%d)", ErrManualFull, t.manualCap)
		}
		ids = append(ids, id)
	}
	if err := t.setManual(ctx, ids); err != nil {
		return err
	}
	if sid, err := t.strategyID(ctx); err == nil && sid == id {
		if err := t.kv.Set(ctx, KeyStrategy, ""); err != nil {
			return err
		}
	}
	t.publish(events.OwnershipEvent{Owner: string(OwnerManual), PositionID: id, Change: "bound"})
	return nil
}

// manualIDs reads the list, accepting a legacy comma-separated value and
// merging the legacy single key in front. A list that needed cleanup is
// written back.
func (t *Tracker) manualIDs(ctx context.Context) ([]string, error) {
	raw, err := t.kv.Get(ctx, KeyManualList, "")
	if err != nil {
		return nil, err
	}
	ids := parseIDs(raw)

	legacy, err := t.kv.Get(ctx, KeyManualLegacy, "")
	if err != nil {
		return nil, err
	}
	if legacy != "" && !slices.Contains(ids, legacy) {
		ids = append([]string{legacy}, ids...)
	}
	deduped := dedupe(ids)
	if len(deduped) != len(ids) {
		if err := t.setManual(ctx, deduped); err != nil {
			return nil, err
		}
	}
	return deduped, nil
}

func (t *Tracker) setManual(ctx context.Context, ids []string) error {
	clean := dedupe(ids)
	b, err := sonic.Marshal(clean)
	if err != nil {
		return err
	}
	if err := t.kv.Set(ctx, KeyManualList, string(b)); err != nil {
		return err
	}
	first := ""
	if len(clean) > 0 {
		first = clean[0]
	}
	return t.kv.Set(ctx, KeyManualLegacy, first)
}

func (t *Tracker) longsOn(positions []common.Position, coin string) []common.Position {
	var out []common.Position
	for _, p := range positions {
		if p.IsLongOn(coin) {
			out = append(out, p)
		}
	}
	return out
}

func (t *Tracker) publish(e events.OwnershipEvent) {
	t.bus.Publish(events.EventOwnership, e)
}

func (t *Tracker) info(ctx context.Context, msg string) {
	if t.journal != nil {
		t.journal.Info(ctx, msg, zap.String("component", "ownership"))
	}
}

func (t *Tracker) warn(ctx context.Context, msg string) {
	if t.journal != nil {
		t.journal.Warn(ctx, msg, zap.String("component", "ownership"))
	}
}

func parseIDs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var list []any
	if err := sonic.UnmarshalString(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, v := range list {
			var s string
			switch x := v.(type) {
			case string:
				s = x
			case float64:
				s = fmt.Sprintf("%.0f", x)
			default:
				s = fmt.Sprint(x)
			}
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
