package stats

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"predictScope/internal/model"
	"predictScope/internal/storage"
)

// Applier holds the event handlers shared by the live and backfill drivers.
// Every handler is an idempotent guarded update, so redelivery under
// at-least-once semantics is safe. Each handler commits its writes as one
// atomic change set; a failed commit leaves no partial state, so a retried
// event either replays in full or hits its guard and stops.
type Applier struct {
	store storage.Store
	log   *zap.Logger
}

func NewApplier(store storage.Store, log *zap.Logger) *Applier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Applier{store: store, log: log}
}

// Apply dispatches one decoded event to its handler. Malformed events are
// logged and returned as MalformedEventError so callers can skip without
// retrying.
func (a *Applier) Apply(ctx context.Context, event model.Event) error {
	var err error
	switch ev := event.(type) {
	case model.MarketCreated:
		err = a.applyMarketCreated(ctx, &ev)
	case model.OptionBought:
		err = a.applyOptionBought(ctx, &ev)
	case model.MarketResolved:
		err = a.applyMarketResolved(ctx, &ev)
	case model.MarketRefunded:
		err = a.applyMarketRefunded(ctx, &ev)
	case model.UserWon:
		err = a.applyWin(ctx, ev.Name(), ev.Meta(), ev.User, ev.MarketID, ev.Amount)
	case model.WinningsClaimed:
		err = a.applyWin(ctx, ev.Name(), ev.Meta(), ev.User, ev.MarketID, ev.Payout)
	case model.UserLost:
		err = a.applyUserLost(ctx, &ev)
	case model.RefundClaimed:
		err = a.applyRefundClaimed(ctx, &ev)
	default:
		return fmt.Errorf("unhandled event type %s", event.Name())
	}

	if IsMalformed(err) {
		a.log.Warn("skipping malformed event",
			zap.String("event", event.Name()),
			zap.String("ref", event.Meta().Ref()),
			zap.Error(err),
		)
	}
	return err
}

func (a *Applier) applyMarketCreated(ctx context.Context, ev *model.MarketCreated) error {
	existing, err := a.store.GetMarket(ctx, ev.MarketID)
	if err != nil {
		return err
	}
	if existing != nil {
		// Duplicate delivery. Everything else committed with the market,
		// so only the keyed snapshot upsert is worth repeating.
		return a.appendSnapshot(ctx, existing, ev.Meta())
	}

	global, err := a.global(ctx)
	if err != nil {
		return err
	}

	changes := &storage.ChangeSet{}
	creator := model.NormalizeAddress(ev.Creator)
	if creator != "" {
		user, err := a.getOrCreateUser(ctx, creator, global)
		if err != nil {
			return err
		}
		user.LastActiveTimestamp = maxUint64(user.LastActiveTimestamp, ev.Timestamp)
		changes.Users = append(changes.Users, user)
	}

	priceA, priceB := derivePrices(big.NewInt(0), big.NewInt(0))
	market := &model.Market{
		ID:            ev.MarketID,
		Creator:       creator,
		Question:      ev.Question,
		OptionA:       ev.OptionA,
		OptionB:       ev.OptionB,
		Category:      ev.Category,
		LogoURLA:      ev.LogoURLA,
		LogoURLB:      ev.LogoURLB,
		EndTime:       ev.EndTime,
		OracleMatchID: ev.OracleMatchID,
		TotalPoolA:    big.NewInt(0),
		TotalPoolB:    big.NewInt(0),
		CurrentPriceA: priceA,
		CurrentPriceB: priceB,
		Outcome:       model.MarketUnresolved,
		CreatedAt:     ev.Timestamp,
	}
	changes.Markets = append(changes.Markets, market)
	changes.Snapshots = append(changes.Snapshots, priceSnapshot(market, ev.Meta()))

	global.TotalMarkets++
	changes.Global = stampGlobal(global, ev.Timestamp)
	return a.store.Commit(ctx, changes)
}

func (a *Applier) applyOptionBought(ctx context.Context, ev *model.OptionBought) error {
	market, err := a.store.GetMarket(ctx, ev.MarketID)
	if err != nil {
		return err
	}
	if market == nil {
		return &MalformedEventError{Event: ev.Name(), Ref: ev.Ref(), Reason: "unknown market"}
	}

	address := model.NormalizeAddress(ev.User)
	key := model.BetKey{MarketID: ev.MarketID, User: address, Side: ev.Side}
	existing, err := a.store.GetBet(ctx, key)
	if err != nil {
		return err
	}
	if existing != nil {
		// Duplicate delivery. The bet record commits atomically with the
		// pool, monthly and global updates, so its presence means every
		// staking effect already landed.
		return a.appendSnapshot(ctx, market, ev.Meta())
	}

	global, err := a.global(ctx)
	if err != nil {
		return err
	}
	user, err := a.getOrCreateUser(ctx, address, global)
	if err != nil {
		return err
	}

	user.TotalBets++
	user.TotalStaked = new(big.Int).Add(user.TotalStaked, ev.Amount)
	user.LastActiveTimestamp = maxUint64(user.LastActiveTimestamp, ev.Timestamp)
	user.TotalROI = computeROI(user.TotalWinnings, user.TotalLost, user.TotalStaked)

	pool := market.PoolBySide(ev.Side)
	pool.Add(pool, ev.Amount)
	market.CurrentPriceA, market.CurrentPriceB = derivePrices(market.TotalPoolA, market.TotalPoolB)

	bet := &model.Bet{
		MarketID:  ev.MarketID,
		User:      address,
		Side:      ev.Side,
		Amount:    new(big.Int).Set(ev.Amount),
		Timestamp: ev.Timestamp,
		Outcome:   model.BetUnresolved,
	}

	monthly, err := a.getOrCreateMonthly(ctx, address, ev.Timestamp)
	if err != nil {
		return err
	}
	monthly.Bets++
	monthly.Staked = new(big.Int).Add(monthly.Staked, ev.Amount)

	global.TotalBets++
	global.TotalVolumeStaked = new(big.Int).Add(global.TotalVolumeStaked, ev.Amount)

	return a.store.Commit(ctx, &storage.ChangeSet{
		Markets:   []*model.Market{market},
		Users:     []*model.User{user},
		Bets:      []*model.Bet{bet},
		Monthlies: []*model.MonthlyStat{monthly},
		Snapshots: []*model.PriceSnapshot{priceSnapshot(market, ev.Meta())},
		Global:    stampGlobal(global, ev.Timestamp),
	})
}

func (a *Applier) applyMarketResolved(ctx context.Context, ev *model.MarketResolved) error {
	if ev.Outcome != model.MarketOptionA && ev.Outcome != model.MarketOptionB {
		return &MalformedEventError{Event: ev.Name(), Ref: ev.Ref(), Reason: fmt.Sprintf("invalid outcome %d", ev.Outcome)}
	}
	market, err := a.store.GetMarket(ctx, ev.MarketID)
	if err != nil {
		return err
	}
	if market == nil {
		return &MalformedEventError{Event: ev.Name(), Ref: ev.Ref(), Reason: "unknown market"}
	}

	if !market.Resolved() {
		market.Outcome = ev.Outcome
		market.ResolvedBy = ev.ResolvedBy
		market.ResolutionDetails = ev.Details
		market.ResolutionTimestamp = ev.Timestamp
		if err := a.store.PutMarket(ctx, market); err != nil {
			return err
		}
	}

	// Fan out over the market's bets. The guard is the per-bet outcome
	// transition, not a market-level flag, so a crash mid-loop resumes
	// cleanly on redelivery.
	bets, err := a.store.BetsByMarket(ctx, ev.MarketID)
	if err != nil {
		return err
	}
	for _, bet := range bets {
		if bet.Outcome != model.BetUnresolved {
			continue
		}
		if err := a.classifyBet(ctx, bet, market.Outcome, ev.Timestamp); err != nil {
			return err
		}
	}

	global, err := a.global(ctx)
	if err != nil {
		return err
	}
	return a.putGlobal(ctx, global, ev.Timestamp)
}

// classifyBet transitions one unresolved bet to WON or LOST and commits the
// bet, the owner's counters and the monthly rollup as one unit. The bet's
// outcome is the guard, so it has to land with everything it implies.
func (a *Applier) classifyBet(ctx context.Context, bet *model.Bet, outcome model.MarketOutcome, ts uint64) error {
	user, err := a.store.GetUser(ctx, bet.User)
	if err != nil {
		return err
	}
	if user == nil {
		user = model.NewUser(bet.User)
	}

	monthly, err := a.getOrCreateMonthly(ctx, bet.User, ts)
	if err != nil {
		return err
	}

	if bet.Side.Wins(outcome) {
		bet.Outcome = model.BetWon
		applyWinCounters(user, bet.Amount)
		monthly.Wins++
	} else {
		bet.Outcome = model.BetLost
		applyLossCounters(user, bet.Amount)
		monthly.Losses++
		monthly.Lost = new(big.Int).Add(monthly.Lost, bet.Amount)
	}
	user.TotalROI = computeROI(user.TotalWinnings, user.TotalLost, user.TotalStaked)
	user.LastActiveTimestamp = maxUint64(user.LastActiveTimestamp, ts)

	return a.store.Commit(ctx, &storage.ChangeSet{
		Users:     []*model.User{user},
		Bets:      []*model.Bet{bet},
		Monthlies: []*model.MonthlyStat{monthly},
	})
}

func applyWinCounters(user *model.User, amount *big.Int) {
	user.Wins++
	user.CurrentStreak++
	user.BestStreak = maxUint64(user.BestStreak, user.CurrentStreak)
	user.LargestWin = new(big.Int).Set(maxBig(user.LargestWin, amount))
}

func applyLossCounters(user *model.User, amount *big.Int) {
	user.Losses++
	user.CurrentStreak = 0
	user.TotalLost = new(big.Int).Add(user.TotalLost, amount)
	user.LargestLoss = new(big.Int).Set(maxBig(user.LargestLoss, amount))
}

func (a *Applier) applyMarketRefunded(ctx context.Context, ev *model.MarketRefunded) error {
	market, err := a.store.GetMarket(ctx, ev.MarketID)
	if err != nil {
		return err
	}
	if market == nil {
		return &MalformedEventError{Event: ev.Name(), Ref: ev.Ref(), Reason: "unknown market"}
	}

	if market.ResolutionTimestamp == 0 {
		market.ResolvedBy = ev.ResolvedBy
		market.ResolutionDetails = ev.Reason
		market.ResolutionTimestamp = ev.Timestamp
		if err := a.store.PutMarket(ctx, market); err != nil {
			return err
		}
	}

	bets, err := a.store.BetsByMarket(ctx, ev.MarketID)
	if err != nil {
		return err
	}
	for _, bet := range bets {
		if bet.Claimed || bet.Outcome != model.BetUnresolved {
			continue
		}
		bet.Outcome = model.BetRefundable
		if err := a.store.PutBet(ctx, bet); err != nil {
			return err
		}
	}

	global, err := a.global(ctx)
	if err != nil {
		return err
	}
	return a.putGlobal(ctx, global, ev.Timestamp)
}

// applyWin handles both UserWon and WinningsClaimed: either one attributes
// the payout, the other becomes a no-op through the winnings guard.
func (a *Applier) applyWin(ctx context.Context, name string, meta model.EventMeta, userAddr, marketID string, payout *big.Int) error {
	market, err := a.store.GetMarket(ctx, marketID)
	if err != nil {
		return err
	}
	if market == nil {
		return &MalformedEventError{Event: name, Ref: meta.Ref(), Reason: "unknown market"}
	}
	if !market.Resolved() {
		return &MalformedEventError{Event: name, Ref: meta.Ref(), Reason: "market not resolved"}
	}

	address := model.NormalizeAddress(userAddr)
	side := winningSide(market.Outcome)
	bet, err := a.store.GetBet(ctx, model.BetKey{MarketID: marketID, User: address, Side: side})
	if err != nil {
		return err
	}
	if bet == nil {
		return &MalformedEventError{Event: name, Ref: meta.Ref(), Reason: "no bet on winning side"}
	}
	if bet.Winnings != nil {
		// Net winnings already attributed by the paired notification.
		return nil
	}

	user, err := a.store.GetUser(ctx, address)
	if err != nil {
		return err
	}
	if user == nil {
		user = model.NewUser(address)
	}

	newlyClassified := bet.Outcome == model.BetUnresolved
	if newlyClassified {
		bet.Outcome = model.BetWon
		applyWinCounters(user, bet.Amount)
	}
	bet.Claimed = true
	bet.Winnings = new(big.Int).Set(payout)

	net := new(big.Int).Sub(payout, bet.Amount)
	user.TotalWinnings = new(big.Int).Add(user.TotalWinnings, net)
	user.LargestWin = new(big.Int).Set(maxBig(user.LargestWin, net))
	user.TotalROI = computeROI(user.TotalWinnings, user.TotalLost, user.TotalStaked)
	user.LastActiveTimestamp = maxUint64(user.LastActiveTimestamp, meta.Timestamp)

	monthly, err := a.getOrCreateMonthly(ctx, address, meta.Timestamp)
	if err != nil {
		return err
	}
	monthly.Winnings = new(big.Int).Add(monthly.Winnings, net)
	if newlyClassified {
		monthly.Wins++
	}

	global, err := a.global(ctx)
	if err != nil {
		return err
	}
	global.TotalWinnings = new(big.Int).Add(global.TotalWinnings, net)

	// The winnings guard is bet.Winnings, so it must commit with every
	// counter the payout feeds.
	return a.store.Commit(ctx, &storage.ChangeSet{
		Users:     []*model.User{user},
		Bets:      []*model.Bet{bet},
		Monthlies: []*model.MonthlyStat{monthly},
		Global:    stampGlobal(global, meta.Timestamp),
	})
}

func (a *Applier) applyUserLost(ctx context.Context, ev *model.UserLost) error {
	market, err := a.store.GetMarket(ctx, ev.MarketID)
	if err != nil {
		return err
	}
	if market == nil {
		return &MalformedEventError{Event: ev.Name(), Ref: ev.Ref(), Reason: "unknown market"}
	}
	if !market.Resolved() {
		return &MalformedEventError{Event: ev.Name(), Ref: ev.Ref(), Reason: "market not resolved"}
	}

	address := model.NormalizeAddress(ev.User)
	side := losingSide(market.Outcome)
	bet, err := a.store.GetBet(ctx, model.BetKey{MarketID: ev.MarketID, User: address, Side: side})
	if err != nil {
		return err
	}
	if bet == nil {
		return &MalformedEventError{Event: ev.Name(), Ref: ev.Ref(), Reason: "no bet on losing side"}
	}
	if bet.Claimed {
		return nil
	}

	user, err := a.store.GetUser(ctx, address)
	if err != nil {
		return err
	}
	if user == nil {
		user = model.NewUser(address)
	}

	changes := &storage.ChangeSet{}
	if bet.Outcome == model.BetUnresolved {
		// Resolution fan-out never reached this bet; classify it here.
		bet.Outcome = model.BetLost
		applyLossCounters(user, bet.Amount)
		user.TotalROI = computeROI(user.TotalWinnings, user.TotalLost, user.TotalStaked)

		monthly, err := a.getOrCreateMonthly(ctx, address, ev.Timestamp)
		if err != nil {
			return err
		}
		monthly.Losses++
		monthly.Lost = new(big.Int).Add(monthly.Lost, bet.Amount)
		changes.Monthlies = append(changes.Monthlies, monthly)
	}
	bet.Claimed = true
	user.LastActiveTimestamp = maxUint64(user.LastActiveTimestamp, ev.Timestamp)

	global, err := a.global(ctx)
	if err != nil {
		return err
	}
	changes.Users = []*model.User{user}
	changes.Bets = []*model.Bet{bet}
	changes.Global = stampGlobal(global, ev.Timestamp)
	return a.store.Commit(ctx, changes)
}

func (a *Applier) applyRefundClaimed(ctx context.Context, ev *model.RefundClaimed) error {
	address := model.NormalizeAddress(ev.User)
	var candidates []*model.Bet
	for _, side := range []model.Side{model.SideA, model.SideB} {
		bet, err := a.store.GetBet(ctx, model.BetKey{MarketID: ev.MarketID, User: address, Side: side})
		if err != nil {
			return err
		}
		if bet != nil && bet.Outcome == model.BetRefundable && !bet.Claimed {
			candidates = append(candidates, bet)
		}
	}
	if len(candidates) == 0 {
		return &MalformedEventError{Event: ev.Name(), Ref: ev.Ref(), Reason: "no refundable unclaimed bet"}
	}

	// Prefer the side whose stake matches the refunded amount; with both
	// sides refundable and equal stakes, side A claims first.
	bet := candidates[0]
	for _, candidate := range candidates {
		if candidate.Amount.Cmp(ev.Amount) == 0 {
			bet = candidate
			break
		}
	}
	bet.Claimed = true

	user, err := a.store.GetUser(ctx, address)
	if err != nil {
		return err
	}
	if user == nil {
		user = model.NewUser(address)
	}
	user.LastActiveTimestamp = maxUint64(user.LastActiveTimestamp, ev.Timestamp)

	global, err := a.global(ctx)
	if err != nil {
		return err
	}
	return a.store.Commit(ctx, &storage.ChangeSet{
		Users:  []*model.User{user},
		Bets:   []*model.Bet{bet},
		Global: stampGlobal(global, ev.Timestamp),
	})
}

func winningSide(outcome model.MarketOutcome) model.Side {
	if outcome == model.MarketOptionA {
		return model.SideA
	}
	return model.SideB
}

func losingSide(outcome model.MarketOutcome) model.Side {
	if outcome == model.MarketOptionA {
		return model.SideB
	}
	return model.SideA
}

func priceSnapshot(market *model.Market, meta model.EventMeta) *model.PriceSnapshot {
	return &model.PriceSnapshot{
		MarketID:    market.ID,
		Timestamp:   meta.Timestamp,
		TotalPoolA:  new(big.Int).Set(market.TotalPoolA),
		TotalPoolB:  new(big.Int).Set(market.TotalPoolB),
		PriceA:      market.CurrentPriceA,
		PriceB:      market.CurrentPriceB,
		BlockNumber: meta.BlockNumber,
	}
}

func (a *Applier) appendSnapshot(ctx context.Context, market *model.Market, meta model.EventMeta) error {
	return a.store.AppendSnapshot(ctx, priceSnapshot(market, meta))
}

func (a *Applier) getOrCreateUser(ctx context.Context, address string, global *model.GlobalStat) (*model.User, error) {
	user, err := a.store.GetUser(ctx, address)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = model.NewUser(address)
		global.TotalUsers++
	}
	return user, nil
}

func (a *Applier) getOrCreateMonthly(ctx context.Context, address string, ts uint64) (*model.MonthlyStat, error) {
	period := yearMonth(ts)
	monthly, err := a.store.GetMonthly(ctx, address, period)
	if err != nil {
		return nil, err
	}
	if monthly == nil {
		monthly = model.NewMonthlyStat(address, period)
	}
	return monthly, nil
}

func (a *Applier) global(ctx context.Context) (*model.GlobalStat, error) {
	global, err := a.store.GetGlobal(ctx)
	if err != nil {
		return nil, err
	}
	if global == nil {
		global = model.NewGlobalStat()
	}
	return global, nil
}

func stampGlobal(global *model.GlobalStat, ts uint64) *model.GlobalStat {
	global.LastUpdateTimestamp = maxUint64(global.LastUpdateTimestamp, ts)
	return global
}

func (a *Applier) putGlobal(ctx context.Context, global *model.GlobalStat, ts uint64) error {
	return a.store.PutGlobal(ctx, stampGlobal(global, ts))
}
