package backtest

import (
	"math"
	"sort"
	"time"

	"sapas/internal/dto"

	"github.com/shopspring/decimal"
)

// currencyPlaces is the rounding precision for money amounts. Rounding is
// banker's (round-half-even) everywhere so identical runs produce identical
// results.
const currencyPlaces = 2

// position is one open holding. Quantity is always > 0; a closed position is
// removed from the map instead of being zeroed.
type position struct {
	code      string
	quantity  int64
	avgCost   decimal.Decimal // per-share, includes slippage and buy commission
	entryDate time.Time
	heldDays  int // trading days since entry
}

// SimConfig fixes the frictions and sizing rules for one simulation.
type SimConfig struct {
	InitialCash    decimal.Decimal
	CommissionRate decimal.Decimal
	Slippage       decimal.Decimal
	PositionSize   decimal.Decimal // fraction of cash per new position, (0, 1]
	MaxPositions   int
}

// Simulator owns the portfolio state of a single run: cash, open positions,
// the equity curve and the trade log. It is not safe for concurrent use;
// each run gets its own instance.
type Simulator struct {
	cfg       SimConfig
	cash      decimal.Decimal
	positions map[string]*position
	equity    []dto.EquityPoint
	trades    []dto.TradeRecord
	lastDate  time.Time
}

func NewSimulator(cfg SimConfig) *Simulator {
	return &Simulator{
		cfg:       cfg,
		cash:      cfg.InitialCash,
		positions: make(map[string]*position),
	}
}

func (s *Simulator) Cash() decimal.Decimal { return s.cash }

func (s *Simulator) OpenPositions() int { return len(s.positions) }

func (s *Simulator) EquityCurve() []dto.EquityPoint { return s.equity }

func (s *Simulator) Trades() []dto.TradeRecord { return s.trades }

// Snapshot returns a read-only copy of the current state for strategy
// evaluation. Mutating the snapshot never affects the simulator.
func (s *Simulator) Snapshot() dto.PortfolioSnapshot {
	views := make(map[string]dto.PositionView, len(s.positions))
	for code, p := range s.positions {
		views[code] = dto.PositionView{
			Code:      p.code,
			Quantity:  p.quantity,
			AvgCost:   p.avgCost,
			EntryDate: p.entryDate,
			HeldDays:  p.heldDays,
		}
	}
	return dto.PortfolioSnapshot{Cash: s.cash, Positions: views}
}

// ExpiredPositions lists held codes whose holding period has reached the cap,
// sorted by code for deterministic exit order.
func (s *Simulator) ExpiredPositions(maxHoldDays int) []string {
	if maxHoldDays <= 0 {
		return nil
	}
	var expired []string
	for code, p := range s.positions {
		if p.heldDays >= maxHoldDays {
			expired = append(expired, code)
		}
	}
	sort.Strings(expired)
	return expired
}

// ApplySignal executes one buy or sell at targetPrice. A rejected signal
// (zero affordable quantity, position limit reached, sell of an unheld code)
// returns (nil, nil): it is a no-op outcome, not an error.
func (s *Simulator) ApplySignal(date time.Time, code string, side dto.TradeSide, targetPrice float64, exitReason string) (*dto.TradeRecord, error) {
	if err := s.checkDate(date); err != nil {
		return nil, err
	}
	if err := validPrice(code, date, targetPrice); err != nil {
		return nil, err
	}

	price := decimal.NewFromFloat(targetPrice)
	switch side {
	case dto.TradeSideBuy:
		return s.buy(date, code, price)
	case dto.TradeSideSell:
		return s.sell(date, code, price, exitReason)
	default:
		return nil, &DataIntegrityError{Code: code, Date: date, Reason: "unknown trade side " + string(side)}
	}
}

func (s *Simulator) buy(date time.Time, code string, price decimal.Decimal) (*dto.TradeRecord, error) {
	one := decimal.NewFromInt(1)
	execPrice := price.Mul(one.Add(s.cfg.Slippage))

	if _, held := s.positions[code]; !held && len(s.positions) >= s.cfg.MaxPositions {
		return nil, nil
	}

	budget := s.cash.Mul(s.cfg.PositionSize)
	quantity := budget.Div(execPrice).Floor().IntPart()
	if quantity <= 0 {
		return nil, nil
	}

	gross := execPrice.Mul(decimal.NewFromInt(quantity)).RoundBank(currencyPlaces)
	commission := gross.Mul(s.cfg.CommissionRate).RoundBank(currencyPlaces)
	total := gross.Add(commission)

	// Commission can tip the total over the sizing budget; shrink until the
	// full cost fits in cash rather than letting cash go negative.
	for total.GreaterThan(s.cash) && quantity > 0 {
		quantity--
		gross = execPrice.Mul(decimal.NewFromInt(quantity)).RoundBank(currencyPlaces)
		commission = gross.Mul(s.cfg.CommissionRate).RoundBank(currencyPlaces)
		total = gross.Add(commission)
	}
	if quantity <= 0 {
		return nil, nil
	}

	s.cash = s.cash.Sub(total)
	if s.cash.IsNegative() {
		return nil, &CapitalConstraintViolation{Cash: s.cash.String()}
	}

	// The cost basis carries the buy commission, so a later sell's realized
	// profit absorbs both legs' commissions and equity stays conserved.
	if p, held := s.positions[code]; held {
		// Volume-weighted average cost across the old lot and this fill.
		oldValue := p.avgCost.Mul(decimal.NewFromInt(p.quantity))
		newQuantity := p.quantity + quantity
		p.avgCost = oldValue.Add(total).DivRound(decimal.NewFromInt(newQuantity), 8)
		p.quantity = newQuantity
	} else {
		s.positions[code] = &position{
			code:      code,
			quantity:  quantity,
			avgCost:   total.DivRound(decimal.NewFromInt(quantity), 8),
			entryDate: date,
		}
	}

	record := dto.TradeRecord{
		Date:       date,
		Code:       code,
		Side:       dto.TradeSideBuy,
		Price:      execPrice.RoundBank(currencyPlaces),
		Quantity:   quantity,
		Amount:     gross,
		Commission: commission,
	}
	s.trades = append(s.trades, record)
	return &record, nil
}

// sell always exits the full held quantity; partial exits are unsupported.
func (s *Simulator) sell(date time.Time, code string, price decimal.Decimal, exitReason string) (*dto.TradeRecord, error) {
	p, held := s.positions[code]
	if !held {
		return nil, nil
	}

	one := decimal.NewFromInt(1)
	execPrice := price.Mul(one.Sub(s.cfg.Slippage))
	quantity := decimal.NewFromInt(p.quantity)

	gross := execPrice.Mul(quantity).RoundBank(currencyPlaces)
	commission := gross.Mul(s.cfg.CommissionRate).RoundBank(currencyPlaces)
	proceeds := gross.Sub(commission)
	costBasis := p.avgCost.Mul(quantity)
	profit := proceeds.Sub(costBasis).RoundBank(currencyPlaces)

	s.cash = s.cash.Add(proceeds)
	delete(s.positions, code)

	record := dto.TradeRecord{
		Date:       date,
		Code:       code,
		Side:       dto.TradeSideSell,
		Price:      execPrice.RoundBank(currencyPlaces),
		Quantity:   p.quantity,
		Amount:     gross,
		Commission: commission,
		Profit:     &profit,
		ExitReason: exitReason,
	}
	s.trades = append(s.trades, record)
	return &record, nil
}

// MarkToMarket values all open positions at the day's closing prices and
// appends one equity point. It must be called exactly once per trading day,
// whether or not any trade happened.
func (s *Simulator) MarkToMarket(date time.Time, closingPrices map[string]float64) (dto.EquityPoint, error) {
	if err := s.checkDate(date); err != nil {
		return dto.EquityPoint{}, err
	}

	equity := s.cash
	for code, p := range s.positions {
		close, ok := closingPrices[code]
		if !ok {
			return dto.EquityPoint{}, &DataIntegrityError{Code: code, Date: date, Reason: "no closing price for open position"}
		}
		if err := validPrice(code, date, close); err != nil {
			return dto.EquityPoint{}, err
		}
		value := decimal.NewFromFloat(close).Mul(decimal.NewFromInt(p.quantity))
		equity = equity.Add(value)

		if date.After(p.entryDate) {
			p.heldDays++
		}
	}

	point := dto.EquityPoint{
		Date:      date,
		Equity:    equity.RoundBank(currencyPlaces),
		Cash:      s.cash.RoundBank(currencyPlaces),
		Positions: len(s.positions),
	}
	s.equity = append(s.equity, point)
	s.lastDate = date
	return point, nil
}

// checkDate enforces the monotonic walk through trading days.
func (s *Simulator) checkDate(date time.Time) error {
	if !s.lastDate.IsZero() && date.Before(s.lastDate) {
		return &DataIntegrityError{Date: date, Reason: "trading days applied out of order"}
	}
	return nil
}

func validPrice(code string, date time.Time, price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return &DataIntegrityError{Code: code, Date: date, Reason: "malformed price"}
	}
	return nil
}
