package domain

import "github.com/shopspring/decimal"

var (
	hundred       = decimal.NewFromInt(100)
	two           = decimal.NewFromInt(2)
	four          = decimal.NewFromInt(4)
	tick          = decimal.RequireFromString("0.01")
	bigDropFactor = decimal.RequireFromString("1.12")
)

const deeperRungs = 4

// Stage is the branch of the guidance rules that produced the ladders.
type Stage string

const (
	StageEmpty      Stage = "empty"
	StageFirstHalf  Stage = "first_half"
	StageSecondHalf Stage = "second_half"
	StageQuarterCut Stage = "quarter_cut"
)

// OrderType is how a rung should be placed with the broker.
type OrderType string

const (
	OrderLOC   OrderType = "LOC"
	OrderMOC   OrderType = "MOC"
	OrderLimit OrderType = "LIMIT"
)

// RungKind identifies a rung within a ladder.
type RungKind string

const (
	RungAverage     RungKind = "average"
	RungStarHalf    RungKind = "star_half"
	RungStar        RungKind = "star"
	RungDeeper      RungKind = "deeper"
	RungBigDrop     RungKind = "big_drop"
	RungStarQuarter RungKind = "star_quarter"
	RungTarget      RungKind = "target"
	RungQuarterMOC  RungKind = "quarter_moc"
	RungQuarterStop RungKind = "quarter_stop"
)

// Rung is one recommended order. Insufficient rungs carry zero price and quantity
// and mean the tranche cannot fund the order.
type Rung struct {
	Kind         RungKind        `json:"kind"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	OrderType    OrderType       `json:"order_type"`
	Insufficient bool            `json:"insufficient,omitempty"`
}

func insufficient(kind RungKind, orderType OrderType) Rung {
	return Rung{Kind: kind, OrderType: orderType, Insufficient: true}
}

func rung(kind RungKind, orderType OrderType, price, qty decimal.Decimal) Rung {
	if !qty.IsPositive() || (orderType != OrderMOC && !price.IsPositive()) {
		return insufficient(kind, orderType)
	}
	return Rung{Kind: kind, Price: price, Quantity: qty, OrderType: orderType}
}

// GuidanceInput is the snapshot the calculator works from.
type GuidanceInput struct {
	Phase            Phase
	SellsSinceEntry  int
	Version          StrategyVersion
	AveragePrice     decimal.Decimal
	TValue           decimal.Decimal
	DivisionCount    int
	TargetProfitPct  decimal.Decimal
	PerTradeAmount   decimal.Decimal
	PreviousClose    decimal.Decimal
	Quantity         decimal.Decimal
	TransactionCount int
}

// Guidance holds the next buy and sell ladders.
type Guidance struct {
	PerStar        decimal.Decimal `json:"per_star"`
	PerStarDisplay decimal.Decimal `json:"per_star_display"`
	StarPrice      decimal.Decimal `json:"star_price"`
	Stage          Stage           `json:"stage"`
	Buy            []Rung          `json:"buy"`
	Sell           []Rung          `json:"sell"`
}

// PerStar is the star offset in percent. It decays linearly from the goal as T grows
// and reaches zero at half the divisions.
func PerStar(goal decimal.Decimal, divisionCount int, tValue decimal.Decimal) (decimal.Decimal, bool) {
	half := decimal.NewFromInt(int64(divisionCount)).Div(two)
	if !half.IsPositive() {
		return decimal.Zero, false
	}
	return goal.Sub(goal.Div(half).Mul(tValue)), true
}

// CalculateGuidance builds the buy and sell ladders for the given snapshot.
func CalculateGuidance(in GuidanceInput) Guidance {
	perStar, ok := PerStar(in.TargetProfitPct, in.DivisionCount, in.TValue)
	g := Guidance{
		PerStar:        perStar,
		PerStarDisplay: perStar.Round(1),
		Buy:            []Rung{},
		Sell:           []Rung{},
	}

	if in.TransactionCount == 0 {
		g.Stage = StageEmpty
		return g
	}

	if in.Phase == PhaseQuarterCut {
		g.Stage = StageQuarterCut
		g.Sell = quarterCutSells(in)
		return g
	}

	if !ok {
		g.Stage = StageFirstHalf
		g.Buy = []Rung{insufficient(RungAverage, OrderLOC)}
		g.Sell = []Rung{insufficient(RungStarQuarter, OrderLOC), insufficient(RungTarget, OrderLimit)}
		return g
	}

	g.StarPrice = in.AveragePrice.Mul(one.Add(perStar.Div(hundred))).Sub(tick)
	if perStar.IsNegative() {
		g.Stage = StageSecondHalf
		g.Buy = secondHalfBuys(in, g.StarPrice)
	} else {
		g.Stage = StageFirstHalf
		g.Buy = firstHalfBuys(in, g.StarPrice)
	}
	g.Sell = normalSells(in, perStar)

	return g
}

// floorDiv returns floor(a/b), or false when b is not positive.
func floorDiv(a, b decimal.Decimal) (decimal.Decimal, bool) {
	if !b.IsPositive() {
		return decimal.Zero, false
	}
	return a.Div(b).Floor(), true
}

func firstHalfBuys(in GuidanceInput, starPrice decimal.Decimal) []Rung {
	buys := make([]Rung, 0, 3+deeperRungs)

	halfQty, okHalf := floorDiv(in.PerTradeAmount, starPrice.Mul(two))
	fullQty, okFull := floorDiv(in.PerTradeAmount, in.AveragePrice)
	avgQty := fullQty.Sub(halfQty)

	if okFull && in.PerTradeAmount.IsPositive() {
		buys = append(buys, rung(RungAverage, OrderLOC, in.AveragePrice, avgQty))
	} else {
		buys = append(buys, insufficient(RungAverage, OrderLOC))
	}
	if okHalf && in.PerTradeAmount.IsPositive() {
		buys = append(buys, rung(RungStarHalf, OrderLOC, starPrice, halfQty))
	} else {
		buys = append(buys, insufficient(RungStarHalf, OrderLOC))
	}

	base := decimal.Max(avgQty, decimal.Zero).Add(decimal.Max(halfQty, decimal.Zero))
	buys = append(buys, deeperBuys(in.PerTradeAmount, base)...)
	buys = append(buys, bigDropBuy(in, two))

	return buys
}

func secondHalfBuys(in GuidanceInput, starPrice decimal.Decimal) []Rung {
	buys := make([]Rung, 0, 2+deeperRungs)

	qty, ok := floorDiv(in.PerTradeAmount, starPrice)
	if ok && in.PerTradeAmount.IsPositive() {
		buys = append(buys, rung(RungStar, OrderLOC, starPrice, qty))
	} else {
		buys = append(buys, insufficient(RungStar, OrderLOC))
	}

	buys = append(buys, deeperBuys(in.PerTradeAmount, decimal.Max(qty, decimal.Zero))...)
	buys = append(buys, bigDropBuy(in, one))

	return buys
}

// deeperBuys prices one extra share each so that base+i shares exhaust the tranche.
func deeperBuys(perTrade, base decimal.Decimal) []Rung {
	rungs := make([]Rung, 0, deeperRungs)
	for i := 1; i <= deeperRungs; i++ {
		total := base.Add(decimal.NewFromInt(int64(i)))
		if !perTrade.IsPositive() || !total.IsPositive() {
			rungs = append(rungs, insufficient(RungDeeper, OrderLOC))
			continue
		}
		rungs = append(rungs, rung(RungDeeper, OrderLOC, perTrade.Div(total), one))
	}
	return rungs
}

func bigDropBuy(in GuidanceInput, parts decimal.Decimal) Rung {
	price := in.PreviousClose.Mul(bigDropFactor)
	qty, ok := floorDiv(in.PerTradeAmount, price.Mul(parts))
	if !ok || !in.PerTradeAmount.IsPositive() {
		return insufficient(RungBigDrop, OrderLOC)
	}
	return rung(RungBigDrop, OrderLOC, price, qty)
}

func normalSells(in GuidanceInput, perStar decimal.Decimal) []Rung {
	quarter := in.Quantity.Div(four).Floor()
	rest := in.Quantity.Sub(quarter)

	return []Rung{
		rung(RungStarQuarter, OrderLOC, in.AveragePrice.Mul(one.Add(perStar.Div(hundred))), quarter),
		rung(RungTarget, OrderLimit, targetPrice(in.AveragePrice, in.TargetProfitPct), rest),
	}
}

func quarterCutSells(in GuidanceInput) []Rung {
	quarter := in.Quantity.Div(four).Floor()
	if in.SellsSinceEntry == 0 {
		return []Rung{rung(RungQuarterMOC, OrderMOC, decimal.Zero, quarter)}
	}

	return []Rung{
		rung(RungQuarterStop, OrderLOC, stopPrice(in.AveragePrice, in.TargetProfitPct), quarter),
		rung(RungTarget, OrderLimit, targetPrice(in.AveragePrice, in.TargetProfitPct), in.Quantity.Sub(quarter)),
	}
}

func targetPrice(avg, goal decimal.Decimal) decimal.Decimal {
	return avg.Mul(one.Add(goal.Div(hundred)))
}
