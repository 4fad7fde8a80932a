package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"market-digest/internal/budget"
	"market-digest/internal/llm"
	"market-digest/internal/textproc"
)

const (
	PlanSourceLLM  = "llm"
	PlanSourceRule = "rule"

	maxPlanList = 4
)

const planSystemPrompt = `你是加密永续合约交易员，只基于给定数据写简短交易计划。只输出 JSON，不要其他文字：
{"plans":[{"symbol":"代币","bias":"偏多|偏空|观望","setup":"一句话结构描述","triggers":["入场触发条件"],"invalidation":"失效条件","targets":["目标位"],"risk_notes":["风险提示"]}]}
规则：
1. 默认 bias 为观望；只有 1h、4h、24h 涨跌同向且幅度极端、持仓同步剧烈变化时才给偏多或偏空。
2. 价位只能引用输入中的 swing_high、swing_low、ema20 或按 atr14_pct 推算，不得编造。
3. 每个字段一句话以内，不要喊单，不要保证收益。`

// Plan is a short trade plan for one signal item.
type Plan struct {
	Symbol       string   `json:"symbol"`
	Bias         string   `json:"bias"`
	Setup        string   `json:"setup"`
	Triggers     []string `json:"triggers"`
	Invalidation string   `json:"invalidation"`
	Targets      []string `json:"targets"`
	RiskNotes    []string `json:"risk_notes"`
	Source       string   `json:"-"`
}

// PlannerOptions tune plan generation. Zero values take defaults.
type PlannerOptions struct {
	TopN        int
	Reserve     time.Duration
	TailReserve time.Duration
	Policy      TrendPolicy
	Retry       llm.RetryOptions
}

func (o PlannerOptions) withDefaults() PlannerOptions {
	if o.TopN <= 0 {
		o.TopN = 3
	}
	if o.Reserve <= 0 {
		o.Reserve = 45 * time.Second
	}
	if o.TailReserve <= 0 {
		o.TailReserve = 20 * time.Second
	}
	o.Policy = o.Policy.withDefaults()
	return o
}

// PlanResult carries plans plus operator diagnostics.
type PlanResult struct {
	Plans       []Plan
	Diagnostics []string
	LLMFailures []string
}

// Planner writes plans with the model when budget allows and by rule otherwise.
type Planner struct {
	completer llm.Completer
	opts      PlannerOptions
	logger    zerolog.Logger
}

// NewPlanner accepts a nil completer.
func NewPlanner(completer llm.Completer, opts PlannerOptions, logger zerolog.Logger) *Planner {
	return &Planner{
		completer: completer,
		opts:      opts.withDefaults(),
		logger:    logger.With().Str("component", "oi_plan").Logger(),
	}
}

// Plans returns one plan per top item, in item order.
func (p *Planner) Plans(ctx context.Context, b *budget.TimeBudget, items []Item) PlanResult {
	var res PlanResult
	top := Top(items, p.opts.TopN)
	if len(top) == 0 {
		return res
	}

	var fromModel map[string]Plan
	switch {
	case p.completer == nil:
		res.Diagnostics = append(res.Diagnostics, "oi_plan_skipped:no_llm")
	case b != nil && b.Over(p.opts.Reserve):
		res.Diagnostics = append(res.Diagnostics, "oi_plan_skipped:budget")
	default:
		callCtx := ctx
		if b != nil {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithDeadline(ctx, b.Deadline(p.opts.TailReserve))
			defer cancel()
		}
		plans, err := p.fromLLM(callCtx, top)
		switch {
		case err == nil && len(plans) == 0:
			res.Diagnostics = append(res.Diagnostics, "oi_plan_empty")
		case llm.IsSchemaError(err):
			res.Diagnostics = append(res.Diagnostics, "oi_plan_bad_output")
			res.LLMFailures = append(res.LLMFailures, "oi_plan:"+err.Error())
		case err != nil:
			res.Diagnostics = append(res.Diagnostics, "oi_plan_failed:"+err.Error())
			res.LLMFailures = append(res.LLMFailures, "oi_plan:"+err.Error())
			p.logger.Warn().Err(err).Msg("plan generation failed; using rule-based plans")
		}
		fromModel = plans
	}

	for _, it := range top {
		plan, ok := fromModel[strings.ToUpper(it.Symbol)]
		if !ok {
			plan = RulePlan(it, p.opts.Policy)
		}
		plan.Symbol = it.Symbol
		plan.Bias = p.opts.Policy.Enforce(it, plan.Bias)
		res.Plans = append(res.Plans, plan)
	}
	return res
}

type planPayload struct {
	Plans []Plan `json:"plans"`
}

var errNoPlans = errors.New("plans missing")

func validatePlans(p *planPayload) error {
	if p.Plans == nil {
		return errNoPlans
	}
	return nil
}

// planInput is the compact view sent to the model.
type planInput struct {
	Symbol         string      `json:"symbol"`
	Price          string      `json:"price"`
	PriceChange1h  *float64    `json:"price_chg_1h,omitempty"`
	PriceChange4h  *float64    `json:"price_chg_4h,omitempty"`
	PriceChange24h *float64    `json:"price_chg_24h,omitempty"`
	OIChange1h     *float64    `json:"oi_chg_1h,omitempty"`
	OIChange24h    *float64    `json:"oi_chg_24h,omitempty"`
	Quadrant       string      `json:"flow"`
	Bars1h         *Indicators `json:"k1h,omitempty"`
	Bars4h         *Indicators `json:"k4h,omitempty"`
}

func (p *Planner) fromLLM(ctx context.Context, top []Item) (map[string]Plan, error) {
	in := make([]planInput, 0, len(top))
	allowed := make(map[string]struct{}, len(top))
	for _, it := range top {
		allowed[strings.ToUpper(it.Symbol)] = struct{}{}
		in = append(in, planInput{
			Symbol:         it.Symbol,
			Price:          it.Price.String(),
			PriceChange1h:  round2(it.PriceChange1h),
			PriceChange4h:  round2(it.PriceChange4h),
			PriceChange24h: round2(it.PriceChange24h),
			OIChange1h:     round2(it.OIChange1h),
			OIChange24h:    round2(it.OIChange24h),
			Quadrant:       it.Quadrant,
			Bars1h:         it.Indicators1h,
			Bars4h:         it.Indicators4h,
		})
	}
	user, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	payload, err := llm.CompleteJSON(ctx, p.completer, planSystemPrompt, string(user), validatePlans, p.opts.Retry)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Plan, len(payload.Plans))
	for _, pl := range payload.Plans {
		sym := strings.ToUpper(strings.TrimSpace(pl.Symbol))
		if _, ok := allowed[sym]; !ok {
			continue
		}
		if _, dup := out[sym]; dup {
			continue
		}
		pl.Setup = textproc.Truncate(strings.TrimSpace(pl.Setup), 80)
		pl.Invalidation = textproc.Truncate(strings.TrimSpace(pl.Invalidation), 60)
		pl.Triggers = capList(pl.Triggers)
		pl.Targets = capList(pl.Targets)
		pl.RiskNotes = capList(pl.RiskNotes)
		pl.Source = PlanSourceLLM
		out[sym] = pl
	}
	return out, nil
}

// RulePlan derives a plan from levels and the trend policy alone.
func RulePlan(it Item, policy TrendPolicy) Plan {
	bias := policy.Direction(it)
	plan := Plan{Symbol: it.Symbol, Bias: bias, Source: PlanSourceRule}

	ind := it.Indicators1h
	if ind == nil {
		ind = it.Indicators4h
	}
	if ind == nil {
		plan.Setup = it.Quadrant
		plan.Triggers = []string{"等待价格与 OI 同向确认"}
		plan.Invalidation = "无K线数据，不参与"
		plan.RiskNotes = riskNotes(it, nil)
		return plan
	}

	hi, lo := fmtLevel(ind.SwingHigh), fmtLevel(ind.SwingLow)
	plan.Setup = fmt.Sprintf("%s，%s 区间%s", it.Quadrant, ind.Interval, ind.RangeLoc)
	switch bias {
	case BiasLong:
		plan.Triggers = []string{"放量站稳 " + hi + " 上方", "回踩 EMA20 不破再跟"}
		plan.Invalidation = ind.Interval + " 收盘跌破 " + lo
	case BiasShort:
		plan.Triggers = []string{"跌破 " + lo + " 且不收回", "反抽 EMA20 受阻"}
		plan.Invalidation = ind.Interval + " 收盘站回 " + hi
	default:
		plan.Triggers = []string{"突破 " + hi + " 且 OI 同步增加再考虑", "跌破 " + lo + " 则转弱"}
		plan.Invalidation = "区间 " + lo + "-" + hi + " 未有效突破前不追"
	}
	if bias != BiasWait && ind.ATRPct != nil {
		step := ind.Last * *ind.ATRPct / 100
		sign := 1.0
		if bias == BiasShort {
			sign = -1
		}
		plan.Targets = []string{fmtLevel(ind.Last + sign*1.5*step), fmtLevel(ind.Last + sign*3*step)}
	}
	plan.RiskNotes = riskNotes(it, ind)
	return plan
}

func riskNotes(it Item, ind *Indicators) []string {
	var notes []string
	if it.OIChange1h != nil && math.Abs(*it.OIChange1h) >= 2*quadrantOIThreshold {
		notes = append(notes, "持仓变化剧烈，注意插针与连环爆仓")
	}
	if ind != nil && ind.RSI != nil {
		switch {
		case *ind.RSI >= 70:
			notes = append(notes, "RSI 超买，追高风险大")
		case *ind.RSI <= 30:
			notes = append(notes, "RSI 超卖，追空风险大")
		}
	}
	if ind != nil && ind.VolumeRatio != nil && *ind.VolumeRatio >= 2 {
		notes = append(notes, fmt.Sprintf("成交量放大 %.1f 倍，波动加剧", *ind.VolumeRatio))
	}
	if len(notes) == 0 {
		notes = append(notes, "轻仓，严格止损")
	}
	return capList(notes)
}

// fmtLevel keeps six significant digits.
func fmtLevel(v float64) string {
	if v == 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return "0"
	}
	exp := int32(math.Floor(math.Log10(math.Abs(v))))
	places := 5 - exp
	if places < 2 {
		places = 2
	}
	return decimal.NewFromFloat(v).Round(places).String()
}

func round2(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := math.Round(*p*100) / 100
	return &v
}

func capList(in []string) []string {
	out := make([]string, 0, min(len(in), maxPlanList))
	for _, s := range in {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		out = append(out, textproc.Truncate(s, 60))
		if len(out) == maxPlanList {
			break
		}
	}
	return out
}
