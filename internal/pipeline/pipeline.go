package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"market-digest/internal/cards"
	"market-digest/internal/delivery"
	"market-digest/internal/llm"
	"market-digest/internal/market"
	"market-digest/internal/metrics"
	"market-digest/internal/radar"
	"market-digest/internal/render"
	"market-digest/internal/signals"
	"market-digest/internal/storage"
	"market-digest/internal/textproc"
	"market-digest/internal/textsource"
	"market-digest/internal/topics"
)

// Step names, in execution order.
const (
	StepTGHealth     = "tg_health"
	StepTGFetch      = "tg_fetch"
	StepHumanTexts   = "human_texts"
	StepOIParse      = "oi_parse"
	StepOIEnrich     = "oi_enrich"
	StepOIPlans      = "oi_plans"
	StepTopics       = "tg_topics"
	StepRadarJoin    = "radar_join"
	StepRadarMerge   = "radar_merge"
	StepSocialTopics = "social_topics"
	StepSocialCards  = "social_cards"
	StepSentiment    = "sentiment_watch"
	StepRender       = "render"
	StepDeliver      = "deliver"
	StepArtifacts    = "artifacts"
	radarJoinHeadway = 8 * time.Second
	radarJoinMin     = 5 * time.Second
	radarJoinMax     = 170 * time.Second
	mergeReserve     = 20 * time.Second
	mergeTail        = 10 * time.Second
)

// StepNames lists every step in order, for CLI help and validation.
var StepNames = []string{
	StepTGHealth, StepTGFetch, StepHumanTexts, StepOIParse, StepOIEnrich, StepOIPlans,
	StepTopics, StepRadarJoin, StepRadarMerge, StepSocialTopics, StepSocialCards, StepSentiment,
	StepRender, StepDeliver, StepArtifacts,
}

// Resolver resolves price, market cap and FDV; DexScreener implements it.
type Resolver interface {
	Resolve(ctx context.Context, subject market.Subject) (market.Metrics, error)
}

// Deps are the collaborators of a run. Any of them may be nil; the matching
// steps then degrade to diagnostics.
type Deps struct {
	Text      textsource.Source
	Market    market.DataSource
	Resolver  Resolver
	Completer llm.Completer
	Embedder  llm.Embedder
	Radar     *radar.Runner
	Deliverer *delivery.Deliverer
	Archive   storage.RunArchive
	Locker    storage.AdvisoryLocker
	Metrics   *metrics.Metrics
}

// Options configure a run. Zero values take defaults.
type Options struct {
	Budget        time.Duration
	Location      *time.Location
	ChatChannels  []string
	SignalChannel string
	ChatLimit     int
	SignalLimit   int
	ReplayLimit   int
	SignalReplay  int
	HumanMaxLen   int
	BotSenders    []string
	Skip          []string
	Only          []string
	ArtifactDir   string
	LockBase      int64
	AddressRules  textproc.AddressRules
	Topics        topics.Options
	Enrich        signals.EnrichOptions
	Planner       signals.PlannerOptions
	Cards         cards.Options
	Merge         radar.MergeOptions
	Social        radar.SocialOptions
	Render        render.Options
}

func (o Options) withDefaults() Options {
	if o.Budget <= 0 {
		o.Budget = 240 * time.Second
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.ChatLimit <= 0 {
		o.ChatLimit = 260
	}
	if o.SignalLimit <= 0 {
		o.SignalLimit = 240
	}
	if o.ReplayLimit <= 0 {
		o.ReplayLimit = 300
	}
	if o.SignalReplay <= 0 {
		o.SignalReplay = 400
	}
	if o.HumanMaxLen <= 0 {
		o.HumanMaxLen = 360
	}
	return o
}

// Pipeline wires the collaborators into the fixed step sequence.
type Pipeline struct {
	deps     Deps
	opts     Options
	filter   *textproc.Filter
	bots     map[string]struct{}
	engine   *topics.Engine
	enricher *signals.Enricher
	planner  *signals.Planner
	unifier  *cards.Unifier
	social   *radar.SocialSummarizer
	runner   *StepRunner
	logger   zerolog.Logger
	clock    func() time.Time
}

func New(deps Deps, opts Options, logger zerolog.Logger) *Pipeline {
	opts = opts.withDefaults()
	filter := textproc.NewFilter(opts.AddressRules)

	bots := make(map[string]struct{}, len(opts.BotSenders))
	for _, id := range opts.BotSenders {
		bots[id] = struct{}{}
	}

	return &Pipeline{
		deps:     deps,
		opts:     opts,
		filter:   filter,
		bots:     bots,
		engine:   topics.NewEngine(filter, deps.Embedder, deps.Completer, opts.Topics, logger),
		enricher: signals.NewEnricher(deps.Market, deps.Resolver, opts.Enrich, logger),
		planner:  signals.NewPlanner(deps.Completer, opts.Planner, logger),
		unifier:  cards.NewUnifier(deps.Resolver, opts.Cards, logger),
		social:   radar.NewSocialSummarizer(deps.Completer, opts.Social, logger),
		runner:   NewStepRunner(opts.Skip, opts.Only, deps.Metrics, logger),
		logger:   logger.With().Str("component", "pipeline").Logger(),
		clock:    time.Now,
	}
}

// RunWindow runs the window containing at. The error is non-nil only when the
// run could not start or the idempotency store failed; everything else lands
// in the context diagnostics.
func (p *Pipeline) RunWindow(ctx context.Context, at time.Time) (*Context, error) {
	pc, err := NewContext(at, p.opts.Location, p.opts.Budget, p.clock)
	if err != nil {
		return nil, err
	}
	log := p.logger.With().Str("window", pc.Window.Key).Str("run_id", pc.RunID.String()).Logger()

	unlock, proceed, err := p.acquireLock(ctx, pc.Window.Key)
	if err != nil {
		return pc, err
	}
	if !proceed {
		log.Info().Msg("skip window because advisory lock held elsewhere")
		pc.Diag("window_locked")
		return pc, nil
	}
	if unlock != nil {
		defer unlock()
	}

	var slot *radar.Slot
	if p.deps.Radar != nil {
		slot = p.deps.Radar.Start(ctx, pc.Window)
	}

	runErr := p.runner.Run(ctx, pc, p.steps(slot))

	result := p.result(pc, runErr)
	p.deps.Metrics.ObserveRun(result, pc.Budget.Remaining())
	p.archive(ctx, pc, log)

	log.Info().
		Str("result", result).
		Int("items", len(pc.Items)).
		Int("topics", len(pc.Topics)).
		Int("cards", len(pc.Cards)).
		Int("errors", len(pc.Errors)).
		Dur("elapsed", pc.Budget.Elapsed()).
		Msg("run finished")
	return pc, runErr
}

func (p *Pipeline) result(pc *Context, runErr error) string {
	attempted := p.deps.Deliverer != nil && p.runner.Enabled(StepDeliver) && len(pc.Report.Chunks) > 0
	switch {
	case runErr != nil:
		return "failed"
	case pc.Delivery.Skipped:
		return "skipped"
	case pc.Delivery.Sent > 0:
		return "delivered"
	case attempted:
		return "failed"
	default:
		return "skipped"
	}
}

func (p *Pipeline) acquireLock(ctx context.Context, windowKey string) (func(), bool, error) {
	if p.opts.LockBase == 0 || p.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := p.deps.Locker.TryAdvisoryLock(ctx, storage.WindowLockKey(p.opts.LockBase, windowKey))
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func (p *Pipeline) archive(ctx context.Context, pc *Context, log zerolog.Logger) {
	if p.deps.Archive == nil {
		return
	}
	raw, err := pc.DiagnosticsJSON()
	if err != nil {
		log.Warn().Err(err).Msg("encode diagnostics failed")
		return
	}
	d := pc.Diagnostics()
	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err = p.deps.Archive.InsertRun(archiveCtx, storage.RunRecord{
		ID:             pc.RunID,
		WindowKey:      pc.Window.Key,
		ContentHash:    pc.Report.Hash,
		Delivered:      d.Delivered,
		Skipped:        d.Skipped,
		ElapsedSeconds: d.ElapsedS,
		Diagnostics:    raw,
	})
	if err != nil {
		log.Warn().Err(err).Msg("archive run failed")
	}
}

func (p *Pipeline) steps(slot *radar.Slot) []Step {
	return []Step{
		{Name: StepTGHealth, Run: p.tgHealth},
		{Name: StepTGFetch, Run: p.tgFetch},
		{Name: StepHumanTexts, Run: p.humanTexts},
		{Name: StepOIParse, Run: p.oiParse},
		{Name: StepOIEnrich, Run: p.oiEnrich},
		{Name: StepOIPlans, Run: p.oiPlans},
		{Name: StepTopics, Run: p.tgTopics},
		{Name: StepRadarJoin, Run: func(ctx context.Context, pc *Context) error { return p.radarJoin(ctx, pc, slot) }},
		{Name: StepRadarMerge, Run: p.radarMerge},
		{Name: StepSocialTopics, Run: p.socialTopics},
		{Name: StepSocialCards, Run: p.socialCards},
		{Name: StepSentiment, Run: p.sentimentWatch},
		{Name: StepRender, Run: p.render},
		{Name: StepDeliver, Run: p.deliver},
		{Name: StepArtifacts, Run: p.artifacts},
	}
}

type healthChecker interface {
	Healthy(ctx context.Context) bool
}

type replayer interface {
	Replay(ctx context.Context, channel string, since, until time.Time, limit int) error
}

func (p *Pipeline) tgHealth(ctx context.Context, pc *Context) error {
	if p.deps.Text == nil {
		pc.Diag("tg_skipped:no_source")
		return nil
	}
	if h, ok := p.deps.Text.(healthChecker); ok && !h.Healthy(ctx) {
		pc.Diag("tg_unhealthy")
	}
	return nil
}

func (p *Pipeline) tgFetch(ctx context.Context, pc *Context) error {
	if p.deps.Text == nil {
		return nil
	}
	if p.opts.SignalChannel != "" {
		msgs := p.fetchChannel(ctx, pc, p.opts.SignalChannel, p.opts.SignalLimit, p.opts.SignalReplay)
		pc.Messages[p.opts.SignalChannel] = msgs
		for _, m := range msgs {
			pc.SignalMessages = append(pc.SignalMessages, m.Text)
		}
	}
	for _, ch := range p.opts.ChatChannels {
		pc.Messages[ch] = p.fetchChannel(ctx, pc, ch, p.opts.ChatLimit, p.opts.ReplayLimit)
	}
	return nil
}

// fetchChannel asks for a replay once when the first read is empty.
func (p *Pipeline) fetchChannel(ctx context.Context, pc *Context, channel string, limit, replay int) []textsource.Message {
	since, until := pc.Window.Start, pc.Window.End
	msgs, err := p.deps.Text.Fetch(ctx, channel, since, until, limit)
	if err != nil {
		pc.Diag(fmt.Sprintf("tg_fetch_failed:%s:%v", channel, err))
		return nil
	}
	if len(msgs) > 0 {
		return msgs
	}
	r, ok := p.deps.Text.(replayer)
	if !ok {
		return nil
	}
	if err := r.Replay(ctx, channel, since, until, replay); err != nil {
		pc.Diag(fmt.Sprintf("tg_replay_failed:%s:%v", channel, err))
		return nil
	}
	msgs, err = p.deps.Text.Fetch(ctx, channel, since, until, limit)
	if err != nil {
		pc.Diag(fmt.Sprintf("tg_fetch_failed:%s:%v", channel, err))
		return nil
	}
	return msgs
}

func (p *Pipeline) humanTexts(_ context.Context, pc *Context) error {
	var all []textsource.Message
	for _, ch := range p.opts.ChatChannels {
		all = append(all, pc.Messages[ch]...)
	}
	pc.HumanTexts = textproc.HumanTexts(textsource.ToTextproc(all), p.bots, p.opts.HumanMaxLen)
	pc.TopicTexts = p.filter.FilterTopicTexts(pc.HumanTexts)
	pc.Perf["human_texts_in"] = float64(len(all))
	pc.Perf["human_texts_out"] = float64(len(pc.HumanTexts))
	pc.Perf["topic_texts"] = float64(len(pc.TopicTexts))
	return nil
}

func (p *Pipeline) oiParse(_ context.Context, pc *Context) error {
	pc.Observations = signals.ParseObservations(pc.SignalMessages)
	if len(pc.Observations) == 0 && len(pc.SignalMessages) > 0 {
		pc.Diag("oi_parse_empty")
	}
	return nil
}

func (p *Pipeline) oiEnrich(ctx context.Context, pc *Context) error {
	if len(pc.Observations) == 0 {
		return nil
	}
	items, diags := p.enricher.Enrich(ctx, pc.Budget, pc.Observations)
	pc.Items = items
	pc.Diag(diags...)
	return nil
}

func (p *Pipeline) oiPlans(ctx context.Context, pc *Context) error {
	res := p.planner.Plans(ctx, pc.Budget, pc.Items)
	pc.Plans = res.Plans
	pc.Diag(res.Diagnostics...)
	pc.LLMFailure(res.LLMFailures...)
	return nil
}

func (p *Pipeline) tgTopics(ctx context.Context, pc *Context) error {
	res := p.engine.Distill(ctx, pc.Budget, pc.TopicTexts)
	pc.Topics = res.Cards
	pc.TopicStrategy = res.Strategy
	pc.Diag(res.Diagnostics...)
	pc.LLMFailure(res.LLMFailures...)
	return nil
}

func (p *Pipeline) radarJoin(ctx context.Context, pc *Context, slot *radar.Slot) error {
	if p.deps.Radar == nil || slot == nil {
		pc.Diag("radar_skipped:no_scanner")
		return nil
	}
	timeout := pc.Budget.Clamp(radarJoinHeadway, radarJoinMin, radarJoinMax)
	res := p.deps.Radar.Join(ctx, slot, pc.Window, timeout)
	pc.Radar = res.Output
	pc.Diag(res.Diagnostics...)
	if res.Recovered {
		pc.Perf["radar_recovered"] = 1
	}
	return nil
}

func (p *Pipeline) radarMerge(ctx context.Context, pc *Context) error {
	if p.deps.Resolver == nil {
		return nil
	}
	if pc.Budget.Over(mergeReserve) {
		pc.Diag("radar_merge_skipped:budget")
		return nil
	}
	mergeCtx, cancel := context.WithDeadline(ctx, pc.Budget.Deadline(mergeTail))
	defer cancel()
	out, diags := radar.MergeChatAddresses(mergeCtx, pc.Radar, pc.HumanTexts, p.filter.Extractor(), p.deps.Resolver, p.opts.Merge)
	pc.Radar = out
	pc.Diag(diags...)
	return nil
}

func (p *Pipeline) socialTopics(ctx context.Context, pc *Context) error {
	res := p.social.Build(ctx, pc.Budget, pc.Radar.Items)
	pc.Perf["social_candidates"] = float64(res.Candidates)
	pc.Radar.Social = radar.MergeSocial(pc.Radar.Social, res.Topics)
	pc.Diag(res.Diagnostics...)
	pc.LLMFailure(res.LLMFailures...)
	return nil
}

func (p *Pipeline) socialCards(ctx context.Context, pc *Context) error {
	res := p.unifier.Build(ctx, pc.Budget, cards.Input{
		Chat:    pc.Topics,
		Social:  pc.Radar.Social,
		Signals: pc.Items,
		Plans:   pc.Plans,
		Radar:   pc.Radar.Items,
	})
	pc.Cards = res.Cards
	pc.CardCounts = res.Counts
	pc.Diag(res.Diagnostics...)
	return nil
}

func (p *Pipeline) sentimentWatch(_ context.Context, pc *Context) error {
	pc.Sentiment = Sentiment(pc.Topics, pc.Cards)
	pc.Watch = Watch(pc.Items, pc.Topics)
	return nil
}

func (p *Pipeline) render(_ context.Context, pc *Context) error {
	sentiment := pc.Sentiment
	if sentiment == "" {
		sentiment = textproc.StanceMixed
	}
	pc.Report = render.Render(render.Data{
		Window:    pc.Window,
		Items:     pc.Items,
		Plans:     pc.Plans,
		Topics:    pc.Topics,
		Cards:     pc.Cards,
		Sentiment: sentiment,
		Watch:     pc.Watch,
	}, p.opts.Render)
	return nil
}

func (p *Pipeline) deliver(ctx context.Context, pc *Context) error {
	if p.deps.Deliverer == nil {
		pc.Diag("deliver_skipped:no_channel")
		return nil
	}
	if len(pc.Report.Chunks) == 0 {
		pc.Diag("deliver_skipped:empty_report")
		return nil
	}
	res, err := p.deps.Deliverer.Deliver(ctx, pc.Report)
	pc.Delivery = res
	if errors.Is(err, delivery.ErrStoreUnavailable) {
		return Fatal(err)
	}
	return err
}
