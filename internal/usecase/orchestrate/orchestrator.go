package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"inquest/internal/domain"
	"inquest/internal/infra/metrics"
	"inquest/internal/infra/tracer"
	"inquest/internal/usecase/verdict"
)

// Phase is the orchestration state machine position. Every investigation
// moves Planning → Coordinating → Executing → Consolidating and terminates
// in Done or FailedFallback.
type Phase string

const (
	PhasePlanning       Phase = "planning"
	PhaseCoordinating   Phase = "coordinating"
	PhaseExecuting      Phase = "executing"
	PhaseConsolidating  Phase = "consolidating"
	PhaseDone           Phase = "done"
	PhaseFailedFallback Phase = "failed_fallback"
)

// Alerter receives operator notifications. Raising an alert must never
// block or fail the investigation that triggered it.
type Alerter interface {
	Raise(ctx context.Context, alert domain.Alert)
}

// Settings tunes multi-agent execution.
type Settings struct {
	AgentTimeout     time.Duration
	MaxAttempts      int
	BackoffBase      time.Duration
	BackoffFactor    float64
	BreakerThreshold uint32
	BreakerRecovery  time.Duration
	MaxParallel      int
	StopConfidence   float64
	StopRisk         float64
}

// Orchestrator plans and executes multi-agent investigations. The outward
// contract is total: OrchestrateInvestigation always returns a structured
// result, whatever fails underneath.
type Orchestrator struct {
	roster   *Roster
	planner  *Planner
	agg      *verdict.Aggregator
	store    domain.InvestigationStore
	alerter  Alerter
	settings Settings
	logger   *slog.Logger
	m        *metrics.Metrics

	sem *semaphore.Weighted

	mu       sync.Mutex
	breakers map[domain.AgentKind]*agentBreaker
}

// New builds an orchestrator. store and alerter may be nil: handoffs are
// then kept only for consolidation, and alerts are dropped.
func New(roster *Roster, agg *verdict.Aggregator, store domain.InvestigationStore, alerter Alerter, settings Settings, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
	if settings.AgentTimeout <= 0 {
		settings.AgentTimeout = 120 * time.Second
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 2
	}
	if settings.BackoffBase <= 0 {
		settings.BackoffBase = time.Second
	}
	if settings.BackoffFactor < 1 {
		settings.BackoffFactor = 1.5
	}
	if settings.BreakerThreshold == 0 {
		settings.BreakerThreshold = 3
	}
	if settings.BreakerRecovery <= 0 {
		settings.BreakerRecovery = 60 * time.Second
	}
	if settings.MaxParallel <= 0 {
		settings.MaxParallel = 8
	}
	if settings.StopConfidence <= 0 {
		settings.StopConfidence = 0.8
	}
	if settings.StopRisk <= 0 {
		settings.StopRisk = 0.7
	}

	return &Orchestrator{
		roster:    roster,
		planner:   NewPlanner(roster, settings.AgentTimeout, logger),
		agg:       agg,
		store:     store,
		alerter:   alerter,
		settings:  settings,
		logger:    logger,
		m:         m,
		sem:       semaphore.NewWeighted(int64(settings.MaxParallel)),
		breakers:  make(map[domain.AgentKind]*agentBreaker),
	}
}

// investigation accumulates the mutable state of one request. Handoffs are
// appended concurrently by parallel agent launches.
type investigation struct {
	req      domain.InvestigationRequest
	decision domain.OrchestrationDecision
	start    time.Time

	mu       sync.Mutex
	handoffs []domain.AgentHandoff
}

// agentOutcome is one agent's terminal status within an investigation.
type agentOutcome struct {
	kind     domain.AgentKind
	result   *domain.AgentResult
	err      error
	skipped  bool
	attempts int
}

// OrchestrateInvestigation runs the full state machine for req and always
// returns a structured result: consolidation of whatever succeeded, or the
// fixed fallback when the orchestration itself broke.
func (o *Orchestrator) OrchestrateInvestigation(ctx context.Context, req domain.InvestigationRequest) domain.ConsolidatedResult {
	if req.InvestigationID == "" {
		req.InvestigationID = ulid.Make().String()
	}

	ctx, span := tracer.StartSpan(ctx, "orchestrate.investigation",
		trace.WithAttributes(
			tracer.StringAttr("investigation.id", req.InvestigationID),
			tracer.StringAttr("investigation.entity_type", req.EntityType),
		),
	)
	defer span.End()

	inv := &investigation{req: req, start: time.Now()}
	res := o.run(ctx, inv)

	if o.m != nil {
		outcome := "done"
		if res.Fallback {
			outcome = "fallback"
		}
		o.m.InvestigationsTotal.WithLabelValues(string(inv.decision.Strategy), outcome).Inc()
		o.m.InvestigationDuration.Observe(res.Duration.Seconds())
	}
	span.SetAttributes(
		tracer.BoolAttr("investigation.fallback", res.Fallback),
		tracer.Float64Attr("investigation.risk_score", res.RiskScore),
	)
	tracer.SetOK(span)
	return res
}

// run executes the phases under a recovery guard: a panic anywhere inside
// orchestration is an unrecoverable internal error and yields the fixed
// fallback instead of crossing the public boundary.
func (o *Orchestrator) run(ctx context.Context, inv *investigation) (res domain.ConsolidatedResult) {
	phase := PhasePlanning
	defer func() {
		if r := recover(); r != nil {
			err := domain.NewSubSystemError("orchestrate", string(phase), domain.ErrOrchestration,
				fmt.Sprintf("panic: %v", r))
			o.logger.Error("orchestration failed",
				"investigation_id", inv.req.InvestigationID,
				"phase", string(phase),
				"error", err)
			res = o.fallback(ctx, inv, err)
		}
	}()

	o.logger.Info("investigation started",
		"investigation_id", inv.req.InvestigationID,
		"entity_type", inv.req.EntityType,
		"entity_id", inv.req.EntityID)

	inv.decision = o.planner.Plan(inv.req)

	phase = PhaseCoordinating
	runs := o.coordinate(inv.decision)

	phase = PhaseExecuting
	var outcomes []agentOutcome
	if inv.decision.Strategy.Parallel() {
		outcomes = o.executeParallel(ctx, inv, runs)
	} else {
		outcomes = o.executeSequential(ctx, inv, runs)
	}

	phase = PhaseConsolidating
	res = o.consolidate(ctx, inv, outcomes)

	phase = PhaseDone
	o.logger.Info("investigation finished",
		"investigation_id", inv.req.InvestigationID,
		"strategy", string(inv.decision.Strategy),
		"successful_agents", len(res.SuccessfulAgents),
		"failed_agents", len(res.FailedAgents),
		"risk_score", res.RiskScore,
		"duration", res.Duration)
	return res
}

// agentRun pairs a planned agent with its breaker for this investigation.
type agentRun struct {
	kind    domain.AgentKind
	agent   domain.Agent
	breaker *agentBreaker
}

// coordinate resolves the planned kinds to registered agents and allocates
// their breakers. Breakers are shared across investigations so failure
// streaks accumulate where they belong, on the agent.
func (o *Orchestrator) coordinate(decision domain.OrchestrationDecision) []agentRun {
	order := decision.ExecutionOrder
	if len(order) == 0 {
		order = decision.AgentsToActivate
	}

	runs := make([]agentRun, 0, len(order))
	for _, kind := range order {
		agent, ok := o.roster.Get(kind)
		if !ok {
			// Planner only plans registered kinds; a miss here means the
			// plan and roster disagree, which is an internal defect.
			panic(fmt.Sprintf("planned agent %q is not registered", kind))
		}
		runs = append(runs, agentRun{kind: kind, agent: agent, breaker: o.breaker(kind)})
	}
	return runs
}

func (o *Orchestrator) breaker(kind domain.AgentKind) *agentBreaker {
	o.mu.Lock()
	defer o.mu.Unlock()
	if b, ok := o.breakers[kind]; ok {
		return b
	}
	b := newAgentBreaker(kind, o.settings.BreakerThreshold, o.settings.BreakerRecovery, o.logger, o.m, o.agentBreakerOpened)
	o.breakers[kind] = b
	return b
}

func (o *Orchestrator) agentBreakerOpened(kind domain.AgentKind) {
	if o.alerter == nil {
		return
	}
	o.alerter.Raise(context.Background(), domain.Alert{
		Kind:      domain.AlertBreakerOpened,
		Subject:   "agent breaker opened",
		Detail:    fmt.Sprintf("agent %s tripped its circuit breaker", kind),
		Fields:    map[string]string{"agent": string(kind)},
		Timestamp: time.Now().UTC(),
	})
}

// executeParallel launches every agent at once, bounded by the semaphore,
// and joins on all of them. One agent's timeout or failure never cancels a
// sibling. A panic escaping a launch (agent panics are already contained
// in invokeAgent) is re-raised on the orchestrating goroutine so that the
// fallback guard in run sees it.
func (o *Orchestrator) executeParallel(ctx context.Context, inv *investigation, runs []agentRun) []agentOutcome {
	outcomes := make([]agentOutcome, len(runs))
	panics := make([]any, len(runs))

	var wg sync.WaitGroup
	for i, run := range runs {
		wg.Add(1)
		go func(idx int, r agentRun) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					panics[idx] = rec
				}
			}()

			if err := o.sem.Acquire(ctx, 1); err != nil {
				outcomes[idx] = agentOutcome{kind: r.kind, err: err}
				o.countAgent(r.kind, "failure")
				return
			}
			defer o.sem.Release(1)

			outcomes[idx] = o.runAgent(ctx, inv, r)
		}(i, run)
	}
	wg.Wait()

	for _, rec := range panics {
		if rec != nil {
			panic(rec)
		}
	}
	return outcomes
}

// executeSequential runs agents in the decided order. After each success
// the stop predicate is evaluated; decisive evidence skips the remaining
// agents. A failing agent is recorded and the sequence proceeds.
func (o *Orchestrator) executeSequential(ctx context.Context, inv *investigation, runs []agentRun) []agentOutcome {
	outcomes := make([]agentOutcome, 0, len(runs))
	stopped := false

	for _, run := range runs {
		if stopped {
			outcomes = append(outcomes, agentOutcome{kind: run.kind, skipped: true})
			o.countAgent(run.kind, "skipped")
			continue
		}

		oc := o.runAgent(ctx, inv, run)
		outcomes = append(outcomes, oc)

		if oc.err == nil && oc.result != nil && o.decisive(oc.result) {
			o.logger.Info("decisive evidence, skipping remaining agents",
				"investigation_id", inv.req.InvestigationID,
				"agent", string(run.kind),
				"risk_score", oc.result.RiskScore,
				"confidence", oc.result.Confidence)
			stopped = true
		}
	}
	return outcomes
}

// decisive is the early-stop predicate for ordered strategies.
func (o *Orchestrator) decisive(res *domain.AgentResult) bool {
	return res.Confidence > o.settings.StopConfidence && res.RiskScore > o.settings.StopRisk
}

// runAgent executes one agent under its breaker, timeout and retry budget.
// Every actual invocation appends a handoff. A panicking agent is a failed
// agent, not a failed investigation.
func (o *Orchestrator) runAgent(ctx context.Context, inv *investigation, run agentRun) (oc agentOutcome) {
	oc.kind = run.kind

	ctx, span := tracer.StartSpan(ctx, "orchestrate.agent",
		trace.WithAttributes(tracer.StringAttr("agent.kind", string(run.kind))),
	)
	defer span.End()

	for attempt := 0; attempt < o.settings.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := o.retryBackoff(attempt)
			o.logger.Info("retrying agent",
				"investigation_id", inv.req.InvestigationID,
				"agent", string(run.kind),
				"attempt", attempt+1,
				"delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			if err := ctx.Err(); err != nil {
				oc.err = err
				break
			}
		}

		done, err := run.breaker.Allow()
		if err != nil {
			oc.err = err
			break
		}

		oc.attempts++
		reason := "planned execution"
		if attempt > 0 {
			reason = fmt.Sprintf("retry %d", attempt)
		}

		result, err := o.invokeAgent(ctx, run.agent, inv.req)
		o.recordHandoff(ctx, inv, run.kind, reason, err == nil)

		if err != nil {
			done(false)
			oc.err = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		done(true)
		oc.result = result
		oc.err = nil
		break
	}

	if oc.err != nil {
		oc.err = fmt.Errorf("%w: agent %s: %w", domain.ErrAgentExecution, run.kind, oc.err)
		tracer.RecordError(span, oc.err)
		o.logger.Warn("agent failed",
			"investigation_id", inv.req.InvestigationID,
			"agent", string(run.kind),
			"attempts", oc.attempts,
			"error", oc.err)
		o.countAgent(run.kind, failureLabel(oc.err))
		return oc
	}

	tracer.SetOK(span)
	o.countAgent(run.kind, "success")
	return oc
}

// invokeAgent bounds one Execute call by the per-agent timeout and converts
// a panicking agent into an error.
func (o *Orchestrator) invokeAgent(ctx context.Context, agent domain.Agent, req domain.InvestigationRequest) (result *domain.AgentResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, o.settings.AgentTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("agent panicked: %v", r)
		}
	}()

	result, err = agent.Execute(ctx, req)
	if err == nil && result == nil {
		err = errors.New("agent returned no result")
	}
	return result, err
}

func (o *Orchestrator) retryBackoff(attempt int) time.Duration {
	return time.Duration(float64(o.settings.BackoffBase) * math.Pow(o.settings.BackoffFactor, float64(attempt-1)))
}

func (o *Orchestrator) countAgent(kind domain.AgentKind, outcome string) {
	if o.m != nil {
		o.m.AgentOutcomes.WithLabelValues(string(kind), outcome).Inc()
	}
}

func failureLabel(err error) string {
	if errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "failure"
}

// recordHandoff appends to the investigation's trail and, when an audit
// store is configured, persists the record. Audit write failures are logged
// and absorbed; the investigation's liveness wins.
func (o *Orchestrator) recordHandoff(ctx context.Context, inv *investigation, to domain.AgentKind, reason string, success bool) {
	h := domain.AgentHandoff{
		ID:         ulid.Make().String(),
		FromAgent:  "orchestrator",
		ToAgent:    string(to),
		ContextRef: inv.req.InvestigationID,
		Reason:     reason,
		Timestamp:  time.Now().UTC(),
		Success:    success,
	}

	inv.mu.Lock()
	inv.handoffs = append(inv.handoffs, h)
	inv.mu.Unlock()

	if o.store != nil {
		if err := o.store.Append(ctx, h); err != nil {
			o.logger.Error("handoff audit write failed",
				"investigation_id", inv.req.InvestigationID,
				"error", fmt.Errorf("%w: %w", domain.ErrAuditWrite, err))
		}
	}
}

// consolidate averages risk and confidence across successful agents,
// computes the authoritative verdict from their domain results, and flags
// the all-agents-failed case explicitly instead of crashing on it.
func (o *Orchestrator) consolidate(ctx context.Context, inv *investigation, outcomes []agentOutcome) domain.ConsolidatedResult {
	res := domain.ConsolidatedResult{
		InvestigationID:  inv.req.InvestigationID,
		AgentsExecuted:   []string{},
		SuccessfulAgents: []string{},
		FailedAgents:     []string{},
		KeyFindings:      []string{},
	}

	var sumRisk, sumConf float64
	var domains []domain.DomainResult
	for _, oc := range outcomes {
		if oc.skipped {
			continue
		}
		res.AgentsExecuted = append(res.AgentsExecuted, string(oc.kind))
		if oc.err != nil {
			res.FailedAgents = append(res.FailedAgents, string(oc.kind))
			continue
		}
		res.SuccessfulAgents = append(res.SuccessfulAgents, string(oc.kind))
		sumRisk += oc.result.RiskScore
		sumConf += oc.result.Confidence
		res.KeyFindings = append(res.KeyFindings, oc.result.Findings...)
		domains = append(domains, oc.result.Domain)
	}

	if n := len(res.SuccessfulAgents); n > 0 {
		res.RiskScore = sumRisk / float64(n)
		res.ConfidenceScore = sumConf / float64(n)
	} else {
		res.RiskScore = 0
		res.ConfidenceScore = 0
		res.KeyFindings = append(res.KeyFindings, "all agents failed; no evidence collected")
		res.RecoveryActions = append(res.RecoveryActions,
			"check backend endpoint health",
			"re-run the investigation once breakers recover")
	}

	outcome := o.agg.Aggregate(domains, caseFacts(inv.req.Context))
	res.Domains = domains
	res.Verdict = &outcome
	for _, issue := range o.agg.Lint(domains, outcome.FinalRisk) {
		res.KeyFindings = append(res.KeyFindings, "contradiction: "+issue)
	}

	inv.mu.Lock()
	res.HandoffCount = len(inv.handoffs)
	successes := 0
	for _, h := range inv.handoffs {
		if h.Success {
			successes++
		}
	}
	inv.mu.Unlock()
	res.HandoffSuccessRate = 1.0
	if res.HandoffCount > 0 {
		res.HandoffSuccessRate = float64(successes) / float64(res.HandoffCount)
	}

	res.Duration = time.Since(inv.start)
	o.saveResult(ctx, res)
	return res
}

// caseFacts reads independently confirmed facts out of the request context.
func caseFacts(ctx map[string]string) domain.CaseFacts {
	return domain.CaseFacts{
		ConfirmedFraud:      ctx["confirmed_fraud"] == "true",
		ConfirmedChargeback: ctx["confirmed_chargeback"] == "true",
		ManualOutcome:       ctx["manual_outcome"],
	}
}

// fallback is the fixed result for unrecoverable internal errors: risk 0.4,
// confidence 0.1, explicit marker and recovery actions.
func (o *Orchestrator) fallback(ctx context.Context, inv *investigation, cause error) domain.ConsolidatedResult {
	res := domain.ConsolidatedResult{
		InvestigationID:  inv.req.InvestigationID,
		AgentsExecuted:   []string{},
		SuccessfulAgents: []string{},
		FailedAgents:     []string{},
		KeyFindings: []string{
			"investigation fell back to the safe default",
			fmt.Sprintf("cause: %v", cause),
		},
		RiskScore:          0.4,
		ConfidenceScore:    0.1,
		HandoffSuccessRate: 1.0,
		RecoveryActions: []string{
			"inspect orchestrator logs for the recorded cause",
			"re-run the investigation",
			"escalate to manual review if the fallback repeats",
		},
		Fallback: true,
		Duration: time.Since(inv.start),
	}

	inv.mu.Lock()
	res.HandoffCount = len(inv.handoffs)
	if res.HandoffCount > 0 {
		successes := 0
		for _, h := range inv.handoffs {
			if h.Success {
				successes++
			}
		}
		res.HandoffSuccessRate = float64(successes) / float64(res.HandoffCount)
	}
	inv.mu.Unlock()

	// The fallback path must terminate. A second failure while alerting or
	// persisting is logged and dropped, never re-raised.
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				o.logger.Error("fallback reporting panicked",
					"investigation_id", inv.req.InvestigationID,
					"panic", rec)
			}
		}()
		if o.alerter != nil {
			o.alerter.Raise(ctx, domain.Alert{
				Kind:      domain.AlertInvestigationFellBack,
				Subject:   "investigation fell back",
				Detail:    cause.Error(),
				Fields:    map[string]string{"investigation_id": inv.req.InvestigationID},
				Timestamp: time.Now().UTC(),
			})
		}
		o.saveResult(ctx, res)
	}()
	return res
}

func (o *Orchestrator) saveResult(ctx context.Context, res domain.ConsolidatedResult) {
	if o.store == nil {
		return
	}
	if err := o.store.SaveResult(ctx, res); err != nil {
		o.logger.Error("investigation audit write failed",
			"investigation_id", res.InvestigationID,
			"error", fmt.Errorf("%w: %w", domain.ErrAuditWrite, err))
	}
}
