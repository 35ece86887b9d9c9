package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/groupguard/groupguard/automod/cachestore"
	"github.com/groupguard/groupguard/automod/countstore"
	"github.com/groupguard/groupguard/automod/flagstore"
	"github.com/groupguard/groupguard/automod/setstore"
	"github.com/groupguard/groupguard/automod/truststore"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("automod")

// runtime for evaluating messages, tracking member trust, and enforcing moderation actions.
//
// NOTE: several fields must not be nil even though they are interfaces: Trust, Counters, Sets, Cache, Flags,
// Language, and Platform. Risk and Notifiers are optional.
type Engine struct {
	Logger    *slog.Logger
	Trust     truststore.TrustStore
	Counters  countstore.CountStore
	Sets      setstore.SetStore
	Cache     cachestore.CacheStore
	Flags     flagstore.FlagStore
	Language  LanguageClassifier
	Risk      RiskClassifier
	Platform  Platform
	Notifiers []Notifier
	Config    EngineConfig
	// overridable for tests; defaults to time.Now
	Clock func() time.Time
}

type EngineConfig struct {
	// Members who joined longer ago than this are promoted to trusted.
	NewMemberThreshold time.Duration
	// Members with at least this many inspected, allowed messages skip inspection of non-flagged messages.
	TrustMessageThreshold int64
	// Risk scores strictly greater than this result in a ban.
	ScamThreshold float64
	// Maximum number of bans per day across all chats. Zero disables the limit.
	BanQuotaDay int
	// Sent (after a mention of the member) when a message is deleted for language.
	WarningText string
}

const DefaultWarningText = "Будь ласка, спілкуйтеся Українською🇺🇦, Англійською🇬🇧 або Івритом🇮🇱!"

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		NewMemberThreshold:    48 * time.Hour,
		TrustMessageThreshold: 2,
		ScamThreshold:         0.75,
		BanQuotaDay:           0,
		WarningText:           DefaultWarningText,
	}
}

func (eng *Engine) now() time.Time {
	if eng.Clock != nil {
		return eng.Clock()
	}
	return time.Now()
}

// Runs a single message through the full pipeline: inspection policy, classification, action selection, and
// enforcement.
//
// Only invalid input results in an error; collaborator failures are logged and degrade to allowing the
// message.
func (eng *Engine) ProcessMessage(ctx context.Context, msg *Message) (v *Verdict, err error) {
	if msg == nil {
		return nil, ErrInvalidEvent
	}
	// similar to an HTTP server, we want to recover any panics from message processing
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("automod message processing exception", "err", r, "chat", msg.ChatID, "member", msg.MemberID)
			messageErrorCount.WithLabelValues("panic").Inc()
			v = &Verdict{Action: ActionAllow}
			err = nil
		}
	}()

	if err := msg.validate(); err != nil {
		messageErrorCount.WithLabelValues("invalid").Inc()
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "ProcessMessage", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(
		attribute.Int64("chat", msg.ChatID),
		attribute.Int64("member", msg.MemberID),
	)

	start := time.Now()
	logger := eng.Logger.With("chat", msg.ChatID, "member", msg.MemberID, "message", msg.MessageID)
	if msg.Time.IsZero() {
		msg.Time = eng.now()
	}

	verdict := eng.evaluate(ctx, logger, msg)
	span.SetAttributes(
		attribute.String("inspection", verdict.Inspection.String()),
		attribute.String("action", string(verdict.Action)),
	)

	if verdict.Inspection != InspectSkip {
		eng.Enforce(ctx, msg, verdict)
		eng.countAllowed(ctx, logger, msg, verdict)
	}

	messageProcessCount.WithLabelValues(verdict.Inspection.String(), string(verdict.Action)).Inc()
	messageProcessDuration.WithLabelValues(verdict.Inspection.String()).Observe(time.Since(start).Seconds())
	logger.Info("message evaluated",
		"inspection", verdict.Inspection.String(),
		"flagged", verdict.Flagged,
		"untrusted", verdict.Untrusted,
		"risk", verdict.Risk,
		"action", string(verdict.Action),
		"duration", time.Since(start),
	)
	return verdict, nil
}

// Decides the action for a message, without side effects on the platform.
func (eng *Engine) evaluate(ctx context.Context, logger *slog.Logger, msg *Message) *Verdict {
	inspection, flagged := eng.ShouldInspect(ctx, msg)
	v := &Verdict{
		Inspection: inspection,
		Flagged:    flagged,
		Action:     ActionAllow,
	}
	if inspection == InspectSkip {
		return v
	}

	v.Untrusted = eng.IsUntrusted(ctx, msg.MemberID, msg.ChatID, msg.Time)

	if inspection == InspectFull && eng.Risk != nil {
		v.Risk = eng.scoreRisk(ctx, logger, msg)
	}

	v.Action = SelectAction(v.Flagged, v.Risk, v.Untrusted, eng.Config.ScamThreshold)
	return v
}

func (eng *Engine) scoreRisk(ctx context.Context, logger *slog.Logger, msg *Message) float64 {
	var image []byte
	if msg.HasImage() {
		b, err := eng.Platform.FetchImage(ctx, msg.ImageRef)
		if err != nil {
			// still score the text on its own
			logger.Warn("failed to fetch message image", "err", fmt.Errorf("%w: %w", ErrPlatformActionFailed, err))
			platformErrorCount.WithLabelValues("fetch-image").Inc()
		} else {
			image = b
		}
	}

	start := time.Now()
	score, err := eng.Risk.Score(ctx, msg.Text, image)
	classifierDuration.WithLabelValues("risk").Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Warn("risk classification failed, treating as zero risk", "err", fmt.Errorf("%w: %w", ErrClassifierUnavailable, err))
		classifierErrorCount.WithLabelValues("risk").Inc()
		return 0
	}
	if clamped := clampRisk(score); clamped != score {
		logger.Warn("risk score out of range, clamping", "score", score, "clamped", clamped)
		score = clamped
	}
	return score
}

// Counts a fully inspected, allowed message towards the member's trust threshold.
func (eng *Engine) countAllowed(ctx context.Context, logger *slog.Logger, msg *Message, v *Verdict) {
	if v.Inspection != InspectFull || v.Action != ActionAllow {
		return
	}
	m, err := eng.Trust.GetMember(ctx, msg.MemberID, msg.ChatID)
	if err != nil {
		logger.Error("failed to read member record", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
		return
	}
	// capped; already-counted members skip inspection anyways
	if m == nil || m.MessageCount >= eng.Config.TrustMessageThreshold {
		return
	}
	if err := eng.Trust.IncrementMessageCount(ctx, msg.MemberID, msg.ChatID); err != nil {
		logger.Error("failed to increment member message count", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}
}

// Records new members of a chat. A member added by a chat admin (other than themselves) starts out trusted;
// everybody else starts out untrusted, with the join time set.
func (eng *Engine) ProcessJoin(ctx context.Context, evt *JoinEvent) (err error) {
	if evt == nil {
		return ErrInvalidEvent
	}
	// similar to an HTTP server, we want to recover any panics from event processing
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("automod join processing exception", "err", r, "chat", evt.ChatID)
			err = nil
		}
	}()

	if evt.ChatID == 0 {
		return fmt.Errorf("%w: join event with no chat", ErrInvalidEvent)
	}

	ctx, span := tracer.Start(ctx, "ProcessJoin", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()
	span.SetAttributes(attribute.Int64("chat", evt.ChatID), attribute.Int("members", len(evt.MemberIDs)))

	now := evt.Time
	if now.IsZero() {
		now = eng.now()
	}
	logger := eng.Logger.With("chat", evt.ChatID, "adder", evt.AdderID)

	adderIsAdmin := false
	if evt.AdderID != 0 {
		adderIsAdmin = eng.isChatAdmin(ctx, logger, evt.ChatID, evt.AdderID)
	}

	for _, memberID := range evt.MemberIDs {
		trusted := adderIsAdmin && evt.AdderID != memberID
		joined := now
		m := truststore.Member{
			MemberID: memberID,
			ChatID:   evt.ChatID,
			JoinTime: &joined,
			Trusted:  trusted,
		}
		if err := eng.Trust.PutMember(ctx, m); err != nil {
			logger.Error("failed to record joining member", "member", memberID, "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
			continue
		}
		joinCount.WithLabelValues(fmt.Sprint(trusted)).Inc()
		logger.Info("recorded joining member", "member", memberID, "trusted", trusted)
	}
	return nil
}
