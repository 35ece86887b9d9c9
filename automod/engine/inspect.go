package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/groupguard/groupguard/automod/setstore"
)

// Decides whether a message needs classification, and how much. Also returns whether the text is in a flagged
// language. Rules, first match wins:
//
//  1. message is in an excluded thread: skip
//  2. text is in a flagged language: full inspection
//  3. no text and no image: skip
//  4. member already has TrustMessageThreshold counted messages: skip
//  5. otherwise: full inspection
//
// Without a risk classifier, rule 2 only inspects the language and rule 5 skips.
//
// Store and classifier failures fail open, towards skipping or not-flagged.
func (eng *Engine) ShouldInspect(ctx context.Context, msg *Message) (Inspection, bool) {
	logger := eng.Logger.With("chat", msg.ChatID, "member", msg.MemberID)

	if msg.ThreadID != 0 {
		excluded, err := eng.Trust.GetExcludedThreads(ctx, msg.ChatID)
		if err != nil {
			logger.Error("failed to read excluded threads", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
			storeErrorCount.WithLabelValues("get-excluded-threads").Inc()
		} else if slices.Contains(excluded, msg.ThreadID) {
			return InspectSkip, false
		}
	}

	flagged := false
	if msg.Text != "" {
		flagged = eng.isFlaggedLanguage(ctx, msg.Text)
	}
	if flagged {
		if eng.Risk == nil {
			return InspectFlaggedOnly, true
		}
		return InspectFull, true
	}

	if msg.Text == "" && !msg.HasImage() {
		return InspectSkip, false
	}

	m, err := eng.Trust.GetMember(ctx, msg.MemberID, msg.ChatID)
	if err != nil {
		logger.Error("failed to read member record, skipping inspection", "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
		storeErrorCount.WithLabelValues("get-member").Inc()
		return InspectSkip, false
	}
	if m != nil && m.MessageCount >= eng.Config.TrustMessageThreshold {
		return InspectSkip, false
	}

	if eng.Risk == nil {
		return InspectSkip, false
	}
	return InspectFull, false
}

func (eng *Engine) isFlaggedLanguage(ctx context.Context, text string) bool {
	start := time.Now()
	lang, err := eng.Language.Classify(ctx, text)
	classifierDuration.WithLabelValues("language").Observe(time.Since(start).Seconds())
	if err != nil {
		eng.Logger.Warn("language classification failed, treating as not flagged", "err", fmt.Errorf("%w: %w", ErrClassifierUnavailable, err))
		classifierErrorCount.WithLabelValues("language").Inc()
		return false
	}
	if lang == "" {
		return false
	}
	flagged, err := eng.Sets.InSet(ctx, setstore.FlaggedLanguages, lang)
	if err != nil {
		eng.Logger.Error("failed to check flagged language set", "lang", lang, "err", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
		return false
	}
	if flagged {
		flaggedLanguageCount.WithLabelValues(lang).Inc()
	}
	return flagged
}
