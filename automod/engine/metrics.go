package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messageProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "automod_message_duration_sec",
	Help: "Total duration of automod message processing, by inspection level",
}, []string{"inspection"})

var messageProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_messages_processed",
	Help: "Number of messages processed, by inspection level and action",
}, []string{"inspection", "action"})

var messageErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_message_errors",
	Help: "Number of messages which failed processing",
}, []string{"type"})

var joinCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_member_joins",
	Help: "Number of joining members recorded, by initial trust",
}, []string{"trusted"})

var trustPromotionCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_trust_promotions",
	Help: "Number of members promoted to trusted after the new-member period",
})

var flaggedLanguageCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_flagged_language_messages",
	Help: "Number of messages detected in a flagged language",
}, []string{"lang"})

var classifierDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "automod_classifier_duration_sec",
	Help: "Duration of classifier calls",
}, []string{"classifier"})

var classifierErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_classifier_errors",
	Help: "Number of failed classifier calls",
}, []string{"classifier"})

var storeErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_store_errors",
	Help: "Number of failed trust store operations",
}, []string{"op"})

var platformErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_platform_errors",
	Help: "Number of failed platform calls",
}, []string{"op"})

var actionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_new_actions",
	Help: "Number of enforcement actions taken",
}, []string{"action"})

var banCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_new_bans",
	Help: "Number of confirmed bans counted",
})

var circuitBreakerCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_circuit_breaks",
	Help: "Number of actions skipped by circuit breakers",
}, []string{"action"})
