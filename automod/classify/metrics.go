package classify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var geminiAPIDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "groupguard_gemini_api_duration_sec",
	Help: "Duration of Gemini risk scoring API calls",
})

var geminiAPICount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "groupguard_gemini_api_count",
	Help: "Number of Gemini risk scoring API calls, by HTTP status code",
}, []string{"status"})

var riskCacheCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "groupguard_risk_cache_count",
	Help: "Risk classifier cache lookups, by result (hit or miss)",
}, []string{"result"})
