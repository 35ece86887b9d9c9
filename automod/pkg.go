package automod

import (
	"github.com/groupguard/groupguard/automod/countstore"
	"github.com/groupguard/groupguard/automod/engine"
)

type Engine = engine.Engine
type EngineConfig = engine.EngineConfig
type Message = engine.Message
type JoinEvent = engine.JoinEvent
type Verdict = engine.Verdict
type Action = engine.Action

type Notifier = engine.Notifier
type SlackNotifier = engine.SlackNotifier
type NatsNotifier = engine.NatsNotifier

var (
	ActionAllow         = engine.ActionAllow
	ActionWarnAndDelete = engine.ActionWarnAndDelete
	ActionDeleteAndBan  = engine.ActionDeleteAndBan

	PeriodTotal = countstore.PeriodTotal
	PeriodDay   = countstore.PeriodDay
	PeriodHour  = countstore.PeriodHour
)
