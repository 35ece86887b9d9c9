package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/groupguard/groupguard/automod/cachestore"
	"github.com/groupguard/groupguard/automod/countstore"
	"github.com/groupguard/groupguard/automod/flagstore"
	"github.com/groupguard/groupguard/automod/setstore"
	"github.com/groupguard/groupguard/automod/truststore"
)

var errMock = errors.New("mock failure")

// Language classifier for tests. Maps exact text to a language tag; anything else is "en".
type MockLanguageClassifier struct {
	Langs map[string]string
	Fail  bool
	Calls int
}

func (c *MockLanguageClassifier) Classify(ctx context.Context, text string) (string, error) {
	c.Calls++
	if c.Fail {
		return "", errMock
	}
	if lang, ok := c.Langs[text]; ok {
		return lang, nil
	}
	return "en", nil
}

// Risk classifier for tests. Maps exact text to a score; anything else scores zero.
type MockRiskClassifier struct {
	Scores map[string]float64
	Fail   bool
	Calls  int
	// image bytes seen on the most recent call
	LastImage []byte
}

func (c *MockRiskClassifier) Score(ctx context.Context, text string, image []byte) (float64, error) {
	c.Calls++
	c.LastImage = image
	if c.Fail {
		return 0, errMock
	}
	return c.Scores[text], nil
}

type MockPlatformCall struct {
	Op        string
	ChatID    int64
	MemberID  int64
	MessageID int
	Text      string
}

// Platform for tests, which records every call. Failing operations are listed by name in Fail ("delete",
// "ban", "unban", "reply", "is-chat-admin", "fetch-image").
type MockPlatform struct {
	mu     sync.Mutex
	Calls  []MockPlatformCall
	Admins map[int64]bool
	Images map[string][]byte
	Fail   map[string]bool
}

func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		Admins: make(map[int64]bool),
		Images: make(map[string][]byte),
		Fail:   make(map[string]bool),
	}
}

func (p *MockPlatform) record(c MockPlatformCall) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, c)
	if p.Fail[c.Op] {
		return errMock
	}
	return nil
}

// Returns the names of recorded operations, in order.
func (p *MockPlatform) Ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []string{}
	for _, c := range p.Calls {
		out = append(out, c.Op)
	}
	return out
}

func (p *MockPlatform) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

func (p *MockPlatform) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return p.record(MockPlatformCall{Op: "delete", ChatID: chatID, MessageID: messageID})
}

func (p *MockPlatform) BanMember(ctx context.Context, chatID, memberID int64) error {
	return p.record(MockPlatformCall{Op: "ban", ChatID: chatID, MemberID: memberID})
}

func (p *MockPlatform) UnbanMember(ctx context.Context, chatID, memberID int64) error {
	return p.record(MockPlatformCall{Op: "unban", ChatID: chatID, MemberID: memberID})
}

func (p *MockPlatform) ReplyTo(ctx context.Context, chatID int64, messageID int, text string) error {
	return p.record(MockPlatformCall{Op: "reply", ChatID: chatID, MessageID: messageID, Text: text})
}

func (p *MockPlatform) IsChatAdmin(ctx context.Context, chatID, memberID int64) (bool, error) {
	if err := p.record(MockPlatformCall{Op: "is-chat-admin", ChatID: chatID, MemberID: memberID}); err != nil {
		return false, err
	}
	return p.Admins[memberID], nil
}

func (p *MockPlatform) FetchImage(ctx context.Context, ref string) ([]byte, error) {
	if err := p.record(MockPlatformCall{Op: "fetch-image", Text: ref}); err != nil {
		return nil, err
	}
	return p.Images[ref], nil
}

type MockNotifier struct {
	mu      sync.Mutex
	Notices []ActionNotice
}

func (n *MockNotifier) SendAction(ctx context.Context, an *ActionNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Notices = append(n.Notices, *an)
	return nil
}

// Engine wired to in-memory stores and mock collaborators. "ru" is the flagged language. Intentionally
// exported, for use in other packages.
func EngineTestFixture() Engine {
	sets := setstore.NewMemSetStore()
	sets.Add(setstore.FlaggedLanguages, "ru")
	return Engine{
		Logger:    slog.Default(),
		Trust:     truststore.NewMemTrustStore(),
		Counters:  countstore.NewMemCountStore(),
		Sets:      sets,
		Cache:     cachestore.NewMemCacheStore(100, 10*time.Minute),
		Flags:     flagstore.NewMemFlagStore(),
		Language:  &MockLanguageClassifier{Langs: map[string]string{}},
		Risk:      &MockRiskClassifier{Scores: map[string]float64{}},
		Platform:  NewMockPlatform(),
		Notifiers: []Notifier{&MockNotifier{}},
		Config:    DefaultEngineConfig(),
	}
}
