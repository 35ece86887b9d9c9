package truststore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQL row for a member record. Primary key is (member_id, chat_id).
type GroupMember struct {
	MemberID     int64 `gorm:"primaryKey;autoIncrement:false"`
	ChatID       int64 `gorm:"primaryKey;autoIncrement:false;index"`
	JoinTime     *time.Time
	Trusted      bool  `gorm:"not null;default:false"`
	MessageCount int64 `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ChatStat struct {
	ChatID       int64 `gorm:"primaryKey;autoIncrement:false"`
	BlockedCount int64 `gorm:"not null;default:0"`
	UpdatedAt    time.Time
}

type ExcludedThread struct {
	ChatID   int64 `gorm:"primaryKey;autoIncrement:false"`
	ThreadID int   `gorm:"primaryKey;autoIncrement:false"`
}

// Key/value counters which are not scoped to a single chat.
type BotStat struct {
	Name  string `gorm:"primaryKey"`
	Value int64  `gorm:"not null;default:0"`
}

const globalBlockedKey = "blocked"

// TrustStore backed by a SQL database (sqlite or postgres) through gorm.
type GormTrustStore struct {
	db *gorm.DB
}

var _ TrustStore = (*GormTrustStore)(nil)

// Wraps an already-configured database handle, and runs schema migrations.
func NewGormTrustStore(db *gorm.DB) (*GormTrustStore, error) {
	if err := db.AutoMigrate(&GroupMember{}, &ChatStat{}, &ExcludedThread{}, &BotStat{}); err != nil {
		return nil, fmt.Errorf("migrating trust store schema: %w", err)
	}
	return &GormTrustStore{db: db}, nil
}

func (s *GormTrustStore) GetMember(ctx context.Context, memberID, chatID int64) (*Member, error) {
	var row GroupMember
	err := s.db.WithContext(ctx).Where("member_id = ? AND chat_id = ?", memberID, chatID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	m := Member{
		MemberID:     row.MemberID,
		ChatID:       row.ChatID,
		Trusted:      row.Trusted,
		MessageCount: row.MessageCount,
	}
	if row.JoinTime != nil {
		jt := row.JoinTime.UTC()
		m.JoinTime = &jt
	}
	return &m, nil
}

func (s *GormTrustStore) PutMember(ctx context.Context, m Member) error {
	row := GroupMember{
		MemberID:     m.MemberID,
		ChatID:       m.ChatID,
		JoinTime:     m.JoinTime,
		Trusted:      m.Trusted,
		MessageCount: m.MessageCount,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}, {Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"join_time", "trusted", "message_count", "updated_at"}),
	}).Create(&row).Error
}

func (s *GormTrustStore) CreateMember(ctx context.Context, m Member) (bool, error) {
	row := GroupMember{
		MemberID:     m.MemberID,
		ChatID:       m.ChatID,
		JoinTime:     m.JoinTime,
		Trusted:      m.Trusted,
		MessageCount: m.MessageCount,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormTrustStore) updateMember(ctx context.Context, memberID, chatID int64, column string, val any) error {
	res := s.db.WithContext(ctx).Model(&GroupMember{}).Where("member_id = ? AND chat_id = ?", memberID, chatID).Update(column, val)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMemberNotFound
	}
	return nil
}

func (s *GormTrustStore) IncrementMessageCount(ctx context.Context, memberID, chatID int64) error {
	return s.updateMember(ctx, memberID, chatID, "message_count", gorm.Expr("message_count + 1"))
}

func (s *GormTrustStore) SetTrusted(ctx context.Context, memberID, chatID int64, trusted bool) error {
	return s.updateMember(ctx, memberID, chatID, "trusted", trusted)
}

func (s *GormTrustStore) GetChatAggregate(ctx context.Context, chatID int64) (*ChatAggregate, error) {
	agg := ChatAggregate{ChatID: chatID}

	var stat ChatStat
	err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Take(&stat).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	agg.BlockedCount = stat.BlockedCount

	if err := s.db.WithContext(ctx).Model(&GroupMember{}).Where("chat_id = ?", chatID).Count(&agg.KnownMembers).Error; err != nil {
		return nil, err
	}

	threads, err := s.GetExcludedThreads(ctx, chatID)
	if err != nil {
		return nil, err
	}
	agg.ExcludedThreads = threads
	return &agg, nil
}

func (s *GormTrustStore) IncrementBlockedCount(ctx context.Context, chatID int64) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"blocked_count": gorm.Expr("chat_stats.blocked_count + 1"),
			"updated_at":    time.Now(),
		}),
	}).Create(&ChatStat{ChatID: chatID, BlockedCount: 1}).Error
}

func (s *GormTrustStore) IncrementGlobalBlockedCount(ctx context.Context) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]any{"value": gorm.Expr("bot_stats.value + 1")}),
	}).Create(&BotStat{Name: globalBlockedKey, Value: 1}).Error
}

func (s *GormTrustStore) GetGlobalBlockedCount(ctx context.Context) (int64, error) {
	var stat BotStat
	err := s.db.WithContext(ctx).Where("name = ?", globalBlockedKey).Take(&stat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return stat.Value, nil
}

func (s *GormTrustStore) GetExcludedThreads(ctx context.Context, chatID int64) ([]int, error) {
	threads := []int{}
	err := s.db.WithContext(ctx).Model(&ExcludedThread{}).Where("chat_id = ?", chatID).Order("thread_id").Pluck("thread_id", &threads).Error
	if err != nil {
		return nil, err
	}
	return threads, nil
}

// Replaces the full set in a single transaction.
func (s *GormTrustStore) SetExcludedThreads(ctx context.Context, chatID int64, threads []int) error {
	rows := []ExcludedThread{}
	for _, t := range dedupeThreads(threads) {
		rows = append(rows, ExcludedThread{ChatID: chatID, ThreadID: t})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&ExcludedThread{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}
