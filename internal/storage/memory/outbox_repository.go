package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	seq        int64
	createdAt  time.Time
	updatedAt  time.Time
}

// OutboxRepository: in-memory хранилище для transactional outbox.
type OutboxRepository struct {
	s *Store
}

// NewOutboxRepository создаёт outbox поверх отдельного хранилища.
func NewOutboxRepository() *OutboxRepository {
	return NewStore().Outbox()
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его с идентификатором.
func (r *OutboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	err := r.s.update(ctx, "enqueue outbox message", func() error {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		r.s.outboxSeq++
		r.s.outbox[msg.ID] = outboxRecord{
			msg:       msg,
			status:    outboxStatusPending,
			seq:       r.s.outboxSeq,
			createdAt: now,
			updatedAt: now,
		}
		return nil
	})
	if err != nil {
		return domain.OutboxMessage{}, err
	}
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке постановки.
func (r *OutboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var pending []outboxRecord
	err := r.s.view(ctx, "pull pending outbox", func() error {
		pending = r.pendingLocked()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(pending) > limit {
		pending = pending[:limit]
	}
	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (r *OutboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	err := r.s.view(ctx, "outbox stats", func() error {
		pending := r.pendingLocked()
		stats.PendingCount = len(pending)
		if len(pending) > 0 {
			stats.OldestPendingAt = pending[0].createdAt
		}
		return nil
	})
	return stats, err
}

// MarkSent обновляет статус события после успешной публикации.
func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.mark(ctx, id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.mark(ctx, id, outboxStatusFailed)
}

func (r *OutboxRepository) mark(ctx context.Context, id, status string) error {
	return r.s.update(ctx, "mark outbox message", func() error {
		record, ok := r.s.outbox[id]
		if !ok {
			return domain.ErrOutboxPublish
		}
		record.status = status
		record.attemptCnt++
		record.updatedAt = time.Now().UTC()
		r.s.outbox[id] = record
		return nil
	})
}

// AllPending возвращает копию всех сообщений со статусом `pending` (используется в тестах).
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	pending := r.pendingLocked()
	result := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.msg)
	}
	return result
}

func (r *OutboxRepository) pendingLocked() []outboxRecord {
	result := make([]outboxRecord, 0, len(r.s.outbox))
	for _, rec := range r.s.outbox {
		if rec.status == outboxStatusPending {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].seq < result[j].seq })
	return result
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
