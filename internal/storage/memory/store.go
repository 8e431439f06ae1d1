package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

type userRecord struct {
	user         domain.User
	passwordHash []byte
}

type orderRecord struct {
	order domain.Order
	seq   uint64
}

type cartItemRecord struct {
	item domain.CartItem
	seq  uint64
}

// state - снимок всех сущностей. Пишущая транзакция работает с копией и подменяет оригинал при успехе.
type state struct {
	seq      uint64
	users    map[string]userRecord
	emails   map[string]string
	orders   map[string]orderRecord
	items    map[string]cartItemRecord
	timeline map[string][]domain.TimelineEvent
	outbox   map[string]outboxRecord
}

func newState() *state {
	return &state{
		users:    make(map[string]userRecord),
		emails:   make(map[string]string),
		orders:   make(map[string]orderRecord),
		items:    make(map[string]cartItemRecord),
		timeline: make(map[string][]domain.TimelineEvent),
		outbox:   make(map[string]outboxRecord),
	}
}

func (s *state) clone() *state {
	c := &state{
		seq:      s.seq,
		users:    make(map[string]userRecord, len(s.users)),
		emails:   make(map[string]string, len(s.emails)),
		orders:   make(map[string]orderRecord, len(s.orders)),
		items:    make(map[string]cartItemRecord, len(s.items)),
		timeline: make(map[string][]domain.TimelineEvent, len(s.timeline)),
		outbox:   make(map[string]outboxRecord, len(s.outbox)),
	}
	for k, v := range s.users {
		v.user = copyUser(v.user)
		c.users[k] = v
	}
	for k, v := range s.emails {
		c.emails[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.timeline {
		c.timeline[k] = append([]domain.TimelineEvent(nil), v...)
	}
	for k, v := range s.outbox {
		c.outbox[k] = v
	}
	return c
}

func (s *state) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// Store - in-memory хранилище для локальной разработки и тестов.
// Транзакции сериализуются одним мьютексом, поэтому проверки инвариантов
// и запись всегда видят согласованное состояние.
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{
		state: newState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithinTx выполняет fn под мьютексом хранилища. Чтение идёт по текущему
// состоянию, первая запись снимает копию, и копия применяется только при успехе.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{state: s.state, now: s.now}
	if err := fn(t); err != nil {
		return err
	}
	if !t.dirty {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state = t.state
	return nil
}

// Ping всегда успешен.
func (s *Store) Ping(context.Context) error { return nil }

// Close ничего не освобождает.
func (s *Store) Close() error { return nil }

// tx реализует domain.Tx. До первой записи state указывает на общее
// состояние хранилища и не меняется.
type tx struct {
	state *state
	dirty bool
	now   func() time.Time
}

// writable вызывается в начале каждой изменяющей операции.
func (t *tx) writable() {
	if t.dirty {
		return
	}
	t.state = t.state.clone()
	t.dirty = true
}

func copyUser(u domain.User) domain.User {
	if u.Address != nil {
		v := *u.Address
		u.Address = &v
	}
	if u.PhoneNumber != nil {
		v := *u.PhoneNumber
		u.PhoneNumber = &v
	}
	return u
}

var (
	_ domain.Store = (*Store)(nil)
	_ domain.Tx    = (*tx)(nil)
)
