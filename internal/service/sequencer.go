package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/docstore/internal/domain/trackcode"
	"github.com/bigkaa/docstore/internal/repository"
)

// Метрики выдачи трекинг-кодов
var (
	sequencerAssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ds_sequencer_assignments_total",
			Help: "Количество попыток выдачи трекинг-кодов по результату",
		},
		[]string{"result"},
	)

	sequencerConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ds_sequencer_conflicts_total",
			Help: "Количество конфликтов уникальности трекинг-кода при вставке",
		},
	)
)

// CodeSource — источник последнего выданного кода за день.
// Реализуется repository.DocumentRepository.
type CodeSource interface {
	LastTrackingNumber(ctx context.Context, prefix string) (string, error)
}

// Sequencer выдаёт трекинг-коды вида TRK-YYYYMMDD-NNNN.
//
// Гонка «прочитать максимум, увеличить, вставить» закрыта двумя уровнями:
// внутри процесса коды одного дня выдаются под мьютексом префикса дня,
// между процессами дубликат отсекает уникальный индекс tracking_number,
// после чего Assign перечитывает максимум и повторяет попытку.
type Sequencer struct {
	source      CodeSource
	loc         *time.Location
	maxAttempts int
	logger      *slog.Logger

	mu    sync.Mutex
	locks map[string]*dayLock
}

// dayLock — мьютекс дня со счётчиком ожидающих, чтобы освобождать
// записи прошедших дней.
type dayLock struct {
	mu   sync.Mutex
	refs int
}

// NewSequencer создаёт Sequencer. loc задаёт часовой пояс, в котором
// определяется календарный день; maxAttempts — число попыток при конфликте.
func NewSequencer(source CodeSource, loc *time.Location, maxAttempts int, logger *slog.Logger) *Sequencer {
	if loc == nil {
		loc = time.Local
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Sequencer{
		source:      source,
		loc:         loc,
		maxAttempts: maxAttempts,
		logger:      logger.With(slog.String("component", "sequencer")),
		locks:       make(map[string]*dayLock),
	}
}

// NextCode возвращает код, который получит следующий документ дня now.
// Код не резервируется.
func (s *Sequencer) NextCode(ctx context.Context, now time.Time) (string, error) {
	day := now.In(s.loc)
	last, err := s.source.LastTrackingNumber(ctx, trackcode.DayPrefix(day))
	if err != nil {
		return "", fmt.Errorf("ошибка чтения последнего трекинг-кода: %w", err)
	}
	code, err := trackcode.Next(day, last)
	if err != nil {
		return "", mapTrackcodeErr(err)
	}
	return code, nil
}

// Assign выдаёт код дня now и вызывает insert с этим кодом под мьютексом дня.
// Если insert вернул repository.ErrConflict (код занят другим процессом),
// максимум перечитывается и попытка повторяется. После maxAttempts
// конфликтов — ErrSequencerContention. Прочие ошибки insert возвращаются как есть.
func (s *Sequencer) Assign(ctx context.Context, now time.Time, insert func(ctx context.Context, code string) error) (string, error) {
	day := now.In(s.loc)
	prefix := trackcode.DayPrefix(day)

	unlock := s.lock(prefix)
	defer unlock()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		last, err := s.source.LastTrackingNumber(ctx, prefix)
		if err != nil {
			sequencerAssignmentsTotal.WithLabelValues("error").Inc()
			return "", fmt.Errorf("ошибка чтения последнего трекинг-кода: %w", err)
		}

		code, err := trackcode.Next(day, last)
		if err != nil {
			sequencerAssignmentsTotal.WithLabelValues("exhausted").Inc()
			return "", mapTrackcodeErr(err)
		}

		err = insert(ctx, code)
		if err == nil {
			sequencerAssignmentsTotal.WithLabelValues("ok").Inc()
			return code, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			sequencerAssignmentsTotal.WithLabelValues("error").Inc()
			return "", err
		}

		sequencerConflictsTotal.Inc()
		s.logger.Warn("Трекинг-код уже занят, повтор",
			slog.String("code", code),
			slog.Int("attempt", attempt),
		)
	}

	sequencerAssignmentsTotal.WithLabelValues("contention").Inc()
	return "", fmt.Errorf("%w: %d попыток для %s", ErrSequencerContention, s.maxAttempts, prefix)
}

// lock захватывает мьютекс префикса дня и возвращает функцию освобождения.
func (s *Sequencer) lock(prefix string) func() {
	s.mu.Lock()
	l, ok := s.locks[prefix]
	if !ok {
		l = &dayLock{}
		s.locks[prefix] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, prefix)
		}
		s.mu.Unlock()
	}
}

func mapTrackcodeErr(err error) error {
	if errors.Is(err, trackcode.ErrOverflow) {
		return fmt.Errorf("%w: %v", ErrExhaustedSequence, err)
	}
	return fmt.Errorf("ошибка разбора трекинг-кода: %w", err)
}
