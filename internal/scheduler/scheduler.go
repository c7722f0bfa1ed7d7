// Пакет scheduler — планировщик повторяющихся фоновых задач.
//
// Каждая задача идентифицируется строковым ключом (например "project/42/sync")
// и выполняется в собственной горутине с заданным интервалом. Выполнения
// одной задачи никогда не перекрываются: следующий запуск отсчитывается от
// завершения предыдущего. Если задачу отменили и сразу добавили заново с тем же
// ключом, запуск новой, совпавший с ещё идущим выполнением старой, дожидается
// его окончания и пропускается (single-flight по ключу).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrExists — задача с таким ключом уже зарегистрирована.
	ErrExists = errors.New("задача уже существует")
	// ErrStopped — планировщик остановлен.
	ErrStopped = errors.New("планировщик остановлен")
)

// Func — тело задачи. ctx отменяется при отмене задачи или остановке планировщика.
type Func func(ctx context.Context)

// Option — параметр задачи.
type Option func(*task)

// WithInitialDelay задаёт паузу перед первым запуском. По умолчанию первый
// запуск выполняется сразу после добавления.
func WithInitialDelay(d time.Duration) Option {
	return func(t *task) {
		t.delay = d
	}
}

// task — зарегистрированная задача.
type task struct {
	key      string
	interval time.Duration
	delay    time.Duration
	fn       Func
	cancel   context.CancelFunc
	wake     chan struct{}
}

// Scheduler — планировщик задач.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*task
	flight  singleflight.Group
	ctx     context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
	logger  *slog.Logger
}

// New создаёт планировщик. Задачи получают контекст, производный от ctx.
func New(ctx context.Context, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		tasks:  make(map[string]*task),
		ctx:    ctx,
		stop:   cancel,
		logger: logger.With(slog.String("component", "scheduler")),
	}
}

// Add регистрирует задачу key с интервалом interval.
func (s *Scheduler) Add(key string, interval time.Duration, fn Func, opts ...Option) error {
	if interval <= 0 {
		return fmt.Errorf("задача %s: интервал должен быть положительным", key)
	}

	t := &task{
		key:      key,
		interval: interval,
		fn:       fn,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if _, ok := s.tasks[key]; ok {
		return fmt.Errorf("%w: %s", ErrExists, key)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t.cancel = cancel
	s.tasks[key] = t

	s.wg.Add(1)
	go s.run(ctx, t)

	s.logger.Debug("Задача добавлена",
		slog.String("key", key),
		slog.String("interval", interval.String()),
	)
	return nil
}

// Cancel отменяет задачу. Не ждёт завершения текущего выполнения, поэтому
// безопасен для вызова из тела самой задачи. Возвращает false, если задачи нет.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[key]
	if !ok {
		return false
	}
	t.cancel()
	delete(s.tasks, key)
	return true
}

// CancelPrefix отменяет все задачи, ключ которых начинается с prefix.
func (s *Scheduler) CancelPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, t := range s.tasks {
		if strings.HasPrefix(key, prefix) {
			t.cancel()
			delete(s.tasks, key)
			n++
		}
	}
	return n
}

// RunNow запрашивает внеочередной запуск задачи. Если задача сейчас выполняется,
// запуск произойдёт сразу после завершения. Повторные запросы схлопываются.
func (s *Scheduler) RunNow(key string) bool {
	s.mu.Lock()
	t, ok := s.tasks[key]
	s.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case t.wake <- struct{}{}:
	default:
	}
	return true
}

// Has сообщает, зарегистрирована ли задача.
func (s *Scheduler) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

// Keys возвращает отсортированный список ключей зарегистрированных задач.
func (s *Scheduler) Keys() []string {
	s.mu.Lock()
	keys := make([]string, 0, len(s.tasks))
	for key := range s.tasks {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	sort.Strings(keys)
	return keys
}

// Stop отменяет все задачи и ждёт завершения их горутин.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.tasks = make(map[string]*task)
	s.mu.Unlock()

	s.stop()
	s.wg.Wait()
	s.logger.Info("Планировщик остановлен")
}

// run — цикл одной задачи.
func (s *Scheduler) run(ctx context.Context, t *task) {
	defer s.wg.Done()

	timer := time.NewTimer(t.delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-t.wake:
			timer.Stop()
		}

		s.execute(ctx, t)

		if ctx.Err() != nil {
			return
		}
		timer.Reset(t.interval)
	}
}

// execute выполняет тело задачи под single-flight по ключу.
// Паника в задаче логируется и не останавливает цикл.
func (s *Scheduler) execute(ctx context.Context, t *task) {
	_, _, _ = s.flight.Do(t.key, func() (any, error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Паника в задаче",
					slog.String("key", t.key),
					slog.Any("panic", r),
				)
			}
		}()
		t.fn(ctx)
		return nil, nil
	})
}
