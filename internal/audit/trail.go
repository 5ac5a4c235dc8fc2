package audit

/*
Файл trail.go реализует асинхронный аудиторский след действий агентов.

Ключевые особенности архитектуры:
- Non-blocking Logging: события уходят из горячего пути выполнения задач
  через буферизованный канал; задержки БД не влияют на tool-цикл агента.
- Batching: накопление в памяти и пакетная запись (Bulk Insert) в PostgreSQL
  по таймеру или при достижении лимита пачки.
- Drain Pattern: при остановке канал закрывается, воркер вычитывает остаток
  и делает финальный flush — след не теряется при перезагрузке.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически сохраняются события.
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []ActionEvent) error
}

type Auditor interface {
	Log(event ActionEvent)
}

type Trail struct {
	ch     chan ActionEvent
	repo   StorageInterface
	logger *zap.Logger
	wg     sync.WaitGroup

	flushInterval time.Duration
	batchSize     int

	// Gauge заполненности буфера; nil, если метрики не подключены
	fill prometheus.Gauge

	// Атомарный флаг (0 - открыт, 1 - закрыт): вдруг кто-то вызовет Log после остановки
	isClosed int32
}

func NewTrail(repo StorageInterface, logger *zap.Logger, bufferSize, batchSize int, flushInterval time.Duration) *Trail {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &Trail{
		ch:            make(chan ActionEvent, bufferSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "audit-trail")),
		flushInterval: flushInterval,
		batchSize:     batchSize,
	}
}

// InstrumentBuffer подключает gauge заполненности буфера — сигнал
// backpressure до того, как сработает load shedding.
func (t *Trail) InstrumentBuffer(g prometheus.Gauge) {
	t.fill = g
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (t *Trail) Stop() {
	// 1. Сначала ставим флаг
	atomic.StoreInt32(&t.isClosed, 1)

	// 2. Крошечная пауза, чтобы текущие Log успели проскочить
	time.Sleep(10 * time.Millisecond)

	// 3. Drain Pattern: завершение воркера — только через закрытие входного канала
	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

func (t *Trail) Log(event ActionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if atomic.LoadInt32(&t.isClosed) == 1 {
		t.logger.Warn("audit event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	// Load Shedding: при переполнении буфера событие уходит хотя бы в логгер
	select {
	case t.ch <- event:
		t.reportFill()
	default:
		t.logger.Error("audit_buffer_overflow",
			zap.String("task_id", event.TaskID),
			zap.String("agent_type", event.AgentType),
			zap.String("action_type", event.ActionType),
		)
	}
}

func (t *Trail) reportFill() {
	if t.fill != nil {
		t.fill.Set(float64(len(t.ch)))
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]ActionEvent, 0, t.batchSize)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст к моменту финального flush может быть закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): вычитали остаток, финальный flush, выходим
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			t.reportFill()
			if len(batch) >= t.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
