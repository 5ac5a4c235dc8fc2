package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStorage struct {
	mu      sync.Mutex
	batches [][]ActionEvent
}

func (s *memStorage) WriteBatch(_ context.Context, events []ActionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]ActionEvent, len(events))
	copy(batch, events)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *memStorage) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestTrailFlushesFullBatch(t *testing.T) {
	storage := &memStorage{}
	// batchSize=3, интервал длинный — flush должен случиться по размеру пачки
	trail := NewTrail(storage, zap.NewNop(), 100, 3, time.Hour)
	trail.Start()

	for i := 0; i < 3; i++ {
		trail.Log(ActionEvent{ID: "e", TaskID: "t", ActionType: "flag_emissions_anomaly"})
	}

	require.Eventually(t, func() bool { return storage.total() == 3 },
		time.Second, 10*time.Millisecond)

	trail.Stop()
}

func TestTrailStopDrainsRemainder(t *testing.T) {
	storage := &memStorage{}
	trail := NewTrail(storage, zap.NewNop(), 100, 50, time.Hour)
	trail.Start()

	// Пачка не набрана и таймер не сработает — события живут только в буфере
	for i := 0; i < 7; i++ {
		trail.Log(ActionEvent{ID: "e", ActionType: "compute_emissions"})
	}

	// Drain Pattern: Stop обязан дописать остаток
	trail.Stop()
	assert.Equal(t, 7, storage.total())
}

func TestTrailDropsAfterStop(t *testing.T) {
	storage := &memStorage{}
	trail := NewTrail(storage, zap.NewNop(), 100, 50, time.Hour)
	trail.Start()
	trail.Stop()

	// После остановки событие молча отбрасывается, паники нет
	trail.Log(ActionEvent{ID: "late"})
	assert.Zero(t, storage.total())
}

func TestTrailReportsBufferFill(t *testing.T) {
	storage := &memStorage{}
	trail := NewTrail(storage, zap.NewNop(), 100, 50, time.Hour)
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_audit_buffer_fill"})
	trail.InstrumentBuffer(gauge)

	// Воркер еще не запущен — события копятся в канале
	for i := 0; i < 5; i++ {
		trail.Log(ActionEvent{ID: "e"})
	}
	assert.Equal(t, float64(5), testutil.ToFloat64(gauge))

	// После drain буфер пуст
	trail.Start()
	trail.Stop()
	assert.Zero(t, testutil.ToFloat64(gauge))
}

func TestTrailStampsTimestamp(t *testing.T) {
	storage := &memStorage{}
	trail := NewTrail(storage, zap.NewNop(), 100, 1, time.Hour)
	trail.Start()

	trail.Log(ActionEvent{ID: "e"})
	require.Eventually(t, func() bool { return storage.total() == 1 },
		time.Second, 10*time.Millisecond)
	trail.Stop()

	storage.mu.Lock()
	defer storage.mu.Unlock()
	assert.False(t, storage.batches[0][0].Timestamp.IsZero())
}
