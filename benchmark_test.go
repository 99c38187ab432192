package beacon

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/Tap30/beacon-go/adapters"
)

func newBenchClient(b *testing.B) *Client {
	b.Helper()
	config := createTestConfig("http://collector.test")
	config.PeriodicDispatch = true
	config.HTTPAdapter = &benchHTTPAdapter{}

	client, err := NewClient(config)
	if err != nil {
		b.Fatal(err)
	}
	if err := client.Init(context.Background()); err != nil {
		b.Fatal(err)
	}
	for !client.IsReady() {
		time.Sleep(time.Millisecond)
	}
	b.Cleanup(func() { _ = client.Dispose(context.Background()) })
	return client
}

// Benchmark the capture path up to the intake queue
func BenchmarkSendEvent(b *testing.B) {
	client := newBenchClient(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = client.SendEvent("purchase", "basket 1")
	}
}

// Benchmark queue operations
func BenchmarkQueueEnqueue(b *testing.B) {
	queue := NewQueue[OfflineRecord]()
	record := adapters.NewOfflineRecord(testServerURL+string(adapters.EndpointEvent), map[string]any{adapters.ParamEventKey: "test"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		queue.Enqueue(record)
	}
}

func BenchmarkQueueDequeue(b *testing.B) {
	queue := NewQueue[OfflineRecord]()
	record := adapters.NewOfflineRecord(testServerURL+string(adapters.EndpointEvent), map[string]any{adapters.ParamEventKey: "test"})

	// Pre-fill queue
	for i := 0; i < b.N; i++ {
		queue.Enqueue(record)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = queue.Dequeue()
	}
}

func BenchmarkPriorityQueuePushPop(b *testing.B) {
	queue := NewPriorityQueue(DefaultQueueCapacity)
	admit := func(Priority) bool { return true }
	requests := []*OnlineRequest{
		{URL: string(adapters.EndpointEvent), Priority: PriorityEvent},
		{URL: string(adapters.EndpointScreenStart), Priority: PriorityScreen},
		{URL: string(adapters.EndpointSessionStart), Priority: PrioritySession},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, req := range requests {
			_ = queue.Push(req)
		}
		for range requests {
			_, _ = queue.PopAdmissible(admit)
		}
	}
}

func BenchmarkCaptureWriterDrain(b *testing.B) {
	ctx := context.Background()
	logger := adapters.NewNoOpLoggerAdapter()
	storage := adapters.NewMemoryStorageAdapter(0)
	writer := NewCaptureWriter(storage, NewSessionGate(DefaultMaxUnauthorizedRetries, logger), logger, time.Hour)
	record := adapters.NewOfflineRecord(testServerURL+string(adapters.EndpointEvent), map[string]any{adapters.ParamEventKey: "test"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		writer.EnqueuePeriodic(record)
		writer.Drain(ctx)
		if i%100 == 99 {
			b.StopTimer()
			_, _ = storage.FetchAndClaim(ctx, adapters.TablePeriodicDispatch)
			_, _ = storage.Commit(ctx, adapters.TablePeriodicDispatch)
			b.StartTimer()
		}
	}
}

// Benchmark adapters for performance testing
type benchHTTPAdapter struct{}

func (a *benchHTTPAdapter) Send(context.Context, string, url.Values) (*HTTPResponse, error) {
	return &HTTPResponse{OK: true, Status: 200, Body: []byte(`{}`)}, nil
}

// Performance regression tests
func TestPerformanceRegression(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping performance regression tests in short mode")
	}

	result := testing.Benchmark(BenchmarkSendEvent)
	nsPerOp := result.NsPerOp()

	// Capturing must stay far below a frame budget
	if nsPerOp > 50000 {
		t.Errorf("SendEvent performance regression: %d ns/op > 50000 ns/op threshold", nsPerOp)
	}

	t.Logf("SendEvent performance: %d ns/op, %d allocs/op", nsPerOp, result.AllocsPerOp())
}
