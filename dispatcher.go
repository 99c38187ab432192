package beacon

import (
	"context"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Tap30/beacon-go/adapters"
)

// DispatcherHooks are callbacks into the client. Each runs on the dispatcher
// goroutine while a tick is in progress.
type DispatcherHooks struct {
	// Release runs after the flush forced by ReleaseStoredRequests.
	Release func()
	// SessionExpired runs when the collector rejects a periodic batch as unauthorized.
	SessionExpired func()
	// Restart runs when a failed session start is due to be issued again.
	Restart func()
}

// DispatcherStats is a snapshot of the dispatcher counters.
type DispatcherStats struct {
	Queued         int
	OfflinePending bool
	OfflineTries   int
	Releasing      bool
}

type Dispatcher struct {
	config         DispatcherConfig
	queue          *PriorityQueue
	httpAdapter    HTTPAdapter
	storageAdapter StorageAdapter
	loggerAdapter  LoggerAdapter
	session        *SessionGate
	connectivity   *ConnectivityMonitor
	writer         *CaptureWriter
	hooks          DispatcherHooks
	features       atomic.Pointer[StaticFeatureSet]
	wake           chan struct{}
	ticks          tickLock
	now            func() time.Time

	offlinePending atomic.Bool
	release        atomic.Bool
	offlineTries   atomic.Int32

	// owned by the tick holding ticks
	offlineRetryAt time.Time
	lastPeriodic   time.Time
}

func NewDispatcher(
	config DispatcherConfig,
	queue *PriorityQueue,
	httpAdapter HTTPAdapter,
	storageAdapter StorageAdapter,
	session *SessionGate,
	connectivity *ConnectivityMonitor,
	writer *CaptureWriter,
) *Dispatcher {
	d := &Dispatcher{
		config:         config,
		queue:          queue,
		httpAdapter:    httpAdapter,
		storageAdapter: storageAdapter,
		loggerAdapter:  adapters.NewPrintLoggerAdapter(adapters.LogLevelWarn),
		session:        session,
		connectivity:   connectivity,
		writer:         writer,
		wake:           make(chan struct{}, 1),
		now:            time.Now,
	}
	// rows left by an earlier run are sent on the first connected tick
	d.offlinePending.Store(true)
	return d
}

// SetLoggerAdapter sets a custom logger adapter
func (d *Dispatcher) SetLoggerAdapter(logger LoggerAdapter) {
	d.loggerAdapter = logger
}

// SetHooks installs the client callbacks. Must be called before Run.
func (d *Dispatcher) SetHooks(hooks DispatcherHooks) {
	d.hooks = hooks
}

// SetFeatures publishes the static feature set loaded at bootstrap.
func (d *Dispatcher) SetFeatures(features StaticFeatureSet) {
	d.features.Store(&features)
}

func (d *Dispatcher) staticFeatures() StaticFeatureSet {
	if f := d.features.Load(); f != nil {
		return *f
	}
	return StaticFeatureSet{}
}

// Enqueue queues req for online delivery and wakes the loop.
func (d *Dispatcher) Enqueue(req *OnlineRequest) error {
	if err := d.queue.Push(req); err != nil {
		return err
	}
	d.Wake()
	return nil
}

// Wake asks the loop to run a tick now. It never blocks.
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// MarkOfflinePending makes the next connected tick check the offline cache.
func (d *Dispatcher) MarkOfflinePending() {
	d.offlinePending.Store(true)
	d.Wake()
}

// ReleaseStoredRequests forces a periodic flush on the next connected tick,
// followed by the Release hook.
func (d *Dispatcher) ReleaseStoredRequests() {
	d.release.Store(true)
	d.Wake()
}

// CancelRelease withdraws a pending ReleaseStoredRequests.
func (d *Dispatcher) CancelRelease() {
	d.release.Store(false)
}

func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Queued:         d.queue.Len(),
		OfflinePending: d.offlinePending.Load(),
		OfflineTries:   int(d.offlineTries.Load()),
		Releasing:      d.release.Load(),
	}
}

// Run waits for ready, then ticks on every wake-up and every config.Tick until ctx
// is done.
func (d *Dispatcher) Run(ctx context.Context, ready <-chan struct{}) error {
	select {
	case <-ready:
	case <-ctx.Done():
		return nil
	}

	ticker := time.NewTicker(d.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.wake:
			d.ticks.tryRun(func() { d.tick(ctx) })
		case <-ticker.C:
			d.ticks.tryRun(func() { d.tick(ctx) })
		}
	}
}

// Flush runs one dispatch tick, waiting for a tick already in progress.
func (d *Dispatcher) Flush(ctx context.Context) {
	d.ticks.run(func() { d.tick(ctx) })
}

// tick sends stored offline requests, then the periodic buffer when due, then
// every admissible online request.
func (d *Dispatcher) tick(ctx context.Context) {
	if !d.connectivity.IsConnected() {
		return
	}

	d.flushOffline(ctx)
	if d.config.PeriodicDispatch {
		d.flushPeriodic(ctx)
	}
	if d.session.RestartDue() && d.hooks.Restart != nil {
		d.loggerAdapter.Info("Issuing session start again")
		d.hooks.Restart()
	}
	d.drainOnline(ctx)
}

func (d *Dispatcher) flushOffline(ctx context.Context) {
	if d.now().Before(d.offlineRetryAt) {
		return
	}
	// cleared before the claim so a row persisted meanwhile sets it again
	if !d.offlinePending.Swap(false) {
		return
	}

	batch, err := d.storageAdapter.FetchAndClaim(ctx, adapters.TableOfflineCache)
	if err != nil {
		d.loggerAdapter.Error("Failed to claim offline requests: %v", err)
		d.offlinePending.Store(true)
		return
	}
	if batch.Empty() {
		d.loggerAdapter.Debug("There are no stored offline requests")
		return
	}

	d.loggerAdapter.Debug("Sending %d stored offline requests", batch.Count)
	resp, err := d.httpAdapter.Send(ctx, d.url(adapters.EndpointOfflineBatch), d.offlineForm(batch))
	if err == nil && resp.Status == http.StatusOK {
		d.offlineTries.Store(0)
		d.offlineRetryAt = time.Time{}
		d.session.OfflineDelivered(bodyString(decodeBody(resp.Body), adapters.ParamSessionCode))
		d.finish(ctx, adapters.TableOfflineCache, true)
		return
	}

	if err != nil {
		d.loggerAdapter.Warn("Offline request failed: %v", err)
	} else {
		d.loggerAdapter.Warn("Offline request failed with status %d", resp.Status)
	}

	tries := int(d.offlineTries.Add(1))
	if tries >= d.config.MaxOfflineRetries {
		d.loggerAdapter.Error("Dropping %d stored offline requests after %d failed attempts", batch.Count, tries)
		d.offlineTries.Store(0)
		d.offlineRetryAt = time.Time{}
		d.finish(ctx, adapters.TableOfflineCache, true)
		return
	}

	backoff := time.Duration(1<<(tries-1)) * time.Second
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
	d.offlineRetryAt = d.now().Add(backoff + jitter)
	d.loggerAdapter.Debug("Retrying offline requests in %v", backoff+jitter)
	d.finish(ctx, adapters.TableOfflineCache, false)
	d.offlinePending.Store(true)
}

func (d *Dispatcher) flushPeriodic(ctx context.Context) {
	releasing := d.release.Load()
	if !releasing {
		now := d.now()
		if !d.lastPeriodic.IsZero() && now.Sub(d.lastPeriodic) < d.config.DispatchPeriod {
			return
		}
		d.lastPeriodic = now
	}

	batch, err := d.storageAdapter.FetchAndClaim(ctx, adapters.TablePeriodicDispatch)
	switch {
	case err != nil:
		d.loggerAdapter.Error("Failed to claim periodic requests: %v", err)
	case !batch.Empty():
		d.sendPeriodic(ctx, batch)
	}

	// the release hook runs even when nothing was stored
	if releasing && d.release.CompareAndSwap(true, false) && d.hooks.Release != nil {
		d.hooks.Release()
	}
}

func (d *Dispatcher) sendPeriodic(ctx context.Context, batch adapters.Batch) {
	d.loggerAdapter.Debug("Sending %d periodic requests", batch.Count)

	resp, err := d.httpAdapter.Send(ctx, d.url(adapters.EndpointPeriodicBatch), d.periodicForm(batch))
	if err != nil {
		d.loggerAdapter.Warn("Periodic batch request failed: %v", err)
		d.finish(ctx, adapters.TablePeriodicDispatch, false)
		return
	}

	switch resp.Status {
	case http.StatusOK:
		d.finish(ctx, adapters.TablePeriodicDispatch, true)
	case http.StatusUnauthorized:
		d.loggerAdapter.Info("Periodic batch rejected as unauthorized, starting a new session")
		d.finish(ctx, adapters.TablePeriodicDispatch, false)
		d.session.Expire()
		if d.hooks.SessionExpired != nil {
			d.hooks.SessionExpired()
		}
	default:
		d.loggerAdapter.Warn("Periodic batch request failed with status %d", resp.Status)
		d.finish(ctx, adapters.TablePeriodicDispatch, false)
	}
}

// finish commits or rolls back the claimed rows of table.
func (d *Dispatcher) finish(ctx context.Context, table adapters.Table, sent bool) {
	// a cancelled tick must still release its claim
	ctx = context.WithoutCancel(ctx)
	if sent {
		if n, err := d.storageAdapter.Commit(ctx, table); err != nil {
			d.loggerAdapter.Error("Failed to delete sent requests from %s: %v", table, err)
		} else {
			d.loggerAdapter.Debug("Deleted %d sent requests from %s", n, table)
		}
		return
	}
	if _, err := d.storageAdapter.Rollback(ctx, table); err != nil {
		d.loggerAdapter.Error("Failed to release requests in %s: %v", table, err)
	}
}

func (d *Dispatcher) drainOnline(ctx context.Context) {
	for ctx.Err() == nil {
		req, ok := d.queue.PopAdmissible(d.session.Admit)
		if !ok {
			return
		}
		d.sendOnline(ctx, req)
	}
}

func (d *Dispatcher) sendOnline(ctx context.Context, req *OnlineRequest) {
	req.Attempt++
	d.loggerAdapter.Debug("Sending %s, attempt %d", req.URL, req.Attempt)

	resp, err := d.httpAdapter.Send(ctx, req.URL, formValues(d.onlineParams(req)))
	if err != nil {
		d.loggerAdapter.Warn("Failed to send %s, storing it for later: %v", req.URL, err)
		d.demote(req)
		return
	}

	switch resp.Status {
	case http.StatusOK:
		req.handle(resp.Status, decodeBody(resp.Body))
	case http.StatusUnauthorized, http.StatusPreconditionFailed:
		req.handle(resp.Status, nil)
	default:
		d.loggerAdapter.Warn("Collector returned %d for %s, storing it for later", resp.Status, req.URL)
		d.demote(req)
	}
}

// Demote moves an online request that could not be delivered into the offline cache.
func (d *Dispatcher) demote(req *OnlineRequest) {
	params := copyParams(req.Params)
	if _, ok := params[adapters.ParamSessionCode]; !ok {
		if code := d.session.Current(); code != "" {
			params[adapters.ParamSessionCode] = code
		}
	}
	d.writer.EnqueueOffline(adapters.NewOfflineRecord(req.URL, params))
	req.handle(StatusNotSent, nil)
}

func (d *Dispatcher) url(endpoint adapters.Endpoint) string {
	return d.config.ServerURL + string(endpoint)
}

func (d *Dispatcher) sessionTimeout() string {
	return strconv.Itoa(int(d.config.SessionTimeout / time.Minute))
}

// onlineParams stamps the send-time fields. Session starts carry the static
// feature set; every other request carries the current session code.
func (d *Dispatcher) onlineParams(req *OnlineRequest) map[string]any {
	params := copyParams(req.Params)
	features := d.staticFeatures()

	params[adapters.ParamTrackingCode] = d.config.TrackingCode
	params[adapters.ParamVisitorCode] = features.VisitorCode
	params[adapters.ParamSessionTimeout] = d.sessionTimeout()

	if adapters.RequestTypeOf(req.URL) == adapters.RequestTypeSessionStart {
		params[adapters.ParamAPIKey] = d.config.APIKey
		for k, v := range features.DeviceValues() {
			params[k] = v[0]
		}
		return params
	}
	params[adapters.ParamSessionCode] = d.session.Code(false)
	return params
}

func (d *Dispatcher) offlineForm(batch adapters.Batch) url.Values {
	features := d.staticFeatures()
	form := features.DeviceValues()
	form.Set(adapters.ParamAPIKey, d.config.APIKey)
	form.Set(adapters.ParamSessionTimeout, d.sessionTimeout())
	form.Set(adapters.ParamVisitorCode, features.VisitorCode)
	form.Set(adapters.ParamTrackingCode, d.config.TrackingCode)
	form.Set(adapters.ParamData, batch.Data)
	return form
}

func (d *Dispatcher) periodicForm(batch adapters.Batch) url.Values {
	return formValues(map[string]any{
		adapters.ParamSessionCode:    d.session.Code(false),
		adapters.ParamSessionTimeout: d.sessionTimeout(),
		adapters.ParamVisitorCode:    d.staticFeatures().VisitorCode,
		adapters.ParamTrackingCode:   d.config.TrackingCode,
		adapters.ParamData:           batch.Data,
	})
}
