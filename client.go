package beacon

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Tap30/beacon-go/adapters"
)

// Version is reported to the collector as the SDK version.
const Version = "1.0.0"

// ClientStats is a snapshot of the pipeline for diagnostics.
type ClientStats struct {
	Connected       bool
	Queued          int
	PendingCaptures int
	OfflinePending  bool
	OfflineTries    int
	Releasing       bool
	Screens         int
	Session         SessionSnapshot
}

type Client struct {
	config              ClientConfig
	httpAdapter         HTTPAdapter
	storageAdapter      StorageAdapter
	loggerAdapter       LoggerAdapter
	connectivityAdapter ConnectivityAdapter
	featureProvider     FeatureProvider

	queue        *PriorityQueue
	session      *SessionGate
	connectivity *ConnectivityMonitor
	writer       *CaptureWriter
	dispatcher   *Dispatcher
	screens      *ScreenTracker

	initialized bool
	closed      bool
	mu          sync.RWMutex

	ready         atomic.Bool
	readyCh       chan struct{}
	endingSession atomic.Bool

	stopDispatch context.CancelFunc
	stopWriter   context.CancelFunc
	workers      *errgroup.Group
	writerGroup  *errgroup.Group

	pushMu         sync.Mutex
	pushToken      string
	pushID         string
	customID       string
	pushSuppressed bool
}

// NewClient validates config, applies defaults and builds the pipeline. Nothing runs
// until Init.
func NewClient(config ClientConfig) (*Client, error) {
	if config.ServerURL == "" {
		return nil, errors.New("ServerURL is required")
	}
	if config.APIKey == "" {
		return nil, errors.New("APIKey is required")
	}
	if config.TrackingCode == "" {
		return nil, errors.New("TrackingCode is required")
	}

	client := &Client{
		config:              config,
		httpAdapter:         config.HTTPAdapter,
		storageAdapter:      config.StorageAdapter,
		loggerAdapter:       config.LoggerAdapter,
		connectivityAdapter: config.ConnectivityAdapter,
		featureProvider:     config.FeatureProvider,
	}

	// Use provided logger or default
	if client.loggerAdapter == nil {
		client.loggerAdapter = adapters.NewPrintLoggerAdapter(adapters.LogLevelWarn)
	}
	client.applyDefaults()

	if client.httpAdapter == nil {
		client.httpAdapter = adapters.NewNetHTTPAdapter("beacon-go/" + Version)
	}
	if client.storageAdapter == nil {
		storage, err := adapters.NewSQLiteStorageAdapter(
			filepath.Join(client.config.DataDir, DefaultStorageFile),
			client.config.MaxCachedActivityCount,
		)
		if err != nil {
			return nil, err
		}
		client.storageAdapter = storage
	}
	if client.featureProvider == nil {
		client.featureProvider = &adapters.RuntimeFeatureProvider{
			Visitors:   adapters.NewVisitorCodeStore(client.config.DataDir, client.config.TrackingCode),
			SDKVersion: Version,
		}
	}

	cfg := client.config
	client.queue = NewPriorityQueue(cfg.QueueCapacity)
	client.session = NewSessionGate(cfg.MaxUnauthorizedRetries, client.loggerAdapter)
	client.connectivity = NewConnectivityMonitor(true)
	client.screens = NewScreenTracker(cfg.SessionTimeout)
	client.writer = NewCaptureWriter(client.storageAdapter, client.session, client.loggerAdapter, cfg.CaptureInterval)
	client.dispatcher = NewDispatcher(
		DispatcherConfig{
			ServerURL:         cfg.ServerURL,
			APIKey:            cfg.APIKey,
			TrackingCode:      cfg.TrackingCode,
			SessionTimeout:    cfg.SessionTimeout,
			PeriodicDispatch:  cfg.PeriodicDispatch,
			DispatchPeriod:    cfg.DispatchPeriod,
			MaxOfflineRetries: cfg.MaxOfflineRetries,
			Tick:              cfg.DispatchTick,
		},
		client.queue,
		client.httpAdapter,
		client.storageAdapter,
		client.session,
		client.connectivity,
		client.writer,
	)
	client.dispatcher.SetLoggerAdapter(client.loggerAdapter)
	client.dispatcher.SetHooks(DispatcherHooks{
		Release:        client.endSession,
		SessionExpired: func() { client.startSession(true) },
		Restart:        func() { client.startSession(false) },
	})
	client.writer.OnOfflinePersisted(client.dispatcher.MarkOfflinePending)
	client.connectivity.OnChange(client.connectivityChanged)

	return client, nil
}

func (c *Client) applyDefaults() {
	cfg := &c.config
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.DispatchPeriod <= 0 {
		cfg.DispatchPeriod = DefaultDispatchPeriod
	}
	if cfg.PeriodicDispatch && cfg.DispatchPeriod >= cfg.SessionTimeout {
		cfg.DispatchPeriod = cfg.SessionTimeout - time.Minute
		if cfg.DispatchPeriod <= 0 {
			cfg.DispatchPeriod = cfg.SessionTimeout / 2
		}
		c.loggerAdapter.Warn("Dispatch period must be shorter than the session timeout, using %v", cfg.DispatchPeriod)
	}
	if cfg.MaxCachedActivityCount <= 0 {
		cfg.MaxCachedActivityCount = DefaultMaxCachedActivityCount
	}
	if cfg.MaxCachedActivityCount > MaxCachedActivityCountLimit {
		c.loggerAdapter.Warn("Max cached activity count cannot exceed %d", MaxCachedActivityCountLimit)
		cfg.MaxCachedActivityCount = MaxCachedActivityCountLimit
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.MaxUnauthorizedRetries <= 0 {
		cfg.MaxUnauthorizedRetries = DefaultMaxUnauthorizedRetries
	}
	if cfg.MaxOfflineRetries <= 0 {
		cfg.MaxOfflineRetries = DefaultMaxOfflineRetries
	}
	if cfg.DispatchTick <= 0 {
		cfg.DispatchTick = DefaultDispatchTick
	}
	if cfg.CaptureInterval <= 0 {
		cfg.CaptureInterval = DefaultCaptureInterval
	}
	if cfg.ConnectivityPollInterval <= 0 {
		cfg.ConnectivityPollInterval = DefaultConnectivityPollInterval
	}
}

// Init starts the bootstrap and the background workers. Static features load
// asynchronously; capture calls return ErrNotReady until they are available.
// Only the values of ctx are used; the workers stop on Dispose.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if c.initialized {
		return nil
	}

	base := context.WithoutCancel(ctx)
	dispatchCtx, stopDispatch := context.WithCancel(base)
	writerCtx, stopWriter := context.WithCancel(base)
	c.stopDispatch = stopDispatch
	c.stopWriter = stopWriter
	c.readyCh = make(chan struct{})

	c.writerGroup = new(errgroup.Group)
	c.writerGroup.Go(func() error { return c.writer.Run(writerCtx) })

	var workersCtx context.Context
	c.workers, workersCtx = errgroup.WithContext(dispatchCtx)
	c.workers.Go(func() error { return c.bootstrap(workersCtx) })
	c.workers.Go(func() error { return c.dispatcher.Run(workersCtx, c.readyCh) })
	if c.connectivityAdapter != nil {
		c.workers.Go(func() error {
			return c.connectivity.Poll(workersCtx, c.connectivityAdapter, c.config.ConnectivityPollInterval)
		})
	}

	c.initialized = true
	c.loggerAdapter.Info("Client initialized successfully")
	return nil
}

func (c *Client) bootstrap(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		features, err := c.featureProvider.Features(ctx)
		if err == nil {
			c.dispatcher.SetFeatures(features)
			c.ready.Store(true)
			close(c.readyCh)
			c.loggerAdapter.Debug("Static features loaded, visitor code is %s", features.VisitorCode)
			return nil
		}

		c.loggerAdapter.Warn("Failed to load static features (attempt %d): %v", attempt, err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func (c *Client) checkReady() error {
	c.mu.RLock()
	initialized, closed := c.initialized, c.closed
	c.mu.RUnlock()

	switch {
	case closed:
		return ErrClientClosed
	case !initialized:
		return ErrNotInitialized
	case !c.ready.Load():
		return ErrNotReady
	}
	return nil
}

// IsReady reports whether static features are loaded and captures are accepted.
func (c *Client) IsReady() bool {
	return c.checkReady() == nil
}

func (c *Client) url(endpoint adapters.Endpoint) string {
	return c.config.ServerURL + string(endpoint)
}

// StartSession starts a collector session, generating a new session code when
// generate is set.
func (c *Client) StartSession(generate bool) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	c.startSession(generate)
	return nil
}

func (c *Client) startSession(generate bool) {
	code := c.session.BeginStart(generate)
	c.loggerAdapter.Debug("Starting session %s", code)

	req := &OnlineRequest{
		URL:      c.url(adapters.EndpointSessionStart),
		Params:   map[string]any{adapters.ParamSessionCode: code},
		Priority: PrioritySession,
		OnResult: c.sessionStarted,
	}
	c.route(req)
}

func (c *Client) sessionStarted(status int, _ map[string]any) {
	c.session.StartResult(status)
	if status != http.StatusOK {
		return
	}
	c.loggerAdapter.Debug("Session start is successful. Session code is %s", c.session.Current())

	if !c.config.AutoPushRegistration {
		return
	}
	c.pushMu.Lock()
	token, pushID, suppressed := c.pushToken, c.pushID, c.pushSuppressed
	c.pushMu.Unlock()

	switch {
	case pushID != "":
		c.sendPushOpened()
	case suppressed:
		c.loggerAdapter.Debug("Unregister request is pending, push token will not be sent this time")
	case token != "":
		c.sendRegistration(token)
	}
}

// EndSession ends the collector session. In periodic mode the first call
// releases the stored periodic requests; the session end follows once they are sent.
func (c *Client) EndSession() error {
	if err := c.checkReady(); err != nil {
		return err
	}
	c.endSession()
	return nil
}

func (c *Client) endSession() {
	if c.config.PeriodicDispatch && c.connectivity.IsConnected() {
		if c.endingSession.CompareAndSwap(false, true) {
			c.dispatcher.ReleaseStoredRequests()
			return
		}
		c.dispatcher.CancelRelease()
		c.endingSession.Store(false)
	}

	req := &OnlineRequest{
		URL:      c.url(adapters.EndpointSessionEnd),
		Params:   map[string]any{adapters.ParamSessionCode: c.session.Code(false)},
		Priority: PriorityEvent,
		OnResult: func(int, map[string]any) { c.session.End() },
	}
	c.route(req)
}

// StartScreen records that screen id was shown. id is any stable identity chosen
// by the caller; EndScreen uses it to find the hit.
func (c *Client) StartScreen(id, title, path string) error {
	if err := c.checkReady(); err != nil {
		return err
	}

	title, path = url.QueryEscape(title), url.QueryEscape(path)
	params := map[string]any{
		adapters.ParamSessionCode: c.session.Code(false),
		adapters.ParamPageTitle:   title,
		adapters.ParamPath:        path,
	}

	var onOK func(map[string]any)
	if c.config.PeriodicDispatch || !c.connectivity.IsConnected() {
		hitCode := uuid.NewString()
		c.screens.Set(id, Screen{HitCode: hitCode, Title: title, Path: path})
		params[adapters.ParamHitCode] = hitCode
	} else {
		onOK = func(body map[string]any) {
			hitCode := bodyString(body, adapters.ParamHitCode)
			if hitCode == "" {
				c.loggerAdapter.Warn("Screen start response for %s has no hit code", id)
				return
			}
			c.screens.Set(id, Screen{HitCode: hitCode, Title: title, Path: path})
		}
	}

	c.route(c.newRequest(adapters.EndpointScreenStart, params, PriorityScreen, "start screen", onOK))
	return nil
}

// EndScreen records that screen id was hidden. Unknown ids are ignored.
func (c *Client) EndScreen(id string) error {
	if err := c.checkReady(); err != nil {
		return err
	}

	screen, ok := c.screens.Get(id)
	if !ok {
		c.loggerAdapter.Debug("No screen started for %s, ignoring end screen", id)
		return nil
	}

	params := map[string]any{
		adapters.ParamSessionCode: c.session.Code(false),
		adapters.ParamHitCode:     screen.HitCode,
		adapters.ParamPageTitle:   screen.Title,
		adapters.ParamPath:        screen.Path,
	}
	c.route(c.newRequest(adapters.EndpointScreenEnd, params, PriorityScreen, "end screen", nil))
	return nil
}

// SendEvent records a custom event.
func (c *Client) SendEvent(key, value string) error {
	if err := c.checkReady(); err != nil {
		return err
	}

	params := map[string]any{
		adapters.ParamSessionCode: c.session.Code(false),
		adapters.ParamEventKey:    url.QueryEscape(key),
		adapters.ParamEventValue:  url.QueryEscape(value),
	}
	c.route(c.newRequest(adapters.EndpointEvent, params, PriorityEvent, "send event", nil))
	return nil
}

// Capture routes a request to any collector endpoint with the standard
// unauthorized handling.
func (c *Client) Capture(endpoint adapters.Endpoint, params map[string]any) error {
	if err := c.checkReady(); err != nil {
		return err
	}

	params = copyParams(params)
	if _, ok := params[adapters.ParamSessionCode]; !ok {
		params[adapters.ParamSessionCode] = c.session.Code(false)
	}
	c.route(c.newRequest(endpoint, params, priorityOf(endpoint), string(endpoint), nil))
	return nil
}

func priorityOf(endpoint adapters.Endpoint) Priority {
	switch endpoint {
	case adapters.EndpointSessionStart:
		return PrioritySession
	case adapters.EndpointScreenStart, adapters.EndpointScreenEnd,
		adapters.EndpointPushData, adapters.EndpointUnregister:
		return PriorityScreen
	}
	return PriorityEvent
}

// newRequest builds a request whose handler retries on 401 behind a fresh
// session start.
func (c *Client) newRequest(endpoint adapters.Endpoint, params map[string]any, priority Priority, action string, onOK func(map[string]any)) *OnlineRequest {
	req := &OnlineRequest{
		URL:      c.url(endpoint),
		Params:   params,
		Priority: priority,
	}
	req.OnResult = func(status int, body map[string]any) {
		switch status {
		case http.StatusOK:
			if onOK != nil {
				onOK(body)
			}
		case http.StatusUnauthorized:
			c.loggerAdapter.Debug("Failed to %s, unauthorized. Try count: %d", action, req.Attempt)
			c.unauthorized(req)
		case StatusNotSent:
		default:
			c.loggerAdapter.Warn("Failed to %s. Server responded with status code: %d", action, status)
		}
	}
	return req
}

func (c *Client) unauthorized(req *OnlineRequest) {
	issueStart, retry := c.session.Unauthorized(req.Attempt)
	if issueStart {
		c.startSession(true)
	}
	if retry {
		c.enqueue(req)
	}
}

// route sends req online when connected, to the periodic buffer in periodic mode
// and to the offline cache otherwise. Session start and end always go online
// while connected.
func (c *Client) route(req *OnlineRequest) {
	if !c.connectivity.IsConnected() {
		c.loggerAdapter.Debug("[OFFLINE REQ] %s", req.URL)
		c.writer.EnqueueOffline(adapters.NewOfflineRecord(req.URL, req.Params))
		req.handle(StatusNotSent, nil)
		return
	}

	kind := adapters.RequestTypeOf(req.URL)
	online := kind == adapters.RequestTypeSessionStart || kind == adapters.RequestTypeSessionEnd
	if !online && c.config.PeriodicDispatch {
		c.loggerAdapter.Debug("[PERIODIC DISPATCH REQ] %s", req.URL)
		c.writer.EnqueuePeriodic(adapters.NewOfflineRecord(req.URL, req.Params))
		return
	}

	c.loggerAdapter.Debug("[ONLINE REQ] %s", req.URL)
	c.enqueue(req)
}

func (c *Client) enqueue(req *OnlineRequest) {
	if err := c.dispatcher.Enqueue(req); err != nil {
		c.loggerAdapter.Warn("Priority %d queue is full, storing %s offline", req.Priority, req.URL)
		c.dispatcher.demote(req)
	}
}

// OnConnectivityChanged reports a connectivity change observed by the host.
func (c *Client) OnConnectivityChanged(connected bool) {
	c.connectivity.Observe(connected)
}

func (c *Client) connectivityChanged(connected bool) {
	if !connected {
		c.loggerAdapter.Info("Connection lost, captures are stored offline")
		return
	}

	c.loggerAdapter.Info("Connection restored")
	c.dispatcher.MarkOfflinePending()
	if c.ready.Load() && !c.session.HasSession() {
		c.startSession(true)
	}
}

// ReleaseStoredRequests sends the periodic buffer on the next connected tick.
func (c *Client) ReleaseStoredRequests() {
	c.dispatcher.ReleaseStoredRequests()
}

// CancelRelease withdraws a pending ReleaseStoredRequests.
func (c *Client) CancelRelease() {
	c.dispatcher.CancelRelease()
	c.endingSession.Store(false)
}

// SetLowerPriorityGate opens or closes dispatch of screen, push and event requests.
func (c *Client) SetLowerPriorityGate(open bool) {
	c.session.SetGate(open)
	if open {
		c.dispatcher.Wake()
	}
}

// Flush writes captured records to storage and runs one dispatch tick.
func (c *Client) Flush(ctx context.Context) {
	c.mu.RLock()
	initialized := c.initialized
	c.mu.RUnlock()

	if !initialized {
		c.loggerAdapter.Warn("Flush called before initialization")
		return
	}
	if !c.ready.Load() {
		c.loggerAdapter.Debug("Flush called before static features were loaded")
		return
	}

	c.loggerAdapter.Debug("Flushing requests")
	c.writer.Drain(ctx)
	c.dispatcher.Flush(ctx)
}

// Dispose stops the workers, moves requests still waiting online into the offline
// cache and closes the store. ctx bounds how long Dispose waits for the workers.
func (c *Client) Dispose(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	initialized := c.initialized
	c.initialized = false
	c.mu.Unlock()

	c.loggerAdapter.Info("Disposing client")

	var err error
	if initialized {
		c.stopDispatch()
		err = wait(ctx, c.workers)

		if pending := c.queue.Drain(); len(pending) > 0 {
			c.loggerAdapter.Debug("Storing %d unsent requests offline", len(pending))
			for _, req := range pending {
				c.dispatcher.demote(req)
			}
		}

		c.stopWriter()
		err = errors.Join(err, wait(ctx, c.writerGroup))
	}

	c.screens.Clear()
	return errors.Join(err, c.storageAdapter.Close())
}

func wait(ctx context.Context, g *errgroup.Group) error {
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SessionCode returns the current session code, or "" when there is none.
func (c *Client) SessionCode() string {
	return c.session.Current()
}

func (c *Client) Stats() ClientStats {
	d := c.dispatcher.Stats()
	return ClientStats{
		Connected:       c.connectivity.IsConnected(),
		Queued:          d.Queued,
		PendingCaptures: c.writer.Pending(),
		OfflinePending:  d.OfflinePending,
		OfflineTries:    d.OfflineTries,
		Releasing:       d.Releasing,
		Screens:         c.screens.Len(),
		Session:         c.session.Snapshot(),
	}
}
