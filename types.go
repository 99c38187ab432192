package beacon

import (
	"errors"
	"time"

	"github.com/Tap30/beacon-go/adapters"
)

// Re-export adapter types for convenience
type (
	HTTPAdapter         = adapters.HTTPAdapter
	HTTPResponse        = adapters.HTTPResponse
	StorageAdapter      = adapters.StorageAdapter
	LoggerAdapter       = adapters.LoggerAdapter
	LogLevel            = adapters.LogLevel
	ConnectivityAdapter = adapters.ConnectivityAdapter
	FeatureProvider     = adapters.FeatureProvider
	StaticFeatureSet    = adapters.StaticFeatureSet
	OfflineRecord       = adapters.OfflineRecord
)

var (
	// ErrNotReady is returned by capture calls while static features are still
	// loading. Retry after a short delay.
	ErrNotReady = errors.New("client is not ready, static features are still loading")

	// ErrNotInitialized is returned by capture calls before Init.
	ErrNotInitialized = errors.New("client not initialized. Call Init() before capturing")

	// ErrClientClosed is returned by capture calls after Dispose.
	ErrClientClosed = errors.New("client is closed")

	// ErrQueueFull is returned when a priority level of the dispatch queue is full.
	ErrQueueFull = errors.New("dispatch queue is full")
)

// Defaults applied by NewClient.
const (
	DefaultSessionTimeout           = 30 * time.Minute
	DefaultDispatchPeriod           = 5 * time.Minute
	DefaultMaxCachedActivityCount   = 1000
	MaxCachedActivityCountLimit     = 4000
	DefaultQueueCapacity            = 100
	DefaultMaxUnauthorizedRetries   = 5
	DefaultMaxOfflineRetries        = 5
	DefaultDispatchTick             = 100 * time.Millisecond
	DefaultCaptureInterval          = 250 * time.Millisecond
	DefaultConnectivityPollInterval = 2 * time.Second
	DefaultStorageFile              = "beacon.db"
)

type ClientConfig struct {
	// ServerURL is the collector base URL; endpoint suffixes are appended to it.
	ServerURL    string
	APIKey       string
	TrackingCode string

	SessionTimeout time.Duration

	// PeriodicDispatch buffers captures durably and sends them every DispatchPeriod
	// instead of immediately.
	PeriodicDispatch bool
	DispatchPeriod   time.Duration

	MaxCachedActivityCount int
	AutoPushRegistration   bool

	QueueCapacity            int
	MaxUnauthorizedRetries   int
	MaxOfflineRetries        int
	DispatchTick             time.Duration
	CaptureInterval          time.Duration
	ConnectivityPollInterval time.Duration

	// DataDir holds the database and the installation file. Defaults to the
	// working directory.
	DataDir string

	HTTPAdapter         HTTPAdapter
	StorageAdapter      StorageAdapter
	LoggerAdapter       LoggerAdapter
	ConnectivityAdapter ConnectivityAdapter
	FeatureProvider     FeatureProvider
}

type DispatcherConfig struct {
	ServerURL         string
	APIKey            string
	TrackingCode      string
	SessionTimeout    time.Duration
	PeriodicDispatch  bool
	DispatchPeriod    time.Duration
	MaxOfflineRetries int
	Tick              time.Duration
}
