package adapters

import (
	"strings"
	"time"
)

// Endpoint is a path suffix appended to the collector base URL.
type Endpoint string

const (
	EndpointSessionStart  Endpoint = "/visit/create"
	EndpointSessionEnd    Endpoint = "/visit/end"
	EndpointScreenStart   Endpoint = "/hit/create"
	EndpointScreenEnd     Endpoint = "/hit/end"
	EndpointEvent         Endpoint = "/event/create"
	EndpointPeriodicBatch Endpoint = "/batch/create"
	EndpointOfflineBatch  Endpoint = "/offline/create"
	EndpointPushData      Endpoint = "/visitor/setPushData"
	EndpointUnregister    Endpoint = "/visitor/unregister"
)

// RequestType is the numeric classification the collector uses for stored records.
type RequestType int

const (
	RequestTypeUnknown      RequestType = -1
	RequestTypeSessionStart RequestType = 0
	RequestTypeSessionEnd   RequestType = 1
	RequestTypeScreenStart  RequestType = 2
	RequestTypeScreenEnd    RequestType = 3
	RequestTypeEvent        RequestType = 4
)

// RequestTypeOf derives the request type from the URL suffix.
func RequestTypeOf(url string) RequestType {
	switch {
	case strings.HasSuffix(url, string(EndpointSessionStart)):
		return RequestTypeSessionStart
	case strings.HasSuffix(url, string(EndpointSessionEnd)):
		return RequestTypeSessionEnd
	case strings.HasSuffix(url, string(EndpointScreenStart)):
		return RequestTypeScreenStart
	case strings.HasSuffix(url, string(EndpointScreenEnd)):
		return RequestTypeScreenEnd
	case strings.HasSuffix(url, string(EndpointEvent)):
		return RequestTypeEvent
	}
	return RequestTypeUnknown
}

// Parameter names shared by the wire format and the stored payloads.
const (
	ParamTimestamp      = "timestamp"
	ParamType           = "type"
	ParamSessionCode    = "sessionCode"
	ParamHitCode        = "hitCode"
	ParamTrackingCode   = "trackingCode"
	ParamVisitorCode    = "visitorCode"
	ParamAPIKey         = "apiKey"
	ParamSessionTimeout = "sessionTimeout"
	ParamPageTitle      = "pageTitle"
	ParamPath           = "path"
	ParamEventKey       = "eventKey"
	ParamEventValue     = "eventValue"
	ParamData           = "data"
	ParamPushToken      = "pushToken"
	ParamPushID         = "pushId"
	ParamCustomID       = "customId"
)

// OfflineRecord is the persisted form of a request.
type OfflineRecord struct {
	URL    string
	Params map[string]any
}

// NewOfflineRecord copies params and stamps the capture timestamp and request type.
// The stamped fields are never changed afterwards.
func NewOfflineRecord(url string, params map[string]any) OfflineRecord {
	copied := make(map[string]any, len(params)+2)
	for k, v := range params {
		copied[k] = v
	}
	copied[ParamTimestamp] = time.Now().UnixMilli()
	copied[ParamType] = int(RequestTypeOf(url))
	return OfflineRecord{URL: url, Params: copied}
}

// Timestamp returns the capture time in unix milliseconds.
func (r OfflineRecord) Timestamp() int64 {
	switch ts := r.Params[ParamTimestamp].(type) {
	case int64:
		return ts
	case int:
		return int64(ts)
	case float64:
		return int64(ts)
	}
	return 0
}

// Table names one of the two durable tables.
type Table string

const (
	TableOfflineCache     Table = "offline_cache"
	TablePeriodicDispatch Table = "periodic_dispatch"
)

// Batch is the result of a claim: the payloads of every claimed row as a JSON array.
type Batch struct {
	Data  string
	Count int
}

// Empty reports whether the claim matched no rows.
func (b Batch) Empty() bool {
	return b.Count == 0
}
