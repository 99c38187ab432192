package beacon

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/Tap30/beacon-go/adapters"
)

// Priority orders online requests. Lower values are sent first.
type Priority int

const (
	PrioritySession Priority = 1 // session start
	PriorityScreen  Priority = 2 // screen start/end, push registration
	PriorityEvent   Priority = 3 // custom events, session end
)

// StatusNotSent is passed to a ResultHandler when the request could not be delivered
// online and was moved to the offline cache instead.
const StatusNotSent = 0

// ResultHandler receives the outcome of an online request. body is the decoded JSON
// response for a 200 and nil otherwise.
type ResultHandler func(status int, body map[string]any)

// OnlineRequest is a request waiting in memory for immediate delivery.
// It is never persisted as is; see adapters.OfflineRecord.
type OnlineRequest struct {
	URL      string
	Params   map[string]any
	OnResult ResultHandler
	Priority Priority

	// Attempt counts the sends made so far.
	Attempt int

	seq uint64
}

func (r *OnlineRequest) handle(status int, body map[string]any) {
	if r.OnResult != nil {
		r.OnResult(status, body)
	}
}

func copyParams(params map[string]any) map[string]any {
	copied := make(map[string]any, len(params))
	for k, v := range params {
		copied[k] = v
	}
	return copied
}

func formValues(params map[string]any) url.Values {
	form := make(url.Values, len(params))
	for k, v := range params {
		if v == nil {
			continue
		}
		form.Set(k, fmt.Sprint(v))
	}
	return form
}

// decodeBody swallows malformed payloads; the status code alone drives the caller.
func decodeBody(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil
	}
	return body
}

// bodyString looks key up at the top level of a response and then under its
// "data" node.
func bodyString(body map[string]any, key string) string {
	if body == nil {
		return ""
	}
	if v, ok := body[key].(string); ok {
		return v
	}
	if data, ok := body[adapters.ParamData].(map[string]any); ok {
		if v, ok := data[key].(string); ok {
			return v
		}
	}
	return ""
}
