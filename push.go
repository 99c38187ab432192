package beacon

import (
	"net/http"

	"github.com/Tap30/beacon-go/adapters"
)

// Push registration calls are accepted only with AutoPushRegistration enabled and
// always go through the online queue.

func (c *Client) pushEnabled(action string) bool {
	if !c.config.AutoPushRegistration {
		c.loggerAdapter.Error("Auto push registration is disabled, %s is ignored", action)
		return false
	}
	return true
}

// SendRegistrationID sends the device push token to the push server and keeps it
// for UnregisterFromNotificationServer.
func (c *Client) SendRegistrationID(token string) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	if !c.pushEnabled("SendRegistrationID") {
		return nil
	}

	c.pushMu.Lock()
	c.pushToken = token
	c.pushMu.Unlock()

	c.sendRegistration(token)
	return nil
}

func (c *Client) sendRegistration(token string) {
	params := c.pushParams(token)
	req := c.newRequest(adapters.EndpointPushData, params, PriorityScreen, "send push token", func(map[string]any) {
		c.loggerAdapter.Debug("Push token has been sent to the push server")
	})
	c.enqueue(req)
}

// UnregisterFromNotificationServer removes this device from the push server. The
// stored token is forgotten once the server confirms.
func (c *Client) UnregisterFromNotificationServer() error {
	if err := c.checkReady(); err != nil {
		return err
	}
	if !c.pushEnabled("UnregisterFromNotificationServer") {
		return nil
	}

	c.pushMu.Lock()
	token := c.pushToken
	c.pushMu.Unlock()
	if token == "" {
		c.loggerAdapter.Warn("No push token found, unregister request will not be sent")
		return nil
	}

	req := &OnlineRequest{
		URL:      c.url(adapters.EndpointUnregister),
		Params:   c.pushParams(token),
		Priority: PriorityScreen,
	}
	req.OnResult = func(status int, _ map[string]any) {
		switch status {
		case http.StatusOK:
			c.pushMu.Lock()
			if c.pushToken == token {
				c.pushToken = ""
			}
			c.pushMu.Unlock()
			c.loggerAdapter.Debug("Unregister request has been sent to the push server")
		case http.StatusUnauthorized:
			// the session start issued here must not register the token again
			c.pushMu.Lock()
			c.pushSuppressed = true
			c.pushMu.Unlock()
			c.unauthorized(req)
		case StatusNotSent:
		default:
			c.loggerAdapter.Warn("Failed to unregister. Server responded with status code: %d", status)
		}
	}
	c.enqueue(req)
	return nil
}

// SetCustomID attaches id to later push requests and re-enables token
// registration after an unregister.
func (c *Client) SetCustomID(id string) {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	c.customID = id
	c.pushSuppressed = false
}

// SetPushID records the id of the push message that opened the app. It is
// reported after the next successful session start.
func (c *Client) SetPushID(id string) {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	c.pushID = id
}

func (c *Client) sendPushOpened() {
	c.pushMu.Lock()
	token, pushID := c.pushToken, c.pushID
	c.pushMu.Unlock()

	params := c.pushParams(token)
	params[adapters.ParamPushID] = pushID

	req := &OnlineRequest{
		URL:      c.url(adapters.EndpointPushData),
		Params:   params,
		Priority: PriorityScreen,
		OnResult: func(status int, _ map[string]any) {
			if status != http.StatusOK {
				return
			}
			c.loggerAdapter.Debug("Push message id has been sent to the push server")
			c.pushMu.Lock()
			if c.pushID == pushID {
				c.pushID = ""
			}
			c.pushMu.Unlock()
		},
	}
	c.enqueue(req)
}

func (c *Client) pushParams(token string) map[string]any {
	c.pushMu.Lock()
	customID := c.customID
	c.pushMu.Unlock()

	params := map[string]any{
		adapters.ParamPushToken:   token,
		adapters.ParamSessionCode: c.session.Current(),
	}
	if customID != "" {
		params[adapters.ParamCustomID] = customID
	}
	return params
}
