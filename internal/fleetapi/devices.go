package fleetapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/fleetdesk/fleetdesk-client/internal/device"
)

// DeviceFilter narrows ListDevices. Zero fields are omitted.
type DeviceFilter struct {
	DeviceType string
	Status     string
	Search     string
	Model      string
	Group      string
	Skip       int
	Limit      int
}

func (f DeviceFilter) values() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("device_type", f.DeviceType)
	set("status", f.Status)
	set("search", f.Search)
	set("model", f.Model)
	set("group", f.Group)
	if f.Skip > 0 {
		q.Set("skip", strconv.Itoa(f.Skip))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// DeviceUpdate is the PUT body for UpdateDevice. Nil fields are left
// unchanged by the server; connection_info is merged server-side.
type DeviceUpdate struct {
	Name           *string        `json:"name,omitempty"`
	Model          *string        `json:"model,omitempty"`
	Status         *string        `json:"status,omitempty"`
	GroupName      *string        `json:"group_name,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	ConnectionInfo map[string]any `json:"connection_info,omitempty"`
}

// UsageLog is one occupy/release entry from a device's history.
type UsageLog struct {
	ID        int64         `json:"id"`
	DeviceID  int64         `json:"device_id"`
	UserID    int64         `json:"user_id"`
	Action    string        `json:"action"`
	Notes     *string       `json:"notes"`
	Timestamp string        `json:"timestamp"`
	Device    device.Record `json:"device"`
	User      *UsageLogUser `json:"user"`
}

// UsageLogUser is the user attached to a UsageLog.
type UsageLogUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Message is the {"message": ...} acknowledgement of a mutation.
type Message struct {
	Message string `json:"message"`
}

func (c *Client) devicePath(parts ...string) string {
	p := c.prefix + "/devices"
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// ListDevices returns devices matching f.
func (c *Client) ListDevices(ctx context.Context, f DeviceFilter) ([]device.Record, error) {
	var records []device.Record
	if err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    c.devicePath(),
		query:   f.values(),
		session: true,
	}, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// FetchDevices returns the unfiltered collection. It satisfies device.Source.
func (c *Client) FetchDevices(ctx context.Context) ([]device.Record, error) {
	return c.ListDevices(ctx, DeviceFilter{})
}

// FetchStats returns the fleet statistics. It satisfies device.Source.
func (c *Client) FetchStats(ctx context.Context) (device.Stats, error) {
	var stats device.Stats
	if err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    c.devicePath("stats"),
		session: true,
	}, &stats); err != nil {
		return device.Stats{}, err
	}
	return stats, nil
}

// Occupy marks the device as in use by the signed-in user.
func (c *Client) Occupy(ctx context.Context, deviceID, notes string) (Message, error) {
	if deviceID == "" {
		return Message{}, ErrInvalidDeviceID
	}
	body, err := jsonBody(map[string]any{"notes": nullable(notes)})
	if err != nil {
		return Message{}, err
	}

	var msg Message
	err = c.do(ctx, request{
		method:      http.MethodPost,
		path:        c.devicePath(deviceID, "occupy"),
		body:        body,
		contentType: "application/json",
		session:     true,
	}, &msg)
	return msg, err
}

// Release frees a device occupied by the signed-in user (or any, for admins).
func (c *Client) Release(ctx context.Context, deviceID string) (Message, error) {
	if deviceID == "" {
		return Message{}, ErrInvalidDeviceID
	}

	var msg Message
	err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    c.devicePath(deviceID, "release"),
		session: true,
	}, &msg)
	return msg, err
}

// UpdateDevice edits device metadata. Admin only on the server.
func (c *Client) UpdateDevice(ctx context.Context, deviceID string, upd DeviceUpdate) (Message, error) {
	if deviceID == "" {
		return Message{}, ErrInvalidDeviceID
	}
	body, err := jsonBody(upd)
	if err != nil {
		return Message{}, err
	}

	var msg Message
	err = c.do(ctx, request{
		method:      http.MethodPut,
		path:        c.devicePath(deviceID),
		body:        body,
		contentType: "application/json",
		session:     true,
	}, &msg)
	return msg, err
}

// DeviceLogs returns a device's usage history, newest first.
func (c *Client) DeviceLogs(ctx context.Context, deviceID string, skip, limit int) ([]UsageLog, error) {
	if deviceID == "" {
		return nil, ErrInvalidDeviceID
	}
	q := url.Values{}
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var logs []UsageLog
	if err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    c.devicePath(deviceID, "logs"),
		query:   q,
		session: true,
	}, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// ScanDevices asks the server to rediscover attached devices. The result
// body is server-defined and returned as-is.
func (c *Client) ScanDevices(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    c.devicePath("scan"),
		session: true,
	}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
