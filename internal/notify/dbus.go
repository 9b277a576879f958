// Package notify mirrors announcements to the desktop notification service
// over the D-Bus session bus.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/micro-nova/lms-announce/internal/controller"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod = notifyDest + ".Notify"

	// expireTimeout is in milliseconds.
	expireTimeout = int32(10000)
)

// caller is the part of dbus.BusObject the notifier uses.
type caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Notifier posts one desktop notification per announced message.
type Notifier struct {
	appName string
	conn    *dbus.Conn
	obj     caller
}

// New connects to the session bus.
func New(appName string) (*Notifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("notify: connect session bus: %w", err)
	}
	return &Notifier{
		appName: appName,
		conn:    conn,
		obj:     conn.Object(notifyDest, notifyPath),
	}, nil
}

// Mirror posts message with the zone as summary.
func (n *Notifier) Mirror(ctx context.Context, zone, message string) error {
	call := n.obj.CallWithContext(ctx, notifyMethod, 0, n.args(zone, message)...)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	var id uint32
	if err := call.Store(&id); err == nil {
		slog.Debug("notify: posted", "zone", zone, "id", id)
	}
	return nil
}

// args builds the Notify call arguments: app name, replaces id, icon,
// summary, body, actions, hints and expiry.
func (n *Notifier) args(zone, message string) []interface{} {
	return []interface{}{
		n.appName,
		uint32(0),
		"audio-speakers",
		"Announcement: " + zone,
		message,
		[]string{},
		map[string]dbus.Variant{
			"category": dbus.MakeVariant("im.received"),
			"urgency":  dbus.MakeVariant(byte(1)),
		},
		expireTimeout,
	}
}

// Close releases the bus connection.
func (n *Notifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Close()
}

var _ controller.Mirror = (*Notifier)(nil)
