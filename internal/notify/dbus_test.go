package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	method string
	args   []interface{}
	err    error
}

func (f *fakeObject) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	f.method = method
	f.args = args
	return &dbus.Call{Err: f.err, Body: []interface{}{uint32(7)}}
}

func TestMirrorCallsNotify(t *testing.T) {
	obj := &fakeObject{}
	n := &Notifier{appName: "lms-announce", obj: obj}

	require.NoError(t, n.Mirror(context.Background(), "kitchen", "dinner is ready"))
	assert.Equal(t, "org.freedesktop.Notifications.Notify", obj.method)
	require.Len(t, obj.args, 8)
	assert.Equal(t, "lms-announce", obj.args[0])
	assert.Equal(t, uint32(0), obj.args[1])
	assert.Equal(t, "Announcement: kitchen", obj.args[3])
	assert.Equal(t, "dinner is ready", obj.args[4])
	assert.Equal(t, int32(10000), obj.args[7])

	hints, ok := obj.args[6].(map[string]dbus.Variant)
	require.True(t, ok)
	assert.Equal(t, byte(1), hints["urgency"].Value())
}

func TestMirrorError(t *testing.T) {
	n := &Notifier{appName: "x", obj: &fakeObject{err: errors.New("no service")}}
	err := n.Mirror(context.Background(), "office", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no service")
}

func TestCloseWithoutConn(t *testing.T) {
	n := &Notifier{}
	assert.NoError(t, n.Close())
}
