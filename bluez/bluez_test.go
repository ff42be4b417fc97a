package bluez

import (
	"context"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/muka/go-bluetooth/bluez/profile/advertising"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haystackgo/haystack"
)

type fakeAdapter struct {
	calls   []bool
	err     error
	address string
}

func (a *fakeAdapter) GetAddress() (string, error) {
	if a.address == "" {
		return "", errors.New("no address")
	}
	return a.address, nil
}

func (a *fakeAdapter) SetPowered(on bool) error {
	a.calls = append(a.calls, on)
	return a.err
}

type fakeAddresser struct {
	addr   haystack.DeviceAddress
	err    error
	closed bool
}

func (m *fakeAddresser) useStaticAddress(ctx context.Context, addr haystack.DeviceAddress) error {
	m.addr = addr
	return m.err
}

func (m *fakeAddresser) Close() error {
	m.closed = true
	return nil
}

type fakeExpose struct {
	props     *advertising.LEAdvertisement1Properties
	err       error
	unexposed int
}

func (e *fakeExpose) expose(props *advertising.LEAdvertisement1Properties) (func(), error) {
	e.props = props
	if e.err != nil {
		return nil, e.err
	}
	return func() { e.unexposed++ }, nil
}

func TestAdvertise(t *testing.T) {
	adapter, addresser, exp := &fakeAdapter{}, &fakeAddresser{}, &fakeExpose{}
	b := newBroadcaster(adapter, addresser, exp.expose, nil)
	id := testIdentity(t)

	require.NoError(t, b.Advertise(context.Background(), id, haystack.AdvertiseOptions{}))
	assert.Equal(t, []bool{false, true}, adapter.calls)
	assert.Equal(t, id.Address(), addresser.addr)

	require.NotNil(t, exp.props)
	assert.Equal(t, advertising.AdvertisementTypeBroadcast, exp.props.Type)
	md := id.ManufacturerData()
	assert.Equal(t, map[uint16]interface{}{haystack.CompanyIDApple: md.Data}, exp.props.ManufacturerData)

	err := b.Advertise(context.Background(), id, haystack.AdvertiseOptions{})
	assert.Equal(t, errAlreadyAdvertising, err)

	require.NoError(t, b.Close())
	assert.Equal(t, 1, exp.unexposed)
	assert.True(t, addresser.closed)
}

func TestAdvertiseStaticAddressFailure(t *testing.T) {
	adapter, exp := &fakeAdapter{}, &fakeExpose{}
	addresser := &fakeAddresser{err: &MgmtError{Opcode: mgmtOpSetStaticAddress, Status: 0x0A}}
	b := newBroadcaster(adapter, addresser, exp.expose, nil)

	err := b.Advertise(context.Background(), testIdentity(t), haystack.AdvertiseOptions{})
	assert.True(t, errors.Is(err, haystack.ErrRadioUnavailable))
	var mgmtErr *MgmtError
	require.True(t, errors.As(err, &mgmtErr))
	assert.Equal(t, uint8(0x0A), mgmtErr.Status)
	assert.Nil(t, exp.props)
	// The adapter is powered back on.
	assert.Equal(t, []bool{false, true}, adapter.calls)
}

func TestAdvertiseChecksAdapterAddress(t *testing.T) {
	log, hook := test.NewNullLogger()
	adapter := &fakeAdapter{address: "E5:01:02:03:04:05"}
	b := newBroadcaster(adapter, &fakeAddresser{}, (&fakeExpose{}).expose, log)
	require.NoError(t, b.Advertise(context.Background(), testIdentity(t), haystack.AdvertiseOptions{}))
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, logrus.WarnLevel, e.Level, e.Message)
	}

	hook.Reset()
	adapter = &fakeAdapter{address: "00:1A:7D:DA:71:13"}
	b = newBroadcaster(adapter, &fakeAddresser{}, (&fakeExpose{}).expose, log)
	require.NoError(t, b.Advertise(context.Background(), testIdentity(t), haystack.AdvertiseOptions{}))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "bluez: adapter is not using the static address", hook.LastEntry().Message)
	assert.Equal(t, "00:1A:7D:DA:71:13", hook.LastEntry().Data["reported"])
}

func TestAdvertisePowerFailure(t *testing.T) {
	adapter := &fakeAdapter{err: dbus.Error{Name: "org.bluez.Error.NotReady", Body: []interface{}{"Resource Not Ready"}}}
	b := newBroadcaster(adapter, &fakeAddresser{}, (&fakeExpose{}).expose, nil)

	err := b.Advertise(context.Background(), testIdentity(t), haystack.AdvertiseOptions{})
	assert.True(t, errors.Is(err, haystack.ErrRadioUnavailable))
	assert.Contains(t, err.Error(), "org.bluez.Error.NotReady")
	var dbusErr dbus.Error
	require.True(t, errors.As(err, &dbusErr))
}

func TestAdvertiseRegisterFailure(t *testing.T) {
	exp := &fakeExpose{err: errors.New("boom")}
	b := newBroadcaster(&fakeAdapter{}, &fakeAddresser{}, exp.expose, nil)

	err := b.Advertise(context.Background(), testIdentity(t), haystack.AdvertiseOptions{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, haystack.ErrRadioUnavailable))
	assert.Contains(t, err.Error(), "register advertisement")

	// Nothing registered, so Close only releases the socket.
	require.NoError(t, b.Close())
	assert.Equal(t, 0, exp.unexposed)
}

func TestClassify(t *testing.T) {
	plain := errors.New("plain")
	assert.Equal(t, plain, classify(plain))

	other := dbus.Error{Name: "org.bluez.Error.InvalidArguments"}
	assert.False(t, errors.Is(classify(other), haystack.ErrRadioUnavailable))

	for _, name := range []string{
		"org.bluez.Error.NotReady",
		"org.freedesktop.DBus.Error.ServiceUnknown",
		"org.freedesktop.DBus.Error.AccessDenied",
	} {
		err := classify(errors.Wrap(dbus.Error{Name: name}, "wrapped"))
		assert.True(t, errors.Is(err, haystack.ErrRadioUnavailable), name)
	}
}
