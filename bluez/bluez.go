// Package bluez broadcasts offline-finding advertisements through the BlueZ
// daemon. The adapter stays under BlueZ control: the static address is set
// through the kernel management interface while the adapter is powered off,
// and the advertisement is registered over D-Bus.
//
// Some documentation for the BlueZ D-Bus interface:
// https://git.kernel.org/pub/scm/bluetooth/bluez.git/tree/doc
package bluez

import (
	"context"
	"io/ioutil"

	"github.com/godbus/dbus/v5"
	"github.com/muka/go-bluetooth/bluez/profile/advertising"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/haystackgo/haystack"
)

var errAlreadyAdvertising = errors.New("bluez: already advertising")

// poweredAdapter is the part of org.bluez.Adapter1 the broadcaster needs.
type poweredAdapter interface {
	SetPowered(bool) error
	GetAddress() (string, error)
}

// exposeFunc registers an advertisement and returns a function that
// unregisters it.
type exposeFunc func(props *advertising.LEAdvertisement1Properties) (func(), error)

// staticAddresser sets the static random address of a powered-off adapter.
type staticAddresser interface {
	useStaticAddress(ctx context.Context, addr haystack.DeviceAddress) error
	Close() error
}

// Broadcaster is a haystack.Broadcaster on a BlueZ managed adapter.
type Broadcaster struct {
	adapter poweredAdapter
	mgmt    staticAddresser
	expose  exposeFunc
	log     logrus.FieldLogger

	unexpose func()
}

func newBroadcaster(adapter poweredAdapter, mgmt staticAddresser, expose exposeFunc, log logrus.FieldLogger) *Broadcaster {
	if log == nil {
		l := logrus.New()
		l.Out = ioutil.Discard
		log = l
	}
	return &Broadcaster{adapter: adapter, mgmt: mgmt, expose: expose, log: log}
}

// Advertise powers the adapter off, switches it to the identity's static
// address, powers it back on and registers a broadcast advertisement
// carrying the identity's manufacturer data.
//
// On Linux with BlueZ, it is not possible to set the advertisement interval.
func (b *Broadcaster) Advertise(ctx context.Context, id haystack.DeviceIdentity, options haystack.AdvertiseOptions) error {
	if b.unexpose != nil {
		return errAlreadyAdvertising
	}
	if options.Interval != 0 {
		b.log.WithField("interval", options.Interval.Duration()).Warn("bluez: advertising interval is chosen by the daemon")
	}
	if err := b.adapter.SetPowered(false); err != nil {
		return classify(errors.Wrap(err, "bluez: power off"))
	}
	if err := b.mgmt.useStaticAddress(ctx, id.Address()); err != nil {
		if perr := b.adapter.SetPowered(true); perr != nil {
			b.log.WithError(perr).Warn("bluez: adapter left powered off")
		}
		return haystack.RadioUnavailable(err, "bluez: set static address %s", id.Address())
	}
	if err := b.adapter.SetPowered(true); err != nil {
		return classify(errors.Wrap(err, "bluez: power on"))
	}
	b.checkAddress(id.Address())
	unexpose, err := b.expose(advertisementProperties(id))
	if err != nil {
		return classify(errors.Wrap(err, "bluez: register advertisement"))
	}
	b.unexpose = unexpose
	b.log.WithField("address", id.Address()).Debug("bluez: advertisement registered")
	return nil
}

// checkAddress warns when the powered adapter does not report addr.
func (b *Broadcaster) checkAddress(addr haystack.DeviceAddress) {
	reported, err := b.adapter.GetAddress()
	if err != nil {
		b.log.WithError(err).Debug("bluez: cannot read adapter address")
		return
	}
	mac, err := haystack.ParseMAC(reported)
	if err != nil {
		b.log.WithError(err).WithField("reported", reported).Debug("bluez: cannot parse adapter address")
		return
	}
	if mac != addr.MAC {
		b.log.WithFields(logrus.Fields{
			"address":  addr.String(),
			"reported": mac.String(),
		}).Warn("bluez: adapter is not using the static address")
	}
}

// Close unregisters the advertisement and releases the management socket.
func (b *Broadcaster) Close() error {
	if b.unexpose != nil {
		b.unexpose()
		b.unexpose = nil
	}
	return b.mgmt.Close()
}

func advertisementProperties(id haystack.DeviceIdentity) *advertising.LEAdvertisement1Properties {
	md := id.ManufacturerData()
	return &advertising.LEAdvertisement1Properties{
		Type:    advertising.AdvertisementTypeBroadcast,
		Timeout: 1<<16 - 1,
		ManufacturerData: map[uint16]interface{}{
			md.CompanyID: md.Data,
		},
	}
}

// classify marks D-Bus failures that mean the adapter or daemon cannot be
// used as haystack.ErrRadioUnavailable. Other errors are returned as is.
func classify(err error) error {
	var dbusErr dbus.Error
	if !errors.As(err, &dbusErr) {
		return err
	}
	switch dbusErr.Name {
	case "org.bluez.Error.NotReady",
		"org.bluez.Error.NotPermitted",
		"org.bluez.Error.NotAvailable",
		"org.bluez.Error.NotSupported",
		"org.bluez.Error.Failed",
		"org.freedesktop.DBus.Error.ServiceUnknown",
		"org.freedesktop.DBus.Error.UnknownObject",
		"org.freedesktop.DBus.Error.AccessDenied",
		"org.freedesktop.DBus.Error.NoReply":
		return haystack.RadioUnavailable(err, "%s", dbusErr.Name)
	}
	return err
}
