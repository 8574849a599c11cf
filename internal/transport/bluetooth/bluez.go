package bluetooth

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	busName      = "org.bluez"
	adapterIface = "org.bluez.Adapter1"
	deviceIface  = "org.bluez.Device1"
	propsIface   = "org.freedesktop.DBus.Properties"
)

// Names resolves human-readable Bluetooth names for log lines and the
// get_local_ip/get_connected_ip answers.
type Names interface {
	AdapterName() (string, error)
	DeviceName(mac string) (string, error)
	SetDiscoverable(on bool) error
	Close()
}

// bluez reads adapter and device properties from bluetoothd over the
// system bus.
type bluez struct {
	conn    *dbus.Conn
	adapter dbus.ObjectPath
}

// newBluez connects to the system bus and checks bluetoothd is there.
// adapter is the HCI name, "hci0" when empty.
func newBluez(adapter string) (*bluez, error) {
	if adapter == "" {
		adapter = "hci0"
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("list bus names: %w", err)
	}
	found := false
	for _, n := range names {
		if n == busName {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, fmt.Errorf("org.bluez not found on system bus, is bluetooth.service running?")
	}

	return &bluez{conn: conn, adapter: dbus.ObjectPath("/org/bluez/" + adapter)}, nil
}

func (b *bluez) Close() {
	b.conn.Close()
}

func (b *bluez) getProp(path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	obj := b.conn.Object(busName, path)
	var v dbus.Variant
	err := obj.Call(propsIface+".Get", 0, iface, prop).Store(&v)
	return v, err
}

func (b *bluez) setProp(path dbus.ObjectPath, iface, prop string, val interface{}) error {
	obj := b.conn.Object(busName, path)
	return obj.Call(propsIface+".Set", 0, iface, prop, dbus.MakeVariant(val)).Err
}

// getName returns Alias, falling back to Name.
func (b *bluez) getName(path dbus.ObjectPath, iface string) (string, error) {
	var lastErr error
	for _, prop := range []string{"Alias", "Name"} {
		v, err := b.getProp(path, iface, prop)
		if err != nil {
			lastErr = err
			continue
		}
		if s, ok := v.Value().(string); ok && s != "" {
			return s, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%s has no name", path)
	}
	return "", lastErr
}

func (b *bluez) AdapterName() (string, error) {
	return b.getName(b.adapter, adapterIface)
}

func (b *bluez) DeviceName(mac string) (string, error) {
	return b.getName(deviceObjectPath(b.adapter, mac), deviceIface)
}

func (b *bluez) SetDiscoverable(on bool) error {
	return b.setProp(b.adapter, adapterIface, "Discoverable", on)
}

// deviceObjectPath converts a MAC address like "AA:BB:CC:DD:EE:FF" to
// "<adapter>/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(adapter dbus.ObjectPath, mac string) dbus.ObjectPath {
	escaped := strings.ReplaceAll(strings.ToUpper(mac), ":", "_")
	return dbus.ObjectPath(string(adapter) + "/dev_" + escaped)
}
