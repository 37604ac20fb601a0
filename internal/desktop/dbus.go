//go:build linux

package desktop

import (
	"errors"

	"github.com/godbus/dbus/v5"
)

const (
	portalDest      = "org.freedesktop.portal.Desktop"
	portalPath      = "/org/freedesktop/portal/desktop"
	portalInterface = "org.freedesktop.portal.Settings"

	soundNamespace = "org.gnome.desktop.sound"
	keyThemeName   = "theme-name"
	keyEventSounds = "event-sounds"
)

// portalReader reads settings through xdg-desktop-portal.
type portalReader struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

// New returns a Reader backed by the settings portal. It falls back to
// Defaults when usePortal is false or the session bus is unavailable.
func New(usePortal bool) (Reader, error) {
	if !usePortal {
		return Static(Defaults()), nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		// D-Bus not available, fall back to defaults
		return Static(Defaults()), nil //nolint:nilerr // graceful fallback when D-Bus unavailable
	}
	return &portalReader{conn: conn, obj: conn.Object(portalDest, portalPath)}, nil
}

func (r *portalReader) Read() (Settings, error) {
	s := Defaults()

	v, err := r.readOne(soundNamespace, keyThemeName)
	switch {
	case err == nil:
		if name, ok := v.(string); ok {
			s.ThemeName = name
		}
	case !notFound(err):
		return s, err
	}

	v, err = r.readOne(soundNamespace, keyEventSounds)
	switch {
	case err == nil:
		if on, ok := v.(bool); ok {
			s.EventSounds = on
		}
	case !notFound(err):
		return s, err
	}

	return s, nil
}

// readOne calls ReadOne, falling back to the deprecated Read on older
// portals.
func (r *portalReader) readOne(namespace, key string) (any, error) {
	var v dbus.Variant
	err := r.obj.Call(portalInterface+".ReadOne", 0, namespace, key).Store(&v)
	if err != nil && unknownMethod(err) {
		err = r.obj.Call(portalInterface+".Read", 0, namespace, key).Store(&v)
	}
	if err != nil {
		return nil, err
	}
	return unwrap(v), nil
}

// unwrap strips nested variants; Read returns the value wrapped twice.
func unwrap(v dbus.Variant) any {
	val := v.Value()
	for {
		inner, ok := val.(dbus.Variant)
		if !ok {
			return val
		}
		val = inner.Value()
	}
}

func dbusErrorName(err error) string {
	var de dbus.Error
	if errors.As(err, &de) {
		return de.Name
	}
	var dp *dbus.Error
	if errors.As(err, &dp) {
		return dp.Name
	}
	return ""
}

func unknownMethod(err error) bool {
	return dbusErrorName(err) == "org.freedesktop.DBus.Error.UnknownMethod"
}

func notFound(err error) bool {
	return dbusErrorName(err) == "org.freedesktop.portal.Error.NotFound"
}

func (r *portalReader) Close() error {
	return r.conn.Close()
}
