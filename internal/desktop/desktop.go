// Package desktop reads the desktop's sound settings.
package desktop

// Settings are the desktop-wide sound preferences.
type Settings struct {
	ThemeName   string // empty when the desktop does not say
	EventSounds bool
}

// Defaults are used when no desktop settings are available.
func Defaults() Settings {
	return Settings{EventSounds: true}
}

// Reader reads desktop settings.
type Reader interface {
	// Read returns the current settings. Keys the desktop does not provide
	// keep their defaults.
	Read() (Settings, error)
	Close() error
}

// Static returns a Reader that always yields s.
func Static(s Settings) Reader {
	return staticReader{s: s}
}

type staticReader struct{ s Settings }

func (r staticReader) Read() (Settings, error) { return r.s, nil }

func (r staticReader) Close() error { return nil }
