// Package proplist implements the string property lists attached to sound
// contexts and sound events.
package proplist

import (
	"sort"

	"github.com/llehouerou/eventsound/internal/sounderr"
)

// Well-known property keys.
const (
	MediaName     = "media.name"
	MediaTitle    = "media.title"
	MediaArtist   = "media.artist"
	MediaLanguage = "media.language"
	MediaFilename = "media.filename"
	MediaIcon     = "media.icon"
	MediaIconName = "media.icon_name"
	MediaRole     = "media.role"

	EventID          = "event.id"
	EventDescription = "event.description"
	EventMouseX      = "event.mouse.x"
	EventMouseY      = "event.mouse.y"
	EventMouseHPos   = "event.mouse.hpos"
	EventMouseVPos   = "event.mouse.vpos"
	EventMouseButton = "event.mouse.button"

	WindowName       = "window.name"
	WindowID         = "window.id"
	WindowIcon       = "window.icon"
	WindowIconName   = "window.icon_name"
	WindowX11Display = "window.x11.display"
	WindowX11Screen  = "window.x11.screen"
	WindowX11Monitor = "window.x11.monitor"
	WindowX11XID     = "window.x11.xid"

	ApplicationName           = "application.name"
	ApplicationID             = "application.id"
	ApplicationVersion        = "application.version"
	ApplicationIcon           = "application.icon"
	ApplicationIconName       = "application.icon_name"
	ApplicationLanguage       = "application.language"
	ApplicationProcessID      = "application.process.id"
	ApplicationProcessBinary  = "application.process.binary"
	ApplicationProcessUser    = "application.process.user"
	ApplicationProcessHost    = "application.process.host"
	CanberraCacheControl      = "canberra.cache.control"
	CanberraVolume            = "canberra.volume"
	CanberraXDGThemeName      = "canberra.xdg-theme.name"
	CanberraXDGThemeProfile   = "canberra.xdg-theme.output-profile"
	CanberraEnable            = "canberra.enable"
	CanberraDriver            = "canberra.driver"
	CanberraForceChannel      = "canberra.force_channel"
	CanberraCacheControlNever = "never"
)

// Names maps exported constant names to keys, for bindings that expose the
// key table to scripts.
var Names = map[string]string{
	"MEDIA_NAME":                        MediaName,
	"MEDIA_TITLE":                       MediaTitle,
	"MEDIA_ARTIST":                      MediaArtist,
	"MEDIA_LANGUAGE":                    MediaLanguage,
	"MEDIA_FILENAME":                    MediaFilename,
	"MEDIA_ICON":                        MediaIcon,
	"MEDIA_ICON_NAME":                   MediaIconName,
	"MEDIA_ROLE":                        MediaRole,
	"EVENT_ID":                          EventID,
	"EVENT_DESCRIPTION":                 EventDescription,
	"EVENT_MOUSE_X":                     EventMouseX,
	"EVENT_MOUSE_Y":                     EventMouseY,
	"EVENT_MOUSE_HPOS":                  EventMouseHPos,
	"EVENT_MOUSE_VPOS":                  EventMouseVPos,
	"EVENT_MOUSE_BUTTON":                EventMouseButton,
	"WINDOW_NAME":                       WindowName,
	"WINDOW_ID":                         WindowID,
	"WINDOW_ICON":                       WindowIcon,
	"WINDOW_ICON_NAME":                  WindowIconName,
	"WINDOW_X11_DISPLAY":                WindowX11Display,
	"WINDOW_X11_SCREEN":                 WindowX11Screen,
	"WINDOW_X11_MONITOR":                WindowX11Monitor,
	"WINDOW_X11_XID":                    WindowX11XID,
	"APPLICATION_NAME":                  ApplicationName,
	"APPLICATION_ID":                    ApplicationID,
	"APPLICATION_VERSION":               ApplicationVersion,
	"APPLICATION_ICON":                  ApplicationIcon,
	"APPLICATION_ICON_NAME":             ApplicationIconName,
	"APPLICATION_LANGUAGE":              ApplicationLanguage,
	"APPLICATION_PROCESS_ID":            ApplicationProcessID,
	"APPLICATION_PROCESS_BINARY":        ApplicationProcessBinary,
	"APPLICATION_PROCESS_USER":          ApplicationProcessUser,
	"APPLICATION_PROCESS_HOST":          ApplicationProcessHost,
	"CANBERRA_CACHE_CONTROL":            CanberraCacheControl,
	"CANBERRA_VOLUME":                   CanberraVolume,
	"CANBERRA_XDG_THEME_NAME":           CanberraXDGThemeName,
	"CANBERRA_XDG_THEME_OUTPUT_PROFILE": CanberraXDGThemeProfile,
	"CANBERRA_ENABLE":                   CanberraEnable,
	"CANBERRA_DRIVER":                   CanberraDriver,
	"CANBERRA_FORCE_CHANNEL":            CanberraForceChannel,
}

// Proplist is an ordered set of string properties. The zero value is empty
// and ready to use. A Proplist is not safe for concurrent mutation.
type Proplist struct {
	keys []string
	vals map[string]string
}

// New returns an empty property list.
func New() *Proplist {
	return &Proplist{}
}

// FromMap builds a property list from m, inserting keys in sorted order.
func FromMap(m map[string]string) (*Proplist, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := &Proplist{}
	for _, k := range keys {
		if err := p.Sets(k, m[k]); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ValidKey reports whether key may be used as a property name: non-empty,
// printable ASCII, no spaces.
func ValidKey(key string) bool {
	if key == "" {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c <= ' ' || c >= 0x7f {
			return false
		}
	}
	return true
}

// Sets sets key to value. Re-setting a key keeps its original position.
func (p *Proplist) Sets(key, value string) error {
	if !ValidKey(key) {
		return sounderr.Op("proplist", sounderr.Invalid)
	}
	if p.vals == nil {
		p.vals = make(map[string]string)
	}
	if _, ok := p.vals[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.vals[key] = value
	return nil
}

// Gets returns the value of key.
func (p *Proplist) Gets(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p.vals[key]
	return v, ok
}

// Get returns the value of key, or "" if unset.
func (p *Proplist) Get(key string) string {
	v, _ := p.Gets(key)
	return v
}

// Unset removes key.
func (p *Proplist) Unset(key string) {
	if p == nil {
		return
	}
	if _, ok := p.vals[key]; !ok {
		return
	}
	delete(p.vals, key)
	for i, k := range p.keys {
		if k == key {
			p.keys = append(p.keys[:i], p.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of properties.
func (p *Proplist) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Keys returns the keys in insertion order.
func (p *Proplist) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Map returns a copy of the properties as a map.
func (p *Proplist) Map() map[string]string {
	out := make(map[string]string, p.Len())
	if p == nil {
		return out
	}
	for k, v := range p.vals {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy. Cloning nil yields an empty list.
func (p *Proplist) Clone() *Proplist {
	c := &Proplist{}
	if p == nil {
		return c
	}
	for _, k := range p.keys {
		_ = c.Sets(k, p.vals[k])
	}
	return c
}

// Merge returns a new list holding p's properties overridden by other's.
func (p *Proplist) Merge(other *Proplist) *Proplist {
	out := p.Clone()
	if other == nil {
		return out
	}
	for _, k := range other.keys {
		_ = out.Sets(k, other.vals[k])
	}
	return out
}
