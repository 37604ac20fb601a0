// Package backend is the native sound context: it resolves event sounds
// through the theme and lookup cache, decodes them and plays them on an
// output sink.
package backend

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/llehouerou/eventsound/internal/decode"
	"github.com/llehouerou/eventsound/internal/desktop"
	"github.com/llehouerou/eventsound/internal/native"
	"github.com/llehouerou/eventsound/internal/output"
	"github.com/llehouerou/eventsound/internal/proplist"
	"github.com/llehouerou/eventsound/internal/soundcache"
	"github.com/llehouerou/eventsound/internal/sounderr"
	"github.com/llehouerou/eventsound/internal/theme"
)

// Verify Context implements native.Context at compile time.
var _ native.Context = (*Context)(nil)

// Context is a sound context playing through one output sink.
type Context struct {
	opts options
	log  zerolog.Logger

	mu        sync.Mutex
	props     *proplist.Proplist
	driver    string
	sink      output.Sink
	settings  desktop.Settings
	opened    bool
	destroyed bool
	voices    map[uint32][]*playback

	inflight sync.WaitGroup

	samplesMu sync.Mutex
	samples   map[string]*beep.Buffer
	loads     singleflight.Group
}

// playback is one accepted Play.
type playback struct {
	id       uint32
	voice    output.Voice
	canceled bool
	stopped  bool // stop requested before the voice existed
	destroy  bool
}

// New returns an unopened context.
func New(opts ...Option) *Context {
	o := resolveOptions(opts)
	return &Context{
		opts:    o,
		log:     o.log,
		props:   proplist.New(),
		voices:  make(map[uint32][]*playback),
		samples: make(map[string]*beep.Buffer),
	}
}

// Creator returns a native.CreateFunc building contexts with opts.
func Creator(opts ...Option) native.CreateFunc {
	return func() (native.Context, error) {
		return New(opts...), nil
	}
}

// ChangeProps merges p into the context properties. The driver cannot change
// once the context is open.
func (c *Context) ChangeProps(p *proplist.Proplist) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return sounderr.Op("change_props", sounderr.Destroyed)
	}
	if d, ok := p.Gets(proplist.CanberraDriver); ok && c.opened && !strings.EqualFold(d, c.driver) {
		return sounderr.Op("change_props", sounderr.State)
	}
	c.props = c.props.Merge(p)
	return nil
}

// Open connects to the output driver.
func (c *Context) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openLocked()
}

func (c *Context) openLocked() error {
	if c.destroyed {
		return sounderr.Op("open", sounderr.Destroyed)
	}
	if c.opened {
		return sounderr.Op("open", sounderr.State)
	}

	driver := c.props.Get(proplist.CanberraDriver)
	if driver == "" {
		driver = c.opts.defaults.Driver
	}
	sink, err := c.opts.openSink(driver, c.props, c.log)
	if err != nil {
		if sounderr.CodeOf(err) == sounderr.Internal {
			return sounderr.Wrap("open", sounderr.NoDriver, err)
		}
		return err
	}

	settings, err := c.opts.desktop.Read()
	if err != nil {
		c.log.Debug().Err(err).Msg("desktop settings unavailable")
		settings = desktop.Defaults()
	}

	c.sink = sink
	c.driver = driver
	c.settings = settings
	c.opened = true
	c.log.Debug().Str("driver", sink.Name()).Msg("context opened")
	return nil
}

// Play accepts the sound described by the context and play properties and
// returns at once. Lookup, decoding and starting the voice happen on a
// separate goroutine; their failures arrive through done. An unopened
// context is opened first.
func (c *Context) Play(id uint32, p *proplist.Proplist, done native.Completion) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return sounderr.Op("play", sounderr.Destroyed)
	}
	if !c.opened {
		if err := c.openLocked(); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	props := c.props.Merge(p)
	settings := c.settings
	sink := c.sink
	c.mu.Unlock()

	if !enabled(props) || !settings.EventSounds {
		return sounderr.Op("play", sounderr.Disabled)
	}
	if props.Get(proplist.MediaFilename) == "" && props.Get(proplist.EventID) == "" {
		return sounderr.Op("play", sounderr.Invalid)
	}
	gain, err := volume(props)
	if err != nil {
		return err
	}

	pb := &playback{id: id}
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return sounderr.Op("play", sounderr.Destroyed)
	}
	c.voices[id] = append(c.voices[id], pb)
	c.inflight.Add(1)
	c.mu.Unlock()

	go c.start(pb, sink, props, settings, gain, done)
	return nil
}

// start resolves and decodes the sound for pb, then hands it to the sink.
func (c *Context) start(pb *playback, sink output.Sink, props *proplist.Proplist, settings desktop.Settings, gain float64, done native.Completion) {
	path, err := c.resolve(props, settings)
	if err != nil {
		c.finished(pb, err, done)
		return
	}
	buf, err := c.load(path, props.Get(proplist.CanberraCacheControl) != proplist.CanberraCacheControlNever)
	if err != nil {
		c.finished(pb, err, done)
		return
	}

	var s beep.Streamer = buf.Streamer(0, buf.Len())
	if gain != 0 {
		s = &effects.Volume{Streamer: s, Base: 10, Volume: gain / 20}
	}
	s = forceChannel(s, props.Get(proplist.CanberraForceChannel))

	c.mu.Lock()
	stopped := pb.stopped
	c.mu.Unlock()
	if stopped {
		// canceled or destroyed before a voice existed
		c.finished(pb, nil, done)
		return
	}

	v, err := sink.Start(s, buf.Format(), props, func(err error) {
		c.finished(pb, err, done)
	})
	if err != nil {
		c.finished(pb, sounderr.Wrap("play", sounderr.System, err), done)
		return
	}

	c.mu.Lock()
	pb.voice = v
	stop := pb.stopped
	c.mu.Unlock()
	if stop {
		v.Stop()
	}
	c.log.Debug().Uint32("id", pb.id).Str("path", path).Msg("playing")
}

// finished runs on a sink goroutine when a voice ends.
func (c *Context) finished(pb *playback, err error, done native.Completion) {
	c.mu.Lock()
	c.removeLocked(pb)
	code := sounderr.Success
	switch {
	case pb.destroy:
		code = sounderr.Destroyed
	case pb.canceled:
		code = sounderr.Canceled
	case err != nil:
		code = sounderr.CodeOf(err)
	}
	c.mu.Unlock()

	if done != nil {
		done(pb.id, code)
	}
	c.inflight.Done()
}

func (c *Context) removeLocked(pb *playback) {
	list := c.voices[pb.id]
	for i, x := range list {
		if x == pb {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(c.voices, pb.id)
	} else {
		c.voices[pb.id] = list
	}
}

// Cancel stops every voice started with id. Unknown ids are not an error.
func (c *Context) Cancel(id uint32) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return sounderr.Op("cancel", sounderr.Destroyed)
	}
	var stop []output.Voice
	for _, pb := range c.voices[id] {
		pb.canceled = true
		if pb.voice == nil {
			pb.stopped = true
			continue
		}
		stop = append(stop, pb.voice)
	}
	c.mu.Unlock()

	for _, v := range stop {
		v.Stop()
	}
	return nil
}

// Playing reports whether any voice started with id is still running.
func (c *Context) Playing(id uint32) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return false, sounderr.Op("playing", sounderr.Destroyed)
	}
	return len(c.voices[id]) > 0, nil
}

// Cache resolves and decodes a sound ahead of playing it.
func (c *Context) Cache(p *proplist.Proplist) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return sounderr.Op("cache", sounderr.Destroyed)
	}
	props := c.props.Merge(p)
	settings := c.settings
	c.mu.Unlock()

	if props.Get(proplist.CanberraCacheControl) == proplist.CanberraCacheControlNever {
		return nil
	}
	path, err := c.resolve(props, settings)
	if err != nil {
		return err
	}
	_, err = c.load(path, true)
	return err
}

// Destroy stops every voice, waits for their completions and closes the
// sink.
func (c *Context) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	var stop []output.Voice
	for _, list := range c.voices {
		for _, pb := range list {
			pb.destroy = true
			if pb.voice == nil {
				pb.stopped = true
				continue
			}
			stop = append(stop, pb.voice)
		}
	}
	sink := c.sink
	c.mu.Unlock()

	for _, v := range stop {
		v.Stop()
	}
	c.inflight.Wait()

	c.samplesMu.Lock()
	clear(c.samples)
	c.samplesMu.Unlock()

	if sink != nil {
		return sink.Close()
	}
	return nil
}

// resolve returns the file to play: media.filename when set, otherwise the
// themed file for event.id.
func (c *Context) resolve(props *proplist.Proplist, settings desktop.Settings) (string, error) {
	if name := props.Get(proplist.MediaFilename); name != "" {
		return name, nil
	}
	eventID := props.Get(proplist.EventID)
	if eventID == "" {
		return "", sounderr.Op("play", sounderr.Invalid)
	}

	req := theme.Request{
		Theme:   firstNonEmpty(props.Get(proplist.CanberraXDGThemeName), c.opts.defaults.Theme, settings.ThemeName),
		EventID: eventID,
		Profile: firstNonEmpty(props.Get(proplist.CanberraXDGThemeProfile), c.opts.defaults.Profile),
		Locale:  firstNonEmpty(props.Get(proplist.MediaLanguage), props.Get(proplist.ApplicationLanguage), c.opts.defaults.Locale),
	}
	key := soundcache.Key{Theme: req.Theme, Profile: req.Profile, Locale: req.Locale, EventID: eventID}

	ctx := context.Background()
	if c.opts.cache != nil {
		e, ok, err := c.opts.cache.Get(ctx, key)
		if err != nil {
			c.log.Warn().Err(err).Msg("lookup cache read failed")
		} else if ok {
			return e.Path, nil
		}
	}

	res, err := c.opts.resolver.Lookup(req)
	if err != nil {
		return "", err
	}

	if c.opts.cache != nil {
		if err := c.opts.cache.Put(ctx, soundcache.Entry{Key: key, Path: res.Path, Resolved: res.Theme}); err != nil {
			c.log.Warn().Err(err).Msg("lookup cache write failed")
		}
	}
	return res.Path, nil
}

// load decodes path, sharing the work between concurrent callers. Decoded
// sounds are kept when keep is set.
func (c *Context) load(path string, keep bool) (*beep.Buffer, error) {
	c.samplesMu.Lock()
	buf, ok := c.samples[path]
	c.samplesMu.Unlock()
	if ok {
		return buf, nil
	}

	v, err, _ := c.loads.Do(path, func() (any, error) {
		if _, err := os.Stat(path); err != nil {
			return nil, sounderr.Wrap("load", sounderr.CodeOf(err), err)
		}
		return decode.Load(path, c.opts.maxDuration)
	})
	if err != nil {
		return nil, err
	}
	buf = v.(*beep.Buffer)

	if keep {
		c.samplesMu.Lock()
		c.samples[path] = buf
		c.samplesMu.Unlock()
	}
	return buf, nil
}

// Cached reports whether the decoded sound for path is held in memory.
func (c *Context) Cached(path string) bool {
	c.samplesMu.Lock()
	defer c.samplesMu.Unlock()
	_, ok := c.samples[path]
	return ok
}

func enabled(props *proplist.Proplist) bool {
	v, ok := props.Gets(proplist.CanberraEnable)
	if !ok {
		return true
	}
	on, err := strconv.ParseBool(strings.TrimSpace(v))
	return err != nil || on
}

// volume parses canberra.volume, in dB.
func volume(props *proplist.Proplist) (float64, error) {
	v, ok := props.Gets(proplist.CanberraVolume)
	if !ok {
		return 0, nil
	}
	db, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, sounderr.Wrap("play", sounderr.Invalid, err)
	}
	return db, nil
}

// forceChannel routes the sound to one side for canberra.force_channel.
func forceChannel(s beep.Streamer, channel string) beep.Streamer {
	switch channel {
	case "front-left", "rear-left", "side-left", "left":
		return &effects.Pan{Streamer: s, Pan: -1}
	case "front-right", "rear-right", "side-right", "right":
		return &effects.Pan{Streamer: s, Pan: 1}
	default:
		return s
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
