// Package theme resolves event sound names to files following the
// freedesktop.org Sound Theme and Sound Naming specifications.
package theme

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"

	"github.com/llehouerou/eventsound/internal/sounderr"
)

const (
	// Fallback is the theme every chain ends with.
	Fallback = "freedesktop"

	// DefaultProfile is used when a request names no output profile.
	DefaultProfile = "stereo"

	indexFile = "index.theme"
	groupName = "Sound Theme"
)

// Extensions probed for each candidate, in order.
var Extensions = []string{".disabled", ".oga", ".ogg", ".wav"}

// Info describes an installed theme.
type Info struct {
	Name        string // directory name
	DisplayName string
	Comment     string
	Inherits    []string
	Hidden      bool
}

// Request is a sound lookup.
type Request struct {
	Theme   string // empty means Fallback
	EventID string
	Profile string // empty means DefaultProfile
	Locale  string // e.g. de_DE.UTF-8@euro; empty means C
}

// Result is a resolved sound file.
type Result struct {
	Path  string
	Theme string // theme the file belongs to, empty when unthemed
}

type subdir struct {
	name    string
	profile string
}

type theme struct {
	Info
	roots []string // <base>/<name> for every base holding the theme
	dirs  []subdir
}

// Resolver looks sounds up in a set of base directories.
type Resolver struct {
	bases []string
	log   zerolog.Logger

	mu     sync.Mutex
	themes map[string]*theme // nil entry: looked up, not installed
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDirs prepends extra base directories, searched before the XDG ones.
func WithDirs(dirs ...string) Option {
	return func(r *Resolver) { r.bases = append(slices.Clone(dirs), r.bases...) }
}

// WithBaseDirs replaces the base directories entirely.
func WithBaseDirs(dirs ...string) Option {
	return func(r *Resolver) { r.bases = slices.Clone(dirs) }
}

// WithLogger sets the resolver logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Resolver) { r.log = log }
}

// DefaultBaseDirs returns $XDG_DATA_HOME/sounds followed by
// $XDG_DATA_DIRS/*/sounds.
func DefaultBaseDirs() []string {
	dirs := []string{filepath.Join(xdg.DataHome, "sounds")}
	for _, d := range xdg.DataDirs {
		dirs = append(dirs, filepath.Join(d, "sounds"))
	}
	return dirs
}

// NewResolver creates a resolver over the default base directories.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		bases:  DefaultBaseDirs(),
		log:    zerolog.Nop(),
		themes: make(map[string]*theme),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BaseDirs returns the directories searched, in order.
func (r *Resolver) BaseDirs() []string {
	return slices.Clone(r.bases)
}

// Invalidate drops parsed theme indexes so the next lookup rereads them.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.themes = make(map[string]*theme)
}

func (r *Resolver) load(name string) *theme {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.themes[name]; ok {
		return t
	}
	t := r.read(name)
	r.themes[name] = t
	return t
}

func (r *Resolver) read(name string) *theme {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil
	}
	var t *theme
	for _, base := range r.bases {
		root := filepath.Join(base, name)
		if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
			continue
		}
		if t == nil {
			f, err := os.Open(filepath.Join(root, indexFile))
			if err != nil {
				continue
			}
			idx, err := parseIndex(f)
			_ = f.Close()
			if err != nil {
				r.log.Warn().Err(err).Str("theme", name).Msg("reading index.theme")
				continue
			}
			t = &theme{Info: Info{
				Name:        name,
				DisplayName: idx.get(groupName, "Name"),
				Comment:     idx.get(groupName, "Comment"),
				Inherits:    idx.list(groupName, "Inherits"),
				Hidden:      idx.get(groupName, "Hidden") == "true",
			}}
			for _, d := range idx.list(groupName, "Directories") {
				profile := idx.get(d, "OutputProfile")
				if profile == "" {
					profile = DefaultProfile
				}
				t.dirs = append(t.dirs, subdir{name: d, profile: profile})
			}
		}
		t.roots = append(t.roots, root)
	}
	return t
}

// chain returns name and its ancestors, depth first, ending with Fallback.
func (r *Resolver) chain(name string) []*theme {
	var out []*theme
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		t := r.load(n)
		if t == nil {
			return
		}
		out = append(out, t)
		for _, parent := range t.Inherits {
			walk(parent)
		}
	}
	if name != "" {
		walk(name)
	}
	walk(Fallback)
	return out
}

// Lookup finds the file for req. It fails with NotFound when nothing
// matches and with Disabled when the theme disables the sound.
func (r *Resolver) Lookup(req Request) (Result, error) {
	if req.EventID == "" {
		return Result{}, sounderr.Op("lookup", sounderr.Invalid)
	}
	profile := req.Profile
	if profile == "" {
		profile = DefaultProfile
	}
	names := degrade(req.EventID)
	locales := localeVariants(req.Locale)

	for _, t := range r.chain(req.Theme) {
		for _, d := range orderDirs(t.dirs, profile) {
			for _, root := range t.roots {
				dir := filepath.Join(root, d.name)
				for _, loc := range locales {
					for _, n := range names {
						res, err := probe(filepath.Join(dir, loc, n))
						if res != "" || err != nil {
							r.log.Debug().Str("event", req.EventID).Str("path", res).Msg("sound resolved")
							return Result{Path: res, Theme: t.Name}, err
						}
					}
				}
			}
		}
	}

	for _, base := range r.bases {
		for _, n := range names {
			res, err := probe(filepath.Join(base, n))
			if res != "" || err != nil {
				return Result{Path: res}, err
			}
		}
	}
	return Result{}, sounderr.Op("lookup", sounderr.NotFound)
}

// probe tries every extension for the path stem. A .disabled match yields
// Disabled.
func probe(stem string) (string, error) {
	for _, ext := range Extensions {
		p := stem + ext
		fi, err := os.Stat(p)
		if err != nil || fi.IsDir() {
			continue
		}
		if ext == ".disabled" {
			return p, sounderr.Op("lookup", sounderr.Disabled)
		}
		return p, nil
	}
	return "", nil
}

// orderDirs returns the directories for profile, then the stereo ones.
func orderDirs(dirs []subdir, profile string) []subdir {
	var out []subdir
	for _, d := range dirs {
		if d.profile == profile {
			out = append(out, d)
		}
	}
	if profile != DefaultProfile {
		for _, d := range dirs {
			if d.profile == DefaultProfile {
				out = append(out, d)
			}
		}
	}
	return out
}

// degrade yields the event name and its prefixes on '-':
// dialog-warning-foo, dialog-warning, dialog.
func degrade(name string) []string {
	out := []string{name}
	for {
		i := strings.LastIndexByte(name, '-')
		if i <= 0 {
			return out
		}
		name = name[:i]
		out = append(out, name)
	}
}

// localeVariants expands a POSIX locale into the subdirectories to try:
// de_DE.UTF-8@euro, de_DE@euro, de_DE, de, C and finally "" (the directory
// itself).
func localeVariants(locale string) []string {
	var out []string
	add := func(s string) {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	if locale != "" && locale != "C" && locale != "POSIX" {
		add(locale)

		base, modifier, _ := strings.Cut(locale, "@")
		if modifier != "" {
			modifier = "@" + modifier
		}
		lang, _, _ := strings.Cut(base, ".")
		add(lang + modifier)
		add(lang)
		if short, _, ok := strings.Cut(lang, "_"); ok {
			add(short)
		}
	}
	add("C")
	return append(out, "")
}

// Themes lists installed themes sorted by name.
func (r *Resolver) Themes() ([]Info, error) {
	names := make(map[string]bool)
	for _, base := range r.bases {
		entries, err := os.ReadDir(base)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if _, err := os.Stat(filepath.Join(base, e.Name(), indexFile)); err == nil {
				names[e.Name()] = true
			}
		}
	}

	out := make([]Info, 0, len(names))
	for n := range names {
		if t := r.load(n); t != nil {
			out = append(out, t.Info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Events lists the event ids available through name's chain, sorted.
// Disabled sounds are omitted.
func (r *Resolver) Events(name string) ([]string, error) {
	found := make(map[string]bool)
	disabled := make(map[string]bool)
	chain := r.chain(name)
	if name != "" && (len(chain) == 0 || chain[0].Name != name) {
		return nil, sounderr.Op("events", sounderr.NotFound)
	}
	for _, t := range chain {
		for _, root := range t.roots {
			for _, d := range t.dirs {
				err := filepath.WalkDir(filepath.Join(root, d.name), func(path string, e fs.DirEntry, err error) error {
					if err != nil || e.IsDir() {
						return nil //nolint:nilerr // unreadable entries are skipped
					}
					ext := filepath.Ext(e.Name())
					if !slices.Contains(Extensions, ext) {
						return nil
					}
					id := strings.TrimSuffix(e.Name(), ext)
					if ext == ".disabled" {
						disabled[id] = true
					} else {
						found[id] = true
					}
					return nil
				})
				if err != nil {
					return nil, err
				}
			}
		}
	}

	out := make([]string, 0, len(found))
	for id := range found {
		if !disabled[id] {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}
