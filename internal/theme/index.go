package theme

import (
	"io"
	"strings"

	"gopkg.in/ini.v1"
)

// index is a parsed index.theme file: group name → key → value.
type index map[string]map[string]string

// Key files have no inline comments and only "=" separates keys.
var keyFileOptions = ini.LoadOptions{
	IgnoreInlineComment:     true,
	KeyValueDelimiters:      "=",
	SkipUnrecognizableLines: true,
}

// parseIndex reads the desktop-entry style key file used by index.theme.
// Localized keys (Name[de]) are kept verbatim. Keys outside any group are
// dropped.
func parseIndex(r io.Reader) (index, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f, err := ini.LoadSources(keyFileOptions, data)
	if err != nil {
		return nil, err
	}

	idx := make(index)
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		group := idx[sec.Name()]
		if group == nil {
			group = make(map[string]string)
			idx[sec.Name()] = group
		}
		for _, key := range sec.Keys() {
			group[key.Name()] = strings.TrimSpace(key.Value())
		}
	}
	return idx, nil
}

func (i index) get(group, key string) string {
	return i[group][key]
}

// list splits a comma separated value, dropping empty items.
func (i index) list(group, key string) []string {
	raw := i.get(group, key)
	if raw == "" {
		return nil
	}
	var out []string
	for item := range strings.SplitSeq(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
