package soundboard

import (
	"errors"
	"os"

	"github.com/llehouerou/eventsound/internal/sounderr"
	"github.com/llehouerou/eventsound/internal/theme"
)

// Event is one entry of the board.
type Event struct {
	ID   string
	Path string // resolved file, empty if it could not be resolved
	Size int64
}

// LoadEvents lists the events of a theme chain with the file each one
// resolves to.
func LoadEvents(r *theme.Resolver, req theme.Request) ([]Event, error) {
	ids, err := r.Events(req.Theme)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(ids))
	for _, id := range ids {
		ev := Event{ID: id}
		lookup := req
		lookup.EventID = id
		res, err := r.Lookup(lookup)
		switch {
		case err == nil:
			ev.Path = res.Path
			if fi, err := os.Stat(res.Path); err == nil {
				ev.Size = fi.Size()
			}
		case errors.Is(err, sounderr.ErrDisabled):
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
