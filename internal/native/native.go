// Package native describes the contract between a playback session and the
// platform sound layer underneath it.
package native

import (
	"github.com/llehouerou/eventsound/internal/proplist"
	"github.com/llehouerou/eventsound/internal/sounderr"
)

// Completion reports the end of an accepted Play. It may be called from any
// goroutine, at most once per accepted Play.
type Completion func(id uint32, code sounderr.Code)

// Context is a native sound context. Implementations must be safe for
// concurrent use.
type Context interface {
	ChangeProps(p *proplist.Proplist) error
	Open() error
	// Play starts the sound described by p. If it returns nil, done is
	// eventually called exactly once for id.
	Play(id uint32, p *proplist.Proplist, done Completion) error
	Cancel(id uint32) error
	Cache(p *proplist.Proplist) error
	Playing(id uint32) (bool, error)
	// Destroy releases the context. Voices still in flight report
	// sounderr.Destroyed before Destroy returns.
	Destroy() error
}

// CreateFunc creates an unopened native context.
type CreateFunc func() (Context, error)
