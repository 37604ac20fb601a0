package native

import (
	"sync"

	"github.com/llehouerou/eventsound/internal/proplist"
	"github.com/llehouerou/eventsound/internal/sounderr"
)

// Fake is an in-memory Context for tests. Accepted plays stay pending until
// the test calls Complete. Errors set on the Fake are returned by the
// matching method.
type Fake struct {
	mu sync.Mutex

	Props    *proplist.Proplist
	Opened   bool
	Destroys int
	Cached   []*proplist.Proplist
	Canceled []uint32
	Plays    []uint32

	pending map[uint32]Completion

	ChangePropsErr error
	OpenErr        error
	PlayErr        error
	CancelErr      error
	CacheErr       error
	PlayingErr     error
	DestroyErr     error

	// CompleteOnDestroy makes Destroy report Destroyed for pending plays.
	CompleteOnDestroy bool
}

var _ Context = (*Fake)(nil)

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		Props:             proplist.New(),
		pending:           make(map[uint32]Completion),
		CompleteOnDestroy: true,
	}
}

// Creator returns a CreateFunc yielding f.
func (f *Fake) Creator() CreateFunc {
	return func() (Context, error) { return f, nil }
}

func (f *Fake) ChangeProps(p *proplist.Proplist) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ChangePropsErr != nil {
		return f.ChangePropsErr
	}
	f.Props = f.Props.Merge(p)
	return nil
}

func (f *Fake) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return f.OpenErr
	}
	if f.Opened {
		return sounderr.Op("open", sounderr.State)
	}
	f.Opened = true
	return nil
}

func (f *Fake) Play(id uint32, _ *proplist.Proplist, done Completion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PlayErr != nil {
		return f.PlayErr
	}
	f.Plays = append(f.Plays, id)
	f.pending[id] = done
	return nil
}

func (f *Fake) Cancel(id uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CancelErr != nil {
		return f.CancelErr
	}
	f.Canceled = append(f.Canceled, id)
	return nil
}

func (f *Fake) Cache(p *proplist.Proplist) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CacheErr != nil {
		return f.CacheErr
	}
	f.Cached = append(f.Cached, p.Clone())
	return nil
}

func (f *Fake) Playing(id uint32) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PlayingErr != nil {
		return false, f.PlayingErr
	}
	_, ok := f.pending[id]
	return ok, nil
}

func (f *Fake) Destroy() error {
	f.mu.Lock()
	f.Destroys++
	var pending map[uint32]Completion
	if f.CompleteOnDestroy {
		pending = f.pending
		f.pending = make(map[uint32]Completion)
	}
	err := f.DestroyErr
	f.mu.Unlock()

	for id, done := range pending {
		done(id, sounderr.Destroyed)
	}
	return err
}

// Complete fires the completion of a pending play. It reports false if id
// is not pending. Safe to call from any goroutine.
func (f *Fake) Complete(id uint32, code sounderr.Code) bool {
	f.mu.Lock()
	done, ok := f.pending[id]
	delete(f.pending, id)
	f.mu.Unlock()
	if !ok {
		return false
	}
	done(id, code)
	return true
}

// Pending returns the number of plays awaiting completion.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// DestroyCount returns how many times Destroy was called.
func (f *Fake) DestroyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Destroys
}
