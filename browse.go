package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/llehouerou/eventsound/internal/backend"
	"github.com/llehouerou/eventsound/internal/proplist"
	"github.com/llehouerou/eventsound/internal/runloop"
	"github.com/llehouerou/eventsound/internal/session"
	"github.com/llehouerou/eventsound/internal/stderr"
	"github.com/llehouerou/eventsound/internal/theme"
	"github.com/llehouerou/eventsound/internal/ui/soundboard"
)

const boardCallTimeout = 2 * time.Second

func cmdBrowse(args []string) error {
	fs := flag.NewFlagSet("browse", flag.ContinueOnError)
	driver := fs.String("driver", "", "output driver: auto, pulse, speaker or null")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	themeCfg := e.cfg.GetThemeConfig()
	themeName := fs.Arg(0)
	if themeName == "" {
		themeName = themeCfg.Name
	}
	if themeName == "" {
		if s, err := e.desktop.Read(); err == nil {
			themeName = s.ThemeName
		}
	}
	if themeName == "" {
		themeName = theme.Fallback
	}
	req := theme.Request{Theme: themeName, Profile: themeCfg.OutputProfile, Locale: themeCfg.Locale}

	events, err := soundboard.LoadEvents(e.resolver, req)
	if err != nil {
		return fmt.Errorf("theme %s: %w", themeName, err)
	}

	base, err := e.baseProps()
	if err != nil {
		return err
	}

	loop, err := runloop.New(e.log)
	if err != nil {
		return err
	}
	loop.Start(context.Background())
	defer shutdownLoop(loop)

	player := &boardPlayer{loop: loop}
	prog := tea.NewProgram(soundboard.New(themeName, events, player), tea.WithAltScreen())

	// from here until the board exits, fd 2 shows up inside the board
	if capture, err := stderr.Start(); err != nil {
		e.log.Warn().Err(err).Msg("capturing stderr")
	} else {
		defer capture.Stop()
		go func() {
			for line := range capture.Lines() {
				prog.Send(soundboard.NoticeMsg{Line: line})
			}
		}()
	}

	// the theme is fixed for the board so lookups match the list
	create := backend.Creator(e.backendOptions(*driver, themeName)...)
	var openErr error
	if err := loop.Do(context.Background(), func() {
		player.s, openErr = session.Open(loop, create, base, func(id uint32, err error) {
			// Update may be waiting on the loop; never block it here
			go prog.Send(soundboard.CompletedMsg{ID: id, Err: err})
		}, session.WithLogger(e.log.With().Str("component", "session").Logger()))
	}); err != nil {
		return err
	}
	if openErr != nil {
		return soundExit(openErr)
	}
	defer releaseSession(loop, player.s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		err := e.resolver.Watch(ctx, func() {
			events, err := soundboard.LoadEvents(e.resolver, req)
			prog.Send(soundboard.EventsMsg{Events: events, Err: err})
		})
		if err != nil {
			e.log.Warn().Err(err).Msg("watching sound themes")
		}
	}()

	_, err = prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// boardPlayer plays the board's sounds on one session. Calls hop onto the
// loop the session belongs to.
type boardPlayer struct {
	loop   *runloop.Loop
	s      *session.Session
	nextID uint32
}

func (p *boardPlayer) Play(eventID string) (uint32, error) {
	props := proplist.New()
	if err := props.Sets(proplist.EventID, eventID); err != nil {
		return 0, err
	}
	_ = props.Sets(proplist.EventDescription, "sound board")

	p.nextID++
	id := p.nextID
	ctx, cancel := context.WithTimeout(context.Background(), boardCallTimeout)
	defer cancel()
	if err := p.loop.Do(ctx, func() { p.s.Play(id, props) }); err != nil {
		return 0, err
	}
	return id, nil
}

func (p *boardPlayer) Cancel(id uint32) error {
	ctx, cancel := context.WithTimeout(context.Background(), boardCallTimeout)
	defer cancel()
	return p.loop.Do(ctx, func() { p.s.Cancel(id) })
}
