package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var themeHeaderStyle = lipgloss.NewStyle().Bold(true)

func cmdThemes(args []string) error {
	fs := flag.NewFlagSet("themes", flag.ContinueOnError)
	all := fs.Bool("all", false, "include hidden themes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	themes, err := e.resolver.Themes()
	if err != nil {
		return err
	}

	current := e.cfg.GetThemeConfig().Name
	if current == "" {
		if s, err := e.desktop.Read(); err == nil {
			current = s.ThemeName
		}
	}

	rows := make([][]string, 0, len(themes))
	for _, t := range themes {
		if t.Hidden && !*all {
			continue
		}
		mark := " "
		if t.Name == current {
			mark = "*"
		}
		display := t.DisplayName
		if display == "" {
			display = t.Name
		}
		rows = append(rows, []string{mark, t.Name, display, strings.Join(t.Inherits, ", ")})
	}

	tbl := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("", "THEME", "NAME", "INHERITS").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return themeHeaderStyle.PaddingRight(1)
			}
			return lipgloss.NewStyle().PaddingRight(1)
		})
	fmt.Fprintln(os.Stdout, tbl.Render())
	return nil
}

func cmdPrune(args []string) error {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	all := fs.Bool("all", false, "drop every entry")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	if e.cache == nil {
		return errors.New("lookup cache is disabled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	before, err := e.cache.Len(ctx)
	if err != nil {
		return err
	}
	if *all {
		if err := e.cache.Clear(ctx); err != nil {
			return err
		}
		fmt.Printf("removed %d entries\n", before)
		return nil
	}

	removed, err := e.cache.Prune(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d of %d entries\n", removed, before)
	return nil
}
