// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the origami CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

// Origami color palette
var (
	ColorAccent  = lipgloss.Color("#2CD7C7")
	ColorPrimary = lipgloss.Color("#20B9B4")
	ColorBorder  = lipgloss.Color("#16858E")
	ColorSlate   = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorNote    = lipgloss.Color("#5DADE2")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Note    lipgloss.Style

	TableHeader lipgloss.Style
	TableCell   lipgloss.Style
	TableBorder lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Bold(true).Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Bold(true).Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Bold(true).Foreground(ColorError),
	Note:    lipgloss.NewStyle().Foreground(ColorNote),

	TableHeader: lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).Padding(0, 1),
	TableCell:   lipgloss.NewStyle().Padding(0, 1),
	TableBorder: lipgloss.NewStyle().Foreground(ColorBorder),
}

// Block prefixes
const (
	PrefixOK      = "[OK]"
	PrefixError   = "[ERROR]"
	PrefixWarning = "[WARNING]"
	PrefixNote    = "[NOTE]"
)

// Mode selects between styled and script-friendly output.
type Mode int

const (
	// ModeRich renders colors and table borders.
	ModeRich Mode = iota

	// ModePlain renders unstyled text and tab-separated tables.
	ModePlain
)

// DetectMode returns ModeRich when f is a terminal.
func DetectMode(f *os.File) Mode {
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return ModeRich
	}
	return ModePlain
}

// Printer writes command output. Results go to Out; errors, warnings and
// notes go to Err so that Out stays parseable.
type Printer struct {
	Out  io.Writer
	Err  io.Writer
	Mode Mode
}

// NewPrinter returns a Printer over the process's standard streams.
func NewPrinter() *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr, Mode: DetectMode(os.Stdout)}
}

func (p *Printer) render(style lipgloss.Style, text string) string {
	if p.Mode == ModePlain {
		return text
	}
	return style.Render(text)
}

// Title prints a heading. Plain mode skips it.
func (p *Printer) Title(text string) {
	if p.Mode == ModePlain {
		return
	}
	fmt.Fprintln(p.Out, p.render(Styles.Title, text))
}

// Success prints "[OK] text".
func (p *Printer) Success(text string) {
	fmt.Fprintf(p.Out, "%s %s\n", p.render(Styles.Success, PrefixOK), text)
}

// Error prints "[ERROR] text".
func (p *Printer) Error(text string) {
	fmt.Fprintf(p.Err, "%s %s\n", p.render(Styles.Error, PrefixError), text)
}

// Warning prints "[WARNING] text".
func (p *Printer) Warning(text string) {
	fmt.Fprintf(p.Err, "%s %s\n", p.render(Styles.Warning, PrefixWarning), text)
}

// Note prints "[NOTE] text".
func (p *Printer) Note(text string) {
	fmt.Fprintf(p.Err, "%s %s\n", p.render(Styles.Note, PrefixNote), text)
}

// Println prints raw text to Out.
func (p *Printer) Println(text string) {
	fmt.Fprintln(p.Out, text)
}

// Table prints rows under headers. Plain mode prints tab-separated values.
func (p *Printer) Table(headers []string, rows [][]string) {
	if p.Mode == ModePlain {
		fmt.Fprintln(p.Out, strings.Join(headers, "\t"))
		for _, row := range rows {
			fmt.Fprintln(p.Out, strings.Join(row, "\t"))
		}
		return
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(Styles.TableBorder).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return Styles.TableHeader
			}
			return Styles.TableCell
		})
	fmt.Fprintln(p.Out, t.Render())
}
