// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package forms

import (
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	terminal "golang.org/x/term"
)

var (
	markupColors = map[string]text.Color{
		"bold":      text.Bold,
		"italic":    text.Italic,
		"underline": text.Underline,
		"black":     text.FgBlack,
		"red":       text.FgRed,
		"green":     text.FgGreen,
		"yellow":    text.FgYellow,
		"blue":      text.FgBlue,
		"magenta":   text.FgMagenta,
		"cyan":      text.FgCyan,
		"white":     text.FgWhite,
		"hiblack":   text.FgHiBlack,
		"hired":     text.FgHiRed,
		"higreen":   text.FgHiGreen,
		"hiyellow":  text.FgHiYellow,
		"hiblue":    text.FgHiBlue,
		"himagenta": text.FgHiMagenta,
		"hicyan":    text.FgHiCyan,
		"hiwhite":   text.FgHiWhite,
	}

	// innermost {name}text{/name} pair, the text holds no further tags
	markupTag = regexp.MustCompile(`\{([A-Za-z]+)\}([^{]*)\{/([A-Za-z]+)\}`)
)

// colorMarkup replaces {color}text{/color} tags with terminal colors,
// innermost tags first so tags may nest. Unknown color names are stripped
// leaving the text.
func colorMarkup(input string) string {
	for {
		out := markupTag.ReplaceAllStringFunc(input, func(m string) string {
			parts := markupTag.FindStringSubmatch(m)
			if !strings.EqualFold(parts[1], parts[3]) {
				return m
			}

			color, ok := markupColors[strings.ToLower(parts[1])]
			if !ok {
				return parts[2]
			}

			return text.Colors{color}.Sprint(parts[2])
		})

		if out == input {
			return out
		}

		input = out
	}
}

func isTerminal() bool {
	return terminal.IsTerminal(int(os.Stdin.Fd())) && terminal.IsTerminal(int(os.Stdout.Fd()))
}

func isOneOf(val string, valid ...string) bool {
	return slices.Contains(valid, val)
}
