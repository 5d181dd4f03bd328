// Package nametag parses decorated in-game title strings.
//
// Corp titles exported by the game client may wrap the visible name in a
// color markup tag, e.g. "<color=0xFFBF68FF>Shadow</color>". Grouping and
// display both need the bare name; display additionally wants the web color.
package nametag

import (
	"regexp"
	"time"
)

var colorTag = regexp.MustCompile(`<color=(0x(?:[A-Fa-f0-9]{8}|[A-Fa-f0-9]{6}))>(.*?)</color>`)

// Parse splits a possibly color-tagged title into the bare name and a web
// color. The color is "#RRGGBB" with the alpha channel stripped; it is empty
// when the title carries no tag.
func Parse(title string) (name, webColor string) {
	m := colorTag.FindStringSubmatch(title)
	if m == nil {
		return title, ""
	}
	hex := m[1] // 0xAARRGGBB or 0xRRGGBB
	name = m[2]
	if len(hex) == 10 {
		webColor = "#" + hex[4:]
	} else {
		webColor = "#" + hex[2:]
	}
	return name, webColor
}

// LastDayOfMonth returns the number of days in the given month.
func LastDayOfMonth(year, month int) int {
	if month < 1 || month > 12 {
		return 31
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1).Day()
}
