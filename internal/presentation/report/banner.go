package report

import (
	"strings"

	"github.com/muesli/termenv"
)

// Banner returns the colored wordmark printed above the report on TTYs.
func Banner() string {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"                     _                 _    ", "#818cf8"},
		{" _ __   __ _ ___ ___| |__   ___   ___ | | __", "#a78bfa"},
		{"| '_ \\ / _` / __/ __| '_ \\ / _ \\ / _ \\| |/ /", "#c084fc"},
		{"| |_) | (_| \\__ \\__ \\ |_) | (_) | (_) |   < ", "#e879f9"},
		{"| .__/ \\__,_|___/___/|_.__/ \\___/ \\___/|_|\\_\\", "#f472b6"},
		{"|_|                                         ", "#fb7185"},
	}

	var b strings.Builder
	b.WriteString("\n")
	for _, l := range lines {
		b.WriteString(termenv.String(l.text).Foreground(p.Color(l.color)).String())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

// RatingStyle colors a loan rating for terminal output.
func RatingStyle(rating string) string {
	colors := map[string]string{
		"Strong":    "#22c55e",
		"Moderate":  "#eab308",
		"Risky":     "#f97316",
		"High Risk": "#ef4444",
	}
	c, ok := colors[rating]
	if !ok {
		return rating
	}
	p := termenv.ColorProfile()
	return termenv.String(rating).Foreground(p.Color(c)).Bold().String()
}
