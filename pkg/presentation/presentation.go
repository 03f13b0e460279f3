// Package presentation formats race figures for client display. The core keeps
// raw seconds and metres everywhere; only the outermost read responses carry
// these strings.
package presentation

import (
	"fmt"
	"math"
)

// FormatElapsed renders elapsed seconds as HH:MM:SS, zero-padded. Negative
// input clamps to zero.
func FormatElapsed(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(math.Round(seconds))
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatPace renders the average pace as M:SS/km for the given elapsed time
// and distance covered in metres. Distances under a metre render as a dash
// since no meaningful pace exists yet.
func FormatPace(elapsedSeconds, distanceMetres float64) string {
	if distanceMetres < 1 || elapsedSeconds <= 0 {
		return "-"
	}
	secPerKm := elapsedSeconds / (distanceMetres / 1000)
	total := int(math.Round(secPerKm))
	return fmt.Sprintf("%d:%02d/km", total/60, total%60)
}

// FormatDistance renders metres as a kilometre figure with two decimals.
func FormatDistance(metres float64) string {
	if metres < 0 {
		metres = 0
	}
	return fmt.Sprintf("%.2fkm", metres/1000)
}
