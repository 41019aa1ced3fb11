package main

import (
	"fmt"
	"strings"
)

// StatusLine collects the fields shown in the window title and counts
// frames between refreshes.
type StatusLine struct {
	fields  []string
	frames  int
	elapsed float32
	FPS     int
}

// Tick counts one frame of dt seconds and reports whether a second has
// passed since the last refresh.
func (s *StatusLine) Tick(dt float32) bool {
	s.frames++
	s.elapsed += dt
	if s.elapsed < 1 {
		return false
	}
	s.FPS = int(float32(s.frames)/s.elapsed + 0.5)
	s.frames, s.elapsed = 0, 0
	return true
}

func (s *StatusLine) AddField(format string, args ...any) {
	s.fields = append(s.fields, fmt.Sprintf(format, args...))
}

func (s *StatusLine) Clear() {
	s.fields = s.fields[:0]
}

func (s *StatusLine) String() string {
	return strings.Join(s.fields, " | ")
}
