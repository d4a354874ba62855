package log

import "strings"

// LevelChangeEntry overrides the level of the log statement at FileName:LineNum.
// FileName matches as a path suffix, so "net/channel.go" and "channel.go" both work.
type LevelChangeEntry struct {
	FileName string `mapstructure:"file"`
	LineNum  int    `mapstructure:"line"`
	LogLevel int    `mapstructure:"level"`
}

type levelChange struct {
	entries []LevelChangeEntry
}

func newLevelChange(entries []LevelChangeEntry) *levelChange {
	lc := &levelChange{}
	for _, e := range entries {
		if e.FileName == "" || e.LineNum <= 0 {
			continue
		}
		lc.entries = append(lc.entries, e)
	}
	return lc
}

// Empty reports whether there are no overrides.
func (lc *levelChange) Empty() bool {
	return lc == nil || len(lc.entries) == 0
}

// GetLevel returns the override for file:line, or level when none applies.
func (lc *levelChange) GetLevel(file string, line int, level Level) Level {
	if lc.Empty() {
		return level
	}
	for _, e := range lc.entries {
		if e.LineNum == line && strings.HasSuffix(file, e.FileName) {
			return Level(e.LogLevel)
		}
	}
	return level
}
