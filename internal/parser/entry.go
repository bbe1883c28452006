package parser

import "time"

// EntryData is the normalized content of one feed entry.
type EntryData struct {
	GUID        string
	Title       string
	Link        string
	Author      *string
	PublishedAt time.Time
	Content     *string
	Excerpt     *string
	ImageURL    *string
}

// Entry is either a Complete entry or a Synthesized one.
type Entry interface {
	Data() EntryData
	isEntry()
}

// Complete is an entry where every required field came from the feed.
type Complete struct {
	EntryData
}

func (c Complete) Data() EntryData { return c.EntryData }
func (Complete) isEntry()          {}

// Default names a field the parser had to fill in.
type Default string

const (
	DefaultGUID      Default = "guid"
	DefaultTitle     Default = "title"
	DefaultPublished Default = "published"
)

// Synthesized is an entry with at least one generated field.
type Synthesized struct {
	EntryData
	Defaults []Default
}

func (s Synthesized) Data() EntryData { return s.EntryData }
func (Synthesized) isEntry()          {}

// Has reports whether d was synthesized.
func (s Synthesized) Has(d Default) bool {
	for _, x := range s.Defaults {
		if x == d {
			return true
		}
	}
	return false
}
