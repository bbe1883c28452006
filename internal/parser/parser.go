// Package parser turns raw syndication documents into normalized entries.
package parser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
)

const (
	ExcerptLength = 200
	untitled      = "Untitled"
)

var (
	ErrParse      = errors.New("parse feed")
	errEmptyEntry = errors.New("entry has no title, link or content")
)

type Options struct {
	// Zero means no limit.
	MaxArticlesPerFeed int
}

type Parser struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

func New(opts Options, logger *slog.Logger) *Parser {
	return &Parser{
		opts:   opts,
		logger: logger.With("component", "parser"),
		now:    time.Now,
	}
}

// Parse decodes body and returns its entries as a lazy sequence. The sequence
// can be ranged over once; later iterations yield nothing. Entries that cannot
// be normalized are logged and skipped.
func (p *Parser) Parse(body []byte) (iter.Seq[Entry], error) {
	// gofeed parsers keep per-document state, so one per call.
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	var consumed atomic.Bool
	return func(yield func(Entry) bool) {
		if consumed.Swap(true) {
			return
		}

		yielded := 0
		for i, item := range feed.Items {
			if p.opts.MaxArticlesPerFeed > 0 && yielded >= p.opts.MaxArticlesPerFeed {
				return
			}

			entry, err := p.normalize(item)
			if err != nil {
				p.logger.Warn("skipping entry", "index", i, "error", err)
				continue
			}

			yielded++
			if !yield(entry) {
				return
			}
		}
	}, nil
}

func (p *Parser) normalize(item *gofeed.Item) (Entry, error) {
	if item == nil {
		return nil, errEmptyEntry
	}

	var defaults []Default
	data := EntryData{
		Title: sanitize(item.Title),
		Link:  strings.TrimSpace(item.Link),
	}
	if data.Link == "" && len(item.Links) > 0 {
		data.Link = strings.TrimSpace(item.Links[0])
	}

	rawContent := firstNonEmpty(item.Content, item.Description, itunesSummary(item))
	if data.Title == "" && data.Link == "" && strings.TrimSpace(rawContent) == "" {
		return nil, errEmptyEntry
	}

	data.GUID = strings.TrimSpace(item.GUID)
	if data.GUID == "" {
		data.GUID = fallbackGUID(data.Title, data.Link, firstNonEmpty(item.Published, item.Updated))
		defaults = append(defaults, DefaultGUID)
	}

	if data.Title == "" {
		data.Title = untitled
		defaults = append(defaults, DefaultTitle)
	}

	switch {
	case item.PublishedParsed != nil:
		data.PublishedAt = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		data.PublishedAt = item.UpdatedParsed.UTC()
	default:
		data.PublishedAt = p.now().UTC()
		defaults = append(defaults, DefaultPublished)
	}

	data.Author = author(item)

	if rawContent != "" {
		if text := htmlToText(rawContent); text != "" {
			data.Content = &text
			ex := excerpt(text, ExcerptLength)
			data.Excerpt = &ex
		}
	}

	data.ImageURL = imageURL(item, item.Content, item.Description)

	if len(defaults) > 0 {
		return Synthesized{EntryData: data, Defaults: defaults}, nil
	}
	return Complete{EntryData: data}, nil
}

// fallbackGUID derives a stable identifier from the fields most likely to
// survive refetches.
func fallbackGUID(title, link, date string) string {
	sum := sha256.Sum256([]byte(title + "\n" + link + "\n" + date))
	return hex.EncodeToString(sum[:])
}

func author(item *gofeed.Item) *string {
	var name string
	switch {
	case len(item.Authors) > 0 && item.Authors[0] != nil:
		name = item.Authors[0].Name
	case item.Author != nil:
		name = item.Author.Name
	case item.DublinCoreExt != nil && len(item.DublinCoreExt.Creator) > 0:
		name = item.DublinCoreExt.Creator[0]
	}

	name = sanitize(name)
	if name == "" {
		return nil
	}
	return &name
}

func itunesSummary(item *gofeed.Item) string {
	if item.ITunesExt == nil {
		return ""
	}
	return item.ITunesExt.Summary
}

var stripPolicy = bluemonday.StrictPolicy()

// Removes all markup from short fields such as titles and author names.
func sanitize(s string) string {
	s = stripPolicy.Sanitize(strings.TrimSpace(s))
	return strings.Join(strings.Fields(html.UnescapeString(s)), " ")
}

func excerpt(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return strings.TrimSpace(string(r[:limit])) + "..."
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
