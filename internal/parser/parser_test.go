package parser

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedsync/internal/testutil"
)

const testRSSFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/" xmlns:content="http://purl.org/rss/1.0/modules/content/">
  <channel>
    <title>Test RSS Feed</title>
    <link>https://example.com</link>
    <item>
      <title>RSS Post One</title>
      <link>https://example.com/post-1</link>
      <guid>rss-guid-1</guid>
      <author>jane@example.com (Jane Doe)</author>
      <description>First RSS post description</description>
      <content:encoded><![CDATA[<p>Full <b>content</b> one</p><script>alert("x")</script><style>p{}</style><p>second paragraph</p>]]></content:encoded>
      <pubDate>Mon, 01 Jan 2024 12:00:00 GMT</pubDate>
      <enclosure url="https://example.com/cover.jpg" type="image/jpeg" length="100"/>
      <media:thumbnail url="https://example.com/thumb.jpg"/>
    </item>
    <item>
      <title>RSS Post Two</title>
      <link>https://example.com/post-2</link>
      <guid>rss-guid-2</guid>
      <description><![CDATA[<p>Second post <img src="https://example.com/inline.png"/></p>]]></description>
      <pubDate>Tue, 02 Jan 2024 12:00:00 GMT</pubDate>
      <media:thumbnail url="https://example.com/thumb-2.jpg"/>
    </item>
    <item>
      <title>RSS Post Three</title>
      <link>https://example.com/post-3</link>
      <description><![CDATA[<div>Only inline <img src="https://example.com/inline-3.png"></div>]]></description>
    </item>
  </channel>
</rss>`

const testAtomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Test Atom Feed</title>
  <link href="https://example.com" rel="alternate"/>
  <entry>
    <title>Atom Post One</title>
    <id>atom-id-1</id>
    <link href="https://example.com/atom-1" rel="alternate"/>
    <summary>First Atom post summary</summary>
    <updated>2024-01-01T12:00:00Z</updated>
  </entry>
</feed>`

func newTestParser(opts Options) *Parser {
	p := New(opts, testutil.DiscardLogger())
	p.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	return p
}

func collect(t *testing.T, p *Parser, body string) []Entry {
	t.Helper()
	seq, err := p.Parse([]byte(body))
	require.NoError(t, err)

	var entries []Entry
	for e := range seq {
		entries = append(entries, e)
	}
	return entries
}

func TestParse_RSS(t *testing.T) {
	entries := collect(t, newTestParser(Options{}), testRSSFeed)
	require.Len(t, entries, 3)

	first, ok := entries[0].(Complete)
	require.True(t, ok, "first entry should be complete")
	assert.Equal(t, "rss-guid-1", first.GUID)
	assert.Equal(t, "RSS Post One", first.Title)
	assert.Equal(t, "https://example.com/post-1", first.Link)
	assert.Equal(t, time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), first.PublishedAt)
	require.NotNil(t, first.Content)
	assert.Equal(t, "Full content one second paragraph", *first.Content)
	assert.NotContains(t, *first.Content, "alert")
	require.NotNil(t, first.ImageURL)
	assert.Equal(t, "https://example.com/cover.jpg", *first.ImageURL)
	require.NotNil(t, first.Author)
	assert.Equal(t, "Jane Doe", *first.Author)

	second := entries[1].Data()
	require.NotNil(t, second.ImageURL)
	assert.Equal(t, "https://example.com/thumb-2.jpg", *second.ImageURL)
	require.NotNil(t, second.Content)
	assert.Equal(t, "Second post", *second.Content)
}

func TestParse_SynthesizedDefaults(t *testing.T) {
	entries := collect(t, newTestParser(Options{}), testRSSFeed)
	require.Len(t, entries, 3)

	third, ok := entries[2].(Synthesized)
	require.True(t, ok, "third entry has neither guid nor date")
	assert.True(t, third.Has(DefaultGUID))
	assert.True(t, third.Has(DefaultPublished))
	assert.False(t, third.Has(DefaultTitle))
	assert.Len(t, third.GUID, 64)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), third.PublishedAt)
	require.NotNil(t, third.ImageURL)
	assert.Equal(t, "https://example.com/inline-3.png", *third.ImageURL)

	// The fallback identifier is stable across parses.
	again := collect(t, newTestParser(Options{}), testRSSFeed)
	assert.Equal(t, third.GUID, again[2].Data().GUID)
}

func TestParse_Atom(t *testing.T) {
	entries := collect(t, newTestParser(Options{}), testAtomFeed)
	require.Len(t, entries, 1)

	e := entries[0].Data()
	assert.Equal(t, "atom-id-1", e.GUID)
	assert.Equal(t, "https://example.com/atom-1", e.Link)
	require.NotNil(t, e.Content)
	assert.Equal(t, "First Atom post summary", *e.Content)
	assert.Nil(t, e.ImageURL)
	assert.IsType(t, Complete{}, entries[0])
}

func TestParse_MaxArticles(t *testing.T) {
	entries := collect(t, newTestParser(Options{MaxArticlesPerFeed: 2}), testRSSFeed)
	assert.Len(t, entries, 2)
}

func TestParse_NotRestartable(t *testing.T) {
	seq, err := newTestParser(Options{}).Parse([]byte(testRSSFeed))
	require.NoError(t, err)

	n := 0
	for range seq {
		n++
	}
	assert.Equal(t, 3, n)

	for range seq {
		t.Fatal("second iteration should yield nothing")
	}
}

func TestParse_SkipsEmptyEntries(t *testing.T) {
	body := `<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>
<item><guid>only-guid</guid></item>
<item><title>Kept</title><link>https://example.com/kept</link></item>
</channel></rss>`

	entries := collect(t, newTestParser(Options{}), body)
	require.Len(t, entries, 1)
	assert.Equal(t, "Kept", entries[0].Data().Title)
}

func TestParse_Malformed(t *testing.T) {
	_, err := newTestParser(Options{}).Parse([]byte("this is not a feed"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)

	_, err = newTestParser(Options{}).Parse(nil)
	assert.ErrorIs(t, err, ErrParse)
}

func TestExcerpt(t *testing.T) {
	short := "short text"
	assert.Equal(t, short, excerpt(short, ExcerptLength))

	long := strings.Repeat("é", 250)
	got := excerpt(long, ExcerptLength)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, ExcerptLength+3, len([]rune(got)))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "Tom & Jerry", sanitize("  <b>Tom</b> &amp; Jerry "))
	assert.Equal(t, "", sanitize("<i></i>"))
}

func TestLooksLikeImage(t *testing.T) {
	assert.True(t, looksLikeImage("https://example.com/a.PNG?w=100"))
	assert.False(t, looksLikeImage("https://example.com/episode.mp3"))
}
