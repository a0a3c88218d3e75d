package m3u

import (
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/opentv/opentv/internal/catalog"
)

const extinfFull = `#EXTINF:-1 tvg-id="Amazing Channel" tvg-name="Amazing Channel" tvg-logo="http://myurl.local/logos/amazing/amazing-1.png" group-title="The Best Channels"`

func TestChannelFromLines(t *testing.T) {
	ch, err := ChannelFromLines(extinfFull, "http://myurl.local/1234/1234/1234", 7, true)
	if err != nil {
		t.Fatal(err)
	}
	if ch.Name != "Amazing Channel" {
		t.Errorf("name = %q", ch.Name)
	}
	if ch.GroupName == nil || *ch.GroupName != "The Best Channels" {
		t.Errorf("group = %v", ch.GroupName)
	}
	if ch.Image == nil || *ch.Image != "http://myurl.local/logos/amazing/amazing-1.png" {
		t.Errorf("image = %v", ch.Image)
	}
	if ch.MediaType != catalog.Livestream {
		t.Errorf("media type = %d", ch.MediaType)
	}
	if ch.SourceID != 7 {
		t.Errorf("source id = %d", ch.SourceID)
	}
}

func TestChannelFromLines_nameFallbacks(t *testing.T) {
	// Empty tvg-name falls back to tvg-id when it is preferred.
	ch, err := ChannelFromLines(
		`#EXTINF:-1 tvg-id="Amazing Channel" tvg-name="" group-title="The Best Channels",Display Name`,
		"http://myurl.local/1", 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if ch.Name != "Amazing Channel" {
		t.Errorf("name = %q, want tvg-id fallback", ch.Name)
	}

	// Without the preference, the display name after the comma wins.
	ch, err = ChannelFromLines(
		`#EXTINF:-1 tvg-id="Amazing Channel" tvg-name="" group-title="The Best Channels",Display Name`,
		"http://myurl.local/1", 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if ch.Name != "Display Name" {
		t.Errorf("name = %q, want display name", ch.Name)
	}

	// No name anywhere fails the block.
	if _, err := ChannelFromLines(
		`#EXTINF:-1 tvg-id="" tvg-name="" tvg-logo="http://myurl.local/x.png"`,
		"http://myurl.local/1", 0, true); !errors.Is(err, ErrNoName) {
		t.Errorf("err = %v, want ErrNoName", err)
	}

	// Whitespace-only captures count as absent.
	if _, err := ChannelFromLines(
		`#EXTINF:-1 tvg-id=" " tvg-name="" tvg-logo="http://myurl.local/x.png"`,
		"http://myurl.local/1", 0, true); !errors.Is(err, ErrNoName) {
		t.Errorf("err = %v, want ErrNoName", err)
	}
}

func TestMediaTypeFromURL(t *testing.T) {
	cases := map[string]catalog.MediaType{
		"http://host/movie.mp4": catalog.Movie,
		"http://host/movie.mkv": catalog.Movie,
		"http://host/live/99":   catalog.Livestream,
		"http://host/live.m3u8": catalog.Livestream,
	}
	for url, want := range cases {
		if got := MediaTypeFromURL(url); got != want {
			t.Errorf("MediaTypeFromURL(%q) = %d, want %d", url, got, want)
		}
	}
}

type recordingSink struct {
	channels []catalog.Channel
	headers  []*catalog.ChannelHTTPHeaders
	fail     map[string]bool // channel names the sink rejects
}

func (s *recordingSink) Channel(ch *catalog.Channel, h *catalog.ChannelHTTPHeaders) error {
	if s.fail[ch.Name] {
		return errors.New("sink rejected channel")
	}
	s.channels = append(s.channels, *ch)
	s.headers = append(s.headers, h)
	return nil
}

func TestParse(t *testing.T) {
	playlist := `#EXTM3U
#EXTINF:-1 tvg-name="One" group-title="News",One
http://host/one

#EXTINF:-1 tvg-name="Two" tvg-logo="http://host/two.png",Two
#EXTVLCOPT:http-user-agent=VLC/3.0
#EXTVLCOPT:http-referrer=http://host/
http://host/two.mp4
#EXTINF:-1 tvg-name="" tvg-id="",broken block
`
	sink := &recordingSink{}
	p := &Parser{SourceID: 3, PreferTvgID: true, Log: zerolog.Nop()}
	n, err := p.Parse(strings.NewReader(playlist), sink)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("committed = %d, want 2", n)
	}

	if sink.channels[0].Name != "One" || *sink.channels[0].URL != "http://host/one" {
		t.Errorf("first channel = %+v", sink.channels[0])
	}
	if sink.headers[0] != nil {
		t.Errorf("first channel should carry no headers")
	}

	if sink.channels[1].MediaType != catalog.Movie {
		t.Errorf("mp4 URL should classify as movie")
	}
	h := sink.headers[1]
	if h == nil || h.UserAgent == nil || *h.UserAgent != "VLC/3.0" {
		t.Fatalf("headers = %+v", h)
	}
	if h.Referrer == nil || *h.Referrer != "http://host/" {
		t.Errorf("referrer = %v", h.Referrer)
	}
}

func TestParse_lastBlockFlushedAtEOF(t *testing.T) {
	playlist := "#EXTM3U\n#EXTINF:-1 tvg-name=\"Tail\",Tail\nhttp://host/tail"
	sink := &recordingSink{}
	p := &Parser{Log: zerolog.Nop()}
	n, err := p.Parse(strings.NewReader(playlist), sink)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || sink.channels[0].Name != "Tail" {
		t.Fatalf("committed = %d, channels = %+v", n, sink.channels)
	}
}

func TestParse_sinkErrorSkipsOnlyThatChannel(t *testing.T) {
	playlist := `#EXTINF:-1 tvg-name="One",One
http://host/one
#EXTINF:-1 tvg-name="Two",Two
http://host/two
`
	sink := &recordingSink{fail: map[string]bool{"One": true}}
	p := &Parser{Log: zerolog.Nop()}
	n, err := p.Parse(strings.NewReader(playlist), sink)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(sink.channels) != 1 || sink.channels[0].Name != "Two" {
		t.Fatalf("committed = %d, channels = %+v", n, sink.channels)
	}
}

func TestParse_headerOnlyDirectiveIgnoredWithoutMatch(t *testing.T) {
	// An EXTVLCOPT line with no recognized key must not attach empty headers.
	playlist := `#EXTINF:-1 tvg-name="One",One
#EXTVLCOPT:network-caching=1000
http://host/one
`
	sink := &recordingSink{}
	p := &Parser{Log: zerolog.Nop()}
	if _, err := p.Parse(strings.NewReader(playlist), sink); err != nil {
		t.Fatal(err)
	}
	if sink.headers[0] != nil {
		t.Errorf("headers = %+v, want nil", sink.headers[0])
	}
}
