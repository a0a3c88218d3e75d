// Package m3u parses extended M3U playlists into catalog channels. The parser
// is a line-driven state machine: an #EXTINF line opens a channel block,
// #EXTVLCOPT lines accumulate HTTP header directives, and the last non-empty
// line before the next #EXTINF (or EOF) closes the block as its playback URL.
package m3u

import (
	"bufio"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/opentv/opentv/internal/catalog"
)

const maxLineSize = 1 << 20 // 1 MiB per line

// Sink receives each parsed channel. headers is nil when the block carried no
// recognized #EXTVLCOPT directive. Implementations persist the channel; the
// parser itself never touches storage.
type Sink interface {
	Channel(ch *catalog.Channel, headers *catalog.ChannelHTTPHeaders) error
}

// Parser converts one playlist into channel rows on a Sink.
type Parser struct {
	SourceID    int64
	PreferTvgID bool
	Log         zerolog.Logger
}

// Parse reads the playlist from r and emits every parseable channel to sink.
// A malformed block (or a sink failure for one channel) is logged and skipped;
// only an unreadable stream fails the parse. Returns the number of channels
// emitted.
func (p *Parser) Parse(r io.Reader, sink Sink) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)

	var (
		extinfLine   string
		haveExtinf   bool
		headers      *catalog.ChannelHTTPHeaders
		headersSet   bool
		lastNonEmpty string
		lineNum      int
		committed    int
	)

	commit := func() {
		if !haveExtinf {
			return
		}
		h := headers
		if !headersSet {
			h = nil
		}
		if p.commitBlock(sink, extinfLine, lastNonEmpty, h, lineNum) {
			committed++
		}
		haveExtinf = false
		headers = nil
		headersSet = false
		lastNonEmpty = ""
	}

	for sc.Scan() {
		lineNum++
		line := sc.Text()
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "#EXTINF"):
			commit()
			extinfLine = line
			haveExtinf = true
		case strings.HasPrefix(upper, "#EXTVLCOPT"):
			if headers == nil {
				headers = &catalog.ChannelHTTPHeaders{}
			}
			if applyHeaderLine(line, headers) {
				headersSet = true
			}
		default:
			if strings.TrimSpace(line) != "" {
				lastNonEmpty = line
			}
		}
	}
	if err := sc.Err(); err != nil {
		return committed, err
	}
	commit()
	return committed, nil
}

func (p *Parser) commitBlock(sink Sink, extinf, urlLine string, headers *catalog.ChannelHTTPHeaders, lineNum int) bool {
	ch, err := ChannelFromLines(extinf, urlLine, p.SourceID, p.PreferTvgID)
	if err != nil {
		p.Log.Warn().Err(err).Int("line", lineNum).Msg("skipping channel block")
		return false
	}
	if err := sink.Channel(ch, headers); err != nil {
		p.Log.Warn().Err(err).Str("channel", ch.Name).Int("line", lineNum).Msg("failed to store channel")
		return false
	}
	return true
}
