package m3u

import (
	"errors"
	"regexp"
	"strings"

	"github.com/opentv/opentv/internal/catalog"
)

var (
	nameRe    = regexp.MustCompile(`tvg-name="([^"]*)"`)
	nameAltRe = regexp.MustCompile(`,([^\n\r\t]*)`)
	idRe      = regexp.MustCompile(`tvg-id="([^"]*)"`)
	logoRe    = regexp.MustCompile(`tvg-logo="([^"]*)"`)
	groupRe   = regexp.MustCompile(`group-title="([^"]*)"`)

	httpOriginRe    = regexp.MustCompile(`http-origin=(.+)`)
	httpReferrerRe  = regexp.MustCompile(`http-referrer=(.+)`)
	httpUserAgentRe = regexp.MustCompile(`http-user-agent=(.+)`)
)

// ErrNoName is returned when an EXTINF line carries no usable channel name in
// any of tvg-name, tvg-id, or the display name after the last comma.
var ErrNoName = errors.New("no channel name in tvg-name, tvg-id or display name")

// firstNonEmpty returns re's first capture from line, or nil when the capture
// is missing, empty, or whitespace-only.
func firstNonEmpty(re *regexp.Regexp, line string) *string {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	if strings.TrimSpace(m[1]) == "" {
		return nil
	}
	return &m[1]
}

// ChannelFromLines builds a channel from an EXTINF line and the URL line that
// closes its block. Name resolution prefers tvg-name; the fallback order
// between tvg-id and the post-comma display name is controlled by preferTvgID.
func ChannelFromLines(extinf, urlLine string, sourceID int64, preferTvgID bool) (*catalog.Channel, error) {
	urlLine = strings.TrimSpace(urlLine)
	if urlLine == "" {
		return nil, errors.New("channel block has no URL line")
	}
	name := firstNonEmpty(nameRe, extinf)
	if name == nil {
		if preferTvgID {
			name = firstNonEmpty(idRe, extinf)
			if name == nil {
				name = firstNonEmpty(nameAltRe, extinf)
			}
		} else {
			name = firstNonEmpty(nameAltRe, extinf)
			if name == nil {
				name = firstNonEmpty(idRe, extinf)
			}
		}
	}
	if name == nil {
		return nil, ErrNoName
	}
	ch := &catalog.Channel{
		Name:      strings.TrimSpace(*name),
		URL:       &urlLine,
		MediaType: MediaTypeFromURL(urlLine),
		SourceID:  sourceID,
	}
	if g := firstNonEmpty(groupRe, extinf); g != nil {
		ch.GroupName = catalog.StrPtr(strings.TrimSpace(*g))
	}
	if img := firstNonEmpty(logoRe, extinf); img != nil {
		ch.Image = catalog.StrPtr(strings.TrimSpace(*img))
	}
	return ch, nil
}

// MediaTypeFromURL classifies a playlist URL. Container file extensions mean
// VOD; everything else is treated as a live stream.
func MediaTypeFromURL(url string) catalog.MediaType {
	if strings.HasSuffix(url, ".mp4") || strings.HasSuffix(url, ".mkv") {
		return catalog.Movie
	}
	return catalog.Livestream
}

// applyHeaderLine parses one #EXTVLCOPT directive into h. It reports whether
// the line populated a known header field.
func applyHeaderLine(line string, h *catalog.ChannelHTTPHeaders) bool {
	if v := firstNonEmpty(httpOriginRe, line); v != nil {
		h.HTTPOrigin = v
		return true
	}
	if v := firstNonEmpty(httpReferrerRe, line); v != nil {
		h.Referrer = v
		return true
	}
	if v := firstNonEmpty(httpUserAgentRe, line); v != nil {
		h.UserAgent = v
		return true
	}
	return false
}
