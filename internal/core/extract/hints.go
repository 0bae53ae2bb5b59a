package extract

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/waypointhq/waypoint/internal/core/fallback"
)

var (
	bookingLangSuffix = regexp.MustCompile(`(?i)\.[a-z]{2}(-[a-z]{2})?\.html$`)
	htmlSuffix        = regexp.MustCompile(`(?i)\.html$`)
	pageSuffix        = regexp.MustCompile(`(?i)\.(html?|php|aspx?)$`)
	stfWord           = regexp.MustCompile(`\bStf\b`)
	htlWord           = regexp.MustCompile(`(?i)\bHtl\b`)
)

// URLHints derives what can be known from the URL alone for sites whose
// paths carry the property name. Only booking.com hotel pages qualify today.
func URLHints(u *url.URL) Link {
	if u == nil || !strings.Contains(strings.ToLower(u.Hostname()), "booking.com") {
		return Link{}
	}
	hint := Link{SiteName: fallback.Some("Booking.com")}
	for _, segment := range strings.Split(u.Path, "/") {
		if !strings.HasSuffix(strings.ToLower(segment), ".html") {
			continue
		}
		id := bookingLangSuffix.ReplaceAllString(segment, "")
		id = htmlSuffix.ReplaceAllString(id, "")
		if len(id) > 2 {
			title := titleCase(strings.Split(id, "-"))
			title = stfWord.ReplaceAllString(title, "STF")
			title = htlWord.ReplaceAllString(title, "Hotel")
			hint.Title = fallback.Some(title)
		}
		break
	}
	return hint
}

// URLFallback builds a title and description from the host and last path
// segment. It is the last resort when no page could be read.
func URLFallback(u *url.URL) Link {
	if u == nil {
		return Link{}
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return Link{}
	}

	title := host
	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if len(s) > 2 {
			segments = append(segments, s)
		}
	}
	if len(segments) > 0 {
		last, err := url.PathUnescape(path.Base("/" + segments[len(segments)-1]))
		if err != nil {
			last = segments[len(segments)-1]
		}
		last = pageSuffix.ReplaceAllString(last, "")
		last = strings.NewReplacer("-", " ", "_", " ").Replace(last)
		if candidate := titleCase(strings.Fields(last)); len(candidate) > 3 {
			title = candidate
		}
	}

	return Link{
		Title:       fallback.Some(title),
		Description: fallback.Some("Link from " + host),
		SiteName:    fallback.Some(host),
	}
}

func titleCase(words []string) string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		out = append(out, strings.ToUpper(w[:1])+w[1:])
	}
	return strings.Join(out, " ")
}
