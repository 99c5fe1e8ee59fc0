package crawl

import (
	"fmt"
	"net/url"
	"strings"
)

// Mode selects the crawl shape. Single mode narrows the bounds to one page
// at depth zero; it is not a separate traversal path.
type Mode int

const (
	ModeFull Mode = iota
	ModeSingle
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full":
		return ModeFull, nil
	case "single":
		return ModeSingle, nil
	default:
		return ModeFull, fmt.Errorf("unknown crawl mode %q (want single or full)", s)
	}
}

func (m Mode) String() string {
	if m == ModeSingle {
		return "single"
	}
	return "full"
}

// canonicalURL normalizes a URL for frontier dedup: lowercased host, no
// fragment, trailing slash trimmed, bare path represented as "/". Query
// strings are preserved.
func canonicalURL(u *url.URL) string {
	c := *u
	c.Host = strings.ToLower(c.Host)
	c.Fragment = ""
	c.RawFragment = ""
	c.Path = strings.TrimRight(c.Path, "/")
	if c.Path == "" {
		c.Path = "/"
	}
	return c.String()
}

// binarySuffixes are file types never worth fetching for text content.
var binarySuffixes = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".ico",
	".zip", ".gz", ".tar", ".exe", ".dmg", ".mp3", ".mp4", ".avi", ".webm",
}

type linkVerdict int

const (
	linkOK linkVerdict = iota
	rejectScheme
	rejectDomain
	rejectPattern
	rejectBinary
)

// linkFilter applies the frontier admission rules: http(s) scheme, seed
// domain when sameDomainOnly, configured exclude patterns (case-insensitive
// substring match against the whole URL, which also covers suffix patterns
// like ".pdf"), and a built-in binary extension list.
type linkFilter struct {
	seedHost       string
	sameDomainOnly bool
	exclude        []string
}

func newLinkFilter(seed *url.URL, sameDomainOnly bool, patterns []string) *linkFilter {
	f := &linkFilter{
		seedHost:       strings.ToLower(seed.Host),
		sameDomainOnly: sameDomainOnly,
	}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			f.exclude = append(f.exclude, p)
		}
	}
	return f
}

func (f *linkFilter) check(u *url.URL) linkVerdict {
	if u.Scheme != "http" && u.Scheme != "https" {
		return rejectScheme
	}
	if f.sameDomainOnly && strings.ToLower(u.Host) != f.seedHost {
		return rejectDomain
	}
	lower := strings.ToLower(u.String())
	for _, p := range f.exclude {
		if strings.Contains(lower, p) {
			return rejectPattern
		}
	}
	path := strings.ToLower(u.Path)
	for _, suffix := range binarySuffixes {
		if strings.HasSuffix(path, suffix) {
			return rejectBinary
		}
	}
	return linkOK
}
