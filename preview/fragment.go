package preview

import (
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"quicknav/dom"
)

// ErrNoContentRegion is returned when a fetched page has no element with
// the content region id.
var ErrNoContentRegion = errors.New("content region not found")

// Policy names the optional second sanitising pass.
type Policy string

const (
	// PolicyNone only strips active elements and rewrites urls.
	PolicyNone Policy = ""
	// PolicyUGC also runs the fragment through bluemonday's UGC policy.
	PolicyUGC Policy = "ugc"
)

// ExtractContent returns a detached copy of the element with id contentID.
func ExtractContent(doc *html.Node, contentID string) (*html.Node, error) {
	n := dom.FindByID(doc, contentID)
	if n == nil {
		return nil, ErrNoContentRegion
	}
	return dom.Clone(n), nil
}

// Sanitize strips script, iframe and video elements from frag and rewrites
// relative img src and a href attributes against base. Absolute urls and
// in-page anchors are left as they are.
func Sanitize(frag *html.Node, base *url.URL, policy Policy) {
	sel := goquery.NewDocumentFromNode(frag).Selection
	sel.Find("script, iframe, video").Remove()

	rewrite := func(attr string) func(int, *goquery.Selection) {
		return func(_ int, s *goquery.Selection) {
			val, ok := s.Attr(attr)
			if !ok {
				return
			}
			if abs, changed := absolutize(base, val); changed {
				s.SetAttr(attr, abs)
			}
		}
	}
	sel.Find("img[src]").Each(rewrite("src"))
	sel.Find("a[href]").Each(rewrite("href"))

	if policy == PolicyUGC {
		applyUGC(frag)
	}
}

func absolutize(base *url.URL, val string) (string, bool) {
	v := strings.TrimSpace(val)
	if v == "" || strings.HasPrefix(v, "#") {
		return val, false
	}
	ref, err := url.Parse(v)
	if err != nil || ref.IsAbs() {
		return val, false
	}
	abs, err := dom.Resolve(base, v)
	if err != nil {
		return val, false
	}
	return abs.String(), true
}

var ugc = bluemonday.UGCPolicy()

// applyUGC replaces frag's children with their bluemonday-cleaned form.
// The wrapper element itself is kept.
func applyUGC(frag *html.Node) {
	clean := ugc.Sanitize(dom.InnerHTML(frag))
	nodes, err := dom.ParseFragment(clean)
	if err != nil {
		dom.RemoveChildren(frag)
		return
	}
	dom.RemoveChildren(frag)
	for _, n := range nodes {
		dom.Detach(n)
		frag.AppendChild(n)
	}
}
