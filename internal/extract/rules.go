package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// rule selects a candidate value from the page. An empty attr reads the
// element's trimmed text.
type rule struct {
	selector string
	attr     string
}

var (
	metaDescriptionRules = []rule{
		{`meta[name="description"]`, "content"},
		{`meta[property="og:description"]`, "content"},
	}
	ogImageRules = []rule{
		{`meta[property="og:image"]`, "content"},
		{`meta[property="og:image:secure_url"]`, "content"},
	}
	shortDescriptionRules = []rule{
		{".product-description", ""},
		{".product__description", ""},
		{`[class*="description"]`, ""},
	}
)

const shortDescriptionLimit = 200

// firstMatch returns the first non-empty value produced by rules, in order.
func firstMatch(doc *goquery.Document, rules []rule) string {
	for _, r := range rules {
		sel := doc.Find(r.selector).First()
		var v string
		if r.attr == "" {
			v = strings.TrimSpace(sel.Text())
		} else {
			v, _ = sel.Attr(r.attr)
		}
		if v != "" {
			return v
		}
	}
	return ""
}

// firstNonEmpty is the same precedence rule applied to already known values.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

type pageMeta struct {
	MetaDescription  string
	OGImage          string
	ShortDescription string
}

func parsePage(doc *goquery.Document) pageMeta {
	return pageMeta{
		MetaDescription:  firstMatch(doc, metaDescriptionRules),
		OGImage:          firstMatch(doc, ogImageRules),
		ShortDescription: truncate(firstMatch(doc, shortDescriptionRules), shortDescriptionLimit),
	}
}
