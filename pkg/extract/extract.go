// Package extract finds the same-origin assets of a parsed page and points their
// references at the local copies.
package extract

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Sriram-PR/page-loader/pkg/models"
	"github.com/Sriram-PR/page-loader/pkg/naming"
	"github.com/Sriram-PR/page-loader/pkg/parse"
	"github.com/Sriram-PR/page-loader/pkg/utils"
)

// ResourceAttrs maps each asset-bearing element to the attribute holding its URL
var ResourceAttrs = map[string]string{
	"link":   "href",
	"script": "src",
	"img":    "src",
}

// assetSelector matches every element in ResourceAttrs carrying its attribute,
// in document order
var assetSelector = buildSelector()

func buildSelector() string {
	// Fixed order keeps the selector stable across runs
	tags := []string{"link", "script", "img"}
	parts := make([]string, 0, len(tags))
	for _, tag := range tags {
		parts = append(parts, fmt.Sprintf("%s[%s]", tag, ResourceAttrs[tag]))
	}
	return strings.Join(parts, ", ")
}

// ExtractFromReader parses r as HTML and runs Extract over it
// The returned document carries the rewritten references.
func ExtractFromReader(r io.Reader, pageURL *url.URL, assetsDirName string) (*goquery.Document, []models.AssetReference, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: HTML of '%s': %w", utils.ErrParsing, pageURL, err)
	}
	return doc, Extract(doc, pageURL, assetsDirName), nil
}

// Extract collects the same-origin assets of doc and rewrites each reference in
// place to assetsDirName/<local name>. Elements whose value is empty, unparsable,
// non-http(s) or cross-origin are left untouched. References come back in
// document order, one per element, so a URL used twice appears twice.
func Extract(doc *goquery.Document, pageURL *url.URL, assetsDirName string) []models.AssetReference {
	var assets []models.AssetReference

	doc.Find(assetSelector).Each(func(_ int, el *goquery.Selection) {
		tag := goquery.NodeName(el)
		attr, ok := ResourceAttrs[tag]
		if !ok {
			return
		}
		raw, _ := el.Attr(attr)
		resolved, ok := resolve(pageURL, raw)
		if !ok {
			return
		}

		localName := naming.LocalName(resolved)
		localPath := naming.AssetPath(assetsDirName, localName)
		el.SetAttr(attr, localPath)

		assets = append(assets, models.AssetReference{
			OriginalURL:   raw,
			ResolvedURL:   resolved,
			Tag:           tag,
			Attr:          attr,
			LocalFileName: localName,
			LocalPath:     localPath,
			Element:       el,
		})
	})
	return assets
}

// resolve turns an attribute value into an absolute same-origin http(s) URL
func resolve(pageURL *url.URL, raw string) (*url.URL, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, false
	}
	u, err := pageURL.Parse(value)
	if err != nil {
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	if !parse.SameOrigin(pageURL, u) {
		return nil, false
	}
	return u, true
}
