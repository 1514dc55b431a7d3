package adapters

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/source-registry/internal/domain"
	"github.com/jonesrussell/north-cloud/source-registry/internal/fetcher"
	"github.com/jonesrussell/north-cloud/source-registry/internal/toc"
)

// classifyFunc picks a node type from the entry title, its depth and whether
// it has children.
type classifyFunc func(title string, depth int, hasChildren bool) domain.NodeType

// walkList adds every <li> of a nested <ul>/<ol> to b in document order.
// An item without a link still becomes a node (a heading for its children).
func walkList(list *goquery.Selection, pageURL, parentID string, depth int, b *toc.Builder, classify classifyFunc) {
	list.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		link := li.ChildrenFiltered("a").First()
		if link.Length() == 0 {
			// some themes wrap the anchor in a div or span
			link = li.Children().Not("ul, ol").Find("a").First()
		}

		title := itemTitle(li, link)
		if title == "" {
			return
		}

		href, _ := link.Attr("href")
		nested := li.ChildrenFiltered("ul, ol")
		if nested.Length() == 0 {
			nested = li.Children().Not("a").ChildrenFiltered("ul, ol")
		}

		id := b.Add(parentID, title, fetcher.ResolveURL(pageURL, href), classify(title, depth, nested.Length() > 0))
		nested.Each(func(_ int, sub *goquery.Selection) {
			walkList(sub, pageURL, id, depth+1, b, classify)
		})
	})
}

func itemTitle(li, link *goquery.Selection) string {
	if link.Length() > 0 {
		return strings.Join(strings.Fields(link.Text()), " ")
	}
	own := li.Clone()
	own.Find("ul, ol").Remove()
	return strings.Join(strings.Fields(own.Text()), " ")
}

// firstMatch returns the first selection that matches one of selectors.
func firstMatch(doc *goquery.Document, selectors ...string) *goquery.Selection {
	for _, sel := range selectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return nil
}

// depthClassifier maps depth to chapter/section/subsection, leaving deeper
// levels as other.
func depthClassifier(_ string, depth int, _ bool) domain.NodeType {
	switch depth {
	case 0:
		return domain.NodeTypeChapter
	case 1:
		return domain.NodeTypeSection
	case 2:
		return domain.NodeTypeSubsection
	default:
		return domain.NodeTypeOther
	}
}
