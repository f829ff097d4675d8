// Package extraction turns a trim's detail page into one typed row. The
// dictionary drives everything: which phrases to look for, which output
// column they feed, and what type the captured value must become. Fields
// that cannot be parsed stay absent; a row never carries a sentinel or a
// wrongly typed value.
package extraction

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/dictionary"
)

// Price columns involved in the post-fill rule. The source only lists a
// market price when it diverges from the official one.
const (
	officialPriceColumn = "Official_Price_EGP"
	marketPriceColumn   = "Market_Price_EGP"
)

// pricePatterns are tight, high-precision patterns for the money fields.
// They run before the general dictionary scan because these values feed
// downstream ordering and filtering and must not be polluted by loose
// matches. Keys must still exist in the dictionary to take effect.
var pricePatterns = map[string]*regexp.Regexp{
	"official price":      regexp.MustCompile(`official price[:\s]*(\d+(?:,\d+)*)\s*egp`),
	"market price":        regexp.MustCompile(`market price[:\s]*(\d+(?:,\d+)*)\s*egp`),
	"minimum deposit":     regexp.MustCompile(`minimum deposit[:\s]*(\d+(?:,\d+)*)\s*egp`),
	"minimum installment": regexp.MustCompile(`minimum installment[:\s]*(\d+(?:,\d+)*)\s*egp`),
}

// Row is one trim's extracted record. Fields holds only the columns that
// were actually found; values are int64, float64, bool or string per the
// column's declared kind.
type Row struct {
	Brand  string
	Model  string
	Trim   string
	Fields map[string]any
}

func newRow(brand, model, trim string) *Row {
	return &Row{Brand: brand, Model: model, Trim: trim, Fields: make(map[string]any)}
}

// Engine extracts rows using a fixed dictionary. Matchers are compiled
// once at construction, in the dictionary's longest-key-first scan order.
type Engine struct {
	dict     *dictionary.Dictionary
	matchers []matcher
}

func NewEngine(dict *dictionary.Dictionary) *Engine {
	order := dict.ScanOrder()
	matchers := make([]matcher, 0, len(order))
	for _, m := range order {
		matchers = append(matchers, newMatcher(m))
	}
	return &Engine{dict: dict, matchers: matchers}
}

// Extract builds the row for one trim detail page. Later passes may refine
// a value an earlier pass set; the dictionary's scan order decides
// precedence within each pass.
func (e *Engine) Extract(doc *goquery.Document, brand, model, trim string) *Row {
	row := newRow(brand, model, trim)
	text := strings.ToLower(doc.Text())

	e.scanPrices(text, row)
	e.scanTableCells(doc, row)
	e.scanText(text, row)
	e.scanSections(doc, row)
	e.scanTableRows(doc, row)

	return row
}

// scanPrices applies the high-precision money patterns against the whole
// page text.
func (e *Engine) scanPrices(text string, row *Row) {
	for phrase, re := range pricePatterns {
		mapping, ok := e.dict.Lookup(phrase)
		if !ok {
			continue
		}
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		e.setConverted(row, mapping, strings.ReplaceAll(m[1], ",", ""))
	}
}

// scanTableCells walks every table cell looking for a dictionary key in the
// cell text; the value candidate is the next sibling cell, or the cell
// itself when it has no sibling.
func (e *Engine) scanTableCells(doc *goquery.Document, row *Row) {
	doc.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
		text := strings.ToLower(strings.TrimSpace(cell.Text()))
		if text == "" {
			return
		}
		for _, m := range e.matchers {
			if !strings.Contains(text, m.mapping.Key) {
				continue
			}
			value := text
			if next := cell.NextAllFiltered("td, th").First(); next.Length() > 0 {
				value = strings.TrimSpace(next.Text())
			}
			e.setConverted(row, m.mapping, value)
			break
		}
	})
}

// scanText runs the full dictionary against the page text, longest key
// first. For bool mappings presence of the key is the value; everything
// else captures through the mapping's compiled pattern.
func (e *Engine) scanText(text string, row *Row) {
	for _, m := range e.matchers {
		if !strings.Contains(text, m.mapping.Key) {
			continue
		}
		if m.mapping.Kind == dictionary.KindBool {
			row.Fields[m.mapping.Column] = true
			continue
		}

		capture := m.re.FindStringSubmatch(text)
		if capture == nil {
			continue
		}
		value := strings.TrimSpace(capture[1])
		if !m.fullValue {
			if fields := strings.Fields(value); len(fields) > 0 {
				value = fields[0]
			}
		}
		e.setConverted(row, m.mapping, strings.ReplaceAll(value, ",", ""))
	}
}

var sectionKeywords = []string{"description", "equipment", "specification", "feature"}

// scanSections finds the equipment and specification sections by heading
// and rescans their descendant elements, catching features the main text
// scan misses because of markup nesting.
func (e *Engine) scanSections(doc *goquery.Document, row *Row) {
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, heading *goquery.Selection) {
		title := strings.ToLower(heading.Text())
		matched := false
		for _, kw := range sectionKeywords {
			if strings.Contains(title, kw) {
				matched = true
				break
			}
		}
		if !matched {
			return
		}

		section := heading.Parent()
		if section.Length() == 0 {
			section = heading.Next()
		}
		if section.Length() == 0 {
			return
		}
		section.Find("td, li, span, div, dt, dd").Each(func(_ int, el *goquery.Selection) {
			text := strings.ToLower(strings.TrimSpace(el.Text()))
			if text == "" {
				return
			}
			for _, m := range e.matchers {
				if !strings.Contains(text, m.mapping.Key) {
					continue
				}
				if m.mapping.Kind == dictionary.KindBool {
					row.Fields[m.mapping.Column] = true
				} else {
					e.setConverted(row, m.mapping, elementValue(el))
				}
				break
			}
		})
	})
}

// scanTableRows handles the structured specification tables: first cell names the
// feature, second cell holds the value.
func (e *Engine) scanTableRows(doc *goquery.Document, row *Row) {
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		label := strings.ToLower(strings.TrimSpace(cells.Eq(0).Text()))
		value := strings.TrimSpace(cells.Eq(1).Text())
		for _, m := range e.matchers {
			if strings.Contains(label, m.mapping.Key) {
				e.setConverted(row, m.mapping, value)
				break
			}
		}
	})
}

func (e *Engine) setConverted(row *Row, m dictionary.Mapping, raw string) {
	v, ok := convert(raw, m.Kind)
	if !ok {
		slog.Debug("value did not convert", "column", m.Column, "kind", m.Kind, "raw", raw)
		return
	}
	row.Fields[m.Column] = v
}

// elementValue returns the text to parse for a non-bool feature found in
// el: the first of the next few siblings whose text differs from el's own,
// falling back to el's text.
func elementValue(el *goquery.Selection) string {
	own := strings.TrimSpace(el.Text())
	siblings := el.NextAll()
	for i := 0; i < siblings.Length() && i < 3; i++ {
		s := strings.TrimSpace(siblings.Eq(i).Text())
		if s != "" && s != own {
			return s
		}
	}
	return own
}

// PostFill patches the market price from the official price when only the
// latter was listed. No inverse rule exists; an official price is never
// derived from a market price.
func PostFill(row *Row) {
	if _, ok := row.Fields[marketPriceColumn]; ok {
		return
	}
	if v, ok := row.Fields[officialPriceColumn]; ok {
		row.Fields[marketPriceColumn] = v
	}
}
