package firecrawl

import (
	"encoding/json"
	"errors"
)

// Shape identifies which response layout a scrape body used.
type Shape int

const (
	// ShapeMalformed means no markdown could be located in the body.
	ShapeMalformed Shape = iota
	// ShapeNested is {"data": {"markdown": "..."}}.
	ShapeNested
	// ShapeFlat is {"markdown": "..."}.
	ShapeFlat
)

func (s Shape) String() string {
	switch s {
	case ShapeNested:
		return "nested"
	case ShapeFlat:
		return "flat"
	default:
		return "malformed"
	}
}

// ErrNoMarkdown is returned when a 2xx body carries no markdown in either layout.
var ErrNoMarkdown = errors.New("firecrawl: response carries no markdown")

// ScrapeResult is a validated scrape response.
type ScrapeResult struct {
	Shape    Shape
	Markdown string
	Title    string
}

// OK reports whether the result carries usable markdown.
func (r ScrapeResult) OK() bool {
	return r.Shape != ShapeMalformed && r.Markdown != ""
}

type scrapeBody struct {
	Success  bool   `json:"success"`
	Markdown string `json:"markdown"`
	Data     *struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Title string `json:"title"`
		} `json:"metadata"`
	} `json:"data"`
}

// ParseScrapeBody decodes a scrape response. The nested layout wins when it
// has markdown; the flat layout is the fallback.
func ParseScrapeBody(data []byte) (ScrapeResult, error) {
	var body scrapeBody
	if err := json.Unmarshal(data, &body); err != nil {
		return ScrapeResult{Shape: ShapeMalformed}, err
	}
	if body.Data != nil && body.Data.Markdown != "" {
		return ScrapeResult{
			Shape:    ShapeNested,
			Markdown: body.Data.Markdown,
			Title:    body.Data.Metadata.Title,
		}, nil
	}
	if body.Markdown != "" {
		return ScrapeResult{Shape: ShapeFlat, Markdown: body.Markdown}, nil
	}
	return ScrapeResult{Shape: ShapeMalformed}, ErrNoMarkdown
}
