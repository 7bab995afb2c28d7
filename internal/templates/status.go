// Package templates renders the server-side HTML pages.
package templates

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/a-h/templ"
)

// TrainRow is one live train shown on the status page.
type TrainRow struct {
	Key        string
	TrainID    string
	LineID     string
	Direction  string
	Latitude   float64
	Longitude  float64
	Speed      float64
	Confidence float64
	AgeSeconds int
	Active     bool
}

// SightingRow is one recent crowd sighting.
type SightingRow struct {
	LineName    string
	StationName string
	Direction   string
	AgeSeconds  int
	Confidence  float64
}

// FeedRow summarizes the GTFS-RT poller.
type FeedRow struct {
	LastPoll  time.Time
	Entities  int
	Ingested  int
	Failures  int
	LastError string
}

// StatusData is the data for the operations status page.
type StatusData struct {
	Title       string
	GeneratedAt time.Time
	Clients     int
	Trains      []TrainRow
	Sightings   []SightingRow
	Feed        *FeedRow // nil when no feed is configured
}

// StatusPage renders the operations status page.
func StatusPage(data StatusData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		p.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		p.raw(`<title>`)
		p.text(data.Title)
		p.raw(`</title></head><body><main>`)
		p.raw(`<h1>`)
		p.text(data.Title)
		p.raw(`</h1><p class="generated">Updated `)
		p.text(data.GeneratedAt.Format("15:04:05"))
		p.raw(` &middot; `)
		p.text(fmt.Sprintf("%d live subscribers", data.Clients))
		p.raw(`</p>`)

		p.raw(`<section id="trains"><h2>Live trains</h2>`)
		if len(data.Trains) == 0 {
			p.raw(`<p class="empty">No trains reported in the last few minutes.</p>`)
		} else {
			p.raw(`<table><thead><tr><th>Line</th><th>Direction</th><th>Train</th><th>Position</th><th>Speed</th><th>Confidence</th><th>Last report</th></tr></thead><tbody>`)
			for _, t := range data.Trains {
				if t.Active {
					p.raw(`<tr>`)
				} else {
					p.raw(`<tr class="stale">`)
				}
				p.cell(t.LineID)
				p.cell(t.Direction)
				p.cell(t.TrainID)
				p.cell(fmt.Sprintf("%.5f, %.5f", t.Latitude, t.Longitude))
				p.cell(fmt.Sprintf("%.0f km/h", t.Speed))
				p.cell(fmt.Sprintf("%.0f%%", t.Confidence*100))
				p.cell(Ago(t.AgeSeconds))
				p.raw(`</tr>`)
			}
			p.raw(`</tbody></table>`)
		}
		p.raw(`</section>`)

		p.raw(`<section id="sightings"><h2>Recent sightings</h2>`)
		if len(data.Sightings) == 0 {
			p.raw(`<p class="empty">No recent sightings.</p>`)
		} else {
			p.raw(`<ul>`)
			for _, s := range data.Sightings {
				p.raw(`<li>`)
				p.text(fmt.Sprintf("%s %s at %s, %s (%.0f%%)",
					s.LineName, s.Direction, s.StationName, Ago(s.AgeSeconds), s.Confidence*100))
				p.raw(`</li>`)
			}
			p.raw(`</ul>`)
		}
		p.raw(`</section>`)

		if data.Feed != nil {
			p.raw(`<section id="feed"><h2>GTFS-RT feed</h2><dl>`)
			p.raw(`<dt>Last poll</dt><dd>`)
			if data.Feed.LastPoll.IsZero() {
				p.text("never")
			} else {
				p.text(data.Feed.LastPoll.Format(time.RFC3339))
			}
			p.raw(`</dd><dt>Vehicles</dt><dd>`)
			p.text(fmt.Sprintf("%d received, %d ingested", data.Feed.Entities, data.Feed.Ingested))
			p.raw(`</dd><dt>Failures</dt><dd>`)
			p.text(fmt.Sprintf("%d", data.Feed.Failures))
			p.raw(`</dd>`)
			if data.Feed.LastError != "" {
				p.raw(`<dt>Last error</dt><dd class="error">`)
				p.text(data.Feed.LastError)
				p.raw(`</dd>`)
			}
			p.raw(`</dl></section>`)
		}

		p.raw(`</main></body></html>`)
		return p.err
	})
}

// Ago formats an age in seconds for display.
func Ago(seconds int) string {
	switch {
	case seconds < 5:
		return "just now"
	case seconds < 60:
		return fmt.Sprintf("%ds ago", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm ago", seconds/60)
	default:
		return fmt.Sprintf("%dh ago", seconds/3600)
	}
}

// printer writes markup and escaped text, keeping the first error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *printer) text(s string) {
	p.raw(templ.EscapeString(s))
}

func (p *printer) cell(s string) {
	var b strings.Builder
	b.WriteString(`<td>`)
	b.WriteString(templ.EscapeString(s))
	b.WriteString(`</td>`)
	p.raw(b.String())
}
