// Package render composes the outgoing post payload for a target channel.
package render

import (
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"

	"relay_bot/internal/model"
)

const (
	ellipsis    = "..."
	maxHashtags = 5
)

var hashtagRe = regexp.MustCompile(`#\w+`)

// Rendered is the payload handed to the transport: HTML-formatted text plus
// the event's media refs, unchanged.
type Rendered struct {
	Text  string
	Media []model.MediaRef
}

// Renderer composes post text from a content event and its source channel.
type Renderer struct {
	maxLength int
}

// New creates a Renderer that keeps the combined payload within maxLength
// runes.
func New(maxLength int) *Renderer {
	return &Renderer{maxLength: maxLength}
}

// Render builds the outgoing payload: attribution line, body, permalink and
// hashtags, separated by blank lines. When the combined text exceeds the
// maximum length only the body is truncated, with an ellipsis appended;
// attribution and permalink always survive intact.
func (r *Renderer) Render(event model.ContentEvent, source *model.SourceChannel) Rendered {
	attribution := attributionLine(source)
	permalink := permalinkLine(event, source)
	tags := strings.Join(extractHashtags(event.Text), " ")

	body := html.EscapeString(event.Text)

	fixed := 0
	parts := 0
	for _, p := range []string{attribution, permalink, tags} {
		if p != "" {
			fixed += len([]rune(p))
			parts++
		}
	}
	if body != "" {
		parts++
	}
	if parts > 1 {
		fixed += 2 * (parts - 1) // blank-line separators
	}

	budget := r.maxLength - fixed
	body = truncate(body, budget)

	var sections []string
	for _, p := range []string{attribution, body, permalink, tags} {
		if p != "" {
			sections = append(sections, p)
		}
	}
	return Rendered{
		Text:  strings.Join(sections, "\n\n"),
		Media: event.Media,
	}
}

func attributionLine(source *model.SourceChannel) string {
	if source == nil || source.Title == "" {
		return ""
	}
	title := html.EscapeString(source.Title)
	if source.Username != "" {
		return fmt.Sprintf(`From: <a href="https://t.me/%s">%s</a>`, source.Username, title)
	}
	return "From: " + title
}

func permalinkLine(event model.ContentEvent, source *model.SourceChannel) string {
	if source == nil || source.Username == "" || event.MessageID == 0 {
		return ""
	}
	return fmt.Sprintf(`<a href="https://t.me/%s/%d">Original</a>`, source.Username, event.MessageID)
}

func truncate(body string, budget int) string {
	runes := []rune(body)
	if len(runes) <= budget {
		return body
	}
	// No room for even the marker: drop the body rather than overshoot.
	if budget < len(ellipsis) {
		return ""
	}
	return string(runes[:budget-len(ellipsis)]) + ellipsis
}

// extractHashtags returns up to maxHashtags unique #word tokens from text,
// in sorted order so the output is deterministic.
func extractHashtags(text string) []string {
	found := hashtagRe.FindAllString(text, -1)
	if len(found) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(found))
	var tags []string
	for _, t := range found {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	sort.Strings(tags)
	if len(tags) > maxHashtags {
		tags = tags[:maxHashtags]
	}
	return tags
}
