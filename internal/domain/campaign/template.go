package campaign

import (
	"fmt"
	"strings"
)

// DefaultTemplateKey is used when a job names no known template.
const DefaultTemplateKey = "gentle"

// maxMessageLen keeps rendered messages under the Telegram limit.
const maxMessageLen = 3900

// maxListedTitles caps the missing-title list in one message.
const maxListedTitles = 12

// Templates are the canned reminder templates selectable when creating a
// campaign. The substitution set is deliberately fixed: {first_name},
// {full_name}, {missing_count} and {missing_list} only.
var Templates = map[string]string{
	"gentle": "Hi {first_name}, this is a friendly reminder that you currently have " +
		"{missing_count} missing assignment(s).\n\n{missing_list}\n\n" +
		"Please submit what you can today. Open /start for details.",
	"firm": "{first_name}, action needed: you have {missing_count} missing assignment(s).\n\n" +
		"{missing_list}\n\n" +
		"Submit as soon as possible to avoid grade impact. Open /start now.",
	"exam": "Exam prep check-in for {first_name}:\nYou still have {missing_count} missing assignment(s).\n\n" +
		"{missing_list}\n\n" +
		"Clearing these will help your readiness. Open /start to plan next steps.",
}

// RenderData carries the per-recipient values substituted into a template.
type RenderData struct {
	FirstName     string
	FullName      string
	MissingCount  int
	MissingTitles []string
}

// Render substitutes the fixed placeholder set into the template by
// literal replacement and truncates the result to the transport limit.
func Render(template string, d RenderData) string {
	titles := d.MissingTitles
	if len(titles) > maxListedTitles {
		titles = titles[:maxListedTitles]
	}
	list := "- none"
	if len(titles) > 0 {
		var b strings.Builder
		for i, t := range titles {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("- ")
			b.WriteString(t)
		}
		list = b.String()
	}

	r := strings.NewReplacer(
		"{first_name}", d.FirstName,
		"{full_name}", d.FullName,
		"{missing_count}", fmt.Sprintf("%d", d.MissingCount),
		"{missing_list}", list,
	)
	text := r.Replace(template)
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen]
	}
	return text
}

// ResolveTemplate returns the template text for a job: the literal ad-hoc
// text when present, otherwise the canned template for its key, falling
// back to the default.
func ResolveTemplate(j *Job) string {
	if j.TemplateText.Valid && strings.TrimSpace(j.TemplateText.String) != "" {
		return j.TemplateText.String
	}
	if t, ok := Templates[j.TemplateKey]; ok {
		return t
	}
	return Templates[DefaultTemplateKey]
}
