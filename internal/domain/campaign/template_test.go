package campaign

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRender_SubstitutesAllPlaceholders(t *testing.T) {
	text := Render("Hi {first_name} ({full_name}), you owe {missing_count}:\n{missing_list}", RenderData{
		FirstName:     "Ada",
		FullName:      "Ada Lovelace",
		MissingCount:  2,
		MissingTitles: []string{"Homework 3", "Lab 1"},
	})

	assert.Equal(t, "Hi Ada (Ada Lovelace), you owe 2:\n- Homework 3\n- Lab 1", text)
}

func TestRender_EmptyListRendersNone(t *testing.T) {
	text := Render("{missing_list}", RenderData{})
	assert.Equal(t, "- none", text)
}

func TestRender_CapsListedTitles(t *testing.T) {
	titles := make([]string, 30)
	for i := range titles {
		titles[i] = "Assignment"
	}
	text := Render("{missing_list}", RenderData{MissingTitles: titles})
	assert.Equal(t, maxListedTitles, strings.Count(text, "- "))
}

func TestRender_TruncatesLongMessages(t *testing.T) {
	text := Render(strings.Repeat("x", 5000), RenderData{})
	assert.Len(t, text, maxMessageLen)
}

func TestRender_LiteralReplacementOnly(t *testing.T) {
	// Placeholder-looking text inside a name must not recurse.
	text := Render("{first_name}", RenderData{FirstName: "{missing_count}"})
	assert.Equal(t, "{missing_count}", text)
}

func TestResolveTemplate(t *testing.T) {
	adHoc := &Job{TemplateKey: "gentle", TemplateText: sql.NullString{String: "custom {first_name}", Valid: true}}
	assert.Equal(t, "custom {first_name}", ResolveTemplate(adHoc))

	canned := &Job{TemplateKey: "firm"}
	assert.Equal(t, Templates["firm"], ResolveTemplate(canned))

	unknown := &Job{TemplateKey: "nonsense"}
	assert.Equal(t, Templates[DefaultTemplateKey], ResolveTemplate(unknown))

	blankAdHoc := &Job{TemplateKey: "exam", TemplateText: sql.NullString{String: "   ", Valid: true}}
	assert.Equal(t, Templates["exam"], ResolveTemplate(blankAdHoc))
}

func TestJobDue(t *testing.T) {
	now := time.Now()
	pendingPast := &Job{Status: StatusPending, RunAt: now.Add(-time.Minute)}
	pendingFuture := &Job{Status: StatusPending, RunAt: now.Add(time.Minute)}
	runningPast := &Job{Status: StatusRunning, RunAt: now.Add(-time.Minute)}

	assert.True(t, pendingPast.Due(now))
	assert.True(t, (&Job{Status: StatusPending, RunAt: now}).Due(now))
	assert.False(t, pendingFuture.Due(now))
	assert.False(t, runningPast.Due(now))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}
