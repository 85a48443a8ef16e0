package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/taskboard/internal/model"
)

func TestContentHeight(t *testing.T) {
	l := NewLayout(80, 24)
	assert.Equal(t, 24-1-MaxToasts-1, l.ContentHeight())
	assert.Equal(t, 0, NewLayout(80, 2).ContentHeight())
}

func TestRenderToastsKeepsNewest(t *testing.T) {
	l := NewLayout(80, 24)
	notes := []model.Notification{
		{Message: "one", Severity: model.SeverityInfo},
		{Message: "two", Severity: model.SeverityWarning},
		{Message: "three", Severity: model.SeverityError},
		{Message: "four", Severity: model.SeveritySuccess},
	}

	out := l.RenderToasts(notes)
	assert.NotContains(t, out, "one")
	assert.Contains(t, out, "four")
	assert.Len(t, strings.Split(out, "\n"), MaxToasts)
}

func TestRenderToastsPadsEmptyArea(t *testing.T) {
	l := NewLayout(80, 24)
	assert.Equal(t, strings.Repeat("\n", MaxToasts-1), l.RenderToasts(nil))
}

func TestRenderHeader(t *testing.T) {
	l := NewLayout(60, 24)
	out := l.RenderHeader("Taskboard", "live")
	assert.Contains(t, out, "Taskboard")
	assert.Contains(t, out, "live")
}
