package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motorcortex/internal/intent"
)

func TestExtractSubjects_EmptySteps(t *testing.T) {
	assert.Nil(t, ExtractSubjects("open youtube", nil))
}

func TestExtractSubjects_SingleSubjectStaysWhole(t *testing.T) {
	steps := []intent.Step{
		{Intent: intent.IntentOpenURL, URL: "https://www.youtube.com"},
		{Intent: intent.IntentTypeText, Text: "lofi beats"},
		{Intent: intent.IntentKeyCombo, Keys: []string{"enter"}},
	}

	groups := ExtractSubjects("open youtube", steps)

	require.Len(t, groups, 1)
	assert.Equal(t, "YouTube", groups[0].SubjectName)
	assert.Equal(t, "url", groups[0].SubjectType)
	assert.Equal(t, 0, groups[0].StartIndex)
	assert.Len(t, groups[0].Steps, 3)
}

func TestExtractSubjects_ConjunctionSplitsSubjects(t *testing.T) {
	steps := []intent.Step{
		{Intent: intent.IntentOpenURL, URL: "https://mail.google.com"},
		{Intent: intent.IntentOpenApp, App: "Spotify"},
	}

	groups := ExtractSubjects("open Gmail and Spotify", steps)

	require.Len(t, groups, 2)
	assert.Equal(t, "Gmail", groups[0].SubjectName)
	assert.Equal(t, "url", groups[0].SubjectType)
	assert.Equal(t, 0, groups[0].StartIndex)
	assert.Equal(t, "Spotify", groups[1].SubjectName)
	assert.Equal(t, "app", groups[1].SubjectType)
	assert.Equal(t, 1, groups[1].StartIndex)
}

func TestExtractSubjects_ThenCountsAsConjunction(t *testing.T) {
	steps := []intent.Step{
		{Intent: intent.IntentOpenURL, URL: "github.com"},
		{Intent: intent.IntentOpenFile, Path: "/home/me/notes.txt"},
	}

	groups := ExtractSubjects("open github then my notes", steps)

	require.Len(t, groups, 2)
	assert.Equal(t, "GitHub", groups[0].SubjectName)
	assert.Equal(t, "notes.txt", groups[1].SubjectName)
	assert.Equal(t, "file", groups[1].SubjectType)
}

func TestExtractSubjects_NoConjunctionKeepsOneGroup(t *testing.T) {
	steps := []intent.Step{
		{Intent: intent.IntentOpenURL, URL: "https://mail.google.com"},
		{Intent: intent.IntentOpenApp, App: "Spotify"},
	}

	groups := ExtractSubjects("open gmail, spotify", steps)

	require.Len(t, groups, 1, "no conjunction keeps the chain together")
	assert.Equal(t, "Gmail", groups[0].SubjectName)
	assert.Len(t, groups[0].Steps, 2)
}

func TestExtractSubjects_StepsJoinTheirSubjectGroup(t *testing.T) {
	steps := []intent.Step{
		{Intent: intent.IntentOpenApp, App: "Spotify"},
		{Intent: intent.IntentOpenURL, URL: "https://www.youtube.com"},
		{Intent: intent.IntentOpenURL, URL: "https://www.youtube.com/feed/subscriptions"},
	}

	groups := ExtractSubjects("open spotify and youtube subscriptions", steps)

	require.Len(t, groups, 2)
	assert.Equal(t, "Spotify", groups[0].SubjectName)
	assert.Equal(t, "YouTube", groups[1].SubjectName)
	assert.Equal(t, 1, groups[1].StartIndex, "group keeps the index of its first step")
	assert.Len(t, groups[1].Steps, 2, "both youtube opens land in one group")
}

func TestSubjectFromStep(t *testing.T) {
	tests := []struct {
		step intent.Step
		want string
	}{
		{intent.Step{Intent: intent.IntentOpenApp, App: "Slack"}, "Slack"},
		{intent.Step{Intent: intent.IntentOpenApp}, "Unknown App"},
		{intent.Step{Intent: intent.IntentOpenURL, URL: "https://www.YOUTUBE.com/watch"}, "YouTube"},
		{intent.Step{Intent: intent.IntentOpenURL, URL: "https://mail.google.com"}, "Gmail"},
		{intent.Step{Intent: intent.IntentOpenURL, URL: "https://www.google.com/maps"}, "Google"},
		{intent.Step{Intent: intent.IntentOpenURL, URL: "github.com/cli/cli"}, "GitHub"},
		{intent.Step{Intent: intent.IntentOpenURL, URL: "example.org/path"}, "example.org"},
		{intent.Step{Intent: intent.IntentOpenURL, URL: "example.org"}, "example.org"},
		{intent.Step{Intent: intent.IntentOpenFile, Path: "/var/log/syslog"}, "syslog"},
		{intent.Step{Intent: intent.IntentOpenFile, Path: "notes.txt"}, "notes.txt"},
		{intent.Step{Intent: intent.IntentWebSendMessage, Contact: "Sam"}, "Sam"},
		{intent.Step{Intent: intent.IntentWebSendMessage}, "Contact"},
		{intent.Step{Intent: intent.IntentScroll}, "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, subjectFromStep(tt.step), "%+v", tt.step)
	}
}

func TestSubjectTypeFor(t *testing.T) {
	assert.Equal(t, "url", subjectTypeFor(intent.Step{Intent: intent.IntentOpenURL}))
	assert.Equal(t, "url", subjectTypeFor(intent.Step{Intent: intent.IntentWebSendMessage}))
	assert.Equal(t, "app", subjectTypeFor(intent.Step{Intent: intent.IntentOpenApp}))
	assert.Equal(t, "file", subjectTypeFor(intent.Step{Intent: intent.IntentOpenFile}))
	assert.Equal(t, "unknown", subjectTypeFor(intent.Step{Intent: intent.IntentClick}))
}
