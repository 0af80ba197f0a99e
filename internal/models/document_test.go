package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	legal := [][2]DocumentStatus{
		{DocStatusPending, DocStatusProcessing},
		{DocStatusProcessing, DocStatusCompleted},
		{DocStatusProcessing, DocStatusFailed},
		{DocStatusCompleted, DocStatusProcessing},
		{DocStatusFailed, DocStatusProcessing},
		{DocStatusProcessing, DocStatusProcessing},
	}
	for _, tr := range legal {
		assert.NoError(t, Transition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	illegal := [][2]DocumentStatus{
		{DocStatusCompleted, DocStatusCompleted},
		{DocStatusFailed, DocStatusFailed},
		{DocStatusPending, DocStatusCompleted},
		{DocStatusPending, DocStatusFailed},
		{DocStatusCompleted, DocStatusFailed},
		{DocStatusFailed, DocStatusCompleted},
		{DocStatusProcessing, DocStatusPending},
		{DocStatusCompleted, DocStatusPending},
	}
	for _, tr := range illegal {
		assert.ErrorIs(t, Transition(tr[0], tr[1]), ErrIllegalTransition, "%s -> %s", tr[0], tr[1])
	}
}

func TestSourcesFor(t *testing.T) {
	assert.ElementsMatch(t, []DocumentStatus{DocStatusProcessing}, SourcesFor(DocStatusCompleted))
	assert.Empty(t, SourcesFor(DocStatusPending))
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, DocStatusFailed.Terminal())
	assert.True(t, DocStatusCompleted.Terminal())
	assert.False(t, DocStatusProcessing.Terminal())
	assert.False(t, DocumentStatus("ready").Valid())
	assert.True(t, DocStatusPending.Valid())

	text := ""
	d := &Document{ExtractedText: &text}
	assert.False(t, d.HasExtractedText())
	text = "cached"
	assert.True(t, d.HasExtractedText())
}

func TestTransition_RejectsUnknownStatus(t *testing.T) {
	err := Transition(DocStatusProcessing, DocumentStatus("ready"))
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Contains(t, err.Error(), "unknown status")
}

func TestDocument_Stalled(t *testing.T) {
	now := time.Now()
	after := 10 * time.Minute

	fresh := &Document{Status: DocStatusProcessing, UpdatedAt: now.Add(-time.Minute)}
	assert.False(t, fresh.Stalled(now, after))

	old := &Document{Status: DocStatusProcessing, UpdatedAt: now.Add(-after)}
	assert.True(t, old.Stalled(now, after))

	done := &Document{Status: DocStatusCompleted, UpdatedAt: now.Add(-time.Hour)}
	assert.False(t, done.Stalled(now, after), "terminal rows are never stalled")
}
