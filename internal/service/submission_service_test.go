package service

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/smada/genius-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestSubmissionLifecycle(t *testing.T) {
	h := newHarness(t)
	student := model.Student{ID: "S-1", Name: "Ani", NIS: "1", Class: "XI-1"}
	base := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	tick := 0
	h.submissions.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, _, err := h.submissions.Submit(h.ctx, student, model.SubmissionInput{
		Subject:     " Biologi ",
		Description: "Laporan praktikum",
		Attachment: &model.Attachment{
			Name: "foto.png",
			Data: base64.StdEncoding.EncodeToString(pngHeader),
			Type: "application/octet-stream",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Biologi", first.Subject)
	assert.Equal(t, model.SubmissionPending, first.Status)
	assert.Equal(t, "XI-1", first.StudentClass)
	assert.Equal(t, "image/png", first.Attachment.Type, "type is sniffed from the content")

	second, _, err := h.submissions.Submit(h.ctx, student, model.SubmissionInput{Subject: "Fisika", Description: "Tugas"})
	require.NoError(t, err)

	all := h.submissions.List("")
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	graded, _, err := h.submissions.Grade(h.ctx, first.ID, 85)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionReviewed, graded.Status)
	assert.Equal(t, 85, *graded.Grade)

	assert.Len(t, h.submissions.List(model.SubmissionPending), 1)
	assert.Len(t, h.submissions.List(model.SubmissionReviewed), 1)
	assert.Len(t, h.submissions.ListByStudent("S-1"), 2)
	assert.Empty(t, h.submissions.ListByStudent("S-2"))

	_, _, err = h.submissions.Grade(h.ctx, "sub-missing", 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmissionRejectsBadAttachment(t *testing.T) {
	h := newHarness(t)
	student := model.Student{ID: "S-1", Name: "Ani"}

	_, _, err := h.submissions.Submit(h.ctx, student, model.SubmissionInput{
		Subject:     "Biologi",
		Description: "x",
		Attachment:  &model.Attachment{Data: "%%%", Type: "image/png"},
	})
	assert.Error(t, err)

	big := base64.StdEncoding.EncodeToString([]byte(strings.Repeat("a", MaxAttachmentBytes+1)))
	_, _, err = h.submissions.Submit(h.ctx, student, model.SubmissionInput{
		Subject:     "Biologi",
		Description: "x",
		Attachment:  &model.Attachment{Data: big, Type: "text/plain"},
	})
	assert.ErrorIs(t, err, ErrAttachmentTooLarge)
	assert.Empty(t, h.submissions.List(""))
}

func TestSniffAttachmentAllowedTypes(t *testing.T) {
	png := &model.Attachment{Data: base64.StdEncoding.EncodeToString(pngHeader)}
	require.NoError(t, sniffAttachment(png, MaterialTypes...))
	assert.Equal(t, "image/png", png.Type)

	text := &model.Attachment{Data: base64.StdEncoding.EncodeToString([]byte("Hukum Newton pertama"))}
	require.NoError(t, sniffAttachment(text, MaterialTypes...))
	assert.Equal(t, "text/plain", text.Type)

	zip := &model.Attachment{Data: base64.StdEncoding.EncodeToString([]byte("PK\x03\x04\x14\x00\x00\x00\x08\x00"))}
	assert.ErrorIs(t, sniffAttachment(zip, MaterialTypes...), ErrUnsupportedAttachment)
}
