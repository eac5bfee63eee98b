package service

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/smada/genius-backend/internal/model"
)

// MaxAttachmentBytes caps a decoded inline attachment.
const MaxAttachmentBytes = 8 << 20

var (
	ErrAttachmentTooLarge    = errors.New("attachment too large")
	ErrUnsupportedAttachment = errors.New("unsupported attachment type")
)

// MaterialTypes are the files the question generator can read. A trailing
// slash matches a whole family.
var MaterialTypes = []string{"image/", "application/pdf", "text/plain"}

// sniffAttachment decodes an inline attachment, checks its size and replaces
// the client-declared type with the detected one. With allowed empty every
// type is accepted.
func sniffAttachment(a *model.Attachment, allowed ...string) error {
	data, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return fmt.Errorf("decode attachment: %w", err)
	}
	if len(data) > MaxAttachmentBytes {
		return ErrAttachmentTooLarge
	}

	detected := mimetype.Detect(data)
	if len(allowed) > 0 && !typeAllowed(detected, allowed) {
		return fmt.Errorf("%w: %s", ErrUnsupportedAttachment, detected.String())
	}

	bare, _, _ := strings.Cut(detected.String(), ";")
	a.Type = bare
	return nil
}

func typeAllowed(mt *mimetype.MIME, allowed []string) bool {
	for m := mt; m != nil; m = m.Parent() {
		bare, _, _ := strings.Cut(m.String(), ";")
		for _, a := range allowed {
			if strings.HasSuffix(a, "/") && strings.HasPrefix(bare, a) {
				return true
			}
			if m.Is(a) {
				return true
			}
		}
	}
	return false
}
