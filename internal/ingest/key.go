package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SessionKey derives the content-addressed identity of a training session
// from the fields that make it logically unique: subject identifier, lesson
// id, start time and minute count. Two rows with identical content always
// produce the same key, which is the session's primary key at the storage
// layer, so re-uploading the same provider export is a no-op instead of a
// double count.
func SessionKey(subject, lessonID string, startedAt *time.Time, minutes int) string {
	started := ""
	if startedAt != nil {
		started = startedAt.UTC().Format(time.RFC3339)
	}
	payload := fmt.Sprintf("%s|%s|%s|%d", normalizeSubject(subject), lessonID, started, minutes)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:32]
}
