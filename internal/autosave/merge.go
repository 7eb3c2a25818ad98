package autosave

import "encoding/json"

// keyLegacyLastPosition is the nested last-position object written by older
// clients; it is flattened into the top-level keys before use.
const keyLegacyLastPosition = "_last_position"

const (
	keyLastSectionID  = "_last_section_id"
	keyLastQuestionID = "_last_question_id"
)

type legacyPosition struct {
	SectionID  string `json:"section_id"`
	QuestionID string `json:"question_id"`
}

// Merge builds the resume answer map. Server-restored answers are the base;
// locally cached review markers are overlaid on top — local wins for review
// flags only, since they are cheap, frequent and not security-sensitive.
// Neither input map is mutated.
func Merge(server, cachedReview map[string]string) map[string]string {
	out := make(map[string]string, len(server)+len(cachedReview))
	for k, v := range server {
		out[k] = v
	}

	if raw, ok := out[keyLegacyLastPosition]; ok {
		delete(out, keyLegacyLastPosition)
		var pos legacyPosition
		if err := json.Unmarshal([]byte(raw), &pos); err == nil {
			if _, exists := out[keyLastSectionID]; !exists && pos.SectionID != "" {
				out[keyLastSectionID] = pos.SectionID
			}
			if _, exists := out[keyLastQuestionID]; !exists && pos.QuestionID != "" {
				out[keyLastQuestionID] = pos.QuestionID
			}
		}
	}

	for k, v := range cachedReview {
		out[k] = v
	}
	return out
}
