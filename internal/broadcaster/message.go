package broadcaster

import (
	"encoding/json"
	"time"
)

// Message is one update event as written to subscribers. Its JSON form is the
// inbound message the sync client parses.
type Message struct {
	Id           string          `json:"id"`
	Type         string          `json:"type"`
	ResourceType string          `json:"resourceType"`
	SubjectId    string          `json:"subjectId,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Topics returns the topics the message is delivered to: the resource feed
// and, for subject scoped updates, the subject feed.
func (m Message) Topics() []string {
	topics := []string{m.ResourceType}
	if m.SubjectId != "" {
		topics = append(topics, Topic(m.ResourceType, m.SubjectId))
	}

	return topics
}

func Topic(resourceType string, subjectId string) string {
	if subjectId == "" {
		return resourceType
	}

	return resourceType + ":" + subjectId
}
