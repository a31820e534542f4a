package broker

import (
	"fmt"
	"strings"
)

// ValidateTopicFilter validates a subscription topic filter
func ValidateTopicFilter(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}

	segments := strings.Split(topic, "/")
	for i, segment := range segments {
		// Allow empty segments for leading/trailing slashes
		if segment == "" && i != 0 && i != len(segments)-1 {
			return fmt.Errorf("%w: empty segment not allowed in middle of topic", ErrInvalidTopic)
		}

		if strings.Contains(segment, "#") {
			if segment != "#" {
				return fmt.Errorf("%w: # wildcard must occupy entire segment", ErrInvalidTopic)
			}
			if i != len(segments)-1 {
				return fmt.Errorf("%w: # wildcard must be the last segment", ErrInvalidTopic)
			}
		}

		if strings.Contains(segment, "+") && segment != "+" {
			return fmt.Errorf("%w: + wildcard must occupy entire segment", ErrInvalidTopic)
		}
	}

	return nil
}

// TopicMatches reports whether a concrete topic name matches a filter using
// MQTT wildcard rules. Topics starting with '$' are not matched by a leading
// wildcard.
func TopicMatches(filter, topic string) bool {
	if filter == topic {
		return true
	}

	if strings.HasPrefix(topic, "$") && (strings.HasPrefix(filter, "+") || strings.HasPrefix(filter, "#")) {
		return false
	}

	filterSegments := strings.Split(filter, "/")
	topicSegments := strings.Split(topic, "/")

	for i, segment := range filterSegments {
		if segment == "#" {
			// "a/#" also matches the parent level "a"
			return true
		}
		if i >= len(topicSegments) {
			return false
		}
		if segment != "+" && segment != topicSegments[i] {
			return false
		}
	}

	return len(filterSegments) == len(topicSegments)
}
