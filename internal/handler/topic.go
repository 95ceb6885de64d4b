package handler

import (
	"errors"
	"regexp"

	"github.com/goevery/realtimesync/internal/broadcaster"
	"github.com/goevery/realtimesync/internal/ierr"
)

type TopicValidator struct {
	resourceTypeRegex *regexp.Regexp
	subjectIdRegex    *regexp.Regexp
}

func NewTopicValidator() *TopicValidator {
	return &TopicValidator{
		resourceTypeRegex: regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`),
		subjectIdRegex:    regexp.MustCompile(`^[\w.-]{1,128}$`),
	}
}

// Validate checks a resource type and an optional subject id and returns the
// topic they name.
func (v *TopicValidator) Validate(resourceType string, subjectId string) (string, error) {
	if !v.resourceTypeRegex.MatchString(resourceType) {
		return "", ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid resourceType"))
	}

	if subjectId != "" && !v.subjectIdRegex.MatchString(subjectId) {
		return "", ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid subjectId"))
	}

	return broadcaster.Topic(resourceType, subjectId), nil
}
