package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
)

// ErrInvalidValue is returned by validated setters when a value is outside
// the allowed enumeration. The previous value is always retained.
var ErrInvalidValue = errors.New("invalid attribute value")

// Enumerations for Event attributes. Remote servers reject events with
// values outside these sets, so invalid input is refused at the setter.
const (
	RepliesAllowAll = "allow_all"
	RepliesClosed   = "closed"

	EventStatusTentative = "TENTATIVE"
	EventStatusConfirmed = "CONFIRMED"
	EventStatusCancelled = "CANCELLED"

	JoinModeFree       = "free"
	JoinModeRestricted = "restricted"
	JoinModeInvite     = "invite"
	JoinModeExternal   = "external"
)

var httpURLPattern = regexp.MustCompile(`^https?://\S+$`)

// EventContext is the JSON-LD context block for Event objects. The trailing
// map extends the ActivityStreams vocabulary with the event terms.
func EventContext() []interface{} {
	return MergeContexts(
		ContextActivityStreams,
		map[string]interface{}{
			"pt":                       "https://joinpeertube.org/ns#",
			"mz":                       "https://joinmobilizon.org/ns#",
			"ical":                     "http://www.w3.org/2002/12/cal/ical#",
			"status":                   "ical:status",
			"commentsEnabled":          "pt:commentsEnabled",
			"repliesModerationOption":  "mz:repliesModerationOption",
			"joinMode":                 "mz:joinMode",
			"externalParticipationUrl": "mz:externalParticipationUrl",
			"timezone":                 "mz:timezone",
			"participantCount":         "mz:participantCount",
		},
	)
}

// Event is an extended ActivityStreams object with typed event fields and
// validated enum setters.
type Event struct {
	Object

	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
	Timezone  string `json:"timezone,omitempty"`
	Location  string `json:"location,omitempty"`

	Status                   string `json:"status,omitempty"`
	JoinMode                 string `json:"joinMode,omitempty"`
	ExternalParticipationURL string `json:"externalParticipationUrl,omitempty"`
	RepliesModerationOption  string `json:"repliesModerationOption,omitempty"`
	CommentsEnabled          *bool  `json:"commentsEnabled,omitempty"`
	ParticipantCount         int    `json:"participantCount,omitempty"`
}

// NewEvent returns an Event with its extended context and type applied
func NewEvent(id string) *Event {
	e := &Event{}
	e.ID = id
	e.Type = "Event"
	e.Context = EventContext()
	return e
}

// SetRepliesModerationOption validates against {allow_all, closed} and
// derives commentsEnabled from the accepted value. Invalid input is
// refused; the previous values are kept.
func (e *Event) SetRepliesModerationOption(v string) error {
	if v != RepliesAllowAll && v != RepliesClosed {
		log.Printf("Warning: invalid repliesModerationOption %q, keeping %q", v, e.RepliesModerationOption)
		return fmt.Errorf("%w: repliesModerationOption %q", ErrInvalidValue, v)
	}
	e.RepliesModerationOption = v
	enabled := v == RepliesAllowAll
	e.CommentsEnabled = &enabled
	return nil
}

// SetCommentsEnabled derives repliesModerationOption from the flag, the
// inverse of SetRepliesModerationOption.
func (e *Event) SetCommentsEnabled(enabled bool) {
	e.CommentsEnabled = &enabled
	if enabled {
		e.RepliesModerationOption = RepliesAllowAll
	} else {
		e.RepliesModerationOption = RepliesClosed
	}
}

// SetStatus validates against the ical status values
func (e *Event) SetStatus(v string) error {
	switch v {
	case EventStatusTentative, EventStatusConfirmed, EventStatusCancelled:
		e.Status = v
		return nil
	}
	log.Printf("Warning: invalid event status %q, keeping %q", v, e.Status)
	return fmt.Errorf("%w: status %q", ErrInvalidValue, v)
}

// SetJoinMode validates against {free, restricted, invite, external}
func (e *Event) SetJoinMode(v string) error {
	switch v {
	case JoinModeFree, JoinModeRestricted, JoinModeInvite, JoinModeExternal:
		e.JoinMode = v
		return nil
	}
	log.Printf("Warning: invalid joinMode %q, keeping %q", v, e.JoinMode)
	return fmt.Errorf("%w: joinMode %q", ErrInvalidValue, v)
}

// SetExternalParticipationURL accepts http(s) URLs only. Setting a valid
// URL implies participation happens elsewhere, so joinMode becomes external.
func (e *Event) SetExternalParticipationURL(u string) error {
	if !httpURLPattern.MatchString(u) {
		log.Printf("Warning: invalid externalParticipationUrl %q", u)
		return fmt.Errorf("%w: externalParticipationUrl %q", ErrInvalidValue, u)
	}
	e.ExternalParticipationURL = u
	e.JoinMode = JoinModeExternal
	return nil
}

// ToJSON serializes the event with its extended context
func (e *Event) ToJSON() (string, error) {
	if e.Context == nil {
		e.Context = EventContext()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}
	return string(b), nil
}
