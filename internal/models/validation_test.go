package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidationErrorsIs(t *testing.T) {
	validation := &ValidationErrors{}
	validation.Add("id", ErrMissingMessageID)

	err := validation.Err()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMissingMessageID))
}

func TestMessageValidateNestedLocation(t *testing.T) {
	msg := Message{
		ID:         "m1",
		ChatID:     "c1",
		SenderRole: SenderAgent,
		Status:     StatusSent,
		Location:   &Location{Lat: 91, Lng: 2},
	}

	err := msg.Validate()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidLatitude))

	var list *ValidationErrors
	require.True(t, errors.As(err, &list))
	require.Len(t, list.Errors, 1)
	require.Equal(t, "location.lat", list.Errors[0].Field)
}

func TestMessageValidateOK(t *testing.T) {
	msg := Message{ID: "m1", ChatID: "c1", SenderRole: SenderCounterpart, Status: StatusRead}
	require.NoError(t, msg.Validate())
}

func TestRawMessageNormalize(t *testing.T) {
	raw := RawMessage{
		ID:        " m1 ",
		Body:      "hi",
		Timestamp: 1700000000,
		FromMe:    true,
		Type:      "PTT",
		MediaURL:  "https://cdn.example/voice.ogg",
		Mimetype:  "audio/ogg",
		Status:    "3",
		Poll:      &RawPoll{Name: "Lunch?", Options: []string{"yes", "no"}, SelectableOptionsCount: 1},
	}

	msg := raw.Normalize("chat-1")
	require.Equal(t, "m1", msg.ID)
	require.Equal(t, "chat-1", msg.ChatID)
	require.Equal(t, SenderAgent, msg.SenderRole)
	require.Equal(t, StatusRead, msg.Status)
	require.Equal(t, time.Unix(1700000000, 0).UTC(), msg.Timestamp)
	require.NotNil(t, msg.Media)
	require.Equal(t, "ptt", msg.Media.Type)
	require.Equal(t, "ptt", msg.Type)
	require.NotNil(t, msg.Poll)
	require.False(t, msg.Poll.MultipleAnswers)
	require.Empty(t, msg.RenderKind)
}

func TestRawMessageNormalizeMilliseconds(t *testing.T) {
	msg := RawMessage{ID: "m", Timestamp: 1700000000123}.Normalize("c")
	require.Equal(t, time.UnixMilli(1700000000123).UTC(), msg.Timestamp)
}

func TestNormalizeAllDropsMissingIDs(t *testing.T) {
	msgs := NormalizeAll("c", []RawMessage{{ID: ""}, {ID: "a"}, {ID: "  "}})
	require.Len(t, msgs, 1)
	require.Equal(t, "a", msgs[0].ID)
}

func TestStatusRankOrdering(t *testing.T) {
	require.Less(t, StatusSent.Rank(), StatusDelivered.Rank())
	require.Less(t, StatusDelivered.Rank(), StatusRead.Rank())
	require.Equal(t, 0, MessageStatus("bogus").Rank())
}

func TestCloneIsDeep(t *testing.T) {
	orig := Message{ID: "a", Poll: &Poll{Options: []string{"x"}}, Media: &Media{URL: "u"}}
	cp := orig.Clone()
	cp.Poll.Options[0] = "y"
	cp.Media.URL = "v"
	require.Equal(t, "x", orig.Poll.Options[0])
	require.Equal(t, "u", orig.Media.URL)
}
