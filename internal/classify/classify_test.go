package classify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/gatechat/internal/models"
)

func TestRuleOrderIsFixed(t *testing.T) {
	kinds := make([]models.RenderKind, 0, len(rules))
	for _, rule := range Rules() {
		kinds = append(kinds, rule.Kind)
	}
	require.Equal(t, []models.RenderKind{
		models.RenderLocation,
		models.RenderPoll,
		models.RenderImage,
		models.RenderAudio,
		models.RenderVideo,
		models.RenderDocument,
	}, kinds)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		msg  models.Message
		want models.RenderKind
	}{
		{
			name: "explicit location",
			msg:  models.Message{Location: &models.Location{Lat: 1, Lng: 2}},
			want: models.RenderLocation,
		},
		{
			name: "maps link",
			msg:  models.Message{Body: "here https://maps.google.com/?q=1,2"},
			want: models.RenderLocation,
		},
		{
			name: "pin prefix",
			msg:  models.Message{Body: "📍 Rua Augusta 100"},
			want: models.RenderLocation,
		},
		{
			name: "coordinates",
			msg:  models.Message{Body: "-23.5505, -46.6333"},
			want: models.RenderLocation,
		},
		{
			name: "casual mention of location stays text",
			msg:  models.Message{Body: "can you send me your location later"},
			want: models.RenderPlainText,
		},
		{
			name: "location beats poll",
			msg:  models.Message{Location: &models.Location{Lat: 1}, Poll: &models.Poll{Title: "x"}},
			want: models.RenderLocation,
		},
		{
			name: "zero location payload is not a location",
			msg:  models.Message{Body: "ok", Location: &models.Location{}},
			want: models.RenderPlainText,
		},
		{
			name: "empty poll payload is not a poll",
			msg:  models.Message{Body: "ok", Poll: &models.Poll{}},
			want: models.RenderPlainText,
		},
		{
			name: "video mimetype wins over voice filename",
			msg: models.Message{Media: &models.Media{
				URL:      "https://cdn/clip.webm",
				Mimetype: "video/webm",
				Filename: "voice-note.webm",
			}},
			want: models.RenderVideo,
		},
		{
			name: "explicit poll",
			msg:  models.Message{Poll: &models.Poll{Title: "Lunch?", Options: []string{"a", "b"}}},
			want: models.RenderPoll,
		},
		{
			name: "numbered emoji options",
			msg:  models.Message{Body: "Choose:\n1️⃣ pizza\n2️⃣ sushi"},
			want: models.RenderPoll,
		},
		{
			name: "enumerated question",
			msg:  models.Message{Body: "Which plan?\n1) basic\n2) pro\n3) team"},
			want: models.RenderPoll,
		},
		{
			name: "question with prose is text",
			msg:  models.Message{Body: "How are you?\nI was thinking about lunch"},
			want: models.RenderPlainText,
		},
		{
			name: "image by mimetype",
			msg:  models.Message{Media: &models.Media{URL: "https://cdn/x", Mimetype: "image/jpeg"}},
			want: models.RenderImage,
		},
		{
			name: "image by extension with query",
			msg:  models.Message{Media: &models.Media{URL: "https://cdn/pic.PNG?sig=1"}},
			want: models.RenderImage,
		},
		{
			name: "video url excluded from image",
			msg:  models.Message{Media: &models.Media{URL: "https://cdn/clip.mp4", Mimetype: "image/gif"}},
			want: models.RenderVideo,
		},
		{
			name: "voice note",
			msg:  models.Message{Media: &models.Media{URL: "https://cdn/voice.ogg", Mimetype: "audio/ogg"}},
			want: models.RenderAudio,
		},
		{
			name: "ptt tag",
			msg:  models.Message{Media: &models.Media{URL: "https://cdn/blob", Type: "ptt"}},
			want: models.RenderAudio,
		},
		{
			name: "webm voice note resolves to audio",
			msg:  models.Message{Media: &models.Media{URL: "https://cdn/a.webm", Filename: "PTT-20240115-WA0000.webm"}},
			want: models.RenderAudio,
		},
		{
			name: "webm without voice hint is video",
			msg:  models.Message{Media: &models.Media{URL: "https://cdn/a.webm", Filename: "screen.webm"}},
			want: models.RenderVideo,
		},
		{
			name: "audio mimetype wins over video extension",
			msg:  models.Message{Media: &models.Media{URL: "https://cdn/a.mp4", Mimetype: "audio/mp4"}},
			want: models.RenderAudio,
		},
		{
			name: "video mimetype",
			msg:  models.Message{Media: &models.Media{URL: "https://cdn/x", Mimetype: "video/mp4"}},
			want: models.RenderVideo,
		},
		{
			name: "pdf document",
			msg:  models.Message{Media: &models.Media{URL: "https://cdn/f", Mimetype: "application/pdf", Filename: "invoice.pdf"}},
			want: models.RenderDocument,
		},
		{
			name: "spreadsheet by filename",
			msg:  models.Message{Media: &models.Media{URL: "https://cdn/f", Filename: "report.xlsx"}},
			want: models.RenderDocument,
		},
		{
			name: "document without url falls through",
			msg:  models.Message{Body: "invoice", Media: &models.Media{Mimetype: "application/pdf", Filename: "invoice.pdf", Type: "document"}},
			want: models.RenderPlainText,
		},
		{
			name: "unknown binary",
			msg:  models.Message{Media: &models.Media{URL: "https://cdn/x.bin", Mimetype: "application/octet-stream"}},
			want: models.RenderPlainText,
		},
		{
			name: "empty message",
			msg:  models.Message{},
			want: models.RenderPlainText,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.msg))
		})
	}
}

func TestClassifyGatewayTypeTags(t *testing.T) {
	cases := []struct {
		raw  models.RawMessage
		want models.RenderKind
	}{
		{raw: models.RawMessage{ID: "l1", Type: "location", Body: "Café Central"}, want: models.RenderLocation},
		{raw: models.RawMessage{ID: "l2", Type: "live_location"}, want: models.RenderLocation},
		{raw: models.RawMessage{ID: "p1", Type: "poll", Body: "Almoço"}, want: models.RenderPoll},
		{raw: models.RawMessage{ID: "p2", Type: "POLL_CREATION"}, want: models.RenderPoll},
		{raw: models.RawMessage{ID: "t1", Type: "chat", Body: "Café Central"}, want: models.RenderPlainText},
	}
	for _, tc := range cases {
		t.Run(tc.raw.Type, func(t *testing.T) {
			msg := tc.raw.Normalize("c1")
			require.Nil(t, msg.Media)
			require.Equal(t, tc.want, Classify(msg))
		})
	}
}

func TestClassifyIsDeterministicAndPure(t *testing.T) {
	msg := models.Message{ID: "m", Body: "x", Media: &models.Media{URL: "https://cdn/voice.ogg", Mimetype: "audio/ogg"}}
	before := msg.Clone()
	first := Classify(msg)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Classify(msg))
	}
	require.Equal(t, before, msg)
}

func TestApplySetsRenderKind(t *testing.T) {
	msgs := []models.Message{
		{ID: "a", Body: "hello"},
		{ID: "b", Location: &models.Location{Lat: 1, Lng: 2}},
	}
	Apply(msgs)
	require.Equal(t, models.RenderPlainText, msgs[0].RenderKind)
	require.Equal(t, models.RenderLocation, msgs[1].RenderKind)
}

func TestURLExt(t *testing.T) {
	require.Equal(t, "ogg", urlExt("https://cdn.example/path/voice.OGG?x=1#frag"))
	require.Equal(t, "webm", urlExt("data:audio/webm;base64,AAAA"))
	require.Equal(t, "", urlExt(""))
	require.Equal(t, "pdf", urlExt("/files/a.pdf"))
}
