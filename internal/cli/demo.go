package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/tOgg1/gatechat/internal/gateway/gatewaytest"
	"github.com/tOgg1/gatechat/internal/models"
)

// newDemoGateway starts an in-process gateway with two sample chats that
// cover every render kind.
func newDemoGateway() *gatewaytest.Server {
	srv := gatewaytest.New()
	srv.Token = "demo"
	base := time.Now().Add(-3 * time.Hour).Unix()

	var feira []models.RawMessage
	for i := 1; i <= 30; i++ {
		feira = append(feira, models.RawMessage{
			ID:        fmt.Sprintf("feira-%02d", i),
			Body:      fmt.Sprintf("Lista da feira, item %d", i),
			Timestamp: base + int64(i*60),
			FromMe:    i%3 == 0,
			Status:    "read",
		})
	}
	feira = append(feira,
		models.RawMessage{
			ID:        "feira-loc",
			Body:      "Estou aqui: https://maps.google.com/?q=-23.5614,-46.6559",
			Timestamp: base + 40*60,
			Status:    "delivered",
		},
		models.RawMessage{
			ID:        "feira-poll",
			Type:      "poll_creation",
			Timestamp: base + 41*60,
			Poll:      &models.RawPoll{Name: "Que horas?", Options: []string{"8h", "9h", "10h"}, SelectableOptionsCount: 1},
		},
		models.RawMessage{
			ID:        "feira-photo",
			Body:      "olha as frutas",
			HasMedia:  true,
			Timestamp: base + 42*60,
			MediaURL:  "/media/feira-photo/frutas.jpg",
			Mimetype:  "image/jpeg",
			Filename:  "frutas.jpg",
		},
		models.RawMessage{
			ID:        "feira-audio",
			HasMedia:  true,
			Timestamp: base + 43*60,
			Type:      "ptt",
			MediaURL:  "/media/feira-audio/nota.ogg",
			Mimetype:  "audio/ogg; codecs=opus",
		},
	)
	srv.AddChat("feira@c.us", feira...)
	srv.SetStarred("feira@c.us", "feira-02", "feira-poll")

	srv.AddChat("trabalho@g.us",
		models.RawMessage{ID: "trab-1", Body: "Bom dia, time", Timestamp: base + 100, Status: "read"},
		models.RawMessage{ID: "trab-2", Body: "Segue o relatório", HasMedia: true, Timestamp: base + 200,
			MediaURL: "/media/trab-2/relatorio.pdf", Mimetype: "application/pdf", Filename: "relatorio.pdf"},
		models.RawMessage{ID: "trab-3", Body: "Obrigado!", FromMe: true, Timestamp: base + 300, Status: "delivered"},
	)
	srv.SetTranslator(func(text, target string) (string, error) {
		return "[" + strings.ToLower(target) + "] " + text, nil
	})
	return srv.Start()
}
