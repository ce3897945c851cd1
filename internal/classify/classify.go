// Package classify maps message records onto exactly one render variant.
//
// Classification is a priority-ordered predicate table: the first rule whose
// predicate holds wins. The order is part of the contract because several
// container formats (webm, ogg, bin) satisfy more than one media predicate.
package classify

import (
	"github.com/tOgg1/gatechat/internal/models"
)

// Rule pairs a render variant with the predicate that selects it.
type Rule struct {
	Kind  models.RenderKind
	Match func(msg models.Message) bool
}

var rules = []Rule{
	{Kind: models.RenderLocation, Match: isLocation},
	{Kind: models.RenderPoll, Match: isPoll},
	{Kind: models.RenderImage, Match: isImage},
	{Kind: models.RenderAudio, Match: isAudio},
	{Kind: models.RenderVideo, Match: isVideo},
	{Kind: models.RenderDocument, Match: isDocument},
}

// Rules returns a copy of the rule table in evaluation order.
// PlainText is the implicit fallback and is not part of the table.
func Rules() []Rule {
	return append([]Rule(nil), rules...)
}

// Classify returns the render variant for msg. It never fails.
func Classify(msg models.Message) models.RenderKind {
	for _, rule := range rules {
		if rule.Match(msg) {
			return rule.Kind
		}
	}
	return models.RenderPlainText
}

// Apply classifies every message in place and returns the slice.
func Apply(msgs []models.Message) []models.Message {
	for i := range msgs {
		msgs[i].RenderKind = Classify(msgs[i])
	}
	return msgs
}
