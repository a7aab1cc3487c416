// Package delivery implements the ordered, human-paced outbound queue. Each
// conversation gets a dedicated worker that drains its items strictly in
// enqueue order, so multi-part replies never interleave and conversations
// never block each other.
package delivery

import (
	"strings"
	"unicode/utf8"

	"github.com/haasonsaas/relay/pkg/models"
)

// DefaultSegmentLimit is the fallback maximum segment size in characters.
const DefaultSegmentLimit = 4000

// channelLimits holds per-platform message size limits.
var channelLimits = map[models.ChannelType]int{
	models.ChannelTelegram: 4096,
	models.ChannelDiscord:  2000,
	models.ChannelSlack:    40000,
}

// LimitFor returns the message size limit for a channel.
func LimitFor(channel models.ChannelType) int {
	if limit, ok := channelLimits[channel]; ok {
		return limit
	}
	return DefaultSegmentLimit
}

// Segment splits text into pieces that fit within limit, preferring to break
// at newlines, then at whitespace, then hard-breaking mid-word.
func Segment(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var out []string
	rest := text
	for len(rest) > limit {
		cut := breakIndex(rest, limit)
		if seg := strings.TrimRight(rest[:cut], " \t"); seg != "" {
			out = append(out, seg)
		}
		rest = strings.TrimLeft(rest[cut:], " \t\n")
	}
	if rest != "" {
		out = append(out, rest)
	}
	return out
}

// breakIndex finds the byte offset to cut rest at so the head fits within
// limit. Hard breaks back off to a rune boundary so multi-byte runes are
// never split.
func breakIndex(rest string, limit int) int {
	window := rest[:limit]
	if i := strings.LastIndexByte(window, '\n'); i > 0 {
		return i
	}
	if i := strings.LastIndexAny(window, " \t"); i > 0 {
		return i
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(rest[cut]) {
		cut--
	}
	if cut == 0 {
		return limit
	}
	return cut
}
