package classify

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/tOgg1/gatechat/internal/models"
)

var (
	imageExts = setOf("jpg", "jpeg", "png", "gif", "webp", "bmp", "svg", "heic")
	audioExts = setOf("mp3", "ogg", "oga", "opus", "wav", "m4a", "aac", "amr", "flac", "weba")
	videoExts = setOf("mp4", "mov", "avi", "mkv", "webm", "3gp", "m4v")
	// Containers that carry voice notes as often as anything else.
	ambiguousAudioExts = setOf("webm", "bin")
	documentExts       = setOf(
		"pdf", "doc", "docx", "xls", "xlsx", "csv", "ppt", "pptx", "txt", "rtf", "odt", "ods",
		"zip", "rar", "7z", "tar", "gz",
		"json", "xml", "js", "ts", "go", "py", "java", "c", "cpp", "html", "css", "md",
		"epub", "mobi",
	)
	documentMimeHints = []string{
		"pdf", "msword", "officedocument", "ms-excel", "ms-powerpoint", "opendocument",
		"zip", "rar", "7z", "x-tar", "gzip", "json", "xml", "epub", "mobipocket", "rtf",
	}
	documentTextMimes = setOf("text/plain", "text/csv", "text/html", "text/css", "text/markdown", "text/xml", "text/javascript")
)

var (
	mapsLinkPattern   = regexp.MustCompile(`(?i)(maps\.google\.|google\.[a-z.]+/maps|goo\.gl/maps|maps\.app\.goo\.gl|waze\.com/ul)`)
	coordPairPattern  = regexp.MustCompile(`-?\d{1,2}\.\d{3,}\s*,\s*-?\d{1,3}\.\d{3,}`)
	latLngPattern     = regexp.MustCompile(`(?i)\blat(itude)?\s*[:=]\s*-?\d+(\.\d+)?.*\b(lng|lon|longitude)\s*[:=]\s*-?\d+(\.\d+)?`)
	locationPrefix    = regexp.MustCompile(`(?i)^\s*(📍|location\s*:|localiza[çc][ãa]o\s*:|ubicaci[óo]n\s*:)`)
	numberedEmoji     = regexp.MustCompile("[0-9]\uFE0F?\u20E3|\U0001F51F")
	enumeratedOption  = regexp.MustCompile(`^\s*(\d{1,2}[.)]|[a-zA-Z]\)|[-•*])\s+\S`)
	voiceFilenameHint = regexp.MustCompile(`(?i)(^|[^a-z])(ptt|voice|audio|aud)([^a-z]|$)`)
)

func isLocation(msg models.Message) bool {
	if msg.Location != nil && (msg.Location.Lat != 0 || msg.Location.Lng != 0) {
		return true
	}
	if hasTypeTag(msg, "location", "live_location") {
		return true
	}
	body := msg.Body
	if strings.TrimSpace(body) == "" {
		return false
	}
	return locationPrefix.MatchString(body) ||
		mapsLinkPattern.MatchString(body) ||
		coordPairPattern.MatchString(body) ||
		latLngPattern.MatchString(body)
}

func isPoll(msg models.Message) bool {
	if msg.Poll != nil && (strings.TrimSpace(msg.Poll.Title) != "" || len(msg.Poll.Options) > 0) {
		return true
	}
	if hasTypeTag(msg, "poll", "poll_creation") {
		return true
	}
	body := strings.TrimSpace(msg.Body)
	if body == "" {
		return false
	}
	if len(numberedEmoji.FindAllString(body, -1)) >= 2 {
		return true
	}
	return isEnumeratedQuestion(body)
}

// isEnumeratedQuestion matches a question line followed by at least two
// enumerated option lines.
func isEnumeratedQuestion(body string) bool {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	question := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasSuffix(strings.TrimSpace(line), "?") {
			question = i
		}
		break
	}
	if question < 0 {
		return false
	}
	options := 0
	for _, line := range lines[question+1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !enumeratedOption.MatchString(line) {
			return false
		}
		options++
	}
	return options >= 2
}

func isImage(msg models.Message) bool {
	media := msg.Media
	if media == nil {
		return false
	}
	if hasExt(urlExt(media.URL), videoExts) {
		return false
	}
	mime := baseMime(media.Mimetype)
	if strings.HasPrefix(mime, "image/") {
		return true
	}
	if media.Type == "image" || media.Type == "sticker" {
		return true
	}
	return hasExt(urlExt(media.URL), imageExts) || hasExt(fileExt(media.Filename), imageExts)
}

func isAudio(msg models.Message) bool {
	media := msg.Media
	if media == nil {
		return false
	}
	if strings.HasPrefix(baseMime(media.Mimetype), "audio/") {
		return true
	}
	switch media.Type {
	case "audio", "ptt", "voice":
		return true
	}
	exts := []string{urlExt(media.URL), fileExt(media.Filename)}
	for _, ext := range exts {
		if hasExt(ext, audioExts) {
			return true
		}
	}
	if strings.HasPrefix(baseMime(media.Mimetype), "video/") {
		return false
	}
	for _, ext := range exts {
		if hasExt(ext, ambiguousAudioExts) && voiceFilenameHint.MatchString(media.Filename) {
			return true
		}
	}
	return false
}

func isVideo(msg models.Message) bool {
	media := msg.Media
	if media == nil {
		return false
	}
	matched := strings.HasPrefix(baseMime(media.Mimetype), "video/") ||
		media.Type == "video" || media.Type == "gif_video" ||
		hasExt(urlExt(media.URL), videoExts) ||
		hasExt(fileExt(media.Filename), videoExts)
	return matched && !isAudio(msg)
}

func isDocument(msg models.Message) bool {
	media := msg.Media
	if !media.HasURL() {
		return false
	}
	if media.Type == "document" {
		return true
	}
	mime := baseMime(media.Mimetype)
	if _, ok := documentTextMimes[mime]; ok {
		return true
	}
	if strings.HasPrefix(mime, "application/") {
		for _, hint := range documentMimeHints {
			if strings.Contains(mime, hint) {
				return true
			}
		}
	}
	return hasExt(urlExt(media.URL), documentExts) || hasExt(fileExt(media.Filename), documentExts)
}

// hasTypeTag matches the message's own type tag or, for older records, the
// tag carried on its media.
func hasTypeTag(msg models.Message, tags ...string) bool {
	for _, tag := range tags {
		if msg.Type == tag || (msg.Media != nil && msg.Media.Type == tag) {
			return true
		}
	}
	return false
}

func setOf(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func hasExt(ext string, set map[string]struct{}) bool {
	if ext == "" {
		return false
	}
	_, ok := set[ext]
	return ok
}

func baseMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}
	return mime
}

// urlExt returns the lowercase extension of a URL path, ignoring query and
// fragment. data: URLs report the mime subtype.
func urlExt(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "data:") {
		rest := strings.TrimPrefix(raw, "data:")
		if idx := strings.IndexAny(rest, ";,"); idx >= 0 {
			rest = rest[:idx]
		}
		if slash := strings.IndexByte(rest, '/'); slash >= 0 {
			return strings.ToLower(rest[slash+1:])
		}
		return ""
	}
	if parsed, err := url.Parse(raw); err == nil && parsed.Path != "" {
		raw = parsed.Path
	} else if idx := strings.IndexAny(raw, "?#"); idx >= 0 {
		raw = raw[:idx]
	}
	return fileExt(raw)
}

func fileExt(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	ext := path.Ext(name)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
