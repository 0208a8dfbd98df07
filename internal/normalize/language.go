// file: internal/normalize/language.go
// version: 1.0.0
// guid: 2b4c6d8e-0f1a-4b3c-9d5e-7f9a1b3c5d7e

package normalize

import "strings"

// UndeterminedLanguage is the ISO 639-2 sentinel for any tag that
// cannot be resolved to a known code.
const UndeterminedLanguage = "und"

// iso1to2 maps common ISO 639-1 codes to terminological ISO 639-2
// codes (fra not fre, deu not ger, and so on).
var iso1to2 = map[string]string{
	"en": "eng",
	"fr": "fra",
	"es": "spa",
	"de": "deu",
	"it": "ita",
	"ja": "jpn",
	"zh": "zho",
	"ru": "rus",
	"ar": "ara",
	"hi": "hin",
	"pt": "por",
	"nl": "nld",
	"pl": "pol",
	"ko": "kor",
	"sv": "swe",
	"da": "dan",
	"fi": "fin",
	"no": "nor",
	"tr": "tur",
	"cs": "ces",
	"el": "ell",
	"he": "heb",
	"hu": "hun",
	"uk": "ukr",
	"vi": "vie",
	"th": "tha",
}

// knownCodes is the allowlist of ISO 639-2 codes the catalog accepts.
var knownCodes = map[string]struct{}{}

func init() {
	for _, code := range []string{
		"eng", "fra", "deu", "spa", "ita", "jpn", "zho", "rus", "ara",
		"hin", "por", "ben", "urd", "nld", "tur", "vie", "tel", "mar",
		"tam", "kor", "fas", "tha", "pol", "ukr", "ron", "mal", "hun",
		"ces", "ell", "swe", "bul", "dan", "fin", "nor", "slk", "cat",
		"hrv", "heb", "lit", "slv", "est", "lav", "fil", "mkd", "gle",
		"hye", "lat", "cym", "eus", "kat", "aze", "swa", "afr", "glg",
		"alb", "bel", "kan", "yue", "cmn",
	} {
		knownCodes[code] = struct{}{}
	}
}

// Language normalizes a raw language tag to an ISO 639-2 code. Region
// and variant suffixes are stripped ("en-US" -> "en"), two-letter
// codes are widened via the 639-1 table, and anything outside the
// known-code allowlist collapses to "und". Total: never fails.
func Language(raw string) string {
	tag := strings.ToLower(strings.TrimSpace(raw))
	if tag == "" {
		return UndeterminedLanguage
	}

	base := tag
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		base = tag[:i]
	}

	code := base
	if len(base) == 2 {
		if mapped, ok := iso1to2[base]; ok {
			code = mapped
		}
	}

	if _, ok := knownCodes[code]; ok {
		return code
	}
	return UndeterminedLanguage
}
