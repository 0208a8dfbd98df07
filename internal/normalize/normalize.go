// file: internal/normalize/normalize.go
// version: 1.0.0
// guid: 7a1b3c5d-9e0f-4a2b-8c4d-6e8f0a2b4c6d

package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// nameSuffixes stay attached to the surname when building a sort key.
var nameSuffixes = []string{"Jr.", "Sr.", "Jr", "Sr", "II", "III", "IV"}

// titleSortArticles is the article set used for the catalog sort
// column. Calibre's title_sort trigger function recognizes a handful
// of non-English articles as well.
var titleSortArticles = []string{
	"the ", "a ", "an ", "le ", "la ", "les ", "el ", "los ", "las ",
}

// englishArticles is the narrower set used when minting the derived
// sort title on book creation.
var englishArticles = []string{"The ", "A ", "An "}

// AuthorSort converts a display name to "Surname[, Suffix], Given"
// form. A trailing generational suffix (Jr., III, ...) is kept with
// the surname. Single-token names are returned unchanged.
func AuthorSort(displayName string) string {
	name := strings.TrimSpace(norm.NFC.String(displayName))
	parts := strings.Fields(name)
	if len(parts) <= 1 {
		return name
	}

	surname := []string{parts[len(parts)-1]}
	givenEnd := len(parts) - 1

	if len(parts) > 2 {
		secondLast := parts[len(parts)-2]
		for _, suffix := range nameSuffixes {
			if strings.EqualFold(secondLast, suffix) {
				surname = append([]string{secondLast}, surname...)
				givenEnd = len(parts) - 2
				break
			}
		}
	}

	given := strings.Join(parts[:givenEnd], " ")
	if given == "" {
		return strings.Join(surname, " ")
	}
	return strings.Join(surname, " ") + ", " + given
}

// TitleSort moves a leading article to the end of the title, after a
// comma. It recognizes the full article set used by the catalog's
// title_sort SQL function.
func TitleSort(title string) string {
	title = norm.NFC.String(title)
	lower := strings.ToLower(title)
	for _, article := range titleSortArticles {
		if strings.HasPrefix(lower, article) {
			n := len(article)
			return title[n:] + ", " + title[:n-1]
		}
	}
	return title
}

// TitleSortEnglish is the creation-time variant: only English articles
// move, and a title that is nothing but an article is left alone.
func TitleSortEnglish(title string) string {
	title = strings.TrimSpace(norm.NFC.String(title))
	for _, article := range englishArticles {
		if len(title) > len(article) && strings.HasPrefix(title, article) {
			rest := title[len(article):]
			return rest + ", " + strings.TrimSpace(article)
		}
	}
	return title
}
