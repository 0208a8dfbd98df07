// file: internal/catalog/compare.go
// version: 1.0.0
// guid: 0d2e4f6a-8b0c-4d2e-4f6a-8b0c2d4e6f8a

package catalog

import (
	"math"

	"github.com/ebooktools/calibre-manager/internal/models"
)

// seriesIndexEpsilon is the tolerance for series-index comparison;
// indices are user-entered decimals, so anything closer than this is
// the same value.
const seriesIndexEpsilon = 1e-9

// Compare produces the field-level diff between an existing catalog
// row's snapshot and incoming metadata. It is pure: no storage access,
// no mutation. Each clear flag is a hard skip of that column's write
// on the update path, so manually curated values survive re-imports.
func Compare(existing models.BookSnapshot, incoming models.BookMetadata) models.FieldChanges {
	var changes models.FieldChanges

	switch {
	case existing.PubDate == nil && incoming.PubDate == nil:
	case existing.PubDate == nil || incoming.PubDate == nil:
		changes.PubDate = true
	default:
		changes.PubDate = !existing.PubDate.Equal(*incoming.PubDate)
	}

	newIndex := 1.0
	if incoming.SeriesIndex != nil {
		newIndex = *incoming.SeriesIndex
	}
	if math.Abs(existing.SeriesIndex-newIndex) > seriesIndexEpsilon {
		changes.SeriesIndex = true
	}

	changes.Publisher = !optionalStringEqual(existing.Publisher, incoming.Publisher)
	changes.Series = !optionalStringEqual(existing.Series, incoming.Series)

	return changes
}

func optionalStringEqual(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
