// file: internal/epub/epub.go
// version: 1.0.0
// guid: 6d8e0f2a-4b6c-4d8e-0f2a-4b6c8d0e2f4a

// Package epub reads book metadata and cover images out of EPUB
// containers. An EPUB is a zip archive whose META-INF/container.xml
// points at an OPF package document holding the Dublin Core metadata.
package epub

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/ebooktools/calibre-manager/internal/models"
	"github.com/ebooktools/calibre-manager/internal/normalize"
)

type container struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	Metadata opfMetadata `xml:"metadata"`
	Manifest struct {
		Items []opfItem `xml:"item"`
	} `xml:"manifest"`
}

type opfMetadata struct {
	Titles      []string        `xml:"title"`
	Creators    []string        `xml:"creator"`
	Description string          `xml:"description"`
	Rights      string          `xml:"rights"`
	Language    string          `xml:"language"`
	Publisher   string          `xml:"publisher"`
	Date        string          `xml:"date"`
	Identifiers []opfIdentifier `xml:"identifier"`
	Metas       []opfMeta       `xml:"meta"`
}

type opfIdentifier struct {
	Scheme string `xml:"scheme,attr"`
	Value  string `xml:",chardata"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"`
	Property string `xml:"property,attr"`
	Value    string `xml:",chardata"`
}

// metaValue resolves a named metadata entry from either the EPUB 2
// <meta name= content=> form or the EPUB 3 <meta property=> form.
func (m opfMetadata) metaValue(name string) string {
	for _, meta := range m.Metas {
		if meta.Name == name && meta.Content != "" {
			return meta.Content
		}
		if meta.Property == name {
			return strings.TrimSpace(meta.Value)
		}
	}
	return ""
}

// ReadMetadata extracts bibliographic metadata from an EPUB file.
// Title and creator are mandatory; everything else is optional.
func ReadMetadata(filePath string) (models.BookMetadata, error) {
	var meta models.BookMetadata

	pkg, _, err := readPackage(filePath)
	if err != nil {
		return meta, err
	}

	if len(pkg.Metadata.Titles) == 0 || strings.TrimSpace(pkg.Metadata.Titles[0]) == "" {
		return meta, fmt.Errorf("EPUB has no title metadata: %s", filePath)
	}
	if len(pkg.Metadata.Creators) == 0 || strings.TrimSpace(pkg.Metadata.Creators[0]) == "" {
		return meta, fmt.Errorf("EPUB has no author (creator) metadata: %s", filePath)
	}

	meta.Title = strings.TrimSpace(pkg.Metadata.Titles[0])
	meta.Author = strings.TrimSpace(pkg.Metadata.Creators[0])
	meta.SourcePath = filePath

	if v := strings.TrimSpace(pkg.Metadata.Description); v != "" {
		meta.Description = &v
	}
	if v := strings.TrimSpace(pkg.Metadata.Rights); v != "" {
		meta.Rights = &v
	}
	if v := strings.TrimSpace(pkg.Metadata.Publisher); v != "" {
		meta.Publisher = &v
	}
	if v := pkg.Metadata.metaValue("subtitle"); v != "" {
		meta.Subtitle = &v
	}
	if v := strings.TrimSpace(pkg.Metadata.Language); v != "" {
		code := normalize.Language(v)
		meta.Language = &code
	}

	if isbn := findISBN(pkg.Metadata.Identifiers); isbn != "" {
		meta.ISBN = &isbn
	}

	if v := strings.TrimSpace(pkg.Metadata.Date); v != "" {
		if t, ok := parseDate(v); ok {
			meta.PubDate = &t
		}
	}

	meta.Series, meta.SeriesIndex = findSeries(pkg.Metadata, meta.Title)

	info, err := os.Stat(filePath)
	if err != nil {
		return meta, fmt.Errorf("failed to get file size for %s: %w", filePath, err)
	}
	meta.FileSize = info.Size()

	return meta, nil
}

// ExtractCover returns the cover image bytes from an EPUB, located via
// the EPUB 3 cover-image manifest property or the EPUB 2 cover meta.
// A book without a cover returns nil bytes and no error.
func ExtractCover(filePath string) ([]byte, error) {
	reader, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open EPUB %s: %w", filePath, err)
	}
	defer reader.Close()

	pkg, opfPath, err := parsePackage(&reader.Reader)
	if err != nil {
		return nil, err
	}

	href := coverHref(pkg)
	if href == "" {
		return nil, nil
	}

	coverPath := path.Join(path.Dir(opfPath), href)
	data, err := readZipFile(&reader.Reader, coverPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cover %s: %w", coverPath, err)
	}
	return data, nil
}

func coverHref(pkg opfPackage) string {
	for _, item := range pkg.Manifest.Items {
		if strings.Contains(item.Properties, "cover-image") {
			return item.Href
		}
	}
	coverID := pkg.Metadata.metaValue("cover")
	if coverID == "" {
		return ""
	}
	for _, item := range pkg.Manifest.Items {
		if item.ID == coverID {
			return item.Href
		}
	}
	return ""
}

func readPackage(filePath string) (opfPackage, string, error) {
	reader, err := zip.OpenReader(filePath)
	if err != nil {
		return opfPackage{}, "", fmt.Errorf("failed to open EPUB %s: %w", filePath, err)
	}
	defer reader.Close()
	return parsePackage(&reader.Reader)
}

func parsePackage(r *zip.Reader) (opfPackage, string, error) {
	var pkg opfPackage

	containerData, err := readZipFile(r, "META-INF/container.xml")
	if err != nil {
		return pkg, "", fmt.Errorf("failed to read container.xml: %w", err)
	}

	var cont container
	if err := xml.Unmarshal(containerData, &cont); err != nil {
		return pkg, "", fmt.Errorf("failed to parse container.xml: %w", err)
	}
	if len(cont.Rootfiles) == 0 || cont.Rootfiles[0].FullPath == "" {
		return pkg, "", fmt.Errorf("container.xml names no package document")
	}

	opfPath := cont.Rootfiles[0].FullPath
	opfData, err := readZipFile(r, opfPath)
	if err != nil {
		return pkg, "", fmt.Errorf("failed to read package document %s: %w", opfPath, err)
	}
	if err := xml.Unmarshal(opfData, &pkg); err != nil {
		return pkg, "", fmt.Errorf("failed to parse package document %s: %w", opfPath, err)
	}
	return pkg, opfPath, nil
}

func readZipFile(r *zip.Reader, name string) ([]byte, error) {
	for _, f := range r.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("entry %s not found in archive", name)
}

// findISBN scans identifier entries for an ISBN: a urn:isbn: prefix
// wins, otherwise any identifier whose digits form a 10- or 13-digit
// number.
func findISBN(identifiers []opfIdentifier) string {
	for _, id := range identifiers {
		value := strings.TrimSpace(id.Value)
		if strings.HasPrefix(value, "urn:isbn:") {
			return strings.TrimPrefix(value, "urn:isbn:")
		}
		var digits strings.Builder
		for _, c := range value {
			if c >= '0' && c <= '9' {
				digits.WriteRune(c)
			}
		}
		if digits.Len() == 10 || digits.Len() == 13 {
			return digits.String()
		}
	}
	return ""
}

// parseDate tries the publication date formats seen in the wild, from
// most to least specific.
func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	for _, layout := range []string{"2006-01-02", "2 January 2006", "2 Jan 2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	if t, err := time.Parse("2006-01-02", raw+"-01"); err == nil {
		return t.UTC(), true
	}
	if year, err := strconv.Atoi(raw); err == nil && year > 0 {
		return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// findSeries resolves series name and index from calibre meta entries,
// falling back to the "Series Name #N - Book Title" title convention.
func findSeries(meta opfMetadata, title string) (*string, *float64) {
	var series *string
	var index *float64

	if v := meta.metaValue("calibre:series"); v != "" {
		series = &v
	} else if hashIdx := strings.Index(title, "#"); hashIdx >= 0 {
		if strings.Contains(title[hashIdx:], "-") {
			if part := strings.TrimSpace(title[:hashIdx]); part != "" {
				series = &part
			}
		}
	}

	if v := meta.metaValue("calibre:series_index"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			index = &f
		}
	}
	if index == nil {
		if hashIdx := strings.Index(title, "#"); hashIdx >= 0 {
			rest := title[hashIdx+1:]
			end := 0
			for end < len(rest) && (rest[end] >= '0' && rest[end] <= '9' || rest[end] == '.') {
				end++
			}
			if f, err := strconv.ParseFloat(rest[:end], 64); err == nil {
				index = &f
			}
		}
	}

	return series, index
}
