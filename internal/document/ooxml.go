package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"path"
	"regexp"
	"unicode/utf8"
)

// contentParts lists, per package kind, the part names whose text nodes carry
// user-visible content. Every other part is copied untouched.
var contentParts = map[string][]string{
	KindDocx: {
		"word/document.xml",
		"word/header*.xml",
		"word/footer*.xml",
		"word/footnotes.xml",
		"word/endnotes.xml",
		"word/comments.xml",
	},
	KindXlsx: {
		"xl/worksheets/sheet*.xml",
		"xl/sharedStrings.xml",
	},
	KindPptx: {
		"ppt/slides/slide*.xml",
		"ppt/notesSlides/notesSlide*.xml",
	},
}

func isContentPart(kind, name string) bool {
	for _, pattern := range contentParts[kind] {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func redactPackage(data []byte, kind string, fn func(string) string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s package: %v", ErrCorruptDocument, kind, err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.SetComment(zr.Comment)

	for _, f := range zr.File {
		if !isContentPart(kind, f.Name) {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("%w: copy %s: %v", ErrCorruptDocument, f.Name, err)
			}
			continue
		}

		raw, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrCorruptDocument, f.Name, err)
		}
		if !utf8.Valid(raw) {
			if err := zw.Copy(f); err != nil {
				return nil, fmt.Errorf("%w: copy %s: %v", ErrCorruptDocument, f.Name, err)
			}
			continue
		}

		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:          f.Name,
			Comment:       f.Comment,
			Method:        f.Method,
			Modified:      f.Modified,
			ExternalAttrs: f.ExternalAttrs,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: write %s: %v", ErrCorruptDocument, f.Name, err)
		}
		if _, err := w.Write(transformXML(raw, fn)); err != nil {
			return nil, fmt.Errorf("%w: write %s: %v", ErrCorruptDocument, f.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: close package: %v", ErrCorruptDocument, err)
	}
	return buf.Bytes(), nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// authorAttrRe matches author attributes (w:author on comments and tracked
// changes), which carry a person's display name inside markup.
var authorAttrRe = regexp.MustCompile(`(\s[A-Za-z_][\w.\-]*:author\s*=\s*")([^"<]*)(")`)

// transformXML applies fn to every character-data run of an XML part and to
// author attributes. Unchanged runs keep their original bytes, including the
// original entity encoding.
func transformXML(data []byte, fn func(string) string) []byte {
	var out bytes.Buffer
	out.Grow(len(data))

	i := 0
	for i < len(data) {
		if data[i] == '<' {
			end := bytes.IndexByte(data[i:], '>')
			if end < 0 {
				out.Write(data[i:])
				break
			}
			out.Write(transformTag(data[i:i+end+1], fn))
			i += end + 1
			continue
		}
		end := bytes.IndexByte(data[i:], '<')
		if end < 0 {
			end = len(data) - i
		}
		out.Write(transformCharData(data[i:i+end], fn))
		i += end
	}
	return out.Bytes()
}

func transformCharData(raw []byte, fn func(string) string) []byte {
	if len(bytes.TrimSpace(raw)) == 0 {
		return raw
	}
	text := html.UnescapeString(string(raw))
	out := fn(text)
	if out == text {
		return raw
	}
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(out))
	return buf.Bytes()
}

func transformTag(tag []byte, fn func(string) string) []byte {
	if !bytes.Contains(tag, []byte(":author")) {
		return tag
	}
	return authorAttrRe.ReplaceAllFunc(tag, func(m []byte) []byte {
		parts := authorAttrRe.FindSubmatch(m)
		value := html.UnescapeString(string(parts[2]))
		out := fn(value)
		if out == value {
			return m
		}
		var buf bytes.Buffer
		buf.Write(parts[1])
		_ = xml.EscapeText(&buf, []byte(out))
		buf.Write(parts[3])
		return buf.Bytes()
	})
}
