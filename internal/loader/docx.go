package loader

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"docqa/internal/domain"
)

var errNoDocumentXML = errors.New("word/document.xml not found")

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []struct {
		Content string `xml:",chardata"`
	} `xml:"t"`
}

func loadDOCX(path string) ([]domain.Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		text, err := parseDocumentXML(raw)
		if err != nil {
			return nil, err
		}
		return []domain.Document{{Content: text, Metadata: domain.Metadata{}}}, nil
	}
	return nil, errNoDocumentXML
}

// parseDocumentXML joins the text runs of each paragraph, one paragraph per line.
func parseDocumentXML(raw []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("parse document.xml: %w", err)
	}
	var b strings.Builder
	for i, p := range doc.Body.Paragraphs {
		if i > 0 {
			b.WriteString("\n")
		}
		for _, r := range p.Runs {
			for _, t := range r.Text {
				b.WriteString(t.Content)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}
