// Package parser extracts listing fields from reverse lookup result pages.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// Default selectors for the reverse lookup result page.
const (
	DefaultContainerSelector = "div.founditem_content.reverse"
	DefaultNameSelector      = `meta[itemprop="name"]`
	DefaultPhoneSelector     = `meta[itemprop="telephone"]`
)

var (
	// ErrNoListing signals the page has no result container.
	ErrNoListing = errors.New("no listing found")
	// ErrMissingField signals the container lacks a required field.
	ErrMissingField = errors.New("listing field missing")
)

// Listing is the structured content of one result block.
type Listing struct {
	Name      string
	Telephone string
}

// Selectors configures where fields are located.
type Selectors struct {
	Container string
	Name      string
	Phone     string
}

// Parser extracts a Listing from an HTML document.
type Parser struct {
	sel Selectors
}

// New builds a Parser, filling blank selectors with defaults.
func New(sel Selectors) *Parser {
	if sel.Container == "" {
		sel.Container = DefaultContainerSelector
	}
	if sel.Name == "" {
		sel.Name = DefaultNameSelector
	}
	if sel.Phone == "" {
		sel.Phone = DefaultPhoneSelector
	}
	return &Parser{sel: sel}
}

// Parse returns the first listing in body, ErrNoListing when there is none, or
// an ErrMissingField error when the listing is malformed.
func (p *Parser) Parse(body []byte) (Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Listing{}, fmt.Errorf("parse document: %w", err)
	}
	container := doc.Find(p.sel.Container).First()
	if container.Length() == 0 {
		return Listing{}, ErrNoListing
	}

	name, err := metaContent(container, p.sel.Name)
	if err != nil {
		return Listing{}, err
	}
	phone, err := metaContent(container, p.sel.Phone)
	if err != nil {
		return Listing{}, err
	}
	return Listing{
		Name:      norm.NFC.String(name),
		Telephone: phone,
	}, nil
}

func metaContent(scope *goquery.Selection, selector string) (string, error) {
	node := scope.Find(selector).First()
	if node.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrMissingField, selector)
	}
	content, ok := node.Attr("content")
	content = strings.TrimSpace(content)
	if !ok || content == "" {
		return "", fmt.Errorf("%w: %s has no content", ErrMissingField, selector)
	}
	return content, nil
}
