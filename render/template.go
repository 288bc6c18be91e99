package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"

	"github.com/pevans/dailybrief/digest"
)

// MainSelector is the card's root element; the screenshot is cropped to it.
const MainSelector = "#main"

//go:embed card.html
var cardSource string

var cardTemplate = template.Must(template.New("card").Parse(cardSource))

// HTML renders the card markup for rec.
func HTML(rec digest.Record) (string, error) {
	data, err := NewCardData(rec)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := cardTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute card template: %w", err)
	}
	return buf.String(), nil
}
