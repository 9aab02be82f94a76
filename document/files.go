package document

import (
	"fmt"
	"os"

	"github.com/guyvdb/tierdoc/types"
)

// SetJSON parses text as a JSON object or array and sets it.
func (d *Document) SetJSON(name, text string) (*Item, error) {
	v, err := types.ParseJSON(text)
	if err != nil {
		return nil, err
	}
	return d.Set(name, v)
}

// SetXML parses text as an XML document and sets its root element.
func (d *Document) SetXML(name, text string) (*Item, error) {
	v, err := types.ParseXML(text)
	if err != nil {
		return nil, err
	}
	return d.Set(name, v)
}

// SetFromFile sets the contents of a file as a text value.
func (d *Document) SetFromFile(name, path string) (*Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return d.Set(name, types.TextValue(string(data)))
}

// SetXMLFromFile parses a file as XML and sets its root element.
func (d *Document) SetXMLFromFile(name, path string) (*Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return d.SetXML(name, string(data))
}

// SetJSONFromFile parses a file as JSON and sets it.
func (d *Document) SetJSONFromFile(name, path string) (*Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return d.SetJSON(name, string(data))
}
