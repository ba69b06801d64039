// Package fixtures embeds recorded provider payloads used by tests.
package fixtures

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/pedrolicio/instagram-carousel-generator/internal/document"
)

//go:embed testdata/*
var files embed.FS

// Load decodes the named JSON fixture file into dest.
func Load(name string, dest interface{}) error {
	data, err := Read(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decode fixture %s: %w", name, err)
	}
	return nil
}

// Document parses the named fixture into a document tree.
func Document(name string) (document.Value, error) {
	data, err := Read(name)
	if err != nil {
		return document.Value{}, err
	}
	doc, err := document.Parse(data)
	if err != nil {
		return document.Value{}, fmt.Errorf("parse fixture %s: %w", name, err)
	}
	return doc, nil
}

// Read returns the raw bytes for a fixture file.
func Read(name string) ([]byte, error) {
	data, err := files.ReadFile("testdata/" + name)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", name, err)
	}
	return data, nil
}
