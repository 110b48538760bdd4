// Package openapi embeds the HTTP contract of the production API.
package openapi

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var document []byte

var (
	loadOnce sync.Once
	loaded   *openapi3.T
	loadErr  error
)

// Spec returns the raw YAML document.
func Spec() []byte {
	return document
}

// Load parses and validates the embedded document. The result is cached.
func Load() (*openapi3.T, error) {
	loadOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(document)
		if err != nil {
			loadErr = fmt.Errorf("load openapi document: %w", err)
			return
		}
		if err := doc.Validate(loader.Context); err != nil {
			loadErr = fmt.Errorf("validate openapi document: %w", err)
			return
		}
		loaded = doc
	})
	return loaded, loadErr
}
