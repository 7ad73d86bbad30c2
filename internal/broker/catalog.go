// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package broker

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/bridgemcp/bridge/jsonschema"
)

// CatalogEntry is one discovery-catalog item; no semantic interpretation
// is attached to it (§4.5.3).
type CatalogEntry struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Catalog is the bridge's discovery short-circuit: cached answers for
// tools/list, resources/list, prompts/list, populated at startup from a
// JSON file or lazily from the child's own initialize response (§4.5.3,
// §6.4).
type Catalog struct {
	v atomic.Pointer[catalogData]
}

type catalogData struct {
	Tools     []CatalogEntry
	Resources []CatalogEntry
	Prompts   []CatalogEntry
}

// NewCatalog returns an empty Catalog.
func NewCatalog() *Catalog {
	c := &Catalog{}
	c.v.Store(&catalogData{})
	return c
}

// catalogFile mirrors the on-disk JSON shape (§6.4).
type catalogFile struct {
	Tools     []CatalogEntry `json:"tools"`
	Resources []CatalogEntry `json:"resources"`
	Prompts   []CatalogEntry `json:"prompts"`
}

// LoadCatalogFile reads and structurally validates a tools-catalog file.
// Each entry's inputSchema, when present, must itself be a valid JSON
// Schema document (validated with the teacher's jsonschema package).
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("broker: read tools catalog %s: %w", path, err)
	}
	var f catalogFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("broker: parse tools catalog %s: %w", path, err)
	}
	for _, list := range [][]CatalogEntry{f.Tools, f.Resources, f.Prompts} {
		for _, e := range list {
			if len(e.InputSchema) == 0 {
				continue
			}
			var schema jsonschema.Schema
			if err := json.Unmarshal(e.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("broker: tool %q has invalid inputSchema: %w", e.Name, err)
			}
			if _, err := schema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true}); err != nil {
				return nil, fmt.Errorf("broker: tool %q has invalid inputSchema: %w", e.Name, err)
			}
		}
	}
	c := NewCatalog()
	c.v.Store(&catalogData{Tools: f.Tools, Resources: f.Resources, Prompts: f.Prompts})
	return c, nil
}

// Tools, Resources, and Prompts return the current catalog snapshot for
// tools/list, resources/list, prompts/list respectively.
func (c *Catalog) Tools() []CatalogEntry     { return c.v.Load().Tools }
func (c *Catalog) Resources() []CatalogEntry { return c.v.Load().Resources }
func (c *Catalog) Prompts() []CatalogEntry   { return c.v.Load().Prompts }

// AdoptFromInitialize lazily populates an empty catalog from the
// child's own initialize response, per §6.4 "If absent, the catalog
// starts empty and is populated lazily from the child's own initialize
// response." Only fields the bridge doesn't already have are adopted,
// and only if the catalog is still entirely empty — an explicitly
// configured catalog file always wins.
func (c *Catalog) AdoptFromInitialize(result json.RawMessage) {
	cur := c.v.Load()
	if len(cur.Tools) > 0 || len(cur.Resources) > 0 || len(cur.Prompts) > 0 {
		return
	}
	var parsed struct {
		Tools     []CatalogEntry `json:"tools"`
		Resources []CatalogEntry `json:"resources"`
		Prompts   []CatalogEntry `json:"prompts"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return
	}
	if len(parsed.Tools) == 0 && len(parsed.Resources) == 0 && len(parsed.Prompts) == 0 {
		return
	}
	c.v.Store(&catalogData{Tools: parsed.Tools, Resources: parsed.Resources, Prompts: parsed.Prompts})
}
