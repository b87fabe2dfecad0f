package zotero

import (
	"fmt"
	"os"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
)

// RecordKind classifies a local JSON file's contents.
type RecordKind string

const (
	KindItems       RecordKind = "items"
	KindCollections RecordKind = "collections"
)

// LoadRecords reads a JSON array of records from disk.
func LoadRecords(path string) ([]schemas.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var records []schemas.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s: expected a JSON array of records: %w", path, err)
	}
	return records, nil
}

// Classify sniffs whether a record list holds items or collections: items
// carry data.itemType, collections carry data.name. Mixed or unrecognizable
// content is an error.
func Classify(records []schemas.Record) (RecordKind, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("cannot classify an empty record list")
	}
	items, collections := true, true
	for _, r := range records {
		if !r.IsItem() {
			items = false
		}
		if !r.IsCollection() {
			collections = false
		}
	}
	switch {
	case items:
		return KindItems, nil
	case collections:
		return KindCollections, nil
	default:
		return "", fmt.Errorf("could not classify records as items or collections")
	}
}
