package schemas

// Record is one raw bibliographic record as decoded from the Zotero API or a
// local JSON export: a generic map, because the upstream payload shape varies
// by item type and API version.
type Record map[string]any

// Data returns the nested "data" object when present, otherwise the record
// itself. API responses wrap fields in "data"; flat exports do not.
func (r Record) Data() Record {
	if d, ok := r["data"].(map[string]any); ok {
		return Record(d)
	}
	return r
}

// Key returns the record's Zotero key, or "" when absent.
func (r Record) Key() string {
	return r.Data().String("key")
}

// String returns the named field as a string, or "" when absent or of
// another type.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// IsItem reports whether the record describes an item. Items always carry an
// itemType in their data object.
func (r Record) IsItem() bool {
	return r.Data().String("itemType") != ""
}

// IsCollection reports whether the record describes a collection: it has a
// name but no itemType.
func (r Record) IsCollection() bool {
	d := r.Data()
	return d.String("itemType") == "" && d.String("name") != ""
}
