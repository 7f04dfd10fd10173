package db

// IndexBuilder assembles an IndexDefinition:
//
//	db.NewIndex("triage:issues:idx").OnJSON().Prefix("triage:issue:").
//		TagAs("$.status", "status").MustBuild()
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts a definition over hashes.
func NewIndex(name string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name, StorageType: StorageHash}}
}

// OnJSON switches the index to JSON documents.
func (b *IndexBuilder) OnJSON() *IndexBuilder {
	b.def.StorageType = StorageJSON
	return b
}

// Prefix adds key prefixes the index covers.
func (b *IndexBuilder) Prefix(prefixes ...string) *IndexBuilder {
	b.def.Prefixes = append(b.def.Prefixes, prefixes...)
	return b
}

func (b *IndexBuilder) add(f IndexField) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, f)
	return b
}

// Tag indexes a hash field as TAG.
func (b *IndexBuilder) Tag(field string) *IndexBuilder {
	return b.add(IndexField{Path: field, Kind: FieldTag})
}

// TagAs indexes a JSON path as TAG under alias.
func (b *IndexBuilder) TagAs(path, alias string) *IndexBuilder {
	return b.add(IndexField{Path: path, Alias: alias, Kind: FieldTag})
}

// Numeric indexes a hash field as NUMERIC.
func (b *IndexBuilder) Numeric(field string) *IndexBuilder {
	return b.add(IndexField{Path: field, Kind: FieldNumeric})
}

// NumericAs indexes a JSON path as NUMERIC under alias; sortable fields can back SORTBY.
func (b *IndexBuilder) NumericAs(path, alias string, sortable bool) *IndexBuilder {
	return b.add(IndexField{Path: path, Alias: alias, Kind: FieldNumeric, Sortable: sortable})
}

// VectorHNSW indexes a FLOAT32 blob field with an HNSW graph.
func (b *IndexBuilder) VectorHNSW(field string, dim int, distance DistanceMetric, m, efConstruct int) *IndexBuilder {
	return b.add(IndexField{
		Path:     field,
		Kind:     FieldVector,
		Dim:      dim,
		Distance: distance,
		Graph:    HNSW{M: m, EFConstruct: efConstruct},
	})
}

// Build validates the definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	def := b.def
	return &def, nil
}

// MustBuild is Build for package-level schemas known to be valid.
func (b *IndexBuilder) MustBuild() *IndexDefinition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}
