package db

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// StorageType is the document type an FT index covers.
type StorageType string

const (
	StorageHash StorageType = "HASH"
	StorageJSON StorageType = "JSON"
)

// DistanceMetric of a vector field. Stored vectors are unit length, so IP and
// COSINE rank identically; IP skips the norm.
type DistanceMetric string

const (
	DistanceIP     DistanceMetric = "IP"
	DistanceCosine DistanceMetric = "COSINE"
)

// FieldKind enumerates the schema field types the repositories index.
type FieldKind int

const (
	FieldTag FieldKind = iota + 1
	FieldNumeric
	FieldVector
)

// HNSW holds the graph parameters of a vector field. Zero values use server defaults.
type HNSW struct {
	M           int
	EFConstruct int
}

// IndexField is one SCHEMA entry. Tags are always case sensitive since they hold ids.
type IndexField struct {
	Path     string // hash field or JSON path
	Alias    string
	Kind     FieldKind
	Sortable bool

	Dim      int
	Distance DistanceMetric
	Graph    HNSW
}

// Name is how queries refer to the field.
func (f *IndexField) Name() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Path
}

// IndexDefinition is the input of FT.CREATE.
type IndexDefinition struct {
	Name        string
	StorageType StorageType
	Prefixes    []string
	Fields      []IndexField
}

var identRe = regexp.MustCompile(`^[a-zA-Z0-9_:-]+$`)

// Validate checks the definition before it reaches the server.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !identRe.MatchString(idx.Name) {
		return fmt.Errorf("index name %q contains invalid characters", idx.Name)
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]struct{}, len(idx.Fields))
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Path == "" {
			return fmt.Errorf("field %d: path is required", i)
		}
		if _, dup := seen[f.Name()]; dup {
			return fmt.Errorf("duplicate field name: %s", f.Name())
		}
		seen[f.Name()] = struct{}{}

		switch f.Kind {
		case FieldTag, FieldNumeric:
		case FieldVector:
			if f.Dim <= 0 {
				return fmt.Errorf("vector field %s requires positive DIM", f.Name())
			}
		default:
			return fmt.Errorf("field %s: unknown kind %d", f.Name(), f.Kind)
		}
	}
	return nil
}

// Args renders the FT.CREATE arguments after the command name.
func (idx *IndexDefinition) Args() []string {
	storage := idx.StorageType
	if storage == "" {
		storage = StorageHash
	}
	args := []string{idx.Name, "ON", string(storage)}
	if len(idx.Prefixes) > 0 {
		args = append(args, "PREFIX", strconv.Itoa(len(idx.Prefixes)))
		args = append(args, idx.Prefixes...)
	}
	args = append(args, "SCHEMA")
	for i := range idx.Fields {
		args = append(args, idx.Fields[i].args()...)
	}
	return args
}

// String resembles the FT.CREATE command, for logs.
func (idx *IndexDefinition) String() string {
	return "FT.CREATE " + strings.Join(idx.Args(), " ")
}

func (f *IndexField) args() []string {
	out := []string{f.Path}
	if f.Alias != "" {
		out = append(out, "AS", f.Alias)
	}

	switch f.Kind {
	case FieldTag:
		out = append(out, "TAG", "CASESENSITIVE")
	case FieldNumeric:
		out = append(out, "NUMERIC")
	case FieldVector:
		distance := f.Distance
		if distance == "" {
			distance = DistanceCosine
		}
		attrs := []string{
			"TYPE", "FLOAT32",
			"DIM", strconv.Itoa(f.Dim),
			"DISTANCE_METRIC", string(distance),
		}
		if f.Graph.M > 0 {
			attrs = append(attrs, "M", strconv.Itoa(f.Graph.M))
		}
		if f.Graph.EFConstruct > 0 {
			attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(f.Graph.EFConstruct))
		}
		out = append(out, "VECTOR", "HNSW", strconv.Itoa(len(attrs)))
		out = append(out, attrs...)
	}

	if f.Sortable && f.Kind != FieldVector {
		out = append(out, "SORTABLE")
	}
	return out
}
