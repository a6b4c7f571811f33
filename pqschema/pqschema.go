package pqschema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

type (
	// Accumulator infers a parquet JSON schema from flat map rows as
	// they stream through, so callers never declare schemas up front.
	Accumulator struct {
		schema schemaNode
	}

	schemaNode struct {
		Tag    schemaTag     `json:"-"`
		Fields []*schemaNode `json:",omitempty"`
	}

	jsonSchemaNode struct {
		Tag    string            `json:",omitempty"`
		Fields []*jsonSchemaNode `json:",omitempty"`
	}

	schemaTag struct {
		Name           string
		Type           string
		ConvertedType  string
		RepetitionType repetitionType
		Encoding       string
	}

	repetitionType string
)

var (
	optional repetitionType = "OPTIONAL"
	required repetitionType = "REQUIRED"
)

func NewAccumulator() Accumulator {
	return Accumulator{
		schema: schemaNode{
			Tag: schemaTag{
				Name:           "parquet_go_root",
				RepetitionType: required,
			},
		},
	}
}

// WriteRow folds a row's columns into the accumulated schema. Columns
// already seen are skipped, new ones get a type from their Go value.
// Column names are capitalized once here so dedup and the emitted
// schema agree on the stored name.
func (a *Accumulator) WriteRow(row map[string]any) {
	for key, val := range row {
		if key == "" {
			continue
		}
		name := strings.ToUpper(key[:1]) + key[1:]
		if a.fieldExists(name) {
			continue
		}
		if node := fieldSchema(name, val); node != nil {
			a.schema.Fields = append(a.schema.Fields, node)
		}
	}
}

func fieldSchema(name string, item any) *schemaNode {
	node := &schemaNode{
		Tag: schemaTag{
			Name:           name,
			RepetitionType: optional,
		},
	}

	reflectType := reflect.TypeOf(item)
	if reflectType == nil {
		return nil
	}
	if reflectType.Kind() == reflect.Ptr {
		reflectType = reflectType.Elem()
	}

	if reflectType.Kind() == reflect.Slice {
		val := reflect.ValueOf(item)
		if val.Len() == 0 {
			return nil
		}
		node.Tag.Type = "LIST"
		node.Fields = append(node.Fields, fieldSchema("Element", val.Index(0).Interface()))
		return node
	}

	switch item.(type) {
	case string, *string:
		node.Tag.Type = "BYTE_ARRAY"
		node.Tag.ConvertedType = "UTF8"
		node.Tag.Encoding = "PLAIN"
	default:
		// numbers arrive as float64 from JSON
		node.Tag.Type = "DOUBLE"
	}

	return node
}

func (a *Accumulator) fieldExists(fieldName string) bool {
	for _, field := range a.schema.Fields {
		if field.Tag.Name == fieldName {
			return true
		}
	}
	return false
}

func (a *Accumulator) ColumnNames() []string {
	var cols []string
	for _, field := range a.schema.Fields {
		cols = append(cols, field.Tag.Name)
	}
	return cols
}

func (n *schemaNode) toJSONSchema() *jsonSchemaNode {
	var tagParts []string
	if n.Tag.Type != "" {
		tagParts = append(tagParts, "type="+n.Tag.Type)
	}
	if n.Tag.ConvertedType != "" {
		tagParts = append(tagParts, "convertedtype="+n.Tag.ConvertedType)
	}
	if n.Tag.Encoding != "" {
		tagParts = append(tagParts, "encoding="+n.Tag.Encoding)
	}
	if n.Tag.Name != "" {
		tagParts = append(tagParts, "name="+n.Tag.Name)
	}
	if string(n.Tag.RepetitionType) != "" {
		tagParts = append(tagParts, "repetitiontype="+string(n.Tag.RepetitionType))
	}
	var fields []*jsonSchemaNode
	for _, field := range n.Fields {
		fields = append(fields, field.toJSONSchema())
	}
	return &jsonSchemaNode{
		Tag:    strings.Join(tagParts, ", "),
		Fields: fields,
	}
}

// SchemaString returns the accumulated schema as a parquet-go JSON
// schema string.
func (a *Accumulator) SchemaString() (string, error) {
	var fields []*jsonSchemaNode
	for _, field := range a.schema.Fields {
		fields = append(fields, field.toJSONSchema())
	}
	root := jsonSchemaNode{
		Tag:    "name=parquet_go_root, repetitiontype=REQUIRED",
		Fields: fields,
	}

	b, err := json.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("error in json.Marshal: %w", err)
	}
	return string(b), nil
}
