package models

import "strings"

// DataType is the opaque type tag carried by pins and literals. The core
// never interprets these beyond equality and the catalog's compatibility
// table; the constants below are the tags the built-in catalog uses.
type DataType string

const (
	DataTypeAudio     DataType = "Audio"
	DataTypeTrigger   DataType = "Trigger"
	DataTypeFloat     DataType = "Float"
	DataTypeInt32     DataType = "Int32"
	DataTypeBool      DataType = "Bool"
	DataTypeTime      DataType = "Time"
	DataTypeString    DataType = "String"
	DataTypeWaveAsset DataType = "WaveAsset"
	DataTypeObject    DataType = "UObject"
)

const (
	arraySuffix = "[]"
	enumPrefix  = "Enum:"
)

// EnumType builds the tag for a named enum, e.g. EnumType("ENoiseType").
func EnumType(name string) DataType {
	return DataType(enumPrefix + name)
}

// IsEnum reports whether the tag names an enumerated type.
func (d DataType) IsEnum() bool {
	return strings.HasPrefix(string(d), enumPrefix)
}

// IsArray reports whether the tag is an array variant.
func (d DataType) IsArray() bool {
	return strings.HasSuffix(string(d), arraySuffix)
}

// Elem returns the element type of an array tag, or the tag itself.
func (d DataType) Elem() DataType {
	if d.IsArray() {
		return DataType(strings.TrimSuffix(string(d), arraySuffix))
	}

	return d
}

// Array returns the array variant of the tag.
func (d DataType) Array() DataType {
	if d.IsArray() {
		return d
	}

	return DataType(string(d) + arraySuffix)
}
