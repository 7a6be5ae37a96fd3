package log

import "time"

// Field is a single structured key/value pair.
type Field struct {
	Key   string
	Value interface{}
}

// Str creates a string field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int creates an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 creates an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Bool creates a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Duration creates a field holding d in milliseconds under key.
func Duration(key string, d time.Duration) Field { return Field{Key: key, Value: d.Milliseconds()} }

// Any creates a field with an arbitrary value.
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Err creates an "error" field. A nil error yields an empty value.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Component tags the owning subsystem.
func Component(name string) Field { return Field{Key: ComponentKey, Value: name} }

// Operation tags the operation being performed.
func Operation(name string) Field { return Field{Key: OperationKey, Value: name} }

// Domain tags the business domain (e.g. "realtime").
func Domain(name string) Field { return Field{Key: DomainKey, Value: name} }

// Org tags the organization (tenant) id.
func Org(id string) Field { return Field{Key: OrgKey, Value: id} }
