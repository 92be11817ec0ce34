// Package lake writes and reads tables as Snappy-compressed Parquet in a
// Hive-style directory layout:
//
//	<table>/<col1>=<v1>/<col2>=<v2>/part-00000-<token>.snappy.parquet
//	<table>/_SUCCESS
//
// Partition columns live only in the directory names, never inside the
// files. Null and empty partition values map to __HIVE_DEFAULT_PARTITION__.
package lake

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// DefaultPartition is the directory value used for null or empty partition
// values.
const DefaultPartition = "__HIVE_DEFAULT_PARTITION__"

// SuccessMarker is written last by every successful table write.
const SuccessMarker = "_SUCCESS"

// Mode selects how a write treats existing data.
type Mode string

const (
	// ModeOverwrite replaces the whole table.
	ModeOverwrite Mode = "overwrite"
	// ModeMerge replaces only the partitions present in the new rows, after
	// unioning them with the rows already stored there. New rows replace
	// every stored row sharing their Table.Key.
	ModeMerge Mode = "merge"
	// ModeAppend adds new part files and never deletes.
	ModeAppend Mode = "append"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeOverwrite, ModeMerge, ModeAppend:
		return m, nil
	}
	return "", errors.Newf("unknown write mode %q", s)
}

// Table describes how rows of type T are laid out on storage. F is the
// Parquet file-row struct: its parquet tags define the file schema and it
// must not carry the partition columns.
type Table[T, F any] struct {
	Name string

	// PartitionBy names the partition columns in directory order.
	PartitionBy []string

	// Partition returns one raw value per PartitionBy column. The empty
	// string stands for null.
	Partition func(T) []string

	// Encode projects a row to its file row.
	Encode func(T) F

	// Decode rebuilds a row from a file row and the partition values parsed
	// from its directory. Required by Read and ModeMerge.
	Decode func(F, []string) T

	// Key groups rows for ModeMerge. Several rows may share a key; they are
	// replaced together.
	Key func(T) string
}

func (t Table[T, F]) validate(mode Mode) error {
	if t.Name == "" || strings.Contains(t.Name, "/") {
		return errors.Newf("invalid table name %q", t.Name)
	}
	if t.Encode == nil {
		return errors.Newf("table %s: no encoder", t.Name)
	}
	if len(t.PartitionBy) > 0 && t.Partition == nil {
		return errors.Newf("table %s: partition columns without partition function", t.Name)
	}
	if mode == ModeMerge && (t.Key == nil || t.Decode == nil) {
		return errors.Newf("table %s: merge needs Key and Decode", t.Name)
	}
	return nil
}

// partitionFunc returns nil for unpartitioned tables.
func (t Table[T, F]) partitionFunc() func(T) []string {
	if len(t.PartitionBy) == 0 {
		return nil
	}
	return t.Partition
}

// Dir returns the key prefix (no trailing slash) of the partition holding
// values.
func (t Table[T, F]) Dir(values []string) string {
	var b strings.Builder
	b.WriteString(t.Name)
	for i, col := range t.PartitionBy {
		v := ""
		if i < len(values) {
			v = values[i]
		}
		b.WriteByte('/')
		b.WriteString(col)
		b.WriteByte('=')
		b.WriteString(EscapePartitionValue(v))
	}
	return b.String()
}

// partitionValues parses the partition values out of a part-file key. Keys
// that do not belong to the table's layout return ok=false.
func (t Table[T, F]) partitionValues(key string) ([]string, bool) {
	rest, ok := strings.CutPrefix(key, t.Name+"/")
	if !ok {
		return nil, false
	}
	segs := strings.Split(rest, "/")
	if len(segs) != len(t.PartitionBy)+1 {
		return nil, false
	}
	values := make([]string, len(t.PartitionBy))
	for i, col := range t.PartitionBy {
		v, ok := strings.CutPrefix(segs[i], col+"=")
		if !ok {
			return nil, false
		}
		values[i] = UnescapePartitionValue(v)
	}
	return values, true
}

// needsEscape reports the characters Hive escapes in partition directory
// names.
func needsEscape(c byte) bool {
	if c < 0x20 || c == 0x7f {
		return true
	}
	switch c {
	case '"', '#', '%', '\'', '*', '/', ':', '=', '?', '\\', '{', '[', ']', '^':
		return true
	}
	return false
}

// EscapePartitionValue renders a value as a directory name component.
func EscapePartitionValue(v string) string {
	if v == "" {
		return DefaultPartition
	}
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		c := v[i]
		if needsEscape(c) {
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0xf])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// UnescapePartitionValue reverses EscapePartitionValue. The default partition
// decodes to the empty string.
func UnescapePartitionValue(s string) string {
	if s == DefaultPartition {
		return ""
	}
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if ok1 && ok2 {
				b.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func unhex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
