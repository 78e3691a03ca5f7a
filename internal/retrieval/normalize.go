package retrieval

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/retailmind-cli/internal/dataset"
)

// Normalize converts v into JSON-native values: NaN and ±Inf become nil,
// float32 widens to float64, time.Time becomes an RFC3339 string, structs
// become ordered records keyed by their json tags, and maps, slices and
// pointers are walked recursively.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return x
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case time.Time:
		return x.Format(time.RFC3339)
	case json.Number:
		return x
	case dataset.Record:
		out := make(dataset.Record, len(x))
		for i, f := range x {
			out[i] = dataset.Field{Name: f.Name, Value: Normalize(f.Value)}
		}
		return out
	case []Section:
		out := make(dataset.Record, len(x))
		for i, s := range x {
			out[i] = dataset.Field{Name: s.Key, Value: Normalize(s.Value)}
		}
		return out
	}
	return normalizeReflect(reflect.ValueOf(v))
}

func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func normalizeReflect(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Invalid:
		return nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return finite(rv.Float())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[mapKey(iter.Key())] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Struct:
		return normalizeStruct(rv)
	}
	return fmt.Sprint(rv.Interface())
}

func mapKey(k reflect.Value) string {
	switch k.Kind() {
	case reflect.String:
		return k.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10)
	}
	return fmt.Sprint(k.Interface())
}

// normalizeStruct keeps field order and honors json names, "-" and omitempty.
func normalizeStruct(rv reflect.Value) dataset.Record {
	rt := rv.Type()
	out := make(dataset.Record, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		omitEmpty := false
		if tag, ok := sf.Tag.Lookup("json"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" && len(parts) == 1 {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
			for _, p := range parts[1:] {
				if p == "omitempty" {
					omitEmpty = true
				}
			}
		}
		fv := rv.Field(i)
		if omitEmpty && isEmpty(fv) {
			continue
		}
		out = append(out, dataset.Field{Name: name, Value: Normalize(fv.Interface())})
	}
	return out
}

func isEmpty(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array, reflect.String:
		return v.Len() == 0
	}
	return v.IsZero()
}

// SectionsFromMap orders a map's keys alphabetically so chunking is
// deterministic.
func SectionsFromMap(m map[string]any) []Section {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Section, len(keys))
	for i, k := range keys {
		out[i] = Section{Key: k, Value: m[k]}
	}
	return out
}
