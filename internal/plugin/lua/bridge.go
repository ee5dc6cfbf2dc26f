package lua

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	lua "github.com/yuin/gopher-lua"
)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
)

// ToLua converts a Go value into a Lua value.
//
// Structs become tables keyed by their json tag or, without one, by the
// snake_case field name. Durations are seconds, times are RFC 3339 strings
// and errors are their message. Values with no Lua equivalent become
// userdata.
func ToLua(L *lua.LState, v any) lua.LValue {
	if v == nil {
		return lua.LNil
	}
	if lv, ok := v.(lua.LValue); ok {
		return lv
	}
	return reflectToLua(L, reflect.ValueOf(v), 0)
}

const maxDepth = 32

func reflectToLua(L *lua.LState, rv reflect.Value, depth int) lua.LValue {
	if !rv.IsValid() || depth > maxDepth {
		return lua.LNil
	}

	switch rv.Type() {
	case durationType:
		return lua.LNumber(time.Duration(rv.Int()).Seconds())
	case timeType:
		return lua.LString(rv.Interface().(time.Time).Format(time.RFC3339Nano))
	}
	if rv.Type().Implements(errorType) && rv.Kind() != reflect.Struct {
		if rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				return lua.LNil
			}
		}
		return lua.LString(rv.Interface().(error).Error())
	}
	if k := rv.Kind(); k == reflect.Struct || k == reflect.Array {
		if tm, ok := rv.Interface().(encoding.TextMarshaler); ok {
			if b, err := tm.MarshalText(); err == nil {
				return lua.LString(b)
			}
		}
	}

	switch rv.Kind() {
	case reflect.Bool:
		return lua.LBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return lua.LNumber(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.String:
		return lua.LString(rv.String())
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return lua.LNil
		}
		return reflectToLua(L, rv.Elem(), depth+1)
	case reflect.Slice:
		if rv.IsNil() {
			return L.NewTable()
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return lua.LString(rv.Bytes())
		}
		fallthrough
	case reflect.Array:
		t := L.CreateTable(rv.Len(), 0)
		for i := range rv.Len() {
			t.RawSetInt(i+1, reflectToLua(L, rv.Index(i), depth+1))
		}
		return t
	case reflect.Map:
		t := L.CreateTable(0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			t.RawSet(reflectToLua(L, iter.Key(), depth+1), reflectToLua(L, iter.Value(), depth+1))
		}
		return t
	case reflect.Struct:
		return structToTable(L, rv, depth)
	}

	ud := L.NewUserData()
	ud.Value = rv.Interface()
	return ud
}

func structToTable(L *lua.LState, rv reflect.Value, depth int) *lua.LTable {
	rt := rv.Type()
	t := L.CreateTable(0, rt.NumField())
	for i := range rt.NumField() {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		name, skip := fieldName(f)
		if skip {
			continue
		}
		t.RawSetString(name, reflectToLua(L, rv.Field(i), depth+1))
	}
	return t
}

// fieldName returns the Lua key for a struct field.
func fieldName(f reflect.StructField) (string, bool) {
	if tag, ok := f.Tag.Lookup("json"); ok {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return "", true
		}
		if name != "" {
			return name, false
		}
	}
	return snakeCase(f.Name), false
}

// snakeCase converts a Go identifier: "DataDir" -> "data_dir", "ID" -> "id",
// "HTTPPort" -> "http_port".
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToGo converts a Lua value into a Go value. Tables with keys 1..n become
// []any; other tables become map[string]any. Functions convert to nil.
func ToGo(lv lua.LValue) any {
	return toGo(lv, make(map[*lua.LTable]bool))
}

func toGo(lv lua.LValue, visited map[*lua.LTable]bool) any {
	switch v := lv.(type) {
	case nil:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		return tableToGo(v, visited)
	case *lua.LUserData:
		return v.Value
	default:
		return nil
	}
}

func tableToGo(t *lua.LTable, visited map[*lua.LTable]bool) any {
	n := t.Len()
	count := 0
	t.ForEach(func(_, _ lua.LValue) { count++ })

	if n > 0 && n == count {
		arr := make([]any, n)
		for i := 1; i <= n; i++ {
			arr[i-1] = toGo(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		var key string
		switch kv := k.(type) {
		case lua.LString:
			key = string(kv)
		case lua.LNumber:
			key = fmt.Sprint(ToGo(kv))
		default:
			key = k.String()
		}
		m[key] = toGo(v, visited)
	})
	return m
}
