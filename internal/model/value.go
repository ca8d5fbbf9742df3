package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ValueKind 列值类型
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
)

// Value 数据库列值 (string / number / bool / null)
//
// 数值使用 decimal 保存, 归档往返不丢失精度。
type Value struct {
	kind ValueKind
	str  string
	num  decimal.Decimal
	b    bool
}

// Null 空值
func Null() Value { return Value{kind: KindNull} }

// StringValue 字符串值
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue 数值
func NumberValue(d decimal.Decimal) Value { return Value{kind: KindNumber, num: d} }

// IntValue 整数值
func IntValue(i int64) Value { return NumberValue(decimal.NewFromInt(i)) }

// BoolValue 布尔值
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind 值类型
func (v Value) Kind() ValueKind { return v.kind }

// IsNull 是否为空值
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str 字符串内容, 非字符串返回 false
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Number 数值内容, 非数值返回 false
func (v Value) Number() (decimal.Decimal, bool) { return v.num, v.kind == KindNumber }

// Bool 布尔内容, 非布尔返回 false
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Int64 将数值或数字字符串转换为 int64
func (v Value) Int64() (int64, bool) {
	switch v.kind {
	case KindNumber:
		if !v.num.IsInteger() {
			return 0, false
		}
		return v.num.IntPart(), true
	case KindString:
		i, err := strconv.ParseInt(v.str, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// Equal 值比较 (数值按大小比较)
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num.Equal(o.num)
	case KindBool:
		return v.b == o.b
	default:
		return true
	}
}

// GoString 调试输出
func (v Value) GoString() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindNumber:
		return v.num.String()
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "null"
	}
}

// MarshalJSON 数值输出为 JSON number, 空值输出为 null
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return []byte(v.num.String()), nil
	case KindBool:
		return []byte(strconv.FormatBool(v.b)), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON 解析标量 JSON 值
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	parsed, err := valueFromToken(tok)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func valueFromToken(tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return Value{}, fmt.Errorf("parse number %q: %w", t, err)
		}
		return NumberValue(d), nil
	default:
		return Value{}, fmt.Errorf("unsupported json token %v: only scalar column values are allowed", tok)
	}
}

// ValueFromDB 将数据库驱动返回的值转换为 Value
//
// numeric 标记列类型为 NUMERIC/DECIMAL, 此时字符串值按数值解析。
func ValueFromDB(raw any, numeric bool) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case int64:
		return IntValue(t)
	case int32:
		return IntValue(int64(t))
	case int:
		return IntValue(int64(t))
	case float64:
		return NumberValue(decimal.NewFromFloat(t))
	case float32:
		return NumberValue(decimal.NewFromFloat32(t))
	case bool:
		return BoolValue(t)
	case []byte:
		return ValueFromDB(string(t), numeric)
	case string:
		if numeric {
			if d, err := decimal.NewFromString(t); err == nil {
				return NumberValue(d)
			}
		}
		return StringValue(t)
	case time.Time:
		return StringValue(t.UTC().Format(time.RFC3339Nano))
	case decimal.Decimal:
		return NumberValue(t)
	case fmt.Stringer:
		return StringValue(t.String())
	default:
		return StringValue(fmt.Sprint(t))
	}
}

// Column 有序行中的一列
type Column struct {
	Name  string
	Value Value
}

// Row 按列顺序保存的数据库行
type Row []Column

// Get 按列名取值
func (r Row) Get(name string) (Value, bool) {
	for _, c := range r {
		if c.Name == name {
			return c.Value, true
		}
	}
	return Value{}, false
}

// Equal 列名、顺序和值都相同
func (r Row) Equal(o Row) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if r[i].Name != o[i].Name || !r[i].Value.Equal(o[i].Value) {
			return false
		}
	}
	return true
}

// MarshalJSON 按列顺序输出 JSON object
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := c.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 解析 JSON object 并保留键顺序
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*r = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("row must be a json object, got %v", tok)
	}

	row := Row{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected row key %v", keyTok)
		}
		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		val, err := valueFromToken(valTok)
		if err != nil {
			return fmt.Errorf("column %s: %w", key, err)
		}
		row = append(row, Column{Name: key, Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = row
	return nil
}
