package coerce

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/upsync-io/upsync/internal/record"
)

// textCoercer handles Text and Memo: pass-through stringification.
type textCoercer struct{}

func (textCoercer) ToStorage(_ context.Context, _ Env, raw any) (record.Value, error) {
	switch v := raw.(type) {
	case string:
		return record.Text(v), nil
	case []byte:
		return record.Text(v), nil
	default:
		return record.Text(fmt.Sprintf("%v", raw)), nil
	}
}

func (textCoercer) ToExternal(_ Env, v record.Value) any {
	return string(v.(record.Text))
}

// intCoercer handles Integer and BigInt via locale-invariant parsing.
type intCoercer struct{}

func (intCoercer) ToStorage(_ context.Context, env Env, raw any) (record.Value, error) {
	switch v := raw.(type) {
	case int:
		return record.Int(v), nil
	case int32:
		return record.Int(v), nil
	case int64:
		return record.Int(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, errf(env, record.CodeUnparseable, "integer %d out of range", v)
		}
		return record.Int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return nil, errf(env, record.CodeUnparseable, "%v is not an integer", v)
		}
		return record.Int(int64(v)), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, errf(env, record.CodeUnparseable, "cannot parse %q as integer", v)
		}
		return record.Int(n), nil
	default:
		return nil, errf(env, record.CodeUnparseable, "cannot convert %T to integer", raw)
	}
}

func (intCoercer) ToExternal(_ Env, v record.Value) any {
	return int64(v.(record.Int))
}

// decimalCoercer handles Decimal with exact arithmetic - float64 input is
// first rendered to its shortest decimal text so no binary noise leaks in.
type decimalCoercer struct{}

func parseDecimal(env Env, raw any) (apd.Decimal, error) {
	var d apd.Decimal
	switch v := raw.(type) {
	case string:
		if _, _, err := d.SetString(strings.TrimSpace(v)); err != nil {
			return d, errf(env, record.CodeUnparseable, "cannot parse %q as decimal", v)
		}
	case int:
		d.SetInt64(int64(v))
	case int64:
		d.SetInt64(v)
	case float64:
		if _, _, err := d.SetString(strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
			return d, errf(env, record.CodeUnparseable, "cannot convert %v to decimal", v)
		}
	default:
		return d, errf(env, record.CodeUnparseable, "cannot convert %T to decimal", raw)
	}
	return d, nil
}

func (decimalCoercer) ToStorage(_ context.Context, env Env, raw any) (record.Value, error) {
	d, err := parseDecimal(env, raw)
	if err != nil {
		return nil, err
	}
	return record.Decimal{D: d}, nil
}

func (decimalCoercer) ToExternal(_ Env, v record.Value) any {
	return v.(record.Decimal).String()
}

// doubleCoercer handles Double.
type doubleCoercer struct{}

func (doubleCoercer) ToStorage(_ context.Context, env Env, raw any) (record.Value, error) {
	switch v := raw.(type) {
	case float64:
		return record.Float(v), nil
	case int:
		return record.Float(v), nil
	case int64:
		return record.Float(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, errf(env, record.CodeUnparseable, "cannot parse %q as double", v)
		}
		return record.Float(f), nil
	default:
		return nil, errf(env, record.CodeUnparseable, "cannot convert %T to double", raw)
	}
}

func (doubleCoercer) ToExternal(_ Env, v record.Value) any {
	return float64(v.(record.Float))
}

// moneyCoercer handles Money: the decimal rules wrapped in the currency
// carrier type.
type moneyCoercer struct{}

func (moneyCoercer) ToStorage(_ context.Context, env Env, raw any) (record.Value, error) {
	d, err := parseDecimal(env, raw)
	if err != nil {
		return nil, err
	}
	return record.Money{Amount: d}, nil
}

func (moneyCoercer) ToExternal(_ Env, v record.Value) any {
	return v.(record.Money).String()
}

// boolCoercer handles Boolean with case-insensitive parsing.
type boolCoercer struct{}

func (boolCoercer) ToStorage(_ context.Context, env Env, raw any) (record.Value, error) {
	switch v := raw.(type) {
	case bool:
		return record.Bool(v), nil
	case int:
		return record.Bool(v != 0), nil
	case int64:
		return record.Bool(v != 0), nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1":
			return record.Bool(true), nil
		case "false", "0":
			return record.Bool(false), nil
		default:
			return nil, errf(env, record.CodeUnparseable, "cannot parse %q as boolean", v)
		}
	default:
		return nil, errf(env, record.CodeUnparseable, "cannot convert %T to boolean", raw)
	}
}

func (boolCoercer) ToExternal(_ Env, v record.Value) any {
	return bool(v.(record.Bool))
}

// dateTimeLayouts are the accepted input layouts, tried in order.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// dateTimeCoercer handles DateTime.
//
// For entities flagged as local-time (a sibling time-zone column exists),
// values are wall-clock local time: they are tagged, NOT converted, because
// the remote store special-cases those entities and converting here would
// double-shift them. For ordinary entities the value is normalized to UTC.
type dateTimeCoercer struct{}

func (dateTimeCoercer) ToStorage(_ context.Context, env Env, raw any) (record.Value, error) {
	local := env.Entity != nil && env.Entity.HasLocalTime

	var t time.Time
	switch v := raw.(type) {
	case time.Time:
		t = v
	case string:
		s := strings.TrimSpace(v)
		var err error
		for _, layout := range dateTimeLayouts {
			if t, err = time.Parse(layout, s); err == nil {
				break
			}
		}
		if err != nil {
			return nil, errf(env, record.CodeUnparseable, "cannot parse %q as datetime", v)
		}
	default:
		return nil, errf(env, record.CodeUnparseable, "cannot convert %T to datetime", raw)
	}

	if local {
		return record.Time{T: t, LocalTag: true}, nil
	}
	return record.Time{T: t.UTC()}, nil
}

func (dateTimeCoercer) ToExternal(_ Env, v record.Value) any {
	tv := v.(record.Time)
	if tv.LocalTag {
		return tv.T.Format("2006-01-02T15:04:05")
	}
	return tv.T.UTC().Format(time.RFC3339)
}
