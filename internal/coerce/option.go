package coerce

import (
	"context"
	"strconv"
	"strings"

	"github.com/upsync-io/upsync/internal/record"
)

// optionCoercer handles single-select option sets (picklist/state/status).
// Input is a label (matched case-insensitively against the catalogue) or an
// integer value; the label reading wins when both parse. Unmatched input is
// a hard error.
type optionCoercer struct{}

func (optionCoercer) ToStorage(_ context.Context, env Env, raw any) (record.Value, error) {
	return resolveOption(env, raw)
}

func (optionCoercer) ToExternal(env Env, v record.Value) any {
	value := int32(v.(record.Option))
	if env.Column != nil && env.Column.Options != nil {
		if label, ok := env.Column.Options.Label(value); ok {
			return label
		}
	}
	return int64(value)
}

func resolveOption(env Env, raw any) (record.Option, error) {
	catalog := env.Column.Options
	if catalog == nil {
		return 0, errf(env, record.CodeUnknownOption, "column has no option catalogue")
	}

	switch v := raw.(type) {
	case int:
		return validateOptionValue(env, int32(v))
	case int64:
		return validateOptionValue(env, int32(v))
	case int32:
		return validateOptionValue(env, v)
	case string:
		s := strings.TrimSpace(v)
		// Label takes precedence over an integer reading.
		if value, ok := catalog.Value(s); ok {
			return record.Option(value), nil
		}
		if n, err := strconv.ParseInt(s, 10, 32); err == nil {
			return validateOptionValue(env, int32(n))
		}
		return 0, errf(env, record.CodeUnknownOption, "%q is not a known option label or value", v)
	default:
		return 0, errf(env, record.CodeUnknownOption, "cannot convert %T to option", raw)
	}
}

func validateOptionValue(env Env, value int32) (record.Option, error) {
	if !env.Column.Options.Has(value) {
		return 0, errf(env, record.CodeUnknownOption, "%d is not a declared option value", value)
	}
	return record.Option(value), nil
}

// optionListCoercer handles multi-select option sets: the single-select
// rules applied element-wise. Accepts a sequence or a comma-separated
// string.
type optionListCoercer struct{}

func (optionListCoercer) ToStorage(_ context.Context, env Env, raw any) (record.Value, error) {
	var elements []any
	switch v := raw.(type) {
	case []any:
		elements = v
	case []string:
		elements = make([]any, len(v))
		for i, s := range v {
			elements[i] = s
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			elements = append(elements, strings.TrimSpace(part))
		}
	default:
		return nil, errf(env, record.CodeUnknownOption, "cannot convert %T to option list", raw)
	}

	list := make(record.OptionList, 0, len(elements))
	for _, el := range elements {
		opt, err := resolveOption(env, el)
		if err != nil {
			return nil, err
		}
		list = append(list, int32(opt))
	}
	return list, nil
}

func (optionListCoercer) ToExternal(env Env, v record.Value) any {
	list := v.(record.OptionList)
	out := make([]any, len(list))
	single := optionCoercer{}
	for i, value := range list {
		out[i] = single.ToExternal(env, record.Option(value))
	}
	return out
}
