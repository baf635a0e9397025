package upstream

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Sternrassler/catalog-search-cache/pkg/filter"
)

// EncodeQuery renders filters as query parameters.
//
//   - null values are omitted
//   - strings are sent verbatim
//   - numbers and booleans use their JSON text form
//   - sequences become repeated parameters
//   - mappings (and sequences nested in sequences) are sent as JSON text
func EncodeQuery(filters filter.FilterSet) (url.Values, error) {
	q := url.Values{}
	for name, v := range filters {
		switch v.Kind() {
		case filter.KindNull:
			continue
		case filter.KindSequence:
			for _, item := range v.ListValue() {
				if item.IsNull() {
					continue
				}
				s, err := queryValue(item)
				if err != nil {
					return nil, fmt.Errorf("filter %q: %w", name, err)
				}
				q.Add(name, s)
			}
		default:
			s, err := queryValue(v)
			if err != nil {
				return nil, fmt.Errorf("filter %q: %w", name, err)
			}
			q.Set(name, s)
		}
	}
	return q, nil
}

func queryValue(v filter.Value) (string, error) {
	switch v.Kind() {
	case filter.KindString:
		return v.StringValue(), nil
	case filter.KindNumber:
		return v.NumberValue().String(), nil
	case filter.KindBool:
		return strconv.FormatBool(v.BoolValue()), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
