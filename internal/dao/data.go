package dao

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/masmgr/harmony-go/internal/model"
)

// Payload is implemented by analysis data types. PayloadKind must be a
// stable name; it discriminates records stored for the same element.
type Payload interface {
	PayloadKind() string
}

// SaveData attaches payload to the element addressed by key.
func SaveData[T Payload](ctx context.Context, d Dao, analysis string, key model.ElementKey, payload T) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", payload.PayloadKind(), err)
	}
	return d.SaveData(ctx, &model.Data{
		Analysis:    analysis,
		Key:         key,
		PayloadKind: payload.PayloadKind(),
		Payload:     raw,
	})
}

// GetDataList returns every payload of type T stored for the element, in
// insertion order. It returns an empty slice when there is none.
func GetDataList[T Payload](ctx context.Context, d Dao, analysis string, key model.ElementKey) ([]T, error) {
	var zero T
	records, err := d.ListData(ctx, analysis, key, zero.PayloadKind())
	if err != nil {
		return nil, err
	}

	result := make([]T, 0, len(records))
	for _, rec := range records {
		var v T
		if err := json.Unmarshal(rec.Payload, &v); err != nil {
			return nil, fmt.Errorf("decode %s payload %d: %w", rec.PayloadKind, rec.ID, err)
		}
		result = append(result, v)
	}
	return result, nil
}

// GetData returns the first payload of type T stored for the element. The
// boolean is false when none exists.
func GetData[T Payload](ctx context.Context, d Dao, analysis string, key model.ElementKey) (T, bool, error) {
	var zero T
	list, err := GetDataList[T](ctx, d, analysis, key)
	if err != nil || len(list) == 0 {
		return zero, false, err
	}
	return list[0], true, nil
}
