package estat

import (
	"encoding/json"
	"strconv"
)

// The catalog collapses single-element arrays into bare objects and
// sometimes wraps plain strings in {"$": ...} envelopes. The two types
// below absorb both shapes so the rest of the package can work with
// ordinary slices and strings.

// oneOrMany decodes either a JSON array of T or a single T.
type oneOrMany[T any] []T

func (o *oneOrMany[T]) UnmarshalJSON(data []byte) error {
	var many []T
	if err := json.Unmarshal(data, &many); err == nil {
		*o = many
		return nil
	}

	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*o = []T{one}
	return nil
}

// flexString decodes a JSON string, number, or {"$": "..."} envelope.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexString(strconv.FormatFloat(n, 'f', -1, 64))
		return nil
	}

	var wrapped struct {
		Value string `json:"$"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	*f = flexString(wrapped.Value)
	return nil
}

// Wire documents. Only the layers this package reads are modeled; pointer
// fields distinguish "layer missing" from "layer empty".

type statsListDoc struct {
	GetStatsList *struct {
		DatalistInf *struct {
			TableInf oneOrMany[tableDescriptor] `json:"TABLE_INF"`
		} `json:"DATALIST_INF"`
	} `json:"GET_STATS_LIST"`
}

type tableDescriptor struct {
	ID    string     `json:"@id"`
	AltID string     `json:"ID"`
	Title flexString `json:"TITLE"`
}

func (t tableDescriptor) id() string {
	if t.ID != "" {
		return t.ID
	}
	return t.AltID
}

type metaDoc struct {
	GetMetaInfo *struct {
		MetadataInf *struct {
			ClassInf *struct {
				ClassObj oneOrMany[classObj] `json:"CLASS_OBJ"`
			} `json:"CLASS_INF"`
		} `json:"METADATA_INF"`
	} `json:"GET_META_INFO"`
}

type classObj struct {
	ID    string                `json:"@id"`
	Name  string                `json:"@name"`
	Class oneOrMany[classEntry] `json:"CLASS"`
}

type classEntry struct {
	Code flexString `json:"@code"`
	Name flexString `json:"@name"`
}

type statsDataDoc struct {
	GetStatsData *struct {
		StatisticalData *struct {
			DataInf *struct {
				Value oneOrMany[dataValue] `json:"VALUE"`
			} `json:"DATA_INF"`
		} `json:"STATISTICAL_DATA"`
	} `json:"GET_STATS_DATA"`
}

type dataValue struct {
	Dollar   flexString `json:"$"`
	AtValue  flexString `json:"@value"`
	RawValue flexString `json:"value"`
	Unit     string     `json:"@unit"`
}

// value returns the first populated value field, matching the upstream's
// inconsistent envelopes.
func (v dataValue) value() string {
	if v.Dollar != "" {
		return string(v.Dollar)
	}
	if v.AtValue != "" {
		return string(v.AtValue)
	}
	return string(v.RawValue)
}
