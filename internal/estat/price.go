package estat

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// PriceResult is the outcome of a single statistical price lookup. A
// missing observation is a normal outcome: Price is nil and Note explains
// why, with no error.
type PriceResult struct {
	Price *float64
	Unit  string
	Note  string
}

// LookupPrice queries one observed value for the given classification code,
// optionally constrained by time and area codes.
func (c *Client) LookupPrice(ctx context.Context, tableID, timeCode, areaCode, groupID, code string) (PriceResult, error) {
	params := url.Values{}
	params.Set("statsDataId", tableID)
	params.Set("limit", "1")
	if timeCode != "" {
		params.Set("cdTime", timeCode)
	}
	if areaCode != "" {
		params.Set("cdArea", areaCode)
	}
	params.Set(classParam(groupID), code)

	var doc statsDataDoc
	if err := c.get(ctx, "getStatsData", params, &doc); err != nil {
		return PriceResult{}, err
	}

	if doc.GetStatsData == nil || doc.GetStatsData.StatisticalData == nil || doc.GetStatsData.StatisticalData.DataInf == nil {
		return PriceResult{Note: "could not parse the observation response"}, nil
	}

	values := doc.GetStatsData.StatisticalData.DataInf.Value
	if len(values) == 0 {
		return PriceResult{Note: "no observation matched the query"}, nil
	}

	v0 := values[0]
	result := PriceResult{Unit: v0.Unit}
	if raw := v0.value(); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			result.Price = &parsed
		}
	}

	return result, nil
}

// classParam maps a category group id to its query parameter: cat01 becomes
// cdCat01, tab becomes cdTab.
func classParam(groupID string) string {
	if groupID == "" {
		return "cd"
	}
	return "cd" + strings.ToUpper(groupID[:1]) + groupID[1:]
}
