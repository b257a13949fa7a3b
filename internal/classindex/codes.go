package classindex

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hmurakami/dealcheck/internal/estat"
	"github.com/hmurakami/dealcheck/internal/textnorm"
)

// ResolveTimeCode finds the time-axis code for a YYYYMM month: an exact
// code or name match first, then common Japanese month spellings in entry
// names. Returns "" when the table has no matching period.
func ResolveTimeCode(maps estat.ClassificationMaps, yyyymm string) string {
	timeMap := maps["time"]
	if len(timeMap) == 0 || len(yyyymm) != 6 {
		return ""
	}

	names := sortedNames(timeMap)

	for _, name := range names {
		if yyyymm == timeMap[name] || yyyymm == name {
			return timeMap[name]
		}
	}

	year, err := strconv.Atoi(yyyymm[:4])
	if err != nil {
		return ""
	}
	month, err := strconv.Atoi(yyyymm[4:])
	if err != nil {
		return ""
	}

	patterns := []*regexp.Regexp{
		regexp.MustCompile(fmt.Sprintf(`%d\s*年\s*0?%d\s*月`, year, month)),
		regexp.MustCompile(fmt.Sprintf(`%d\s*[-/]\s*0?%d`, year, month)),
		regexp.MustCompile(fmt.Sprintf(`%d\s*0?%d`, year, month)),
	}

	for _, name := range names {
		normalized := textnorm.Normalize(name)
		for _, re := range patterns {
			if re.MatchString(normalized) {
				return timeMap[name]
			}
		}
	}

	return ""
}

// ResolveAreaCode picks the area code to query: the requested code when the
// table knows it, else a nationwide entry, else the first area. Returns ""
// when the table has no area axis.
func ResolveAreaCode(maps estat.ClassificationMaps, requested string) string {
	areaMap := maps["area"]
	if len(areaMap) == 0 {
		return ""
	}

	for _, code := range areaMap {
		if code == requested {
			return requested
		}
	}

	names := sortedNames(areaMap)
	for _, name := range names {
		if strings.Contains(name, "全国") || strings.Contains(name, "全域") {
			return areaMap[name]
		}
	}

	return areaMap[names[0]]
}
