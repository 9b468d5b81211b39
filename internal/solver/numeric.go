package solver

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	rePercentOf   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:%|percent)\s+of\s+(-?\d+(?:\.\d+)?)`)
	reWhatPercent = regexp.MustCompile(`(?i)(-?\d+(?:\.\d+)?)\s+is\s+what\s+(?:%|percent(?:age)?)\s+of\s+(-?\d+(?:\.\d+)?)`)
	reAdjustBy    = regexp.MustCompile(`(?i)\b(increase|decrease)\s+(-?\d+(?:\.\d+)?)\s+by\s+(\d+(?:\.\d+)?)\s*(?:%|percent)`)
)

func tryPercent(prompt string) string {
	if m := reWhatPercent.FindStringSubmatch(prompt); m != nil {
		x, _ := strconv.ParseFloat(m[1], 64)
		y, _ := strconv.ParseFloat(m[2], 64)
		if y == 0 {
			return ""
		}
		return fmt.Sprintf("%s is %s%% of %s", formatNumber(x), formatNumber(x/y*100), formatNumber(y))
	}
	if m := reAdjustBy.FindStringSubmatch(prompt); m != nil {
		base, _ := strconv.ParseFloat(m[2], 64)
		pct, _ := strconv.ParseFloat(m[3], 64)
		v := base * (1 + pct/100)
		if strings.EqualFold(m[1], "decrease") {
			v = base * (1 - pct/100)
		}
		return fmt.Sprintf("%s %sd by %s%% = %s", formatNumber(base), strings.ToLower(m[1]), formatNumber(pct), formatNumber(v))
	}
	if m := rePercentOf.FindStringSubmatch(prompt); m != nil {
		pct, _ := strconv.ParseFloat(m[1], 64)
		base, _ := strconv.ParseFloat(m[2], 64)
		return fmt.Sprintf("%s%% of %s = %s", formatNumber(pct), formatNumber(base), formatNumber(pct/100*base))
	}
	return ""
}

// unitDef normalizes aliases onto a canonical unit with a factor into
// the pair's base unit.
type unitDef struct {
	canon  string
	factor float64 // multiplier into base
	base   string  // conversion group
}

var units = map[string]unitDef{
	"km": {"km", 1, "dist_km"}, "kilometer": {"km", 1, "dist_km"}, "kilometers": {"km", 1, "dist_km"},
	"mi": {"miles", 1 / 0.621371, "dist_km"}, "mile": {"miles", 1 / 0.621371, "dist_km"}, "miles": {"miles", 1 / 0.621371, "dist_km"},
	"m": {"m", 1, "dist_m"}, "meter": {"m", 1, "dist_m"}, "meters": {"m", 1, "dist_m"},
	"ft": {"ft", 1 / 3.28084, "dist_m"}, "foot": {"ft", 1 / 3.28084, "dist_m"}, "feet": {"ft", 1 / 3.28084, "dist_m"},
	"cm": {"cm", 1, "dist_cm"}, "centimeter": {"cm", 1, "dist_cm"}, "centimeters": {"cm", 1, "dist_cm"},
	"in": {"inches", 2.54, "dist_cm"}, "inch": {"inches", 2.54, "dist_cm"}, "inches": {"inches", 2.54, "dist_cm"},
	"kg": {"kg", 1, "mass"}, "kilogram": {"kg", 1, "mass"}, "kilograms": {"kg", 1, "mass"},
	"lb": {"lbs", 1 / 2.20462, "mass"}, "lbs": {"lbs", 1 / 2.20462, "mass"}, "pound": {"lbs", 1 / 2.20462, "mass"}, "pounds": {"lbs", 1 / 2.20462, "mass"},
	"l": {"liters", 1, "vol"}, "liter": {"liters", 1, "vol"}, "liters": {"liters", 1, "vol"}, "litre": {"liters", 1, "vol"}, "litres": {"liters", 1, "vol"},
	"gal": {"gallons", 1 / 0.264172, "vol"}, "gallon": {"gallons", 1 / 0.264172, "vol"}, "gallons": {"gallons", 1 / 0.264172, "vol"},
	"c": {"°C", 1, "temp"}, "celsius": {"°C", 1, "temp"},
	"f": {"°F", 1, "temp"}, "fahrenheit": {"°F", 1, "temp"},
}

var reConvert = regexp.MustCompile(`(?i)(-?\d+(?:\.\d+)?)\s*°?\s*([a-z]+)\s+(?:to|in|into)\s+°?\s*([a-z]+)`)

func tryUnits(prompt string) string {
	m := reConvert.FindStringSubmatch(prompt)
	if m == nil {
		return ""
	}
	from, okF := units[strings.ToLower(m[2])]
	to, okT := units[strings.ToLower(m[3])]
	if !okF || !okT || from.base != to.base || from.canon == to.canon {
		return ""
	}
	v, _ := strconv.ParseFloat(m[1], 64)

	var out float64
	if from.base == "temp" {
		out = convertTemp(v, from.canon, to.canon)
	} else {
		out = v * from.factor / to.factor
	}
	return fmt.Sprintf("%s %s = %s %s", formatNumber(v), from.canon, formatNumber(out), to.canon)
}

func convertTemp(v float64, from, to string) float64 {
	if from == "°C" && to == "°F" {
		return v*9/5 + 32
	}
	return (v - 32) * 5 / 9
}

var (
	reDaysBetween = regexp.MustCompile(`(?i)days\s+between\s+(\d{4}-\d{2}-\d{2})\s+and\s+(\d{4}-\d{2}-\d{2})`)
	reBornIn      = regexp.MustCompile(`(?i)born\s+in\s+(\d{4})`)
	reAgeWord     = regexp.MustCompile(`(?i)\b(how\s+old|age)\b`)
)

func tryDates(prompt string) string {
	if m := reDaysBetween.FindStringSubmatch(prompt); m != nil {
		a, errA := time.Parse("2006-01-02", m[1])
		b, errB := time.Parse("2006-01-02", m[2])
		if errA != nil || errB != nil {
			return ""
		}
		days := int(math.Abs(b.Sub(a).Hours()) / 24)
		return fmt.Sprintf("%d days between %s and %s", days, m[1], m[2])
	}
	if reAgeWord.MatchString(prompt) {
		if m := reBornIn.FindStringSubmatch(prompt); m != nil {
			birth, _ := strconv.Atoi(m[1])
			year := time.Now().Year()
			if birth > year || year-birth > 130 {
				return ""
			}
			age := year - birth
			return fmt.Sprintf("born in %d: %d or %d years old in %d (depending on the birthday)", birth, age-1, age, year)
		}
	}
	return ""
}

// reLinear matches ax+b=c with optional coefficient and either operand
// order around the equals sign. The leading guard keeps the x from
// binding inside a word like "flux".
var (
	reLinear       = regexp.MustCompile(`(?i)(?:^|[^a-z0-9_])(-?\d*\.?\d*)\s*\*?\s*x\s*([+-])\s*(\d+\.?\d*)\s*=\s*(-?\d+\.?\d*)`)
	reLinearMirror = regexp.MustCompile(`(?i)(-?\d+\.?\d*)\s*=\s*(-?\d*\.?\d*)\s*\*?\s*x\s*([+-])\s*(\d+\.?\d*)`)
)

func tryEquation(prompt string) string {
	var a, b, c float64
	var sign string
	if m := reLinear.FindStringSubmatch(prompt); m != nil {
		a = parseCoeff(m[1])
		sign = m[2]
		b, _ = strconv.ParseFloat(m[3], 64)
		c, _ = strconv.ParseFloat(m[4], 64)
	} else if m := reLinearMirror.FindStringSubmatch(prompt); m != nil {
		c, _ = strconv.ParseFloat(m[1], 64)
		a = parseCoeff(m[2])
		sign = m[3]
		b, _ = strconv.ParseFloat(m[4], 64)
	} else {
		return ""
	}
	if a == 0 {
		return ""
	}
	if sign == "-" {
		b = -b
	}
	return "x = " + formatNumber((c - b) / a)
}

func parseCoeff(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "", "+":
		return 1
	case "-":
		return -1
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

var (
	reBracketList = regexp.MustCompile(`\[([^\]]+)\]`)
	reStatWord    = regexp.MustCompile(`(?i)\b(average|mean|median|sum|total|minimum|smallest|min|maximum|largest|max|count)\b`)
	statCanon     = map[string]string{
		"average": "average", "mean": "average",
		"median": "median",
		"sum":    "sum", "total": "sum",
		"minimum": "min", "smallest": "min", "min": "min",
		"maximum": "max", "largest": "max", "max": "max",
		"count": "count",
	}
)

func tryStats(prompt string) string {
	m := reBracketList.FindStringSubmatch(prompt)
	if m == nil {
		return ""
	}
	nums, ok := parseNumberList(m[1])
	if !ok || len(nums) == 0 {
		return ""
	}
	w := reStatWord.FindString(prompt)
	if w == "" {
		return ""
	}
	op := statCanon[strings.ToLower(w)]

	var v float64
	switch op {
	case "average":
		for _, n := range nums {
			v += n
		}
		v /= float64(len(nums))
	case "median":
		sorted := append([]float64(nil), nums...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 0 {
			v = (sorted[mid-1] + sorted[mid]) / 2
		} else {
			v = sorted[mid]
		}
	case "sum":
		for _, n := range nums {
			v += n
		}
	case "min":
		v = nums[0]
		for _, n := range nums[1:] {
			if n < v {
				v = n
			}
		}
	case "max":
		v = nums[0]
		for _, n := range nums[1:] {
			if n > v {
				v = n
			}
		}
	case "count":
		v = float64(len(nums))
	}
	return fmt.Sprintf("%s of %s = %s", op, joinNumbers(nums), formatNumber(v))
}
