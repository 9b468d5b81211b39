package solver

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	reCircle    = regexp.MustCompile(`(?i)\bcircle\b.*?\b(?:radius|r)\s*(?:of|=|is)?\s*(\d+(?:\.\d+)?)`)
	reRectSides = regexp.MustCompile(`(?i)\brectangle\b.*?(\d+(?:\.\d+)?)\s*(?:by|x|×)\s*(\d+(?:\.\d+)?)`)
	reRectWH    = regexp.MustCompile(`(?i)\brectangle\b.*?width\s*(?:of|=|is)?\s*(\d+(?:\.\d+)?).*?height\s*(?:of|=|is)?\s*(\d+(?:\.\d+)?)`)
	reTriangle  = regexp.MustCompile(`(?i)\btriangle\b.*?base\s*(?:of|=|is)?\s*(\d+(?:\.\d+)?).*?height\s*(?:of|=|is)?\s*(\d+(?:\.\d+)?)`)
)

// tryGeometry answers area/perimeter/circumference shortcuts for the
// three basic shapes.
func tryGeometry(prompt string) string {
	lower := strings.ToLower(prompt)
	wantsArea := strings.Contains(lower, "area")
	wantsPerimeter := strings.Contains(lower, "perimeter") || strings.Contains(lower, "circumference")
	if !wantsArea && !wantsPerimeter {
		return ""
	}

	if m := reCircle.FindStringSubmatch(prompt); m != nil {
		r, _ := strconv.ParseFloat(m[1], 64)
		if wantsArea {
			return fmt.Sprintf("area of circle (r=%s) = %s", formatNumber(r), formatNumber(math.Pi*r*r))
		}
		return fmt.Sprintf("circumference of circle (r=%s) = %s", formatNumber(r), formatNumber(2*math.Pi*r))
	}

	var w, h float64
	if m := reRectWH.FindStringSubmatch(prompt); m != nil {
		w, _ = strconv.ParseFloat(m[1], 64)
		h, _ = strconv.ParseFloat(m[2], 64)
	} else if m := reRectSides.FindStringSubmatch(prompt); m != nil {
		w, _ = strconv.ParseFloat(m[1], 64)
		h, _ = strconv.ParseFloat(m[2], 64)
	}
	if w > 0 && h > 0 {
		if wantsArea {
			return fmt.Sprintf("area of rectangle (%s × %s) = %s", formatNumber(w), formatNumber(h), formatNumber(w*h))
		}
		return fmt.Sprintf("perimeter of rectangle (%s × %s) = %s", formatNumber(w), formatNumber(h), formatNumber(2*(w+h)))
	}

	if m := reTriangle.FindStringSubmatch(prompt); m != nil && wantsArea {
		b, _ := strconv.ParseFloat(m[1], 64)
		ht, _ := strconv.ParseFloat(m[2], 64)
		return fmt.Sprintf("area of triangle (base %s, height %s) = %s", formatNumber(b), formatNumber(ht), formatNumber(b*ht/2))
	}
	return ""
}
