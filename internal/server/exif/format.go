package exif

import (
	"math"
	"strconv"
)

// Style selects how camera settings are rendered. The server and the
// browser-side preview historically disagreed on the f-number prefix, and
// both renderings are still produced.
type Style int

const (
	StyleServer Style = iota // f/2.8
	StyleClient              // F2.8
)

// Raw holds numeric camera settings as read from the image, before
// formatting. Nil pointers mean the tag was absent.
type Raw struct {
	Make         string
	Model        string
	LensModel    string
	FNumber      *float64
	ExposureTime *float64
	ISO          *int
	FocalLength  *float64
}

// Format renders raw into display strings. Absent fields stay empty.
func Format(raw Raw, style Style) Data {
	d := Data{
		Make:      raw.Make,
		Model:     raw.Model,
		LensModel: raw.LensModel,
	}
	if raw.FNumber != nil {
		d.FNumber = FormatFNumber(*raw.FNumber, style)
	}
	if raw.ExposureTime != nil {
		d.ExposureTime = FormatExposureTime(*raw.ExposureTime)
	}
	if raw.ISO != nil {
		d.ISO = strconv.Itoa(*raw.ISO)
	}
	if raw.FocalLength != nil {
		d.FocalLength = FormatFocalLength(*raw.FocalLength)
	}
	return d
}

func FormatFNumber(v float64, style Style) string {
	if style == StyleClient {
		return "F" + formatNumber(v)
	}
	return "f/" + formatNumber(v)
}

// FormatExposureTime renders sub-second exposures as a reciprocal fraction
// (0.004 becomes 1/250s) and longer ones as plain seconds.
func FormatExposureTime(t float64) string {
	if t > 0 && t < 1 {
		return "1/" + strconv.FormatFloat(math.Round(1/t), 'f', -1, 64) + "s"
	}
	return formatNumber(t) + "s"
}

func FormatFocalLength(v float64) string {
	return formatNumber(v) + "mm"
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
