package sync

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/biter777/countries"
	"github.com/tidwall/gjson"
	"github.com/ttacon/libphonenumber"
)

// DefaultPhoneRegion is used by @phone when no region argument is given.
const DefaultPhoneRegion = "AU"

func init() {

	gjson.AddModifier("trim", func(json, arg string) string {
		res := gjson.Parse(json)
		if !res.Exists() {
			return ""
		}
		return strconv.Quote(strings.TrimSpace(res.String()))
	})

	// @countryName accepts alpha-2, alpha-3 or a name and yields the country name.
	// Unrecognised values pass through unchanged.
	gjson.AddModifier("countryName", func(json, arg string) string {
		res := gjson.Parse(json)
		s := strings.TrimSpace(res.String())
		if s == "" {
			return ""
		}
		c := countries.ByName(s)
		if countries.Unknown == c {
			return strconv.Quote(s)
		}
		return strconv.Quote(c.String())
	})

	// @phone formats a number as E.164, parsing local numbers in the region
	// given as the argument. Unparseable numbers pass through unchanged.
	gjson.AddModifier("phone", func(json, arg string) string {
		number := strings.TrimSpace(gjson.Parse(json).String())
		if number == "" {
			return ""
		}
		region := strings.ToUpper(strings.Trim(arg, `" `))
		if region == "" {
			region = DefaultPhoneRegion
		}
		num, err := libphonenumber.Parse(number, region)
		if err != nil || !libphonenumber.IsPossibleNumber(num) {
			return strconv.Quote(number)
		}
		return strconv.Quote(libphonenumber.Format(num, libphonenumber.E164))
	})

	// @money rounds a numeric value to two decimal places.
	gjson.AddModifier("money", func(json, arg string) string {
		res := gjson.Parse(json)
		if !res.Exists() || res.Type == gjson.Null {
			return ""
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(res.String()), 64)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("%.2f", f)
	})

}
