package sniper

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// formValues collects what a browser would submit for form: named inputs,
// checked radios and checkboxes, selected options and textareas. Submit
// buttons are left out.
func formValues(form *goquery.Selection) url.Values {
	values := url.Values{}
	form.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name, _ := in.Attr("name")
		switch strings.ToLower(in.AttrOr("type", "text")) {
		case "submit", "button", "image", "reset", "file":
			return
		case "radio", "checkbox":
			if _, checked := in.Attr("checked"); !checked {
				return
			}
			values.Add(name, in.AttrOr("value", "on"))
		default:
			values.Add(name, in.AttrOr("value", ""))
		}
	})
	form.Find("select[name]").Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		opt := sel.Find("option[selected]").First()
		if opt.Length() == 0 {
			opt = sel.Find("option").First()
		}
		if opt.Length() > 0 {
			values.Add(name, opt.AttrOr("value", strings.TrimSpace(opt.Text())))
		}
	})
	form.Find("textarea[name]").Each(func(_ int, ta *goquery.Selection) {
		name, _ := ta.Attr("name")
		values.Add(name, ta.Text())
	})
	return values
}

// formAction returns the path a form posts to. An empty action posts back to
// the page it came from.
func formAction(form *goquery.Selection, fallback string) string {
	action := strings.TrimSpace(form.AttrOr("action", ""))
	if action == "" {
		return fallback
	}
	return action
}

// parsePrice turns a label such as "$1,250" or "US$ 25" into 1250 or 25.
func parsePrice(s string) (float64, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	clean = strings.TrimLeftFunc(clean, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	v, err := strconv.ParseFloat(strings.TrimSpace(clean), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return v, nil
}

// formatAmount renders a pledge amount the way the form expects it.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func hasClass(class, name string) bool {
	for _, c := range strings.Fields(class) {
		if c == name {
			return true
		}
	}
	return false
}
