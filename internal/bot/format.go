package bot

import (
	"fmt"
	"html"
	"strings"
	"time"

	"studiotblack/internal/model"
)

var weekdayShort = map[time.Weekday]string{
	time.Sunday:    "dom",
	time.Monday:    "seg",
	time.Tuesday:   "ter",
	time.Wednesday: "qua",
	time.Thursday:  "qui",
	time.Friday:    "sex",
	time.Saturday:  "sáb",
}

// formatDate renders "2030-01-07" as "seg, 07/01/2030".
func formatDate(date string) string {
	d, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return date
	}
	return fmt.Sprintf("%s, %s", weekdayShort[d.Weekday()], d.Format("02/01/2006"))
}

// formatPrice renders 40 as "R$ 40,00".
func formatPrice(v float64) string {
	return "R$ " + strings.Replace(fmt.Sprintf("%.2f", v), ".", ",", 1)
}

func escape(s string) string {
	return html.EscapeString(s)
}
