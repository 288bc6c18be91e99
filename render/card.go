package render

import (
	"fmt"
	"time"

	"github.com/6tail/lunar-go/calendar"
	"github.com/pevans/dailybrief/digest"
)

var weekdays = [...]string{"日", "一", "二", "三", "四", "五", "六"}

// CardData is everything the card template displays. It is derived from a
// record alone, so the same record always renders the same card.
type CardData struct {
	Title   string
	Date    string // 2024年3月5日
	Weekday string // 星期二
	Lunar   string // 甲辰年正月廿五
	News    []string
	Tip     string
	Updated string
	Count   int
}

// NewCardData builds the card for rec. The weekday and lunar date are
// computed from rec.Date.
func NewCardData(rec digest.Record) (CardData, error) {
	day, err := digest.ParseDate(rec.Date, time.UTC)
	if err != nil {
		return CardData{}, err
	}

	return CardData{
		Title:   "每天 60s 读懂世界",
		Date:    fmt.Sprintf("%d年%d月%d日", day.Year(), int(day.Month()), day.Day()),
		Weekday: "星期" + weekdays[day.Weekday()],
		Lunar:   LunarDate(day),
		News:    rec.News,
		Tip:     rec.Tip,
		Updated: rec.Created,
		Count:   len(rec.News),
	}, nil
}

// LunarDate formats day in the Chinese lunisolar calendar, e.g. "甲辰年正月廿五".
func LunarDate(day time.Time) string {
	lunar := calendar.NewSolarFromYmd(day.Year(), int(day.Month()), day.Day()).GetLunar()
	return lunar.GetYearInGanZhi() + "年" + lunar.GetMonthInChinese() + "月" + lunar.GetDayInChinese()
}
