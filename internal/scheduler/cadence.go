package scheduler

import "time"

// CadenceKind — вид правила расписания.
type CadenceKind string

const (
	CadenceHourly    CadenceKind = "hourly"
	CadenceDailyAt   CadenceKind = "daily_at"
	CadenceWeeklyOn  CadenceKind = "weekly_on"
	CadenceMonthlyOn CadenceKind = "monthly_on"
)

// Cadence — функциональное правило расписания. Оно не хранит состояния:
// наступления вычисляются из пары моментов (watermark, now), поэтому
// рестарт процесса не теряет и не дублирует слоты.
type Cadence struct {
	Kind    CadenceKind
	Hour    int
	Minute  int
	Weekday time.Weekday
	Day     int // День месяца для monthly_on (1..28)
}

func Hourly() Cadence {
	return Cadence{Kind: CadenceHourly}
}

func DailyAt(hour, minute int) Cadence {
	return Cadence{Kind: CadenceDailyAt, Hour: hour, Minute: minute}
}

func WeeklyOn(wd time.Weekday, hour, minute int) Cadence {
	return Cadence{Kind: CadenceWeeklyOn, Weekday: wd, Hour: hour, Minute: minute}
}

func MonthlyOn(day, hour, minute int) Cadence {
	return Cadence{Kind: CadenceMonthlyOn, Day: day, Hour: hour, Minute: minute}
}

// Due возвращает последний слот правила в полуинтервале (watermark, now].
// Если воркер лежал несколько слотов, наверстывается ровно один — самый
// свежий: прогнать "daily report" пять раз подряд после простоя смысла нет.
// Нулевой watermark (первый запуск) дает то же поведение: один последний слот.
func (c Cadence) Due(watermark, now time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	slot := c.lastSlot(now.In(loc))
	if slot.IsZero() || !slot.After(watermark) || slot.After(now) {
		return time.Time{}, false
	}
	return slot, true
}

// lastSlot — последнее наступление правила, не позднее now.
func (c Cadence) lastSlot(now time.Time) time.Time {
	switch c.Kind {
	case CadenceHourly:
		return now.Truncate(time.Hour)

	case CadenceDailyAt:
		slot := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, c.Minute, 0, 0, now.Location())
		if slot.After(now) {
			slot = slot.AddDate(0, 0, -1)
		}
		return slot

	case CadenceWeeklyOn:
		slot := time.Date(now.Year(), now.Month(), now.Day(), c.Hour, c.Minute, 0, 0, now.Location())
		diff := int(now.Weekday() - c.Weekday)
		if diff < 0 {
			diff += 7
		}
		slot = slot.AddDate(0, 0, -diff)
		if slot.After(now) {
			slot = slot.AddDate(0, 0, -7)
		}
		return slot

	case CadenceMonthlyOn:
		slot := time.Date(now.Year(), now.Month(), c.Day, c.Hour, c.Minute, 0, 0, now.Location())
		if slot.After(now) {
			slot = time.Date(now.Year(), now.Month()-1, c.Day, c.Hour, c.Minute, 0, 0, now.Location())
		}
		return slot
	}
	return time.Time{}
}
