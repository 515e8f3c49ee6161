// Package calendar maps indicators to release periods within a quarter and
// answers "was this value public at that date" questions.
//
// A mapping splits each quarter into N release blocks (periods_2, periods_3,
// periods_4, periods_6). An indicator whose value for a reference period is
// published lag days after the period ends belongs to block
// floor(lag / blockLength) + 1. A value becomes visible at the boundary of
// the block in which it is released, so every value known at one boundary
// remains known at every later boundary.
//
//	mapping, err := calendar.Lookup("periods_3")
//	cal, err := calendar.Build(mapping, metas)
//	date, err := cal.ForecastDate(quarter, horizon)
//	ok, err := cal.Visible("ip", refEnd, date)
package calendar
