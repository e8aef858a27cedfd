// Package reconcile joins residents and payments of one condominium into the
// yearly contribution grid.
package reconcile

import (
	"errors"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/condopay/internal/contribution/domain"
	"github.com/smallbiznis/condopay/internal/contribution/monthkey"
	"github.com/smallbiznis/condopay/internal/contribution/status"
	paymentdomain "github.com/smallbiznis/condopay/internal/payment/domain"
	residentdomain "github.com/smallbiznis/condopay/internal/resident/domain"
)

const DefaultOccupancyFloor = 10

type Input struct {
	CondominiumID snowflake.ID
	Year          int
	Residents     []residentdomain.Resident
	// Payments must be in store order: reference month ascending, then id.
	Payments []paymentdomain.Payment
}

type Options struct {
	Resolver       *monthkey.Resolver
	OccupancyFloor int
}

type slot struct {
	cell    *domain.Cell
	payment *paymentdomain.Payment
}

// Aggregate is pure and deterministic: equal inputs yield equal reports.
func Aggregate(in Input, opts Options) domain.Report {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = monthkey.NewResolver(monthkey.DefaultTable())
	}
	floor := opts.OccupancyFloor
	if floor < 1 {
		floor = DefaultOccupancyFloor
	}

	residents := make([]residentdomain.Resident, len(in.Residents))
	copy(residents, in.Residents)
	sort.SliceStable(residents, func(i, j int) bool {
		if residents[i].ApartmentNumber != residents[j].ApartmentNumber {
			return residents[i].ApartmentNumber < residents[j].ApartmentNumber
		}
		return residents[i].ID < residents[j].ID
	})

	known := make(map[snowflake.ID]struct{}, len(residents))
	for _, r := range residents {
		known[r.ID] = struct{}{}
	}

	report := domain.Report{
		CondominiumID: in.CondominiumID,
		Year:          in.Year,
		Rows:          make([]domain.Row, 0, len(residents)),
		Anomalies:     []domain.Anomaly{},
		Dropped:       []domain.DroppedPayment{},
	}

	slots := make(map[snowflake.ID]map[string]slot, len(residents))
	for i := range in.Payments {
		p := &in.Payments[i]

		res, err := resolver.Resolve(p.ReferenceMonth, p.Description)
		if err != nil {
			if errors.Is(err, monthkey.ErrMalformedReferenceMonth) {
				report.Dropped = append(report.Dropped, domain.DroppedPayment{
					PaymentID:      p.ID,
					ResidentID:     p.ResidentID,
					ReferenceMonth: p.ReferenceMonth,
					Reason:         domain.DropReasonMalformedReferenceMonth,
				})
			}
			continue
		}
		// The description never changes the year, so this is the reference year.
		if res.Key.Year != in.Year {
			continue
		}
		if _, ok := known[p.ResidentID]; !ok {
			report.Dropped = append(report.Dropped, domain.DroppedPayment{
				PaymentID:      p.ID,
				ResidentID:     p.ResidentID,
				ReferenceMonth: p.ReferenceMonth,
				Reason:         domain.DropReasonUnknownResident,
			})
			continue
		}

		key := res.Key.String()
		if res.Correction != nil {
			report.Anomalies = append(report.Anomalies, domain.Anomaly{
				Kind:           domain.AnomalyMonthCorrected,
				PaymentID:      p.ID,
				ResidentID:     p.ResidentID,
				ReferenceMonth: p.ReferenceMonth,
				MonthKey:       key,
				Token:          res.Correction.Token,
			})
		}

		byMonth := slots[p.ResidentID]
		if byMonth == nil {
			byMonth = make(map[string]slot, 12)
			slots[p.ResidentID] = byMonth
		}
		if previous, ok := byMonth[key]; ok {
			report.Anomalies = append(report.Anomalies, domain.Anomaly{
				Kind:           domain.AnomalySlotOverwritten,
				PaymentID:      previous.payment.ID,
				ResidentID:     p.ResidentID,
				ReferenceMonth: previous.payment.ReferenceMonth,
				MonthKey:       key,
				ReplacedBy:     p.ID,
			})
		}
		byMonth[key] = slot{
			cell: &domain.Cell{
				Status:    status.Classify(p.Status, p.PaymentDate),
				Amount:    p.Amount,
				Currency:  p.Currency,
				PaymentID: p.ID,
			},
			payment: p,
		}
	}

	totalPaid := decimal.Zero
	totalDebt := decimal.Zero
	for _, r := range residents {
		row := newRow(r, in.Year)
		for key, s := range slots[r.ID] {
			row.Months[key] = s.cell
		}
		row.TotalPaid, row.TotalDebt = rowTotals(row)

		totalPaid = totalPaid.Add(row.TotalPaid)
		totalDebt = totalDebt.Add(row.TotalDebt)
		report.Rows = append(report.Rows, row)
	}

	count := len(residents)
	report.Summary = domain.Summary{
		TotalPaid:       totalPaid,
		TotalDebt:       totalDebt,
		TotalApartments: count,
		OccupancyRate:   OccupancyRate(count, floor),
	}
	return report
}

// MonthKeys lists the twelve keys of a year in calendar order.
func MonthKeys(year int) []string {
	keys := make([]string, 0, 12)
	for month := 1; month <= 12; month++ {
		keys = append(keys, monthkey.Key{Year: year, Month: month}.String())
	}
	return keys
}

// OccupancyRate is count / max(count, floor) * 100. No unit capacity is stored,
// so the floor stands in for it.
func OccupancyRate(count, floor int) float64 {
	if count <= 0 {
		return 0
	}
	denominator := count
	if floor > denominator {
		denominator = floor
	}
	return float64(count) * 100 / float64(denominator)
}

func newRow(r residentdomain.Resident, year int) domain.Row {
	months := make(map[string]*domain.Cell, 12)
	for _, key := range MonthKeys(year) {
		months[key] = nil
	}
	return domain.Row{
		ResidentID:      r.ID,
		ApartmentNumber: r.ApartmentNumber,
		Floor:           r.Floor,
		ResidentName:    r.DisplayName(),
		Months:          months,
		TotalPaid:       decimal.Zero,
		TotalDebt:       decimal.Zero,
	}
}

// rowTotals counts only the cells that survived last-write-wins.
func rowTotals(row domain.Row) (paid, debt decimal.Decimal) {
	paid, debt = decimal.Zero, decimal.Zero
	for _, key := range sortedKeys(row.Months) {
		cell := row.Months[key]
		if cell == nil {
			continue
		}
		if cell.Status == status.Paid {
			paid = paid.Add(cell.Amount)
		} else {
			debt = debt.Add(cell.Amount)
		}
	}
	return paid, debt
}

func sortedKeys(months map[string]*domain.Cell) []string {
	keys := make([]string, 0, len(months))
	for key := range months {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
