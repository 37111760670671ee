package admin

import (
	"context"
	"time"

	"github.com/clinerva/clinerva/internal/platform/excel"
)

const lowStockThreshold = 10

// Report builds the operational workbook for download: one sheet per record
// type plus the appointment pipeline.
func (s *Service) Report(ctx context.Context) ([]byte, error) {
	sheets := make([]excel.ReportSheet, 0, 6)
	for _, build := range []func(context.Context) (excel.ReportSheet, error){
		s.overviewSheet,
		s.patientSheet,
		s.appointmentSheet,
		s.consultationSheet,
		s.inventorySheet,
		s.userSheet,
	} {
		sheet, err := build(ctx)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, sheet)
	}
	return excel.WriteReport(sheets)
}

func (s *Service) overviewSheet(ctx context.Context) (excel.ReportSheet, error) {
	sheet := excel.ReportSheet{Name: "Overview", Headers: []string{"Records", "Count"}}
	for _, table := range collections {
		var n int
		if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
			return sheet, err
		}
		sheet.Rows = append(sheet.Rows, []interface{}{table, n})
	}
	return sheet, nil
}

func (s *Service) patientSheet(ctx context.Context) (excel.ReportSheet, error) {
	sheet := excel.ReportSheet{Name: "Patients", Headers: []string{"Billing code", "Name", "Phone", "Registered", "Active"}}
	rows, err := s.pool.Query(ctx, `
		SELECT billing_code, first_name || ' ' || last_name, phone, created_at, NOT deleted
		FROM patients ORDER BY billing_code`)
	if err != nil {
		return sheet, err
	}
	defer rows.Close()
	for rows.Next() {
		var code, name, phone string
		var created time.Time
		var active bool
		if err := rows.Scan(&code, &name, &phone, &created, &active); err != nil {
			return sheet, err
		}
		sheet.Rows = append(sheet.Rows, []interface{}{code, name, phone, created.Format("2006-01-02"), active})
	}
	return sheet, rows.Err()
}

func (s *Service) appointmentSheet(ctx context.Context) (excel.ReportSheet, error) {
	sheet := excel.ReportSheet{Name: "Appointments", Headers: []string{"Status", "Count"}}
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM appointments GROUP BY status ORDER BY status`)
	if err != nil {
		return sheet, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return sheet, err
		}
		sheet.Rows = append(sheet.Rows, []interface{}{status, n})
	}
	return sheet, rows.Err()
}

func (s *Service) consultationSheet(ctx context.Context) (excel.ReportSheet, error) {
	sheet := excel.ReportSheet{Name: "Consultations", Headers: []string{"Patient", "Doctor", "Status", "Started", "Signed"}}
	rows, err := s.pool.Query(ctx, `
		SELECT p.billing_code, u.name, c.status, c.started_at, c.signature IS NOT NULL
		FROM consultations c
		JOIN patients p ON p.id = c.patient_id
		JOIN users u ON u.id = c.doctor_id
		ORDER BY c.started_at DESC`)
	if err != nil {
		return sheet, err
	}
	defer rows.Close()
	for rows.Next() {
		var code, doctor, status string
		var started time.Time
		var signed bool
		if err := rows.Scan(&code, &doctor, &status, &started, &signed); err != nil {
			return sheet, err
		}
		sheet.Rows = append(sheet.Rows, []interface{}{code, doctor, status, started.Format("2006-01-02 15:04"), signed})
	}
	return sheet, rows.Err()
}

func (s *Service) inventorySheet(ctx context.Context) (excel.ReportSheet, error) {
	sheet := excel.ReportSheet{Name: "Inventory", Headers: []string{"Medicine", "Stock", "Price", "Low"}}
	rows, err := s.pool.Query(ctx, `
		SELECT name, COALESCE(stock, 0), COALESCE(price, 0), COALESCE(stock, 0) < $1
		FROM catalog_items
		WHERE kind = 'medicine' AND active
		ORDER BY stock, name`, lowStockThreshold)
	if err != nil {
		return sheet, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var stock int
		var price float64
		var low bool
		if err := rows.Scan(&name, &stock, &price, &low); err != nil {
			return sheet, err
		}
		sheet.Rows = append(sheet.Rows, []interface{}{name, stock, price, low})
	}
	return sheet, rows.Err()
}

func (s *Service) userSheet(ctx context.Context) (excel.ReportSheet, error) {
	sheet := excel.ReportSheet{Name: "Users", Headers: []string{"Name", "Email", "Role", "Active"}}
	rows, err := s.pool.Query(ctx,
		`SELECT name, email, role, active FROM users ORDER BY role, name`)
	if err != nil {
		return sheet, err
	}
	defer rows.Close()
	for rows.Next() {
		var name, email, role string
		var active bool
		if err := rows.Scan(&name, &email, &role, &active); err != nil {
			return sheet, err
		}
		sheet.Rows = append(sheet.Rows, []interface{}{name, email, role, active})
	}
	return sheet, rows.Err()
}
