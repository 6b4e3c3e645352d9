// Package export renders bookings into Excel workbooks for managers.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"bookingdesk/internal/models"

	"github.com/xuri/excelize/v2"
)

const SheetName = "Bookings"

var headers = []string{
	"ID", "Date", "Time", "Service", "Client", "Email", "Phone", "Message", "Status", "Created", "Updated",
}

var columnWidths = []float64{24, 12, 8, 20, 20, 26, 16, 30, 12, 18, 18}

// statusColors заливка строки по статусу заявки
var statusColors = map[string]string{
	models.StatusPending:   "#FFEB9C",
	models.StatusConfirmed: "#C6EFCE",
	models.StatusCancelled: "#FFC7CE",
}

// BookingsWorkbook builds a workbook with one row per booking, in the given
// order. title goes into the first row above the header.
func BookingsWorkbook(bookings []models.Booking, title string) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(SheetName, "A1", title)
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.MergeCell(SheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(SheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(SheetName, cell, header)
		_ = f.SetCellStyle(SheetName, cell, cell, headerStyle)
	}

	styles := make(map[string]int, len(statusColors))
	for status, color := range statusColors {
		style, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		})
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("error creating style: %w", err)
		}
		styles[status] = style
	}

	for i := range bookings {
		row := i + 3
		values := bookingRow(&bookings[i])
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("error writing row %d: %w", row, err)
		}
		if style, ok := styles[bookings[i].Status]; ok {
			end, _ := excelize.CoordinatesToCellName(len(headers), row)
			_ = f.SetCellStyle(SheetName, cell, end, style)
		}
	}

	for i, width := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(SheetName, col, col, width)
	}

	return f, nil
}

// WriteBookings streams the workbook to w.
func WriteBookings(w io.Writer, bookings []models.Booking, title string) error {
	f, err := BookingsWorkbook(bookings, title)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveBookings stores the workbook under dir and returns the file path.
func SaveBookings(dir string, bookings []models.Booking, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := BookingsWorkbook(bookings, Title(now))
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(dir, FileName(now))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}
	return filePath, nil
}

func Title(now time.Time) string {
	return fmt.Sprintf("Bookings as of %s", now.Format("02.01.2006 15:04"))
}

func FileName(now time.Time) string {
	return fmt.Sprintf("bookings_%s.xlsx", now.Format("2006-01-02_15-04-05"))
}

// FilterByDate keeps bookings whose date lies in [start, end]. Empty bounds
// are open.
func FilterByDate(bookings []models.Booking, start, end string) []models.Booking {
	out := make([]models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if start != "" && b.Date < start {
			continue
		}
		if end != "" && b.Date > end {
			continue
		}
		out = append(out, b)
	}
	return out
}

func bookingRow(b *models.Booking) []interface{} {
	return []interface{}{
		b.ID,
		b.Date,
		b.Time,
		b.ServiceName,
		b.ClientName,
		b.ClientEmail,
		b.ClientPhone,
		b.ClientMessage,
		b.Status,
		formatTime(b.CreatedAt),
		formatTime(b.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02.01.2006 15:04")
}
