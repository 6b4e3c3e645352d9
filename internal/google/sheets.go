package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"bookingdesk/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	bookingsSheet = "Bookings"
	timestampFmt  = "02.01.2006 15:04"
)

var bookingHeaders = []interface{}{
	"ID", "Service", "Date", "Time", "Client", "Email", "Phone", "Message", "Status", "Created At", "Updated At",
}

// SheetsService mirrors bookings into a Google spreadsheet.
type SheetsService struct {
	service         *sheets.Service
	bookingsSheetID string
}

func NewSheetsService(ctx context.Context, credentialsFile, bookingsSheetID string) (*SheetsService, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return newSheetsService(srv, bookingsSheetID), nil
}

func newSheetsService(srv *sheets.Service, bookingsSheetID string) *SheetsService {
	return &SheetsService{
		service:         srv,
		bookingsSheetID: bookingsSheetID,
	}
}

// TestConnection reads the header cell of the bookings sheet.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.bookingsSheetID, bookingsSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ServiceAccountEmail returns the client_email of a service account key file.
// The spreadsheet has to be shared with this address.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// ReplaceBookingsSheet полностью перезаписывает лист с заявками
func (s *SheetsService) ReplaceBookingsSheet(ctx context.Context, bookings []models.Booking) error {
	clearRange := bookingsSheet + "!A2:Z"
	_, err := s.service.Spreadsheets.Values.Clear(s.bookingsSheetID, clearRange, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to clear bookings sheet: %w", err)
	}

	values := make([][]interface{}, 0, len(bookings)+1)
	values = append(values, bookingHeaders)
	for i := range bookings {
		values = append(values, bookingRowValues(&bookings[i]))
	}

	_, err = s.service.Spreadsheets.Values.Update(s.bookingsSheetID, bookingsSheet+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update bookings sheet: %w", err)
	}
	return nil
}

func bookingRowValues(b *models.Booking) []interface{} {
	return []interface{}{
		b.ID,
		b.ServiceName,
		b.Date,
		b.Time,
		b.ClientName,
		b.ClientEmail,
		b.ClientPhone,
		b.ClientMessage,
		b.Status,
		formatTimestamp(b.CreatedAt),
		formatTimestamp(b.UpdatedAt),
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(timestampFmt)
}
