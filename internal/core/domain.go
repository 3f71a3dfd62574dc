package core

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// DefaultUserID owns every record; the service has no multi-user isolation.
const DefaultUserID int64 = 1

// DateLayout is the wire and storage format of a Date.
const DateLayout = "2006-01-02"

// MaxDescriptionLength bounds transaction descriptions.
const MaxDescriptionLength = 200

const (
	// SourceRule marks a category assigned by the categorization rules.
	SourceRule CategorySource = "rule"
	// SourceUser marks a category supplied by the client.
	SourceUser CategorySource = "user"
	// SourceNone marks an uncategorized transaction.
	SourceNone CategorySource = ""
)

// Export states of a transaction towards the external ledger.
const (
	ExportPending ExportStatus = "pending"
	ExportDone    ExportStatus = "exported"
	ExportFailed  ExportStatus = "error"
)

type (
	// CategorySource records who set a transaction's category.
	CategorySource string

	ExportStatus string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	User struct {
		ID        int64
		Email     string
		CreatedAt time.Time
	}

	Transaction struct {
		ID             int64
		UserID         int64
		Date           Date
		Description    string
		Amount         Money // negative for refunds and income
		Category       string
		CategorySource CategorySource
		ExportStatus   ExportStatus
		CreatedAt      time.Time
	}

	SavingsGoal struct {
		ID        int64
		UserID    int64
		Name      string
		Target    Money
		Progress  Money
		CreatedAt time.Time
	}
)

var (
	ErrInvalidDay         = errors.New("invalid day")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	ErrEmptyGoalName      = errors.New("empty goal name")
	ErrInvalidProgress    = errors.New("progress must not be negative")
	ErrInvalidEmail       = errors.New("invalid email")

	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by stores when a uniqueness constraint fails.
	ErrConflict = errors.New("conflict")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// Validate requires a strictly positive amount.
func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if t.Amount.Cents == 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (g SavingsGoal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyGoalName
	}
	if err := g.Target.Validate(); err != nil {
		return err
	}
	if g.Progress.Cents < 0 {
		return ErrInvalidProgress
	}
	return nil
}

// Remaining returns how much is left to reach the target, never negative.
func (g SavingsGoal) Remaining() Money {
	if g.Progress.Cents >= g.Target.Cents {
		return Money{}
	}
	return Money{Cents: g.Target.Cents - g.Progress.Cents}
}

func (u User) Validate() error {
	addr, err := mail.ParseAddress(u.Email)
	if err != nil || addr.Address != u.Email {
		return ErrInvalidEmail
	}
	return nil
}
