package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Slug        string    `json:"slug" db:"slug"`
	Description string    `json:"description" db:"description"`
	Icon        string    `json:"icon" db:"icon"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Features is a list of feature strings stored as a JSONB array.
type Features []string

func (f Features) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (f *Features) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = Features{}
		return nil
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("scan features: unsupported type %T", src)
	}
}

type Template struct {
	ID               int64           `json:"id" db:"id"`
	Title            string          `json:"title" db:"title"`
	Slug             string          `json:"slug" db:"slug"`
	Description      string          `json:"description" db:"description"`
	ShortDescription string          `json:"short_description" db:"short_description"`
	Price            decimal.Decimal `json:"price" db:"price"`
	CategoryID       int64           `json:"category_id" db:"category_id"`
	Category         Category        `json:"category" db:"category"`
	Features         Features        `json:"features" db:"features"`
	FilePath         string          `json:"-" db:"file_path"`
	DemoAvailable    bool            `json:"demo_available" db:"demo_available"`
	Active           bool            `json:"active" db:"active"`
	DownloadCount    int             `json:"download_count" db:"download_count"`
	AverageRating    float64         `json:"average_rating" db:"average_rating"`
	ReviewCount      int             `json:"review_count" db:"review_count"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

type Review struct {
	ID         int64     `json:"id" db:"id"`
	UserID     string    `json:"user_id" db:"user_id"`
	Username   string    `json:"username" db:"username"`
	TemplateID int64     `json:"template_id" db:"template_id"`
	Rating     int       `json:"rating" db:"rating"`
	Comment    string    `json:"comment" db:"comment"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type Stats struct {
	Templates      int `json:"templates" db:"templates"`
	Categories     int `json:"categories" db:"categories"`
	TotalDownloads int `json:"total_downloads" db:"total_downloads"`
}
