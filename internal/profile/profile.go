// Package profile holds the structured business data collected by the
// wizard. The profile accumulates server-returned partial updates; the
// remote service owns validation, so nothing here checks more than
// presence.
package profile

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Contact groups the channels a buyer can reach the business on.
type Contact struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	WhatsApp string `json:"whatsapp,omitempty"`
	Address  string `json:"address,omitempty"`
	Website  string `json:"website,omitempty"`
}

type Product struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	PriceUnit   string          `json:"price_unit,omitempty"`
	MinOrderQty string          `json:"min_order_qty,omitempty"`
	ImageURL    string          `json:"image_url,omitempty"`
}

type ProductCategory struct {
	Name     string    `json:"name"`
	Products []Product `json:"products,omitempty"`
}

type Certification struct {
	Name     string `json:"name"`
	IssuedBy string `json:"issued_by,omitempty"`
	Year     int    `json:"year,omitempty"`
}

type TeamMember struct {
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Bio      string `json:"bio,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
}

// DesignPreferences captures how the generated site should look.
type DesignPreferences struct {
	TemplateStyle  string `json:"template_style,omitempty"`
	PrimaryColor   string `json:"primary_color,omitempty"`
	SecondaryColor string `json:"secondary_color,omitempty"`
	FontFamily     string `json:"font_family,omitempty"`
}

// BusinessProfile is the full record the conversation builds up, one
// terminal frame at a time.
type BusinessProfile struct {
	CompanyName     string `json:"company_name,omitempty"`
	CompanyType     string `json:"company_type,omitempty"`
	Description     string `json:"description,omitempty"`
	YearEstablished int    `json:"year_established,omitempty"`

	Contact            Contact           `json:"contact"`
	ProductCategories  []ProductCategory `json:"product_categories,omitempty"`
	ExportDestinations []string          `json:"export_destinations,omitempty"`
	Certifications     []Certification   `json:"certifications,omitempty"`
	TeamMembers        []TeamMember      `json:"team_members,omitempty"`
	Design             DesignPreferences `json:"design"`
}

func New() *BusinessProfile {
	return &BusinessProfile{}
}

// Merge applies a partial update from the server on top of the current
// profile. Keys absent from the partial are left untouched. Lists and
// scalars present in the partial replace the current value; nested
// objects merge field by field, so a partial contact update keeps the
// contact fields it does not mention.
func (p *BusinessProfile) Merge(partial json.RawMessage) error {
	if len(partial) == 0 {
		return nil
	}
	return json.Unmarshal(partial, p)
}

// HasMeaningfulData reports whether the profile carries enough to make a
// session resume worthwhile: a non-empty company name, company type, or
// description. Nothing else counts.
func (p *BusinessProfile) HasMeaningfulData() bool {
	if p == nil {
		return false
	}
	return strings.TrimSpace(p.CompanyName) != "" ||
		strings.TrimSpace(p.CompanyType) != "" ||
		strings.TrimSpace(p.Description) != ""
}

// Clone returns an independent deep copy.
func (p *BusinessProfile) Clone() *BusinessProfile {
	if p == nil {
		return New()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return New()
	}
	out := New()
	if err := json.Unmarshal(data, out); err != nil {
		return New()
	}
	return out
}

// JSON renders the profile as the collected_data payload sent with every
// turn. Returns an empty object on the nil profile.
func (p *BusinessProfile) JSON() json.RawMessage {
	if p == nil {
		return json.RawMessage(`{}`)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
