package application

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmanzanog/stock-screener/internal/domain"
)

// FieldError describes one rejected request parameter.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every offending field of a request.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Fields returns the offending field names in report order.
func (e *ValidationError) Fields() []string {
	fields := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		fields[i] = fe.Field
	}
	return fields
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// screenParams is the raw, untrusted shape of a screening request.
type screenParams struct {
	Market           string `form:"market" validate:"required,oneof=JP US"`
	MarketCapMin     string `form:"marketCapMin" validate:"omitempty,numeric"`
	MarketCapMax     string `form:"marketCapMax" validate:"omitempty,numeric"`
	PERMin           string `form:"perMin" validate:"omitempty,numeric"`
	PERMax           string `form:"perMax" validate:"omitempty,numeric"`
	PBRMin           string `form:"pbrMin" validate:"omitempty,numeric"`
	PBRMax           string `form:"pbrMax" validate:"omitempty,numeric"`
	ROEMin           string `form:"roeMin" validate:"omitempty,numeric"`
	ROEMax           string `form:"roeMax" validate:"omitempty,numeric"`
	DividendYieldMin string `form:"dividendYieldMin" validate:"omitempty,numeric"`
	DividendYieldMax string `form:"dividendYieldMax" validate:"omitempty,numeric"`
	PriceMin         string `form:"priceMin" validate:"omitempty,numeric"`
	PriceMax         string `form:"priceMax" validate:"omitempty,numeric"`
	SortBy           string `form:"sortBy"`
	SortOrder        string `form:"sortOrder" validate:"omitempty,oneof=asc desc"`
	Page             string `form:"page" validate:"omitempty,number"`
	PageSize         string `form:"pageSize" validate:"omitempty,number"`
}

// sortKeys maps accepted sortBy values, including legacy aliases, to
// sortable fields.
var sortKeys = map[string]domain.Field{
	"symbol":        domain.FieldSymbol,
	"ticker":        domain.FieldSymbol,
	"displayName":   domain.FieldDisplayName,
	"name":          domain.FieldDisplayName,
	"sector":        domain.FieldSector,
	"marketCap":     domain.FieldMarketCap,
	"price":         domain.FieldPrice,
	"peRatio":       domain.FieldPERatio,
	"per":           domain.FieldPERatio,
	"pbRatio":       domain.FieldPBRatio,
	"pbr":           domain.FieldPBRatio,
	"roe":           domain.FieldROE,
	"dividendYield": domain.FieldDividendYield,
	"lastUpdated":   domain.FieldLastUpdated,
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("form")
	})
	return v
}

// ParseScreenRequest turns untrusted query values into a FilterSpec. On
// failure it returns a *ValidationError naming every offending field.
func ParseScreenRequest(values url.Values) (domain.FilterSpec, error) {
	get := func(key string) string {
		return strings.TrimSpace(values.Get(key))
	}
	params := screenParams{
		Market:           get("market"),
		MarketCapMin:     get("marketCapMin"),
		MarketCapMax:     get("marketCapMax"),
		PERMin:           get("perMin"),
		PERMax:           get("perMax"),
		PBRMin:           get("pbrMin"),
		PBRMax:           get("pbrMax"),
		ROEMin:           get("roeMin"),
		ROEMax:           get("roeMax"),
		DividendYieldMin: get("dividendYieldMin"),
		DividendYieldMax: get("dividendYieldMax"),
		PriceMin:         get("priceMin"),
		PriceMax:         get("priceMax"),
		SortBy:           get("sortBy"),
		SortOrder:        get("sortOrder"),
		Page:             get("page"),
		PageSize:         get("pageSize"),
	}

	verr := &ValidationError{}

	// Structural checks.
	if err := structValidator.Struct(params); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return domain.FilterSpec{}, fmt.Errorf("validating request: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.add(fe.Field(), "%s", tagMessage(fe))
		}
	}

	// Coercion and per-field ranges.
	spec := domain.FilterSpec{
		Market:   domain.Market(params.Market),
		Sectors:  parseSectors(values),
		Sort:     domain.DefaultSort(),
		Page:     domain.DefaultPage,
		PageSize: domain.DefaultPageSize,
	}

	bound := func(key, raw string, allowNegative bool) *domain.Decimal {
		if raw == "" || verr.has(key) {
			return nil
		}
		d, err := domain.NewDecimalFromString(raw)
		if err != nil {
			verr.add(key, "must be a number")
			return nil
		}
		if !allowNegative && d.IsNegative() {
			verr.add(key, "must be greater than or equal to 0")
			return nil
		}
		return &d
	}

	spec.MarketCap = domain.Range{Min: bound("marketCapMin", params.MarketCapMin, false), Max: bound("marketCapMax", params.MarketCapMax, false)}
	spec.PER = domain.Range{Min: bound("perMin", params.PERMin, false), Max: bound("perMax", params.PERMax, false)}
	spec.PBR = domain.Range{Min: bound("pbrMin", params.PBRMin, false), Max: bound("pbrMax", params.PBRMax, false)}
	spec.ROE = domain.Range{Min: bound("roeMin", params.ROEMin, true), Max: bound("roeMax", params.ROEMax, true)}
	spec.DividendYield = domain.Range{Min: bound("dividendYieldMin", params.DividendYieldMin, false), Max: bound("dividendYieldMax", params.DividendYieldMax, false)}
	spec.Price = domain.Range{Min: bound("priceMin", params.PriceMin, false), Max: bound("priceMax", params.PriceMax, false)}

	if params.SortBy != "" {
		field, ok := sortKeys[params.SortBy]
		if !ok {
			verr.add("sortBy", "unknown sort field %q", params.SortBy)
		} else {
			spec.Sort.Field = field
		}
	}
	if params.SortOrder != "" && !verr.has("sortOrder") {
		spec.Sort.Direction = domain.SortDirection(params.SortOrder)
	}

	if params.Page != "" && !verr.has("page") {
		page, err := strconv.Atoi(params.Page)
		if err != nil || page < 1 {
			verr.add("page", "must be a positive integer")
		} else {
			spec.Page = page
		}
	}
	if params.PageSize != "" && !verr.has("pageSize") {
		size, err := strconv.Atoi(params.PageSize)
		switch {
		case err != nil || size < 1:
			verr.add("pageSize", "must be a positive integer")
		case size > domain.MaxPageSize:
			verr.add("pageSize", "must be less than or equal to %d", domain.MaxPageSize)
		default:
			spec.PageSize = size
		}
	}

	// Cross-field: every min must not exceed its max.
	var inverted []string
	for _, dim := range spec.Dimensions() {
		if dim.Range.Inverted() {
			inverted = append(inverted, dim.Name)
		}
	}
	if len(inverted) > 0 {
		verr.add("range", "minimum must be less than or equal to maximum for: %s", strings.Join(inverted, ", "))
	}

	if len(verr.Errors) > 0 {
		return domain.FilterSpec{}, verr
	}
	return spec, nil
}

// ParseMarketParam validates a standalone market parameter.
func ParseMarketParam(raw string) (domain.Market, error) {
	if strings.TrimSpace(raw) == "" {
		return "", &ValidationError{Errors: []FieldError{{Field: "market", Message: "market is required"}}}
	}
	m, err := domain.ParseMarket(raw)
	if err != nil {
		return "", &ValidationError{Errors: []FieldError{{Field: "market", Message: "must be one of: JP US"}}}
	}
	return m, nil
}

// parseSectors accepts repeated keys and comma-separated values. Blank
// entries are dropped and first-seen order is kept.
func parseSectors(values url.Values) []string {
	raw := append(append([]string{}, values["sectors"]...), values["sectors[]"]...)

	var sectors []string
	seen := make(map[string]struct{})
	for _, v := range raw {
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			sectors = append(sectors, s)
		}
	}
	return sectors
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "numeric":
		return "must be a number"
	case "number":
		return "must be a positive integer"
	default:
		return "is invalid"
	}
}
