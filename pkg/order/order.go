package order

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Direction of the order data flow
type Direction string

const (
	Upload        Direction = "upload"
	Download      Direction = "download"
	KeyManagement Direction = "key-management"
)

// Order attributes (H004 OrderAttribute)
const (
	// AttributeDZNNN marks unsigned, uncompressed-key orders (INI, HIA)
	AttributeDZNNN = "DZNNN"
	// AttributeDZHNN marks downloads and HPB
	AttributeDZHNN = "DZHNN"
	// AttributeOZHNN marks uploads carrying order data and ES
	AttributeOZHNN = "OZHNN"
	// AttributeUZHNN marks uploads carrying only an ES
	AttributeUZHNN = "UZHNN"
)

// ParamsPolicy decides which order parameters are allowed or required
type ParamsPolicy int

const (
	// ParamsNone forbids order parameters
	ParamsNone ParamsPolicy = iota
	// ParamsStandard allows an optional date range
	ParamsStandard
	// ParamsFileFormat requires a file format (FUL, FDL)
	ParamsFileFormat
)

var (
	// ErrUnknownOrderType is returned by Lookup for unregistered codes
	ErrUnknownOrderType = errors.New("unknown order type")
	// ErrInvalidParams is returned when order parameters violate the policy
	ErrInvalidParams = errors.New("invalid order parameters")
)

// Descriptor describes one order type
type Descriptor struct {
	Code        string
	Direction   Direction
	Attribute   string
	Params      ParamsPolicy
	Description string
}

// Params are the optional per-request order parameters
type Params struct {
	// Start and End bound a download date range
	Start time.Time
	End   time.Time
	// FileFormat and CountryCode qualify FUL and FDL
	FileFormat  string
	CountryCode string
	// Test marks FUL/FDL as test orders
	Test bool
}

// HasDateRange reports whether both ends of the date range are set
func (p Params) HasDateRange() bool {
	return !p.Start.IsZero() && !p.End.IsZero()
}

// IsUpload reports whether the order sends order data to the bank
func (d Descriptor) IsUpload() bool {
	return d.Direction == Upload
}

// IsDownload reports whether the order fetches order data from the bank
func (d Descriptor) IsDownload() bool {
	return d.Direction == Download
}

// CheckParams validates params against the descriptor's policy
func (d Descriptor) CheckParams(p Params) error {
	if p.HasDateRange() && p.End.Before(p.Start) {
		return fmt.Errorf("%w: %s end date before start date", ErrInvalidParams, d.Code)
	}
	if (p.Start.IsZero()) != (p.End.IsZero()) {
		return fmt.Errorf("%w: %s date range needs both start and end", ErrInvalidParams, d.Code)
	}

	switch d.Params {
	case ParamsNone:
		if p.HasDateRange() || p.FileFormat != "" {
			return fmt.Errorf("%w: %s takes no parameters", ErrInvalidParams, d.Code)
		}
	case ParamsStandard:
		if p.FileFormat != "" {
			return fmt.Errorf("%w: %s takes no file format", ErrInvalidParams, d.Code)
		}
		if p.HasDateRange() && d.Direction != Download {
			return fmt.Errorf("%w: date range only applies to downloads", ErrInvalidParams)
		}
	case ParamsFileFormat:
		if p.FileFormat == "" {
			return fmt.Errorf("%w: %s requires a file format", ErrInvalidParams, d.Code)
		}
		if p.HasDateRange() && d.Direction != Download {
			return fmt.Errorf("%w: date range only applies to downloads", ErrInvalidParams)
		}
	}
	return nil
}

// Registry holds the known order types
type Registry struct {
	mu     sync.RWMutex
	orders map[string]Descriptor
}

// NewRegistry creates a registry preloaded with the standard order types
func NewRegistry() *Registry {
	r := &Registry{
		orders: make(map[string]Descriptor, len(standardOrders)),
	}
	for _, d := range standardOrders {
		r.orders[d.Code] = d
	}
	return r
}

// Register adds or replaces an order type
func (r *Registry) Register(d Descriptor) error {
	if len(d.Code) != 3 {
		return fmt.Errorf("order type code must have 3 characters: %q", d.Code)
	}
	if d.Attribute == "" {
		switch d.Direction {
		case Upload:
			d.Attribute = AttributeOZHNN
		default:
			d.Attribute = AttributeDZHNN
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[d.Code] = d
	return nil
}

// Lookup returns the descriptor for code
func (r *Registry) Lookup(code string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.orders[code]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownOrderType, code)
	}
	return d, nil
}

// Codes returns all registered codes in sorted order
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.orders))
	for code := range r.orders {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

var defaultRegistry = NewRegistry()

// Lookup returns a descriptor from the default registry
func Lookup(code string) (Descriptor, error) {
	return defaultRegistry.Lookup(code)
}

// Register adds a descriptor to the default registry
func Register(d Descriptor) error {
	return defaultRegistry.Register(d)
}

// Must is Lookup for well-known codes
func Must(code string) Descriptor {
	d, err := Lookup(code)
	if err != nil {
		panic(err)
	}
	return d
}

var standardOrders = []Descriptor{
	{Code: "INI", Direction: KeyManagement, Attribute: AttributeDZNNN, Params: ParamsNone, Description: "send signature public key"},
	{Code: "HIA", Direction: KeyManagement, Attribute: AttributeDZNNN, Params: ParamsNone, Description: "send authentication and encryption public keys"},
	{Code: "HPB", Direction: KeyManagement, Attribute: AttributeDZHNN, Params: ParamsNone, Description: "download bank public keys"},
	{Code: "SPR", Direction: Upload, Attribute: AttributeUZHNN, Params: ParamsNone, Description: "suspend access"},

	{Code: "HPD", Direction: Download, Attribute: AttributeDZHNN, Params: ParamsStandard, Description: "bank parameters"},
	{Code: "HKD", Direction: Download, Attribute: AttributeDZHNN, Params: ParamsStandard, Description: "customer and subscriber information"},
	{Code: "HTD", Direction: Download, Attribute: AttributeDZHNN, Params: ParamsStandard, Description: "subscriber information"},
	{Code: "HAA", Direction: Download, Attribute: AttributeDZHNN, Params: ParamsStandard, Description: "available order types"},
	{Code: "HAC", Direction: Download, Attribute: AttributeDZHNN, Params: ParamsStandard, Description: "customer acknowledgement"},
	{Code: "PTK", Direction: Download, Attribute: AttributeDZHNN, Params: ParamsStandard, Description: "customer protocol"},
	{Code: "STA", Direction: Download, Attribute: AttributeDZHNN, Params: ParamsStandard, Description: "MT940 statement"},
	{Code: "VMK", Direction: Download, Attribute: AttributeDZHNN, Params: ParamsStandard, Description: "MT942 interim report"},
	{Code: "C52", Direction: Download, Attribute: AttributeDZHNN, Params: ParamsStandard, Description: "camt.052 account report"},
	{Code: "C53", Direction: Download, Attribute: AttributeDZHNN, Params: ParamsStandard, Description: "camt.053 statement"},
	{Code: "C54", Direction: Download, Attribute: AttributeDZHNN, Params: ParamsStandard, Description: "camt.054 debit credit notification"},
	{Code: "FDL", Direction: Download, Attribute: AttributeDZHNN, Params: ParamsFileFormat, Description: "generic file download"},

	{Code: "CCT", Direction: Upload, Attribute: AttributeOZHNN, Params: ParamsStandard, Description: "SEPA credit transfer"},
	{Code: "CDD", Direction: Upload, Attribute: AttributeOZHNN, Params: ParamsStandard, Description: "SEPA core direct debit"},
	{Code: "CDB", Direction: Upload, Attribute: AttributeOZHNN, Params: ParamsStandard, Description: "SEPA B2B direct debit"},
	{Code: "XE2", Direction: Upload, Attribute: AttributeOZHNN, Params: ParamsStandard, Description: "Swiss credit transfer"},
	{Code: "AXZ", Direction: Upload, Attribute: AttributeOZHNN, Params: ParamsStandard, Description: "foreign payment"},
	{Code: "FUL", Direction: Upload, Attribute: AttributeOZHNN, Params: ParamsFileFormat, Description: "generic file upload"},
}
