package data

import "fmt"

type QueryParams struct {
	Query               string
	Page                int
	PageLimit           int
	SortBy              SortField
	SortOrder           SortOrder
	Filters             map[FilterKey]interface{}
	ForUpdateSkipLocked bool
}

type SortOrder string

const (
	SortOrderASC  SortOrder = "ASC"
	SortOrderDESC SortOrder = "DESC"
)

type SortField string

const (
	SortFieldCreatedAt SortField = "created_at"
	SortFieldUpdatedAt SortField = "updated_at"
	SortFieldPriority  SortField = "priority"
)

type FilterKey string

const (
	FilterKeyID              FilterKey = "id"
	FilterKeyTenantID        FilterKey = "tenant_id"
	FilterKeyStatus          FilterKey = "status"
	FilterKeyPaymentType     FilterKey = "payment_type_code"
	FilterKeyLocalInstrument FilterKey = "local_instrument"
	FilterKeyRail            FilterKey = "rail"
	FilterKeyUETR            FilterKey = "uetr"
	FilterKeyCurrency        FilterKey = "currency"
	FilterKeyCreatedAtAfter  FilterKey = "created_at_after"
	FilterKeyCreatedAtBefore FilterKey = "created_at_before"
)

func (fk FilterKey) Equals() string {
	return fmt.Sprintf("%s = ?", fk)
}

func (fk FilterKey) LowerThan() string {
	return fmt.Sprintf("%s < ?", fk)
}

// IsNull returns `{filterKey} IS NULL`.
func IsNull(filterKey FilterKey) FilterKey {
	return FilterKey(fmt.Sprintf("%s IS NULL", filterKey))
}

type Filter struct {
	Key   FilterKey
	Value interface{}
}

func NewFilter(key FilterKey, value interface{}) Filter {
	return Filter{
		Key:   key,
		Value: value,
	}
}
