package domain

import "fmt"

type scopeKind uint8

const (
	scopeMerchantReview scopeKind = iota + 1
	scopeCustomer
)

// ViewScope selects which ledger transactions belong in a local view.
// The zero value matches nothing.
type ViewScope struct {
	kind     scopeKind
	customer string
}

// MerchantReview scopes a view to every transaction on the ledger.
func MerchantReview() ViewScope {
	return ViewScope{kind: scopeMerchantReview}
}

// CustomerView scopes a view to the transactions paid by address.
func CustomerView(address string) ViewScope {
	return ViewScope{kind: scopeCustomer, customer: address}
}

// ScopeFor returns the view a party acting in role should see.
func ScopeFor(role Role, address string) (ViewScope, error) {
	switch role {
	case RoleMerchant:
		return MerchantReview(), nil
	case RoleCustomer:
		if address == "" {
			return ViewScope{}, fmt.Errorf("customer view requires an address")
		}
		return CustomerView(address), nil
	default:
		return ViewScope{}, fmt.Errorf("unknown role %q", role)
	}
}

// Includes reports whether tx belongs in the view.
func (s ViewScope) Includes(tx *Transaction) bool {
	switch s.kind {
	case scopeMerchantReview:
		return true
	case scopeCustomer:
		return tx.Customer == s.customer
	default:
		return false
	}
}

func (s ViewScope) String() string {
	switch s.kind {
	case scopeMerchantReview:
		return "merchant-review"
	case scopeCustomer:
		return "customer:" + s.customer
	default:
		return "none"
	}
}
