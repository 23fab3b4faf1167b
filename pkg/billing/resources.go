package billing

import "net/http"

// Resource names a resource family of the currencies API
type Resource string

const (
	Holders     Resource = "holders"
	Accounts    Resource = "accounts"
	Units       Resource = "units"
	Adjustments Resource = "adjustments"
	Transfers   Resource = "transfers"
	Exchanges   Resource = "exchanges"
)

// Verb names an operation on a resource family
type Verb string

const (
	List    Verb = "list"
	Detail  Verb = "detail"
	Create  Verb = "create"
	Update  Verb = "update"
	Confirm Verb = "confirm"
	Reject  Verb = "reject"
)

// Method returns the HTTP method the verb is sent with
func (v Verb) Method() string {
	if v == List || v == Detail {
		return http.MethodGet
	}
	return http.MethodPost
}

// APIPrefix is the fixed path prefix of every resource endpoint
const APIPrefix = "/api/currencies/"

// family is the static description of one resource family
type family struct {
	verbs []Verb
	// detailParams are the identifying query parameters of the detail endpoint
	detailParams []string
	// updateFields are the mutable fields accepted by the update endpoint
	updateFields []string
}

var families = map[Resource]family{
	Holders: {
		verbs:        []Verb{List, Detail, Create, Update},
		detailParams: []string{"holder_id"},
		updateFields: []string{"enabled", "info"},
	},
	Accounts: {
		verbs:        []Verb{List, Detail, Create},
		detailParams: []string{"holder_id", "unit_symbol"},
	},
	Units: {
		verbs: []Verb{List},
	},
	Adjustments: {
		verbs: []Verb{List, Create, Confirm, Reject},
	},
	Transfers: {
		verbs: []Verb{List, Create, Confirm, Reject},
	},
	Exchanges: {
		verbs: []Verb{List, Create, Confirm, Reject},
	},
}

// Resources returns every known resource family
func Resources() []Resource {
	return []Resource{Holders, Accounts, Units, Adjustments, Transfers, Exchanges}
}

// Supports reports whether the family accepts verb
func (r Resource) Supports(v Verb) bool {
	f, ok := families[r]
	if !ok {
		return false
	}
	for _, fv := range f.verbs {
		if fv == v {
			return true
		}
	}
	return false
}

// Verbs returns the verbs the family accepts
func (r Resource) Verbs() []Verb {
	f := families[r]
	out := make([]Verb, len(f.verbs))
	copy(out, f.verbs)
	return out
}

// DetailParams returns the identifying parameters of the detail endpoint
func (r Resource) DetailParams() []string {
	return append([]string(nil), families[r].detailParams...)
}

// UpdateFields returns the mutable fields of the update endpoint
func (r Resource) UpdateFields() []string {
	return append([]string(nil), families[r].updateFields...)
}

// Path returns the endpoint path of verb on the family.
// List maps to the collection root; every other verb is a sub-path.
func (r Resource) Path(v Verb) string {
	if v == List {
		return APIPrefix + string(r) + "/"
	}
	return APIPrefix + string(r) + "/" + string(v) + "/"
}

func (r Resource) check(v Verb) error {
	if _, ok := families[r]; !ok {
		return &ValidationError{Resource: r, Verb: v, Reason: "unknown resource"}
	}
	if !r.Supports(v) {
		return &ValidationError{Resource: r, Verb: v, Reason: "operation not supported"}
	}
	return nil
}
