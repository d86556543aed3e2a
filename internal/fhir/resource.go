// Package fhir maps health records to FHIR R4 Observations and uploads them.
package fhir

// Coding and resource structs cover the subset of FHIR R4 the sync pipeline
// produces: Observation uploads in transaction bundles plus Patient lookup and
// creation.

const (
	loincSystem    = "http://loinc.org"
	categorySystem = "http://terminology.hl7.org/CodeSystem/observation-category"
	unitSystem     = "http://unitsofmeasure.org"
)

// Coding is a code from a terminology system.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept wraps one or more codings.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Quantity is a measured amount with a UCUM unit.
type Quantity struct {
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
	System string  `json:"system,omitempty"`
	Code   string  `json:"code,omitempty"`
}

// Period is a start/end time range in RFC3339.
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Reference points at another resource, e.g. "Patient/42".
type Reference struct {
	Reference string `json:"reference,omitempty"`
}

// Observation is a standardized measurement ready for upload. Exactly one of
// EffectiveDateTime or EffectivePeriod is set.
type Observation struct {
	ResourceType      string            `json:"resourceType"`
	Status            string            `json:"status"`
	Category          []CodeableConcept `json:"category,omitempty"`
	Code              CodeableConcept   `json:"code"`
	Subject           Reference         `json:"subject"`
	EffectiveDateTime string            `json:"effectiveDateTime,omitempty"`
	EffectivePeriod   *Period           `json:"effectivePeriod,omitempty"`
	ValueQuantity     Quantity          `json:"valueQuantity"`
}

// HumanName is a patient name part.
type HumanName struct {
	Given  []string `json:"given,omitempty"`
	Family string   `json:"family,omitempty"`
}

// Patient is the minimal patient resource the resolver creates.
type Patient struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id,omitempty"`
	Name         []HumanName `json:"name,omitempty"`
}

// BundleEntryRequest describes the server action for one bundle entry.
type BundleEntryRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// BundleEntry carries one resource inside a bundle.
type BundleEntry struct {
	Resource Observation        `json:"resource"`
	Request  BundleEntryRequest `json:"request"`
}

// Bundle is a FHIR transaction bundle; the server accepts or rejects all of
// its entries as a whole.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// NewTransactionBundle wraps observations into a single atomic transaction.
func NewTransactionBundle(observations []Observation) Bundle {
	entries := make([]BundleEntry, 0, len(observations))
	for _, obs := range observations {
		entries = append(entries, BundleEntry{
			Resource: obs,
			Request:  BundleEntryRequest{Method: "POST", URL: "Observation"},
		})
	}
	return Bundle{ResourceType: "Bundle", Type: "transaction", Entry: entries}
}
