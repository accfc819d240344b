package models

// Corporation is one row of the federal corporations registry.
type Corporation struct {
	CorporateName     string `json:"corporate_name"`
	CorporationNumber string `json:"corporation_number"`
	BusinessNumber    string `json:"business_number"`
}

// Listing is one result line from the provincial business registry search.
type Listing struct {
	Name   string `json:"name"`
	Number string `json:"number,omitempty"`
	Type   string `json:"type,omitempty"`
	Status string `json:"status,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Charity is one row of the charities listing, keyed by its 9 digit business number.
type Charity struct {
	BusinessNumber string `json:"business_number"`
	BNFull         string `json:"bn_full"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	Type           string `json:"type"`
	City           string `json:"city"`
	Province       string `json:"province"`
}

// Business is a registry entry used for cross-checks and fuzzy matching.
type Business struct {
	Name              string `json:"name"`
	Type              string `json:"type,omitempty"`
	CorporationNumber string `json:"corporation_number,omitempty"`
	BusinessNumber    string `json:"business_number,omitempty"`
	BNFull            string `json:"bn_full,omitempty"`
	Location          string `json:"location,omitempty"`
	Status            string `json:"status,omitempty"`
	Source            string `json:"source,omitempty"`
}

// Overlap is a charity that is also a federal registry entry.
type Overlap struct {
	BusinessNumber    string `json:"business_number"`
	BusinessType      string `json:"business_type"`
	CharityName       string `json:"charity_name"`
	CorporateName     string `json:"corporate_name"`
	CharityBNFull     string `json:"charity_bn_full"`
	BusinessBNFull    string `json:"business_bn_full"`
	CharityStatus     string `json:"charity_status"`
	CharityType       string `json:"charity_type"`
	CharityCity       string `json:"charity_city"`
	CharityProvince   string `json:"charity_province"`
	CorporationNumber string `json:"corporation_number"`
}

// LandHolding is a property parcel whose street address matches a charity's
// registered address.
type LandHolding struct {
	ObjectID              string `json:"object_id"`
	PropertyUnitID        string `json:"property_unit_id"`
	BusinessNumber        string `json:"business_registration_number"`
	OwnerName             string `json:"owner_name"`
	OrganizationName      string `json:"organization_name"`
	Address               string `json:"address"`
	Agency                string `json:"agency"`
	EffectiveDateOfStatus string `json:"effective_date_of_status"`
	CharityType           string `json:"charity_type,omitempty"`
	Category              string `json:"category,omitempty"`
	PostalCode            string `json:"postal_code,omitempty"`
	X                     string `json:"x,omitempty"`
	Y                     string `json:"y,omitempty"`
}

// Match pairs a property owner name with its best registry candidate.
type Match struct {
	OwnerName         string `json:"geojson_name"`
	MatchedName       string `json:"matched_name"`
	Score             int    `json:"similarity_score"`
	BusinessType      string `json:"business_type"`
	CorporationNumber string `json:"corporation_number"`
	Location          string `json:"location"`
	Status            string `json:"status"`
	Source            string `json:"source_file"`
}

// NoMatch is an owner name whose best candidate fell under the threshold.
type NoMatch struct {
	OwnerName   string `json:"geojson_name"`
	BestPartial string `json:"best_partial_match"`
	Score       int    `json:"partial_score"`
}
