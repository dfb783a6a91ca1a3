package model

// Address is the optional location a student attaches to their profile.
//
// Registration only fills FullAddress (the free-form string from the request);
// the structured fields are filled later by whoever geocodes the address.
// Latitude and Longitude are pointers because 0.0 is a real coordinate.
type Address struct {
	FullAddress string   `json:"fullAddress"`
	City        string   `json:"city,omitempty"`
	Street      string   `json:"street,omitempty"`
	HouseNumber string   `json:"houseNumber,omitempty"`
	Building    string   `json:"building,omitempty"`
	Apartment   string   `json:"apartment,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Entrance    string   `json:"entrance,omitempty"`
	Floor       string   `json:"floor,omitempty"`
}

// NewAddress returns an Address holding only the full address string,
// or nil when the string is empty.
func NewAddress(full string) *Address {
	if full == "" {
		return nil
	}
	return &Address{FullAddress: full}
}

// Clone returns a deep copy of a. A nil Address clones to nil.
func (a *Address) Clone() *Address {
	if a == nil {
		return nil
	}
	c := *a
	if a.Latitude != nil {
		lat := *a.Latitude
		c.Latitude = &lat
	}
	if a.Longitude != nil {
		lon := *a.Longitude
		c.Longitude = &lon
	}
	return &c
}
