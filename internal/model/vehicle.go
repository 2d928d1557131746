package model

// VehicleKind selects the table a Vehicle lives in.
type VehicleKind string

const (
	KindCar        VehicleKind = "car"
	KindMotorcycle VehicleKind = "motorcycle"
)

// Vehicle is a car or motorcycle.  Both share the same attribute set; the
// engine is loaded by join and embedded in API responses.
type Vehicle struct {
	ID           uint64  `json:"id"`
	Brand        string  `json:"brand"`
	Model        string  `json:"model"`
	Year         string  `json:"year"`
	Color        string  `json:"color"`
	FuelType     string  `json:"fuelType"`
	Transmission string  `json:"transmission"`
	Mileage      string  `json:"mileage"`
	Price        string  `json:"price"`
	EngineID     uint64  `json:"engineId"`
	Engine       *Engine `json:"engine,omitempty"`
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}
