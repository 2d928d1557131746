package model

// Engine is a row of the `engines` table.  Cars and motorcycles reference it
// by engine_id; deleting an engine cascades to the vehicles using it.
type Engine struct {
	ID           uint64 `json:"id"`
	Brand        string `json:"brand"`
	FuelType     string `json:"fuelType"`
	Power        string `json:"power"`
	Torque       string `json:"torque"`
	Displacement string `json:"displacement"`
}
