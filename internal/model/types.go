package model

import "time"

// Core domain types for field operations and the fleet catalog they touch.

// OperationStatus is the lifecycle state of an Operation.
type OperationStatus string

const (
	StatusPlanned   OperationStatus = "planned"
	StatusActive    OperationStatus = "active"
	StatusCompleted OperationStatus = "completed"
	StatusCancelled OperationStatus = "cancelled"
)

// Valid reports whether s is one of the four known states.
func (s OperationStatus) Valid() bool {
	switch s {
	case StatusPlanned, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s OperationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ResourceKind names a bookable resource.
type ResourceKind string

const (
	ResourceVehicle  ResourceKind = "vehicle"
	ResourceOperator ResourceKind = "operator"
)

// Date and clock layouts used on the wire and in storage.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Operation is a scheduled unit of field work linking a vehicle, an operator and optionally a field.
type Operation struct {
	ID            string          `json:"id"`
	VehicleID     string          `json:"vehicleId"`
	OperatorID    string          `json:"operatorId"`
	FieldID       string          `json:"fieldId,omitempty"`
	OperationType string          `json:"operationType"`
	Date          string          `json:"date"`
	StartTime     string          `json:"startTime,omitempty"`
	EndTime       string          `json:"endTime,omitempty"`
	StartHours    *float64        `json:"startHours,omitempty"`
	EndHours      *float64        `json:"endHours,omitempty"`
	StartMileage  *float64        `json:"startMileage,omitempty"`
	EndMileage    *float64        `json:"endMileage,omitempty"`
	AreaCovered   *float64        `json:"areaCovered,omitempty"`
	Weather       string          `json:"weather,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Status        OperationStatus `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// OperationFilter narrows operation listings. Empty fields match everything.
type OperationFilter struct {
	VehicleID  string
	OperatorID string
	Date       string
	Status     OperationStatus
	Limit      int
}

// VehicleStatus mirrors the catalog's availability flag for a vehicle.
type VehicleStatus string

const (
	VehicleAvailable   VehicleStatus = "available"
	VehicleInUse       VehicleStatus = "in_use"
	VehicleMaintenance VehicleStatus = "maintenance"
	VehicleRetired     VehicleStatus = "retired"
)

// Vehicle is a catalog entry with its current meter readings.
type Vehicle struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name,omitempty"`
	Type                 string        `json:"type,omitempty"`
	Status               VehicleStatus `json:"status,omitempty"`
	CurrentMileage       float64       `json:"currentMileage"`
	CurrentHours         float64       `json:"currentHours"`
	LastServiceHours     float64       `json:"lastServiceHours"`
	ServiceIntervalHours float64       `json:"serviceIntervalHours,omitempty"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}

// Operator is a person who drives vehicles.
type Operator struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// Field is a parcel of land operations are performed on.
type Field struct {
	ID     string   `json:"id"`
	Name   string   `json:"name,omitempty"`
	AreaHa *float64 `json:"areaHa,omitempty"`
}

// Telemetry is a vehicle's current meter readings.
type Telemetry struct {
	Mileage float64 `json:"mileage"`
	Hours   float64 `json:"hours"`
}

// TelemetryUpdate sets whichever readings are non-nil.
type TelemetryUpdate struct {
	Mileage *float64 `json:"mileage,omitempty"`
	Hours   *float64 `json:"hours,omitempty"`
}

// Alert types and severities produced by maintenance evaluation.
const (
	AlertMaintenanceDue     = "maintenance_due"
	AlertMaintenanceOverdue = "maintenance_overdue"

	SeverityWarning  = "warning"
	SeverityCritical = "critical"

	AlertActive   = "active"
	AlertResolved = "resolved"
)

// AlertRequest asks the alert sink to raise an alert.
type AlertRequest struct {
	Type       string  `json:"type"`
	VehicleID  string  `json:"vehicleId"`
	Severity   string  `json:"severity"`
	Message    string  `json:"message"`
	Hours      float64 `json:"hours"`
	DueAtHours float64 `json:"dueAtHours"`
}

// Alert is a raised alert. At most one active alert exists per (type, vehicle).
type Alert struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	VehicleID  string     `json:"vehicleId"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Hours      float64    `json:"hours"`
	DueAtHours float64    `json:"dueAtHours"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}

type SubscriptionRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret"`
}

type Subscription struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Secret string   `json:"secret,omitempty"`
}

// Float returns a pointer to v. Handy for optional readings.
func Float(v float64) *float64 { return &v }
