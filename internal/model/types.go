package model

import "time"

// Core domain types for the routing and compliance engine.

type VehicleClass string

const (
    ClassTruck        VehicleClass = "truck"
    ClassTempo        VehicleClass = "tempo"
    ClassVan          VehicleClass = "van"
    ClassThreeWheeler VehicleClass = "three-wheeler"
    ClassElectric     VehicleClass = "electric"
)

type VehicleStatus string

const (
    StatusAvailable   VehicleStatus = "available"
    StatusInTransit   VehicleStatus = "in-transit"
    StatusMaintenance VehicleStatus = "maintenance"
    StatusBreakdown   VehicleStatus = "breakdown"
    StatusReserved    VehicleStatus = "reserved"
)

type FuelType string

const (
    FuelDiesel   FuelType = "diesel"
    FuelPetrol   FuelType = "petrol"
    FuelCNG      FuelType = "cng"
    FuelElectric FuelType = "electric"
)

type PollutionClass string

const (
    PollutionBS3      PollutionClass = "BS3"
    PollutionBS4      PollutionClass = "BS4"
    PollutionBS6      PollutionClass = "BS6"
    PollutionElectric PollutionClass = "electric"
)

// Rank orders pollution classes from dirtiest to cleanest.
func (p PollutionClass) Rank() int {
    switch p {
    case PollutionBS3:
        return 0
    case PollutionBS4:
        return 1
    case PollutionBS6:
        return 2
    case PollutionElectric:
        return 3
    }
    return -1
}

type Priority string

const (
    PriorityLow    Priority = "low"
    PriorityMedium Priority = "medium"
    PriorityHigh   Priority = "high"
    PriorityUrgent Priority = "urgent"
)

// Rank orders priorities ascending; urgent is highest.
func (p Priority) Rank() int {
    switch p {
    case PriorityUrgent:
        return 3
    case PriorityHigh:
        return 2
    case PriorityMedium:
        return 1
    }
    return 0
}

type ServiceType string

const (
    ServiceShared           ServiceType = "shared"
    ServiceDedicatedPremium ServiceType = "dedicated_premium"
)

type ZoneType string

const (
    ZoneResidential ZoneType = "residential"
    ZoneCommercial  ZoneType = "commercial"
    ZoneIndustrial  ZoneType = "industrial"
)

type StopType string

const (
    StopPickup   StopType = "pickup"
    StopDelivery StopType = "delivery"
    StopHub      StopType = "hub"
)

type RouteStatus string

const (
    RoutePlanned   RouteStatus = "planned"
    RouteActive    RouteStatus = "active"
    RouteCompleted RouteStatus = "completed"
    RouteCancelled RouteStatus = "cancelled"
)

type GeoPoint struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

type TimeWindow struct {
    Start time.Time `json:"start"`
    End   time.Time `json:"end"`
}

// Dimensions in meters.
type Dimensions struct {
    LengthM float64 `json:"lengthM"`
    WidthM  float64 `json:"widthM"`
    HeightM float64 `json:"heightM"`
}

// Fits reports whether d fits inside limit; zero limit fields are unbounded.
func (d Dimensions) Fits(limit Dimensions) bool {
    if limit.LengthM > 0 && d.LengthM > limit.LengthM {
        return false
    }
    if limit.WidthM > 0 && d.WidthM > limit.WidthM {
        return false
    }
    if limit.HeightM > 0 && d.HeightM > limit.HeightM {
        return false
    }
    return true
}

type Capacity struct {
    WeightKg   float64    `json:"weightKg"`
    VolumeM3   float64    `json:"volumeM3"`
    Dimensions Dimensions `json:"dimensions"`
}

// AccessPrivileges are precomputed per vehicle by fleet operations.
type AccessPrivileges struct {
    Residential     bool `json:"residential"`
    Commercial      bool `json:"commercial"`
    Industrial      bool `json:"industrial"`
    RestrictedHours bool `json:"restrictedHours"`
    NarrowLanes     bool `json:"narrowLanes"`
}

// Vehicle is a read-only snapshot owned by the fleet collaborator.
// Plate parity and pollution class are immutable inputs to every
// compliance check; status transitions are owner-driven.
type Vehicle struct {
    ID             string           `json:"id"`
    PlateNumber    string           `json:"plateNumber"`
    Class          VehicleClass     `json:"class"`
    Capacity       Capacity         `json:"capacity"`
    Location       GeoPoint         `json:"location"`
    Status         VehicleStatus    `json:"status"`
    PollutionClass PollutionClass   `json:"pollutionClass"`
    FuelType       FuelType         `json:"fuelType"`
    PermitValidTo  time.Time        `json:"permitValidTo,omitempty"`
    Access         AccessPrivileges `json:"access"`
}

type Shipment struct {
    WeightKg       float64 `json:"weightKg"`
    VolumeM3       float64 `json:"volumeM3"`
    Fragile        bool    `json:"fragile,omitempty"`
    Hazardous      bool    `json:"hazardous,omitempty"`
    TempControlled bool    `json:"tempControlled,omitempty"`
}

// Delivery is immutable once referenced by a plan, except priority escalation.
type Delivery struct {
    ID            string      `json:"id"`
    Pickup        GeoPoint    `json:"pickup"`
    Dropoff       GeoPoint    `json:"dropoff"`
    PickupZoneID  string      `json:"pickupZoneId,omitempty"`
    DropoffZoneID string      `json:"dropoffZoneId,omitempty"`
    Window        TimeWindow  `json:"window"`
    Shipment      Shipment    `json:"shipment"`
    Priority      Priority    `json:"priority"`
    ServiceType   ServiceType `json:"serviceType"`
}

// Zone carries the municipal movement regulations for an area.
// Zero-valued limits mean unrestricted.
type Zone struct {
    ID               string           `json:"id"`
    Name             string           `json:"name,omitempty"`
    Type             ZoneType         `json:"type"`
    NarrowLanes      bool             `json:"narrowLanes,omitempty"`
    RestrictedFrom   string           `json:"restrictedFrom,omitempty"` // "23:00"
    RestrictedTo     string           `json:"restrictedTo,omitempty"`   // "07:00"
    AllowedPollution []PollutionClass `json:"allowedPollution,omitempty"`
    MaxWeightKg      float64          `json:"maxWeightKg,omitempty"`
    MaxDimensions    Dimensions       `json:"maxDimensions,omitempty"`
}

type Stop struct {
    Location   GeoPoint    `json:"location"`
    Type       StopType    `json:"type"`
    Zone       *Zone       `json:"zone,omitempty"`
    Window     *TimeWindow `json:"window,omitempty"`
    DeliveryID string      `json:"deliveryId,omitempty"`
    ETA        time.Time   `json:"eta,omitempty"`
}

// Route is owned by exactly one vehicle at a time; reassignment requires
// explicit release through the store.
type Route struct {
    ID          string      `json:"id"`
    VehicleID   string      `json:"vehicleId"`
    Status      RouteStatus `json:"status"`
    Stops       []Stop      `json:"stops"`
    DeliveryIDs []string    `json:"deliveryIds"`
    DistanceKm  float64     `json:"distanceKm"`
    DurationMin float64     `json:"durationMin"`
    FuelLiters  float64     `json:"fuelLiters,omitempty"`
}

type ViolationType string

// Closed violation taxonomy; declaration order is the analyzer tie-break.
const (
    ViolationTimeRestriction ViolationType = "time_restriction"
    ViolationOddEven         ViolationType = "odd_even_violation"
    ViolationPollution       ViolationType = "pollution_violation"
    ViolationZone            ViolationType = "zone_restriction"
    ViolationWeightDimension ViolationType = "weight_dimension_violation"
)

// ViolationTypes lists all types in declaration order.
var ViolationTypes = []ViolationType{
    ViolationTimeRestriction,
    ViolationOddEven,
    ViolationPollution,
    ViolationZone,
    ViolationWeightDimension,
}

type Severity string

const (
    SeverityLow    Severity = "low"
    SeverityMedium Severity = "medium"
    SeverityHigh   Severity = "high"
)

type Violation struct {
    Type      ViolationType `json:"type"`
    Severity  Severity      `json:"severity"`
    Penalty   float64       `json:"penalty,omitempty"`
    Location  GeoPoint      `json:"location"`
    Timestamp time.Time     `json:"timestamp"`
    Detail    string        `json:"detail,omitempty"`
}

type ComplianceVerdict struct {
    IsCompliant        bool                `json:"isCompliant"`
    Violations         []Violation         `json:"violations"`
    Warnings           []string            `json:"warnings,omitempty"`
    SuggestedActions   []string            `json:"suggestedActions,omitempty"`
    AlternativeOptions []AlternativeOption `json:"alternativeOptions,omitempty"`
}

type ViolationAnalysis struct {
    TotalVehicles       int                   `json:"totalVehicles"`
    CompliantVehicles   []string              `json:"compliantVehicles"`
    ViolatedVehicles    []string              `json:"violatedVehicles"`
    ViolationCounts     map[ViolationType]int `json:"violationCounts"`
    MostCommonViolation string                `json:"mostCommonViolation"`
}

// DistanceMatrix holds pairwise travel metrics indexed by a caller-supplied
// location ordering. Symmetry is provider-dependent and never assumed.
type DistanceMatrix struct {
    DistanceKm  [][]float64 `json:"distanceKm"`
    DurationMin [][]float64 `json:"durationMin"`
}

type RouteAssignmentResult struct {
    Feasible              bool     `json:"feasible"`
    Routes                []Route  `json:"routes"`
    UnassignedDeliveries  []string `json:"unassignedDeliveries"`
    TotalDistanceKm       float64  `json:"totalDistanceKm"`
    TotalDurationMin      float64  `json:"totalDurationMin"`
    AlgorithmUsed         string   `json:"algorithmUsed"`
    ProcessingMs          int64    `json:"processingMs"`
    EfficiencyImprovement float64  `json:"efficiencyImprovement,omitempty"`
}

type AlternativeOption struct {
    Type                   string       `json:"type"`
    Suggestion             string       `json:"suggestion"`
    EstimatedSavings       float64      `json:"estimatedSavings,omitempty"`
    AlternativeVehicles    []string     `json:"alternativeVehicles,omitempty"`
    AlternativeTimeWindows []TimeWindow `json:"alternativeTimeWindows,omitempty"`
    AlternativeLocations   []GeoPoint   `json:"alternativeLocations,omitempty"`
}

// OptimizeRequest is the API-level request; snapshots are resolved by the
// caller through the store before the orchestrator runs.
type OptimizeRequest struct {
    TenantID    string     `json:"tenantId"`
    PlanDate    string     `json:"planDate,omitempty"`
    Algorithm   string     `json:"algorithm,omitempty"` // nearest_neighbor, greedy, emergency
    DeadlineMs  int        `json:"deadlineMs,omitempty"`
    Window      TimeWindow `json:"window"`
    VehicleIDs  []string   `json:"vehicleIds,omitempty"`
    DeliveryIDs []string   `json:"deliveryIds,omitempty"`

    ConsiderComplianceRules bool `json:"considerComplianceRules,omitempty"`
    PrioritizeByCapacity    bool `json:"prioritizeByCapacity,omitempty"`
    AllowPartialAssignment  bool `json:"allowPartialAssignment,omitempty"`
}

// SuggestCriteria describes the failed search that alternatives are
// generated for.
type SuggestCriteria struct {
    Pickup      GeoPoint    `json:"pickup"`
    Dropoff     GeoPoint    `json:"dropoff"`
    Window      TimeWindow  `json:"window"`
    WeightKg    float64     `json:"weightKg"`
    VolumeM3    float64     `json:"volumeM3"`
    ServiceType ServiceType `json:"serviceType,omitempty"`
    ZoneID      string      `json:"zoneId,omitempty"`
}

type SubscriptionRequest struct {
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret"`
}

type Subscription struct {
    ID       string   `json:"id"`
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret,omitempty"`
}
