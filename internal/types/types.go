package types

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Collection identifies one of the mirrored remote entity collections.
// Values match the remote table names on the wire.
type Collection string

const (
	CollectionClients           Collection = "clients"
	CollectionAppointments      Collection = "appointments"
	CollectionServices          Collection = "services"
	CollectionServiceCategories Collection = "service_categories"
	CollectionServiceAreas      Collection = "service_areas"
)

// Collections lists every mirrored collection in pull dependency order:
// referenced records (clients) are pulled before records that reference
// them (appointments), then the pricing entities.
var Collections = []Collection{
	CollectionClients,
	CollectionAppointments,
	CollectionServices,
	CollectionServiceCategories,
	CollectionServiceAreas,
}

// Valid reports whether c names a known collection.
func (c Collection) Valid() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

// OpType classifies an operation record.
type OpType string

const (
	OpInsert OpType = "insert"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// Valid reports whether t is a known operation type.
func (t OpType) Valid() bool {
	return t == OpInsert || t == OpUpdate || t == OpDelete
}

// NewID returns a fresh client-generated entity identifier. ULIDs are
// globally unique and lexicographically sortable, so ids allocated
// offline never collide with server-assigned ones.
func NewID() string {
	return ulid.Make().String()
}

// Row is the collection-generic unit the sync engine moves between the
// remote system and the local cache. Payload holds the complete JSON
// object as received or produced; ID, OwnerID, Status and ScheduledDate
// are extracted copies used for indexing and scoping.
type Row struct {
	ID            string
	OwnerID       string
	Status        string
	ScheduledDate string
	Payload       json.RawMessage
}

// rowHeader mirrors the indexed fields of a remote row.
type rowHeader struct {
	ID            string `json:"id"`
	OwnerID       string `json:"user_id"`
	Status        string `json:"status,omitempty"`
	ScheduledDate string `json:"scheduled_date,omitempty"`
}

// RowFromJSON builds a Row from a raw remote object, extracting the
// indexed fields and retaining the full payload.
func RowFromJSON(raw json.RawMessage) (Row, error) {
	var h rowHeader
	if err := json.Unmarshal(raw, &h); err != nil {
		return Row{}, err
	}
	return Row{
		ID:            h.ID,
		OwnerID:       h.OwnerID,
		Status:        h.Status,
		ScheduledDate: h.ScheduledDate,
		Payload:       raw,
	}, nil
}

// RowsFromJSON builds rows from a raw remote array.
func RowsFromJSON(raw json.RawMessage) ([]Row, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(elems))
	for _, e := range elems {
		row, err := RowFromJSON(e)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Operation is one entry of the offline write-ahead log. Records are
// appended with a locally monotonic ID and replayed in strictly
// ascending ID order. Callers must allocate dependent entity ids before
// enqueueing records that reference them, so append order alone yields
// a correct replay order.
type Operation struct {
	ID             int64           `json:"id"`
	Type           OpType          `json:"type"`
	Collection     Collection      `json:"collection"`
	TargetID       string          `json:"target_id,omitempty"`
	OwnerID        string          `json:"owner_id"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	IdempotencyKey string          `json:"idempotency_key"`
	QueuedAt       time.Time       `json:"queued_at"`
	Settled        bool            `json:"settled"`
	LastError      string          `json:"last_error,omitempty"`
}

// Client is a person the professional serves.
type Client struct {
	ID        string `json:"id"`
	OwnerID   string `json:"user_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
	Instagram string `json:"instagram,omitempty"`
	Notes     string `json:"notes,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// AppointmentStatus enumerates the appointment lifecycle.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Appointment is a scheduled engagement with a client.
type Appointment struct {
	ID                   string            `json:"id"`
	OwnerID              string            `json:"user_id"`
	ClientID             string            `json:"client_id"`
	ServiceAreaID        string            `json:"service_area_id,omitempty"`
	ScheduledDate        string            `json:"scheduled_date,omitempty"`
	ScheduledTime        string            `json:"scheduled_time,omitempty"`
	Status               AppointmentStatus `json:"status"`
	Address              string            `json:"appointment_address,omitempty"`
	Notes                string            `json:"notes,omitempty"`
	IsCustomPrice        bool              `json:"is_custom_price"`
	TravelFee            float64           `json:"travel_fee"`
	PaymentTotal         float64           `json:"payment_total_appointment"`
	PaymentTotalService  float64           `json:"payment_total_service"`
	TotalAmountPaid      float64           `json:"total_amount_paid"`
	DownPaymentExpected  float64           `json:"payment_down_payment_expected,omitempty"`
	DownPaymentPaid      float64           `json:"payment_down_payment_paid,omitempty"`
	PaymentStatus        string            `json:"payment_status"`
	TotalDurationMinutes int               `json:"total_duration_minutes,omitempty"`
	CreatedAt            string            `json:"created_at,omitempty"`
	UpdatedAt            string            `json:"updated_at,omitempty"`
}

// Service is a billable offering.
type Service struct {
	ID              string  `json:"id"`
	OwnerID         string  `json:"user_id"`
	CategoryID      string  `json:"category_id,omitempty"`
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"duration_minutes,omitempty"`
	IsActive        bool    `json:"is_active"`
	CreatedAt       string  `json:"created_at,omitempty"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

// ServiceCategory groups services.
type ServiceCategory struct {
	ID          string `json:"id"`
	OwnerID     string `json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// ServiceArea is a travel region with its fee.
type ServiceArea struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"user_id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	TravelFee   float64 `json:"travel_fee"`
	CreatedAt   string  `json:"created_at,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

// RowFromEntity marshals any entity struct into a Row. The entity must
// serialize to a JSON object carrying id and user_id.
func RowFromEntity(v any) (Row, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Row{}, err
	}
	return RowFromJSON(raw)
}
