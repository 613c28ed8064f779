package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Office is an organizational unit that holds custody of documents
type Office struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Name         string         `gorm:"not null" json:"name"`
	Code         *string        `gorm:"uniqueIndex" json:"code,omitempty"`
	Description  string         `json:"description,omitempty"`
	ParentID     *uuid.UUID     `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	IsActive     bool           `gorm:"not null" json:"is_active"`
	SortOrder    int            `gorm:"not null;default:0" json:"sort_order"`
	RoutingRules datatypes.JSON `json:"routing_rules,omitempty"`
}

// User is an external identity; the routing core only reads it
type User struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	Name      string     `gorm:"not null" json:"name"`
	Email     string     `gorm:"not null;uniqueIndex" json:"email"`
	Role      Role       `gorm:"not null;default:user" json:"role"`
	OfficeID  *uuid.UUID `gorm:"type:uuid;index" json:"office_id,omitempty"`
	IsActive  bool       `gorm:"not null" json:"is_active"`
}

// IsAdmin reports whether the user bypasses office scoping
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// InOffice reports whether the user belongs to the given office
func (u *User) InOffice(officeID uuid.UUID) bool {
	return u != nil && u.OfficeID != nil && *u.OfficeID == officeID
}

// Document is a tracked physical or administrative document
type Document struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
	TrackingNumber    string          `gorm:"not null;uniqueIndex" json:"tracking_number"`
	Title             string          `gorm:"not null" json:"title"`
	Description       string          `json:"description,omitempty"`
	DocumentType      DocumentType    `gorm:"not null;index" json:"document_type"`
	Source            string          `json:"source,omitempty"`
	Priority          Priority        `gorm:"not null;default:normal" json:"priority"`
	Confidentiality   Confidentiality `gorm:"not null;default:public" json:"confidentiality"`
	Status            DocumentStatus  `gorm:"not null;index" json:"status"`
	CurrentOfficeID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"current_office_id"`
	ReceivingOfficeID *uuid.UUID      `gorm:"type:uuid" json:"receiving_office_id,omitempty"`
	CreatedBy         uuid.UUID       `gorm:"type:uuid;not null" json:"created_by"`
	RegisteredBy      uuid.UUID       `gorm:"type:uuid;not null" json:"registered_by"`
	DateReceived      *time.Time      `gorm:"index" json:"date_received,omitempty"`
	DateDue           *time.Time      `json:"date_due,omitempty"`
	IsArchived        bool            `gorm:"not null;default:false;index" json:"is_archived"`
	ArchivedAt        *time.Time      `json:"archived_at,omitempty"`
	IsMerged          bool            `gorm:"not null;default:false" json:"is_merged"`
	Metadata          datatypes.JSON  `json:"metadata,omitempty"`
	ParentDocumentID  *uuid.UUID      `gorm:"type:uuid;index" json:"parent_document_id,omitempty"`
	IsCopy            bool            `gorm:"not null;default:false" json:"is_copy"`
	CopyNumber        *int            `json:"copy_number,omitempty"`
}

// Kind tags the document as a main document or a copy
func (d *Document) Kind() DocumentKind {
	if d.IsCopy {
		return KindCopy
	}
	return KindMain
}

// MainDocumentID returns the id of the main document this one belongs to
func (d *Document) MainDocumentID() uuid.UUID {
	if d.Kind() == KindCopy && d.ParentDocumentID != nil {
		return *d.ParentDocumentID
	}
	return d.ID
}

// DocumentRouting is a single custody transfer between offices
type DocumentRouting struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt      time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
	DocumentID     uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_routing_document_sequence,priority:1" json:"document_id"`
	FromOfficeID   *uuid.UUID    `gorm:"type:uuid;index" json:"from_office_id,omitempty"`
	ToOfficeID     uuid.UUID     `gorm:"type:uuid;not null;index" json:"to_office_id"`
	RoutedBy       uuid.UUID     `gorm:"type:uuid;not null" json:"routed_by"`
	ReceivedBy     *uuid.UUID    `gorm:"type:uuid" json:"received_by,omitempty"`
	Remarks        string        `json:"remarks,omitempty"`
	Status         RoutingStatus `gorm:"not null;index" json:"status"`
	RoutedAt       time.Time     `gorm:"not null" json:"routed_at"`
	ReceivedAt     *time.Time    `json:"received_at,omitempty"`
	ReturnedAt     *time.Time    `json:"returned_at,omitempty"`
	Sequence       int           `gorm:"not null;uniqueIndex:idx_routing_document_sequence,priority:2" json:"sequence"`
	CopyDocumentID *uuid.UUID    `gorm:"type:uuid;index" json:"copy_document_id,omitempty"`
}

// IsSummary reports whether this routing only records that a copy was
// created and routed; custody moves on the copy itself.
func (r *DocumentRouting) IsSummary() bool {
	return r.CopyDocumentID != nil
}

// DocumentAction is an append-only record of an office acting on a document
type DocumentAction struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	DocumentID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"document_id"`
	OfficeID             uuid.UUID  `gorm:"type:uuid;not null;index" json:"office_id"`
	ActionBy             uuid.UUID  `gorm:"type:uuid;not null" json:"action_by"`
	ActionType           ActionType `gorm:"not null" json:"action_type"`
	Remarks              string     `json:"remarks,omitempty"`
	MemoFilePath         *string    `json:"memo_file_path,omitempty"`
	IsOfficeHeadApproval bool       `gorm:"not null;default:false" json:"is_office_head_approval"`
	ActionAt             time.Time  `gorm:"not null" json:"action_at"`
}

// Notification is an inbox entry for a user
type Notification struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt  time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
	UserID     uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	OfficeID   *uuid.UUID       `gorm:"type:uuid" json:"office_id,omitempty"`
	DocumentID *uuid.UUID       `gorm:"type:uuid;index" json:"document_id,omitempty"`
	Type       NotificationType `gorm:"not null" json:"type"`
	Title      string           `gorm:"not null" json:"title"`
	Message    string           `json:"message"`
	Data       datatypes.JSON   `json:"data,omitempty"`
	IsRead     bool             `gorm:"not null;default:false" json:"is_read"`
	ReadAt     *time.Time       `json:"read_at,omitempty"`
}

// QRCode is the verification record attached to a document
type QRCode struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DocumentID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"document_id"`
	Code            string         `gorm:"not null;uniqueIndex" json:"code"`
	Hash            string         `gorm:"not null" json:"hash"`
	VerificationURL string         `gorm:"not null" json:"verification_url"`
	Metadata        datatypes.JSON `json:"metadata,omitempty"`
	IsActive        bool           `gorm:"not null" json:"is_active"`
	ScanCount       int            `gorm:"not null;default:0" json:"scan_count"`
	LastScannedAt   *time.Time     `json:"last_scanned_at,omitempty"`
}

// TableName overrides the default q_r_codes
func (QRCode) TableName() string {
	return "qr_codes"
}

// SystemConfiguration holds runtime settings editable without a redeploy
type SystemConfiguration struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TrackingSequence is the lock row serializing tracking number allocation
// for one (prefix, year) pair.
type TrackingSequence struct {
	Prefix    string    `gorm:"primaryKey" json:"prefix"`
	Year      int       `gorm:"primaryKey;autoIncrement:false" json:"year"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns ids
func (o *Office) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

func (r *DocumentRouting) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (a *DocumentAction) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

func (q *QRCode) BeforeCreate(tx *gorm.DB) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	return nil
}

// SetupModels runs the schema migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Office{},
		&User{},
		&Document{},
		&DocumentRouting{},
		&DocumentAction{},
		&Notification{},
		&QRCode{},
		&SystemConfiguration{},
		&TrackingSequence{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
