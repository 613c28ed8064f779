package models

// DocumentStatus is the lifecycle state of a document
type DocumentStatus string

const (
	StatusDraft      DocumentStatus = "draft"
	StatusRegistered DocumentStatus = "registered"
	StatusInTransit  DocumentStatus = "in_transit"
	StatusReceived   DocumentStatus = "received"
	StatusInAction   DocumentStatus = "in_action"
	StatusCompleted  DocumentStatus = "completed"
	StatusArchived   DocumentStatus = "archived"
	StatusReturned   DocumentStatus = "returned"
)

// DocumentType classifies where a document originates
type DocumentType string

const (
	DocumentTypeIncoming DocumentType = "incoming"
	DocumentTypeOutgoing DocumentType = "outgoing"
	DocumentTypeInternal DocumentType = "internal"
)

// Priority of a document
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Confidentiality level of a document
type Confidentiality string

const (
	ConfidentialityPublic       Confidentiality = "public"
	ConfidentialityConfidential Confidentiality = "confidential"
	ConfidentialityRestricted   Confidentiality = "restricted"
)

// RoutingStatus is the state of a single custody transfer
type RoutingStatus string

const (
	RoutingPending   RoutingStatus = "pending"
	RoutingInTransit RoutingStatus = "in_transit"
	RoutingReceived  RoutingStatus = "received"
	RoutingReturned  RoutingStatus = "returned"
)

// InFlight reports whether the routing still awaits receipt
func (s RoutingStatus) InFlight() bool {
	return s == RoutingPending || s == RoutingInTransit
}

// ActionType is the kind of action an office records against a document
type ActionType string

const (
	ActionApprove ActionType = "approve"
	ActionNote    ActionType = "note"
	ActionComply  ActionType = "comply"
	ActionSign    ActionType = "sign"
	ActionReturn  ActionType = "return"
	ActionForward ActionType = "forward"
)

// Role of a user
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// NotificationType categorizes inbox entries
type NotificationType string

const (
	NotificationRouting        NotificationType = "routing"
	NotificationActionRequired NotificationType = "action_required"
	NotificationOverdue        NotificationType = "overdue"
)

// DocumentKind distinguishes a main document from one of its copies
type DocumentKind int

const (
	KindMain DocumentKind = iota
	KindCopy
)

func (k DocumentKind) String() string {
	if k == KindCopy {
		return "copy"
	}
	return "main"
}
