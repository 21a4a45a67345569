package providers

import "context"

// Audit actions recorded for administrative changes
const (
	AuditActionApprovalToggled = "feedback.approval_toggled"
	AuditActionLinkAdded       = "feedback.link_added"
	AuditActionLinkRemoved     = "feedback.link_removed"
)

// AuditLog records administrative actions
type AuditLog interface {
	Record(ctx context.Context, action string, fields map[string]string)
}
