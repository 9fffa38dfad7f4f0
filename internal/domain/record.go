package domain

import "time"

// VerificationRecord is the append-only row written once a session completes.
type VerificationRecord struct {
	UserID       string
	Phone        string
	Handle       string
	Reference    string
	ReviewStatus string
	CreatedAt    time.Time
}

// Row renders the record in spreadsheet column order.
func (r VerificationRecord) Row() []interface{} {
	return []interface{}{r.UserID, r.Phone, r.Handle, r.Reference, r.ReviewStatus}
}
