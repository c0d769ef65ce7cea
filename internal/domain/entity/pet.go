package entity

type PetStatus string

const (
	PetStatusActive   PetStatus = "active"
	PetStatusFound    PetStatus = "found"
	PetStatusArchived PetStatus = "archived"
)

// PetSummary is a read-only projection owned by the pet-listing subsystem.
// Chats are only visible in standard listings while their pet is active.
type PetSummary struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Breed  string    `json:"breed"`
	Type   string    `json:"type"` // "lost" or "found"
	Status PetStatus `json:"status"`
}
