package domain

// Category groups tickets by problem area.
type Category struct {
	ID          string
	Name        string
	Description string
}
