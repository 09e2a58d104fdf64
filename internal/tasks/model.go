package tasks

// Task is one ledger entry. Its position in the store is its only identity.
type Task struct {
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}
