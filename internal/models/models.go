package models

// EmailRecord is the persisted result of classifying one mailbox message.
// Records are immutable once written: later saves of the same ID are no-ops,
// and deleting the source message at the provider does not remove the record.
type EmailRecord struct {
	ID       string `json:"id"`
	Subject  string `json:"subject"`
	Category string `json:"category"`
	Summary  string `json:"summary"`
}

// Category is a user-defined classification bucket. The description is shown
// to the classifier as guidance.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Body contains both plain text and HTML versions of a message body. Fields
// are empty when the corresponding MIME part is absent.
type Body struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

// InboxMessage is a fetched provider message, decoded and ready for
// classification. It is transient and never persisted as-is.
type InboxMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    string `json:"from"`
	Date    string `json:"date"`
	Body    Body   `json:"body"`
}

// RecordsFile is the canonical on-disk envelope for stored email records.
type RecordsFile struct {
	Version int           `json:"version"`
	Emails  []EmailRecord `json:"emails"`
}

// CategoriesFile is the canonical on-disk envelope for stored categories.
type CategoriesFile struct {
	Version    int        `json:"version"`
	Categories []Category `json:"categories"`
}
