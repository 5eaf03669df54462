package domain

import "time"

// Attachment is a named download link owned by a bulletin item.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// BulletinItem is one numbered entry (Punkt) within an edition.
type BulletinItem struct {
	ID        int64
	EditionID int64
	Punkt     int

	Title    string
	Category string
	Content  string

	Attachments []Attachment

	ShortTitle           string
	RelevanceScore       *float64
	RelevanceExplanation string
	AnalyzedAt           *time.Time

	ReadAt *time.Time

	PDFAnalysis   string
	PDFAnalyzedAt *time.Time
}

// RawItem is one parsed item block before persistence.
type RawItem struct {
	Punkt          int
	Category       string
	Title          string
	Content        string
	Attachments    []Attachment
	HasAttachments bool
}

// AddAttachment appends an attachment unless its URL is already present.
func (r *RawItem) AddAttachment(att Attachment) bool {
	for _, existing := range r.Attachments {
		if existing.URL == att.URL {
			return false
		}
	}
	r.Attachments = append(r.Attachments, att)
	return true
}

// DeduplicateItems keeps the first occurrence of each punkt number.
func DeduplicateItems(items []RawItem) []RawItem {
	seen := make(map[int]struct{}, len(items))
	unique := make([]RawItem, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.Punkt]; ok {
			continue
		}
		seen[item.Punkt] = struct{}{}
		unique = append(unique, item)
	}
	return unique
}
