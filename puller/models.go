package puller

import "time"

// RecentLink is the global "already processed" index. It is category-agnostic:
// a link recorded under one category is never ingested again under another.
type RecentLink struct {
	ID        uint      `gorm:"primaryKey"`
	Link      string    `gorm:"uniqueIndex:idx_recent_links_link;not null;size:2048"`
	FirstSeen time.Time `gorm:"index:idx_recent_links_first_seen"`
}

func (RecentLink) TableName() string { return "recent_links" }

// Article is one row of a per-category table. The table name is supplied at
// query time through Store, never by this type.
type Article struct {
	ID           uint   `gorm:"primaryKey"`
	Link         string `gorm:"not null;size:2048"`
	DatePulled   time.Time
	Title        string `gorm:"type:text"`
	Published    string `gorm:"type:text"`
	Summary      string `gorm:"type:text"`
	Language     string `gorm:"size:64"`
	Contributors string `gorm:"type:text"`
	Publisher    string `gorm:"type:text"`
	StrippedText string `gorm:"type:text"`
}

type Category struct {
	ID      string
	Name    string
	FeedURL string
	// Partition is Name passed through PartitionName; it is the table name
	// and the archive subdirectory.
	Partition string
}

// Item is one feed entry. Missing fields are empty strings.
type Item struct {
	Link         string
	Title        string
	Published    string
	Summary      string
	Language     string
	Contributors []string
	Publisher    string
}

type Feed struct {
	// Malformed is set when the document could not be parsed as RSS/Atom.
	// Items must not be trusted in that case.
	Malformed bool
	Title     string
	Subtitle  string
	Items     []Item
}
