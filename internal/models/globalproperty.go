package models

// GlobalProperty is a single server-wide key/value setting, such as the
// flush-to-disk interval or the running AnonymizationSequence counter used
// to generate stable "Anonymized N" patient names.
type GlobalProperty struct {
	Key   string `gorm:"type:varchar(64);primaryKey" json:"-"`
	Value string `gorm:"type:text" json:"-"`
}

func (GlobalProperty) TableName() string {
	return "global_properties"
}

// Well-known global property keys.
const (
	GlobalPropertyFlushSleep          = "FlushSleep"
	GlobalPropertyAnonymizationSeq     = "AnonymizationSequence"
	GlobalPropertyDatabaseSchemaVersion = "DatabaseSchemaVersion"
)
